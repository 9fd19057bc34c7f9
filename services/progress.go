package services

import (
	"sync"
	"time"

	"video-relay-go/models"
)

type finishedTransfer struct {
	snapshot  models.ProgressResponse
	expiresAt time.Time
}

// ProgressRegistry indexes transfers by request id. Live transfers report
// their current counters; closed ones keep a final snapshot for retention.
type ProgressRegistry struct {
	mu        sync.Mutex
	active    map[string]*Transfer
	finished  map[string]finishedTransfer
	retention time.Duration
	now       func() time.Time
}

func NewProgressRegistry(retention time.Duration) *ProgressRegistry {
	return &ProgressRegistry{
		active:    make(map[string]*Transfer),
		finished:  make(map[string]finishedTransfer),
		retention: retention,
		now:       time.Now,
	}
}

// Track registers t under its RequestID. Transfers without one are ignored.
func (p *ProgressRegistry) Track(t *Transfer) {
	if t.RequestID == "" {
		return
	}

	t.mu.Lock()
	t.onClose = p.done
	t.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneLocked()
	p.active[t.RequestID] = t
}

// Get returns the progress of the transfer tracked under requestID
func (p *ProgressRegistry) Get(requestID string) (models.ProgressResponse, bool) {
	p.mu.Lock()
	p.pruneLocked()
	t, live := p.active[requestID]
	entry, done := p.finished[requestID]
	p.mu.Unlock()

	switch {
	case live:
		return t.Snapshot(), true
	case done:
		return entry.snapshot, true
	default:
		return models.ProgressResponse{}, false
	}
}

// Len counts live and retained transfers
func (p *ProgressRegistry) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active) + len(p.finished)
}

// done freezes the snapshot of a closed transfer
func (p *ProgressRegistry) done(t *Transfer) {
	snapshot := t.Snapshot()

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, t.RequestID)
	if p.retention > 0 {
		p.finished[t.RequestID] = finishedTransfer{
			snapshot:  snapshot,
			expiresAt: p.now().Add(p.retention),
		}
	}
}

func (p *ProgressRegistry) pruneLocked() {
	now := p.now()
	for id, entry := range p.finished {
		if !now.Before(entry.expiresAt) {
			delete(p.finished, id)
		}
	}
}
