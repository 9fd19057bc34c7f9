package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/mo"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
	"video-relay-go/config"
	"video-relay-go/metrics"
	"video-relay-go/models"
	"video-relay-go/telemetry"
	"video-relay-go/utils"
)

// Relay opens one upstream stream per fetch call
type Relay struct {
	extractor    Extractor
	setupTimeout time.Duration
	idleTimeout  time.Duration
	rateLimit    int
	progress     *ProgressRegistry
}

func NewRelay(extractor Extractor, settings *config.Settings) *Relay {
	return &Relay{
		extractor:    extractor,
		setupTimeout: settings.StreamSetupTimeout,
		idleTimeout:  settings.StreamIdleTimeout,
		rateLimit:    settings.StreamRateLimit,
		progress:     NewProgressRegistry(settings.ProgressRetention),
	}
}

// Track makes t pollable under its RequestID until retention runs out
func (r *Relay) Track(t *Transfer) {
	r.progress.Track(t)
}

// Progress reports the tracked transfer with the given request id
func (r *Relay) Progress(requestID string) (models.ProgressResponse, bool) {
	return r.progress.Get(requestID)
}

// Open binds the request to an encoding, opens its stream and reads the first
// chunk. Nothing is sent to the caller by Open, so every failure it returns
// can still be reported as a structured error.
func (r *Relay) Open(ctx context.Context, req models.SourceRequest) mo.Result[*Transfer] {
	ctx, span := telemetry.Tracer().Start(ctx, "relay.open")
	defer span.End()

	transfer, err := r.open(ctx, req)
	if err != nil {
		kind := utils.KindOf(err)
		span.SetStatus(codes.Error, kind.String())
		span.RecordError(err)
		metrics.FetchTotal.WithLabelValues(kind.String()).Inc()
		return mo.Err[*Transfer](err)
	}

	span.SetAttributes(
		attribute.String("video.id", transfer.VideoID),
		attribute.String("encoding.selector", transfer.Encoding.Selector),
	)
	return mo.Ok(transfer)
}

func (r *Relay) open(ctx context.Context, req models.SourceRequest) (*Transfer, error) {
	sourceURL, err := utils.NormalizeURL(req.URL)
	if err != nil {
		return nil, err
	}
	if !utils.ValidateSelector(req.Selector) {
		return nil, utils.NewError(utils.KindNoSuitableFormat, "No suitable format found", nil)
	}

	meta, err := r.extractor.Extract(ctx, sourceURL)
	if err != nil {
		return nil, ClassifyError(err)
	}

	var enc *models.RawEncoding
	if req.Selector != "" {
		enc = FindEncoding(meta, req.Selector)
	} else {
		enc = DefaultEncoding(meta)
	}
	if enc == nil {
		return nil, utils.NewError(utils.KindNoSuitableFormat, "No suitable format found", nil)
	}

	// The stream outlives the handler call; it ends with Transfer.Close
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	timer := time.AfterFunc(r.setupTimeout, cancel)

	upstream, err := r.extractor.Open(streamCtx, meta, enc)
	if err != nil {
		timedOut := !timer.Stop()
		cancel()
		if timedOut {
			return nil, utils.NewError(utils.KindTimeout, "Timed out opening the video stream", err)
		}
		return nil, streamSetupError(err)
	}

	first, err := readFirstChunk(upstream)
	timedOut := !timer.Stop()
	if err != nil || timedOut {
		upstream.Close()
		cancel()
		if timedOut {
			return nil, utils.NewError(utils.KindTimeout, "Timed out opening the video stream", err)
		}
		return nil, streamSetupError(err)
	}

	t := &Transfer{
		VideoID:     meta.ID,
		Title:       meta.Title,
		Encoding:    enc,
		ContentType: utils.ContentTypeFromMime(enc.MimeType),
		Disposition: utils.AttachmentDisposition(meta.Title, enc.Container),
		state:       models.RelayOpening,
		upstream:    upstream,
		reader:      io.MultiReader(bytes.NewReader(first), upstream),
		ctx:         streamCtx,
		cancel:      cancel,
		started:     time.Now(),
	}
	if r.rateLimit > 0 {
		burst := max(r.rateLimit, 4*1024)
		t.limiter = rate.NewLimiter(rate.Limit(r.rateLimit), burst)
	}
	if r.idleTimeout > 0 {
		t.idleTimeout = r.idleTimeout
		t.idle = time.AfterFunc(r.idleTimeout, t.expireIdle)
	}
	metrics.ActiveTransfers.Inc()
	activeTransfers.Add(1)
	return t, nil
}

var activeTransfers atomic.Int64

// ActiveTransfers counts opened transfers not yet closed
func ActiveTransfers() int64 {
	return activeTransfers.Load()
}

// streamSetupError keeps classified errors and turns the rest into upstream failures
func streamSetupError(err error) error {
	if errors.Is(err, io.EOF) {
		return utils.NewError(utils.KindUpstream, "Video stream was empty", err)
	}
	classified := ClassifyError(err)
	switch utils.KindOf(classified) {
	case utils.KindNoSuitableFormat, utils.KindTimeout:
		return classified
	default:
		return utils.NewError(utils.KindUpstream, "Failed to stream video", err)
	}
}

// readFirstChunk blocks until the upstream yields its first bytes
func readFirstChunk(upstream io.Reader) ([]byte, error) {
	buf := make([]byte, config.FirstChunkSize)
	n, err := io.ReadAtLeast(upstream, buf, 1)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Transfer is the single in-flight byte stream of one fetch call. It is an
// io.ReadCloser drained by the HTTP server, so bytes are pulled from the
// source only as fast as the caller accepts them.
type Transfer struct {
	VideoID     string
	Title       string
	Encoding    *models.RawEncoding
	ContentType string
	Disposition string
	RequestID   string

	mu       sync.Mutex
	state    models.RelayState
	err      error
	upstream io.ReadCloser
	reader   io.Reader
	limiter  *rate.Limiter
	ctx      context.Context
	cancel   context.CancelFunc
	started  time.Time
	bytes    atomic.Int64
	onClose  func(*Transfer)

	idle        *time.Timer
	idleTimeout time.Duration

	closeOnce sync.Once
}

// State returns the current transfer state
func (t *Transfer) State() models.RelayState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// BytesSent is the number of bytes handed to the server so far
func (t *Transfer) BytesSent() int64 {
	return t.bytes.Load()
}

// Commit marks the headers as sent. From here on a failure can only
// truncate the body.
func (t *Transfer) Commit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == models.RelayOpening {
		t.state = models.RelayStreaming
	}
}

// Read forwards upstream bytes untouched
func (t *Transfer) Read(p []byte) (int, error) {
	if t.limiter != nil && len(p) > t.limiter.Burst() {
		p = p[:t.limiter.Burst()]
	}

	n, err := t.reader.Read(p)
	if n > 0 {
		t.bytes.Add(int64(n))
		metrics.RelayBytesTotal.Add(float64(n))
		if t.idle != nil {
			t.idle.Reset(t.idleTimeout)
		}
		if t.limiter != nil {
			if waitErr := t.limiter.WaitN(t.ctx, n); waitErr != nil && err == nil {
				err = waitErr
			}
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		t.finish(models.RelayComplete, nil)
		if t.idle != nil {
			t.idle.Stop()
		}
	default:
		t.finish(models.RelayFailed, err)
	}
	return n, err
}

// Close releases the upstream connection. Safe to call more than once and
// on every exit path; closing before EOF means the caller went away.
func (t *Transfer) Close() error {
	var closeErr error
	t.closeOnce.Do(func() {
		t.finish(models.RelayFailed, errCallerGone)
		if t.idle != nil {
			t.idle.Stop()
		}
		t.cancel()
		closeErr = t.upstream.Close()
		metrics.ActiveTransfers.Dec()
		activeTransfers.Add(-1)

		state, err := t.State(), t.failure()
		metrics.FetchTotal.WithLabelValues(string(state)).Inc()

		entry := logrus.WithFields(logrus.Fields{
			"request":  t.RequestID,
			"video":    t.VideoID,
			"selector": t.Encoding.Selector,
			"bytes":    t.BytesSent(),
			"elapsed":  time.Since(t.started).Round(time.Millisecond),
			"state":    state,
		})
		if state == models.RelayComplete {
			entry.Info("[Relay] Transfer complete")
		} else {
			entry.WithError(err).Warn("[Relay] Transfer terminated")
		}

		t.mu.Lock()
		onClose := t.onClose
		t.mu.Unlock()
		if onClose != nil {
			onClose(t)
		}
	})
	return closeErr
}

var (
	errCallerGone  = errors.New("transfer closed before the upstream stream ended")
	errIdleTimeout = errors.New("no bytes moved within the idle timeout")
)

// expireIdle fails a transfer that moved no bytes for a whole idle period.
// Cancelling the stream context unblocks a Read stuck on the source.
func (t *Transfer) expireIdle() {
	t.finish(models.RelayFailed, errIdleTimeout)
	t.cancel()
}

// Snapshot reports the transfer's progress
func (t *Transfer) Snapshot() models.ProgressResponse {
	t.mu.Lock()
	state, err := t.state, t.err
	t.mu.Unlock()

	snap := models.ProgressResponse{
		RequestID:  t.RequestID,
		VideoID:    t.VideoID,
		Selector:   t.Encoding.Selector,
		State:      state,
		BytesSent:  t.BytesSent(),
		TotalBytes: t.Encoding.ContentLength,
		Progress:   -1,
		Elapsed:    time.Since(t.started).Round(time.Millisecond).Seconds(),
	}
	switch {
	case state == models.RelayComplete:
		snap.Progress = 100
	case snap.TotalBytes > 0:
		snap.Progress = int(min(snap.BytesSent*100/snap.TotalBytes, 99))
	}
	if state == models.RelayFailed {
		snap.Error = failureMessage(err)
	}
	return snap
}

// failureMessage is the caller-safe description of a transfer failure
func failureMessage(err error) string {
	switch {
	case errors.Is(err, errCallerGone):
		return "Download cancelled"
	case errors.Is(err, errIdleTimeout):
		return "Video source stalled"
	default:
		return "Video stream was interrupted"
	}
}

// finish moves to a terminal state once; later calls are ignored
func (t *Transfer) finish(state models.RelayState, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == models.RelayComplete || t.state == models.RelayFailed {
		return
	}
	t.state = state
	t.err = err
}

func (t *Transfer) failure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
