package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"video-relay-go/models"
)

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

const (
	mp4Mime  = `video/mp4; codecs="avc1.42001E, mp4a.40.2"`
	webmMime = `video/webm; codecs="vp8.0, vorbis"`
)

func testMetadata() *models.VideoMetadata {
	return &models.VideoMetadata{
		ID:        "dQw4w9WgXcQ",
		Title:     "My Video",
		Duration:  213,
		Thumbnail: "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg",
		Encodings: []models.RawEncoding{
			{Selector: "18", Container: "mp4", QualityLabel: "360p", HasVideo: true, HasAudio: true, ContentLength: 1536, MimeType: mp4Mime},
			{Selector: "137", Container: "mp4", QualityLabel: "1080p", HasVideo: true, MimeType: `video/mp4; codecs="avc1.640028"`},
			{Selector: "22", Container: "mp4", QualityLabel: "720p", HasVideo: true, HasAudio: true, ContentLength: 1048576, MimeType: mp4Mime},
			{Selector: "140", Container: "m4a", HasAudio: true, MimeType: `audio/mp4; codecs="mp4a.40.2"`},
			{Selector: "43", Container: "webm", QualityLabel: "360p", HasVideo: true, HasAudio: true, MimeType: webmMime},
		},
	}
}

// fakeExtractor serves fixed metadata and hands out trackingBody streams
type fakeExtractor struct {
	meta       *models.VideoMetadata
	extractErr error
	openErr    error
	newBody    func(ctx context.Context) io.Reader

	extractCalls atomic.Int32
	openCalls    atomic.Int32

	mu     sync.Mutex
	bodies []*trackingBody
	opened []string
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		meta: testMetadata(),
		newBody: func(context.Context) io.Reader {
			return strings.NewReader("media-bytes")
		},
	}
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) (*models.VideoMetadata, error) {
	f.extractCalls.Add(1)
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.meta, nil
}

func (f *fakeExtractor) Open(ctx context.Context, _ *models.VideoMetadata, enc *models.RawEncoding) (io.ReadCloser, error) {
	f.openCalls.Add(1)
	if f.openErr != nil {
		return nil, f.openErr
	}
	body := &trackingBody{Reader: f.newBody(ctx)}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, body)
	f.opened = append(f.opened, enc.Selector)
	return body, nil
}

func (f *fakeExtractor) lastBody() *trackingBody {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bodies) == 0 {
		return nil
	}
	return f.bodies[len(f.bodies)-1]
}

type trackingBody struct {
	io.Reader
	closed atomic.Bool
}

func (b *trackingBody) Close() error {
	b.closed.Store(true)
	return nil
}

// failingReader yields data and then fails with err
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

// blockingReader blocks until ctx is done
type blockingReader struct {
	ctx context.Context
}

func (r *blockingReader) Read([]byte) (int, error) {
	<-r.ctx.Done()
	return 0, r.ctx.Err()
}

var errUpstreamReset = errors.New("connection reset by peer")

// slowReader yields one byte per chunk, pausing delay before each
type slowReader struct {
	chunks int
	delay  time.Duration
}

func (r *slowReader) Read(p []byte) (int, error) {
	if r.chunks == 0 {
		return 0, io.EOF
	}
	time.Sleep(r.delay)
	r.chunks--
	p[0] = 'x'
	return 1, nil
}
