package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"video-relay-go/config"
	"video-relay-go/models"
	"video-relay-go/utils"
)

func newTestRelay(fake *fakeExtractor) *Relay {
	return NewRelay(fake, &config.Settings{StreamSetupTimeout: time.Second})
}

func TestRelayOpenSelected(t *testing.T) {
	fake := newFakeExtractor()

	transfer, err := newTestRelay(fake).Open(context.Background(), models.SourceRequest{URL: testURL, Selector: "18"}).Get()
	require.NoError(t, err)

	assert.Equal(t, "18", transfer.Encoding.Selector)
	assert.Equal(t, "video/mp4", transfer.ContentType)
	assert.Equal(t, `attachment; filename="My Video.mp4"`, transfer.Disposition)
	assert.Equal(t, models.RelayOpening, transfer.State())

	transfer.Commit()
	assert.Equal(t, models.RelayStreaming, transfer.State())

	body, err := io.ReadAll(transfer)
	require.NoError(t, err)
	assert.Equal(t, "media-bytes", string(body))
	assert.Equal(t, models.RelayComplete, transfer.State())
	assert.Equal(t, int64(len(body)), transfer.BytesSent())

	require.NoError(t, transfer.Close())
	assert.True(t, fake.lastBody().closed.Load())
	assert.Equal(t, models.RelayComplete, transfer.State())
	assert.Equal(t, []string{"18"}, fake.opened)
}

func TestRelayOpenDefaultsToBestCatalogEntry(t *testing.T) {
	fake := newFakeExtractor()

	transfer, err := newTestRelay(fake).Open(context.Background(), models.SourceRequest{URL: testURL}).Get()
	require.NoError(t, err)
	defer transfer.Close()

	assert.Equal(t, "22", transfer.Encoding.Selector)
}

func TestRelayOpenMatchesResolvedContainer(t *testing.T) {
	fake := newFakeExtractor()
	res, err := NewResolver(fake).Resolve(context.Background(), testURL).Get()
	require.NoError(t, err)

	for _, entry := range res.Catalog {
		transfer, err := newTestRelay(fake).Open(context.Background(), models.SourceRequest{URL: testURL, Selector: entry.Selector}).Get()
		require.NoError(t, err)
		assert.Equal(t, entry.Container, transfer.Encoding.Container)
		assert.True(t, strings.HasSuffix(transfer.Disposition, "."+entry.Container+`"`))
		require.NoError(t, transfer.Close())
	}
}

func TestRelayNoSuitableFormat(t *testing.T) {
	tests := map[string]struct {
		selector    string
		meta        *models.VideoMetadata
		wantExtract int32
	}{
		"unknown selector":   {selector: "12345", meta: testMetadata(), wantExtract: 1},
		"malformed selector": {selector: "abc", meta: testMetadata(), wantExtract: 0},
		"no playable format": {selector: "", meta: &models.VideoMetadata{ID: "dQw4w9WgXcQ"}, wantExtract: 1},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			fake := newFakeExtractor()
			fake.meta = tt.meta

			result := newTestRelay(fake).Open(context.Background(), models.SourceRequest{URL: testURL, Selector: tt.selector})
			require.True(t, result.IsError())
			assert.True(t, utils.IsKind(result.Error(), utils.KindNoSuitableFormat))
			assert.Equal(t, tt.wantExtract, fake.extractCalls.Load())
			assert.Zero(t, fake.openCalls.Load())
		})
	}
}

func TestRelayInvalidURL(t *testing.T) {
	fake := newFakeExtractor()
	result := newTestRelay(fake).Open(context.Background(), models.SourceRequest{URL: "ftp://example.com"})

	require.True(t, result.IsError())
	assert.True(t, utils.IsKind(result.Error(), utils.KindInvalidInput))
	assert.Zero(t, fake.extractCalls.Load())
}

func TestRelaySetupFailures(t *testing.T) {
	t.Run("open error", func(t *testing.T) {
		fake := newFakeExtractor()
		fake.openErr = errUpstreamReset

		result := newTestRelay(fake).Open(context.Background(), models.SourceRequest{URL: testURL})
		require.True(t, result.IsError())
		assert.Equal(t, utils.KindUpstream, utils.KindOf(result.Error()))
		assert.ErrorIs(t, result.Error(), errUpstreamReset)
	})

	t.Run("empty stream", func(t *testing.T) {
		fake := newFakeExtractor()
		fake.newBody = func(context.Context) io.Reader { return strings.NewReader("") }

		result := newTestRelay(fake).Open(context.Background(), models.SourceRequest{URL: testURL})
		require.True(t, result.IsError())
		assert.Equal(t, utils.KindUpstream, utils.KindOf(result.Error()))
		assert.True(t, fake.lastBody().closed.Load())
	})

	t.Run("first read fails", func(t *testing.T) {
		fake := newFakeExtractor()
		fake.newBody = func(context.Context) io.Reader { return &failingReader{err: errUpstreamReset} }

		result := newTestRelay(fake).Open(context.Background(), models.SourceRequest{URL: testURL})
		require.True(t, result.IsError())
		assert.Equal(t, utils.KindUpstream, utils.KindOf(result.Error()))
		assert.True(t, fake.lastBody().closed.Load())
	})

	t.Run("setup timeout", func(t *testing.T) {
		fake := newFakeExtractor()
		fake.newBody = func(ctx context.Context) io.Reader { return &blockingReader{ctx: ctx} }
		relay := NewRelay(fake, &config.Settings{StreamSetupTimeout: 20 * time.Millisecond})

		result := relay.Open(context.Background(), models.SourceRequest{URL: testURL})
		require.True(t, result.IsError())
		assert.Equal(t, utils.KindTimeout, utils.KindOf(result.Error()))
		assert.True(t, fake.lastBody().closed.Load())
	})
}

func TestTransferMidStreamFailure(t *testing.T) {
	fake := newFakeExtractor()
	fake.newBody = func(context.Context) io.Reader {
		return &failingReader{data: []byte("partial"), err: errUpstreamReset}
	}

	transfer, err := newTestRelay(fake).Open(context.Background(), models.SourceRequest{URL: testURL}).Get()
	require.NoError(t, err)
	transfer.Commit()

	body, err := io.ReadAll(transfer)
	assert.ErrorIs(t, err, errUpstreamReset)
	assert.Equal(t, "partial", string(body))
	assert.Equal(t, models.RelayFailed, transfer.State())

	require.NoError(t, transfer.Close())
	assert.True(t, fake.lastBody().closed.Load())
	assert.Equal(t, models.RelayFailed, transfer.State())
}

func TestTransferCloseBeforeEOF(t *testing.T) {
	fake := newFakeExtractor()
	fake.newBody = func(context.Context) io.Reader {
		return io.MultiReader(strings.NewReader("first"), strings.NewReader(strings.Repeat("x", 1<<20)))
	}

	transfer, err := newTestRelay(fake).Open(context.Background(), models.SourceRequest{URL: testURL}).Get()
	require.NoError(t, err)
	transfer.Commit()

	buf := make([]byte, 3)
	_, err = transfer.Read(buf)
	require.NoError(t, err)

	require.NoError(t, transfer.Close())
	require.NoError(t, transfer.Close())
	assert.Equal(t, models.RelayFailed, transfer.State())
	assert.True(t, fake.lastBody().closed.Load())
}

func TestTransferActiveCount(t *testing.T) {
	fake := newFakeExtractor()
	before := ActiveTransfers()

	transfer, err := newTestRelay(fake).Open(context.Background(), models.SourceRequest{URL: testURL}).Get()
	require.NoError(t, err)
	assert.Equal(t, before+1, ActiveTransfers())

	require.NoError(t, transfer.Close())
	assert.Equal(t, before, ActiveTransfers())
}

func TestTransferRateLimit(t *testing.T) {
	fake := newFakeExtractor()
	payload := strings.Repeat("y", 64*1024)
	fake.newBody = func(context.Context) io.Reader { return strings.NewReader(payload) }
	relay := NewRelay(fake, &config.Settings{StreamSetupTimeout: time.Second, StreamRateLimit: 8 * 1024 * 1024})

	transfer, err := relay.Open(context.Background(), models.SourceRequest{URL: testURL}).Get()
	require.NoError(t, err)
	defer transfer.Close()

	body, err := io.ReadAll(transfer)
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))
	assert.Equal(t, models.RelayComplete, transfer.State())
}

func TestTransferReadAfterCloseFails(t *testing.T) {
	fake := newFakeExtractor()
	fake.newBody = func(ctx context.Context) io.Reader {
		return io.MultiReader(strings.NewReader("head"), &blockingReader{ctx: ctx})
	}

	transfer, err := newTestRelay(fake).Open(context.Background(), models.SourceRequest{URL: testURL}).Get()
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := transfer.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "head", string(buf[:n]))

	require.NoError(t, transfer.Close())
	_, err = transfer.Read(buf)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTransferIdleTimeout(t *testing.T) {
	fake := newFakeExtractor()
	fake.newBody = func(ctx context.Context) io.Reader {
		return io.MultiReader(strings.NewReader("head"), &blockingReader{ctx: ctx})
	}
	relay := NewRelay(fake, &config.Settings{StreamSetupTimeout: time.Second, StreamIdleTimeout: 50 * time.Millisecond})
	before := ActiveTransfers()

	transfer, err := relay.Open(context.Background(), models.SourceRequest{URL: testURL}).Get()
	require.NoError(t, err)
	transfer.Commit()

	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(transfer)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("read still blocked after the idle timeout")
	}
	assert.Equal(t, models.RelayFailed, transfer.State())
	assert.Equal(t, "Video source stalled", transfer.Snapshot().Error)

	require.NoError(t, transfer.Close())
	assert.True(t, fake.lastBody().closed.Load())
	assert.Equal(t, before, ActiveTransfers())
}

func TestTransferIdleTimeoutResetsOnProgress(t *testing.T) {
	fake := newFakeExtractor()
	fake.newBody = func(context.Context) io.Reader {
		return &slowReader{chunks: 6, delay: 30 * time.Millisecond}
	}
	relay := NewRelay(fake, &config.Settings{StreamSetupTimeout: time.Second, StreamIdleTimeout: 100 * time.Millisecond})

	transfer, err := relay.Open(context.Background(), models.SourceRequest{URL: testURL}).Get()
	require.NoError(t, err)
	defer transfer.Close()

	body, err := io.ReadAll(transfer)
	require.NoError(t, err)
	assert.Equal(t, "xxxxxx", string(body))
	assert.Equal(t, models.RelayComplete, transfer.State())
}

func TestRelayTrackProgress(t *testing.T) {
	fake := newFakeExtractor()
	relay := NewRelay(fake, &config.Settings{StreamSetupTimeout: time.Second, ProgressRetention: time.Minute})

	transfer, err := relay.Open(context.Background(), models.SourceRequest{URL: testURL, Selector: "18"}).Get()
	require.NoError(t, err)
	transfer.RequestID = "req-1"
	relay.Track(transfer)
	transfer.Commit()

	snap, ok := relay.Progress("req-1")
	require.True(t, ok)
	assert.Equal(t, models.RelayStreaming, snap.State)
	assert.Equal(t, "dQw4w9WgXcQ", snap.VideoID)
	assert.Equal(t, int64(1536), snap.TotalBytes)

	_, err = io.ReadAll(transfer)
	require.NoError(t, err)
	require.NoError(t, transfer.Close())

	snap, ok = relay.Progress("req-1")
	require.True(t, ok)
	assert.Equal(t, models.RelayComplete, snap.State)
	assert.Equal(t, int64(len("media-bytes")), snap.BytesSent)
	assert.Equal(t, 100, snap.Progress)
	assert.Empty(t, snap.Error)

	_, ok = relay.Progress("req-2")
	assert.False(t, ok)
}
