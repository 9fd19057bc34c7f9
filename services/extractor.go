package services

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"video-relay-go/config"
	"video-relay-go/metrics"
	"video-relay-go/models"
	"video-relay-go/utils"
)

// Extractor is the third-party source: one call for metadata, one for bytes.
// Implementations must not retry.
type Extractor interface {
	// Extract resolves a validated URL into metadata
	Extract(ctx context.Context, rawURL string) (*models.VideoMetadata, error)
	// Open starts the byte stream of one encoding of meta
	Open(ctx context.Context, meta *models.VideoMetadata, enc *models.RawEncoding) (io.ReadCloser, error)
}

// YouTubeExtractor implements Extractor on top of github.com/kkdai/youtube
type YouTubeExtractor struct {
	metadataClient *youtube.Client
	downloadClient *youtube.Client
	httpClient     *http.Client
	timeout        time.Duration
	cache          MetadataCache

	// streamURL resolves the signed media URL of a format
	streamURL func(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
}

// NewYouTubeExtractor wires the pooled HTTP clients from settings.
// cache may be nil, in which case every Extract goes upstream.
func NewYouTubeExtractor(settings *config.Settings, cache MetadataCache) *YouTubeExtractor {
	return NewYouTubeExtractorWithClients(
		settings.ExtractClient(),
		settings.DownloadClient(),
		settings.ExtractTimeout,
		cache,
	)
}

// NewYouTubeExtractorWithClients is NewYouTubeExtractor with explicit HTTP clients
func NewYouTubeExtractorWithClients(metadata, download *http.Client, timeout time.Duration, cache MetadataCache) *YouTubeExtractor {
	e := &YouTubeExtractor{
		metadataClient: &youtube.Client{HTTPClient: metadata},
		downloadClient: &youtube.Client{HTTPClient: download},
		httpClient:     download,
		timeout:        timeout,
		cache:          cache,
	}
	e.streamURL = e.downloadClient.GetStreamURLContext
	return e
}

// Extract fetches video metadata. The call is bounded by the extract timeout
// and is not interrupted otherwise.
func (e *YouTubeExtractor) Extract(ctx context.Context, rawURL string) (*models.VideoMetadata, error) {
	videoID, err := utils.ExtractVideoID(rawURL)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if video, ok := e.cache.Get(ctx, videoID); ok {
			metrics.CacheHitsTotal.Inc()
			return NewVideoMetadata(video), nil
		}
		metrics.CacheMissesTotal.Inc()
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	video, err := e.metadataClient.GetVideoContext(ctx, videoID)
	metrics.UpstreamDuration.WithLabelValues("metadata").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, ClassifyError(err)
	}

	if len(video.Formats) == 0 && video.HLSManifestURL != "" {
		return nil, utils.NewError(utils.KindUnsupported, "Live streams are not supported", nil)
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, videoID, video); err != nil {
			logrus.WithError(err).WithField("video", videoID).Warn("[Extract] Failed to cache metadata")
		}
	}

	return NewVideoMetadata(video), nil
}

// Open starts the upstream byte stream of enc with a single GET. The body is
// read only as fast as the caller drains it.
func (e *YouTubeExtractor) Open(ctx context.Context, meta *models.VideoMetadata, enc *models.RawEncoding) (io.ReadCloser, error) {
	if enc.Format == nil {
		return nil, utils.NewError(utils.KindNoSuitableFormat, "No suitable format found", nil)
	}

	video := &youtube.Video{ID: meta.ID, Title: meta.Title}

	start := time.Now()
	defer func() {
		metrics.UpstreamDuration.WithLabelValues("stream").Observe(time.Since(start).Seconds())
	}()

	streamURL, err := e.streamURL(ctx, video, enc.Format)
	if err != nil {
		return nil, ClassifyError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, utils.NewError(utils.KindUpstream, "Failed to fetch video from the source", err)
	}
	req.Header.Set("Origin", "https://www.youtube.com")
	req.Header.Set("Referer", "https://www.youtube.com/")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, ClassifyError(err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, ClassifyError(youtube.ErrUnexpectedStatusCode(resp.StatusCode))
	}
	return resp.Body, nil
}

// NewVideoMetadata maps a youtube video onto the pipeline's metadata.
// Encodings keep source order; repeated itags (alternate audio tracks) keep the first listing.
func NewVideoMetadata(video *youtube.Video) *models.VideoMetadata {
	meta := &models.VideoMetadata{
		ID:        video.ID,
		Title:     video.Title,
		Duration:  int64(video.Duration / time.Second),
		Thumbnail: bestThumbnail(video.Thumbnails),
		Encodings: make([]models.RawEncoding, 0, len(video.Formats)),
	}
	if meta.Duration < 0 {
		meta.Duration = 0
	}

	for i := range video.Formats {
		f := &video.Formats[i]
		videoCodec, audioCodec := utils.ParseCodecs(f.MimeType)
		meta.Encodings = append(meta.Encodings, models.RawEncoding{
			Selector:      strconv.Itoa(f.ItagNo),
			Container:     utils.GetExtFromMimeType(f.MimeType),
			QualityLabel:  f.QualityLabel,
			VideoCodec:    videoCodec,
			AudioCodec:    audioCodec,
			HasVideo:      hasVideo(f),
			HasAudio:      hasAudio(f),
			ContentLength: f.ContentLength,
			MimeType:      f.MimeType,
			Format:        f,
		})
	}

	meta.Encodings = lo.UniqBy(meta.Encodings, func(enc models.RawEncoding) string {
		return enc.Selector
	})
	return meta
}

func hasVideo(f *youtube.Format) bool {
	return strings.HasPrefix(utils.BaseMimeType(f.MimeType), "video/") &&
		(f.QualityLabel != "" || f.Width > 0 || f.Height > 0)
}

func hasAudio(f *youtube.Format) bool {
	return f.AudioChannels > 0 || f.AudioQuality != ""
}

// bestThumbnail picks the widest thumbnail, falling back to the last listed
func bestThumbnail(thumbs youtube.Thumbnails) string {
	if len(thumbs) == 0 {
		return ""
	}
	best := thumbs[len(thumbs)-1]
	for _, t := range thumbs {
		if t.Width > best.Width {
			best = t
		}
	}
	return best.URL
}

// ClassifyError maps backend and transport errors onto the error taxonomy
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var classified *utils.Error
	if errors.As(err, &classified) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return utils.NewError(utils.KindTimeout, "Timed out talking to the video source", err)
	case errors.Is(err, context.Canceled):
		return utils.NewError(utils.KindUpstream, "Request to the video source was cancelled", err)
	case errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrLoginRequired):
		return utils.NewError(utils.KindNotFound, "Video is private or unavailable", err)
	case errors.Is(err, youtube.ErrNotPlayableInEmbed),
		errors.Is(err, youtube.ErrInvalidCharactersInVideoID),
		errors.Is(err, youtube.ErrVideoIDMinLength):
		return utils.NewError(utils.KindUnsupported, "URL does not point to a downloadable video", err)
	}

	var statusErr *youtube.ErrPlayabiltyStatus
	if errors.As(err, &statusErr) {
		switch statusErr.Status {
		case "ERROR", "LOGIN_REQUIRED":
			return utils.NewError(utils.KindNotFound, "Video not found", err)
		default:
			return utils.NewError(utils.KindUnsupported, "Video is not playable", err)
		}
	}

	var codeErr youtube.ErrUnexpectedStatusCode
	if errors.As(err, &codeErr) && int(codeErr) == http.StatusNotFound {
		return utils.NewError(utils.KindNotFound, "Video not found", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return utils.NewError(utils.KindTimeout, "Timed out talking to the video source", err)
	}

	return utils.NewError(utils.KindUpstream, "Failed to fetch video from the source", err)
}
