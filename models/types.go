package models

import "github.com/kkdai/youtube/v2"

// SourceRequest is the caller input for resolve and fetch.
// Selector is only meaningful for fetch; empty means "best available".
type SourceRequest struct {
	URL      string `json:"url" query:"url"`
	Selector string `json:"selector,omitempty" query:"selector"`
}

// VideoMetadata is one resolved source video. Built fresh per call, never mutated.
type VideoMetadata struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Duration  int64         `json:"duration"` // seconds
	Thumbnail string        `json:"thumbnail"`
	Encodings []RawEncoding `json:"encodings"`
}

// RawEncoding is one rendition as listed by the source, before filtering
type RawEncoding struct {
	Selector      string `json:"selector"`
	Container     string `json:"container"`
	QualityLabel  string `json:"qualityLabel"`
	VideoCodec    string `json:"videoCodec,omitempty"`
	AudioCodec    string `json:"audioCodec,omitempty"`
	HasVideo      bool   `json:"hasVideo"`
	HasAudio      bool   `json:"hasAudio"`
	ContentLength int64  `json:"contentLength,omitempty"` // 0 = unknown
	MimeType      string `json:"mimeType"`

	// Format is the backend's own description, needed to open the stream.
	// Nil for encodings that did not come from the youtube backend.
	Format *youtube.Format `json:"-"`
}

// CatalogEntry is one display-ready quality option
type CatalogEntry struct {
	Quality   string `json:"quality"`
	Selector  string `json:"selector"`
	Container string `json:"container"`
	FileSize  string `json:"fileSize"`
}

// Catalog is ordered by descending numeric quality, one entry per quality label
type Catalog []CatalogEntry

// ResolveResult is the outcome of a successful resolve call
type ResolveResult struct {
	Metadata *VideoMetadata
	Catalog  Catalog
}

// RelayState tracks one fetch transfer
type RelayState string

const (
	RelayOpening   RelayState = "opening"
	RelayStreaming RelayState = "streaming"
	RelayComplete  RelayState = "complete"
	RelayFailed    RelayState = "failed"
)

// ResolveResponse is the JSON body returned by resolve
type ResolveResponse struct {
	Title     string           `json:"title"`
	Thumbnail string           `json:"thumbnail"`
	Duration  string           `json:"duration"` // H:MM:SS or M:SS
	Formats   []FormatResponse `json:"formats"`
}

// FormatResponse is a catalog entry plus its follow-up fetch reference
type FormatResponse struct {
	Quality   string `json:"quality"`
	Selector  string `json:"selector"`
	Container string `json:"container"`
	FileSize  string `json:"fileSize"`
	URL       string `json:"url"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse for health check
type HealthResponse struct {
	Status          string  `json:"status"`
	Timestamp       int64   `json:"timestamp"`
	UptimeSeconds   float64 `json:"uptimeSeconds"`
	ActiveTransfers int64   `json:"activeTransfers"`
}

// ProgressResponse is returned when polling a transfer by request id
type ProgressResponse struct {
	RequestID  string     `json:"requestId"`
	VideoID    string     `json:"videoId"`
	Selector   string     `json:"selector"`
	State      RelayState `json:"state"`
	BytesSent  int64      `json:"bytesSent"`
	TotalBytes int64      `json:"totalBytes,omitempty"`
	Progress   int        `json:"progress"` // percent, -1 when the size is unknown
	Elapsed    float64    `json:"elapsedSeconds"`
	Error      string     `json:"error,omitempty"`
}
