package utils

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	videoIDPattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	selectorPattern  = regexp.MustCompile(`^[0-9]{1,6}$`)
	requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

	// Hosts accepted after stripping "www." and "m."
	sourceHosts = map[string]bool{
		"youtube.com":          true,
		"music.youtube.com":    true,
		"youtu.be":             true,
		"youtube-nocookie.com": true,
	}

	// Path prefixes followed by the video id
	idPathPrefixes = []string{"/shorts/", "/embed/", "/v/", "/live/"}
)

// NormalizeURL trims raw and checks that it looks like a source video URL.
// It never touches the network.
func NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", NewError(KindInvalidInput, "URL is required", nil)
	}
	if _, err := ExtractVideoID(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}

// ExtractVideoID extracts the video ID from a source URL
func ExtractVideoID(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", NewError(KindInvalidInput, "Invalid URL", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return "", NewError(KindInvalidInput, "Invalid URL: unsupported scheme", nil)
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	if !sourceHosts[host] {
		return "", NewError(KindInvalidInput, "Invalid URL: unsupported host", nil)
	}

	var id string
	switch {
	case host == "youtu.be":
		id = strings.Trim(parsed.Path, "/")
	case parsed.Path == "/watch":
		id = parsed.Query().Get("v")
	default:
		for _, prefix := range idPathPrefixes {
			if rest, ok := strings.CutPrefix(parsed.Path, prefix); ok {
				id, _, _ = strings.Cut(rest, "/")
				break
			}
		}
	}

	if !videoIDPattern.MatchString(id) {
		return "", NewError(KindInvalidInput, "Invalid URL: no video id", nil)
	}
	return id, nil
}

// ValidateSelector checks the shape of a selector id. Empty is valid and
// means "best available".
func ValidateSelector(selector string) bool {
	return selector == "" || selectorPattern.MatchString(selector)
}

// ValidateRequestID checks the shape of a request id handed out in X-Request-ID
func ValidateRequestID(id string) bool {
	return requestIDPattern.MatchString(id)
}
