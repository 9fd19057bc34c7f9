package utils

import (
	"fmt"
	"mime"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"video-relay-go/config"
)

var (
	// Anything but word characters, whitespace and dashes
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_\s-]`)
	// Runs of whitespace
	multipleSpaces = regexp.MustCompile(`\s+`)
)

// SanitizeTitle turns a video title into a filename stem that is safe both
// on disk and inside a quoted Content-Disposition value.
func SanitizeTitle(title string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		title,
	)
	if err != nil {
		folded = title
	}

	name := unsafeChars.ReplaceAllString(folded, "")
	name = multipleSpaces.ReplaceAllString(name, " ")
	name = strings.Trim(name, " _-")
	if len(name) > 200 {
		name = strings.TrimSpace(name[:200])
	}
	if name == "" {
		return config.FallbackFilename
	}
	return name
}

// AttachmentDisposition builds the Content-Disposition header for a relayed file
func AttachmentDisposition(title, container string) string {
	return fmt.Sprintf(`attachment; filename="%s.%s"`, SanitizeTitle(title), container)
}

// BaseMimeType strips parameters: `video/mp4; codecs="avc1"` -> "video/mp4"
func BaseMimeType(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mediaType
	}
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// ContentTypeFromMime returns the outbound content type for an encoding
func ContentTypeFromMime(mimeType string) string {
	if base := BaseMimeType(mimeType); base != "" {
		return base
	}
	return config.FallbackContentType
}

// GetExtFromMimeType extracts file extension from MIME type
func GetExtFromMimeType(mimeType string) string {
	switch BaseMimeType(mimeType) {
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	case "video/3gpp":
		return "3gp"
	case "video/x-flv":
		return "flv"
	case "audio/mp4":
		return "m4a"
	case "audio/webm":
		return "webm"
	case "audio/mpeg":
		return "mp3"
	case "audio/ogg":
		return "ogg"
	case "":
		return "mp4"
	default:
		// Try to extract from MIME type
		if _, sub, ok := strings.Cut(BaseMimeType(mimeType), "/"); ok && sub != "" {
			return sub
		}
		return "bin"
	}
}

// ParseCodecs splits the codecs parameter into a video and an audio codec.
// `video/mp4; codecs="avc1.42001E, mp4a.40.2"` -> ("avc1.42001E", "mp4a.40.2")
func ParseCodecs(mimeType string) (video, audio string) {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "", ""
	}
	isAudioOnly := strings.HasPrefix(BaseMimeType(mimeType), "audio/")

	for _, codec := range strings.Split(params["codecs"], ",") {
		codec = strings.TrimSpace(codec)
		if codec == "" {
			continue
		}
		if isAudioCodec(codec) || isAudioOnly {
			if audio == "" {
				audio = codec
			}
			continue
		}
		if video == "" {
			video = codec
		}
	}
	return video, audio
}

func isAudioCodec(codec string) bool {
	for _, prefix := range []string{"mp4a", "opus", "vorbis", "ac-3", "ec-3", "flac"} {
		if strings.HasPrefix(codec, prefix) {
			return true
		}
	}
	return false
}
