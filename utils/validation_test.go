package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	valid := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"  https://youtube.com/watch?v=dQw4w9WgXcQ&t=42s  ",
		"http://m.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://music.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ?autoplay=1",
		"https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ",
		"https://www.youtube.com/live/dQw4w9WgXcQ",
	}
	for _, raw := range valid {
		t.Run(raw, func(t *testing.T) {
			normalized, err := NormalizeURL(raw)
			require.NoError(t, err)
			assert.Equal(t, strings.TrimSpace(raw), normalized)
		})
	}
}

func TestNormalizeURLRejects(t *testing.T) {
	invalid := map[string]string{
		"empty":         "",
		"blank":         "   ",
		"not a url":     "hello world",
		"ftp scheme":    "ftp://youtube.com/watch?v=dQw4w9WgXcQ",
		"other host":    "https://vimeo.com/123456",
		"lookalike":     "https://notyoutube.com/watch?v=dQw4w9WgXcQ",
		"no id":         "https://www.youtube.com/watch",
		"short id":      "https://youtu.be/abc",
		"bad chars":     "https://www.youtube.com/watch?v=dQw4w9WgX!Q",
		"channel page":  "https://www.youtube.com/@somechannel",
		"playlist only": "https://www.youtube.com/playlist?list=PL123",
	}
	for name, raw := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := NormalizeURL(raw)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindInvalidInput))
		})
	}
}

func TestExtractVideoID(t *testing.T) {
	tests := map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ":   "dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ?si=abc":           "dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ/":   "dQw4w9WgXcQ",
		"https://WWW.YOUTUBE.COM/watch?v=dQw4w9WgXcQ":   "dQw4w9WgXcQ",
		"https://www.youtube.com/v/dQw4w9WgXcQ?version": "dQw4w9WgXcQ",
	}
	for raw, want := range tests {
		id, err := ExtractVideoID(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, id, raw)
	}
}

func TestValidateSelector(t *testing.T) {
	assert.True(t, ValidateSelector(""))
	assert.True(t, ValidateSelector("18"))
	assert.True(t, ValidateSelector("137"))
	assert.False(t, ValidateSelector("abc"))
	assert.False(t, ValidateSelector("18;rm"))
	assert.False(t, ValidateSelector("1234567"))
}

func TestValidateRequestID(t *testing.T) {
	assert.True(t, ValidateRequestID("V1StGXR8_Z5jdHi6"))
	assert.True(t, ValidateRequestID("a-b"))
	assert.False(t, ValidateRequestID(""))
	assert.False(t, ValidateRequestID("../etc/passwd"))
	assert.False(t, ValidateRequestID(strings.Repeat("a", 65)))
}
