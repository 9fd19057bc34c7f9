package utils

import (
	"fmt"
	"strconv"
)

// SizeUnavailable is shown when the byte size of an encoding is unknown
const SizeUnavailable = "N/A"

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders bytes with binary (1024) units and two decimals:
// 1536 -> "1.50 KB", 1048576 -> "1.00 MB". Zero or negative -> "N/A".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return SizeUnavailable
	}
	value := float64(bytes)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", value, sizeUnits[unit])
}

// FormatDuration renders seconds as H:MM:SS, or M:SS under an hour
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// ParseQuality reads the leading number of a quality label.
// "1080p" -> 1080, "720p60" -> 720, "Auto" or "" -> 0.
func ParseQuality(label string) int {
	end := 0
	for end < len(label) && label[end] >= '0' && label[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(label[:end])
	if err != nil {
		return 0
	}
	return n
}
