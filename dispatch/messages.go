package dispatch

import (
	"fmt"
	"strings"
)

// User-facing failure texts. They end up verbatim in chat replies.
const (
	MsgNetworkError = "❌ Network error. Could not reach the classification server"
	MsgServerError  = "❌ Server error. Please try again later"
	MsgTimeout      = "❌ Request timed out. Please try again"
	MsgGeneral      = "❌ Something went wrong. Please try again"
	MsgEmptyFile    = "❌ The file is empty"
	MsgNotAnImage   = "❌ The file is not a valid image"
)

// MsgFileTooLarge renders the size-limit message.
func MsgFileTooLarge(maxBytes int64) string {
	return fmt.Sprintf("❌ File is too large. Maximum size: %s", humanSize(maxBytes))
}

// MsgUnsupportedFormat renders the format message for the allowed extensions.
func MsgUnsupportedFormat(formats []string) string {
	upper := make([]string, len(formats))
	for i, f := range formats {
		upper[i] = strings.ToUpper(f)
	}
	return "❌ Unsupported file format. Use " + joinOr(upper)
}

// MsgTooManyItems renders the per-request cap message.
func MsgTooManyItems(limit int) string {
	return fmt.Sprintf("❌ Too many images in one request. Maximum: %d", limit)
}

func humanSize(n int64) string {
	const mb = 1 << 20
	if n >= mb && n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}
	if n >= mb {
		return fmt.Sprintf("%.1fMB", float64(n)/mb)
	}
	return fmt.Sprintf("%dKB", (n+1023)/1024)
}

func joinOr(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " or " + parts[len(parts)-1]
}
