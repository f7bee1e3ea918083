// Package redact masks personal data before it reaches logs or trace files.
package redact

import (
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
)

// SetEnabled toggles PII redaction.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text redacts emails and phone numbers when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

// Identity masks a shopper identity, keeping the last four characters so
// operators can still correlate sessions.
func Identity(in string) string {
	in = strings.TrimSpace(in)
	if !enabled.Load() || in == "" {
		return in
	}
	runes := []rune(in)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}

// IdentityAttr is a log attribute carrying a masked identity.
func IdentityAttr(in string) slog.Attr {
	return slog.String("identity", Identity(in))
}
