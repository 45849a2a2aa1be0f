package logger

import (
	"net"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxPathLength         = 500
	MaxUserIDLength       = 128
	MaxIPLength           = 64
	MaxErrorMessageLength = 1000
	// MaxGeneralStringLength also applies when a caller passes a non-positive limit.
	MaxGeneralStringLength = 2000
)

// SanitizePath makes a URL path safe to log.
func SanitizePath(path string) string {
	return SanitizeString(path, MaxPathLength)
}

// SanitizeString drops control characters, repairs UTF-8 and truncates to maxLength.
func SanitizeString(s string, maxLength int) string {
	if s == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = MaxGeneralStringLength
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || r == ' ' || r == '\t' {
			b.WriteRune(r)
		}
	}
	s = b.String()
	if len(s) > maxLength {
		s = s[:maxLength] + "..."
	}
	return s
}

// SanitizeIP returns addr when it parses as an IP, and a truncated sanitised form otherwise.
// Forwarded headers are client controlled, so unparseable values still reach the logs but
// cannot forge extra lines.
func SanitizeIP(addr string) string {
	if ip := net.ParseIP(addr); ip != nil {
		return ip.String()
	}
	return SanitizeString(addr, MaxIPLength)
}

// SanitizeUserID makes a user id safe to log.
func SanitizeUserID(userID string) string {
	return SanitizeString(userID, MaxUserIDLength)
}

// SanitizeError makes an error message safe to log.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error(), MaxErrorMessageLength)
}
