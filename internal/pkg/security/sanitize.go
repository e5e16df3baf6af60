package security

import (
	"net/http"
	"strings"
	"unicode"
)

// SanitizeForLog escapes line breaks, drops control characters and caps the
// result at maxLen runes including any ellipsis.
func SanitizeForLog(s string, maxLen int) string {
	if s == "" || maxLen <= 0 {
		return ""
	}

	var b strings.Builder
	count := 0
	for _, r := range s {
		var repl string
		switch r {
		case '\n':
			repl = `\n`
		case '\r':
			repl = `\r`
		case '\t':
			repl = " "
		default:
			if unicode.IsControl(r) {
				continue
			}
			repl = string(r)
		}

		n := len([]rune(repl))
		if count+n > maxLen {
			return truncateWithEllipsis(b.String(), maxLen)
		}
		b.WriteString(repl)
		count += n
	}

	return b.String()
}

func truncateWithEllipsis(s string, maxLen int) string {
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:min(len(runes), maxLen)])
	}
	if len(runes) > maxLen-3 {
		runes = runes[:maxLen-3]
	}
	return string(runes) + "..."
}

var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"cookie":        true,
	"set-cookie":    true,
}

// MaskSensitiveHeaders returns a copy of headers with credentials masked.
func MaskSensitiveHeaders(headers http.Header) http.Header {
	if headers == nil {
		return nil
	}

	masked := make(http.Header, len(headers))
	for name, values := range headers {
		if sensitiveHeaders[strings.ToLower(name)] {
			masked[name] = []string{"[REDACTED]"}
			continue
		}
		masked[name] = append([]string(nil), values...)
	}
	return masked
}
