// ABOUTME: PII detection and redaction for audit text
// ABOUTME: Replaces SSNs, e-mail addresses and phone numbers with a fixed marker

package audit

import "regexp"

// Marker replaces each redacted match.
const Marker = "[REDACTED]"

var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}\b`),
}

// Redact masks PII in text and reports whether any was found.
func Redact(text string) (string, bool) {
	detected := false
	for _, p := range piiPatterns {
		if p.MatchString(text) {
			detected = true
			text = p.ReplaceAllString(text, Marker)
		}
	}
	return text, detected
}
