package llm

import (
	"regexp"
	"strings"
)

// piiKeys are field names whose values never leave the process.
var piiKeys = map[string]bool{
	"email":          true,
	"phone":          true,
	"address":        true,
	"name":           true,
	"full_name":      true,
	"ssn":            true,
	"account_number": true,
	"accountnumber":  true,
	"iban":           true,
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`)
)

// Redacted replaces removed values so the structure stays readable.
const Redacted = "[redacted]"

// Sanitize strips personally identifying information from a decoded
// JSON value before it is embedded in a prompt. Keys matching the PII
// list are redacted wholesale; free text is scrubbed for emails and
// phone numbers.
func Sanitize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if piiKeys[strings.ToLower(k)] {
				out[k] = Redacted
				continue
			}
			out[k] = Sanitize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Sanitize(val)
		}
		return out
	case string:
		return SanitizeText(t)
	default:
		return v
	}
}

// SanitizeText scrubs emails and phone numbers from free text.
func SanitizeText(s string) string {
	s = emailPattern.ReplaceAllString(s, Redacted)
	s = phonePattern.ReplaceAllString(s, Redacted)
	return s
}
