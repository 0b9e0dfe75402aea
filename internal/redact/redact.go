// Package redact strips likely personally-identifying substrings from
// free-form values before they are persisted into audit entries or the
// activity log. It is a best-effort filter, not a certified anonymization
// method: false negatives and false positives are both expected.
package redact

import "regexp"

// Placeholder replaces every matched span.
const Placeholder = "[REDACTED]"

var (
	emailRe      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRe      = regexp.MustCompile(`(\+?1?[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}(\s*ext\.?\s*[0-9]+)?`)
	ssnRe        = regexp.MustCompile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`)
	longDigitsRe = regexp.MustCompile(`\b[0-9]{10,16}\b`)
)

// Long digit runs are replaced before phone numbers so that a 12-16 digit
// card-like run is consumed whole rather than having a 10-digit prefix
// matched as a phone number.
func redactString(s string) string {
	s = emailRe.ReplaceAllString(s, Placeholder)
	s = ssnRe.ReplaceAllString(s, Placeholder)
	s = longDigitsRe.ReplaceAllString(s, Placeholder)
	s = phoneRe.ReplaceAllString(s, Placeholder)
	return s
}

// String redacts a single string value.
func String(s string) string {
	return redactString(s)
}

// Value recursively redacts string values inside maps and slices. Non-string
// leaves and nil are returned unchanged.
func Value(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return redactString(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Value(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = redactString(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = Value(item)
		}
		return out
	default:
		return v
	}
}

// Metadata redacts a metadata map in the shape used by audit entries and
// activity log records. Returns nil for nil input.
func Metadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Value(v)
	}
	return out
}
