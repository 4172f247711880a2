package textutil

import "strings"

// NormalizeStringMap cleans free-form key/value metadata before it is
// forwarded to a payment provider: keys and values are trimmed, entries with
// blank keys dropped, and a map left empty collapses to nil so callers can
// omit the field entirely.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		result[key] = strings.TrimSpace(value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
