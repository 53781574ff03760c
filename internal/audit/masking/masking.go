// Package masking redacts contact details before they reach the audit trail.
package masking

import "strings"

const maskToken = "****"

// Mask keeps the last four characters of value. Shorter values are fully
// masked.
func Mask(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// Fields returns a copy of metadata with the named string fields masked.
func Fields(metadata map[string]any, keys ...string) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	masked := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if strings.TrimSpace(key) == "" {
			continue
		}
		masked[key] = value
	}
	for _, key := range keys {
		if s, ok := masked[key].(string); ok {
			masked[key] = Mask(s)
		}
	}
	return masked
}
