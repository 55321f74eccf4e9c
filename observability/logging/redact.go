package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces the value of every sensitive attribute.
const RedactedValue = "[REDACTED]"

// sensitiveKeys are matched case-insensitively with '-' and '_' ignored.
var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"token":         {},
	"bearer":        {},
	"secret":        {},
	"jwtsecret":     {},
	"password":      {},
	"privatekey":    {},
	"dsn":           {},
}

func canonicalKey(key string) string {
	return strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(key)))
}

// IsSensitive reports whether values logged under key are masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[canonicalKey(key)]
	return ok
}

// MaskValue returns the placeholder for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// redact masks a sensitive attribute. Group members are walked so nested
// secrets are caught too.
func redact(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup {
		members := attr.Value.Group()
		out := make([]any, len(members))
		for i, m := range members {
			out[i] = redact(m)
		}
		return slog.Group(attr.Key, out...)
	}
	if !IsSensitive(attr.Key) {
		return attr
	}
	return slog.String(attr.Key, MaskValue(attr.Value.String()))
}
