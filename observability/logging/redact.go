package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log records.
const RedactedValue = "[REDACTED]"

// plainKeys may be logged verbatim. Anything else passed through MaskField is
// treated as a secret.
var plainKeys = map[string]struct{}{
	"service":   {},
	"env":       {},
	"error":     {},
	"route":     {},
	"method":    {},
	"status":    {},
	"requestid": {},
	"module":    {},
	"pid":       {},
	"user":      {},
	"amount":    {},
}

// IsPlain reports whether key is logged without redaction.
func IsPlain(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField keeps value only when key is a plain key. Empty values pass
// through so a missing secret stays visible in startup logs.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsPlain(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// TokenFingerprint logs a short digest of a bearer credential so rejected
// requests can be correlated without exposing the token.
func TokenFingerprint(key, authorization string) slog.Attr {
	token := strings.TrimSpace(authorization)
	if scheme, rest, ok := strings.Cut(token, " "); ok && strings.EqualFold(scheme, "bearer") {
		token = strings.TrimSpace(rest)
	}
	if token == "" {
		return slog.String(key, "")
	}
	sum := sha256.Sum256([]byte(token))
	return slog.String(key, "sha256:"+hex.EncodeToString(sum[:4]))
}
