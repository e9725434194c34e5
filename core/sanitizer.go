package core

import (
	"regexp"
	"strings"
)

const RedactedValue = "[REDACTED]"

// credentialLengthThreshold is the string length above which a value in a
// non-permitted field is tested for credential shape.
const credentialLengthThreshold = 20

// opaqueTokenPattern matches high-entropy opaque tokens: one long run of
// URL-safe token characters with no structure.
var opaqueTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{32,}$`)

// compactTokenSegment matches one base64url segment of a compact signed
// token (e.g. the header/payload/signature of a JWS).
var compactTokenSegment = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// SanitizeEntry redacts token material from a stored connection record before
// it leaves the process. Both shapes are handled: auth_data, auth_settings,
// and (legacy) the root object are inspected. The input is never mutated.
func SanitizeEntry(raw map[string]any) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	return sanitizeMap(raw)
}

func sanitizeMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if isSensitiveFieldName(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = sanitizeValue(key, value)
	}
	return target
}

func sanitizeValue(key string, value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return sanitizeMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = sanitizeValue(key, typed[i])
		}
		return out
	case string:
		if isPermittedConfigField(key) {
			return typed
		}
		if len(typed) > credentialLengthThreshold && looksCredentialShaped(typed) {
			return RedactedValue
		}
		return typed
	default:
		return value
	}
}

func isSensitiveFieldName(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	switch key {
	case entryKeyPrimary, entryKeySecondary:
		return true
	}
	sensitiveTokens := []string{
		"password",
		"secret",
		"token",
		"authorization",
		"api_key",
		"apikey",
		"access_key",
		"refresh",
		"credential",
		"signature",
		"verifier",
	}
	for _, token := range sensitiveTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

// isPermittedConfigField lists configuration fields that legitimately carry
// long strings and must survive sanitization untouched.
func isPermittedConfigField(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case entryKeyName,
		"platform",
		"service",
		"provider",
		"scope",
		"scopes",
		"audience",
		"grant_type",
		"client_id",
		"consumer_key",
		"username",
		"add_token_to",
		"header_prefix",
		"auth_url",
		"authorization_url",
		"token_url",
		"request_token_url",
		"access_token_url",
		"callback_url",
		"redirect_uri",
		"url",
		"host",
		"base_url":
		return true
	default:
		return false
	}
}

// looksCredentialShaped reports whether a string resembles either a compact
// signed token (dot-separated base64url segments) or an opaque high-entropy
// token.
func looksCredentialShaped(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	if opaqueTokenPattern.MatchString(value) {
		return true
	}
	segments := strings.Split(value, ".")
	if len(segments) < 3 {
		return false
	}
	for _, segment := range segments {
		if segment == "" || !compactTokenSegment.MatchString(segment) {
			return false
		}
	}
	return true
}
