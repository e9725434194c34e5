package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	entryKeyAuthData     = "auth_data"
	entryKeyAuthSettings = "auth_settings"
	entryKeyPrimary      = "primary"
	entryKeySecondary    = "secondary"
	entryKeyExpiresIn    = "expires_in"
	entryKeyName         = "name"

	// legacyProviderInfoKey is the nested provider-info bag carried by old
	// entries; it is deep-merged and flattened into settings on every write.
	legacyProviderInfoKey = "provider_info"
)

var tokenFieldKeys = []string{entryKeyPrimary, entryKeySecondary, entryKeyExpiresIn}

// IsLegacyShape reports whether a raw stored entry predates the nested
// auth_data/auth_settings shape.
func IsLegacyShape(raw map[string]any) bool {
	if len(raw) == 0 {
		return false
	}
	_, hasData := raw[entryKeyAuthData]
	_, hasSettings := raw[entryKeyAuthSettings]
	return !hasData && !hasSettings
}

// NormalizeEntry converts either stored shape into the canonical form. It is
// pure: the input map is never mutated. Token values end up only inside
// AuthData; AuthSettings always carries a name key (default empty string).
// A primary token mis-saved at the root of a current-shape entry is adopted
// into AuthData so historical writes stay readable.
func NormalizeEntry(raw map[string]any) ConnectionEntry {
	entry := ConnectionEntry{AuthSettings: map[string]any{}}
	if len(raw) == 0 {
		entry.AuthSettings[entryKeyName] = ""
		return entry
	}

	if IsLegacyShape(raw) {
		entry.AuthData = authDataFromMap(raw)
		for key, value := range raw {
			if isTokenField(key) {
				continue
			}
			entry.AuthSettings[key] = value
		}
	} else {
		if data, ok := raw[entryKeyAuthData].(map[string]any); ok {
			entry.AuthData = authDataFromMap(data)
		}
		if settings, ok := raw[entryKeyAuthSettings].(map[string]any); ok {
			for key, value := range settings {
				if isTokenField(key) {
					continue
				}
				entry.AuthSettings[key] = value
			}
		}
		if strings.TrimSpace(entry.AuthData.Primary) == "" {
			if rootPrimary := stringFromAny(raw[entryKeyPrimary]); rootPrimary != "" {
				entry.AuthData.Primary = rootPrimary
			}
		}
	}

	if _, ok := entry.AuthSettings[entryKeyName]; !ok {
		entry.AuthSettings[entryKeyName] = ""
	}
	return entry
}

// ToMap renders the canonical stored shape.
func (e ConnectionEntry) ToMap() map[string]any {
	settings := make(map[string]any, len(e.AuthSettings)+1)
	for key, value := range e.AuthSettings {
		if isTokenField(key) {
			continue
		}
		settings[key] = value
	}
	if _, ok := settings[entryKeyName]; !ok {
		settings[entryKeyName] = ""
	}
	return map[string]any{
		entryKeyAuthData: map[string]any{
			entryKeyPrimary:   e.AuthData.Primary,
			entryKeySecondary: e.AuthData.Secondary,
			entryKeyExpiresIn: e.AuthData.ExpiresAt,
		},
		entryKeyAuthSettings: settings,
	}
}

func authDataFromMap(raw map[string]any) AuthData {
	return AuthData{
		Primary:   stringFromAny(raw[entryKeyPrimary]),
		Secondary: stringFromAny(raw[entryKeySecondary]),
		ExpiresAt: int64FromAny(raw[entryKeyExpiresIn]),
	}
}

// RawPrimaryToken returns the primary token from either the current location
// (auth_data.primary) or the legacy root location.
func RawPrimaryToken(raw map[string]any) string {
	if data, ok := raw[entryKeyAuthData].(map[string]any); ok {
		if primary := stringFromAny(data[entryKeyPrimary]); primary != "" {
			return primary
		}
	}
	return stringFromAny(raw[entryKeyPrimary])
}

func isTokenField(key string) bool {
	normalized := strings.TrimSpace(strings.ToLower(key))
	for _, token := range tokenFieldKeys {
		if normalized == token {
			return true
		}
	}
	return false
}

func stringFromAny(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

func int64FromAny(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatParsed, floatErr := typed.Float64()
		if floatErr == nil {
			return int64(floatParsed)
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}
