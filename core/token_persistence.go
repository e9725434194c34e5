package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// tokenLifetimeFallbackSeconds holds per-authorization-host token lifetimes
// used when a provider omits expires_in, less a safety buffer so refreshes
// happen before the upstream deadline.
var tokenLifetimeFallbackSeconds = map[string]int64{
	"login.salesforce.com":      7200,
	"test.salesforce.com":       7200,
	"accounts.google.com":       3600,
	"login.microsoftonline.com": 3600,
	"github.com":                28800,
	"api.twitter.com":           7200,
}

const tokenLifetimeSafetyBufferSeconds = 300

// disallowedSettingsFields are stripped from merged settings on every write.
var disallowedSettingsFields = []string{"team_id"}

type StoreTokensInput struct {
	TeamID string
	Prefix string

	Result ExchangeResult

	// ProviderConfig carries the incoming provider-config fields from the
	// flow session; merged on top of whatever was previously stored.
	ProviderConfig map[string]any

	// AuthHost is the authorization endpoint host, used for the fallback
	// lifetime lookup when the provider omits expires_in.
	AuthHost string
}

// TokenPersistence merges, normalizes, and stores token exchange results.
// Writes are last-write-wins: persisting the same payload twice yields an
// identical entry, never a duplicate.
type TokenPersistence struct {
	settings SettingsStore
	now      func() time.Time
}

func NewTokenPersistence(settings SettingsStore) *TokenPersistence {
	return &TokenPersistence{
		settings: settings,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *TokenPersistence) WithClock(now func() time.Time) *TokenPersistence {
	if p == nil || now == nil {
		return p
	}
	p.now = now
	return p
}

func (p *TokenPersistence) Store(ctx context.Context, in StoreTokensInput) (ConnectionEntry, error) {
	if p == nil || p.settings == nil {
		return ConnectionEntry{}, fmt.Errorf("core: token persistence settings store is not configured")
	}
	teamID := strings.TrimSpace(in.TeamID)
	if teamID == "" {
		return ConnectionEntry{}, fmt.Errorf("core: team id is required")
	}
	prefix := strings.TrimSpace(in.Prefix)
	if prefix == "" {
		return ConnectionEntry{}, fmt.Errorf("core: entry prefix is required")
	}
	entryID := EntryID(prefix)

	existingRaw, found, err := p.settings.Get(ctx, teamID, entryID)
	if err != nil {
		return ConnectionEntry{}, fmt.Errorf("core: settings store read failed: %w", err)
	}

	base := map[string]any{}
	var existingBag map[string]any
	if found {
		normalized := NormalizeEntry(existingRaw)
		base = normalized.AuthSettings
		if bag, ok := base[legacyProviderInfoKey].(map[string]any); ok {
			existingBag = bag
		}
	}

	incoming := copyAnyMap(in.ProviderConfig)
	var incomingBag map[string]any
	if bag, ok := incoming[legacyProviderInfoKey].(map[string]any); ok {
		incomingBag = bag
	}

	merged := copyAnyMap(base)
	for key, value := range incoming {
		if key == legacyProviderInfoKey {
			continue
		}
		merged[key] = value
	}

	// Old entries nest provider info one level deep; merge both bags and
	// flatten before the nested key is dropped for good.
	if existingBag != nil || incomingBag != nil {
		bag := deepMergeMaps(existingBag, incomingBag)
		for key, value := range bag {
			merged[key] = value
		}
	}
	delete(merged, legacyProviderInfoKey)

	for _, field := range disallowedSettingsFields {
		delete(merged, field)
	}
	for _, field := range tokenFieldKeys {
		delete(merged, field)
	}
	if _, ok := merged[entryKeyName]; !ok {
		merged[entryKeyName] = ""
	}

	entry := ConnectionEntry{
		AuthData: AuthData{
			Primary:   strings.TrimSpace(in.Result.Primary),
			Secondary: strings.TrimSpace(in.Result.Secondary),
			ExpiresAt: p.resolveExpiresAt(in.Result.ExpiresIn, in.AuthHost),
		},
		AuthSettings: merged,
	}

	if err := p.settings.Set(ctx, teamID, entryID, entry.ToMap()); err != nil {
		return ConnectionEntry{}, fmt.Errorf("core: settings store write failed: %w", err)
	}
	return entry, nil
}

func (p *TokenPersistence) resolveExpiresAt(expiresIn int64, authHost string) int64 {
	seconds := expiresIn
	if seconds <= 0 {
		fallback, ok := tokenLifetimeFallbackSeconds[normalizeHost(authHost)]
		if !ok {
			return 0
		}
		seconds = fallback - tokenLifetimeSafetyBufferSeconds
		if seconds <= 0 {
			seconds = fallback
		}
	}
	return p.now().Unix() + seconds
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	host = strings.TrimPrefix(host, "www.")
	if idx := strings.Index(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return host
}

func deepMergeMaps(base, overlay map[string]any) map[string]any {
	merged := copyAnyMap(base)
	for key, value := range overlay {
		if overlayMap, ok := value.(map[string]any); ok {
			if baseMap, ok := merged[key].(map[string]any); ok {
				merged[key] = deepMergeMaps(baseMap, overlayMap)
				continue
			}
		}
		merged[key] = value
	}
	return merged
}
