package core

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// ConnectionValidator compares a candidate provider configuration against the
// stored entry for the same prefix. Used to short-circuit redundant
// re-authentication.
type ConnectionValidator struct {
	settings SettingsStore
}

func NewConnectionValidator(settings SettingsStore) *ConnectionValidator {
	return &ConnectionValidator{settings: settings}
}

// Matches returns true only if every candidate field equals the stored
// setting and a primary token is present. The token is accepted from either
// auth_data.primary or the legacy root location.
func (v *ConnectionValidator) Matches(ctx context.Context, teamID string, prefix string, candidate map[string]any) (bool, error) {
	if v == nil || v.settings == nil {
		return false, fmt.Errorf("core: connection validator settings store is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return false, fmt.Errorf("core: team id is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return false, fmt.Errorf("core: entry prefix is required")
	}

	raw, found, err := v.settings.Get(ctx, teamID, EntryID(prefix))
	if err != nil {
		return false, fmt.Errorf("core: settings store read failed: %w", err)
	}
	if !found {
		return false, nil
	}

	if strings.TrimSpace(RawPrimaryToken(raw)) == "" {
		return false, nil
	}

	entry := NormalizeEntry(raw)
	for key, candidateValue := range candidate {
		if isTokenField(key) {
			continue
		}
		stored, ok := entry.AuthSettings[key]
		if !ok {
			return false, nil
		}
		if !settingValuesEqual(stored, candidateValue) {
			return false, nil
		}
	}
	return true, nil
}

func settingValuesEqual(stored, candidate any) bool {
	if reflect.DeepEqual(stored, candidate) {
		return true
	}
	// Settings round-trip through JSON, so compare scalars by string form to
	// tolerate float64/int and trimmed-space differences.
	return stringFromAny(stored) == stringFromAny(candidate)
}
