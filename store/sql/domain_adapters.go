package sqlstore

import (
	"time"

	"github.com/goliatone/go-credentials/core"
)

func newSecretRecord(teamID string, secret core.SecretRecord, now time.Time) *secretRecord {
	return &secretRecord{
		ID:        secret.ID,
		TeamID:    teamID,
		Name:      secret.Name,
		Value:     secret.Value,
		Owner:     secret.Owner,
		Scopes:    append([]string(nil), secret.Scopes...),
		Metadata:  copyAnyMap(secret.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *secretRecord) toDomain() core.SecretRecord {
	if r == nil {
		return core.SecretRecord{}
	}
	return core.SecretRecord{
		ID:       r.ID,
		TeamID:   r.TeamID,
		Name:     r.Name,
		Value:    r.Value,
		Owner:    r.Owner,
		Scopes:   append([]string(nil), r.Scopes...),
		Metadata: copyAnyMap(r.Metadata),
	}
}

func copyAnyMap(source map[string]any) map[string]any {
	if source == nil {
		return map[string]any{}
	}
	copied := make(map[string]any, len(source))
	for key, value := range source {
		copied[key] = value
	}
	return copied
}
