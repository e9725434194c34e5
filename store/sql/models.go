package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type settingsEntryRecord struct {
	bun.BaseModel `bun:"table:credential_settings,alias:cs"`

	ID        string         `bun:"id,pk"`
	TeamID    string         `bun:"team_id,notnull"`
	Key       string         `bun:"key,notnull"`
	Value     map[string]any `bun:"value,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type secretRecord struct {
	bun.BaseModel `bun:"table:credential_secrets,alias:csr"`

	ID        string         `bun:"id,pk"`
	TeamID    string         `bun:"team_id,notnull"`
	Name      string         `bun:"name,notnull"`
	Value     string         `bun:"value,notnull"`
	Owner     string         `bun:"owner"`
	Scopes    []string       `bun:"scopes,type:jsonb,notnull"`
	Metadata  map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
