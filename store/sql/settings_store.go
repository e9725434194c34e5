package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SettingsStore keeps per-team settings blobs. One row per (team_id, key),
// value stored as jsonb.
type SettingsStore struct {
	db   *bun.DB
	repo repository.Repository[*settingsEntryRecord]
}

func (s *SettingsStore) Get(ctx context.Context, teamID string, key string) (map[string]any, bool, error) {
	if s == nil || s.repo == nil {
		return nil, false, fmt.Errorf("sqlstore: settings store is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	key = strings.TrimSpace(key)
	if teamID == "" || key == "" {
		return nil, false, fmt.Errorf("sqlstore: team id and key are required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("team_id", "=", teamID),
		repository.SelectBy("key", "=", key),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return copyAnyMap(records[0].Value), true, nil
}

func (s *SettingsStore) Set(ctx context.Context, teamID string, key string, value map[string]any) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: settings store is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	key = strings.TrimSpace(key)
	if teamID == "" || key == "" {
		return fmt.Errorf("sqlstore: team id and key are required")
	}
	now := time.Now().UTC()
	stored := copyAnyMap(value)

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findSettingsEntryTx(ctx, tx, teamID, key)
		if err != nil {
			return err
		}
		if record == nil {
			record = &settingsEntryRecord{
				ID:        uuid.NewString(),
				TeamID:    teamID,
				Key:       key,
				Value:     stored,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			return nil
		}
		record.Value = stored
		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		return nil
	})
}

func (s *SettingsStore) Delete(ctx context.Context, teamID string, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: settings store is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	key = strings.TrimSpace(key)
	if teamID == "" || key == "" {
		return fmt.Errorf("sqlstore: team id and key are required")
	}
	_, err := s.db.NewDelete().
		Model((*settingsEntryRecord)(nil)).
		Where("team_id = ?", teamID).
		Where("key = ?", key).
		Exec(ctx)
	return err
}

func findSettingsEntryTx(ctx context.Context, tx bun.Tx, teamID string, key string) (*settingsEntryRecord, error) {
	record := new(settingsEntryRecord)
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.team_id = ?", teamID).
		Where("?TableAlias.key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
