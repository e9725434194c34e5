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

	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/vault"
)

// SecretBackend stores vault secrets one row per record, team-partitioned.
type SecretBackend struct {
	db   *bun.DB
	repo repository.Repository[*secretRecord]
}

func (s *SecretBackend) List(ctx context.Context, teamID string) ([]core.SecretRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: secret backend is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return nil, fmt.Errorf("sqlstore: team id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("team_id", "=", teamID),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	secrets := make([]core.SecretRecord, 0, len(records))
	for _, record := range records {
		secrets = append(secrets, record.toDomain())
	}
	return secrets, nil
}

func (s *SecretBackend) GetByID(ctx context.Context, teamID string, id string) (core.SecretRecord, bool, error) {
	if s == nil || s.repo == nil {
		return core.SecretRecord{}, false, fmt.Errorf("sqlstore: secret backend is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	id = strings.TrimSpace(id)
	if teamID == "" || id == "" {
		return core.SecretRecord{}, false, fmt.Errorf("sqlstore: team id and secret id are required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("team_id", "=", teamID),
		repository.SelectBy("id", "=", id),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.SecretRecord{}, false, err
	}
	if len(records) == 0 {
		return core.SecretRecord{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

// Save inserts id-less records and updates the rest. The batch is not
// transactional across records; a failure leaves earlier records written.
func (s *SecretBackend) Save(ctx context.Context, teamID string, records []core.SecretRecord) ([]core.SecretRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: secret backend is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return nil, fmt.Errorf("sqlstore: team id is required")
	}
	now := time.Now().UTC()

	saved := make([]core.SecretRecord, 0, len(records))
	for _, secret := range records {
		stored, err := s.saveOne(ctx, teamID, secret, now)
		if err != nil {
			return nil, err
		}
		saved = append(saved, stored)
	}
	return saved, nil
}

func (s *SecretBackend) saveOne(ctx context.Context, teamID string, secret core.SecretRecord, now time.Time) (core.SecretRecord, error) {
	var stored core.SecretRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		id := strings.TrimSpace(secret.ID)
		if id == "" {
			record := newSecretRecord(teamID, secret, now)
			record.ID = uuid.NewString()
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			stored = record.toDomain()
			return nil
		}

		existing, findErr := findSecretTx(ctx, tx, teamID, id)
		if findErr != nil {
			return findErr
		}
		if existing == nil {
			record := newSecretRecord(teamID, secret, now)
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			stored = record.toDomain()
			return nil
		}
		existing.Name = secret.Name
		existing.Value = secret.Value
		existing.Owner = secret.Owner
		existing.Scopes = append([]string(nil), secret.Scopes...)
		existing.Metadata = copyAnyMap(secret.Metadata)
		existing.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().
			Model(existing).
			Where("id = ?", existing.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		stored = existing.toDomain()
		return nil
	})
	if err != nil {
		return core.SecretRecord{}, err
	}
	return stored, nil
}

func (s *SecretBackend) Delete(ctx context.Context, teamID string, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: secret backend is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	id = strings.TrimSpace(id)
	if teamID == "" || id == "" {
		return fmt.Errorf("sqlstore: team id and secret id are required")
	}
	result, err := s.db.NewDelete().
		Model((*secretRecord)(nil)).
		Where("team_id = ?", teamID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return vault.ErrSecretNotFound
	}
	return nil
}

func (s *SecretBackend) Count(ctx context.Context, teamID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: secret backend is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return 0, fmt.Errorf("sqlstore: team id is required")
	}
	count, err := s.db.NewSelect().
		Model((*secretRecord)(nil)).
		Where("?TableAlias.team_id = ?", teamID).
		Count(ctx)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func findSecretTx(ctx context.Context, tx bun.Tx, teamID string, id string) (*secretRecord, error) {
	record := new(secretRecord)
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.team_id = ?", teamID).
		Where("?TableAlias.id = ?", id).
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
