package vault

import (
	"context"
	"errors"

	"github.com/goliatone/go-credentials/core"
)

var (
	ErrSecretNotFound = errors.New("vault: secret not found")
	ErrNameCollision  = errors.New("vault: secret name already exists for team")
)

// Backend is the secret storage collaborator. Implementations must scope
// every operation by team.
type Backend interface {
	List(ctx context.Context, teamID string) ([]core.SecretRecord, error)
	GetByID(ctx context.Context, teamID string, id string) (core.SecretRecord, bool, error)

	// Save persists a batch and returns the records with generated ids
	// filled in. The batch is not transactional across records.
	Save(ctx context.Context, teamID string, records []core.SecretRecord) ([]core.SecretRecord, error)

	Delete(ctx context.Context, teamID string, id string) error
	Count(ctx context.Context, teamID string) (int, error)
}
