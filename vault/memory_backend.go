package vault

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-credentials/core"
)

// MemoryBackend is an in-process Backend used for tests and single-node
// deployments.
type MemoryBackend struct {
	mu      sync.Mutex
	byTeam  map[string]map[string]core.SecretRecord
	newID   func() string
	failErr error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		byTeam: map[string]map[string]core.SecretRecord{},
		newID:  func() string { return uuid.NewString() },
	}
}

func (b *MemoryBackend) List(_ context.Context, teamID string) ([]core.SecretRecord, error) {
	if b == nil {
		return nil, fmt.Errorf("vault: memory backend is nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failErr != nil {
		return nil, b.failErr
	}
	records := make([]core.SecretRecord, 0, len(b.byTeam[teamID]))
	for _, record := range b.byTeam[teamID] {
		records = append(records, cloneSecretRecord(record))
	}
	return records, nil
}

func (b *MemoryBackend) GetByID(_ context.Context, teamID string, id string) (core.SecretRecord, bool, error) {
	if b == nil {
		return core.SecretRecord{}, false, fmt.Errorf("vault: memory backend is nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failErr != nil {
		return core.SecretRecord{}, false, b.failErr
	}
	record, ok := b.byTeam[teamID][strings.TrimSpace(id)]
	if !ok {
		return core.SecretRecord{}, false, nil
	}
	return cloneSecretRecord(record), true, nil
}

func (b *MemoryBackend) Save(_ context.Context, teamID string, records []core.SecretRecord) ([]core.SecretRecord, error) {
	if b == nil {
		return nil, fmt.Errorf("vault: memory backend is nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failErr != nil {
		return nil, b.failErr
	}
	if b.byTeam[teamID] == nil {
		b.byTeam[teamID] = map[string]core.SecretRecord{}
	}
	saved := make([]core.SecretRecord, 0, len(records))
	for _, record := range records {
		stored := cloneSecretRecord(record)
		stored.TeamID = teamID
		if strings.TrimSpace(stored.ID) == "" {
			stored.ID = b.newID()
		}
		b.byTeam[teamID][stored.ID] = stored
		saved = append(saved, cloneSecretRecord(stored))
	}
	return saved, nil
}

func (b *MemoryBackend) Delete(_ context.Context, teamID string, id string) error {
	if b == nil {
		return fmt.Errorf("vault: memory backend is nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failErr != nil {
		return b.failErr
	}
	team, ok := b.byTeam[teamID]
	if !ok {
		return ErrSecretNotFound
	}
	if _, ok := team[strings.TrimSpace(id)]; !ok {
		return ErrSecretNotFound
	}
	delete(team, strings.TrimSpace(id))
	return nil
}

func (b *MemoryBackend) Count(_ context.Context, teamID string) (int, error) {
	if b == nil {
		return 0, fmt.Errorf("vault: memory backend is nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failErr != nil {
		return 0, b.failErr
	}
	return len(b.byTeam[teamID]), nil
}

// FailWith makes every subsequent call return err. Used by tests to
// exercise best-effort deletion paths.
func (b *MemoryBackend) FailWith(err error) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.failErr = err
	b.mu.Unlock()
}

func cloneSecretRecord(record core.SecretRecord) core.SecretRecord {
	cloned := record
	cloned.Scopes = append([]string(nil), record.Scopes...)
	if record.Metadata != nil {
		cloned.Metadata = make(map[string]any, len(record.Metadata))
		for key, value := range record.Metadata {
			cloned.Metadata[key] = value
		}
	}
	return cloned
}

var _ Backend = (*MemoryBackend)(nil)
