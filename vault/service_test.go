package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-credentials/core"
)

type memorySettings struct {
	mu      sync.Mutex
	entries map[string]map[string]any
}

func newMemorySettings() *memorySettings {
	return &memorySettings{entries: map[string]map[string]any{}}
}

func settingsKey(teamID, key string) string {
	return teamID + "/" + key
}

func (m *memorySettings) Get(_ context.Context, teamID string, key string) (map[string]any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.entries[settingsKey(teamID, key)]
	if !ok {
		return nil, false, nil
	}
	return value, true, nil
}

func (m *memorySettings) Set(_ context.Context, teamID string, key string, value map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[settingsKey(teamID, key)] = value
	return nil
}

func (m *memorySettings) Delete(_ context.Context, teamID string, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, settingsKey(teamID, key))
	return nil
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func newTestVault(t *testing.T, backend Backend, options ...Option) *Service {
	t.Helper()
	base := []Option{
		WithCacheService(newTestCacheService(t)),
		WithSettingsStore(newMemorySettings()),
	}
	service, err := NewService(backend, append(base, options...)...)
	if err != nil {
		t.Fatalf("new vault service: %v", err)
	}
	return service
}

func seedSecrets(t *testing.T, vault *Service, teamID string, records ...core.SecretRecord) []string {
	t.Helper()
	result, err := vault.SetMultiple(context.Background(), teamID, records)
	if err != nil {
		t.Fatalf("seed secrets: %v", err)
	}
	return result.IDs
}

func TestSetMultipleGeneratesIDs(t *testing.T) {
	vault := newTestVault(t, NewMemoryBackend())

	result, err := vault.SetMultiple(context.Background(), "team-1", []core.SecretRecord{
		{Name: "api_key", Value: "secret-a", Scopes: []string{"team"}},
		{Name: "db_pass", Value: "secret-b", Scopes: []string{"tool"}},
	})
	if err != nil {
		t.Fatalf("set multiple: %v", err)
	}
	if len(result.IDs) != 2 {
		t.Fatalf("expected 2 generated ids, got %#v", result.IDs)
	}
	for _, id := range result.IDs {
		if id == "" {
			t.Fatalf("expected non-empty generated id, got %#v", result.IDs)
		}
	}
}

func TestSetMultipleNameCollisionRejectsWholeBatch(t *testing.T) {
	backend := NewMemoryBackend()
	vault := newTestVault(t, backend)
	seedSecrets(t, vault, "team-1", core.SecretRecord{Name: "api_key", Value: "existing", Scopes: []string{"team"}})

	_, err := vault.SetMultiple(context.Background(), "team-1", []core.SecretRecord{
		{Name: "fresh_name", Value: "value-a", Scopes: []string{"team"}},
		{Name: "api_key", Value: "value-b", Scopes: []string{"team"}},
	})
	if !errors.Is(err, ErrNameCollision) {
		t.Fatalf("expected name collision error, got %v", err)
	}

	count, countErr := backend.Count(context.Background(), "team-1")
	if countErr != nil {
		t.Fatalf("count: %v", countErr)
	}
	if count != 1 {
		t.Fatalf("expected no records from the rejected batch, got %d", count)
	}
}

func TestSetMultipleExistingIDBypassesCollisionCheck(t *testing.T) {
	vault := newTestVault(t, NewMemoryBackend())
	ids := seedSecrets(t, vault, "team-1", core.SecretRecord{Name: "api_key", Value: "v1", Scopes: []string{"team"}})

	result, err := vault.SetMultiple(context.Background(), "team-1", []core.SecretRecord{
		{ID: ids[0], Name: "api_key", Value: "v2", Scopes: []string{"team"}},
	})
	if err != nil {
		t.Fatalf("update by id: %v", err)
	}
	if len(result.IDs) != 1 || result.IDs[0] != ids[0] {
		t.Fatalf("expected id %q preserved, got %#v", ids[0], result.IDs)
	}

	records, err := vault.Get(context.Background(), GetRequest{TeamID: "team-1", ID: ids[0]})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(records) != 1 || records[0].Value != "v2" {
		t.Fatalf("expected updated value, got %#v", records)
	}
}

func TestSetMultipleValidation(t *testing.T) {
	vault := newTestVault(t, NewMemoryBackend())

	cases := []struct {
		label  string
		record core.SecretRecord
	}{
		{"empty name", core.SecretRecord{Value: "v"}},
		{"invalid name", core.SecretRecord{Name: "-starts-with-dash", Value: "v"}},
		{"name with spaces", core.SecretRecord{Name: "has space", Value: "v"}},
		{"long name", core.SecretRecord{Name: "a" + string(make([]byte, maxSecretNameLength)), Value: "v"}},
		{"empty value", core.SecretRecord{Name: "key"}},
		{"oversized value", core.SecretRecord{Name: "key", Value: string(make([]byte, maxSecretValueBytes+1))}},
		{"unknown scope", core.SecretRecord{Name: "key", Value: "v", Scopes: []string{"universe"}}},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			_, err := vault.SetMultiple(context.Background(), "team-1", []core.SecretRecord{tc.record})
			if err == nil {
				t.Fatalf("expected validation error for %s", tc.label)
			}
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryValidation {
				t.Fatalf("expected validation category, got %v", err)
			}
		})
	}
}

func TestGetByIDAndMissing(t *testing.T) {
	vault := newTestVault(t, NewMemoryBackend())
	ids := seedSecrets(t, vault, "team-1", core.SecretRecord{Name: "api_key", Value: "v1", Scopes: []string{"team"}})

	records, err := vault.Get(context.Background(), GetRequest{TeamID: "team-1", ID: ids[0]})
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if len(records) != 1 || records[0].Name != "api_key" {
		t.Fatalf("expected api_key record, got %#v", records)
	}

	records, err = vault.Get(context.Background(), GetRequest{TeamID: "team-1", ID: "missing"})
	if err != nil {
		t.Fatalf("get missing id: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty result for missing id, got %#v", records)
	}
}

func TestGetByNameCaseInsensitive(t *testing.T) {
	vault := newTestVault(t, NewMemoryBackend())
	seedSecrets(t, vault, "team-1", core.SecretRecord{Name: "Api_Key", Value: "v1", Scopes: []string{"team"}})

	records, err := vault.Get(context.Background(), GetRequest{TeamID: "team-1", Name: "api_key"})
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if len(records) != 1 || records[0].Value != "v1" {
		t.Fatalf("expected match regardless of case, got %#v", records)
	}
}

func TestGetLegacyAliasFallback(t *testing.T) {
	vault := newTestVault(t, NewMemoryBackend(),
		WithLegacyAliases(map[string]string{"openai_api_key": "OPENAI_KEY"}))
	seedSecrets(t, vault, "team-1", core.SecretRecord{Name: "OPENAI_KEY", Value: "sk-legacy", Scopes: []string{"team"}})

	records, err := vault.Get(context.Background(), GetRequest{TeamID: "team-1", Name: "openai_api_key"})
	if err != nil {
		t.Fatalf("get via alias: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected alias hit, got %#v", records)
	}
	if records[0].Name != "openai_api_key" {
		t.Fatalf("expected alias value surfaced under canonical name, got %q", records[0].Name)
	}
	if records[0].Value != "sk-legacy" {
		t.Fatalf("expected legacy value, got %q", records[0].Value)
	}
}

func TestGetCanonicalWinsOverAlias(t *testing.T) {
	vault := newTestVault(t, NewMemoryBackend(),
		WithLegacyAliases(map[string]string{"openai_api_key": "OPENAI_KEY"}))
	seedSecrets(t, vault, "team-1",
		core.SecretRecord{Name: "openai_api_key", Value: "sk-canonical", Scopes: []string{"team"}},
		core.SecretRecord{Name: "OPENAI_KEY", Value: "sk-legacy", Scopes: []string{"team"}},
	)

	records, err := vault.Get(context.Background(), GetRequest{TeamID: "team-1", Name: "openai_api_key"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(records) != 1 || records[0].Value != "sk-canonical" {
		t.Fatalf("expected canonical record to win, got %#v", records)
	}
}

func TestGetFilterScopes(t *testing.T) {
	vault := newTestVault(t, NewMemoryBackend())
	seedSecrets(t, vault, "team-1",
		core.SecretRecord{Name: "global_key", Value: "g", Scopes: []string{"global"}},
		core.SecretRecord{Name: "team_key", Value: "t", Scopes: []string{"team"}},
		core.SecretRecord{Name: "agent_key", Value: "a", Scopes: []string{"agent"}},
		core.SecretRecord{Name: "mixed_key", Value: "m", Scopes: []string{"team", "global"}},
	)

	records, err := vault.Get(context.Background(), GetRequest{
		TeamID: "team-1",
		Filter: GetFilter{IncludeScopes: []string{"team"}},
	})
	if err != nil {
		t.Fatalf("include filter: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 team-scoped records, got %#v", recordNames(records))
	}

	records, err = vault.Get(context.Background(), GetRequest{
		TeamID: "team-1",
		Filter: GetFilter{IncludeScopes: []string{"team"}, ExcludeScopes: []string{"global"}},
	})
	if err != nil {
		t.Fatalf("exclude filter: %v", err)
	}
	if len(records) != 1 || records[0].Name != "team_key" {
		t.Fatalf("expected only team_key, got %#v", recordNames(records))
	}

	records, err = vault.Get(context.Background(), GetRequest{
		TeamID: "team-1",
		Filter: GetFilter{AllScopesExceptGlobal: true},
	})
	if err != nil {
		t.Fatalf("shortcut filter: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected team_key and agent_key, got %#v", recordNames(records))
	}
	for _, record := range records {
		if record.Name == "global_key" || record.Name == "mixed_key" {
			t.Fatalf("global-scoped record leaked through shortcut: %q", record.Name)
		}
	}
}

func TestGetFilterOwnerAndMetadata(t *testing.T) {
	vault := newTestVault(t, NewMemoryBackend())
	seedSecrets(t, vault, "team-1",
		core.SecretRecord{Name: "key_a", Value: "a", Owner: "agent-7", Scopes: []string{"agent"},
			Metadata: map[string]any{"env": "prod"}},
		core.SecretRecord{Name: "key_b", Value: "b", Owner: "agent-7", Scopes: []string{"agent"},
			Metadata: map[string]any{"env": "dev"}},
		core.SecretRecord{Name: "key_c", Value: "c", Owner: "agent-9", Scopes: []string{"agent"}},
	)

	records, err := vault.Get(context.Background(), GetRequest{
		TeamID: "team-1",
		Filter: GetFilter{Owner: "agent-7", Metadata: map[string]any{"env": "prod"}},
	})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(records) != 1 || records[0].Name != "key_a" {
		t.Fatalf("expected key_a, got %#v", recordNames(records))
	}
}

func TestGetFieldProjection(t *testing.T) {
	vault := newTestVault(t, NewMemoryBackend())
	ids := seedSecrets(t, vault, "team-1",
		core.SecretRecord{Name: "api_key", Value: "hidden", Owner: "agent-7", Scopes: []string{"team"}})

	records, err := vault.Get(context.Background(), GetRequest{
		TeamID: "team-1",
		ID:     ids[0],
		Fields: []string{"id", "name"},
	})
	if err != nil {
		t.Fatalf("projected get: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %#v", records)
	}
	got := records[0]
	if got.ID != ids[0] || got.Name != "api_key" {
		t.Fatalf("expected projected id and name, got %#v", got)
	}
	if got.Value != "" || got.Owner != "" || got.Scopes != nil {
		t.Fatalf("expected unlisted fields zeroed, got %#v", got)
	}
}

func TestCacheInvalidatedOnWrite(t *testing.T) {
	backend := NewMemoryBackend()
	vault := newTestVault(t, backend)
	seedSecrets(t, vault, "team-1", core.SecretRecord{Name: "first", Value: "v", Scopes: []string{"team"}})

	// Warm the cache.
	if _, err := vault.Get(context.Background(), GetRequest{TeamID: "team-1", Name: "first"}); err != nil {
		t.Fatalf("warm read: %v", err)
	}

	seedSecrets(t, vault, "team-1", core.SecretRecord{Name: "second", Value: "v", Scopes: []string{"team"}})

	records, err := vault.Get(context.Background(), GetRequest{TeamID: "team-1", Name: "second"})
	if err != nil {
		t.Fatalf("read after write: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected write visible in same process, got %#v", records)
	}
}

func TestSlidingExpiryForcesRefetch(t *testing.T) {
	backend := NewMemoryBackend()
	current := time.Unix(1_000_000, 0).UTC()
	vault := newTestVault(t, backend,
		WithCacheTTL(time.Minute),
		WithClock(func() time.Time { return current }),
	)
	seedSecrets(t, vault, "team-1", core.SecretRecord{Name: "first", Value: "v", Scopes: []string{"team"}})

	if _, err := vault.Get(context.Background(), GetRequest{TeamID: "team-1", Name: "first"}); err != nil {
		t.Fatalf("warm read: %v", err)
	}

	// Bypass the service to mutate the backend directly; the cache still
	// holds the stale list.
	if _, err := backend.Save(context.Background(), "team-1", []core.SecretRecord{
		{Name: "second", Value: "v", Scopes: []string{"team"}},
	}); err != nil {
		t.Fatalf("direct backend save: %v", err)
	}

	records, err := vault.Get(context.Background(), GetRequest{TeamID: "team-1", Name: "second"})
	if err != nil {
		t.Fatalf("stale read: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected stale cache before expiry, got %#v", recordNames(records))
	}

	current = current.Add(2 * time.Minute)

	records, err = vault.Get(context.Background(), GetRequest{TeamID: "team-1", Name: "second"})
	if err != nil {
		t.Fatalf("post-expiry read: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected refetch after sliding deadline, got %#v", recordNames(records))
	}
}

func TestSlidingExpiryExtendedByReads(t *testing.T) {
	backend := NewMemoryBackend()
	current := time.Unix(1_000_000, 0).UTC()
	vault := newTestVault(t, backend,
		WithCacheTTL(time.Minute),
		WithClock(func() time.Time { return current }),
	)
	seedSecrets(t, vault, "team-1", core.SecretRecord{Name: "first", Value: "v", Scopes: []string{"team"}})
	if _, err := vault.Get(context.Background(), GetRequest{TeamID: "team-1", Name: "first"}); err != nil {
		t.Fatalf("warm read: %v", err)
	}

	if _, err := backend.Save(context.Background(), "team-1", []core.SecretRecord{
		{Name: "second", Value: "v", Scopes: []string{"team"}},
	}); err != nil {
		t.Fatalf("direct backend save: %v", err)
	}

	// Reads every 40s keep pushing the 60s deadline out.
	for i := 0; i < 3; i++ {
		current = current.Add(40 * time.Second)
		records, err := vault.Get(context.Background(), GetRequest{TeamID: "team-1", Name: "second"})
		if err != nil {
			t.Fatalf("sliding read %d: %v", i, err)
		}
		if len(records) != 0 {
			t.Fatalf("expected cache kept alive by reads, got refetch at iteration %d", i)
		}
	}
}

func TestDeleteBestEffortOnBackendFailure(t *testing.T) {
	backend := NewMemoryBackend()
	settings := newMemorySettings()
	vault := newTestVault(t, backend, WithSettingsStore(settings))
	ids := seedSecrets(t, vault, "team-1", core.SecretRecord{Name: "api_key", Value: "v", Scopes: []string{"team"}})

	backend.FailWith(fmt.Errorf("backend offline"))
	if err := vault.Delete(context.Background(), "team-1", ids[0]); err != nil {
		t.Fatalf("expected best-effort delete to succeed, got %v", err)
	}
	backend.FailWith(nil)

	// The backend record survived, but the projection no longer lists it.
	projection, found, err := settings.Get(context.Background(), "team-1", settingsProjectionKey)
	if err != nil {
		t.Fatalf("projection read: %v", err)
	}
	if !found {
		t.Fatalf("expected projection entry to exist")
	}
	if _, present := projection[ids[0]]; present {
		t.Fatalf("expected id removed from projection, got %#v", projection)
	}
}

func TestDeleteMultipleSkipsBlankIDs(t *testing.T) {
	vault := newTestVault(t, NewMemoryBackend())
	ids := seedSecrets(t, vault, "team-1",
		core.SecretRecord{Name: "key_a", Value: "a", Scopes: []string{"team"}},
		core.SecretRecord{Name: "key_b", Value: "b", Scopes: []string{"team"}},
	)

	if err := vault.DeleteMultiple(context.Background(), "team-1", []string{ids[0], "", "  "}); err != nil {
		t.Fatalf("delete multiple: %v", err)
	}

	count, err := vault.Count(context.Background(), "team-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one surviving secret, got %d", count)
	}
}

func TestCountBypassesCache(t *testing.T) {
	backend := NewMemoryBackend()
	vault := newTestVault(t, backend)
	seedSecrets(t, vault, "team-1", core.SecretRecord{Name: "first", Value: "v", Scopes: []string{"team"}})

	// Warm the cache, then mutate the backend behind the service's back.
	if _, err := vault.Get(context.Background(), GetRequest{TeamID: "team-1"}); err != nil {
		t.Fatalf("warm read: %v", err)
	}
	if _, err := backend.Save(context.Background(), "team-1", []core.SecretRecord{
		{Name: "second", Value: "v", Scopes: []string{"team"}},
	}); err != nil {
		t.Fatalf("direct backend save: %v", err)
	}

	count, err := vault.Count(context.Background(), "team-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected live count of 2, got %d", count)
	}
}

func TestTeamIsolation(t *testing.T) {
	vault := newTestVault(t, NewMemoryBackend())
	seedSecrets(t, vault, "team-1", core.SecretRecord{Name: "shared_name", Value: "one", Scopes: []string{"team"}})
	seedSecrets(t, vault, "team-2", core.SecretRecord{Name: "shared_name", Value: "two", Scopes: []string{"team"}})

	records, err := vault.Get(context.Background(), GetRequest{TeamID: "team-2", Name: "shared_name"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(records) != 1 || records[0].Value != "two" {
		t.Fatalf("expected team-2 value, got %#v", records)
	}
}

func TestGetRequiresTeamID(t *testing.T) {
	vault := newTestVault(t, NewMemoryBackend())
	_, err := vault.Get(context.Background(), GetRequest{})
	if err == nil {
		t.Fatal("expected error for missing team id")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input category, got %v", err)
	}
}

func TestSetMultipleProjectsMetadataWithoutValues(t *testing.T) {
	settings := newMemorySettings()
	vault := newTestVault(t, NewMemoryBackend(), WithSettingsStore(settings))
	ids := seedSecrets(t, vault, "team-1",
		core.SecretRecord{Name: "api_key", Value: "super-secret", Owner: "agent-7", Scopes: []string{"team"}})

	projection, found, err := settings.Get(context.Background(), "team-1", settingsProjectionKey)
	if err != nil {
		t.Fatalf("projection read: %v", err)
	}
	if !found {
		t.Fatalf("expected projection entry")
	}
	entry, ok := projection[ids[0]].(map[string]any)
	if !ok {
		t.Fatalf("expected projection map for id, got %#v", projection[ids[0]])
	}
	if entry["name"] != "api_key" || entry["owner"] != "agent-7" {
		t.Fatalf("expected name and owner mirrored, got %#v", entry)
	}
	if _, leaked := entry["value"]; leaked {
		t.Fatalf("secret value leaked into the settings projection: %#v", entry)
	}
}

func recordNames(records []core.SecretRecord) []string {
	names := make([]string, 0, len(records))
	for _, record := range records {
		names = append(names, record.Name)
	}
	return names
}
