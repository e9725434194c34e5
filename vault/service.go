package vault

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-credentials/core"
)

const (
	teamSecretsCacheKeyPrefix = "go-credentials::team_secrets::v1"

	// settingsProjectionKey is the per-team settings entry that mirrors
	// secret metadata (never values) for quota and listing surfaces.
	settingsProjectionKey = "VAULT_SECRETS"

	maxSecretValueBytes = 8192
	maxSecretNameLength = 64
)

var secretNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]*$`)

// AllowedScopes is the closed set of scope values a secret may carry.
var AllowedScopes = []string{"global", "team", "agent", "tool"}

// ScopeGlobal marks a secret visible outside team boundaries. The
// "all except global" filter shortcut excludes exactly this scope.
const ScopeGlobal = "global"

type GetFilter struct {
	IncludeScopes []string
	ExcludeScopes []string

	// AllScopesExceptGlobal is the shortcut for "every scope but global".
	AllScopesExceptGlobal bool

	Owner    string
	Name     string
	Metadata map[string]any
}

type GetRequest struct {
	TeamID string

	// ID or Name short-circuit to a direct lookup.
	ID   string
	Name string

	Filter GetFilter

	// Fields projects the result down to the named fields; empty returns
	// full records. Value is only included when listed explicitly.
	Fields []string
}

type SetResult struct {
	IDs []string
}

type Option func(*Service)

func WithLogger(logger core.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithCacheService(cache repositorycache.CacheService) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithSettingsStore(settings core.SettingsStore) Option {
	return func(s *Service) {
		s.settings = settings
	}
}

// WithLegacyAliases maps canonical secret names to older alias names still
// present in some teams' backends.
func WithLegacyAliases(aliases map[string]string) Option {
	return func(s *Service) {
		s.legacyAliases = map[string]string{}
		for canonical, alias := range aliases {
			canonical = strings.TrimSpace(canonical)
			alias = strings.TrimSpace(alias)
			if canonical == "" || alias == "" {
				continue
			}
			s.legacyAliases[canonical] = alias
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service is the SecretVault: scoped CRUD over a secrets backend with a
// per-team read cache. Every mutation invalidates the team's cache entry
// before returning success.
type Service struct {
	backend  Backend
	settings core.SettingsStore
	cache    repositorycache.CacheService
	logger   core.Logger

	cacheTTL time.Duration
	now      func() time.Time

	legacyAliases map[string]string

	// deadlines implements sliding expiration on top of the cache
	// service: reads past the team's deadline force a refetch, reads
	// before it push the deadline out.
	mu        sync.Mutex
	deadlines map[string]time.Time
}

func NewService(backend Backend, options ...Option) (*Service, error) {
	if backend == nil {
		return nil, fmt.Errorf("vault: backend is required")
	}
	service := &Service{
		backend:       backend,
		logger:        glog.Ensure(nil),
		cacheTTL:      5 * time.Minute,
		now:           func() time.Time { return time.Now().UTC() },
		legacyAliases: map[string]string{},
		deadlines:     map[string]time.Time{},
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(service)
	}
	return service, nil
}

func teamSecretsCacheKey(teamID string) string {
	return teamSecretsCacheKeyPrefix + "::" + url.PathEscape(strings.TrimSpace(teamID))
}

func (s *Service) Get(ctx context.Context, req GetRequest) ([]core.SecretRecord, error) {
	if s == nil || s.backend == nil {
		return nil, fmt.Errorf("vault: service is not configured")
	}
	teamID := strings.TrimSpace(req.TeamID)
	if teamID == "" {
		return nil, goerrors.New("vault: team id is required", goerrors.CategoryBadInput)
	}

	if id := strings.TrimSpace(req.ID); id != "" {
		record, found, err := s.backend.GetByID(ctx, teamID, id)
		if err != nil {
			return nil, fmt.Errorf("vault: backend lookup failed: %w", err)
		}
		if !found {
			return []core.SecretRecord{}, nil
		}
		return []core.SecretRecord{projectSecretRecord(record, req.Fields)}, nil
	}

	records, err := s.loadTeamSecrets(ctx, teamID)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		return s.lookupByName(records, name, req.Fields), nil
	}

	matched := make([]core.SecretRecord, 0, len(records))
	for _, record := range records {
		if !secretMatchesFilter(record, req.Filter) {
			continue
		}
		matched = append(matched, projectSecretRecord(record, req.Fields))
	}
	return matched, nil
}

// lookupByName returns the named secret, falling back to a configured
// legacy alias. An alias hit is returned under the canonical name.
func (s *Service) lookupByName(records []core.SecretRecord, name string, fields []string) []core.SecretRecord {
	for _, record := range records {
		if strings.EqualFold(strings.TrimSpace(record.Name), name) {
			return []core.SecretRecord{projectSecretRecord(record, fields)}
		}
	}
	alias, ok := s.legacyAliases[name]
	if !ok {
		return []core.SecretRecord{}
	}
	for _, record := range records {
		if strings.EqualFold(strings.TrimSpace(record.Name), alias) {
			canonical := cloneSecretRecord(record)
			canonical.Name = name
			return []core.SecretRecord{projectSecretRecord(canonical, fields)}
		}
	}
	return []core.SecretRecord{}
}

func (s *Service) loadTeamSecrets(ctx context.Context, teamID string) ([]core.SecretRecord, error) {
	if s.cache == nil {
		records, err := s.backend.List(ctx, teamID)
		if err != nil {
			return nil, fmt.Errorf("vault: backend list failed: %w", err)
		}
		return records, nil
	}

	cacheKey := teamSecretsCacheKey(teamID)
	if s.slideExpired(teamID) {
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			s.logger.Warn("vault cache delete failed", "team_id", teamID, "error", err.Error())
		}
	}

	records, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.SecretRecord, error) {
		fetched, fetchErr := s.backend.List(ctx, teamID)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return fetched, nil
	})
	if err != nil {
		return nil, fmt.Errorf("vault: backend list failed: %w", err)
	}
	s.extendSlide(teamID)

	cloned := make([]core.SecretRecord, 0, len(records))
	for _, record := range records {
		cloned = append(cloned, cloneSecretRecord(record))
	}
	return cloned, nil
}

func (s *Service) slideExpired(teamID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline, ok := s.deadlines[teamID]
	if !ok {
		return false
	}
	return s.now().After(deadline)
}

func (s *Service) extendSlide(teamID string) {
	s.mu.Lock()
	s.deadlines[teamID] = s.now().Add(s.cacheTTL)
	s.mu.Unlock()
}

// InvalidateTeam drops a team's cached secrets. Called by every mutation
// before it acknowledges success, and by access-reset policy when
// configured.
func (s *Service) InvalidateTeam(ctx context.Context, teamID string) error {
	if s == nil {
		return fmt.Errorf("vault: service is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return goerrors.New("vault: team id is required", goerrors.CategoryBadInput)
	}
	s.mu.Lock()
	delete(s.deadlines, teamID)
	s.mu.Unlock()
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, teamSecretsCacheKey(teamID)); err != nil {
		return fmt.Errorf("vault: cache invalidation failed: %w", err)
	}
	return nil
}

func (s *Service) SetMultiple(ctx context.Context, teamID string, records []core.SecretRecord) (SetResult, error) {
	if s == nil || s.backend == nil {
		return SetResult{}, fmt.Errorf("vault: service is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return SetResult{}, goerrors.New("vault: team id is required", goerrors.CategoryBadInput)
	}
	if len(records) == 0 {
		return SetResult{IDs: []string{}}, nil
	}

	for index, record := range records {
		if err := validateSecretRecord(record); err != nil {
			return SetResult{}, goerrors.Wrap(err, goerrors.CategoryValidation,
				fmt.Sprintf("vault: secret %d failed validation", index))
		}
	}

	existing, err := s.backend.List(ctx, teamID)
	if err != nil {
		return SetResult{}, fmt.Errorf("vault: backend list failed: %w", err)
	}
	existingNames := map[string]struct{}{}
	for _, record := range existing {
		existingNames[strings.ToLower(strings.TrimSpace(record.Name))] = struct{}{}
	}
	batchNames := map[string]struct{}{}
	for _, record := range records {
		if strings.TrimSpace(record.ID) != "" {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(record.Name))
		if _, taken := existingNames[name]; taken {
			return SetResult{}, goerrors.Wrap(ErrNameCollision, goerrors.CategoryValidation,
				fmt.Sprintf("vault: secret name %q already exists", record.Name))
		}
		if _, dup := batchNames[name]; dup {
			return SetResult{}, goerrors.Wrap(ErrNameCollision, goerrors.CategoryValidation,
				fmt.Sprintf("vault: secret name %q repeated in batch", record.Name))
		}
		batchNames[name] = struct{}{}
	}

	saved, err := s.backend.Save(ctx, teamID, records)
	if err != nil {
		return SetResult{}, fmt.Errorf("vault: backend save failed: %w", err)
	}

	if err := s.projectSecrets(ctx, teamID, saved, nil); err != nil {
		return SetResult{}, err
	}
	if err := s.InvalidateTeam(ctx, teamID); err != nil {
		return SetResult{}, err
	}

	ids := make([]string, 0, len(saved))
	for _, record := range saved {
		ids = append(ids, record.ID)
	}
	return SetResult{IDs: ids}, nil
}

func (s *Service) Delete(ctx context.Context, teamID string, id string) error {
	return s.DeleteMultiple(ctx, teamID, []string{id})
}

// DeleteMultiple removes secrets from the backend and their settings-store
// projection. Backend failures are logged and do not abort the projection
// deletion; the two stores can drift when that happens.
func (s *Service) DeleteMultiple(ctx context.Context, teamID string, ids []string) error {
	if s == nil || s.backend == nil {
		return fmt.Errorf("vault: service is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return goerrors.New("vault: team id is required", goerrors.CategoryBadInput)
	}

	deleted := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if err := s.backend.Delete(ctx, teamID, id); err != nil {
			s.logger.Error("vault backend delete failed",
				"team_id", teamID,
				"secret_id", id,
				"error", err.Error(),
			)
		}
		deleted = append(deleted, id)
	}

	if err := s.projectSecrets(ctx, teamID, nil, deleted); err != nil {
		return err
	}
	return s.InvalidateTeam(ctx, teamID)
}

func (s *Service) Count(ctx context.Context, teamID string) (int, error) {
	if s == nil || s.backend == nil {
		return 0, fmt.Errorf("vault: service is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return 0, goerrors.New("vault: team id is required", goerrors.CategoryBadInput)
	}
	// Quota display needs the live number, so this bypasses the cache.
	count, err := s.backend.Count(ctx, teamID)
	if err != nil {
		return 0, fmt.Errorf("vault: backend count failed: %w", err)
	}
	return count, nil
}

// projectSecrets mirrors secret metadata (never values) into the team's
// settings entry. upserts adds or replaces; removals drops ids.
func (s *Service) projectSecrets(ctx context.Context, teamID string, upserts []core.SecretRecord, removals []string) error {
	if s.settings == nil {
		return nil
	}
	projection, found, err := s.settings.Get(ctx, teamID, settingsProjectionKey)
	if err != nil {
		return fmt.Errorf("vault: settings projection read failed: %w", err)
	}
	if !found || projection == nil {
		projection = map[string]any{}
	}

	for _, record := range upserts {
		projection[record.ID] = map[string]any{
			"name":   record.Name,
			"owner":  record.Owner,
			"scopes": append([]string(nil), record.Scopes...),
		}
	}
	for _, id := range removals {
		delete(projection, id)
	}

	if err := s.settings.Set(ctx, teamID, settingsProjectionKey, projection); err != nil {
		return fmt.Errorf("vault: settings projection write failed: %w", err)
	}
	return nil
}

func validateSecretRecord(record core.SecretRecord) error {
	name := strings.TrimSpace(record.Name)
	if name == "" {
		return fmt.Errorf("vault: secret name is required")
	}
	if len(name) > maxSecretNameLength {
		return fmt.Errorf("vault: secret name exceeds %d characters", maxSecretNameLength)
	}
	if !secretNamePattern.MatchString(name) {
		return fmt.Errorf("vault: secret name %q is invalid", name)
	}
	if strings.TrimSpace(record.Value) == "" {
		return fmt.Errorf("vault: secret value is required")
	}
	if len(record.Value) > maxSecretValueBytes {
		return fmt.Errorf("vault: secret value exceeds %d bytes", maxSecretValueBytes)
	}
	for _, scope := range record.Scopes {
		if !scopeAllowed(scope) {
			return fmt.Errorf("vault: scope %q is not allowed", scope)
		}
	}
	return nil
}

func scopeAllowed(scope string) bool {
	scope = strings.ToLower(strings.TrimSpace(scope))
	for _, allowed := range AllowedScopes {
		if scope == allowed {
			return true
		}
	}
	return false
}

func secretMatchesFilter(record core.SecretRecord, filter GetFilter) bool {
	if owner := strings.TrimSpace(filter.Owner); owner != "" {
		if !strings.EqualFold(strings.TrimSpace(record.Owner), owner) {
			return false
		}
	}
	if name := strings.TrimSpace(filter.Name); name != "" {
		if !strings.EqualFold(strings.TrimSpace(record.Name), name) {
			return false
		}
	}

	if filter.AllScopesExceptGlobal {
		if recordHasScope(record, ScopeGlobal) {
			return false
		}
	} else {
		for _, include := range filter.IncludeScopes {
			if !recordHasScope(record, include) {
				return false
			}
		}
	}
	for _, exclude := range filter.ExcludeScopes {
		if recordHasScope(record, exclude) {
			return false
		}
	}

	for key, want := range filter.Metadata {
		got, ok := record.Metadata[key]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func recordHasScope(record core.SecretRecord, scope string) bool {
	scope = strings.ToLower(strings.TrimSpace(scope))
	for _, candidate := range record.Scopes {
		if strings.ToLower(strings.TrimSpace(candidate)) == scope {
			return true
		}
	}
	return false
}

func projectSecretRecord(record core.SecretRecord, fields []string) core.SecretRecord {
	cloned := cloneSecretRecord(record)
	if len(fields) == 0 {
		return cloned
	}
	requested := map[string]struct{}{}
	for _, field := range fields {
		requested[strings.ToLower(strings.TrimSpace(field))] = struct{}{}
	}
	keep := func(field string) bool {
		_, ok := requested[field]
		return ok
	}
	projected := core.SecretRecord{}
	if keep("id") {
		projected.ID = cloned.ID
	}
	if keep("name") {
		projected.Name = cloned.Name
	}
	if keep("value") {
		projected.Value = cloned.Value
	}
	if keep("owner") {
		projected.Owner = cloned.Owner
	}
	if keep("scopes") {
		projected.Scopes = cloned.Scopes
	}
	if keep("team_id") {
		projected.TeamID = cloned.TeamID
	}
	if keep("metadata") {
		projected.Metadata = cloned.Metadata
	}
	return projected
}
