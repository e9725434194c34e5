package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultFlowSessionTTL = 15 * time.Minute

type MemoryFlowSessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]FlowSession
}

func NewMemoryFlowSessionStore(ttl time.Duration) *MemoryFlowSessionStore {
	if ttl <= 0 {
		ttl = defaultFlowSessionTTL
	}
	return &MemoryFlowSessionStore{
		ttl:     ttl,
		entries: map[string]FlowSession{},
	}
}

func (s *MemoryFlowSessionStore) Save(_ context.Context, session FlowSession) error {
	if s == nil {
		return fmt.Errorf("core: flow session store is not configured")
	}
	sessionID := strings.TrimSpace(session.SessionID)
	if sessionID == "" {
		return fmt.Errorf("core: flow session id is required")
	}

	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = session.CreatedAt.Add(s.ttl)
	}
	if session.Phase == "" {
		session.Phase = FlowPhaseRequested
	}

	s.mu.Lock()
	s.entries[sessionID] = cloneFlowSession(session)
	s.mu.Unlock()

	return nil
}

func (s *MemoryFlowSessionStore) Get(_ context.Context, sessionID string) (FlowSession, error) {
	if s == nil {
		return FlowSession{}, fmt.Errorf("core: flow session store is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return FlowSession{}, fmt.Errorf("core: flow session id is required")
	}

	s.mu.Lock()
	session, ok := s.entries[sessionID]
	s.mu.Unlock()

	if !ok {
		return FlowSession{}, ErrFlowSessionNotFound
	}
	if !session.ExpiresAt.IsZero() && time.Now().UTC().After(session.ExpiresAt) {
		return FlowSession{}, ErrFlowSessionExpired
	}
	return cloneFlowSession(session), nil
}

func (s *MemoryFlowSessionStore) Consume(_ context.Context, sessionID string) (FlowSession, error) {
	if s == nil {
		return FlowSession{}, fmt.Errorf("core: flow session store is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return FlowSession{}, fmt.Errorf("core: flow session id is required")
	}

	s.mu.Lock()
	session, ok := s.entries[sessionID]
	if ok {
		delete(s.entries, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return FlowSession{}, ErrFlowSessionNotFound
	}
	if !session.ExpiresAt.IsZero() && time.Now().UTC().After(session.ExpiresAt) {
		return FlowSession{}, ErrFlowSessionExpired
	}
	return cloneFlowSession(session), nil
}

func (s *MemoryFlowSessionStore) ConsumeByState(_ context.Context, state string) (FlowSession, error) {
	if s == nil {
		return FlowSession{}, fmt.Errorf("core: flow session store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return FlowSession{}, fmt.Errorf("core: flow session state is required")
	}

	s.mu.Lock()
	var session FlowSession
	var found bool
	for sessionID, candidate := range s.entries {
		// Only OAuth 1.0a sessions may be correlated by state: the request
		// token is provider-issued, unlike the locally generated CSRF state.
		if candidate.Kind == FlowKindOAuth1 && candidate.State == state {
			session = candidate
			found = true
			delete(s.entries, sessionID)
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return FlowSession{}, ErrFlowSessionNotFound
	}
	if !session.ExpiresAt.IsZero() && time.Now().UTC().After(session.ExpiresAt) {
		return FlowSession{}, ErrFlowSessionExpired
	}
	return cloneFlowSession(session), nil
}

// GenerateFlowState returns a fresh CSRF state value. States are generated
// per attempt and must match exactly at callback time.
func GenerateFlowState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate flow state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func cloneFlowSession(session FlowSession) FlowSession {
	cloned := session
	cloned.Scopes = append([]string(nil), session.Scopes...)
	return cloned
}

var (
	_ FlowSessionStore         = (*MemoryFlowSessionStore)(nil)
	_ FlowSessionStateConsumer = (*MemoryFlowSessionStore)(nil)
)

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
