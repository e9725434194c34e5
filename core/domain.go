package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidFlowKind            = errors.New("core: invalid flow kind")
	ErrInvalidFlowPhaseTransition = errors.New("core: invalid flow phase transition")
	ErrFlowSessionNotFound        = errors.New("core: flow session not found")
	ErrFlowSessionExpired         = errors.New("core: flow session expired")
	ErrEntryNotFound              = errors.New("core: connection entry not found")
)

type FlowKind string

const (
	FlowKindOAuth1            FlowKind = "oauth1"
	FlowKindOAuth2            FlowKind = "oauth2"
	FlowKindClientCredentials FlowKind = "client_credentials"
)

func (k FlowKind) Validate() error {
	switch k {
	case FlowKindOAuth1, FlowKindOAuth2, FlowKindClientCredentials:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFlowKind, string(k))
	}
}

// CallbackType is the value posted to the opener window, keyed by flow kind.
func (k FlowKind) CallbackType() string {
	if k == FlowKindOAuth1 {
		return "oauth"
	}
	return "oauth2"
}

type FlowPhase string

const (
	FlowPhaseRequested  FlowPhase = "requested"
	FlowPhaseRedirected FlowPhase = "redirected"
	FlowPhaseReceived   FlowPhase = "received"
	FlowPhaseExchanged  FlowPhase = "exchanged"
	FlowPhasePersisted  FlowPhase = "persisted"
	FlowPhaseDone       FlowPhase = "done"
	FlowPhaseFailed     FlowPhase = "failed"
)

func (p FlowPhase) Terminal() bool {
	return p == FlowPhaseDone || p == FlowPhaseFailed
}

func flowPhaseTransitionAllowed(current, next FlowPhase) bool {
	if next == FlowPhaseFailed {
		return !current.Terminal()
	}
	switch current {
	case FlowPhaseRequested:
		return next == FlowPhaseRedirected
	case FlowPhaseRedirected:
		return next == FlowPhaseReceived
	case FlowPhaseReceived:
		return next == FlowPhaseExchanged
	case FlowPhaseExchanged:
		return next == FlowPhasePersisted
	case FlowPhasePersisted:
		return next == FlowPhaseDone
	default:
		return false
	}
}

// FlowSession is the ephemeral per-session flow record. It is created on
// initiation, read and cleared on callback, and never persisted beyond the
// caller's session lifetime.
type FlowSession struct {
	SessionID string
	TeamID    string

	ProviderID string
	Kind       FlowKind

	ClientID       string
	ClientSecret   string
	ConsumerKey    string
	ConsumerSecret string

	AuthURL         string
	TokenURL        string
	RequestTokenURL string
	AccessTokenURL  string

	Scopes      []string
	Audience    string
	CallbackURL string

	PKCEVerifier       string
	RequestTokenSecret string

	State        string
	Origin       string

	Phase     FlowPhase
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *FlowSession) Transition(next FlowPhase) error {
	if s == nil {
		return fmt.Errorf("core: flow session is nil")
	}
	current := s.Phase
	if current == "" {
		current = FlowPhaseRequested
	}
	if current == next {
		return nil
	}
	if !flowPhaseTransitionAllowed(current, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidFlowPhaseTransition, current, next)
	}
	s.Phase = next
	return nil
}

// AuthData holds the token material of one connection entry. ExpiresAt is an
// absolute unix timestamp in seconds; zero means the provider never reported
// expiry and no fallback applied.
type AuthData struct {
	Primary   string
	Secondary string
	ExpiresAt int64
}

func (d AuthData) Empty() bool {
	return strings.TrimSpace(d.Primary) == "" && strings.TrimSpace(d.Secondary) == ""
}

// ConnectionEntry is the normalized form of a team's persisted credential
// configuration: token values live only inside AuthData, everything else in
// AuthSettings.
type ConnectionEntry struct {
	AuthData     AuthData
	AuthSettings map[string]any
}

// ExchangeResult is the raw outcome of a token exchange: access/refresh token
// for OAuth2 flows, token/token-secret for OAuth 1.0a.
type ExchangeResult struct {
	Primary   string
	Secondary string
	ExpiresIn int64
	Raw       map[string]any
}

// SecretRecord is one vault-backed secret. Within one team, records created
// without an explicit id must have a unique name.
type SecretRecord struct {
	ID       string
	Name     string
	Value    string
	Owner    string
	Scopes   []string
	TeamID   string
	Metadata map[string]any
}

const entryIDSuffix = "_TOKENS"

// EntryID derives the settings key for a provider prefix: "<PREFIX>_TOKENS".
func EntryID(prefix string) string {
	return strings.ToUpper(strings.TrimSpace(prefix)) + entryIDSuffix
}
