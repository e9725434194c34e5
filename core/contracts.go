package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

// SettingsStore is the team-scoped settings collaborator. Connection entries
// and secret projections are stored as JSON-shaped maps under a per-team key.
type SettingsStore interface {
	Get(ctx context.Context, teamID string, key string) (map[string]any, bool, error)
	Set(ctx context.Context, teamID string, key string, value map[string]any) error
	Delete(ctx context.Context, teamID string, key string) error
}

// FlowSessionStore keeps pending flow sessions keyed by the caller's HTTP
// session identity. Consume removes the record so a session is read exactly
// once by the callback.
type FlowSessionStore interface {
	Save(ctx context.Context, session FlowSession) error
	Get(ctx context.Context, sessionID string) (FlowSession, error)
	Consume(ctx context.Context, sessionID string) (FlowSession, error)
}

// FlowSessionStateConsumer is implemented by stores that can consume a
// pending session by its state value. OAuth 1.0a callbacks arrive without
// the initiating cookie in some user agents and carry only the request
// token, which is stored as the session state.
type FlowSessionStateConsumer interface {
	ConsumeByState(ctx context.Context, state string) (FlowSession, error)
}

type AuthorizeRequest struct {
	Session FlowSession
}

type AuthorizeResponse struct {
	URL          string
	State        string
	PKCEVerifier string

	// RequestTokenSecret carries the OAuth 1.0a temporary token secret
	// between the request-token and access-token legs.
	RequestTokenSecret string
}

type ExchangeRequest struct {
	Session  FlowSession
	Code     string
	Verifier string
}

// FlowStrategy builds the provider authorization redirect and performs the
// token exchange for one protocol kind.
type FlowStrategy interface {
	Kind() FlowKind
	BuildAuthURL(ctx context.Context, req AuthorizeRequest) (AuthorizeResponse, error)
	ExchangeToken(ctx context.Context, req ExchangeRequest) (ExchangeResult, error)
}

// StrategyRegistry resolves flow strategies. Provider-specific registrations
// win over kind-level ones, so a provider that needs a bespoke branch (PKCE)
// is selected by id, never by hostname inspection.
type StrategyRegistry interface {
	Register(strategy FlowStrategy) error
	RegisterForProvider(providerID string, strategy FlowStrategy) error
	Resolve(providerID string, kind FlowKind) (FlowStrategy, bool)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type CheckAuthRequest struct {
	TeamID string
	Prefix string
	Config map[string]any
}

type InitFlowRequest struct {
	SessionID string
	TeamID    string
	Origin    string

	Service string
	Kind    FlowKind

	ClientID       string
	ClientSecret   string
	ConsumerKey    string
	ConsumerSecret string

	AuthURL         string
	TokenURL        string
	RequestTokenURL string
	AccessTokenURL  string

	Scopes      []string
	CallbackURL string
}

type InitFlowResponse struct {
	AuthPath string
}

type AuthorizeRedirectRequest struct {
	SessionID string
	Provider  string
}

type CallbackRequest struct {
	SessionID string
	Provider  string

	Code     string
	State    string
	Verifier string

	ErrorCode        string
	ErrorDescription string
}

const (
	CallbackFailureInvalidState        = "invalid_state"
	CallbackFailureTokenExchangeFailed = "token_exchange_failed"
	CallbackFailureProviderError       = "provider_error"
	CallbackFailureMissingSession      = "missing_session"
)

// CallbackResult is what the callback page posts to the opener window:
// {type, data} targeted at Origin. Origin is "*" only when no origin could
// be determined.
type CallbackResult struct {
	Type   string
	Data   map[string]any
	Origin string
}

type ClientCredentialsRequest struct {
	TeamID string

	Service      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	Audience     string
}

type ClientCredentialsResponse struct {
	Success bool
	Message string
}

type SignOutRequest struct {
	TeamID string
	Prefix string
}

type SignOutResponse struct {
	Invalidate bool
	Message    string
}

// CredentialBroker is the full broker surface consumed by transports and the
// command wrappers.
type CredentialBroker interface {
	CheckAuth(ctx context.Context, req CheckAuthRequest) (bool, error)
	InitFlow(ctx context.Context, req InitFlowRequest) (InitFlowResponse, error)
	AuthorizeRedirect(ctx context.Context, req AuthorizeRedirectRequest) (string, error)
	CompleteCallback(ctx context.Context, req CallbackRequest) (CallbackResult, error)
	ClientCredentials(ctx context.Context, req ClientCredentialsRequest) (ClientCredentialsResponse, error)
	SignOut(ctx context.Context, req SignOutRequest) (SignOutResponse, error)
	GetConnection(ctx context.Context, teamID string, prefix string) (map[string]any, error)
}
