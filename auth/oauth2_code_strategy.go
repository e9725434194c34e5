package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
)

type OAuth2CodeStrategyConfig struct {
	// ClientSecretInBody sends the secret as a form field on exchange
	// instead of basic auth.
	ClientSecretInBody bool

	TokenRequestTimeout time.Duration
	HTTPClient          HTTPDoer
}

// OAuth2CodeStrategy drives the standard authorization code flow. All
// provider endpoints and credentials come from the flow session, so one
// instance serves every configured provider.
type OAuth2CodeStrategy struct {
	config OAuth2CodeStrategyConfig
	tokens *tokenClient
}

func NewOAuth2CodeStrategy(cfg OAuth2CodeStrategyConfig) *OAuth2CodeStrategy {
	return &OAuth2CodeStrategy{
		config: cfg,
		tokens: newTokenClient(cfg.HTTPClient, cfg.TokenRequestTimeout),
	}
}

func (*OAuth2CodeStrategy) Kind() core.FlowKind {
	return core.FlowKindOAuth2
}

func (s *OAuth2CodeStrategy) BuildAuthURL(_ context.Context, req core.AuthorizeRequest) (core.AuthorizeResponse, error) {
	if s == nil {
		return core.AuthorizeResponse{}, fmt.Errorf("auth: oauth2 strategy is nil")
	}
	session := req.Session
	if strings.TrimSpace(session.AuthURL) == "" {
		return core.AuthorizeResponse{}, fmt.Errorf("auth: auth url is required for provider %q", session.ProviderID)
	}
	if strings.TrimSpace(session.ClientID) == "" {
		return core.AuthorizeResponse{}, fmt.Errorf("auth: client id is required for provider %q", session.ProviderID)
	}

	state, err := core.GenerateFlowState()
	if err != nil {
		return core.AuthorizeResponse{}, err
	}

	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", strings.TrimSpace(session.ClientID))
	if redirect := strings.TrimSpace(session.CallbackURL); redirect != "" {
		values.Set("redirect_uri", redirect)
	}
	if scopes := normalizeScopes(session.Scopes); len(scopes) > 0 {
		values.Set("scope", strings.Join(scopes, " "))
	}
	values.Set("state", state)

	return core.AuthorizeResponse{
		URL:   appendQuery(strings.TrimSpace(session.AuthURL), values.Encode()),
		State: state,
	}, nil
}

func (s *OAuth2CodeStrategy) ExchangeToken(ctx context.Context, req core.ExchangeRequest) (core.ExchangeResult, error) {
	if s == nil {
		return core.ExchangeResult{}, fmt.Errorf("auth: oauth2 strategy is nil")
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return core.ExchangeResult{}, fmt.Errorf("auth: authorization code is required")
	}
	session := req.Session

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if redirect := strings.TrimSpace(session.CallbackURL); redirect != "" {
		form.Set("redirect_uri", redirect)
	}

	payload, err := s.tokens.fetch(ctx, tokenRequest{
		TokenURL:     session.TokenURL,
		ClientID:     session.ClientID,
		ClientSecret: session.ClientSecret,
		SecretInBody: s.config.ClientSecretInBody,
		Form:         form,
	})
	if err != nil {
		return core.ExchangeResult{}, err
	}

	return core.ExchangeResult{
		Primary:   payload.AccessToken,
		Secondary: payload.RefreshToken,
		ExpiresIn: payload.ExpiresIn,
		Raw:       payload.Raw,
	}, nil
}

var _ core.FlowStrategy = (*OAuth2CodeStrategy)(nil)
