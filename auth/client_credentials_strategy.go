package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
)

type ClientCredentialsStrategyConfig struct {
	ClientSecretInBody  bool
	TokenRequestTimeout time.Duration
	HTTPClient          HTTPDoer
}

// ClientCredentialsStrategy performs the non-interactive client credentials
// grant. There is no redirect leg; BuildAuthURL always fails.
type ClientCredentialsStrategy struct {
	config ClientCredentialsStrategyConfig
	tokens *tokenClient
}

func NewClientCredentialsStrategy(cfg ClientCredentialsStrategyConfig) *ClientCredentialsStrategy {
	return &ClientCredentialsStrategy{
		config: cfg,
		tokens: newTokenClient(cfg.HTTPClient, cfg.TokenRequestTimeout),
	}
}

func (*ClientCredentialsStrategy) Kind() core.FlowKind {
	return core.FlowKindClientCredentials
}

func (*ClientCredentialsStrategy) BuildAuthURL(context.Context, core.AuthorizeRequest) (core.AuthorizeResponse, error) {
	return core.AuthorizeResponse{}, fmt.Errorf("auth: client credentials grant has no authorization redirect")
}

func (s *ClientCredentialsStrategy) ExchangeToken(ctx context.Context, req core.ExchangeRequest) (core.ExchangeResult, error) {
	if s == nil {
		return core.ExchangeResult{}, fmt.Errorf("auth: client credentials strategy is nil")
	}
	session := req.Session
	if strings.TrimSpace(session.ClientID) == "" || strings.TrimSpace(session.ClientSecret) == "" {
		return core.ExchangeResult{}, fmt.Errorf("auth: client id and client secret are required")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if scopes := normalizeScopes(session.Scopes); len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}
	if audience := strings.TrimSpace(session.Audience); audience != "" {
		form.Set("audience", audience)
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

var _ core.FlowStrategy = (*ClientCredentialsStrategy)(nil)
