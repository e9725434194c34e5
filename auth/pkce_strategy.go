package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
)

type PKCEStrategyConfig struct {
	TokenRequestTimeout time.Duration
	HTTPClient          HTTPDoer
}

// PKCEStrategy is the authorization code flow with an S256 proof key.
// Registered per provider id for providers that require PKCE; the broker
// never selects it by hostname inspection.
type PKCEStrategy struct {
	tokens *tokenClient
}

func NewPKCEStrategy(cfg PKCEStrategyConfig) *PKCEStrategy {
	return &PKCEStrategy{
		tokens: newTokenClient(cfg.HTTPClient, cfg.TokenRequestTimeout),
	}
}

func (*PKCEStrategy) Kind() core.FlowKind {
	return core.FlowKindOAuth2
}

func (s *PKCEStrategy) BuildAuthURL(_ context.Context, req core.AuthorizeRequest) (core.AuthorizeResponse, error) {
	if s == nil {
		return core.AuthorizeResponse{}, fmt.Errorf("auth: pkce strategy is nil")
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
	verifier, err := generatePKCEVerifier()
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
	values.Set("code_challenge", pkceChallengeS256(verifier))
	values.Set("code_challenge_method", "S256")

	return core.AuthorizeResponse{
		URL:          appendQuery(strings.TrimSpace(session.AuthURL), values.Encode()),
		State:        state,
		PKCEVerifier: verifier,
	}, nil
}

func (s *PKCEStrategy) ExchangeToken(ctx context.Context, req core.ExchangeRequest) (core.ExchangeResult, error) {
	if s == nil {
		return core.ExchangeResult{}, fmt.Errorf("auth: pkce strategy is nil")
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return core.ExchangeResult{}, fmt.Errorf("auth: authorization code is required")
	}
	session := req.Session
	verifier := strings.TrimSpace(req.Verifier)
	if verifier == "" {
		verifier = strings.TrimSpace(session.PKCEVerifier)
	}
	if verifier == "" {
		return core.ExchangeResult{}, fmt.Errorf("auth: pkce verifier is required for provider %q", session.ProviderID)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("code_verifier", verifier)
	if redirect := strings.TrimSpace(session.CallbackURL); redirect != "" {
		form.Set("redirect_uri", redirect)
	}

	// PKCE-requiring providers expect the secret in the form body.
	payload, err := s.tokens.fetch(ctx, tokenRequest{
		TokenURL:     session.TokenURL,
		ClientID:     session.ClientID,
		ClientSecret: session.ClientSecret,
		SecretInBody: true,
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

func generatePKCEVerifier() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("auth: generate pkce verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func pkceChallengeS256(verifier string) string {
	digest := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

var _ core.FlowStrategy = (*PKCEStrategy)(nil)
