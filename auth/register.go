package auth

import (
	"time"

	"github.com/goliatone/go-credentials/core"
)

// PKCEProviderIDs lists providers whose authorization code flow requires a
// proof key. Resolution is by provider id; hostnames are never inspected.
var PKCEProviderIDs = []string{"salesforce"}

type RegisterConfig struct {
	ClientSecretInBody  bool
	TokenRequestTimeout time.Duration
	HTTPClient          HTTPDoer
}

// RegisterDefaultStrategies wires the standard strategies into a broker
// registry: one per flow kind plus PKCE registrations for the providers
// that require it.
func RegisterDefaultStrategies(registry core.StrategyRegistry, cfg RegisterConfig) error {
	if err := registry.Register(NewOAuth2CodeStrategy(OAuth2CodeStrategyConfig{
		ClientSecretInBody:  cfg.ClientSecretInBody,
		TokenRequestTimeout: cfg.TokenRequestTimeout,
		HTTPClient:          cfg.HTTPClient,
	})); err != nil {
		return err
	}
	if err := registry.Register(NewOAuth1Strategy(OAuth1StrategyConfig{
		RequestTimeout: cfg.TokenRequestTimeout,
		HTTPClient:     cfg.HTTPClient,
	})); err != nil {
		return err
	}
	if err := registry.Register(NewClientCredentialsStrategy(ClientCredentialsStrategyConfig{
		ClientSecretInBody:  cfg.ClientSecretInBody,
		TokenRequestTimeout: cfg.TokenRequestTimeout,
		HTTPClient:          cfg.HTTPClient,
	})); err != nil {
		return err
	}

	pkce := NewPKCEStrategy(PKCEStrategyConfig{
		TokenRequestTimeout: cfg.TokenRequestTimeout,
		HTTPClient:          cfg.HTTPClient,
	})
	for _, providerID := range PKCEProviderIDs {
		if err := registry.RegisterForProvider(providerID, pkce); err != nil {
			return err
		}
	}
	return nil
}
