package credentials

import "github.com/goliatone/go-credentials/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type CredentialBroker = core.CredentialBroker
type SettingsStore = core.SettingsStore
type FlowSessionStore = core.FlowSessionStore
type StrategyRegistry = core.StrategyRegistry

type CheckAuthRequest = core.CheckAuthRequest
type InitFlowRequest = core.InitFlowRequest
type InitFlowResponse = core.InitFlowResponse
type AuthorizeRedirectRequest = core.AuthorizeRedirectRequest
type CallbackRequest = core.CallbackRequest
type CallbackResult = core.CallbackResult
type ClientCredentialsRequest = core.ClientCredentialsRequest
type ClientCredentialsResponse = core.ClientCredentialsResponse
type SignOutRequest = core.SignOutRequest
type SignOutResponse = core.SignOutResponse

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorFactory     = core.WithErrorFactory
	WithErrorMapper      = core.WithErrorMapper
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithFlowSessionStore = core.WithFlowSessionStore
	WithSettingsStore    = core.WithSettingsStore
	WithStrategyRegistry = core.WithStrategyRegistry
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
