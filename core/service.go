package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the credential broker: it drives authorization flows to
// completion, persists the resulting tokens, and serves them back out with
// sensitive fields redacted.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	flowSessions    FlowSessionStore
	settings        SettingsStore
	registry        StrategyRegistry
	persistence     *TokenPersistence
	validator       *ConnectionValidator
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("credentials", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("credentials"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewFlowStrategyRegistry()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.flowSessions == nil {
		builder.flowSessions = NewMemoryFlowSessionStore(finalConfig.FlowSessionTTL())
	}

	service := &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		flowSessions:    builder.flowSessions,
		settings:        builder.settings,
		registry:        builder.registry,
	}
	if builder.settings != nil {
		service.persistence = NewTokenPersistence(builder.settings)
		service.validator = NewConnectionValidator(builder.settings)
	}
	return service, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Registry() StrategyRegistry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Service) CheckAuth(ctx context.Context, req CheckAuthRequest) (matched bool, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"team_id":  req.TeamID,
		"entry_id": EntryID(req.Prefix),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "check_auth", err, fields)
	}()

	if s == nil || s.validator == nil {
		err = s.mapError(fmt.Errorf("core: settings store is required for check auth"))
		return false, err
	}
	matched, err = s.validator.Matches(ctx, req.TeamID, req.Prefix, req.Config)
	if err != nil {
		err = s.mapError(err)
		return false, err
	}
	return matched, nil
}

func (s *Service) InitFlow(ctx context.Context, req InitFlowRequest) (response InitFlowResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": req.Service,
		"team_id":     req.TeamID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "init_flow", err, fields)
	}()

	if s == nil || s.flowSessions == nil {
		err = s.mapError(fmt.Errorf("core: flow session store is required"))
		return InitFlowResponse{}, err
	}

	session, validateErr := s.buildFlowSession(req)
	if validateErr != nil {
		err = s.mapError(validateErr)
		return InitFlowResponse{}, err
	}
	fields["flow_kind"] = string(session.Kind)

	if !s.config.OriginAllowed(req.Origin) {
		wrapped := s.errorFactory(
			fmt.Sprintf("origin %q is not allowed to initiate authorization", strings.TrimSpace(req.Origin)),
			goerrors.CategoryAuthz,
		).WithTextCode(BrokerErrorOriginNotAllowed)
		err = ensureBrokerErrorEnvelope(wrapped)
		return InitFlowResponse{}, err
	}

	if err = s.flowSessions.Save(ctx, session); err != nil {
		err = s.mapError(err)
		return InitFlowResponse{}, err
	}

	return InitFlowResponse{
		AuthPath: "/oauth/" + url.PathEscape(session.ProviderID),
	}, nil
}

func (s *Service) buildFlowSession(req InitFlowRequest) (FlowSession, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return FlowSession{}, fmt.Errorf("core: session id is required")
	}
	service := strings.TrimSpace(strings.ToLower(req.Service))
	if service == "" {
		return FlowSession{}, fmt.Errorf("core: service is required")
	}

	kind := req.Kind
	if kind == "" {
		if strings.TrimSpace(req.ConsumerKey) != "" || strings.TrimSpace(req.ConsumerSecret) != "" {
			kind = FlowKindOAuth1
		} else {
			kind = FlowKindOAuth2
		}
	}
	if err := kind.Validate(); err != nil {
		return FlowSession{}, err
	}

	urlsByField := map[string]string{
		"auth_url":          req.AuthURL,
		"token_url":         req.TokenURL,
		"request_token_url": req.RequestTokenURL,
		"access_token_url":  req.AccessTokenURL,
		"callback_url":      req.CallbackURL,
	}
	for field, value := range urlsByField {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if err := validateHTTPURL(value); err != nil {
			return FlowSession{}, fmt.Errorf("core: %s is invalid: %w", field, err)
		}
	}

	switch kind {
	case FlowKindOAuth2:
		if strings.TrimSpace(req.ClientID) == "" || strings.TrimSpace(req.ClientSecret) == "" {
			return FlowSession{}, fmt.Errorf("core: client id and client secret are required for oauth2")
		}
	case FlowKindOAuth1:
		if strings.TrimSpace(req.ConsumerKey) == "" || strings.TrimSpace(req.ConsumerSecret) == "" {
			return FlowSession{}, fmt.Errorf("core: consumer key and consumer secret are required for oauth1")
		}
	case FlowKindClientCredentials:
		if strings.TrimSpace(req.ClientID) == "" || strings.TrimSpace(req.ClientSecret) == "" {
			return FlowSession{}, fmt.Errorf("core: client id and client secret are required for client credentials")
		}
		if strings.TrimSpace(req.TokenURL) == "" {
			return FlowSession{}, fmt.Errorf("core: token url is required for client credentials")
		}
	}

	return FlowSession{
		SessionID:       sessionID,
		TeamID:          strings.TrimSpace(req.TeamID),
		ProviderID:      service,
		Kind:            kind,
		ClientID:        strings.TrimSpace(req.ClientID),
		ClientSecret:    strings.TrimSpace(req.ClientSecret),
		ConsumerKey:     strings.TrimSpace(req.ConsumerKey),
		ConsumerSecret:  strings.TrimSpace(req.ConsumerSecret),
		AuthURL:         strings.TrimSpace(req.AuthURL),
		TokenURL:        strings.TrimSpace(req.TokenURL),
		RequestTokenURL: strings.TrimSpace(req.RequestTokenURL),
		AccessTokenURL:  strings.TrimSpace(req.AccessTokenURL),
		Scopes:          append([]string(nil), req.Scopes...),
		CallbackURL:     strings.TrimSpace(req.CallbackURL),
		Origin:          strings.TrimSpace(req.Origin),
		Phase:           FlowPhaseRequested,
	}, nil
}

func (s *Service) AuthorizeRedirect(ctx context.Context, req AuthorizeRedirectRequest) (authURL string, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": req.Provider,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "authorize_redirect", err, fields)
	}()

	if s == nil || s.flowSessions == nil {
		err = s.mapError(fmt.Errorf("core: flow session store is required"))
		return "", err
	}

	session, loadErr := s.flowSessions.Get(ctx, req.SessionID)
	if loadErr != nil {
		err = s.mapError(loadErr)
		return "", err
	}
	provider := strings.TrimSpace(strings.ToLower(req.Provider))
	if provider != "" && provider != session.ProviderID {
		err = s.mapError(fmt.Errorf("core: flow session provider mismatch"))
		return "", err
	}
	fields["flow_kind"] = string(session.Kind)

	strategy, ok := s.resolveStrategy(session)
	if !ok {
		err = s.mapError(fmt.Errorf("core: no flow strategy registered for provider %q kind %q", session.ProviderID, session.Kind))
		return "", err
	}

	response, buildErr := strategy.BuildAuthURL(ctx, AuthorizeRequest{Session: session})
	if buildErr != nil {
		err = s.mapError(buildErr)
		return "", err
	}

	session.State = response.State
	session.PKCEVerifier = response.PKCEVerifier
	session.RequestTokenSecret = response.RequestTokenSecret
	if err = session.Transition(FlowPhaseRedirected); err != nil {
		err = s.mapError(err)
		return "", err
	}
	if err = s.flowSessions.Save(ctx, session); err != nil {
		err = s.mapError(err)
		return "", err
	}

	return response.URL, nil
}

// CompleteCallback verifies, exchanges, and persists. The outcome is always
// a CallbackResult addressed to the opener window; failures are folded into
// an error-typed result rather than propagated as transport errors.
func (s *Service) CompleteCallback(ctx context.Context, req CallbackRequest) (result CallbackResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": req.Provider,
	}
	defer func() {
		fields["callback_type"] = result.Type
		s.observeOperation(ctx, startedAt, "complete_callback", err, fields)
		// Failures reach the caller through the error-typed result only.
		err = nil
	}()

	if s == nil || s.flowSessions == nil {
		err = fmt.Errorf("core: flow session store is required")
		return s.callbackFailure(FlowSession{}, CallbackFailureMissingSession, "No pending authorization was found for this session"), err
	}

	session, loadErr := s.flowSessions.Consume(ctx, req.SessionID)
	if loadErr != nil {
		// Cookieless OAuth 1.0a callbacks correlate by request token only.
		session, loadErr = s.consumeByRequestToken(ctx, req.State, loadErr)
	}
	if loadErr != nil {
		err = loadErr
		return s.callbackFailure(FlowSession{}, CallbackFailureMissingSession, "No pending authorization was found for this session"), err
	}
	fields["flow_kind"] = string(session.Kind)
	fields["team_id"] = session.TeamID

	if transitionErr := session.Transition(FlowPhaseReceived); transitionErr != nil {
		err = transitionErr
		return s.callbackFailure(session, CallbackFailureInvalidState, "The authorization flow is not in a valid state"), err
	}

	if strings.TrimSpace(req.ErrorCode) != "" {
		// Redirect callbacks carry no upstream status, only the error params.
		message := strings.TrimSpace(req.ErrorDescription)
		if message == "" {
			message = providerStatusMessage(0)
		}
		err = fmt.Errorf("core: provider returned %q", strings.TrimSpace(req.ErrorCode))
		return s.callbackFailure(session, CallbackFailureProviderError, message), err
	}

	if session.Kind != FlowKindClientCredentials {
		if strings.TrimSpace(req.State) == "" || strings.TrimSpace(req.State) != strings.TrimSpace(session.State) {
			err = fmt.Errorf("core: oauth state mismatch")
			return s.callbackFailure(session, CallbackFailureInvalidState, "The authorization response could not be verified"), err
		}
	}

	strategy, ok := s.resolveStrategy(session)
	if !ok {
		err = fmt.Errorf("core: no flow strategy registered for provider %q kind %q", session.ProviderID, session.Kind)
		return s.callbackFailure(session, CallbackFailureTokenExchangeFailed, "Authorization could not be completed"), err
	}

	exchange, exchangeErr := strategy.ExchangeToken(ctx, ExchangeRequest{
		Session:  session,
		Code:     strings.TrimSpace(req.Code),
		Verifier: strings.TrimSpace(req.Verifier),
	})
	if exchangeErr != nil {
		err = exchangeErr
		var providerErr *ProviderEndpointError
		if errors.As(exchangeErr, &providerErr) {
			return s.callbackFailure(session, CallbackFailureProviderError, providerStatusMessage(providerErr.Status)), err
		}
		return s.callbackFailure(session, CallbackFailureTokenExchangeFailed, "The token exchange with the provider failed"), err
	}
	if transitionErr := session.Transition(FlowPhaseExchanged); transitionErr != nil {
		err = transitionErr
		return s.callbackFailure(session, CallbackFailureTokenExchangeFailed, "Authorization could not be completed"), err
	}

	if s.persistence == nil {
		err = fmt.Errorf("core: settings store is required to persist tokens")
		return s.callbackFailure(session, CallbackFailureTokenExchangeFailed, "Authorization could not be completed"), err
	}
	if _, persistErr := s.persistence.Store(ctx, StoreTokensInput{
		TeamID:         session.TeamID,
		Prefix:         session.ProviderID,
		Result:         exchange,
		ProviderConfig: sessionProviderConfig(session),
		AuthHost:       sessionAuthHost(session),
	}); persistErr != nil {
		err = persistErr
		return s.callbackFailure(session, CallbackFailureTokenExchangeFailed, "Authorization could not be completed"), err
	}
	if transitionErr := session.Transition(FlowPhasePersisted); transitionErr != nil {
		err = transitionErr
		return s.callbackFailure(session, CallbackFailureTokenExchangeFailed, "Authorization could not be completed"), err
	}
	_ = session.Transition(FlowPhaseDone)

	return CallbackResult{
		Type: session.Kind.CallbackType(),
		Data: map[string]any{
			"success":  true,
			"provider": session.ProviderID,
		},
		Origin: callbackOrigin(session),
	}, nil
}

// consumeByRequestToken falls back to state-keyed lookup for OAuth 1.0a
// flows. Other kinds keep the original load error: their state alone must
// never stand in for session identity.
func (s *Service) consumeByRequestToken(ctx context.Context, state string, loadErr error) (FlowSession, error) {
	consumer, ok := s.flowSessions.(FlowSessionStateConsumer)
	if !ok || strings.TrimSpace(state) == "" {
		return FlowSession{}, loadErr
	}
	session, stateErr := consumer.ConsumeByState(ctx, state)
	if stateErr != nil {
		return FlowSession{}, loadErr
	}
	if session.Kind != FlowKindOAuth1 {
		return FlowSession{}, loadErr
	}
	return session, nil
}

func (s *Service) callbackFailure(session FlowSession, failure string, message string) CallbackResult {
	_ = session.Transition(FlowPhaseFailed)
	return CallbackResult{
		Type: "error",
		Data: map[string]any{
			"error":   failure,
			"message": message,
		},
		Origin: callbackOrigin(session),
	}
}

func (s *Service) ClientCredentials(ctx context.Context, req ClientCredentialsRequest) (response ClientCredentialsResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": req.Service,
		"team_id":     req.TeamID,
		"flow_kind":   string(FlowKindClientCredentials),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "client_credentials", err, fields)
	}()

	if s == nil {
		return ClientCredentialsResponse{}, fmt.Errorf("core: service is nil")
	}
	service := strings.TrimSpace(strings.ToLower(req.Service))
	if service == "" {
		service = "client_credentials"
	}
	if strings.TrimSpace(req.ClientID) == "" || strings.TrimSpace(req.ClientSecret) == "" {
		err = s.mapError(fmt.Errorf("core: client id and client secret are required"))
		return ClientCredentialsResponse{}, err
	}
	if urlErr := validateHTTPURL(req.TokenURL); urlErr != nil {
		err = s.mapError(fmt.Errorf("core: token url is invalid: %w", urlErr))
		return ClientCredentialsResponse{}, err
	}

	session := FlowSession{
		TeamID:       strings.TrimSpace(req.TeamID),
		ProviderID:   service,
		Kind:         FlowKindClientCredentials,
		ClientID:     strings.TrimSpace(req.ClientID),
		ClientSecret: strings.TrimSpace(req.ClientSecret),
		TokenURL:     strings.TrimSpace(req.TokenURL),
		Scopes:       append([]string(nil), req.Scopes...),
		Audience:     strings.TrimSpace(req.Audience),
	}

	strategy, ok := s.resolveStrategy(session)
	if !ok {
		err = s.mapError(fmt.Errorf("core: no flow strategy registered for kind %q", FlowKindClientCredentials))
		return ClientCredentialsResponse{}, err
	}

	exchange, exchangeErr := strategy.ExchangeToken(ctx, ExchangeRequest{Session: session})
	if exchangeErr != nil {
		err = s.mapError(exchangeErr)
		return ClientCredentialsResponse{}, err
	}

	if s.persistence == nil {
		err = s.mapError(fmt.Errorf("core: settings store is required to persist tokens"))
		return ClientCredentialsResponse{}, err
	}
	if _, persistErr := s.persistence.Store(ctx, StoreTokensInput{
		TeamID:         session.TeamID,
		Prefix:         session.ProviderID,
		Result:         exchange,
		ProviderConfig: sessionProviderConfig(session),
		AuthHost:       sessionAuthHost(session),
	}); persistErr != nil {
		err = s.mapError(persistErr)
		return ClientCredentialsResponse{}, err
	}

	return ClientCredentialsResponse{
		Success: true,
		Message: "Authentication successful",
	}, nil
}

// SignOut clears an entry's tokens while keeping its settings. Signing out
// of an already signed-out entry performs no write.
func (s *Service) SignOut(ctx context.Context, req SignOutRequest) (response SignOutResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"team_id":  req.TeamID,
		"entry_id": EntryID(req.Prefix),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "sign_out", err, fields)
	}()

	if s == nil || s.settings == nil {
		err = s.mapError(fmt.Errorf("core: settings store is required for sign out"))
		return SignOutResponse{}, err
	}
	teamID := strings.TrimSpace(req.TeamID)
	prefix := strings.TrimSpace(req.Prefix)
	if teamID == "" || prefix == "" {
		err = s.mapError(fmt.Errorf("core: team id and prefix are required"))
		return SignOutResponse{}, err
	}

	entryID := EntryID(prefix)
	raw, found, loadErr := s.settings.Get(ctx, teamID, entryID)
	if loadErr != nil {
		err = s.mapError(fmt.Errorf("core: settings store read failed: %w", loadErr))
		return SignOutResponse{}, err
	}
	if !found {
		err = s.mapError(fmt.Errorf("%w: %s", ErrEntryNotFound, entryID))
		return SignOutResponse{}, err
	}

	entry := NormalizeEntry(raw)
	if entry.AuthData.Empty() {
		return SignOutResponse{Invalidate: true, Message: "Already signed out."}, nil
	}

	entry.AuthData = AuthData{}
	if writeErr := s.settings.Set(ctx, teamID, entryID, entry.ToMap()); writeErr != nil {
		err = s.mapError(fmt.Errorf("core: settings store write failed: %w", writeErr))
		return SignOutResponse{}, err
	}
	return SignOutResponse{Invalidate: true}, nil
}

// GetConnection returns a sanitized copy of a stored entry. The stored record
// itself is never mutated.
func (s *Service) GetConnection(ctx context.Context, teamID string, prefix string) (entry map[string]any, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"team_id":  teamID,
		"entry_id": EntryID(prefix),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_connection", err, fields)
	}()

	if s == nil || s.settings == nil {
		err = s.mapError(fmt.Errorf("core: settings store is required"))
		return nil, err
	}
	raw, found, loadErr := s.settings.Get(ctx, strings.TrimSpace(teamID), EntryID(prefix))
	if loadErr != nil {
		err = s.mapError(fmt.Errorf("core: settings store read failed: %w", loadErr))
		return nil, err
	}
	if !found {
		err = s.mapError(fmt.Errorf("%w: %s", ErrEntryNotFound, EntryID(prefix)))
		return nil, err
	}
	return SanitizeEntry(raw), nil
}

func (s *Service) resolveStrategy(session FlowSession) (FlowStrategy, bool) {
	if s == nil || s.registry == nil {
		return nil, false
	}
	return s.registry.Resolve(session.ProviderID, session.Kind)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func callbackOrigin(session FlowSession) string {
	if origin := strings.TrimSpace(session.Origin); origin != "" {
		return origin
	}
	return "*"
}

func sessionAuthHost(session FlowSession) string {
	for _, raw := range []string{session.AuthURL, session.TokenURL, session.AccessTokenURL} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		parsed, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		if parsed.Host != "" {
			return parsed.Host
		}
	}
	return ""
}

// sessionProviderConfig projects the flow configuration into the settings
// fields persisted alongside the tokens. Secrets land here intentionally:
// reads pass through the sanitizer before leaving the process.
func sessionProviderConfig(session FlowSession) map[string]any {
	config := map[string]any{
		"service": session.ProviderID,
	}
	setIfNotEmpty := func(key, value string) {
		if strings.TrimSpace(value) != "" {
			config[key] = strings.TrimSpace(value)
		}
	}
	setIfNotEmpty("client_id", session.ClientID)
	setIfNotEmpty("client_secret", session.ClientSecret)
	setIfNotEmpty("consumer_key", session.ConsumerKey)
	setIfNotEmpty("consumer_secret", session.ConsumerSecret)
	setIfNotEmpty("auth_url", session.AuthURL)
	setIfNotEmpty("token_url", session.TokenURL)
	setIfNotEmpty("request_token_url", session.RequestTokenURL)
	setIfNotEmpty("access_token_url", session.AccessTokenURL)
	setIfNotEmpty("callback_url", session.CallbackURL)
	setIfNotEmpty("audience", session.Audience)
	if len(session.Scopes) > 0 {
		config["scope"] = strings.Join(session.Scopes, " ")
	}
	return config
}

func validateHTTPURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("url is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return err
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("scheme %q is not allowed", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

var _ CredentialBroker = (*Service)(nil)
