package core

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func newTestService(t *testing.T, store *memorySettingsStore, strategies ...FlowStrategy) *Service {
	t.Helper()
	registry := NewFlowStrategyRegistry()
	for _, strategy := range strategies {
		if err := registry.Register(strategy); err != nil {
			t.Fatalf("register strategy: %v", err)
		}
	}
	svc, err := NewService(Config{},
		WithSettingsStore(store),
		WithStrategyRegistry(registry),
		WithFlowSessionStore(NewMemoryFlowSessionStore(time.Minute)),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func initOAuth2Flow(t *testing.T, svc *Service, sessionID string) InitFlowResponse {
	t.Helper()
	response, err := svc.InitFlow(context.Background(), InitFlowRequest{
		SessionID:    sessionID,
		TeamID:       "team_1",
		Service:      "slack",
		ClientID:     "client_abc",
		ClientSecret: "client_secret_value",
		AuthURL:      "https://slack.com/oauth/v2/authorize",
		TokenURL:     "https://slack.com/api/oauth.v2.access",
		Scopes:       []string{"chat:write"},
		Origin:       "https://app.example.com",
	})
	if err != nil {
		t.Fatalf("init flow: %v", err)
	}
	return response
}

func TestService_InitFlowReturnsAuthPath(t *testing.T) {
	svc := newTestService(t, newMemorySettingsStore(), &stubFlowStrategy{kind: FlowKindOAuth2})

	response := initOAuth2Flow(t, svc, "session_1")
	if response.AuthPath != "/oauth/slack" {
		t.Fatalf("expected /oauth/slack, got %q", response.AuthPath)
	}

	session, err := svc.flowSessions.Get(context.Background(), "session_1")
	if err != nil {
		t.Fatalf("expected pending session, got %v", err)
	}
	if session.Phase != FlowPhaseRequested || session.Kind != FlowKindOAuth2 {
		t.Fatalf("unexpected session %#v", session)
	}
}

func TestService_InitFlowValidation(t *testing.T) {
	svc := newTestService(t, newMemorySettingsStore(), &stubFlowStrategy{kind: FlowKindOAuth2})

	cases := map[string]InitFlowRequest{
		"missing service": {
			SessionID:    "session_1",
			ClientID:     "client_abc",
			ClientSecret: "secret",
		},
		"missing session id": {
			Service:      "slack",
			ClientID:     "client_abc",
			ClientSecret: "secret",
		},
		"missing oauth2 secret": {
			SessionID: "session_1",
			Service:   "slack",
			ClientID:  "client_abc",
		},
		"missing oauth1 consumer secret": {
			SessionID:   "session_1",
			Service:     "twitter",
			Kind:        FlowKindOAuth1,
			ConsumerKey: "consumer_abc",
		},
		"non-http auth url": {
			SessionID:    "session_1",
			Service:      "slack",
			ClientID:     "client_abc",
			ClientSecret: "secret",
			AuthURL:      "ftp://slack.com/authorize",
		},
		"unparseable token url": {
			SessionID:    "session_1",
			Service:      "slack",
			ClientID:     "client_abc",
			ClientSecret: "secret",
			TokenURL:     "://bad",
		},
	}

	for label, request := range cases {
		if _, err := svc.InitFlow(context.Background(), request); err == nil {
			t.Fatalf("expected %s to be rejected", label)
		}
	}
}

func TestService_InitFlowInfersKindFromConsumerKey(t *testing.T) {
	svc := newTestService(t, newMemorySettingsStore(), &stubFlowStrategy{kind: FlowKindOAuth1})

	if _, err := svc.InitFlow(context.Background(), InitFlowRequest{
		SessionID:      "session_1",
		Service:        "twitter",
		ConsumerKey:    "consumer_abc",
		ConsumerSecret: "consumer_secret_value",
	}); err != nil {
		t.Fatalf("init flow: %v", err)
	}

	session, err := svc.flowSessions.Get(context.Background(), "session_1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.Kind != FlowKindOAuth1 {
		t.Fatalf("expected oauth1 inferred, got %q", session.Kind)
	}
}

func TestService_InitFlowEnforcesOriginAllowList(t *testing.T) {
	registry := NewFlowStrategyRegistry()
	svc, err := NewService(Config{AllowedOrigins: []string{"https://app.example.com"}},
		WithSettingsStore(newMemorySettingsStore()),
		WithStrategyRegistry(registry),
		WithFlowSessionStore(NewMemoryFlowSessionStore(time.Minute)),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.InitFlow(context.Background(), InitFlowRequest{
		SessionID:    "session_1",
		Service:      "slack",
		ClientID:     "client_abc",
		ClientSecret: "secret",
		Origin:       "https://evil.example.net",
	})
	if err == nil {
		t.Fatalf("expected disallowed origin to be rejected")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected rich error, got %v", err)
	}
	if richErr.TextCode != BrokerErrorOriginNotAllowed {
		t.Fatalf("expected %s, got %q", BrokerErrorOriginNotAllowed, richErr.TextCode)
	}

	if _, err := svc.InitFlow(context.Background(), InitFlowRequest{
		SessionID:    "session_2",
		Service:      "slack",
		ClientID:     "client_abc",
		ClientSecret: "secret",
		Origin:       "https://app.example.com/",
	}); err != nil {
		t.Fatalf("expected trailing-slash origin to be allowed, got %v", err)
	}
}

func TestService_AuthorizeRedirect(t *testing.T) {
	strategy := &stubFlowStrategy{
		kind: FlowKindOAuth2,
		authResp: AuthorizeResponse{
			URL:   "https://slack.com/oauth/v2/authorize?state=state_abc",
			State: "state_abc",
		},
	}
	svc := newTestService(t, newMemorySettingsStore(), strategy)
	initOAuth2Flow(t, svc, "session_1")

	authURL, err := svc.AuthorizeRedirect(context.Background(), AuthorizeRedirectRequest{
		SessionID: "session_1",
		Provider:  "slack",
	})
	if err != nil {
		t.Fatalf("authorize redirect: %v", err)
	}
	if authURL != strategy.authResp.URL {
		t.Fatalf("unexpected auth url %q", authURL)
	}

	session, err := svc.flowSessions.Get(context.Background(), "session_1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.Phase != FlowPhaseRedirected || session.State != "state_abc" {
		t.Fatalf("expected redirected session with state, got %#v", session)
	}
}

func TestService_AuthorizeRedirectRejectsProviderMismatch(t *testing.T) {
	svc := newTestService(t, newMemorySettingsStore(), &stubFlowStrategy{kind: FlowKindOAuth2})
	initOAuth2Flow(t, svc, "session_1")

	if _, err := svc.AuthorizeRedirect(context.Background(), AuthorizeRedirectRequest{
		SessionID: "session_1",
		Provider:  "github",
	}); err == nil {
		t.Fatalf("expected provider mismatch to be rejected")
	}
}

func redirectedSession(t *testing.T, svc *Service, sessionID string) {
	t.Helper()
	initOAuth2Flow(t, svc, sessionID)
	if _, err := svc.AuthorizeRedirect(context.Background(), AuthorizeRedirectRequest{
		SessionID: sessionID,
		Provider:  "slack",
	}); err != nil {
		t.Fatalf("authorize redirect: %v", err)
	}
}

func TestService_CompleteCallbackPersistsTokens(t *testing.T) {
	store := newMemorySettingsStore()
	strategy := &stubFlowStrategy{
		kind:     FlowKindOAuth2,
		authResp: AuthorizeResponse{URL: "https://slack.com/authorize", State: "state_abc"},
		exchange: ExchangeResult{Primary: "access_value", Secondary: "refresh_value", ExpiresIn: 3600},
	}
	svc := newTestService(t, store, strategy)
	redirectedSession(t, svc, "session_1")

	result, err := svc.CompleteCallback(context.Background(), CallbackRequest{
		SessionID: "session_1",
		Provider:  "slack",
		Code:      "auth_code",
		State:     "state_abc",
	})
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if result.Type != "oauth2" {
		t.Fatalf("expected oauth2 result, got %#v", result)
	}
	if result.Origin != "https://app.example.com" {
		t.Fatalf("expected opener origin, got %q", result.Origin)
	}
	if result.Data["success"] != true {
		t.Fatalf("expected success payload, got %#v", result.Data)
	}
	if strategy.lastExchange.Code != "auth_code" {
		t.Fatalf("expected code forwarded to exchange, got %#v", strategy.lastExchange)
	}

	raw, found, err := store.Get(context.Background(), "team_1", "SLACK_TOKENS")
	if err != nil || !found {
		t.Fatalf("expected persisted entry, found=%v err=%v", found, err)
	}
	if RawPrimaryToken(raw) != "access_value" {
		t.Fatalf("expected persisted token, got %#v", raw)
	}

	if _, err := svc.flowSessions.Get(context.Background(), "session_1"); err == nil {
		t.Fatalf("expected session consumed by callback")
	}
}

func TestService_CompleteCallbackStateMismatch(t *testing.T) {
	store := newMemorySettingsStore()
	strategy := &stubFlowStrategy{
		kind:     FlowKindOAuth2,
		authResp: AuthorizeResponse{URL: "https://slack.com/authorize", State: "state_abc"},
		exchange: ExchangeResult{Primary: "access_value"},
	}
	svc := newTestService(t, store, strategy)
	redirectedSession(t, svc, "session_1")

	result, err := svc.CompleteCallback(context.Background(), CallbackRequest{
		SessionID: "session_1",
		Provider:  "slack",
		Code:      "auth_code",
		State:     "state_forged",
	})
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if result.Type != "error" || result.Data["error"] != CallbackFailureInvalidState {
		t.Fatalf("expected invalid_state failure, got %#v", result)
	}
	if _, found, _ := store.Get(context.Background(), "team_1", "SLACK_TOKENS"); found {
		t.Fatalf("expected no persistence on state mismatch")
	}
}

func TestService_CompleteCallbackMissingSession(t *testing.T) {
	svc := newTestService(t, newMemorySettingsStore(), &stubFlowStrategy{kind: FlowKindOAuth2})

	result, err := svc.CompleteCallback(context.Background(), CallbackRequest{
		SessionID: "unknown_session",
	})
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if result.Type != "error" || result.Data["error"] != CallbackFailureMissingSession {
		t.Fatalf("expected missing_session failure, got %#v", result)
	}
	if result.Origin != "*" {
		t.Fatalf("expected wildcard origin with no session, got %q", result.Origin)
	}
}

func TestService_CompleteCallbackProviderDenied(t *testing.T) {
	svc := newTestService(t, newMemorySettingsStore(), &stubFlowStrategy{
		kind:     FlowKindOAuth2,
		authResp: AuthorizeResponse{URL: "https://slack.com/authorize", State: "state_abc"},
	})
	redirectedSession(t, svc, "session_1")

	result, err := svc.CompleteCallback(context.Background(), CallbackRequest{
		SessionID: "session_1",
		Provider:  "slack",
		ErrorCode: "access_denied",
	})
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if result.Type != "error" || result.Data["error"] != CallbackFailureProviderError {
		t.Fatalf("expected provider_error failure, got %#v", result)
	}
	message, _ := result.Data["message"].(string)
	if message == "" {
		t.Fatalf("expected human-readable message, got %#v", result.Data)
	}
}

func TestService_CompleteCallbackExchangeFailure(t *testing.T) {
	svc := newTestService(t, newMemorySettingsStore(), &stubFlowStrategy{
		kind:     FlowKindOAuth2,
		authResp: AuthorizeResponse{URL: "https://slack.com/authorize", State: "state_abc"},
		exErr:    fmt.Errorf("token endpoint error (500)"),
	})
	redirectedSession(t, svc, "session_1")

	result, err := svc.CompleteCallback(context.Background(), CallbackRequest{
		SessionID: "session_1",
		Provider:  "slack",
		Code:      "auth_code",
		State:     "state_abc",
	})
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if result.Type != "error" || result.Data["error"] != CallbackFailureTokenExchangeFailed {
		t.Fatalf("expected token_exchange_failed failure, got %#v", result)
	}
}

func TestService_CompleteCallbackExchangeEndpointStatus(t *testing.T) {
	svc := newTestService(t, newMemorySettingsStore(), &stubFlowStrategy{
		kind:     FlowKindOAuth2,
		authResp: AuthorizeResponse{URL: "https://slack.com/authorize", State: "state_abc"},
		exErr:    &ProviderEndpointError{Status: 429, Detail: "rate limited"},
	})
	redirectedSession(t, svc, "session_1")

	result, err := svc.CompleteCallback(context.Background(), CallbackRequest{
		SessionID: "session_1",
		Provider:  "slack",
		Code:      "auth_code",
		State:     "state_abc",
	})
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if result.Type != "error" || result.Data["error"] != CallbackFailureProviderError {
		t.Fatalf("expected provider_error failure, got %#v", result)
	}
	message, _ := result.Data["message"].(string)
	if message != providerStatusMessage(429) {
		t.Fatalf("expected status-mapped message, got %q", message)
	}
}

type recordedMetric struct {
	name string
	tags map[string]string
}

type recordingMetricsRecorder struct {
	counters   []recordedMetric
	histograms []recordedMetric
}

func (r *recordingMetricsRecorder) IncCounter(_ context.Context, name string, _ int64, tags map[string]string) {
	r.counters = append(r.counters, recordedMetric{name: name, tags: tags})
}

func (r *recordingMetricsRecorder) ObserveHistogram(_ context.Context, name string, _ float64, tags map[string]string) {
	r.histograms = append(r.histograms, recordedMetric{name: name, tags: tags})
}

func TestService_CompleteCallbackFailureIsObserved(t *testing.T) {
	recorder := &recordingMetricsRecorder{}
	registry := NewFlowStrategyRegistry()
	strategy := &stubFlowStrategy{
		kind:     FlowKindOAuth2,
		authResp: AuthorizeResponse{URL: "https://slack.com/authorize", State: "state_abc"},
		exchange: ExchangeResult{Primary: "access_value"},
	}
	if err := registry.Register(strategy); err != nil {
		t.Fatalf("register strategy: %v", err)
	}
	svc, err := NewService(Config{},
		WithSettingsStore(newMemorySettingsStore()),
		WithStrategyRegistry(registry),
		WithFlowSessionStore(NewMemoryFlowSessionStore(time.Minute)),
		WithMetricsRecorder(recorder),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	result, err := svc.CompleteCallback(context.Background(), CallbackRequest{
		SessionID: "unknown_session",
	})
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if result.Type != "error" {
		t.Fatalf("expected error result, got %#v", result)
	}

	if len(recorder.counters) != 1 || len(recorder.histograms) != 1 {
		t.Fatalf("expected one counter and one histogram, got %#v", recorder)
	}
	counter := recorder.counters[0]
	if counter.name != "credentials.complete_callback.total" {
		t.Fatalf("unexpected counter %q", counter.name)
	}
	if counter.tags["status"] != "failure" {
		t.Fatalf("expected failure status on error result, got %#v", counter.tags)
	}
	if recorder.histograms[0].tags["status"] != "failure" {
		t.Fatalf("expected failure status on histogram, got %#v", recorder.histograms[0].tags)
	}

	redirectedSession(t, svc, "session_1")
	if _, err := svc.CompleteCallback(context.Background(), CallbackRequest{
		SessionID: "session_1",
		Provider:  "slack",
		Code:      "auth_code",
		State:     "state_abc",
	}); err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	last := recorder.counters[len(recorder.counters)-1]
	if last.tags["operation"] != "complete_callback" || last.tags["status"] != "success" {
		t.Fatalf("expected success status on persisted callback, got %#v", last.tags)
	}
}

func TestService_CompleteCallbackOAuth1ByRequestToken(t *testing.T) {
	store := newMemorySettingsStore()
	strategy := &stubFlowStrategy{
		kind: FlowKindOAuth1,
		authResp: AuthorizeResponse{
			URL:   "https://api.twitter.com/oauth/authorize?oauth_token=req_token_abc",
			State: "req_token_abc",
		},
		exchange: ExchangeResult{Primary: "access_token_value", Secondary: "access_secret_value"},
	}
	svc := newTestService(t, store, strategy)

	if _, err := svc.InitFlow(context.Background(), InitFlowRequest{
		SessionID:      "session_1",
		TeamID:         "team_1",
		Service:        "twitter",
		ConsumerKey:    "consumer_abc",
		ConsumerSecret: "consumer_secret_value",
	}); err != nil {
		t.Fatalf("init flow: %v", err)
	}
	if _, err := svc.AuthorizeRedirect(context.Background(), AuthorizeRedirectRequest{
		SessionID: "session_1",
		Provider:  "twitter",
	}); err != nil {
		t.Fatalf("authorize redirect: %v", err)
	}

	// The provider redirects without the initiating cookie. Only the request
	// token identifies the pending flow.
	result, err := svc.CompleteCallback(context.Background(), CallbackRequest{
		Provider: "twitter",
		State:    "req_token_abc",
		Verifier: "verifier_abc",
	})
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if result.Type != "oauth" {
		t.Fatalf("expected oauth result, got %#v", result)
	}
	if result.Data["success"] != true {
		t.Fatalf("expected success payload, got %#v", result.Data)
	}
	if strategy.lastExchange.Verifier != "verifier_abc" {
		t.Fatalf("expected verifier forwarded, got %#v", strategy.lastExchange)
	}

	raw, found, err := store.Get(context.Background(), "team_1", "TWITTER_TOKENS")
	if err != nil || !found {
		t.Fatalf("expected persisted entry, found=%v err=%v", found, err)
	}
	if RawPrimaryToken(raw) != "access_token_value" {
		t.Fatalf("expected persisted token, got %#v", raw)
	}
}

func TestService_CompleteCallbackOAuth2RequiresSession(t *testing.T) {
	svc := newTestService(t, newMemorySettingsStore(), &stubFlowStrategy{
		kind:     FlowKindOAuth2,
		authResp: AuthorizeResponse{URL: "https://slack.com/authorize", State: "state_abc"},
		exchange: ExchangeResult{Primary: "access_value"},
	})
	redirectedSession(t, svc, "session_1")

	result, err := svc.CompleteCallback(context.Background(), CallbackRequest{
		Provider: "slack",
		Code:     "auth_code",
		State:    "state_abc",
	})
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if result.Type != "error" || result.Data["error"] != CallbackFailureMissingSession {
		t.Fatalf("expected missing_session failure, got %#v", result)
	}
	if _, err := svc.flowSessions.Get(context.Background(), "session_1"); err != nil {
		t.Fatalf("expected pending session to survive, got %v", err)
	}
}

func TestService_ClientCredentials(t *testing.T) {
	store := newMemorySettingsStore()
	svc := newTestService(t, store, &stubFlowStrategy{
		kind:     FlowKindClientCredentials,
		exchange: ExchangeResult{Primary: "access_value", ExpiresIn: 600},
	})

	response, err := svc.ClientCredentials(context.Background(), ClientCredentialsRequest{
		TeamID:       "team_1",
		Service:      "billing",
		ClientID:     "client_abc",
		ClientSecret: "secret_value",
		TokenURL:     "https://auth.example.com/oauth/token",
		Scopes:       []string{"invoices:read"},
	})
	if err != nil {
		t.Fatalf("client credentials: %v", err)
	}
	if !response.Success {
		t.Fatalf("expected success, got %#v", response)
	}

	raw, found, err := store.Get(context.Background(), "team_1", "BILLING_TOKENS")
	if err != nil || !found {
		t.Fatalf("expected persisted entry, found=%v err=%v", found, err)
	}
	if RawPrimaryToken(raw) != "access_value" {
		t.Fatalf("expected persisted token, got %#v", raw)
	}
}

func TestService_ClientCredentialsValidation(t *testing.T) {
	svc := newTestService(t, newMemorySettingsStore(), &stubFlowStrategy{kind: FlowKindClientCredentials})

	if _, err := svc.ClientCredentials(context.Background(), ClientCredentialsRequest{
		TeamID:   "team_1",
		ClientID: "client_abc",
		TokenURL: "https://auth.example.com/oauth/token",
	}); err == nil {
		t.Fatalf("expected missing client secret to be rejected")
	}
	if _, err := svc.ClientCredentials(context.Background(), ClientCredentialsRequest{
		TeamID:       "team_1",
		ClientID:     "client_abc",
		ClientSecret: "secret_value",
		TokenURL:     "not a url",
	}); err == nil {
		t.Fatalf("expected invalid token url to be rejected")
	}
}

func TestService_SignOutClearsTokensKeepsSettings(t *testing.T) {
	store := newMemorySettingsStore()
	seedEntry(t, store, "team_1", "SLACK_TOKENS", map[string]any{
		"auth_data": map[string]any{"primary": "access_value"},
		"auth_settings": map[string]any{
			"client_id": "client_abc",
			"name":      "Team chat",
		},
	})
	svc := newTestService(t, store)

	response, err := svc.SignOut(context.Background(), SignOutRequest{TeamID: "team_1", Prefix: "slack"})
	if err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if !response.Invalidate {
		t.Fatalf("expected invalidate flag, got %#v", response)
	}

	raw, found, err := store.Get(context.Background(), "team_1", "SLACK_TOKENS")
	if err != nil || !found {
		t.Fatalf("expected entry retained, found=%v err=%v", found, err)
	}
	entry := NormalizeEntry(raw)
	if !entry.AuthData.Empty() {
		t.Fatalf("expected tokens cleared, got %#v", entry.AuthData)
	}
	if entry.AuthSettings["client_id"] != "client_abc" {
		t.Fatalf("expected settings retained, got %#v", entry.AuthSettings)
	}
}

func TestService_SignOutAlreadySignedOut(t *testing.T) {
	store := newMemorySettingsStore()
	seedEntry(t, store, "team_1", "SLACK_TOKENS", map[string]any{
		"auth_data":     map[string]any{"primary": ""},
		"auth_settings": map[string]any{"client_id": "client_abc"},
	})
	svc := newTestService(t, store)

	response, err := svc.SignOut(context.Background(), SignOutRequest{TeamID: "team_1", Prefix: "slack"})
	if err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if !response.Invalidate || !strings.Contains(response.Message, "Already signed out") {
		t.Fatalf("expected already-signed-out response, got %#v", response)
	}
}

func TestService_SignOutMissingEntry(t *testing.T) {
	svc := newTestService(t, newMemorySettingsStore())

	_, err := svc.SignOut(context.Background(), SignOutRequest{TeamID: "team_1", Prefix: "slack"})
	if err == nil {
		t.Fatalf("expected missing entry to fail")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected rich error, got %v", err)
	}
	if richErr.TextCode != BrokerErrorNotFound {
		t.Fatalf("expected %s, got %q", BrokerErrorNotFound, richErr.TextCode)
	}
}

func TestService_GetConnectionSanitizes(t *testing.T) {
	store := newMemorySettingsStore()
	seedEntry(t, store, "team_1", "SLACK_TOKENS", map[string]any{
		"auth_data": map[string]any{"primary": "access_value"},
		"auth_settings": map[string]any{
			"client_id":     "client_abc",
			"client_secret": "secret_value",
		},
	})
	svc := newTestService(t, store)

	entry, err := svc.GetConnection(context.Background(), "team_1", "slack")
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	data := entry["auth_data"].(map[string]any)
	if data["primary"] != RedactedValue {
		t.Fatalf("expected redacted token, got %#v", data)
	}
	settings := entry["auth_settings"].(map[string]any)
	if settings["client_secret"] != RedactedValue || settings["client_id"] != "client_abc" {
		t.Fatalf("unexpected sanitized settings %#v", settings)
	}

	raw, _, _ := store.Get(context.Background(), "team_1", "SLACK_TOKENS")
	if RawPrimaryToken(raw) != "access_value" {
		t.Fatalf("expected stored entry untouched, got %#v", raw)
	}
}

func TestService_CheckAuth(t *testing.T) {
	store := newMemorySettingsStore()
	seedEntry(t, store, "team_1", "SLACK_TOKENS", map[string]any{
		"auth_data":     map[string]any{"primary": "access_value"},
		"auth_settings": map[string]any{"client_id": "client_abc"},
	})
	svc := newTestService(t, store)

	matched, err := svc.CheckAuth(context.Background(), CheckAuthRequest{
		TeamID: "team_1",
		Prefix: "slack",
		Config: map[string]any{"client_id": "client_abc"},
	})
	if err != nil {
		t.Fatalf("check auth: %v", err)
	}
	if !matched {
		t.Fatalf("expected matching connection")
	}

	matched, err = svc.CheckAuth(context.Background(), CheckAuthRequest{
		TeamID: "team_1",
		Prefix: "slack",
		Config: map[string]any{"client_id": "rotated"},
	})
	if err != nil {
		t.Fatalf("check auth: %v", err)
	}
	if matched {
		t.Fatalf("expected changed config to fail")
	}
}
