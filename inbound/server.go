package inbound

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-credentials/core"
)

const maxRequestBodyBytes = 1 << 20

// Session is the caller identity the transport needs: the HTTP session key
// that scopes the pending flow, the tenant, and the page origin to notify.
type Session struct {
	SessionID string
	TeamID    string
	Origin    string
}

// SessionResolver extracts the caller's session from a request. Cookie
// plumbing and authentication middleware live in the host application.
type SessionResolver interface {
	Resolve(r *http.Request) (Session, error)
}

type SessionResolverFunc func(r *http.Request) (Session, error)

func (f SessionResolverFunc) Resolve(r *http.Request) (Session, error) {
	return f(r)
}

type Option func(*Handler)

func WithLogger(logger core.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

type Handler struct {
	broker   core.CredentialBroker
	sessions SessionResolver
	logger   core.Logger
}

func NewHandler(broker core.CredentialBroker, sessions SessionResolver, options ...Option) (*Handler, error) {
	if broker == nil {
		return nil, fmt.Errorf("inbound: credential broker is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("inbound: session resolver is required")
	}
	handler := &Handler{
		broker:   broker,
		sessions: sessions,
		logger:   glog.Ensure(nil),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(handler)
	}
	return handler, nil
}

// Register mounts the broker routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /oauth/checkAuth", h.handleCheckAuth)
	mux.HandleFunc("POST /oauth/init", h.handleInit)
	mux.HandleFunc("POST /oauth/client_credentials", h.handleClientCredentials)
	mux.HandleFunc("POST /oauth/signOut", h.handleSignOut)
	mux.HandleFunc("GET /oauth/{provider}", h.handleAuthorize)
	mux.HandleFunc("GET /oauth/{provider}/callback", h.handleCallback)
}

// Routes returns a mux with all broker routes registered.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

type checkAuthPayload struct {
	Service string         `json:"service"`
	Config  map[string]any `json:"config"`
}

func (h *Handler) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Resolve(r)
	if err != nil {
		writeError(w, sessionResolveError(err))
		return
	}
	var payload checkAuthPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	matches, err := h.broker.CheckAuth(r.Context(), core.CheckAuthRequest{
		TeamID: session.TeamID,
		Prefix: payload.Service,
		Config: payload.Config,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": matches})
}

type initPayload struct {
	Service string   `json:"service"`
	Kind    string   `json:"kind"`
	Scope   []string `json:"scope"`

	ClientID       string `json:"clientID"`
	ClientSecret   string `json:"clientSecret"`
	ConsumerKey    string `json:"consumerKey"`
	ConsumerSecret string `json:"consumerSecret"`

	AuthURL         string `json:"authUrl"`
	TokenURL        string `json:"tokenUrl"`
	RequestTokenURL string `json:"requestTokenUrl"`
	AccessTokenURL  string `json:"accessTokenUrl"`
	CallbackURL     string `json:"callbackUrl"`
}

func (h *Handler) handleInit(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Resolve(r)
	if err != nil {
		writeError(w, sessionResolveError(err))
		return
	}
	var payload initPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	response, err := h.broker.InitFlow(r.Context(), core.InitFlowRequest{
		SessionID:       session.SessionID,
		TeamID:          session.TeamID,
		Origin:          session.Origin,
		Service:         payload.Service,
		Kind:            core.FlowKind(strings.TrimSpace(payload.Kind)),
		ClientID:        payload.ClientID,
		ClientSecret:    payload.ClientSecret,
		ConsumerKey:     payload.ConsumerKey,
		ConsumerSecret:  payload.ConsumerSecret,
		AuthURL:         payload.AuthURL,
		TokenURL:        payload.TokenURL,
		RequestTokenURL: payload.RequestTokenURL,
		AccessTokenURL:  payload.AccessTokenURL,
		Scopes:          payload.Scope,
		CallbackURL:     payload.CallbackURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authUrl": response.AuthPath})
}

func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Resolve(r)
	if err != nil {
		writeError(w, sessionResolveError(err))
		return
	}
	redirectURL, err := h.broker.AuthorizeRedirect(r.Context(), core.AuthorizeRedirectRequest{
		SessionID: session.SessionID,
		Provider:  r.PathValue("provider"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Resolve(r)
	if err != nil {
		// No session means no opener origin to trust; the page still
		// renders so the popup closes instead of hanging.
		h.logger.Warn("callback session resolution failed", "error", err.Error())
		session = Session{}
	}

	query := r.URL.Query()
	request := core.CallbackRequest{
		SessionID:        session.SessionID,
		Provider:         r.PathValue("provider"),
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Verifier:         query.Get("oauth_verifier"),
		ErrorCode:        query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}
	// OAuth 1.0a callbacks identify the flow by the request token.
	if token := query.Get("oauth_token"); token != "" {
		request.State = token
		if request.Code == "" {
			request.Code = token
		}
	}

	result, err := h.broker.CompleteCallback(r.Context(), request)
	if err != nil {
		h.logger.Error("callback completion failed", "provider", request.Provider, "error", err.Error())
		result = core.CallbackResult{
			Type:   "error",
			Data:   map[string]any{"error": "internal_error", "message": "Authorization could not be completed"},
			Origin: "*",
		}
	}
	writeCallbackPage(w, result)
}

type clientCredentialsPayload struct {
	Service      string   `json:"service"`
	ClientID     string   `json:"clientID"`
	ClientSecret string   `json:"clientSecret"`
	TokenURL     string   `json:"tokenUrl"`
	Scope        []string `json:"scope"`
	Audience     string   `json:"audience"`
}

func (h *Handler) handleClientCredentials(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Resolve(r)
	if err != nil {
		writeError(w, sessionResolveError(err))
		return
	}
	var payload clientCredentialsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	response, err := h.broker.ClientCredentials(r.Context(), core.ClientCredentialsRequest{
		TeamID:       session.TeamID,
		Service:      payload.Service,
		ClientID:     payload.ClientID,
		ClientSecret: payload.ClientSecret,
		TokenURL:     payload.TokenURL,
		Scopes:       payload.Scope,
		Audience:     payload.Audience,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": response.Success,
		"message": response.Message,
	})
}

type signOutPayload struct {
	Prefix                   string `json:"oauth_keys_prefix"`
	InvalidateAuthentication bool   `json:"invalidateAuthentication"`
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Resolve(r)
	if err != nil {
		writeError(w, sessionResolveError(err))
		return
	}
	var payload signOutPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if !payload.InvalidateAuthentication {
		writeError(w, inboundBadInput("inbound: invalidateAuthentication must be true", nil))
		return
	}
	response, err := h.broker.SignOut(r.Context(), core.SignOutRequest{
		TeamID: session.TeamID,
		Prefix: payload.Prefix,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	body := map[string]any{"invalidate": response.Invalidate}
	if response.Message != "" {
		body["message"] = response.Message
	}
	writeJSON(w, http.StatusOK, body)
}

func decodeJSON(r *http.Request, target any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes+1))
	if err != nil {
		return inboundBadInput("inbound: read request body", nil)
	}
	if len(body) > maxRequestBodyBytes {
		return inboundBadInput("inbound: request body too large", nil)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return inboundBadInput("inbound: request body is required", nil)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return inboundBadInput("inbound: malformed JSON body", nil)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
