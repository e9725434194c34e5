package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
)

type OAuth1StrategyConfig struct {
	RequestTimeout time.Duration
	HTTPClient     HTTPDoer
	Now            func() time.Time
}

// OAuth1Strategy drives the three-legged OAuth 1.0a flow with HMAC-SHA1
// request signing. The request-token leg runs during BuildAuthURL; the
// access-token leg runs during ExchangeToken.
type OAuth1Strategy struct {
	httpClient HTTPDoer
	timeout    time.Duration
	now        func() time.Time
}

func NewOAuth1Strategy(cfg OAuth1StrategyConfig) *OAuth1Strategy {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTokenRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &OAuth1Strategy{
		httpClient: httpClient,
		timeout:    timeout,
		now:        now,
	}
}

func (*OAuth1Strategy) Kind() core.FlowKind {
	return core.FlowKindOAuth1
}

func (s *OAuth1Strategy) BuildAuthURL(ctx context.Context, req core.AuthorizeRequest) (core.AuthorizeResponse, error) {
	if s == nil {
		return core.AuthorizeResponse{}, fmt.Errorf("auth: oauth1 strategy is nil")
	}
	session := req.Session
	if strings.TrimSpace(session.RequestTokenURL) == "" {
		return core.AuthorizeResponse{}, fmt.Errorf("auth: request token url is required for provider %q", session.ProviderID)
	}
	if strings.TrimSpace(session.AuthURL) == "" {
		return core.AuthorizeResponse{}, fmt.Errorf("auth: auth url is required for provider %q", session.ProviderID)
	}
	if strings.TrimSpace(session.ConsumerKey) == "" || strings.TrimSpace(session.ConsumerSecret) == "" {
		return core.AuthorizeResponse{}, fmt.Errorf("auth: consumer key and consumer secret are required for provider %q", session.ProviderID)
	}

	oauthParams := map[string]string{
		"oauth_callback": strings.TrimSpace(session.CallbackURL),
	}
	values, err := s.signedPost(ctx, session.RequestTokenURL, session.ConsumerKey, session.ConsumerSecret, "", oauthParams)
	if err != nil {
		return core.AuthorizeResponse{}, fmt.Errorf("auth: request token leg failed: %w", err)
	}

	requestToken := strings.TrimSpace(values.Get("oauth_token"))
	requestSecret := strings.TrimSpace(values.Get("oauth_token_secret"))
	if requestToken == "" || requestSecret == "" {
		return core.AuthorizeResponse{}, fmt.Errorf("auth: request token response is incomplete for provider %q", session.ProviderID)
	}

	authorize := url.Values{}
	authorize.Set("oauth_token", requestToken)

	return core.AuthorizeResponse{
		URL:                appendQuery(strings.TrimSpace(session.AuthURL), authorize.Encode()),
		State:              requestToken,
		RequestTokenSecret: requestSecret,
	}, nil
}

func (s *OAuth1Strategy) ExchangeToken(ctx context.Context, req core.ExchangeRequest) (core.ExchangeResult, error) {
	if s == nil {
		return core.ExchangeResult{}, fmt.Errorf("auth: oauth1 strategy is nil")
	}
	session := req.Session
	if strings.TrimSpace(session.AccessTokenURL) == "" {
		return core.ExchangeResult{}, fmt.Errorf("auth: access token url is required for provider %q", session.ProviderID)
	}
	requestToken := strings.TrimSpace(session.State)
	if requestToken == "" {
		requestToken = strings.TrimSpace(req.Code)
	}
	if requestToken == "" {
		return core.ExchangeResult{}, fmt.Errorf("auth: oauth1 request token is required")
	}
	verifier := strings.TrimSpace(req.Verifier)
	if verifier == "" {
		return core.ExchangeResult{}, fmt.Errorf("auth: oauth1 verifier is required")
	}

	oauthParams := map[string]string{
		"oauth_token":    requestToken,
		"oauth_verifier": verifier,
	}
	values, err := s.signedPost(
		ctx,
		session.AccessTokenURL,
		session.ConsumerKey,
		session.ConsumerSecret,
		session.RequestTokenSecret,
		oauthParams,
	)
	if err != nil {
		return core.ExchangeResult{}, fmt.Errorf("auth: access token leg failed: %w", err)
	}

	accessToken := strings.TrimSpace(values.Get("oauth_token"))
	accessSecret := strings.TrimSpace(values.Get("oauth_token_secret"))
	if accessToken == "" || accessSecret == "" {
		return core.ExchangeResult{}, fmt.Errorf("auth: access token response is incomplete for provider %q", session.ProviderID)
	}

	raw := make(map[string]any, len(values))
	for key := range values {
		raw[key] = values.Get(key)
	}

	// OAuth 1.0a tokens do not expire.
	return core.ExchangeResult{
		Primary:   accessToken,
		Secondary: accessSecret,
		Raw:       raw,
	}, nil
}

func (s *OAuth1Strategy) signedPost(
	ctx context.Context,
	endpoint string,
	consumerKey string,
	consumerSecret string,
	tokenSecret string,
	params map[string]string,
) (url.Values, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	nonce, err := generateOAuth1Nonce()
	if err != nil {
		return nil, err
	}

	oauthParams := map[string]string{
		"oauth_consumer_key":     strings.TrimSpace(consumerKey),
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(s.now().Unix(), 10),
		"oauth_version":          "1.0",
	}
	for key, value := range params {
		if strings.TrimSpace(value) == "" {
			continue
		}
		oauthParams[key] = strings.TrimSpace(value)
	}

	endpoint = strings.TrimSpace(endpoint)
	signature := signOAuth1Request(http.MethodPost, endpoint, oauthParams, consumerSecret, tokenSecret)
	oauthParams["oauth_signature"] = signature

	requestCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", oauth1AuthorizationHeader(oauthParams))
	httpReq.Header.Set("Accept", "application/x-www-form-urlencoded")

	response, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return nil, fmt.Errorf("read token response: %w", readErr)
	}
	if int64(len(body)) > maxTokenResponseBodyBytes {
		return nil, fmt.Errorf("token response exceeds %d bytes", maxTokenResponseBodyBytes)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, &core.ProviderEndpointError{
			Status: response.StatusCode,
			Detail: strings.TrimSpace(string(body)),
		}
	}

	values, parseErr := url.ParseQuery(strings.TrimSpace(string(body)))
	if parseErr != nil {
		return nil, fmt.Errorf("decode token response: %w", parseErr)
	}
	return values, nil
}

// signOAuth1Request builds the RFC 5849 signature base string and signs it
// with HMAC-SHA1.
func signOAuth1Request(method, endpoint string, params map[string]string, consumerSecret, tokenSecret string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, oauth1Encode(key)+"="+oauth1Encode(params[key]))
	}

	baseString := strings.Join([]string{
		strings.ToUpper(method),
		oauth1Encode(normalizeOAuth1URL(endpoint)),
		oauth1Encode(strings.Join(pairs, "&")),
	}, "&")
	signingKey := oauth1Encode(strings.TrimSpace(consumerSecret)) + "&" + oauth1Encode(strings.TrimSpace(tokenSecret))

	mac := hmac.New(sha1.New, []byte(signingKey))
	mac.Write([]byte(baseString))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// normalizeOAuth1URL strips the query and fragment; query parameters are
// signed as part of the parameter set, not the base URL.
func normalizeOAuth1URL(endpoint string) string {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return strings.TrimSpace(endpoint)
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}

// oauth1Encode percent-encodes per RFC 3986 with the unreserved set only.
func oauth1Encode(value string) string {
	var builder strings.Builder
	for _, b := range []byte(value) {
		if isOAuth1Unreserved(b) {
			builder.WriteByte(b)
			continue
		}
		builder.WriteByte('%')
		builder.WriteString(strings.ToUpper(hex.EncodeToString([]byte{b})))
	}
	return builder.String()
}

func isOAuth1Unreserved(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '-' || b == '.' || b == '_' || b == '~':
		return true
	default:
		return false
	}
}

func oauth1AuthorizationHeader(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if !strings.HasPrefix(key, "oauth_") {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", oauth1Encode(key), oauth1Encode(params[key])))
	}
	return "OAuth " + strings.Join(pairs, ", ")
}

func generateOAuth1Nonce() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("auth: generate oauth1 nonce: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

var _ core.FlowStrategy = (*OAuth1Strategy)(nil)
