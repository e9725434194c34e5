package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	BrokerErrorBadInput          = "CREDENTIALS_BAD_INPUT"
	BrokerErrorOriginNotAllowed  = "CREDENTIALS_ORIGIN_NOT_ALLOWED"
	BrokerErrorAuthFailed        = "CREDENTIALS_AUTH_FAILED"
	BrokerErrorProviderError     = "CREDENTIALS_PROVIDER_ERROR"
	BrokerErrorPersistenceFailed = "CREDENTIALS_PERSISTENCE_FAILED"
	BrokerErrorNotFound          = "CREDENTIALS_NOT_FOUND"
	BrokerErrorInternal          = "CREDENTIALS_INTERNAL_ERROR"
)

// ProviderEndpointError reports a non-2xx response from a provider endpoint.
type ProviderEndpointError struct {
	Status int
	Detail string
}

func (e *ProviderEndpointError) Error() string {
	if strings.TrimSpace(e.Detail) == "" {
		return fmt.Sprintf("provider endpoint returned %d", e.Status)
	}
	return fmt.Sprintf("provider endpoint returned %d: %s", e.Status, e.Detail)
}

func brokerErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBrokerErrorEnvelope(richErr)
	}

	var providerErr *ProviderEndpointError
	if errors.As(err, &providerErr) {
		return newBrokerError(err.Error(), goerrors.CategoryExternal, BrokerErrorProviderError)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "origin") && strings.Contains(msg, "not allowed"):
		return newBrokerError(err.Error(), goerrors.CategoryAuthz, BrokerErrorOriginNotAllowed)
	case strings.Contains(msg, "state mismatch"), strings.Contains(msg, "oauth state"), strings.Contains(msg, "verifier"):
		return newBrokerError(err.Error(), goerrors.CategoryAuth, BrokerErrorAuthFailed)
	case strings.Contains(msg, "flow session not found"), strings.Contains(msg, "flow session expired"):
		return newBrokerError(err.Error(), goerrors.CategoryAuth, BrokerErrorAuthFailed)
	case strings.Contains(msg, "entry not found"), strings.Contains(msg, "not found"):
		return newBrokerError(err.Error(), goerrors.CategoryNotFound, BrokerErrorNotFound)
	case strings.Contains(msg, "token endpoint"), strings.Contains(msg, "token request"), strings.Contains(msg, "provider returned"):
		return newBrokerError(err.Error(), goerrors.CategoryExternal, BrokerErrorProviderError)
	case strings.Contains(msg, "settings store"), strings.Contains(msg, "persist"):
		return newBrokerError(err.Error(), goerrors.CategoryInternal, BrokerErrorPersistenceFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "must"):
		return newBrokerError(err.Error(), goerrors.CategoryBadInput, BrokerErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBrokerErrorEnvelope(mapped)
}

func newBrokerError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureBrokerErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureBrokerErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = brokerHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBrokerTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBrokerTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return BrokerErrorBadInput
	case goerrors.CategoryNotFound:
		return BrokerErrorNotFound
	case goerrors.CategoryAuth:
		return BrokerErrorAuthFailed
	case goerrors.CategoryAuthz:
		return BrokerErrorOriginNotAllowed
	case goerrors.CategoryExternal:
		return BrokerErrorProviderError
	default:
		return BrokerErrorInternal
	}
}

func brokerHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// providerStatusMessage maps an upstream HTTP status to the human-readable
// string surfaced to the opener window.
func providerStatusMessage(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return "The provider rejected the authorization request"
	case status == http.StatusUnauthorized:
		return "The provider rejected the supplied credentials"
	case status == http.StatusForbidden:
		return "The provider denied access for this application"
	case status == http.StatusNotFound:
		return "The provider endpoint could not be found"
	case status == http.StatusTooManyRequests:
		return "The provider is rate limiting authorization requests"
	case status >= http.StatusInternalServerError:
		return "The provider is currently unavailable"
	case status == 0:
		return "The provider returned an error"
	default:
		return "The provider returned an unexpected response"
	}
}
