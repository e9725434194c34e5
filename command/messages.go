package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-credentials/core"
)

const (
	TypeInitFlow          = "credentials.command.flow.init"
	TypeAuthorizeRedirect = "credentials.command.flow.authorize"
	TypeCompleteCallback  = "credentials.command.flow.callback"
	TypeClientCredentials = "credentials.command.client_credentials"
	TypeSignOut           = "credentials.command.sign_out"
)

type InitFlowMessage struct {
	Request core.InitFlowRequest
}

func (InitFlowMessage) Type() string { return TypeInitFlow }

func (m InitFlowMessage) Validate() error {
	if strings.TrimSpace(m.Request.SessionID) == "" {
		return fmt.Errorf("command: session id is required")
	}
	if strings.TrimSpace(m.Request.Service) == "" {
		return fmt.Errorf("command: service is required")
	}
	return nil
}

type AuthorizeRedirectMessage struct {
	Request core.AuthorizeRedirectRequest
}

func (AuthorizeRedirectMessage) Type() string { return TypeAuthorizeRedirect }

func (m AuthorizeRedirectMessage) Validate() error {
	if strings.TrimSpace(m.Request.SessionID) == "" {
		return fmt.Errorf("command: session id is required")
	}
	if strings.TrimSpace(m.Request.Provider) == "" {
		return fmt.Errorf("command: provider is required")
	}
	return nil
}

type CompleteCallbackMessage struct {
	Request core.CallbackRequest
}

func (CompleteCallbackMessage) Type() string { return TypeCompleteCallback }

func (m CompleteCallbackMessage) Validate() error {
	if strings.TrimSpace(m.Request.Provider) == "" {
		return fmt.Errorf("command: provider is required")
	}
	return nil
}

type ClientCredentialsMessage struct {
	Request core.ClientCredentialsRequest
}

func (ClientCredentialsMessage) Type() string { return TypeClientCredentials }

func (m ClientCredentialsMessage) Validate() error {
	if strings.TrimSpace(m.Request.TeamID) == "" {
		return fmt.Errorf("command: team id is required")
	}
	if strings.TrimSpace(m.Request.ClientID) == "" {
		return fmt.Errorf("command: client id is required")
	}
	if strings.TrimSpace(m.Request.ClientSecret) == "" {
		return fmt.Errorf("command: client secret is required")
	}
	if strings.TrimSpace(m.Request.TokenURL) == "" {
		return fmt.Errorf("command: token url is required")
	}
	return nil
}

type SignOutMessage struct {
	Request core.SignOutRequest
}

func (SignOutMessage) Type() string { return TypeSignOut }

func (m SignOutMessage) Validate() error {
	if strings.TrimSpace(m.Request.TeamID) == "" {
		return fmt.Errorf("command: team id is required")
	}
	if strings.TrimSpace(m.Request.Prefix) == "" {
		return fmt.Errorf("command: provider prefix is required")
	}
	return nil
}
