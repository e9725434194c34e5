package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-credentials/core"
)

type InitFlowCommand struct {
	broker core.CredentialBroker
}

func NewInitFlowCommand(broker core.CredentialBroker) *InitFlowCommand {
	return &InitFlowCommand{broker: broker}
}

func (c *InitFlowCommand) Execute(ctx context.Context, msg InitFlowMessage) error {
	if c == nil || c.broker == nil {
		return commandDependencyError("command: credential broker is required")
	}
	out, err := c.broker.InitFlow(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AuthorizeRedirectCommand struct {
	broker core.CredentialBroker
}

func NewAuthorizeRedirectCommand(broker core.CredentialBroker) *AuthorizeRedirectCommand {
	return &AuthorizeRedirectCommand{broker: broker}
}

func (c *AuthorizeRedirectCommand) Execute(ctx context.Context, msg AuthorizeRedirectMessage) error {
	if c == nil || c.broker == nil {
		return commandDependencyError("command: credential broker is required")
	}
	out, err := c.broker.AuthorizeRedirect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteCallbackCommand struct {
	broker core.CredentialBroker
}

func NewCompleteCallbackCommand(broker core.CredentialBroker) *CompleteCallbackCommand {
	return &CompleteCallbackCommand{broker: broker}
}

func (c *CompleteCallbackCommand) Execute(ctx context.Context, msg CompleteCallbackMessage) error {
	if c == nil || c.broker == nil {
		return commandDependencyError("command: credential broker is required")
	}
	out, err := c.broker.CompleteCallback(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ClientCredentialsCommand struct {
	broker core.CredentialBroker
}

func NewClientCredentialsCommand(broker core.CredentialBroker) *ClientCredentialsCommand {
	return &ClientCredentialsCommand{broker: broker}
}

func (c *ClientCredentialsCommand) Execute(ctx context.Context, msg ClientCredentialsMessage) error {
	if c == nil || c.broker == nil {
		return commandDependencyError("command: credential broker is required")
	}
	out, err := c.broker.ClientCredentials(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SignOutCommand struct {
	broker core.CredentialBroker
}

func NewSignOutCommand(broker core.CredentialBroker) *SignOutCommand {
	return &SignOutCommand{broker: broker}
}

func (c *SignOutCommand) Execute(ctx context.Context, msg SignOutMessage) error {
	if c == nil || c.broker == nil {
		return commandDependencyError("command: credential broker is required")
	}
	out, err := c.broker.SignOut(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
