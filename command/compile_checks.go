package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[InitFlowMessage]          = (*InitFlowCommand)(nil)
	_ gocmd.Commander[AuthorizeRedirectMessage] = (*AuthorizeRedirectCommand)(nil)
	_ gocmd.Commander[CompleteCallbackMessage]  = (*CompleteCallbackCommand)(nil)
	_ gocmd.Commander[ClientCredentialsMessage] = (*ClientCredentialsCommand)(nil)
	_ gocmd.Commander[SignOutMessage]           = (*SignOutCommand)(nil)
)
