package credentials

import (
	"fmt"

	credentialscommand "github.com/goliatone/go-credentials/command"
	"github.com/goliatone/go-credentials/core"
	credentialsquery "github.com/goliatone/go-credentials/query"
)

type Commands struct {
	InitFlow          *credentialscommand.InitFlowCommand
	AuthorizeRedirect *credentialscommand.AuthorizeRedirectCommand
	CompleteCallback  *credentialscommand.CompleteCallbackCommand
	ClientCredentials *credentialscommand.ClientCredentialsCommand
	SignOut           *credentialscommand.SignOutCommand
}

type Queries struct {
	CheckAuth     *credentialsquery.CheckAuthQuery
	GetConnection *credentialsquery.GetConnectionQuery
}

// Facade bundles the broker with its command and query wrappers so hosts can
// register them on a dispatcher without reaching into the packages.
type Facade struct {
	broker   core.CredentialBroker
	commands Commands
	queries  Queries
}

func NewFacade(broker core.CredentialBroker) (*Facade, error) {
	if broker == nil {
		return nil, fmt.Errorf("credentials: credential broker is required")
	}

	facade := &Facade{broker: broker}
	facade.commands = Commands{
		InitFlow:          credentialscommand.NewInitFlowCommand(broker),
		AuthorizeRedirect: credentialscommand.NewAuthorizeRedirectCommand(broker),
		CompleteCallback:  credentialscommand.NewCompleteCallbackCommand(broker),
		ClientCredentials: credentialscommand.NewClientCredentialsCommand(broker),
		SignOut:           credentialscommand.NewSignOutCommand(broker),
	}
	facade.queries = Queries{
		CheckAuth:     credentialsquery.NewCheckAuthQuery(broker),
		GetConnection: credentialsquery.NewGetConnectionQuery(broker),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Broker() core.CredentialBroker {
	if f == nil {
		return nil
	}
	return f.broker
}
