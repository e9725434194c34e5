package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-credentials/core"
)

const (
	TypeCheckAuth     = "credentials.query.check_auth"
	TypeGetConnection = "credentials.query.connection.get"
)

type CheckAuthMessage struct {
	Request core.CheckAuthRequest
}

func (CheckAuthMessage) Type() string { return TypeCheckAuth }

func (m CheckAuthMessage) Validate() error {
	if strings.TrimSpace(m.Request.TeamID) == "" {
		return fmt.Errorf("query: team id is required")
	}
	if strings.TrimSpace(m.Request.Prefix) == "" {
		return fmt.Errorf("query: provider prefix is required")
	}
	return nil
}

type GetConnectionMessage struct {
	TeamID string
	Prefix string
}

func (GetConnectionMessage) Type() string { return TypeGetConnection }

func (m GetConnectionMessage) Validate() error {
	if strings.TrimSpace(m.TeamID) == "" {
		return fmt.Errorf("query: team id is required")
	}
	if strings.TrimSpace(m.Prefix) == "" {
		return fmt.Errorf("query: provider prefix is required")
	}
	return nil
}
