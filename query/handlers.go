package query

import (
	"context"

	"github.com/goliatone/go-credentials/core"
)

// AuthReader is the read-only slice of the broker surface the queries need.
type AuthReader interface {
	CheckAuth(ctx context.Context, req core.CheckAuthRequest) (bool, error)
	GetConnection(ctx context.Context, teamID string, prefix string) (map[string]any, error)
}

type CheckAuthQuery struct {
	reader AuthReader
}

func NewCheckAuthQuery(reader AuthReader) *CheckAuthQuery {
	return &CheckAuthQuery{reader: reader}
}

func (q *CheckAuthQuery) Query(ctx context.Context, msg CheckAuthMessage) (bool, error) {
	if q == nil || q.reader == nil {
		return false, queryDependencyError("query: auth reader is required")
	}
	return q.reader.CheckAuth(ctx, msg.Request)
}

type GetConnectionQuery struct {
	reader AuthReader
}

func NewGetConnectionQuery(reader AuthReader) *GetConnectionQuery {
	return &GetConnectionQuery{reader: reader}
}

func (q *GetConnectionQuery) Query(ctx context.Context, msg GetConnectionMessage) (map[string]any, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: auth reader is required")
	}
	return q.reader.GetConnection(ctx, msg.TeamID, msg.Prefix)
}
