package query

import (
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[CheckAuthMessage, bool]               = (*CheckAuthQuery)(nil)
	_ gocmd.Querier[GetConnectionMessage, map[string]any] = (*GetConnectionQuery)(nil)
)
