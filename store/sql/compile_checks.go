package sqlstore

import (
	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/vault"
)

var (
	_ core.SettingsStore = (*SettingsStore)(nil)
	_ vault.Backend      = (*SecretBackend)(nil)
)
