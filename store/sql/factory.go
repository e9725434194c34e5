package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/vault"
)

type RepositoryFactory struct {
	db *bun.DB

	settingsStore *SettingsStore
	secretBackend *SecretBackend
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.settingsStore != nil && f.secretBackend != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) SettingsStore() core.SettingsStore {
	if f == nil {
		return nil
	}
	return f.settingsStore
}

func (f *RepositoryFactory) SecretBackend() vault.Backend {
	if f == nil {
		return nil
	}
	return f.secretBackend
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	settingsRepo := repository.NewRepository[*settingsEntryRecord](f.db, settingsEntryHandlers())
	if validator, ok := settingsRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid settings repository wiring: %w", err)
		}
	}

	secretRepo := repository.NewRepository[*secretRecord](f.db, secretHandlers())
	if validator, ok := secretRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid secret repository wiring: %w", err)
		}
	}

	f.settingsStore = &SettingsStore{
		db:   f.db,
		repo: settingsRepo,
	}
	f.secretBackend = &SecretBackend{
		db:   f.db,
		repo: secretRepo,
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
