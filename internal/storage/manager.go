// Package storage selects and opens the configured StorageManager backend.
package storage

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/storage/badger"
	"github.com/bobmcallan/famfolio/internal/storage/sqlite"
	"github.com/bobmcallan/famfolio/internal/storage/surrealdb"
)

// Backend names accepted in storage.backend.
const (
	BackendBadger    = "badger"
	BackendSQLite    = "sqlite"
	BackendSurrealDB = "surrealdb"
)

// NewManager opens the backend named in config.Storage.Backend.
// An empty backend defaults to badger.
func NewManager(logger *common.Logger, config *common.Config) (interfaces.StorageManager, error) {
	backend := strings.ToLower(config.Storage.Backend)
	if backend == "" {
		backend = BackendBadger
	}

	var (
		m   interfaces.StorageManager
		err error
	)
	switch backend {
	case BackendBadger:
		m, err = badger.NewManager(logger, config.Storage.Path)
	case BackendSQLite:
		path := config.Storage.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "famfolio.db")
		}
		m, err = sqlite.NewManager(logger, path)
	case BackendSurrealDB:
		m, err = surrealdb.NewManager(logger, config)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: badger, sqlite, surrealdb)", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", backend, err)
	}

	logger.Info().Str("backend", backend).Msg("Storage manager initialized")
	return m, nil
}
