package commands

import (
	"database/sql"

	"github.com/filehaven/filehaven/config"
	"github.com/filehaven/filehaven/db"
	"github.com/filehaven/filehaven/errors"
	"github.com/filehaven/filehaven/logger"
)

// openDatabase opens the configured database and applies pending
// migrations. An explicit path overrides the configured one.
func openDatabase(path string) (*sql.DB, error) {
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load configuration")
		}
		path = cfg.Database.Path
	}

	database, err := db.OpenWithMigrations(path, logger.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	return database, nil
}
