package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filehaven/filehaven/config"
	"github.com/filehaven/filehaven/db"
	"github.com/filehaven/filehaven/errors"
	"github.com/filehaven/filehaven/logger"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the FileHaven database",
	Long: `Manage FileHaven database operations.

Examples:
  filehaven db migrate   # Apply pending schema migrations
  filehaven db path      # Show the configured database path`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the configured database path",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}
		fmt.Println(cfg.Database.Path)
		return nil
	},
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbPathCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	if err := db.Migrate(database, logger.Logger); err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}

	fmt.Printf("Migrations applied (%s)\n", cfg.Database.Path)
	return nil
}
