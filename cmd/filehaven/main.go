package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/filehaven/filehaven/cmd/filehaven/commands"
	"github.com/filehaven/filehaven/logger"
)

var rootCmd = &cobra.Command{
	Use:   "filehaven",
	Short: "FileHaven - self-hosted file management server",
	Long: `FileHaven - self-hosted file management server.

Background work (indexing, thumbnails, backups, cleanup) runs through a
durable job queue persisted in SQLite, processed by a worker pool and
fed by a calendar scheduler.

Examples:
  filehaven jobs start                # Run the job daemon in foreground
  filehaven jobs ls --status pending  # List pending jobs
  filehaven jobs stats                # Show queue statistics
  filehaven db migrate                # Apply database migrations`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if err := logger.Initialize(jsonOutput, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json", false, "Emit logs as JSON")

	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
