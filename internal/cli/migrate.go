package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vietddude/tokenwatch/internal/infra/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db, err := postgres.NewDB(ctx, appCfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	slog.Info("Migrations applied")
	return nil
}
