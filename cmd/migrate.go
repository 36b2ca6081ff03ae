package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	config "task-api.com/task-api/internal/configs"
	"task-api.com/task-api/internal/migrations"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|status]",
	Short:     "Apply or inspect database migrations",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		database, err := config.OpenDatabase(cfg.Database)
		if err != nil {
			return err
		}
		defer closeDatabase(database)

		sqlDB, err := database.DB()
		if err != nil {
			return err
		}

		action := "up"
		if len(args) == 1 {
			action = args[0]
		}

		switch action {
		case "status":
			version, pending, err := migrations.Status(cmd.Context(), sqlDB, cfg.Database.Driver)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d, pending: %t\n", version, pending)
		default:
			applied, err := migrations.Up(cmd.Context(), sqlDB, cfg.Database.Driver)
			if err != nil {
				return err
			}
			slog.Info("migrations applied", "count", applied)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
