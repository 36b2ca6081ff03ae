package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	config "task-api.com/task-api/internal/configs"
	repository "task-api.com/task-api/internal/repositories"
	"task-api.com/task-api/internal/services"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Migrate and insert sample tasks into an empty store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		database, err := config.NewDatabaseClient(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer closeDatabase(database)

		redisClient, err := config.NewRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		if redisClient != nil {
			defer redisClient.Close()
		}

		seeder := services.NewSeedService(repository.NewTaskRepository(database), newLocker(redisClient, cfg.Redis))
		inserted, err := seeder.SeedIfEmpty(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "inserted %d tasks\n", inserted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
