package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"fidera/internal/repository"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := repository.Connect(cfg.Database, 5, 5*time.Second)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.RunMigrations(cfg.Database); err != nil {
				return err
			}
			log.Info().Str("driver", cfg.Database.Driver).Msg("migrations applied")
			return nil
		},
	}
}
