package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// sweep выполняет один проход сборщика, удобно для запуска из cron
func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run a single expiry enforcement pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.expiry.RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			log.Info().
				Int("candidates", result.Candidates).
				Int("purged", result.Purged).
				Int("errors", result.Errors).
				Dur("duration", result.Duration).
				Msg("sweep finished")
			return nil
		},
	}
}
