package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"fidera/internal/config"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "fidera",
		Short:         "Privacy-preserving file lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".app.env", "path to env-style config file")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newSweepCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

// loadConfig читает конфигурацию и настраивает глобальный логгер
func loadConfig() (*config.Config, error) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	return cfg, nil
}
