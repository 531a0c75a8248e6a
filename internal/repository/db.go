package repository

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"fidera/internal/config"
)

// Connect открывает базу с повторными попытками.
// Для postgres целевая база создаётся, если её ещё нет.
func Connect(cfg config.DatabaseConfig, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	if cfg.Driver == config.DriverSQLite {
		db, err := sqlx.Connect(cfg.Driver, cfg.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// sqlite допускает одного писателя
		db.SetMaxOpenConns(1)
		return db, nil
	}

	if err := ensureDatabase(cfg); err != nil {
		return nil, err
	}

	var db *sqlx.DB
	var err error
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect(cfg.Driver, cfg.GetDSN())
		if err == nil {
			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)
			return db, nil
		}

		log.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", maxAttempts).Msg("failed to connect to database")
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

// ensureDatabase подключается к системной базе postgres и создаёт рабочую при отсутствии
func ensureDatabase(cfg config.DatabaseConfig) error {
	sys := cfg
	sys.Name = "postgres"
	pgDB, err := sqlx.Connect(cfg.Driver, sys.GetDSN())
	if err != nil {
		log.Warn().Err(err).Msg("cannot reach postgres system database, skipping database bootstrap")
		return nil
	}
	defer pgDB.Close()

	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
	if err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}
	if exists {
		return nil
	}

	log.Info().Str("database", cfg.Name).Msg("database does not exist, creating")
	if _, err := pgDB.Exec(fmt.Sprintf("CREATE DATABASE %q", cfg.Name)); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	return nil
}
