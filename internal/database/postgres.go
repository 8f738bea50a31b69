package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	_ "github.com/lib/pq"
)

// ConnectPostgres opens the pool and creates the tables the service needs.
func ConnectPostgres(ctx context.Context, postgresURI string) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresURI)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	if err := InitPostgresTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InitPostgresTables creates all necessary tables if they don't exist.
func InitPostgresTables(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bips (
			id UUID PRIMARY KEY,
			pseudo VARCHAR(255) NOT NULL,
			status_code INTEGER NOT NULL,
			location TEXT NOT NULL,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL,
			day DATE NOT NULL,
			connection_id VARCHAR(255),
			CHECK ((latitude IS NULL) = (longitude IS NULL))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bips_day_created_at ON bips(day, created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return errors.Wrap(err, "init postgres tables")
		}
	}
	return nil
}
