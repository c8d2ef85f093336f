package db

import (
	"context"
	"fmt"
	"time"

	"crowdfund/pkg/types"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the search_path used when DATABASE_URL does not set one. The
// first migration creates it.
const Schema = "crowdfund"

const (
	maxConnIdleTime = 15 * time.Minute
	maxConnLifetime = 45 * time.Minute
	pingTimeout     = 5 * time.Second
)

func Connect(ctx context.Context, config *types.Config) (*pgxpool.Pool, error) {
	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	params := poolConfig.ConnConfig.RuntimeParams
	if _, ok := params["search_path"]; !ok {
		params["search_path"] = Schema
	}
	if _, ok := params["application_name"]; !ok {
		params["application_name"] = "crowdfund"
	}

	if config.DatabaseMaxConn > 0 {
		poolConfig.MaxConns = config.DatabaseMaxConn
	}
	poolConfig.MaxConnIdleTime = maxConnIdleTime
	poolConfig.MaxConnLifetime = maxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := Ping(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// Ping bounds a round trip to the database by pingTimeout.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}
