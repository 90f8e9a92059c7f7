// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sheetbridge/sheetbridge/internal/config"
	"github.com/sheetbridge/sheetbridge/sheetbridge"
)

// Components holds the initialized server components.
type Components struct {
	Pool    *pgxpool.Pool
	Service *sheetbridge.Service
	Handler http.Handler
	Logger  *slog.Logger

	cancel context.CancelFunc
}

// Setup initializes the database pool, sync service and HTTP handler.
// This is the shared wiring used by both the serve and resync commands.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	ctx, cancel := context.WithCancel(ctx)

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		cancel()
		return nil, err
	}
	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		cancel()
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		cancel()
		return nil, err
	}

	service, err := sheetbridge.NewPGService(ctx, pool, cfg.ServiceConfig(), logger)
	if err != nil {
		pool.Close()
		cancel()
		return nil, err
	}

	if buffer := service.Buffer(); buffer != nil {
		buffer.Start(ctx)
	}

	return &Components{
		Pool:    pool,
		Service: service,
		Handler: New(service, logger),
		Logger:  logger,
		cancel:  cancel,
	}, nil
}

// Close stops the buffer flush loop and releases the pool.
func (c *Components) Close() {
	if buffer := c.Service.Buffer(); buffer != nil {
		buffer.Stop()
	}
	c.cancel()
	c.Pool.Close()
}
