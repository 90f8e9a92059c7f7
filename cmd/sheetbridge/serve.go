// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetbridge/sheetbridge/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(&cfg.Logging)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		components, err := server.Setup(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer components.Close()

		httpServer := &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      components.Handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Starting sync server", "addr", httpServer.Addr)
			logger.Info("Endpoints:")
			logger.Info("  POST /webhook/sheet  - spreadsheet edit notifications")
			logger.Info("  POST /webhook/db     - database change notifications")
			logger.Info("  GET  /api/records    - list records")
			logger.Info("  GET  /api/conflicts  - recent conflicts")
			logger.Info("  GET  /api/webhooks   - recent webhook audit entries")
			logger.Info("  GET  /api/status     - aggregate status")
			logger.Info("  POST /admin/resync   - snapshot reconciliation")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("Server exited")
		return nil
	},
}
