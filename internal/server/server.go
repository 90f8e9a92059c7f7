// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package server wires the sync service into an HTTP server.
package server

import (
	"log/slog"
	"net/http"

	"github.com/sheetbridge/sheetbridge/sheetbridge"
)

// Server is the HTTP front for the sync API and the dashboard read endpoints.
type Server struct {
	service *sheetbridge.Service
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New creates a new server instance
func New(service *sheetbridge.Service, logger *slog.Logger) *Server {
	server := &Server{
		service: service,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	server.setupRoutes()
	return server
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	handlers := sheetbridge.NewHTTPHandlers(s.service, s.logger)

	// Webhook intake
	s.mux.HandleFunc("POST /webhook/sheet", handlers.HandleSheetWebhook)
	s.mux.HandleFunc("POST /webhook/db", handlers.HandleDBWebhook)

	// Dashboard read endpoints
	s.mux.HandleFunc("GET /api/records", handlers.HandleListRecords)
	s.mux.HandleFunc("GET /api/conflicts", handlers.HandleListConflicts)
	s.mux.HandleFunc("GET /api/webhooks", handlers.HandleListWebhooks)
	s.mux.HandleFunc("GET /api/status", handlers.HandleStatus)

	// Admin
	s.mux.HandleFunc("POST /admin/resync", handlers.HandleResync)

	// Health check endpoint
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
