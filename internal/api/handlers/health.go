// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package handlers

import (
	"net/http"
	"time"

	"github.com/itstock/itstock-api/internal/database"
)

type HealthHandler struct {
	db      *database.DB
	version string
}

func NewHealthHandler(db *database.DB, version string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		version: version,
	}
}

// Check reports service and store health. Always 200; the database field
// carries the store state.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbState := "connected"

	if err := h.db.Ping(r.Context()); err != nil {
		status = "error"
		dbState = "disconnected"
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"service":   "ITStock API",
		"version":   h.version,
		"database":  dbState,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
