// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/itstock/itstock-api/internal/models"
)

type PlansHandler struct {
	planStore *models.PlanStore
}

func NewPlansHandler(planStore *models.PlanStore) *PlansHandler {
	return &PlansHandler{
		planStore: planStore,
	}
}

// List returns the active plan catalog ordered for display.
func (h *PlansHandler) List(w http.ResponseWriter, r *http.Request) {
	plans, err := h.planStore.ListActive(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list plans")
		RespondError(w, http.StatusInternalServerError, CodeFetchFailed)
		return
	}

	if plans == nil {
		plans = []*models.Plan{}
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"plans": plans,
	})
}
