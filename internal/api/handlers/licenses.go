// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/itstock/itstock-api/internal/models"
	"github.com/itstock/itstock-api/internal/services"
)

// LicensesHandler exposes the activation endpoints used by client machines
// plus the token-protected management endpoints.
type LicensesHandler struct {
	licenseService *services.LicenseService
	licenseStore   *models.LicenseStore
}

func NewLicensesHandler(licenseService *services.LicenseService, licenseStore *models.LicenseStore) *LicensesHandler {
	return &LicensesHandler{
		licenseService: licenseService,
		licenseStore:   licenseStore,
	}
}

// LicenseRequest is the common body for validate/deactivate/heartbeat.
type LicenseRequest struct {
	LicenseKey string `json:"licenseKey" validate:"required"`
	HardwareID string `json:"hardwareId" validate:"required"`
}

// ActivateRequest carries the optional machine identity fields.
type ActivateRequest struct {
	LicenseKey  string `json:"licenseKey" validate:"required"`
	HardwareID  string `json:"hardwareId" validate:"required"`
	MachineName string `json:"machineName"`
	IPAddress   string `json:"ipAddress"`
}

// LicenseSummary is the read-only license view returned by Validate.
type LicenseSummary struct {
	Key                string     `json:"key"`
	Status             string     `json:"status"`
	Plan               string     `json:"plan"`
	MaxActivations     int        `json:"maxActivations"`
	CurrentActivations int        `json:"currentActivations"`
	ExpiresAt          *time.Time `json:"expiresAt"`
}

// RegisterRoutes registers the client-facing license routes.
func (h *LicensesHandler) RegisterRoutes(r chi.Router) {
	r.Post("/licenses/validate", h.Validate)
	r.Post("/licenses/activate", h.Activate)
	r.Post("/licenses/deactivate", h.Deactivate)
	r.Post("/licenses/heartbeat", h.Heartbeat)
}

// RegisterManagementRoutes registers the routes that require a bearer token.
func (h *LicensesHandler) RegisterManagementRoutes(r chi.Router) {
	r.Get("/licenses", h.List)
	r.Post("/licenses/{licenseKey}/revoke", h.Revoke)
}

func (h *LicensesHandler) respondLicenseError(w http.ResponseWriter, err error, op string) {
	var maxErr *services.MaxActivationsError

	switch {
	case errors.Is(err, models.ErrLicenseNotFound):
		RespondError(w, http.StatusNotFound, CodeLicenseNotFound)
	case errors.Is(err, services.ErrLicenseRevoked):
		RespondError(w, http.StatusForbidden, CodeLicenseRevoked)
	case errors.Is(err, services.ErrLicenseExpired):
		RespondError(w, http.StatusForbidden, CodeLicenseExpired)
	case errors.As(err, &maxErr):
		RespondJSON(w, http.StatusForbidden, map[string]any{
			"error":              CodeMaxActivations,
			"maxActivations":     maxErr.Max,
			"currentActivations": maxErr.Current,
		})
	default:
		log.Error().Err(err).Str("op", op).Msg("License operation failed")
		RespondError(w, http.StatusInternalServerError, CodeInternalError)
	}
}

// Validate returns a read-only summary of a license and its seat usage.
func (h *LicensesHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req LicenseRequest
	if !decodeAndValidate(w, r, &req, CodeKeyAndHardwareMissing) {
		return
	}

	summary, err := h.licenseService.Validate(r.Context(), req.LicenseKey, req.HardwareID)
	if err != nil {
		h.respondLicenseError(w, err, "validate")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"license": LicenseSummary{
			Key:                summary.Key,
			Status:             summary.Status,
			Plan:               summary.Plan,
			MaxActivations:     summary.MaxActivations,
			CurrentActivations: summary.CurrentActivations,
			ExpiresAt:          summary.ExpiresAt,
		},
	})
}

// Activate admits a machine onto a seat.
func (h *LicensesHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if !decodeAndValidate(w, r, &req, CodeKeyAndHardwareMissing) {
		return
	}

	ipAddress := req.IPAddress
	if ipAddress == "" {
		ipAddress = r.RemoteAddr
	}

	result, err := h.licenseService.Activate(r.Context(), req.LicenseKey, req.HardwareID, req.MachineName, ipAddress)
	if err != nil {
		h.respondLicenseError(w, err, "activate")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     string(result.Outcome),
		"activatedAt": result.ActivatedAt,
	})
}

// Deactivate releases the machine's seat. A machine without a seat is a
// no-op success.
func (h *LicensesHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	var req LicenseRequest
	if !decodeAndValidate(w, r, &req, CodeKeyAndHardwareMissing) {
		return
	}

	if err := h.licenseService.Deactivate(r.Context(), req.LicenseKey, req.HardwareID); err != nil {
		h.respondLicenseError(w, err, "deactivate")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "DEACTIVATED",
	})
}

// Heartbeat refreshes the machine's last check-in.
func (h *LicensesHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req LicenseRequest
	if !decodeAndValidate(w, r, &req, CodeKeyAndHardwareMissing) {
		return
	}

	if err := h.licenseService.Heartbeat(r.Context(), req.LicenseKey, req.HardwareID); err != nil {
		h.respondLicenseError(w, err, "heartbeat")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"success": true,
	})
}

// List returns all licenses for the management UI.
func (h *LicensesHandler) List(w http.ResponseWriter, r *http.Request) {
	licenses, err := h.licenseStore.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list licenses")
		RespondError(w, http.StatusInternalServerError, CodeInternalError)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"licenses": licenses,
	})
}

// Revoke transitions a license to REVOKED.
func (h *LicensesHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	licenseKey := chi.URLParam(r, "licenseKey")

	if err := h.licenseStore.Revoke(r.Context(), licenseKey); err != nil {
		if errors.Is(err, models.ErrLicenseNotFound) {
			RespondError(w, http.StatusNotFound, CodeLicenseNotFound)
			return
		}
		log.Error().Err(err).Msg("Failed to revoke license")
		RespondError(w, http.StatusInternalServerError, CodeInternalError)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"success": true,
	})
}
