// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// Machine-readable error codes returned to clients.
const (
	CodeLicenseNotFound       = "LICENSE_NOT_FOUND"
	CodeLicenseRevoked        = "LICENSE_REVOKED"
	CodeLicenseExpired        = "LICENSE_EXPIRED"
	CodeMaxActivations        = "MAX_ACTIVATIONS_REACHED"
	CodeKeyAndHardwareMissing = "LICENSE_KEY_AND_HARDWARE_ID_REQUIRED"
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodePlanNotFound          = "PLAN_NOT_FOUND"
	CodeFetchFailed           = "FETCH_FAILED"
	CodeStripeError           = "STRIPE_ERROR"
	CodeInternalError         = "INTERNAL_ERROR"
)

var validate = validator.New()

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

// RespondError sends an error response carrying a machine-readable code.
// Never pass internal error detail here; log it instead.
func RespondError(w http.ResponseWriter, status int, code string) {
	RespondJSON(w, status, map[string]string{
		"error": code,
	})
}

// decodeAndValidate decodes the JSON body into req and checks its validate
// tags, responding with the given error code on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req any, code string) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		RespondError(w, http.StatusBadRequest, code)
		return false
	}
	if err := validate.Struct(req); err != nil {
		RespondError(w, http.StatusBadRequest, code)
		return false
	}
	return true
}
