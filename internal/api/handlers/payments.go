// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/itstock/itstock-api/internal/metrics"
	"github.com/itstock/itstock-api/internal/models"
	"github.com/itstock/itstock-api/internal/services"
)

const maxWebhookBody = 1 << 20 // 1MB

// WebhookVerifier checks payment provider signatures over raw payloads.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error)
}

// PaymentsHandler receives payment provider webhooks and creates checkout
// sessions.
type PaymentsHandler struct {
	verifier     WebhookVerifier
	provisioning *services.ProvisioningService
}

func NewPaymentsHandler(verifier WebhookVerifier, provisioning *services.ProvisioningService) *PaymentsHandler {
	return &PaymentsHandler{
		verifier:     verifier,
		provisioning: provisioning,
	}
}

// CheckoutSessionRequest is the body for create-checkout-session.
type CheckoutSessionRequest struct {
	PlanID int    `json:"planId" validate:"required"`
	Seats  int    `json:"seats" validate:"required,min=1"`
	UserID *int   `json:"userId"`
	Email  string `json:"email"`
}

// Webhook handles signed payment provider events. Once the signature
// verifies, the event is always acknowledged so the provider stops
// redelivering; provisioning failures are logged for reconciliation.
func (h *PaymentsHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		RespondError(w, http.StatusBadRequest, CodeStripeError)
		return
	}

	event, err := h.verifier.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		log.Warn().Err(err).Msg("Webhook signature verification failed")
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "bad_signature").Inc()
		RespondError(w, http.StatusBadRequest, CodeStripeError)
		return
	}

	eventType := string(event.Type)

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			log.Error().Err(err).Str("eventType", eventType).Msg("Failed to parse checkout session payload")
			metrics.WebhookEventsTotal.WithLabelValues(eventType, "parse_error").Inc()
			break
		}

		result, err := h.provisioning.HandleCheckoutCompleted(r.Context(), &session)
		if err != nil {
			// Still acknowledged below; a redelivery storm would not fix a
			// persistence failure.
			log.Error().Err(err).Str("sessionId", session.ID).Msg("Failed to provision license for completed checkout")
			metrics.WebhookEventsTotal.WithLabelValues(eventType, "provision_error").Inc()
			break
		}

		if result.Skipped {
			metrics.WebhookEventsTotal.WithLabelValues(eventType, "duplicate").Inc()
		} else {
			metrics.WebhookEventsTotal.WithLabelValues(eventType, "provisioned").Inc()
		}

	case stripe.EventTypeInvoicePaymentFailed:
		log.Warn().Str("eventId", event.ID).Msg("Payment failed event received")
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "noted").Inc()

	default:
		log.Debug().Str("eventType", eventType).Msg("Unhandled webhook event type")
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "ignored").Inc()
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"received": true,
	})
}

// CreateCheckoutSession starts a hosted checkout for a plan purchase.
func (h *PaymentsHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req CheckoutSessionRequest
	if !decodeAndValidate(w, r, &req, CodePlanNotFound) {
		return
	}

	session, err := h.provisioning.CreateCheckout(r.Context(), req.PlanID, req.Seats, req.UserID, req.Email)
	if err != nil {
		if errors.Is(err, models.ErrPlanNotFound) {
			RespondError(w, http.StatusNotFound, CodePlanNotFound)
			return
		}
		log.Error().Err(err).Int("planId", req.PlanID).Msg("Failed to create checkout session")
		RespondError(w, http.StatusInternalServerError, CodeStripeError)
		return
	}

	RespondJSON(w, http.StatusOK, session)
}
