// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/itstock/itstock-api/internal/metrics"
	"github.com/itstock/itstock-api/internal/models"
	"github.com/itstock/itstock-api/internal/payments"
)

// CheckoutGateway is the slice of the payment provider the provisioning
// service needs, kept as an interface so tests can stand in for Stripe.
type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error)
}

// ProvisionResult reports what HandleCheckoutCompleted did. Skipped is true
// when the payment had already been provisioned and the existing license is
// returned instead.
type ProvisionResult struct {
	License *models.License
	Skipped bool
}

// ProvisioningService creates licenses when payments complete and initiates
// checkout sessions. Provisioning is idempotent per payment identifier since
// webhook delivery is at-least-once.
type ProvisioningService struct {
	licenses *models.LicenseStore
	plans    *models.PlanStore
	checkout CheckoutGateway
}

func NewProvisioningService(licenses *models.LicenseStore, plans *models.PlanStore, checkout CheckoutGateway) *ProvisioningService {
	return &ProvisioningService{
		licenses: licenses,
		plans:    plans,
		checkout: checkout,
	}
}

// GenerateLicenseKey produces an ITSTOCK key from 12 random bytes:
// ITSTOCK-XXXX-XXXX-XXXX-XXXX-XXXX-XXXX. The unique constraint on
// license_key is the authoritative collision guard.
func GenerateLicenseKey() (string, error) {
	raw := make([]byte, 12)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate license key: %w", err)
	}

	encoded := strings.ToUpper(hex.EncodeToString(raw))

	groups := make([]string, 0, len(encoded)/4)
	for i := 0; i < len(encoded); i += 4 {
		groups = append(groups, encoded[i:i+4])
	}

	return "ITSTOCK-" + strings.Join(groups, "-"), nil
}

// HandleCheckoutCompleted provisions exactly one license for a completed
// checkout session. Redelivery of the same payment event returns the
// already provisioned license with Skipped set.
func (s *ProvisioningService) HandleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) (*ProvisionResult, error) {
	planID := 1
	seats := 1
	var userID *int

	if v, ok := session.Metadata["planId"]; ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			planID = parsed
		}
	}
	if v, ok := session.Metadata["seats"]; ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			seats = parsed
		}
	}
	if v, ok := session.Metadata["userId"]; ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			userID = &parsed
		}
	}

	paymentID := session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		paymentID = session.PaymentIntent.ID
	}

	licenseKey, err := GenerateLicenseKey()
	if err != nil {
		return nil, err
	}

	license := &models.License{
		LicenseKey:      licenseKey,
		PlanID:          planID,
		UserID:          userID,
		MaxActivations:  seats,
		Status:          models.LicenseStatusActive,
		StripePaymentID: &paymentID,
		ExpiresAt:       nil, // perpetual
	}

	created, err := s.licenses.Insert(ctx, license)
	if errors.Is(err, models.ErrDuplicatePayment) {
		existing, err := s.licenses.GetByPaymentID(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		log.Info().
			Str("paymentId", paymentID).
			Str("licenseKey", maskLicenseKey(existing.LicenseKey)).
			Msg("Payment already provisioned, returning existing license")
		return &ProvisionResult{License: existing, Skipped: true}, nil
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("licenseKey", maskLicenseKey(created.LicenseKey)).
		Int("planId", planID).
		Int("seats", seats).
		Msg("License provisioned")

	metrics.LicensesProvisionedTotal.Inc()
	return &ProvisionResult{License: created}, nil
}

// CreateCheckout looks up the plan and requests a hosted checkout session,
// carrying {planId, seats, userId} as metadata so the webhook can recover
// them later.
func (s *ProvisioningService) CreateCheckout(ctx context.Context, planID, seats int, userID *int, email string) (*payments.CheckoutSession, error) {
	plan, err := s.plans.Get(ctx, planID)
	if err != nil {
		return nil, err
	}

	if seats < 1 {
		seats = 1
	}

	metadata := map[string]string{
		"planId": strconv.Itoa(planID),
		"seats":  strconv.Itoa(seats),
	}
	if userID != nil {
		metadata["userId"] = strconv.Itoa(*userID)
	}

	req := payments.CheckoutRequest{
		ProductName:   fmt.Sprintf("ITStock CRM - %s", plan.DisplayName),
		Description:   fmt.Sprintf("%d seat(s) - perpetual license", seats),
		UnitAmount:    plan.Price * 100, // provider minor currency unit
		Quantity:      int64(seats),
		CustomerEmail: email,
		Metadata:      metadata,
	}

	return s.checkout.CreateCheckoutSession(ctx, req)
}
