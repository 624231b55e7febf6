// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package services

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/itstock/itstock-api/internal/models"
	"github.com/itstock/itstock-api/internal/payments"
)

type fakeCheckoutGateway struct {
	lastRequest payments.CheckoutRequest
	session     *payments.CheckoutSession
	err         error
}

func (f *fakeCheckoutGateway) CreateCheckoutSession(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func newProvisioningEnv(t *testing.T) (*testEnv, *ProvisioningService, *fakeCheckoutGateway) {
	t.Helper()

	env := newTestEnv(t)
	gateway := &fakeCheckoutGateway{
		session: &payments.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"},
	}
	plans := models.NewPlanStore(env.db.Conn())

	return env, NewProvisioningService(env.licenses, plans, gateway), gateway
}

func TestGenerateLicenseKeyFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^ITSTOCK(-[0-9A-F]{4}){6}$`)

	seen := make(map[string]bool)
	for range 100 {
		key, err := GenerateLicenseKey()
		require.NoError(t, err)
		assert.Regexp(t, pattern, key)
		assert.False(t, seen[key], "generated keys should not repeat")
		seen[key] = true
	}
}

func TestHandleCheckoutCompleted(t *testing.T) {
	ctx := t.Context()
	_, svc, _ := newProvisioningEnv(t)

	session := &stripe.CheckoutSession{
		ID: "cs_live_42",
		PaymentIntent: &stripe.PaymentIntent{
			ID: "pi_live_42",
		},
		Metadata: map[string]string{
			"planId": "2",
			"seats":  "5",
			"userId": "7",
		},
	}

	result, err := svc.HandleCheckoutCompleted(ctx, session)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 2, result.License.PlanID)
	assert.Equal(t, 5, result.License.MaxActivations)
	require.NotNil(t, result.License.UserID)
	assert.Equal(t, 7, *result.License.UserID)
	assert.Equal(t, models.LicenseStatusActive, result.License.Status)
	assert.Nil(t, result.License.ExpiresAt, "provisioned licenses are perpetual")
	require.NotNil(t, result.License.StripePaymentID)
	assert.Equal(t, "pi_live_42", *result.License.StripePaymentID)
}

func TestHandleCheckoutCompletedIdempotent(t *testing.T) {
	ctx := t.Context()
	env, svc, _ := newProvisioningEnv(t)

	session := &stripe.CheckoutSession{
		ID:            "cs_replay",
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_replay"},
		Metadata:      map[string]string{"planId": "1", "seats": "2"},
	}

	first, err := svc.HandleCheckoutCompleted(ctx, session)
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	// At-least-once delivery: the same event arrives again.
	second, err := svc.HandleCheckoutCompleted(ctx, session)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.License.LicenseKey, second.License.LicenseKey)

	var count int
	err = env.db.Conn().QueryRowContext(ctx, "SELECT COUNT(*) FROM licenses WHERE stripe_payment_id = ?", "pi_replay").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "replayed payment must not create a second license")
}

func TestHandleCheckoutCompletedDefaults(t *testing.T) {
	ctx := t.Context()
	_, svc, _ := newProvisioningEnv(t)

	// No metadata at all: plan 1, one seat, no user.
	session := &stripe.CheckoutSession{ID: "cs_bare"}

	result, err := svc.HandleCheckoutCompleted(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 1, result.License.PlanID)
	assert.Equal(t, 1, result.License.MaxActivations)
	assert.Nil(t, result.License.UserID)
	require.NotNil(t, result.License.StripePaymentID)
	assert.Equal(t, "cs_bare", *result.License.StripePaymentID, "session id stands in when no payment intent is attached")
}

func TestCreateCheckout(t *testing.T) {
	ctx := t.Context()
	_, svc, gateway := newProvisioningEnv(t)

	userID := 3
	session, err := svc.CreateCheckout(ctx, 2, 4, &userID, "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)

	req := gateway.lastRequest
	assert.Contains(t, req.ProductName, "Professional")
	assert.Equal(t, int64(4), req.Quantity)
	assert.Equal(t, "buyer@example.com", req.CustomerEmail)
	assert.Equal(t, map[string]string{"planId": "2", "seats": "4", "userId": "3"}, req.Metadata)

	// Seeded Professional plan costs 99, amount is in the minor unit.
	assert.Equal(t, int64(9900), req.UnitAmount)
}

func TestCreateCheckoutUnknownPlan(t *testing.T) {
	ctx := t.Context()
	_, svc, _ := newProvisioningEnv(t)

	_, err := svc.CreateCheckout(ctx, 999, 1, nil, "")
	assert.ErrorIs(t, err, models.ErrPlanNotFound)
}
