// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itstock/itstock-api/internal/database"
	"github.com/itstock/itstock-api/internal/models"
)

type testEnv struct {
	db          *database.DB
	licenses    *models.LicenseStore
	activations *models.ActivationStore
	service     *LicenseService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "itstock-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	db, err := database.New(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	licenses := models.NewLicenseStore(db.Conn())
	activations := models.NewActivationStore(db.Conn())

	return &testEnv{
		db:          db,
		licenses:    licenses,
		activations: activations,
		service:     NewLicenseService(licenses, activations),
	}
}

func (e *testEnv) createLicense(t *testing.T, ctx context.Context, maxActivations int) *models.License {
	t.Helper()

	key, err := GenerateLicenseKey()
	require.NoError(t, err)

	license, err := e.licenses.Insert(ctx, &models.License{
		LicenseKey:     key,
		PlanID:         1,
		MaxActivations: maxActivations,
		Status:         models.LicenseStatusActive,
	})
	require.NoError(t, err)
	return license
}

func TestActivateConcurrentQuota(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv(t)

	const seats = 3
	const attempts = 12

	license := env.createLicense(t, ctx, seats)

	hardwareIDs := make([]string, attempts)
	for i := range hardwareIDs {
		hardwareIDs[i] = string(rune('a'+i)) + "-machine"
	}

	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.service.Activate(ctx, license.LicenseKey, hardwareIDs[i], "", "127.0.0.1")
			results[i] = err
		}(i)
	}
	wg.Wait()

	var activated, rejected int
	for _, err := range results {
		var maxErr *MaxActivationsError
		switch {
		case err == nil:
			activated++
		case errors.As(err, &maxErr):
			rejected++
			assert.Equal(t, seats, maxErr.Max)
		default:
			t.Fatalf("unexpected activation error: %v", err)
		}
	}

	assert.Equal(t, seats, activated, "exactly maxActivations requests should be admitted")
	assert.Equal(t, attempts-seats, rejected)

	count, err := env.activations.CountActive(ctx, license.ID)
	require.NoError(t, err)
	assert.Equal(t, seats, count, "active rows must never exceed the seat cap")
}

func TestActivateIdempotentReactivation(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv(t)

	license := env.createLicense(t, ctx, 2)

	first, err := env.service.Activate(ctx, license.LicenseKey, "hw-1", "desk", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, first.Outcome)

	for range 5 {
		again, err := env.service.Activate(ctx, license.LicenseKey, "hw-1", "desk", "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyActivated, again.Outcome)
		assert.True(t, again.ActivatedAt.Equal(first.ActivatedAt), "re-activation must keep the original activatedAt")
	}

	count, err := env.activations.CountActive(ctx, license.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-activation never consumes an additional seat")
}

func TestSeatCycling(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv(t)

	license := env.createLicense(t, ctx, 2)

	activate := func(hw string) (*ActivationResult, error) {
		return env.service.Activate(ctx, license.LicenseKey, hw, "", "")
	}

	res, err := activate("A")
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, res.Outcome)

	res, err = activate("B")
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, res.Outcome)

	_, err = activate("C")
	var maxErr *MaxActivationsError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 2, maxErr.Current)
	assert.Equal(t, 2, maxErr.Max)

	require.NoError(t, env.service.Deactivate(ctx, license.LicenseKey, "A"))

	res, err = activate("C")
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivated, res.Outcome, "deactivating A frees exactly one seat for C")

	count, err := env.activations.CountActive(ctx, license.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestActivateRejectsInvalidLicenses(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv(t)

	_, err := env.service.Activate(ctx, "ITSTOCK-DOES-NOT-EXIST", "hw", "", "")
	assert.ErrorIs(t, err, models.ErrLicenseNotFound)

	revoked := env.createLicense(t, ctx, 1)
	require.NoError(t, env.licenses.Revoke(ctx, revoked.LicenseKey))
	_, err = env.service.Activate(ctx, revoked.LicenseKey, "hw", "", "")
	assert.ErrorIs(t, err, ErrLicenseRevoked)

	expired := env.createLicense(t, ctx, 1)
	past := time.Now().Add(-time.Hour)
	_, execErr := env.db.Conn().ExecContext(ctx, "UPDATE licenses SET expires_at = ? WHERE id = ?", past, expired.ID)
	require.NoError(t, execErr)
	_, err = env.service.Activate(ctx, expired.LicenseKey, "hw", "", "")
	assert.ErrorIs(t, err, ErrLicenseExpired)
}

func TestValidateSummary(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv(t)

	license := env.createLicense(t, ctx, 3)

	_, err := env.service.Activate(ctx, license.LicenseKey, "hw-1", "", "")
	require.NoError(t, err)

	summary, err := env.service.Validate(ctx, license.LicenseKey, "hw-1")
	require.NoError(t, err)
	assert.Equal(t, license.LicenseKey, summary.Key)
	assert.Equal(t, models.LicenseStatusActive, summary.Status)
	assert.Equal(t, 3, summary.MaxActivations)
	assert.Equal(t, 1, summary.CurrentActivations)
	assert.True(t, summary.HardwareActive)

	other, err := env.service.Validate(ctx, license.LicenseKey, "hw-2")
	require.NoError(t, err)
	assert.False(t, other.HardwareActive)
	assert.Equal(t, 1, other.CurrentActivations, "validate must not mutate seat state")

	_, err = env.service.Validate(ctx, "ITSTOCK-MISSING", "hw-1")
	assert.ErrorIs(t, err, models.ErrLicenseNotFound)
}

func TestDeactivateAndHeartbeatAreSilentNoOps(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv(t)

	license := env.createLicense(t, ctx, 1)

	// No active row for this hardware; both operations succeed anyway.
	assert.NoError(t, env.service.Deactivate(ctx, license.LicenseKey, "never-activated"))
	assert.NoError(t, env.service.Heartbeat(ctx, license.LicenseKey, "never-activated"))

	// But an unknown license is still an error.
	assert.ErrorIs(t, env.service.Deactivate(ctx, "ITSTOCK-MISSING", "hw"), models.ErrLicenseNotFound)
	assert.ErrorIs(t, env.service.Heartbeat(ctx, "ITSTOCK-MISSING", "hw"), models.ErrLicenseNotFound)
}

func TestHeartbeatRefreshesCheckIn(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv(t)

	license := env.createLicense(t, ctx, 1)

	_, err := env.service.Activate(ctx, license.LicenseKey, "hw-1", "", "")
	require.NoError(t, err)

	before, err := env.activations.ActiveForHardware(ctx, license.ID, "hw-1")
	require.NoError(t, err)
	require.NotNil(t, before)

	// Pin the clock forward so the refresh is observable.
	env.service.now = func() time.Time { return time.Now().Add(time.Minute) }

	require.NoError(t, env.service.Heartbeat(ctx, license.LicenseKey, "hw-1"))

	after, err := env.activations.ActiveForHardware(ctx, license.ID, "hw-1")
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.True(t, after.LastCheckIn.After(before.LastCheckIn))
	assert.True(t, after.ActivatedAt.Equal(before.ActivatedAt))
}
