// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/itstock/itstock-api/internal/metrics"
	"github.com/itstock/itstock-api/internal/models"
)

var (
	ErrLicenseRevoked = errors.New("license revoked")
	ErrLicenseExpired = errors.New("license expired")
)

// MaxActivationsError is returned when every seat on a license is taken.
// It carries the counts so clients can show them.
type MaxActivationsError struct {
	Current int
	Max     int
}

func (e *MaxActivationsError) Error() string {
	return fmt.Sprintf("max activations reached (%d/%d)", e.Current, e.Max)
}

// ActivationOutcome distinguishes a fresh activation from an idempotent
// re-activation of the same hardware.
type ActivationOutcome string

const (
	OutcomeActivated        ActivationOutcome = "ACTIVATED"
	OutcomeAlreadyActivated ActivationOutcome = "ALREADY_ACTIVATED"
)

// ActivationResult reports the outcome of an Activate call. ActivatedAt is
// the original activation time on re-activation.
type ActivationResult struct {
	Outcome     ActivationOutcome
	ActivatedAt time.Time
}

// ValidationSummary is the read-only view returned by Validate. It never
// admits or denies anything.
type ValidationSummary struct {
	Key                string     `json:"key"`
	Status             string     `json:"status"`
	Plan               string     `json:"plan"`
	MaxActivations     int        `json:"maxActivations"`
	CurrentActivations int        `json:"currentActivations"`
	ExpiresAt          *time.Time `json:"expiresAt,omitempty"`
	HardwareActive     bool       `json:"hardwareActive"`
}

// LicenseService covers the license lifecycle read path and the activation
// quota controller.
type LicenseService struct {
	licenses    *models.LicenseStore
	activations *models.ActivationStore
	now         func() time.Time
}

func NewLicenseService(licenses *models.LicenseStore, activations *models.ActivationStore) *LicenseService {
	return &LicenseService{
		licenses:    licenses,
		activations: activations,
		now:         time.Now,
	}
}

// Resolve looks up a license by its unique key.
func (s *LicenseService) Resolve(ctx context.Context, licenseKey string) (*models.License, error) {
	return s.licenses.GetByKey(ctx, licenseKey)
}

func (s *LicenseService) checkValidity(license *models.License) error {
	switch license.Validity(s.now()) {
	case models.ValidityRevoked:
		return ErrLicenseRevoked
	case models.ValidityExpired:
		return ErrLicenseExpired
	}
	return nil
}

// Validate resolves a license and returns a read-only summary of its state
// and seat usage. Revoked and expired licenses fail with their specific
// errors before any counting happens.
func (s *LicenseService) Validate(ctx context.Context, licenseKey, hardwareID string) (*ValidationSummary, error) {
	license, err := s.licenses.GetByKey(ctx, licenseKey)
	if err != nil {
		return nil, err
	}

	if err := s.checkValidity(license); err != nil {
		return nil, err
	}

	count, err := s.activations.CountActive(ctx, license.ID)
	if err != nil {
		return nil, err
	}

	existing, err := s.activations.ActiveForHardware(ctx, license.ID, hardwareID)
	if err != nil {
		return nil, err
	}

	return &ValidationSummary{
		Key:                license.LicenseKey,
		Status:             license.Status,
		Plan:               license.PlanName,
		MaxActivations:     license.MaxActivations,
		CurrentActivations: count,
		ExpiresAt:          license.ExpiresAt,
		HardwareActive:     existing != nil,
	}, nil
}

// Activate admits the hardware onto a seat, or refreshes its existing seat.
// Re-activation from the same machine is idempotent and never consumes an
// additional seat. The admission check and the insert are a single atomic
// conditional insert in the store, so concurrent calls for the same license
// cannot over-admit past MaxActivations.
func (s *LicenseService) Activate(ctx context.Context, licenseKey, hardwareID, machineName, ipAddress string) (*ActivationResult, error) {
	license, err := s.licenses.GetByKey(ctx, licenseKey)
	if err != nil {
		if errors.Is(err, models.ErrLicenseNotFound) {
			metrics.ActivationsTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
		}
		return nil, err
	}

	if err := s.checkValidity(license); err != nil {
		metrics.ActivationsTotal.WithLabelValues(metrics.OutcomeValidityRejected).Inc()
		return nil, err
	}

	now := s.now()

	activatedAt, found, err := s.activations.Touch(ctx, license.ID, hardwareID, now)
	if err != nil {
		return nil, err
	}
	if found {
		metrics.ActivationsTotal.WithLabelValues(metrics.OutcomeAlreadyActivated).Inc()
		return &ActivationResult{Outcome: OutcomeAlreadyActivated, ActivatedAt: activatedAt}, nil
	}

	if machineName == "" {
		machineName = "Unknown"
	}

	activation := &models.Activation{
		LicenseID:   license.ID,
		HardwareID:  hardwareID,
		MachineName: machineName,
		IPAddress:   ipAddress,
		ActivatedAt: now,
		LastCheckIn: now,
	}

	admitted, err := s.activations.InsertIfUnderCap(ctx, activation, license.MaxActivations)
	if errors.Is(err, models.ErrSeatTaken) {
		// A concurrent request from the same hardware won the race; treat
		// it like any other re-activation.
		existing, err := s.activations.ActiveForHardware(ctx, license.ID, hardwareID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("activation vanished after seat conflict on license %d", license.ID)
		}
		metrics.ActivationsTotal.WithLabelValues(metrics.OutcomeAlreadyActivated).Inc()
		return &ActivationResult{Outcome: OutcomeAlreadyActivated, ActivatedAt: existing.ActivatedAt}, nil
	}
	if err != nil {
		return nil, err
	}

	if !admitted {
		count, err := s.activations.CountActive(ctx, license.ID)
		if err != nil {
			return nil, err
		}
		metrics.ActivationsTotal.WithLabelValues(metrics.OutcomeQuotaRejected).Inc()
		return nil, &MaxActivationsError{Current: count, Max: license.MaxActivations}
	}

	log.Info().
		Str("licenseKey", maskLicenseKey(licenseKey)).
		Str("machineName", machineName).
		Msg("License activated")

	metrics.ActivationsTotal.WithLabelValues(metrics.OutcomeActivated).Inc()
	return &ActivationResult{Outcome: OutcomeActivated, ActivatedAt: now}, nil
}

// Deactivate releases the seat held by the hardware. Deactivating a machine
// that holds no seat is a silent no-op, matching client retry behavior.
func (s *LicenseService) Deactivate(ctx context.Context, licenseKey, hardwareID string) error {
	license, err := s.licenses.GetByKey(ctx, licenseKey)
	if err != nil {
		return err
	}

	return s.activations.Deactivate(ctx, license.ID, hardwareID, s.now())
}

// Heartbeat refreshes last_check_in on the hardware's active seat. No seat
// effect; a missing seat is a silent no-op.
func (s *LicenseService) Heartbeat(ctx context.Context, licenseKey, hardwareID string) error {
	license, err := s.licenses.GetByKey(ctx, licenseKey)
	if err != nil {
		return err
	}

	_, _, err = s.activations.Touch(ctx, license.ID, hardwareID, s.now())
	return err
}

// maskLicenseKey masks a license key for logging (shows first 8 chars + ***)
func maskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "***"
}
