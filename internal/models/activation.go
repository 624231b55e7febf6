// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package models

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// ErrSeatTaken is returned when a concurrent request activated the same
// (license, hardware) pair first. The caller should re-read the row and
// report it as already activated.
var ErrSeatTaken = errors.New("hardware already holds an active seat")

// Activation binds a license to one machine, consuming one seat while
// active. Rows are deactivated, never deleted.
type Activation struct {
	ID            int        `json:"id"`
	LicenseID     int        `json:"licenseId"`
	HardwareID    string     `json:"hardwareId"`
	MachineName   string     `json:"machineName"`
	IPAddress     string     `json:"ipAddress"`
	ActivatedAt   time.Time  `json:"activatedAt"`
	LastCheckIn   time.Time  `json:"lastCheckIn"`
	IsActive      bool       `json:"isActive"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`
}

type ActivationStore struct {
	db *sql.DB
}

func NewActivationStore(db *sql.DB) *ActivationStore {
	return &ActivationStore{db: db}
}

// Touch refreshes last_check_in on the active activation for the given
// hardware and returns its original activated_at. Reports found=false when
// no active row matches.
func (s *ActivationStore) Touch(ctx context.Context, licenseID int, hardwareID string, now time.Time) (activatedAt time.Time, found bool, err error) {
	query := `
		UPDATE activations
		SET last_check_in = ?
		WHERE license_id = ? AND hardware_id = ? AND is_active = 1
		RETURNING activated_at
	`

	err = s.db.QueryRowContext(ctx, query, now, licenseID, hardwareID).Scan(&activatedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	return activatedAt, true, nil
}

// InsertIfUnderCap admits a new activation only while the active seat count
// is below the cap. The count and the insert are a single statement, so the
// store evaluates them atomically; concurrent activations for the same
// license cannot both observe a free seat and both insert. Reports
// admitted=false when the cap is reached. A concurrent activation of the
// same hardware trips the partial unique index and surfaces as ErrSeatTaken.
func (s *ActivationStore) InsertIfUnderCap(ctx context.Context, a *Activation, maxActivations int) (admitted bool, err error) {
	query := `
		INSERT INTO activations (license_id, hardware_id, machine_name, ip_address, activated_at, last_check_in, is_active)
		SELECT ?, ?, ?, ?, ?, ?, 1
		WHERE (SELECT COUNT(*) FROM activations WHERE license_id = ? AND is_active = 1) < ?
	`

	result, err := s.db.ExecContext(ctx, query,
		a.LicenseID,
		a.HardwareID,
		a.MachineName,
		a.IPAddress,
		a.ActivatedAt,
		a.LastCheckIn,
		a.LicenseID,
		maxActivations,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: activations.license_id, activations.hardware_id") ||
			strings.Contains(err.Error(), "idx_activations_active_hardware") {
			return false, ErrSeatTaken
		}
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

// Deactivate releases the seat held by the given hardware. A missing or
// already inactive row is a silent no-op.
func (s *ActivationStore) Deactivate(ctx context.Context, licenseID int, hardwareID string, now time.Time) error {
	query := `
		UPDATE activations
		SET is_active = 0, deactivated_at = ?
		WHERE license_id = ? AND hardware_id = ? AND is_active = 1
	`

	_, err := s.db.ExecContext(ctx, query, now, licenseID, hardwareID)
	return err
}

// CountActive returns the effective seat count for a license.
func (s *ActivationStore) CountActive(ctx context.Context, licenseID int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM activations WHERE license_id = ? AND is_active = 1",
		licenseID,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ActiveForHardware reports whether the given hardware currently holds a
// seat on the license, returning the row when it does.
func (s *ActivationStore) ActiveForHardware(ctx context.Context, licenseID int, hardwareID string) (*Activation, error) {
	query := `
		SELECT id, license_id, hardware_id, machine_name, ip_address, activated_at, last_check_in, is_active, deactivated_at
		FROM activations
		WHERE license_id = ? AND hardware_id = ? AND is_active = 1
	`

	a := &Activation{}
	err := s.db.QueryRowContext(ctx, query, licenseID, hardwareID).Scan(
		&a.ID,
		&a.LicenseID,
		&a.HardwareID,
		&a.MachineName,
		&a.IPAddress,
		&a.ActivatedAt,
		&a.LastCheckIn,
		&a.IsActive,
		&a.DeactivatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return a, nil
}
