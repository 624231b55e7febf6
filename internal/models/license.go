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

var ErrLicenseNotFound = errors.New("license not found")
var ErrDuplicatePayment = errors.New("license already provisioned for payment")

// License status constants
const (
	LicenseStatusActive  = "ACTIVE"
	LicenseStatusExpired = "EXPIRED"
	LicenseStatusRevoked = "REVOKED"
)

// Validity is the result of a point-in-time license check.
type Validity string

const (
	ValidityValid   Validity = "VALID"
	ValidityRevoked Validity = "REVOKED"
	ValidityExpired Validity = "EXPIRED"
)

// License is a purchased entitlement bound to a plan and a seat cap.
// Rows are never deleted, only transitioned to REVOKED or EXPIRED.
type License struct {
	ID              int        `json:"id"`
	LicenseKey      string     `json:"licenseKey"`
	PlanID          int        `json:"planId"`
	UserID          *int       `json:"userId,omitempty"`
	MaxActivations  int        `json:"maxActivations"`
	Status          string     `json:"status"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	StripePaymentID *string    `json:"stripePaymentId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`

	// Joined display fields, populated by GetByKey and List.
	PlanName  string  `json:"planName,omitempty"`
	UserEmail *string `json:"userEmail,omitempty"`
}

// Validity evaluates the license lazily at read time. REVOKED takes
// precedence over EXPIRED when both conditions hold.
func (l *License) Validity(now time.Time) Validity {
	if l.Status == LicenseStatusRevoked {
		return ValidityRevoked
	}
	if l.Status == LicenseStatusExpired {
		return ValidityExpired
	}
	if l.ExpiresAt != nil && l.ExpiresAt.Before(now) {
		return ValidityExpired
	}
	return ValidityValid
}

type LicenseStore struct {
	db *sql.DB
}

func NewLicenseStore(db *sql.DB) *LicenseStore {
	return &LicenseStore{db: db}
}

const licenseColumns = `
	l.id, l.license_key, l.plan_id, l.user_id, l.max_activations, l.status,
	l.expires_at, l.stripe_payment_id, l.created_at, l.updated_at,
	COALESCE(p.display_name, ''), u.email
`

func (s *LicenseStore) scanLicense(row interface{ Scan(...any) error }) (*License, error) {
	license := &License{}
	err := row.Scan(
		&license.ID,
		&license.LicenseKey,
		&license.PlanID,
		&license.UserID,
		&license.MaxActivations,
		&license.Status,
		&license.ExpiresAt,
		&license.StripePaymentID,
		&license.CreatedAt,
		&license.UpdatedAt,
		&license.PlanName,
		&license.UserEmail,
	)
	if err != nil {
		return nil, err
	}
	return license, nil
}

func (s *LicenseStore) GetByKey(ctx context.Context, licenseKey string) (*License, error) {
	query := `
		SELECT ` + licenseColumns + `
		FROM licenses l
		LEFT JOIN plans p ON p.id = l.plan_id
		LEFT JOIN users u ON u.id = l.user_id
		WHERE l.license_key = ?
	`

	license, err := s.scanLicense(s.db.QueryRowContext(ctx, query, licenseKey))
	if err == sql.ErrNoRows {
		return nil, ErrLicenseNotFound
	}
	if err != nil {
		return nil, err
	}

	return license, nil
}

func (s *LicenseStore) GetByPaymentID(ctx context.Context, paymentID string) (*License, error) {
	query := `
		SELECT ` + licenseColumns + `
		FROM licenses l
		LEFT JOIN plans p ON p.id = l.plan_id
		LEFT JOIN users u ON u.id = l.user_id
		WHERE l.stripe_payment_id = ?
	`

	license, err := s.scanLicense(s.db.QueryRowContext(ctx, query, paymentID))
	if err == sql.ErrNoRows {
		return nil, ErrLicenseNotFound
	}
	if err != nil {
		return nil, err
	}

	return license, nil
}

// Insert provisions a new license row. The unique constraint on
// stripe_payment_id is the deduplication mechanism for redelivered payment
// events; a constraint hit is reported as ErrDuplicatePayment so the caller
// can fetch and return the existing row.
func (s *LicenseStore) Insert(ctx context.Context, license *License) (*License, error) {
	query := `
		INSERT INTO licenses (license_key, plan_id, user_id, max_activations, status, expires_at, stripe_payment_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		license.LicenseKey,
		license.PlanID,
		license.UserID,
		license.MaxActivations,
		license.Status,
		license.ExpiresAt,
		license.StripePaymentID,
	).Scan(&license.ID, &license.CreatedAt, &license.UpdatedAt)

	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: licenses.stripe_payment_id") {
			return nil, ErrDuplicatePayment
		}
		return nil, err
	}

	return license, nil
}

func (s *LicenseStore) List(ctx context.Context) ([]*License, error) {
	query := `
		SELECT ` + licenseColumns + `
		FROM licenses l
		LEFT JOIN plans p ON p.id = l.plan_id
		LEFT JOIN users u ON u.id = l.user_id
		ORDER BY l.created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var licenses []*License
	for rows.Next() {
		license, err := s.scanLicense(rows)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, license)
	}

	return licenses, rows.Err()
}

// Revoke transitions a license to REVOKED. Idempotent on already revoked
// licenses.
func (s *LicenseStore) Revoke(ctx context.Context, licenseKey string) error {
	query := `
		UPDATE licenses
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE license_key = ?
	`

	result, err := s.db.ExecContext(ctx, query, LicenseStatusRevoked, licenseKey)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrLicenseNotFound
	}

	return nil
}
