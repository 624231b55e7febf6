// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLicenseValidity(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name     string
		license  License
		expected Validity
	}{
		{
			name:     "active without expiry",
			license:  License{Status: LicenseStatusActive},
			expected: ValidityValid,
		},
		{
			name:     "active with future expiry",
			license:  License{Status: LicenseStatusActive, ExpiresAt: &future},
			expected: ValidityValid,
		},
		{
			name:     "active but past expiry",
			license:  License{Status: LicenseStatusActive, ExpiresAt: &past},
			expected: ValidityExpired,
		},
		{
			name:     "expired status",
			license:  License{Status: LicenseStatusExpired},
			expected: ValidityExpired,
		},
		{
			name:     "revoked status",
			license:  License{Status: LicenseStatusRevoked},
			expected: ValidityRevoked,
		},
		{
			name:     "revoked takes precedence over past expiry",
			license:  License{Status: LicenseStatusRevoked, ExpiresAt: &past},
			expected: ValidityRevoked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.license.Validity(now))
		})
	}
}
