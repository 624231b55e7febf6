// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itstock/itstock-api/internal/database"
	"github.com/itstock/itstock-api/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "itstock-auth-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	db, err := database.New(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewService(models.NewUserStore(db.Conn()), "test-secret")
}

func TestLogin(t *testing.T) {
	ctx := t.Context()
	svc := newTestService(t)

	user, err := svc.CreateUser(ctx, "admin@itstock.tech", "supersecret", "Admin", "admin")
	require.NoError(t, err)

	token, loggedIn, err := svc.Login(ctx, "admin@itstock.tech", "supersecret")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, user.ID, loggedIn.ID)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "admin@itstock.tech", claims.Email)
	assert.Equal(t, "admin", claims.Role)
}

func TestLoginInvalidCredentials(t *testing.T) {
	ctx := t.Context()
	svc := newTestService(t)

	_, err := svc.CreateUser(ctx, "admin@itstock.tech", "supersecret", "Admin", "admin")
	require.NoError(t, err)

	// Wrong password and unknown user look identical to the caller.
	_, _, err = svc.Login(ctx, "admin@itstock.tech", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody@itstock.tech", "supersecret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	ctx := t.Context()
	svc := newTestService(t)

	_, err := svc.CreateUser(ctx, "admin@itstock.tech", "supersecret", "Admin", "admin")
	require.NoError(t, err)

	token, _, err := svc.Login(ctx, "admin@itstock.tech", "supersecret")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewService(nil, "different-secret")
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
