// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationIdempotency(t *testing.T) {
	ctx := t.Context()

	tmpDir, err := os.MkdirTemp("", "itstock-test-idempotent-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "test.db")

	db1, err := New(dbPath)
	require.NoError(t, err, "Failed to initialize database first time")

	var count1 int
	err = db1.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations").Scan(&count1)
	require.NoError(t, err, "Failed to count migrations")
	db1.Close()

	// Re-opening must not re-apply anything
	db2, err := New(dbPath)
	require.NoError(t, err, "Failed to initialize database second time")
	defer db2.Close()

	var count2 int
	err = db2.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations").Scan(&count2)
	require.NoError(t, err, "Failed to count migrations")

	assert.Equal(t, count1, count2, "Migration count should be the same after re-initialization")
	assert.Equal(t, 2, count2, "Should have exactly 2 migrations applied")
}

func TestSeededPlans(t *testing.T) {
	ctx := t.Context()

	tmpDir, err := os.MkdirTemp("", "itstock-test-plans-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	db, err := New(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	defer db.Close()

	var count int
	err = db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM plans WHERE is_active = 1").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "Default plan catalog should be seeded")
}
