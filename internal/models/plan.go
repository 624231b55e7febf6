// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package models

import (
	"context"
	"database/sql"
	"errors"
)

var ErrPlanNotFound = errors.New("plan not found")

// Plan is an immutable catalog entry. Price is in whole currency units;
// the checkout layer converts to the provider's minor unit.
type Plan struct {
	ID          int    `json:"id"`
	DisplayName string `json:"displayName"`
	Price       int64  `json:"price"`
	SortOrder   int    `json:"sortOrder"`
	IsActive    bool   `json:"isActive"`
}

type PlanStore struct {
	db *sql.DB
}

func NewPlanStore(db *sql.DB) *PlanStore {
	return &PlanStore{db: db}
}

func (s *PlanStore) Get(ctx context.Context, id int) (*Plan, error) {
	query := `
		SELECT id, display_name, price, sort_order, is_active
		FROM plans
		WHERE id = ?
	`

	plan := &Plan{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&plan.ID,
		&plan.DisplayName,
		&plan.Price,
		&plan.SortOrder,
		&plan.IsActive,
	)

	if err == sql.ErrNoRows {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}

	return plan, nil
}

func (s *PlanStore) ListActive(ctx context.Context) ([]*Plan, error) {
	query := `
		SELECT id, display_name, price, sort_order, is_active
		FROM plans
		WHERE is_active = 1
		ORDER BY sort_order ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		plan := &Plan{}
		err := rows.Scan(
			&plan.ID,
			&plan.DisplayName,
			&plan.Price,
			&plan.SortOrder,
			&plan.IsActive,
		)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}

	return plans, rows.Err()
}
