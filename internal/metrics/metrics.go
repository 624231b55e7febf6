// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Activation outcome labels
const (
	OutcomeActivated        = "activated"
	OutcomeAlreadyActivated = "already_activated"
	OutcomeQuotaRejected    = "rejected_quota"
	OutcomeValidityRejected = "rejected_validity"
	OutcomeNotFound         = "not_found"
)

var (
	ActivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itstock_activations_total",
		Help: "License activation attempts by outcome",
	}, []string{"outcome"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itstock_webhook_events_total",
		Help: "Payment provider webhook events by type and outcome",
	}, []string{"type", "outcome"})

	LicensesProvisionedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "itstock_licenses_provisioned_total",
		Help: "Licenses created by the provisioning pipeline",
	})
)
