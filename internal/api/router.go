// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itstock/itstock-api/internal/api/handlers"
	apimiddleware "github.com/itstock/itstock-api/internal/api/middleware"
	"github.com/itstock/itstock-api/internal/auth"
	"github.com/itstock/itstock-api/internal/config"
	"github.com/itstock/itstock-api/internal/database"
	"github.com/itstock/itstock-api/internal/models"
	"github.com/itstock/itstock-api/internal/services"
)

// Dependencies holds all the dependencies needed for the API
type Dependencies struct {
	Config          *config.AppConfig
	DB              *database.DB
	AuthService     *auth.Service
	LicenseService  *services.LicenseService
	Provisioning    *services.ProvisioningService
	LicenseStore    *models.LicenseStore
	PlanStore       *models.PlanStore
	WebhookVerifier handlers.WebhookVerifier
	Version         string
}

// NewRouter creates and configures the main application router
func NewRouter(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apimiddleware.HTTPLogger)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Version)
	licensesHandler := handlers.NewLicensesHandler(deps.LicenseService, deps.LicenseStore)
	authHandler := handlers.NewAuthHandler(deps.AuthService)
	plansHandler := handlers.NewPlansHandler(deps.PlanStore)
	paymentsHandler := handlers.NewPaymentsHandler(deps.WebhookVerifier, deps.Provisioning)

	r.Get("/health", healthHandler.Check)

	if deps.Config != nil && deps.Config.Config.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		licensesHandler.RegisterRoutes(r)

		r.Post("/auth/login", authHandler.Login)
		r.Get("/plans", plansHandler.List)

		r.Post("/webhooks/stripe", paymentsHandler.Webhook)
		r.Post("/create-checkout-session", paymentsHandler.CreateCheckoutSession)

		// Management surface
		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.RequireAuth(deps.AuthService))
			licensesHandler.RegisterManagementRoutes(r)
		})
	})

	return r
}
