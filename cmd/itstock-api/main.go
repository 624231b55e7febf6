// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/itstock/itstock-api/internal/api"
	"github.com/itstock/itstock-api/internal/auth"
	"github.com/itstock/itstock-api/internal/config"
	"github.com/itstock/itstock-api/internal/database"
	"github.com/itstock/itstock-api/internal/models"
	"github.com/itstock/itstock-api/internal/payments"
	"github.com/itstock/itstock-api/internal/services"
)

var Version = "dev"

func main() {
	var rootCmd = &cobra.Command{
		Use:   "itstock-api",
		Short: "License activation and provisioning API for ITStock",
		Long: `itstock-api - issues, validates and tracks software license
activations tied to purchased plans, provisioning licenses automatically
when a payment completes.`,
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd.Version = Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())
	rootCmd.AddCommand(RunCreateUserCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific, e.g. ~/.config/itstock/). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the database (default is next to the config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stderr)")

	command.Run = func(cmd *cobra.Command, args []string) {
		runServer(configDir, dataDir, logPath)
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of itstock-api",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				configPath = filepath.Join(config.GetDefaultConfigDir(), "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func readPassword(prompt string) (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print(prompt)
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(password), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	var password string
	if _, err := fmt.Scanln(&password); err != nil {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return password, nil
}

func RunCreateUserCommand() *cobra.Command {
	var configDir, dataDir, email, name, password, role string

	command := &cobra.Command{
		Use:   "create-user",
		Short: "Create a management user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(configDir)
			if err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			if dataDir != "" {
				cfg.SetDataDir(dataDir)
			}

			db, err := database.New(cfg.GetDatabasePath())
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer db.Close()

			if email == "" {
				fmt.Print("Enter email: ")
				if _, err := fmt.Scanln(&email); err != nil {
					return fmt.Errorf("failed to read email: %w", err)
				}
			}
			email = strings.TrimSpace(email)
			if email == "" {
				return fmt.Errorf("email cannot be empty")
			}

			if password == "" {
				password, err = readPassword("Enter password: ")
				if err != nil {
					return err
				}
			}
			if len(password) < 8 {
				return fmt.Errorf("password must be at least 8 characters long")
			}

			authService := auth.NewService(models.NewUserStore(db.Conn()), cfg.Config.JWTSecret)

			user, err := authService.CreateUser(context.Background(), email, password, name, role)
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			cmd.Printf("User '%s' created successfully with ID: %d\n", user.Email, user.ID)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&dataDir, "data-dir", "",
		"data directory path (defaults to next to config file)")
	command.Flags().StringVar(&email, "email", "",
		"email for the new account")
	command.Flags().StringVar(&name, "name", "",
		"display name for the new account")
	command.Flags().StringVar(&password, "password", "",
		"password for the new account (will prompt if not provided)")
	command.Flags().StringVar(&role, "role", "admin",
		"role for the new account")

	return command
}

func runServer(configDir, dataDir, logPath string) {
	log.Info().Str("version", Version).Msg("Starting itstock-api")

	cfg, err := config.New(configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	if dataDir != "" {
		cfg.SetDataDir(dataDir)
	}
	if logPath != "" {
		cfg.Config.LogPath = logPath
	}

	cfg.ApplyLogConfig()

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	userStore := models.NewUserStore(db.Conn())
	planStore := models.NewPlanStore(db.Conn())
	licenseStore := models.NewLicenseStore(db.Conn())
	activationStore := models.NewActivationStore(db.Conn())

	authService := auth.NewService(userStore, cfg.Config.JWTSecret)
	licenseService := services.NewLicenseService(licenseStore, activationStore)

	if cfg.Config.StripeSecretKey == "" || cfg.Config.StripeWebhookSecret == "" {
		log.Warn().Msg("Stripe credentials not fully configured, checkout and provisioning will fail")
	}
	paymentsClient := payments.NewClient(
		cfg.Config.StripeSecretKey,
		cfg.Config.StripeWebhookSecret,
		cfg.Config.FrontendURL,
		cfg.Config.CheckoutCurrency,
	)

	provisioningService := services.NewProvisioningService(licenseStore, planStore, paymentsClient)

	if cfg.Config.MetricsEnabled {
		log.Info().Msg("Prometheus metrics enabled at /metrics endpoint")
	}

	deps := &api.Dependencies{
		Config:          cfg,
		DB:              db,
		AuthService:     authService,
		LicenseService:  licenseService,
		Provisioning:    provisioningService,
		LicenseStore:    licenseStore,
		PlanStore:       planStore,
		WebhookVerifier: paymentsClient,
		Version:         Version,
	}

	router := api.NewRouter(deps)

	readTimeout := time.Duration(cfg.Config.HTTPTimeouts.ReadTimeout) * time.Second
	writeTimeout := time.Duration(cfg.Config.HTTPTimeouts.WriteTimeout) * time.Second
	idleTimeout := time.Duration(cfg.Config.HTTPTimeouts.IdleTimeout) * time.Second

	if readTimeout == 0 {
		readTimeout = 60 * time.Second
	}
	if writeTimeout == 0 {
		writeTimeout = 120 * time.Second
	}
	if idleTimeout == 0 {
		idleTimeout = 180 * time.Second
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Config.Host, cfg.Config.Port),
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	go func() {
		log.Info().
			Str("address", srv.Addr).
			Dur("readTimeout", readTimeout).
			Dur("writeTimeout", writeTimeout).
			Dur("idleTimeout", idleTimeout).
			Msg("Starting HTTP server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
