// Copyright (c) 2025, the ITStock developers.
// SPDX-License-Identifier: MIT

package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type HTTPTimeouts struct {
	ReadTimeout  int `mapstructure:"readTimeout"`
	WriteTimeout int `mapstructure:"writeTimeout"`
	IdleTimeout  int `mapstructure:"idleTimeout"`
}

type Config struct {
	Host                string       `mapstructure:"host"`
	Port                int          `mapstructure:"port"`
	BaseURL             string       `mapstructure:"baseUrl"`
	FrontendURL         string       `mapstructure:"frontendUrl"`
	LogLevel            string       `mapstructure:"logLevel"`
	LogPath             string       `mapstructure:"logPath"`
	DatabasePath        string       `mapstructure:"databasePath"`
	JWTSecret           string       `mapstructure:"jwtSecret"`
	StripeSecretKey     string       `mapstructure:"stripeSecretKey"`
	StripeWebhookSecret string       `mapstructure:"stripeWebhookSecret"`
	CheckoutCurrency    string       `mapstructure:"checkoutCurrency"`
	MetricsEnabled      bool         `mapstructure:"metricsEnabled"`
	HTTPTimeouts        HTTPTimeouts `mapstructure:"httpTimeouts"`
}

type AppConfig struct {
	Config  *Config
	viper   *viper.Viper
	dataDir string
}

// GetDefaultConfigDir returns the OS-specific config directory.
func GetDefaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "itstock")
	}
	return "."
}

// New loads configuration from the given path (a directory containing
// config.toml, a direct .toml path, or empty for the OS default), layered
// with ITSTOCK__ environment overrides.
func New(configPath string) (*AppConfig, error) {
	c := &AppConfig{
		viper:  viper.New(),
		Config: &Config{},
	}

	c.defaults()

	c.viper.SetEnvPrefix("ITSTOCK_")
	c.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.viper.AutomaticEnv()

	configFile, err := resolveConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configFile); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	c.viper.SetConfigFile(configFile)
	c.viper.SetConfigType("toml")

	if err := c.viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if c.Config.JWTSecret == "" {
		// Tokens signed with a generated secret do not survive restarts.
		c.Config.JWTSecret = generateSecret(32)
		log.Warn().Msg("No jwtSecret configured, generated an ephemeral one")
	}

	return c, nil
}

func resolveConfigFile(configPath string) (string, error) {
	if configPath == "" {
		return filepath.Join(GetDefaultConfigDir(), "config.toml"), nil
	}
	if strings.HasSuffix(strings.ToLower(configPath), ".toml") {
		return configPath, nil
	}
	if info, err := os.Stat(configPath); err == nil && !info.IsDir() {
		return configPath, nil
	}
	return filepath.Join(configPath, "config.toml"), nil
}

func (c *AppConfig) defaults() {
	c.viper.SetDefault("host", "localhost")
	c.viper.SetDefault("port", 8080)
	c.viper.SetDefault("frontendUrl", "https://itstock.tech")
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("databasePath", "./data/itstock.db")
	c.viper.SetDefault("checkoutCurrency", "eur")
	c.viper.SetDefault("metricsEnabled", false)
	c.viper.SetDefault("httpTimeouts.readTimeout", 60)
	c.viper.SetDefault("httpTimeouts.writeTimeout", 120)
	c.viper.SetDefault("httpTimeouts.idleTimeout", 180)
}

// SetDataDir overrides the directory holding the database.
func (c *AppConfig) SetDataDir(dir string) {
	c.dataDir = dir
}

// GetDatabasePath returns the effective database path, honoring a data dir
// override.
func (c *AppConfig) GetDatabasePath() string {
	if c.dataDir != "" {
		return filepath.Join(c.dataDir, filepath.Base(c.Config.DatabasePath))
	}
	return c.Config.DatabasePath
}

// ApplyLogConfig configures the global zerolog logger from the loaded
// config.
func (c *AppConfig) ApplyLogConfig() {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Config.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.Config.LogPath != "" {
		file, err := os.OpenFile(c.Config.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Error().Err(err).Str("path", c.Config.LogPath).Msg("Failed to open log file, keeping stderr")
			return
		}
		log.Logger = log.Output(file)
	}
}

const defaultConfigTemplate = `# ITStock API configuration

host = "localhost"
port = 8080

# Public URL of the storefront, used for checkout redirects
frontendUrl = "https://itstock.tech"

logLevel = "INFO"
#logPath = "/var/log/itstock/api.log"

databasePath = "./data/itstock.db"

# Secret used to sign management bearer tokens. Generate with:
#   openssl rand -base64 32
jwtSecret = ""

# Stripe credentials
stripeSecretKey = ""
stripeWebhookSecret = ""
checkoutCurrency = "eur"

metricsEnabled = false

[httpTimeouts]
readTimeout = 60
writeTimeout = 120
idleTimeout = 180
`

// WriteDefaultConfig writes the default configuration file.
func WriteDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigTemplate), 0644)
}

func generateSecret(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(b)
}
