package app

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/inkform/inkform-backend/internal/platform/envutil"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

// Config holds process-level settings. Everything component-specific (mail,
// webhooks, storage buckets) is read from env by the component itself.
type Config struct {
	Port        string `yaml:"port"`
	LogMode     string `yaml:"log_mode"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// LoadConfig reads env with defaults, then applies an optional YAML overlay
// pointed at by INKFORM_CONFIG. Overlay values win when set.
func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:        envutil.String("PORT", "8080"),
		LogMode:     envutil.String("LOG_MODE", "development"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),
	}

	path := strings.TrimSpace(os.Getenv("INKFORM_CONFIG"))
	if path == "" {
		return cfg
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn("Config overlay unreadable, using env only", "path", path, "error", err)
		return cfg
	}
	var overlay Config
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		log.Warn("Config overlay invalid, using env only", "path", path, "error", err)
		return cfg
	}
	if overlay.Port != "" {
		cfg.Port = overlay.Port
	}
	if overlay.LogMode != "" {
		cfg.LogMode = overlay.LogMode
	}
	if overlay.Environment != "" {
		cfg.Environment = overlay.Environment
	}
	if overlay.Version != "" {
		cfg.Version = overlay.Version
	}
	return cfg
}
