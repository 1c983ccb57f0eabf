package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"unitcalc/internal/context"
	"unitcalc/internal/logger"
	"unitcalc/internal/solver"
)

// Configuration keys.
const (
	keyPrecisionDigits = "precision.digits"
	keyGuardDigits     = "precision.guard-digits"
	keyMaxIterations   = "solver.max-iterations"
	keySuppressedHints = "hints.suppressed"
)

// ConfigService loads session settings from, in priority order, environment
// variables, a local .env file, and the user config file, and applies them to
// the global session context. It also persists the hint suppression set so
// ":suppress" survives across sessions.
type ConfigService struct {
	initialized bool
	v           *viper.Viper
	configDir   string
}

// NewConfigService creates an uninitialized config service.
func NewConfigService() *ConfigService {
	return &ConfigService{}
}

// Name returns "config" for registration.
func (c *ConfigService) Name() string {
	return "config"
}

// Initialize reads configuration sources and seeds the global context.
// A missing config file is not an error; defaults apply.
func (c *ConfigService) Initialize() error {
	if c.initialized {
		return nil
	}

	// A local .env feeds process environment before viper reads it.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Debug("no local .env loaded", "error", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		c.configDir = filepath.Join(dir, "unitcalc")
		v.AddConfigPath(c.configDir)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("UNITCALC")
	v.AutomaticEnv()

	v.SetDefault(keyPrecisionDigits, context.DefaultOutputPrecision)
	v.SetDefault(keyGuardDigits, context.DefaultGuardDigits)
	v.SetDefault(keyMaxIterations, solver.DefaultMaxIterations)
	v.SetDefault(keySuppressedHints, []string{})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		logger.Debug("loaded config file", "path", v.ConfigFileUsed())
	}
	c.v = v

	ctx := context.GetGlobalContext()
	if err := ctx.SetOutputPrecision(v.GetInt(keyPrecisionDigits)); err != nil {
		return fmt.Errorf("bad %s: %w", keyPrecisionDigits, err)
	}
	if err := ctx.SetGuardDigits(v.GetInt(keyGuardDigits)); err != nil {
		return fmt.Errorf("bad %s: %w", keyGuardDigits, err)
	}
	for _, key := range v.GetStringSlice(keySuppressedHints) {
		ctx.Suppress(key)
	}

	c.initialized = true
	return nil
}

// MaxIterations returns the configured numeric solver iteration cap.
func (c *ConfigService) MaxIterations() int {
	if !c.initialized {
		return solver.DefaultMaxIterations
	}
	return c.v.GetInt(keyMaxIterations)
}

// SaveSuppressions writes the current suppression set back to the user
// config file, creating the config directory on first use.
func (c *ConfigService) SaveSuppressions() error {
	if !c.initialized {
		return fmt.Errorf("config service not initialized")
	}
	c.v.Set(keySuppressedHints, context.GetGlobalContext().SuppressedKeys())

	path := c.v.ConfigFileUsed()
	if path == "" {
		if c.configDir == "" {
			return fmt.Errorf("no config directory available")
		}
		if err := os.MkdirAll(c.configDir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		path = filepath.Join(c.configDir, "config.yaml")
	}
	if err := c.v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
