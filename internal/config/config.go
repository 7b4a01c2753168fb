package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"amo-signer/internal/auth"
	"amo-signer/internal/fileutil"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultStatusCheckTimeout bounds how long a run waits for the signing job
const DefaultStatusCheckTimeout = 5 * time.Minute

// Config holds everything a signing run needs
type Config struct {
	APIKey       string        `yaml:"apiKey"`
	APISecret    string        `yaml:"apiSecret"`
	APIURLPrefix string        `yaml:"apiUrlPrefix"`
	ID           string        `yaml:"id"`
	Version      string        `yaml:"version"`
	XPIPath      string        `yaml:"xpiPath"`
	DownloadDir  string        `yaml:"downloadDir"`
	Timeout      time.Duration `yaml:"-"`
	Verbose      bool          `yaml:"verbose"`

	OCIRegistry string `yaml:"ociRegistry"`
	OCIUsername string `yaml:"ociUsername"`
	OCIPassword string `yaml:"ociPassword"`
}

// fileTimeout decodes the timeout setting as text so the file accepts the
// same forms as AMO_TIMEOUT and --timeout
type fileTimeout struct {
	Timeout *string `yaml:"timeout"`
}

// Defaults returns a config with every optional setting at its default
func Defaults() *Config {
	return &Config{
		APIURLPrefix: DefaultAPIURLPrefix,
		Timeout:      DefaultStatusCheckTimeout,
	}
}

// Load builds a config from defaults, then the YAML file at path, then the environment.
// A missing file is fine unless required is set (the user named it explicitly).
func Load(fs afero.Fs, path string, required bool) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := cfg.loadFile(fs, path, required); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(fs afero.Fs, path string, required bool) error {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return fmt.Errorf("failed to check config file %s: %w", path, err)
	}
	if !exists {
		if required {
			return fmt.Errorf("config file not found: %s", path)
		}
		return nil
	}

	data, err := fileutil.ReadFileSafe(fs, path, fileutil.MaxConfigFileSize)
	if err != nil {
		return fmt.Errorf("failed to read config file at %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	var ft fileTimeout
	if err := yaml.Unmarshal(data, &ft); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if ft.Timeout != nil {
		d, err := ParseTimeout(*ft.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout in %s: %w", path, err)
		}
		c.Timeout = d
	}
	return nil
}

// applyEnv overlays every environment variable that is set
func (c *Config) applyEnv() error {
	setString(&c.APIKey, GetAPIKey())
	setString(&c.APISecret, GetAPISecret())
	setString(&c.APIURLPrefix, GetAPIURLPrefix())
	setString(&c.ID, GetAddonID())
	setString(&c.Version, GetAddonVersion())
	setString(&c.XPIPath, GetXPIPath())
	setString(&c.DownloadDir, GetDownloadDir())
	setString(&c.OCIRegistry, GetOCIRegistry())
	setString(&c.OCIUsername, GetOCIUsername())
	setString(&c.OCIPassword, GetOCIPassword())

	if raw := os.Getenv(EnvTimeout); raw != "" {
		d, err := ParseTimeout(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}

	if raw := os.Getenv(EnvVerbose); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvVerbose, err)
		}
		c.Verbose = v
	}
	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// ParseTimeout accepts a Go duration ("90s", "5m") or a bare number of milliseconds
func ParseTimeout(raw string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(raw)
}

// Credentials returns the API key pair
func (c *Config) Credentials() auth.Credentials {
	return auth.Credentials{APIKey: c.APIKey, APISecret: c.APISecret}
}

// Validate rejects configs that cannot start a run. The add-on id and version
// may still be filled from the package manifest afterwards.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Credentials().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w (set %s and %s)", err, EnvAPIKey, EnvAPISecret))
	}
	if c.XPIPath == "" {
		errs = append(errs, fmt.Errorf("xpi path is required (positional XPI argument or %s)", EnvXPIPath))
	}
	if err := ValidateAPIURLPrefix(c.APIURLPrefix); err != nil {
		errs = append(errs, err)
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if c.OCIUsername != "" && c.OCIPassword == "" {
		errs = append(errs, fmt.Errorf("%s requires %s", EnvOCIUsername, EnvOCIPassword))
	}

	return errors.Join(errs...)
}
