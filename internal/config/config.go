// Package config loads server configuration from a YAML file plus
// environment overrides.
//
// Lookup order, later wins:
//  1. built-in defaults
//  2. config file (default ~/.config/enhanced-ado-mcp/config.yaml,
//     overridden by ADO_MCP_CONFIG)
//  3. environment variables (AZURE_DEVOPS_ORG, AZURE_DEVOPS_PROJECT,
//     AZURE_DEVOPS_PAT)
//
// The PAT is accepted from the environment only — secrets don't belong
// in the config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvConfigPath   = "ADO_MCP_CONFIG"
	EnvOrganization = "AZURE_DEVOPS_ORG"
	EnvProject      = "AZURE_DEVOPS_PROJECT"
	EnvPAT          = "AZURE_DEVOPS_PAT"
)

// Duration wraps time.Duration so YAML values like "24h" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// HandleConfig tunes the handle registry.
type HandleConfig struct {
	// DefaultTTL is applied when a tool call doesn't request a shorter
	// lifetime.
	DefaultTTL Duration `yaml:"default_ttl"`

	// MaxTTL is the hard ceiling; requested TTLs are clamped to it.
	MaxTTL Duration `yaml:"max_ttl"`

	// SweepInterval is how often expired handles are removed.
	SweepInterval Duration `yaml:"sweep_interval"`
}

// SelectionConfig tunes criteria matching.
type SelectionConfig struct {
	// CaseSensitive switches states/tags/titleContains matching from
	// the case-insensitive default to byte-exact.
	CaseSensitive bool `yaml:"case_sensitive"`
}

// StalenessConfig tunes the substantive-change classifier.
type StalenessConfig struct {
	// SubstantiveFields overrides the default substantive field set
	// when non-empty.
	SubstantiveFields []string `yaml:"substantive_fields"`

	// AutomatedFields overrides the default automation field set when
	// non-empty.
	AutomatedFields []string `yaml:"automated_fields"`

	// CacheDir is where the revision cache database lives. Empty means
	// the package default.
	CacheDir string `yaml:"cache_dir"`

	// CacheMaxAge bounds how stale a cached revision history may be.
	CacheMaxAge Duration `yaml:"cache_max_age"`
}

// Config is the full server configuration.
type Config struct {
	Organization string `yaml:"organization"`
	Project      string `yaml:"project"`

	// PAT is never read from YAML; it comes from AZURE_DEVOPS_PAT.
	PAT string `yaml:"-"`

	// RequestsPerSecond caps outbound Azure DevOps calls.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	Handles   HandleConfig    `yaml:"handles"`
	Selection SelectionConfig `yaml:"selection"`
	Staleness StalenessConfig `yaml:"staleness"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RequestsPerSecond: 10,
		Handles: HandleConfig{
			DefaultTTL:    Duration(24 * time.Hour),
			MaxTTL:        Duration(48 * time.Hour),
			SweepInterval: Duration(5 * time.Minute),
		},
		Staleness: StalenessConfig{
			CacheMaxAge: Duration(15 * time.Minute),
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "enhanced-ado-mcp", "config.yaml")
}

// Load builds the effective configuration. A missing config file is
// fine — defaults plus environment may be enough. Validation failures
// (no organization/project/PAT) are returned as errors so serve can
// refuse to start with a clear message.
func Load() (Config, error) {
	path := os.Getenv(EnvConfigPath)
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file: rely on defaults and environment.
	default:
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	if v := os.Getenv(EnvOrganization); v != "" {
		cfg.Organization = v
	}
	if v := os.Getenv(EnvProject); v != "" {
		cfg.Project = v
	}
	cfg.PAT = os.Getenv(EnvPAT)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var problems []error
	if c.Organization == "" {
		problems = append(problems, fmt.Errorf("organization is required (config file or %s)", EnvOrganization))
	}
	if c.Project == "" {
		problems = append(problems, fmt.Errorf("project is required (config file or %s)", EnvProject))
	}
	if c.PAT == "" {
		problems = append(problems, fmt.Errorf("a personal access token is required (%s)", EnvPAT))
	}
	if c.Handles.DefaultTTL.Std() > c.Handles.MaxTTL.Std() {
		problems = append(problems, errors.New("handles.default_ttl must not exceed handles.max_ttl"))
	}
	return errors.Join(problems...)
}
