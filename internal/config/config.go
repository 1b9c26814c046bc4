// Package config provides configuration loading and management for the registry.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/gitlab-composer-registry/internal/composer"
	"github.com/stacklok/gitlab-composer-registry/internal/filtering"
	"github.com/stacklok/gitlab-composer-registry/internal/telemetry"
)

const (
	// EnvPrefix is the prefix of environment variables overriding file settings,
	// e.g. COMPOSER_REGISTRY_API_KEY
	EnvPrefix = "COMPOSER_REGISTRY"

	// DefaultCacheDir is the default directory for cache records and the index
	DefaultCacheDir = "./cache"

	// DefaultStaticFile is the default path of the static package file
	DefaultStaticFile = "./confs/static-repos.json"

	// DefaultWorkers is the default number of repositories processed concurrently
	DefaultWorkers = 1

	// DefaultRequestsPerSecond is the default GitLab request rate
	DefaultRequestsPerSecond = 10
)

// ErrConfigNotFound is returned when the configuration file does not exist
var ErrConfigNotFound = errors.New("configuration file not found")

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path    string
	environ bool
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// WithoutEnvironment disables environment variable overrides
func WithoutEnvironment() Option {
	return func(cfg *loaderConfig) error {
		cfg.environ = false
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Endpoint is the GitLab base URL, e.g. https://gitlab.example.com
	Endpoint string `yaml:"endpoint"`

	// APIKey is the GitLab access token
	APIKey string `yaml:"api_key"`

	// Groups restricts enumeration to the groups with these names.
	// When empty every project visible to the token is mirrored.
	Groups []string `yaml:"groups,omitempty"`

	// Filter narrows the enumerated projects by path and topic
	Filter *FilterConfig `yaml:"filter,omitempty"`

	// Method selects the checkout URL published in descriptors: ssh or http
	Method string `yaml:"method,omitempty"`

	// Port is an explicit ssh port; when set ssh URLs take the ssh:// form
	Port string `yaml:"port,omitempty"`

	// AllowPackageNameMismatch accepts manifests whose name differs from the
	// repository path and publishes them under the declared name
	AllowPackageNameMismatch bool `yaml:"allow_package_name_mismatch,omitempty"`

	// HideProjects rejects manifests of type "project"
	HideProjects bool `yaml:"hide_projects,omitempty"`

	// CacheDir holds the per-repository records, the index and the build status
	CacheDir string `yaml:"cache_dir,omitempty"`

	// StaticFile is the curated package file merged into every index
	StaticFile string `yaml:"static_file,omitempty"`

	// RebuildOnRequest runs the staleness check on every index request
	RebuildOnRequest bool `yaml:"rebuild_on_request"`

	// RebuildInterval enables background rebuilds, e.g. "10m"
	RebuildInterval string `yaml:"rebuild_interval,omitempty"`

	// Workers is the number of repositories processed concurrently
	Workers int `yaml:"workers,omitempty"`

	// RequestsPerSecond limits the GitLab request rate; negative disables the limit
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`

	// Telemetry configures tracing and metrics
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`

	path string
}

// FilterConfig selects projects after enumeration
type FilterConfig struct {
	// Paths holds glob patterns matched against path_with_namespace
	Paths *RuleConfig `yaml:"paths,omitempty"`
	// Topics holds GitLab project topics matched exactly
	Topics *RuleConfig `yaml:"topics,omitempty"`
}

// RuleConfig is a pair of include and exclude lists. Exclude takes precedence.
type RuleConfig struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// Rules flattens the filter configuration; a nil receiver yields no rules
func (f *FilterConfig) Rules() filtering.Rules {
	var rules filtering.Rules
	if f == nil {
		return rules
	}
	if f.Paths != nil {
		rules.PathInclude = f.Paths.Include
		rules.PathExclude = f.Paths.Exclude
	}
	if f.Topics != nil {
		rules.TopicInclude = f.Topics.Include
		rules.TopicExclude = f.Topics.Exclude
	}
	return rules
}

// LoadConfig loads and parses configuration from a YAML file. Every setting
// can be overridden from the environment with the COMPOSER_REGISTRY_ prefix.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{environ: true}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	v := viper.New()
	setDefaults(v)
	if loaderCfg.environ {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	v.SetConfigFile(loaderCfg.path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, loaderCfg.path)
		}
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	config.path = loaderCfg.path

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", "")
	v.SetDefault("api_key", "")
	v.SetDefault("groups", []string{})
	v.SetDefault("method", composer.MethodSSH)
	v.SetDefault("port", "")
	v.SetDefault("allow_package_name_mismatch", false)
	v.SetDefault("hide_projects", false)
	v.SetDefault("cache_dir", DefaultCacheDir)
	v.SetDefault("static_file", DefaultStaticFile)
	v.SetDefault("rebuild_on_request", true)
	v.SetDefault("rebuild_interval", "")
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("requests_per_second", DefaultRequestsPerSecond)
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint must be an http or https URL, got %q", c.Endpoint)
	}

	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (or set %s_API_KEY)", EnvPrefix)
	}

	if _, ok := composer.NormalizeMethod(c.Method); !ok {
		slog.Warn("Invalid checkout method, falling back to ssh", "method", c.Method)
	}

	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir is required")
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	if _, err := c.GetRebuildInterval(); err != nil {
		return err
	}

	if _, err := filtering.NewProjectFilter(c.Filter.Rules()); err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

// Path returns the resolved configuration file path
func (c *Config) Path() string {
	return c.path
}

// ModTime returns the configuration file's modification time
func (c *Config) ModTime() (time.Time, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat config file: %w", err)
	}
	return info.ModTime(), nil
}

// GetRebuildInterval returns the background rebuild interval, zero when disabled
func (c *Config) GetRebuildInterval() (time.Duration, error) {
	if c.RebuildInterval == "" {
		return 0, nil
	}
	interval, err := time.ParseDuration(c.RebuildInterval)
	if err != nil {
		return 0, fmt.Errorf("rebuild_interval must be a valid duration (e.g., '10m', '1h'): %w", err)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("rebuild_interval must be positive, got %s", c.RebuildInterval)
	}
	return interval, nil
}

// Policy returns the descriptor policy derived from the configuration
func (c *Config) Policy() composer.Policy {
	return composer.Policy{
		Method:            c.Method,
		Port:              c.Port,
		HideProjects:      c.HideProjects,
		AllowNameMismatch: c.AllowPackageNameMismatch,
	}.Normalized()
}

// Redacted renders the effective configuration as YAML with the API key masked
func (c *Config) Redacted() ([]byte, error) {
	clone := *c
	if clone.APIKey != "" {
		clone.APIKey = "REDACTED"
	}
	return yaml.Marshal(&clone)
}
