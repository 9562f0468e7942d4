package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pevans/onepager/fetch"
	"github.com/pevans/onepager/publish"
	"github.com/pevans/onepager/site"
	"gopkg.in/yaml.v3"
)

// FetchConfig controls how article pages are requested.
type FetchConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MinInterval time.Duration `yaml:"min_interval"`
	Retries     int           `yaml:"retries"`
	UserAgent   string        `yaml:"user_agent"`
	// Origin is the only origin Cookie is ever sent to.
	Origin   string        `yaml:"origin"`
	Cookie   string        `yaml:"cookie"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// MergeConfig limits a merge run.
type MergeConfig struct {
	MaxPages int `yaml:"max_pages"`
}

// PublishConfig configures the Readwise client.
type PublishConfig struct {
	Endpoint   string   `yaml:"endpoint"`
	SavedUsing string   `yaml:"saved_using"`
	Tags       []string `yaml:"tags"`
}

// StorageConfig locates persistent state.
type StorageConfig struct {
	TokenDSN string `yaml:"token_dsn"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	ArtifactTTL time.Duration `yaml:"artifact_ttl"`
}

// Config represents the structure of ~/.onepager/config.yaml.
type Config struct {
	Fetch   FetchConfig   `yaml:"fetch"`
	Merge   MergeConfig   `yaml:"merge"`
	Publish PublishConfig `yaml:"publish"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
}

// Dir returns ~/.onepager.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".onepager"), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	profile := site.Golem()

	tokenDSN := "onepager.db"
	if dir, err := Dir(); err == nil {
		tokenDSN = filepath.Join(dir, "onepager.db")
	}

	return &Config{
		Fetch: FetchConfig{
			Timeout:     10 * time.Second,
			MinInterval: 250 * time.Millisecond,
			Retries:     2,
			UserAgent:   fetch.DefaultUserAgent,
			Origin:      "https://www.golem.de",
			CacheTTL:    5 * time.Minute,
		},
		Merge: MergeConfig{MaxPages: profile.MaxPages},
		Publish: PublishConfig{
			Endpoint:   publish.DefaultEndpoint,
			SavedUsing: publish.DefaultSavedUsing,
			Tags:       []string{profile.Tag},
		},
		Storage: StorageConfig{TokenDSN: tokenDSN},
		Server: ServerConfig{
			Addr:        "127.0.0.1:8080",
			ArtifactTTL: time.Hour,
		},
	}
}

// LoadConfigFile loads ~/.onepager/config.yaml on top of Default. Returns
// nil if the file doesn't exist (not an error). Returns error if the file
// exists but cannot be parsed or is invalid.
func LoadConfigFile() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(dir, "config.yaml")

	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil // File doesn't exist -- not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// Load returns the file configuration, or Default when there is no file.
func Load() (*Config, error) {
	cfg, err := LoadConfigFile()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default(), nil
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Merge.MaxPages < 1 {
		return errors.New("merge.max_pages must be at least 1")
	}
	if c.Fetch.Retries < 0 {
		return errors.New("fetch.retries must not be negative")
	}
	if c.Fetch.Timeout < 0 || c.Fetch.MinInterval < 0 || c.Fetch.CacheTTL < 0 {
		return errors.New("fetch durations must not be negative")
	}
	if c.Fetch.Origin != "" {
		if u, err := url.Parse(c.Fetch.Origin); err != nil || !u.IsAbs() {
			return fmt.Errorf("fetch.origin %q is not an absolute URL", c.Fetch.Origin)
		}
	}
	return nil
}

// Profile returns the golem.de profile with configured limits applied.
func (c *Config) Profile() site.Profile {
	profile := site.Golem()
	if c.Merge.MaxPages > 0 {
		profile.MaxPages = c.Merge.MaxPages
	}
	if c.Fetch.Origin != "" {
		profile.Origin = c.Fetch.Origin
	}
	return profile
}

// FetchOptions converts the fetch section into fetcher options.
func (c *Config) FetchOptions() fetch.Options {
	return fetch.Options{
		Timeout:     c.Fetch.Timeout,
		MinInterval: c.Fetch.MinInterval,
		Retries:     c.Fetch.Retries,
		UserAgent:   c.Fetch.UserAgent,
		Origin:      c.Fetch.Origin,
		Cookie:      c.Fetch.Cookie,
		CacheTTL:    c.Fetch.CacheTTL,
	}
}
