// Loads the server configuration from a YAML file.

// Package config defines the schemadb configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maruel/schemadb/internal/schema"
	"github.com/maruel/schemadb/internal/store"
	"gopkg.in/yaml.v3"
)

// Config is the content of the configuration file.
type Config struct {
	// Workspaces are the folders whose marker file backs a collection.
	Workspaces []store.Folder `yaml:"workspaces"`

	// Debounce is the quiet period before change notifications are delivered.
	Debounce time.Duration `yaml:"debounce"`

	// LoadTimeout bounds how long a write waits for a new collection to load.
	LoadTimeout time.Duration `yaml:"load_timeout"`

	// HTTP is the listen address. It must be set here or with -http.
	HTTP string `yaml:"http"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

// RateLimits limits write requests per client.
type RateLimits struct {
	// WritePerMin is the sustained write rate. 0 means unlimited.
	WritePerMin int `yaml:"write_per_min"`
	// Burst is the bucket size.
	Burst int `yaml:"burst"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Debounce:    25 * time.Millisecond,
		LoadTimeout: 2 * time.Second,
		HTTP:        "localhost:8080",
		RateLimits:  RateLimits{WritePerMin: 600, Burst: 60},
	}
}

// Load reads the file at path over the defaults. A missing file yields the
// defaults. Relative workspace paths are resolved against the file's
// directory.
func Load(path string) (*Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range c.Workspaces {
		if p := c.Workspaces[i].Path; p != "" && !filepath.IsAbs(p) {
			c.Workspaces[i].Path = filepath.Join(dir, p)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return c, nil
}

// ListenAddr returns the HTTP listen address, with a bare ":port" bound to
// localhost. An empty address is an error.
func (c *Config) ListenAddr() (string, error) {
	if c.HTTP == "" {
		return "", errors.New("no listen address: set http in the configuration file or pass -http")
	}
	if strings.HasPrefix(c.HTTP, ":") {
		return "localhost" + c.HTTP, nil
	}
	return c.HTTP, nil
}

// Validate checks durations, rate limits and workspace names.
func (c *Config) Validate() error {
	if c.Debounce <= 0 {
		return errors.New("debounce must be positive")
	}
	if c.LoadTimeout <= 0 {
		return errors.New("load_timeout must be positive")
	}
	if c.RateLimits.WritePerMin < 0 || c.RateLimits.Burst < 0 {
		return errors.New("rate_limits must be non-negative")
	}
	seen := make(map[string]struct{}, len(c.Workspaces))
	for i, w := range c.Workspaces {
		if w.Name == "" || w.Path == "" {
			return fmt.Errorf("workspace %d: name and path are required", i)
		}
		if schema.IsNative(w.Name) {
			return fmt.Errorf("workspace %q: name is reserved", w.Name)
		}
		if _, dup := seen[w.Name]; dup {
			return fmt.Errorf("workspace %q: duplicate name", w.Name)
		}
		seen[w.Name] = struct{}{}
	}
	return nil
}
