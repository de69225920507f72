// Package config loads per-project doclink settings from .doclink.toml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
)

// FileName is the settings file looked up at the project root.
const FileName = ".doclink.toml"

// ErrNoConfig is returned by Load when the project has no settings file.
var ErrNoConfig = errors.New("config: no project settings")

// Config is the per-project scanner configuration.
type Config struct {
	// Root is the absolute project directory. Not read from the file.
	Root string `toml:"-"`

	// Docs lists doublestar patterns for documentation files, relative to Root.
	Docs []string `toml:"docs"`

	// Exclude lists doublestar patterns skipped for both docs and sources.
	Exclude []string `toml:"exclude"`

	// LocatorScript is an optional Risor script, relative to Root, consulted
	// for symbol selectors the built-in locator cannot resolve.
	LocatorScript string `toml:"locator_script"`

	// Workers bounds parallel markdown reading. 0 means NumCPU.
	Workers int `toml:"workers"`

	// WatchDebounceMs is the quiet period before a batch of file events
	// triggers a refresh.
	WatchDebounceMs int `toml:"watch_debounce_ms"`
}

// Default returns the settings used when a field is left unset.
func Default(root string) *Config {
	return &Config{
		Root:            root,
		Docs:            []string{"**/*.md"},
		Exclude:         []string{"**/.git/**", "**/node_modules/**", "**/vendor/**"},
		WatchDebounceMs: 300,
	}
}

// Load reads Root/.doclink.toml. A missing file yields ErrNoConfig; a file
// that fails to parse or validate yields a descriptive error.
func Load(root string) (*Config, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoConfig
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(root, data)
}

// Parse decodes settings from data. Unknown keys are rejected.
func Parse(root string, data []byte) (*Config, error) {
	cfg := Default(root)
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("config: %s:%d:%d: %s", FileName, row, col, derr.Error())
		}
		return nil, fmt.Errorf("config: %s: %w", FileName, err)
	}
	cfg.Root = root
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks patterns and numeric bounds.
func (c *Config) Validate() error {
	if len(c.Docs) == 0 {
		return errors.New("config: docs must list at least one pattern")
	}
	for _, p := range append(append([]string{}, c.Docs...), c.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("config: invalid pattern %q", p)
		}
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must be >= 0, got %d", c.Workers)
	}
	if c.WatchDebounceMs < 0 {
		return fmt.Errorf("config: watch_debounce_ms must be >= 0, got %d", c.WatchDebounceMs)
	}
	return nil
}

// Rel converts an absolute path under Root to a slash-separated relative
// path. Paths outside Root are returned unchanged.
func (c *Config) Rel(path string) string {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(c.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Excluded reports whether rel matches any exclude pattern.
func (c *Config) Excluded(rel string) bool {
	return matchAny(c.Exclude, rel)
}

// IsDoc reports whether rel is a documentation file to scan.
func (c *Config) IsDoc(rel string) bool {
	return !c.Excluded(rel) && matchAny(c.Docs, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}
