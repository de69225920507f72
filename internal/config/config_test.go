package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, root, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(body), 0o644))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(t.TempDir())
	assert.True(t, errors.Is(err, ErrNoConfig))
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfig(t, root, "")

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, []string{"**/*.md"}, cfg.Docs)
	assert.Equal(t, 300, cfg.WatchDebounceMs)
}

func TestLoad_Overrides(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfig(t, root, `
docs = ["docs/**/*.md"]
exclude = ["docs/drafts/**"]
locator_script = "tools/locate.risor"
workers = 2
`)

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/**/*.md"}, cfg.Docs)
	assert.Equal(t, []string{"docs/drafts/**"}, cfg.Exclude)
	assert.Equal(t, "tools/locate.risor", cfg.LocatorScript)
	assert.Equal(t, 2, cfg.Workers)
}

func TestLoad_UnknownKey(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfig(t, root, "doc = [\"x.md\"]\n")

	_, err := Load(root)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoConfig))
}

func TestLoad_SyntaxError(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfig(t, root, "docs = [\n")

	_, err := Load(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), FileName)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no docs", func(c *Config) { c.Docs = nil }, true},
		{"bad pattern", func(c *Config) { c.Docs = []string{"docs/[.md"} }, true},
		{"negative workers", func(c *Config) { c.Workers = -1 }, true},
		{"negative debounce", func(c *Config) { c.WatchDebounceMs = -5 }, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default("/project")
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsDoc(t *testing.T) {
	t.Parallel()
	cfg := Default("/project")

	assert.True(t, cfg.IsDoc("README.md"))
	assert.True(t, cfg.IsDoc("docs/guide/intro.md"))
	assert.False(t, cfg.IsDoc("main.go"))
	assert.False(t, cfg.IsDoc("node_modules/pkg/README.md"))
	assert.False(t, cfg.IsDoc("web/node_modules/pkg/README.md"))
}

func TestRel(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	cfg := Default(root)

	assert.Equal(t, "docs/a.md", cfg.Rel(filepath.Join(root, "docs", "a.md")))
	assert.Equal(t, "docs/a.md", cfg.Rel("docs/a.md"))
	outside := filepath.Join(filepath.Dir(root), "elsewhere.md")
	assert.Equal(t, filepath.ToSlash(outside), cfg.Rel(outside))
}
