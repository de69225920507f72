package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/doclink/internal/metadata"
)

const mainGo = `package main

func Run() error {
	return nil
}

func Stop() {}
`

const guideMd = `# Guide

[code_todo](code:main.go#Run)
Run starts everything.

## Shutdown

[](code:main.go#Stpo)

[code_warning](code:gone.go)
`

const notesMd = `Also see [code_todo](code:main.go#Run) here.
`

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal()
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLocal_NoConfigScansEmpty(t *testing.T) {
	t.Parallel()
	root := writeProject(t, map[string]string{"main.go": mainGo, "docs/guide.md": guideMd})
	l := newTestLocal(t)

	md, err := l.ScanProject(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, md.Files)
	assert.Empty(t, md.NotFoundList())

	refs, err := l.FetchFileReferences(context.Background(), "main.go")
	require.NoError(t, err)
	assert.Equal(t, 0, refs.Len())
}

func TestLocal_Scan(t *testing.T) {
	t.Parallel()
	root := writeProject(t, map[string]string{
		".doclink.toml": `docs = ["docs/**/*.md"]`,
		"main.go":       mainGo,
		"docs/guide.md": guideMd,
		"docs/notes.md": notesMd,
		"other/skip.md": "[x](code:main.go#Stop)\n",
	})
	l := newTestLocal(t)
	ctx := context.Background()

	md, err := l.ScanProject(ctx, root)
	require.NoError(t, err)

	refs := md.Refs("main.go")
	require.Equal(t, 2, refs.Len())
	all := refs.All()

	run := all[0]
	assert.Equal(t, RefID("main.go", "Run", "code_todo"), run.ID)
	assert.True(t, run.Found)
	assert.Equal(t, "code_todo", run.Directive)
	assert.Contains(t, mainGo[run.Span.From:run.Span.To], "func Run() error")
	require.Len(t, run.Locations, 2, "identical links collapse into one reference")
	assert.Equal(t, "docs/guide.md", run.Locations[0].File)
	assert.Equal(t, 3, run.Locations[0].Line)
	assert.Equal(t, "docs/notes.md", run.Locations[1].File)

	typo := all[1]
	assert.False(t, typo.Found)
	assert.Equal(t, "symbol", typo.Query.Kind)

	nf := md.NotFoundList()
	require.Len(t, nf, 2)
	assert.Contains(t, nf[0].Reason, `did you mean "Stop"?`)
	assert.Equal(t, "gone.go", nf[1].Query.File)
	assert.Equal(t, "file gone.go not found", nf[1].Reason)

	fetched, err := l.FetchFileReferences(ctx, filepath.Join(root, "main.go"))
	require.NoError(t, err)
	assert.Equal(t, refs.IDs(), fetched.IDs())

	block, err := l.DocBlock(ctx, "docs/guide.md", 3)
	require.NoError(t, err)
	assert.Equal(t, "[code_todo](code:main.go#Run)\nRun starts everything.", block)

	_, err = l.DocBlock(ctx, "docs/guide.md", 4)
	assert.ErrorIs(t, err, metadata.ErrRefNotFound)
	_, err = l.DocBlock(ctx, "other/skip.md", 1)
	assert.ErrorIs(t, err, metadata.ErrDocNotFound)

	st, err := l.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, st.Docs)
	assert.Equal(t, 2, st.NotFound)
}

func TestLocal_ConfigError(t *testing.T) {
	t.Parallel()
	root := writeProject(t, map[string]string{".doclink.toml": "docs = [\n"})
	l := newTestLocal(t)

	_, err := l.ScanProject(context.Background(), root)
	var se *Error
	require.ErrorAs(t, err, &se)
	payload, ok := se.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, StepConfig, payload["step"])
	assert.Contains(t, se.Error(), "scan: config loader:")
}

func TestLocal_MarkdownError(t *testing.T) {
	t.Parallel()
	root := writeProject(t, map[string]string{
		".doclink.toml": `docs = ["*.md"]`,
		"bad.md":        "[x](code:../outside.go)\n",
	})
	l := newTestLocal(t)

	_, err := l.ScanProject(context.Background(), root)
	var se *Error
	require.ErrorAs(t, err, &se)
	payload := se.Payload.(map[string]any)
	assert.Equal(t, StepMarkdown, payload["step"])
	assert.Equal(t, "bad.md", payload["err"].(map[string]any)["file"])
}

func TestLocal_CodeReaderErrorCarriesLocations(t *testing.T) {
	t.Parallel()
	root := writeProject(t, map[string]string{
		".doclink.toml": "docs = [\"*.md\"]\nlocator_script = \"missing.risor\"\n",
		"lib.rb":        "def greet; end\n",
		"api.md":        "# API\n\n[](code:lib.rb#greet)\n",
	})
	l := newTestLocal(t)

	_, err := l.ScanProject(context.Background(), root)
	var se *Error
	require.ErrorAs(t, err, &se)
	payload := se.Payload.(map[string]any)
	assert.Equal(t, StepCode, payload["step"])

	inner := payload["err"].(map[string]any)
	refs := inner["reader"].(map[string]any)["references"].(map[string]any)
	entry, ok := refs[RefID("lib.rb", "greet", "")]
	require.True(t, ok)
	locs := entry.(map[string]any)["loc"].([]any)
	require.Len(t, locs, 1)
	assert.Equal(t, map[string]any{"file": "api.md", "line": 3}, locs[0])
}

func TestLocal_FailedScanKeepsPreviousMetadata(t *testing.T) {
	t.Parallel()
	root := writeProject(t, map[string]string{
		".doclink.toml": `docs = ["*.md"]`,
		"main.go":       mainGo,
		"a.md":          "[](code:main.go#Run)\n",
	})
	l := newTestLocal(t)
	ctx := context.Background()

	_, err := l.ScanProject(ctx, root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".doclink.toml"), []byte("docs = 3"), 0o644))
	_, err = l.ScanProject(ctx, root)
	require.Error(t, err)

	refs, err := l.FetchFileReferences(ctx, "main.go")
	require.NoError(t, err)
	assert.Equal(t, 1, refs.Len())
}

func TestLocal_OlderGenerationNotStored(t *testing.T) {
	t.Parallel()
	projA := writeProject(t, map[string]string{
		".doclink.toml":    `docs = ["*.md"]`,
		"src/only_in_a.go": mainGo,
		"a.md":             "# A\n\n[](code:src/only_in_a.go#Run)\nFrom A.\n",
	})
	projB := writeProject(t, map[string]string{
		".doclink.toml": `docs = ["*.md"]`,
		"src/b.go":      mainGo,
		"b.md":          "[](code:src/b.go#Stop)\n",
	})
	l := newTestLocal(t)
	ctx := context.Background()

	_, err := l.ScanProject(WithGeneration(ctx, 2), projB)
	require.NoError(t, err)
	md, err := l.ScanProject(WithGeneration(ctx, 1), projA)
	require.NoError(t, err)
	assert.Equal(t, 1, md.Refs("src/only_in_a.go").Len(), "a superseded scan still reports its result")

	refs, err := l.FetchFileReferences(ctx, "src/only_in_a.go")
	require.NoError(t, err)
	assert.Equal(t, 0, refs.Len())
	refs, err = l.FetchFileReferences(ctx, filepath.Join(projB, "src", "b.go"))
	require.NoError(t, err)
	assert.Equal(t, 1, refs.Len())
	_, err = l.DocBlock(ctx, "a.md", 3)
	assert.ErrorIs(t, err, metadata.ErrDocNotFound)

	_, err = l.ScanProject(WithGeneration(ctx, 3), projA)
	require.NoError(t, err)
	refs, err = l.FetchFileReferences(ctx, "src/only_in_a.go")
	require.NoError(t, err)
	assert.Equal(t, 1, refs.Len())
}

func TestGenerationOf(t *testing.T) {
	t.Parallel()
	_, ok := GenerationOf(context.Background())
	assert.False(t, ok)
	gen, ok := GenerationOf(WithGeneration(context.Background(), 7))
	require.True(t, ok)
	assert.Equal(t, uint64(7), gen)
}

func TestError_Message(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "scan: boom", (&Error{Payload: "boom"}).Error())
	assert.Equal(t, `scan: {"a":1}`, (&Error{Payload: map[string]any{"a": 1}}).Error())
	assert.Equal(t, "scan: code reader: x", (&Error{Payload: map[string]any{
		"step": "code reader", "err": map[string]any{"msg": "x"},
	}}).Error())

	cyclic := map[string]any{}
	cyclic["self"] = cyclic
	assert.Equal(t, "scan: unprintable map[string]interface {} payload", (&Error{Payload: map[string]any{
		"step": "code reader", "err": cyclic,
	}}).Error())
}
