package doclink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/doclink/internal/scan"
)

func newIntegrationEngine(t *testing.T, opts ...Option) (*Engine, string) {
	t.Helper()
	root, err := filepath.Abs(filepath.Join("testdata", "project"))
	require.NoError(t, err)

	client, err := scan.NewLocal()
	require.NoError(t, err)
	e := New(client, opts...)
	t.Cleanup(func() {
		e.Close()
		client.Close()
	})
	return e, root
}

func TestIntegration_ScanAndQuery(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	e, root := newIntegrationEngine(t, WithListener(rec))

	e.Refresh(root)
	e.Wait()
	require.Equal(t, Ready, e.Status().State, "errors: %v", e.Status().Errors)
	assert.Equal(t, 1, rec.succeeded)

	q := e.Query()
	const file = "src/engine.go"

	loop := q.ReferencesEnclosing(file, 9)
	require.Len(t, loop, 2)
	assert.Equal(t, "code_warning", loop[0].Directive)
	assert.Equal(t, "text", loop[0].Query.Kind)
	assert.Equal(t, "code_todo", loop[1].Directive)

	typ := q.ReferencesEnclosing(file, 4)
	require.Len(t, typ, 1)
	assert.Equal(t, "Engine", typ[0].Query.Selector)

	assert.Empty(t, q.ReferencesEnclosing(file, 1))

	run := loop[1]
	require.Len(t, run.Locations, 2)
	assert.Equal(t, DocLocation{File: "docs/api.md", Line: 3}, run.Locations[0])
	assert.Equal(t, DocLocation{File: "docs/engine.md", Line: 6}, run.Locations[1])

	preview, err := q.Preview(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, "See [code_todo](code:src/engine.go#Engine.Run) for the entry point.", preview)

	marks := q.GutterMarks(file)
	require.Len(t, marks, 3)
	assert.Equal(t, 9, marks[0].Line)
	assert.Equal(t, ClassTodo, marks[0].Class)
	assert.Equal(t, 4, marks[1].Line)
	assert.Equal(t, ClassRef, marks[1].Class)
	assert.Equal(t, 10, marks[2].Line)
	assert.Equal(t, ClassWarning, marks[2].Class)

	nf := q.NotFound()
	require.Len(t, nf, 1)
	assert.Equal(t, "Missing", nf[0].Query.Selector)
	assert.Equal(t, []DocLocation{{File: "docs/engine.md", Line: 14}}, nf[0].Locations)
	require.Len(t, rec.notFound, 1)
	assert.Len(t, rec.notFound[0], 1)
}

func TestIntegration_LazyLoadAfterScan(t *testing.T) {
	t.Parallel()
	e, root := newIntegrationEngine(t)
	e.Refresh(root)
	e.Wait()

	// Drop the index but keep the scanner's metadata: the next query must
	// fetch the file on demand.
	e.store.Clear()
	refs := e.Query().ReferencesEnclosing("src/engine.go", 12)
	require.Len(t, refs, 1)
	assert.Equal(t, "Engine.Run", refs[0].Query.Selector)
}

func writeIntegrationProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestIntegration_OverlappingRefreshesKeepNewestProject(t *testing.T) {
	t.Parallel()
	const src = "package p\n\nfunc Run() {}\n"
	projA := writeIntegrationProject(t, map[string]string{
		".doclink.toml":    `docs = ["docs/*.md"]`,
		"src/only_in_a.go": src,
		"docs/a.md":        "# A\n\n[code_ref](code:../src/only_in_a.go#Run)\nFrom A.\n",
	})
	projB := writeIntegrationProject(t, map[string]string{
		".doclink.toml": `docs = ["docs/*.md"]`,
		"src/b.go":      src,
		"docs/b.md":     "[code_ref](code:../src/b.go#Run)\n",
	})

	client, err := scan.NewLocal()
	require.NoError(t, err)
	e := New(client)
	t.Cleanup(func() {
		e.Close()
		client.Close()
	})

	for i := 0; i < 5; i++ {
		e.Refresh(projA)
		e.Refresh(projB)
		e.Wait()

		require.Equal(t, projB, e.Root())
		require.Equal(t, Ready, e.Status().State, "errors: %v", e.Status().Errors)
		assert.Len(t, e.Query().References("src/b.go"), 1)

		// Lazy loads go through the scanner's store, which must hold B.
		e.store.Clear()
		assert.Empty(t, e.Query().References("src/only_in_a.go"))
		assert.Empty(t, e.Query().ReferencesEnclosing("src/only_in_a.go", 2))
		assert.Len(t, e.Query().References("src/b.go"), 1)

		st, err := client.Stats()
		require.NoError(t, err)
		assert.Equal(t, 1, st.Docs)
		_, err = client.DocBlock(context.Background(), "docs/a.md", 3)
		assert.ErrorIs(t, err, ErrDocNotFound)
	}
}
