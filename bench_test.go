package doclink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jward/doclink/internal/scan"
)

// writeBenchProject creates a project with one Go file of n functions and a
// markdown file linking each of them, plus a few wide references.
func writeBenchProject(b *testing.B, n int) string {
	b.Helper()
	dir := b.TempDir()

	var src, doc strings.Builder
	src.WriteString("package bench\n\n")
	doc.WriteString("# Bench\n\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&src, "// F%d does step %d.\nfunc F%d(x int) int {\n\tif x > %d {\n\t\treturn x\n\t}\n\treturn %d\n}\n\n", i, i, i, i, i)
		fmt.Fprintf(&doc, "[code_ref](code:../src/bench.go#F%d)\nStep %d.\n\n", i, i)
	}
	doc.WriteString("[code_warning](code:../src/bench.go#L1-L40)\nFirst block.\n\n")
	doc.WriteString("[code_todo](code:../src/bench.go)\nWhole file.\n")

	files := map[string]string{
		".doclink.toml": "docs = [\"docs/**/*.md\"]\n",
		"src/bench.go":  src.String(),
		"docs/bench.md": doc.String(),
	}
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			b.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			b.Fatal(err)
		}
	}
	return dir
}

// BenchmarkScanProject measures a full scan of a 200-function file: markdown
// reading, symbol location and the SQLite commit.
func BenchmarkScanProject(b *testing.B) {
	dir := writeBenchProject(b, 200)
	client, err := scan.NewLocal()
	if err != nil {
		b.Fatal(err)
	}
	defer client.Close()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := client.ScanProject(ctx, dir); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkReferencesEnclosing measures the cursor query path after a scan:
// store lookup, line translation through the cached line table, and ranking.
func BenchmarkReferencesEnclosing(b *testing.B) {
	dir := writeBenchProject(b, 200)
	client, err := scan.NewLocal()
	if err != nil {
		b.Fatal(err)
	}
	defer client.Close()
	e := New(client)
	defer e.Close()

	e.Refresh(dir)
	e.Wait()
	if st := e.Status(); st.State != Ready {
		b.Fatalf("scan failed: %v", st.Errors)
	}
	q := e.Query()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Line 5 sits inside F0, the L1-L40 range and the whole file.
		if refs := q.ReferencesEnclosing("src/bench.go", 5); len(refs) != 3 {
			b.Fatalf("got %d references, want 3", len(refs))
		}
	}
}

func BenchmarkNormalizeErrors(b *testing.B) {
	payload := map[string]any{
		"step": "code reader",
		"err": map[string]any{
			"msg": "locator failed",
			"reader": map[string]any{
				"references": map[string]any{
					"h1": map[string]any{"loc": []any{
						map[string]any{"file": "a.md", "line": 3},
						map[string]any{"file": "b.md", "line": 9},
					}},
				},
			},
		},
	}
	err := &ScanError{Payload: payload}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if errs := NormalizeErrors(err); len(errs) != 1 {
			b.Fatal("expected one error")
		}
	}
}
