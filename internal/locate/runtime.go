package locate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	"github.com/tliron/commonlog"

	"github.com/jward/doclink/internal/refstore"
)

// Runtime embeds a Risor VM and exposes tree-sitter host functions to
// locator scripts.
//
// A locator script receives the globals path, language, source and
// selector. Its final expression is the result: nil when the selector does
// not resolve, a [from, to] list, or a map with from and to keys.
type Runtime struct {
	scriptsDir string
	log        commonlog.Logger
}

// NewRuntime creates a Runtime that resolves script paths and imports
// relative to scriptsDir.
func NewRuntime(scriptsDir string) *Runtime {
	return &Runtime{
		scriptsDir: scriptsDir,
		log:        commonlog.GetLogger("doclink.locate.script"),
	}
}

// RunScript loads and executes a Risor script, returning its result.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) (object.Object, error) {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source code directly. Useful for testing without
// script files.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) (object.Object, error) {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) (object.Object, error) {
	globals := r.buildGlobals(extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	result, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("locate: script %s: %w", label, err)
	}
	return result, nil
}

func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	if r.scriptsDir == "" {
		return nil
	}
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}
	return importer.NewLocalImporter(importer.LocalImporterOptions{
		GlobalNames: globalNames,
		SourceDir:   r.scriptsDir,
		Extensions:  []string{".risor"},
	})
}

// LoadScript reads a .risor file relative to the scripts directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("locate: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the globals exposed to locator scripts. Each
// evaluation gets its own source store so parsed trees do not outlive it.
func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	sources := newSourceStore()
	globals := map[string]any{
		"parse_src":  makeParseSrcFn(sources),
		"node_text":  makeNodeTextFn(sources),
		"node_child": makeNodeChildFn(),
		"node_span":  makeNodeSpanFn(),
		"query":      makeQueryFn(sources),
		"log":        mustProxy(&logObject{log: r.log}),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("locate: proxy error: %v", err))
	}
	return p
}

// spanFromResult converts a script result into a span. ok is false when
// the script returned nil.
func spanFromResult(result object.Object) (span refstore.Span, ok bool, err error) {
	switch v := result.(type) {
	case nil:
		return refstore.Span{}, false, nil
	case *object.NilType:
		return refstore.Span{}, false, nil
	case *object.List:
		items := v.Value()
		if len(items) != 2 {
			return refstore.Span{}, false, fmt.Errorf("locate: script returned a list of %d items, want [from, to]", len(items))
		}
		from, ok1 := items[0].(*object.Int)
		to, ok2 := items[1].(*object.Int)
		if !ok1 || !ok2 {
			return refstore.Span{}, false, fmt.Errorf("locate: script returned non-integer offsets")
		}
		span = refstore.Span{From: int(from.Value()), To: int(to.Value())}
	case *object.Map:
		from, ok1 := v.Get("from").(*object.Int)
		to, ok2 := v.Get("to").(*object.Int)
		if !ok1 || !ok2 {
			return refstore.Span{}, false, fmt.Errorf("locate: script map result needs integer from and to")
		}
		span = refstore.Span{From: int(from.Value()), To: int(to.Value())}
	default:
		return refstore.Span{}, false, fmt.Errorf("locate: script returned %s, want nil, list or map", result.Type())
	}
	if span.From < 0 || span.To < span.From {
		return refstore.Span{}, false, fmt.Errorf("locate: script returned invalid span [%d, %d)", span.From, span.To)
	}
	return span, true, nil
}
