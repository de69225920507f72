// Package locate resolves a reference selector against a source file and
// returns the byte span it names.
//
// Selectors come in four kinds:
//
//	(empty)          the whole file
//	L12, L12-L20     a line or an inclusive line range, 1-based
//	/literal/        the first occurrence of a literal string
//	Name, Type.Name  a named definition, found with tree-sitter
//
// Symbol lookup for languages without a built-in grammar falls back to an
// optional Risor locator script.
package locate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/jward/doclink/internal/refstore"
)

// Selector kinds, as recorded in refstore.Query.Kind.
const (
	KindFile   = "file"
	KindLines  = "lines"
	KindText   = "text"
	KindSymbol = "symbol"
)

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("locate: not found")

// NotFoundError reports a selector that does not resolve. Reason is the
// human-readable text kept in the not-found list.
type NotFoundError struct {
	Reason string
}

func (e *NotFoundError) Error() string { return e.Reason }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(format string, args ...any) error {
	return &NotFoundError{Reason: fmt.Sprintf(format, args...)}
}

var lineSelRe = regexp.MustCompile(`^L(\d+)(?:-L?(\d+))?$`)

// KindOf classifies a selector.
func KindOf(selector string) string {
	switch {
	case selector == "":
		return KindFile
	case lineSelRe.MatchString(selector):
		return KindLines
	case len(selector) >= 2 && strings.HasPrefix(selector, "/") && strings.HasSuffix(selector, "/"):
		return KindText
	default:
		return KindSymbol
	}
}

// Locator resolves selectors. The zero value is not usable; call New.
type Locator struct {
	script  string
	runtime *Runtime
	log     commonlog.Logger
}

// Option configures a Locator.
type Option func(*Locator)

// WithScript sets a Risor locator script used for symbol selectors the
// built-in grammars cannot answer. Relative paths and imports resolve
// against dir.
func WithScript(dir, path string) Option {
	return func(l *Locator) {
		if path == "" {
			return
		}
		l.script = path
		l.runtime = NewRuntime(dir)
	}
}

// New creates a Locator.
func New(opts ...Option) *Locator {
	l := &Locator{log: commonlog.GetLogger("doclink.locate")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Locate resolves selector inside src, the contents of path. A selector
// that does not resolve yields an error matching ErrNotFound; any other
// error is a failure of the locator itself.
func (l *Locator) Locate(ctx context.Context, path string, src []byte, selector string) (refstore.Span, error) {
	switch KindOf(selector) {
	case KindFile:
		return refstore.Span{From: 0, To: len(src)}, nil
	case KindLines:
		return locateLines(path, src, selector)
	case KindText:
		lit := selector[1 : len(selector)-1]
		if lit == "" {
			return refstore.Span{}, notFound("empty text selector in %s", path)
		}
		i := bytes.Index(src, []byte(lit))
		if i < 0 {
			return refstore.Span{}, notFound("text %q not found in %s", lit, path)
		}
		return refstore.Span{From: i, To: i + len(lit)}, nil
	default:
		return l.locateSymbol(ctx, path, src, selector)
	}
}

func (l *Locator) locateSymbol(ctx context.Context, path string, src []byte, symbol string) (refstore.Span, error) {
	lang, ok := LanguageForFile(path)
	if !ok {
		if l.runtime != nil {
			return l.runScript(ctx, path, "", src, symbol)
		}
		return refstore.Span{}, notFound("symbol selectors are not supported for %s files", extOf(path))
	}

	defs, err := Definitions(ctx, lang, src)
	if err != nil {
		return refstore.Span{}, err
	}
	if d, ok := findDefinition(defs, symbol); ok {
		return d.Span, nil
	}
	if l.runtime != nil {
		span, err := l.runScript(ctx, path, lang, src, symbol)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return span, err
		}
	}
	if s := suggest(defs, symbol); s != "" {
		return refstore.Span{}, notFound("symbol %q not found in %s (did you mean %q?)", symbol, path, s)
	}
	return refstore.Span{}, notFound("symbol %q not found in %s", symbol, path)
}

func (l *Locator) runScript(ctx context.Context, path, lang string, src []byte, symbol string) (refstore.Span, error) {
	result, err := l.runtime.RunScript(ctx, l.script, map[string]any{
		"path":     path,
		"language": lang,
		"source":   string(src),
		"selector": symbol,
	})
	if err != nil {
		l.log.Warningf("locator script failed for %s#%s: %s", path, symbol, err)
		return refstore.Span{}, err
	}
	span, ok, err := spanFromResult(result)
	if err != nil {
		return refstore.Span{}, err
	}
	if !ok {
		return refstore.Span{}, notFound("symbol %q not found in %s", symbol, path)
	}
	if span.To > len(src) {
		return refstore.Span{}, fmt.Errorf("locate: script span [%d, %d) exceeds %s (%d bytes)", span.From, span.To, path, len(src))
	}
	return span, nil
}

func locateLines(path string, src []byte, selector string) (refstore.Span, error) {
	m := lineSelRe.FindStringSubmatch(selector)
	start, _ := strconv.Atoi(m[1])
	end := start
	if m[2] != "" {
		end, _ = strconv.Atoi(m[2])
	}
	if start < 1 || end < start {
		return refstore.Span{}, notFound("invalid line range %s in %s", selector, path)
	}

	starts := lineStarts(src)
	if end > len(starts) {
		return refstore.Span{}, notFound("line %d is past the end of %s (%d lines)", end, path, len(starts))
	}
	to := len(src)
	if end < len(starts) {
		to = starts[end]
	}
	return refstore.Span{From: starts[start-1], To: to}, nil
}

// lineStarts returns the byte offset of the first byte of every line. A
// trailing newline does not start a new line.
func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' && i+1 < len(src) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func extOf(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 && !strings.Contains(path[i:], "/") {
		return path[i:]
	}
	return "extensionless"
}
