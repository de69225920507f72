package doclink

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/jward/doclink/internal/refstore"
)

// NoBlockAttached is the preview text for a reference whose documentation
// block is empty.
const NoBlockAttached = "NO BLOCK ATTACHED"

// targetContext is how many lines around a documentation location a
// navigation target shows.
const targetContext = 5

// Marker classes for gutter marks.
const (
	ClassRef     = "doclink-ref"
	ClassWarning = "doclink-warning"
	ClassTodo    = "doclink-todo"
)

// QueryBuilder answers editor queries against the Engine's latest index.
type QueryBuilder struct {
	e *Engine
}

// LineRange is an inclusive 0-based line range.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// GutterMark is one gutter decoration request.
type GutterMark struct {
	Line   int       `json:"line"` // 1-based
	Class  string    `json:"class"`
	Letter string    `json:"letter"`
	Ref    Reference `json:"ref"`
}

// Target is one documentation location offered for navigation.
type Target struct {
	RefID   string `json:"ref_id"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	From    int    `json:"from"` // first line of the context window, 1-based
	To      int    `json:"to"`   // last line of the context window
	Primary bool   `json:"primary"`
}

// ReferencesEnclosing returns the found references of file whose line
// range contains line (0-based), most specific first. Equal widths keep
// scan order.
//
// A file that was never loaded is fetched from the scanner first. With
// WithAsyncLoad the fetch runs in the background, this call returns no
// references, and the Listener receives the answer later.
func (q *QueryBuilder) ReferencesEnclosing(file string, line int) []Reference {
	refs, ok := q.e.store.Get(file)
	if !ok {
		if q.e.asyncLoad {
			q.e.loadAsync(file, line)
			return []Reference{}
		}
		if refs, ok = q.e.load(file); !ok {
			return []Reference{}
		}
	}
	return q.e.rank(file, refs, line)
}

// References returns every reference of a file in scan order, loading the
// file if needed. Not-found references are included.
func (q *QueryBuilder) References(file string) []Reference {
	refs, ok := q.e.store.Get(file)
	if !ok {
		refs, _ = q.e.load(file)
	}
	return refs.All()
}

// Lines translates a reference span into its line range in file.
func (q *QueryBuilder) Lines(file string, ref Reference) (LineRange, error) {
	starts, err := q.e.lineTable(file)
	if err != nil {
		return LineRange{}, err
	}
	return spanLines(starts, ref.Span), nil
}

// GutterMarks returns one mark per found reference of file, in scan order.
func (q *QueryBuilder) GutterMarks(file string) []GutterMark {
	refs := q.References(file)
	if len(refs) == 0 {
		return []GutterMark{}
	}
	starts, err := q.e.lineTable(file)
	if err != nil {
		q.e.log.Warningf("gutter marks for %s: %s", file, err)
		return []GutterMark{}
	}
	marks := make([]GutterMark, 0, len(refs))
	for _, r := range refs {
		if !r.Found {
			continue
		}
		class, letter := MarkerClass(r.Directive)
		marks = append(marks, GutterMark{
			Line:   spanLines(starts, r.Span).Start + 1,
			Class:  class,
			Letter: letter,
			Ref:    r,
		})
	}
	return marks
}

// MarkerClass maps a directive to its gutter marker class and letter.
func MarkerClass(directive string) (class, letter string) {
	switch strings.TrimPrefix(strings.ToLower(directive), "code_") {
	case "warning", "warn":
		return ClassWarning, "W"
	case "todo":
		return ClassTodo, "T"
	default:
		return ClassRef, "D"
	}
}

// NotFound returns the not-found list of the latest applied refresh.
func (q *QueryBuilder) NotFound() []NotFound {
	return q.e.store.NotFound()
}

// Preview returns the documentation block attached to the reference's
// primary location. An empty block previews as NoBlockAttached.
func (q *QueryBuilder) Preview(ctx context.Context, ref Reference) (string, error) {
	loc, ok := ref.Primary()
	if !ok {
		return "", ErrRefNotFound
	}
	body, err := q.e.client.DocBlock(ctx, loc.File, loc.Line)
	switch {
	case errors.Is(err, ErrDocNotFound), errors.Is(err, ErrRefNotFound):
		return "", err
	case err != nil:
		return "", fmt.Errorf("doclink: preview %s:%d: %w", loc.File, loc.Line, err)
	}
	if strings.TrimSpace(body) == "" {
		return NoBlockAttached, nil
	}
	return body, nil
}

// Targets lists every documentation location of refs, in ranking order
// and location order, with a context window around each.
func (q *QueryBuilder) Targets(refs []Reference) []Target {
	var out []Target
	for _, r := range refs {
		for i, loc := range r.Locations {
			from := loc.Line - targetContext
			if from < 1 {
				from = 1
			}
			out = append(out, Target{
				RefID:   r.ID,
				File:    loc.File,
				Line:    loc.Line,
				From:    from,
				To:      loc.Line + targetContext,
				Primary: i == 0,
			})
		}
	}
	return out
}

// rank filters refs to found references enclosing line and sorts them by
// span width. sort.SliceStable keeps scan order among equal widths.
func (e *Engine) rank(file string, refs *refstore.FileRefs, line int) []Reference {
	out := []Reference{}
	if refs.Len() == 0 {
		return out
	}
	starts, err := e.lineTable(file)
	if err != nil {
		e.log.Warningf("ranking references of %s: %s", file, err)
		return out
	}
	for _, r := range refs.All() {
		if !r.Found {
			continue
		}
		lr := spanLines(starts, r.Span)
		if lr.Start <= line && line <= lr.End {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Span.Width() < out[j].Span.Width()
	})
	return out
}

// lineTable returns the byte offset of every line start of file, cached by
// content hash.
func (e *Engine) lineTable(file string) ([]int, error) {
	src, err := e.text(file)
	if err != nil {
		return nil, err
	}
	key := xxhash.Sum64(src)
	if starts, ok := e.lines.Get(key); ok {
		return starts, nil
	}
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	e.lines.Add(key, starts)
	return starts, nil
}

// spanLines maps a span to lines. The end line is the line of the last
// byte inside the span, or of From for an empty span.
func spanLines(starts []int, span Span) LineRange {
	last := span.To - 1
	if last < span.From {
		last = span.From
	}
	return LineRange{Start: lineOf(starts, span.From), End: lineOf(starts, last)}
}

func lineOf(starts []int, offset int) int {
	// Index of the last line start <= offset.
	i := sort.Search(len(starts), func(i int) bool { return starts[i] > offset })
	if i == 0 {
		return 0
	}
	return i - 1
}
