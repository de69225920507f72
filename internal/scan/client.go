// Package scan is the boundary between the reference index and the
// scanner that produces reference metadata from a project tree.
package scan

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jward/doclink/internal/refstore"
)

// Client reaches a reference scanner. ScanProject is slow and covers the
// whole project; the other operations read from the last scan's metadata
// and are cheap.
type Client interface {
	// ScanProject rescans root and returns its metadata. Failures are
	// reported as *Error.
	ScanProject(ctx context.Context, root string) (*Metadata, error)

	// FetchFileReferences returns the references of one source file from
	// the last scan. An untracked file, or no scan at all, yields an empty
	// mapping and no error.
	FetchFileReferences(ctx context.Context, file string) (*refstore.FileRefs, error)

	// DocBlock returns the documentation block attached to the reference
	// on a 1-based line of a markdown file.
	DocBlock(ctx context.Context, docFile string, line int) (string, error)
}

type generationKey struct{}

// WithGeneration tags a scan with the caller's refresh generation. A
// scanner that keeps the last scan's metadata stores a tagged result only
// if no later generation has been stored already, so overlapping scans
// leave behind the newest one no matter which finishes last.
func WithGeneration(ctx context.Context, gen uint64) context.Context {
	return context.WithValue(ctx, generationKey{}, gen)
}

// GenerationOf returns the generation a scan was tagged with.
func GenerationOf(ctx context.Context) (uint64, bool) {
	gen, ok := ctx.Value(generationKey{}).(uint64)
	return gen, ok
}

// Metadata is the result of one project scan.
type Metadata struct {
	Files    map[string]*refstore.FileRefs `json:"files"`
	NotFound []refstore.NotFound           `json:"not_found"`
}

// Refs returns the references of a file. Untracked files yield nil.
func (m *Metadata) Refs(file string) *refstore.FileRefs {
	if m == nil {
		return nil
	}
	return m.Files[file]
}

// NotFoundList returns the references whose target could not be resolved.
func (m *Metadata) NotFoundList() []refstore.NotFound {
	if m == nil {
		return nil
	}
	return m.NotFound
}

// Error carries an unstructured failure payload from the scanner. The
// payload is forwarded untouched for normalization by the caller.
type Error struct {
	Payload any
}

func (e *Error) Error() string {
	switch p := e.Payload.(type) {
	case string:
		return "scan: " + p
	case error:
		return "scan: " + p.Error()
	case map[string]any:
		if step, ok := p["step"].(string); ok {
			if inner, ok := p["err"].(map[string]any); ok {
				if msg, ok := inner["msg"].(string); ok {
					return fmt.Sprintf("scan: %s: %s", step, msg)
				}
			}
		}
	}
	b, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Sprintf("scan: unprintable %T payload", e.Payload)
	}
	return "scan: " + string(b)
}

// Unwrap exposes a wrapped Go error payload.
func (e *Error) Unwrap() error {
	if err, ok := e.Payload.(error); ok {
		return err
	}
	return nil
}

// stepError builds the payload shape the scanner uses for a failed step.
func stepError(step string, err error, extra map[string]any) *Error {
	inner := map[string]any{"msg": err.Error()}
	for k, v := range extra {
		inner[k] = v
	}
	return &Error{Payload: map[string]any{"step": step, "err": inner}}
}
