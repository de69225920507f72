package main

import "github.com/jward/doclink"

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIScan summarizes one project scan.
type CLIScan struct {
	Root       string                  `json:"root"`
	State      string                  `json:"state"`
	Generation uint64                  `json:"generation"`
	Docs       int                     `json:"docs"`
	Files      int                     `json:"files"`
	References int                     `json:"references"`
	NotFound   int                     `json:"not_found"`
	Errors     []doclink.ReportedError `json:"errors,omitempty"`
}

// CLIReference is a ranked reference with its line range and documentation
// targets. Lines are 0-based like the query line.
type CLIReference struct {
	ID        string           `json:"id"`
	Directive string           `json:"directive,omitempty"`
	Kind      string           `json:"kind"`
	Selector  string           `json:"selector,omitempty"`
	StartLine int              `json:"start_line"`
	EndLine   int              `json:"end_line"`
	Targets   []doclink.Target `json:"targets"`
	Preview   *string          `json:"preview,omitempty"`
}

// CLIGutterMark is one gutter decoration. Line is 1-based.
type CLIGutterMark struct {
	Line      int    `json:"line"`
	Class     string `json:"class"`
	Letter    string `json:"letter"`
	RefID     string `json:"ref_id"`
	Directive string `json:"directive,omitempty"`
}

// CLINotFound is one unresolved reference.
type CLINotFound struct {
	ID        string                `json:"id"`
	File      string                `json:"file"`
	Selector  string                `json:"selector,omitempty"`
	Kind      string                `json:"kind"`
	Reason    string                `json:"reason"`
	Locations []doclink.DocLocation `json:"locations,omitempty"`
}

// Target renders the unresolved query as file#selector.
func (n CLINotFound) Target() string {
	if n.Selector == "" {
		return n.File
	}
	return n.File + "#" + n.Selector
}

func referenceToCLI(ref doclink.Reference, lines doclink.LineRange, targets []doclink.Target) CLIReference {
	if targets == nil {
		targets = []doclink.Target{}
	}
	return CLIReference{
		ID:        ref.ID,
		Directive: ref.Directive,
		Kind:      ref.Query.Kind,
		Selector:  ref.Query.Selector,
		StartLine: lines.Start,
		EndLine:   lines.End,
		Targets:   targets,
	}
}

func gutterMarkToCLI(m doclink.GutterMark) CLIGutterMark {
	return CLIGutterMark{
		Line:      m.Line,
		Class:     m.Class,
		Letter:    m.Letter,
		RefID:     m.Ref.ID,
		Directive: m.Ref.Directive,
	}
}

func notFoundToCLI(nf doclink.NotFound) CLINotFound {
	return CLINotFound{
		ID:        nf.ID,
		File:      nf.Query.File,
		Selector:  nf.Query.Selector,
		Kind:      nf.Query.Kind,
		Reason:    nf.Reason,
		Locations: nf.Locations,
	}
}
