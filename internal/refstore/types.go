package refstore

// Span is a half-open byte range [From, To) in a source file.
type Span struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Width is the specificity metric: smaller spans are more specific.
func (s Span) Width() int {
	return s.To - s.From
}

// DocLocation is one documentation side of a reference. Line is 1-based.
type DocLocation struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// Query is the raw lookup key a scanner used to resolve a reference. It is
// kept verbatim for not-found diagnostics.
type Query struct {
	File     string `json:"file"`
	Selector string `json:"selector,omitempty"`
	Kind     string `json:"kind"`
}

type Reference struct {
	ID        string        `json:"id"`
	Found     bool          `json:"found"`
	Span      Span          `json:"span"`
	Directive string        `json:"directive,omitempty"`
	Locations []DocLocation `json:"locations"`
	Query     Query         `json:"query"`
}

// Primary returns the first documentation location, used for previews.
func (r Reference) Primary() (DocLocation, bool) {
	if len(r.Locations) == 0 {
		return DocLocation{}, false
	}
	return r.Locations[0], true
}

// NotFound records a reference whose documentation target could not be
// resolved against the code.
type NotFound struct {
	ID        string        `json:"id"`
	Query     Query         `json:"query"`
	Reason    string        `json:"reason"`
	Locations []DocLocation `json:"locations,omitempty"`
}
