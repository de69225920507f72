package metadata

import "github.com/jward/doclink/internal/refstore"

// Snapshot is everything one scan produced.
type Snapshot struct {
	// Refs maps a source file to its references in scan order. A file
	// with an empty slice is tracked but has no references.
	Refs     map[string][]refstore.Reference
	NotFound []refstore.NotFound
	// Blocks maps a markdown file to its doc blocks keyed by 1-based link
	// line. Every markdown file read appears, even without blocks.
	Blocks map[string]map[int]string
}

// Stats summarizes the stored metadata.
type Stats struct {
	Docs       int `json:"docs"`
	Files      int `json:"files"`
	References int `json:"references"`
	NotFound   int `json:"not_found"`
}
