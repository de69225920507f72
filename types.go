package doclink

import (
	"github.com/jward/doclink/internal/metadata"
	"github.com/jward/doclink/internal/refstore"
	"github.com/jward/doclink/internal/scan"
)

// Public type aliases for the internal data model. These are identical to
// the internal types at compile time; no conversion is needed.

type Reference = refstore.Reference
type Span = refstore.Span
type DocLocation = refstore.DocLocation
type Query = refstore.Query
type NotFound = refstore.NotFound
type FileRefs = refstore.FileRefs

type Client = scan.Client
type Metadata = scan.Metadata
type ScanError = scan.Error

// Preview errors, returned by QueryBuilder.Preview.
var (
	ErrDocNotFound = metadata.ErrDocNotFound
	ErrRefNotFound = metadata.ErrRefNotFound
)

// NewLocalClient returns the in-process scanner.
func NewLocalClient() (*scan.Local, error) {
	return scan.NewLocal()
}
