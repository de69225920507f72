package doclink

import (
	"fmt"
	"os"
	"path/filepath"
)

// TextSource returns the current contents of a source file. Offsets in a
// reference span index into these bytes.
type TextSource func(file string) ([]byte, error)

// DiskSource reads files from disk, resolving relative paths against root.
func DiskSource(root string) TextSource {
	return func(file string) ([]byte, error) {
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, filepath.FromSlash(file))
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("doclink: read %s: %w", file, err)
		}
		return b, nil
	}
}

// Version is reported to LSP clients and by the CLI.
var Version = "dev"
