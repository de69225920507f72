package metadata

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jward/doclink/internal/refstore"
)

const refCols = `id, found, span_from, span_to, directive, query_file, query_selector, query_kind, locations`

// RefsByFile returns the references of one source file in scan order. An
// untracked file yields an empty slice and no error.
func (s *Store) RefsByFile(file string) ([]refstore.Reference, error) {
	rows, err := s.db.Query(
		"SELECT "+refCols+" FROM refs WHERE file = ? ORDER BY ordinal", file,
	)
	if err != nil {
		return nil, fmt.Errorf("metadata: refs by file: %w", err)
	}
	defer rows.Close()

	refs := []refstore.Reference{}
	for rows.Next() {
		var (
			r    refstore.Reference
			dir  sql.NullString
			sel  sql.NullString
			locs string
		)
		if err := rows.Scan(&r.ID, &r.Found, &r.Span.From, &r.Span.To, &dir,
			&r.Query.File, &sel, &r.Query.Kind, &locs); err != nil {
			return nil, fmt.Errorf("metadata: scan ref: %w", err)
		}
		r.Directive = dir.String
		r.Query.Selector = sel.String
		if r.Locations, err = unmarshalLocations(locs); err != nil {
			return nil, fmt.Errorf("metadata: ref %s locations: %w", r.ID, err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// Files returns every tracked source file in lexical order.
func (s *Store) Files() ([]string, error) {
	rows, err := s.db.Query("SELECT path FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("metadata: files: %w", err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("metadata: scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// NotFound returns the not-found list in scan order.
func (s *Store) NotFound() ([]refstore.NotFound, error) {
	rows, err := s.db.Query(
		`SELECT id, query_file, query_selector, query_kind, reason, locations
		 FROM not_found ORDER BY ordinal`,
	)
	if err != nil {
		return nil, fmt.Errorf("metadata: not found: %w", err)
	}
	defer rows.Close()

	out := []refstore.NotFound{}
	for rows.Next() {
		var (
			nf   refstore.NotFound
			sel  sql.NullString
			locs string
		)
		if err := rows.Scan(&nf.ID, &nf.Query.File, &sel, &nf.Query.Kind, &nf.Reason, &locs); err != nil {
			return nil, fmt.Errorf("metadata: scan not-found: %w", err)
		}
		nf.Query.Selector = sel.String
		if nf.Locations, err = unmarshalLocations(locs); err != nil {
			return nil, fmt.Errorf("metadata: not-found %s locations: %w", nf.ID, err)
		}
		out = append(out, nf)
	}
	return out, rows.Err()
}

// DocBlock returns the documentation block attached to the code reference
// on a 1-based line of a markdown file. The block may be empty.
func (s *Store) DocBlock(docFile string, line int) (string, error) {
	var body string
	err := s.db.QueryRow(
		"SELECT body FROM blocks WHERE doc_path = ? AND line = ?", docFile, line,
	).Scan(&body)
	if err == nil {
		return body, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("metadata: doc block: %w", err)
	}

	var known int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM docs WHERE path = ?", docFile).Scan(&known); err != nil {
		return "", fmt.Errorf("metadata: doc lookup: %w", err)
	}
	if known == 0 {
		return "", ErrDocNotFound
	}
	return "", ErrRefNotFound
}

// Stats counts the stored rows.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow(`SELECT
		(SELECT COUNT(*) FROM docs),
		(SELECT COUNT(*) FROM files),
		(SELECT COUNT(*) FROM refs),
		(SELECT COUNT(*) FROM not_found)`,
	).Scan(&st.Docs, &st.Files, &st.References, &st.NotFound)
	if err != nil {
		return Stats{}, fmt.Errorf("metadata: stats: %w", err)
	}
	return st, nil
}
