package metadata

import (
	"database/sql"
	"fmt"
	"sort"
)

// Replace swaps the stored metadata for snap inside a single transaction.
// On error the previous contents are kept.
//
// Insert order respects FK dependencies:
//  1. Docs
//  2. Blocks (depend on docs)
//  3. Files
//  4. Refs (depend on files)
//  5. Not-found entries
func (s *Store) Replace(snap *Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("metadata: replace: begin: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM not_found",
		"DELETE FROM refs",
		"DELETE FROM files",
		"DELETE FROM blocks",
		"DELETE FROM docs",
	} {
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("metadata: replace: clear: %w", err)
		}
	}

	if snap != nil {
		if err := insertDocsTx(tx, snap.Blocks); err != nil {
			return err
		}
		if err := insertRefsTx(tx, snap); err != nil {
			return err
		}
		if err := insertNotFoundTx(tx, snap); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("metadata: replace: commit: %w", err)
	}
	return nil
}

func insertDocsTx(tx *sql.Tx, blocks map[string]map[int]string) error {
	docs := make([]string, 0, len(blocks))
	for doc := range blocks {
		docs = append(docs, doc)
	}
	sort.Strings(docs)

	for _, doc := range docs {
		if _, err := tx.Exec("INSERT INTO docs (path) VALUES (?)", doc); err != nil {
			return fmt.Errorf("metadata: replace: doc %q: %w", doc, err)
		}
		for line, body := range blocks[doc] {
			if _, err := tx.Exec(
				"INSERT INTO blocks (doc_path, line, body) VALUES (?, ?, ?)",
				doc, line, body,
			); err != nil {
				return fmt.Errorf("metadata: replace: block %s:%d: %w", doc, line, err)
			}
		}
	}
	return nil
}

func insertRefsTx(tx *sql.Tx, snap *Snapshot) error {
	stmt, err := tx.Prepare(
		`INSERT INTO refs (file, id, ordinal, found, span_from, span_to, directive,
		   query_file, query_selector, query_kind, locations)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (file, id) DO UPDATE SET
		   found = excluded.found, span_from = excluded.span_from, span_to = excluded.span_to,
		   directive = excluded.directive, query_file = excluded.query_file,
		   query_selector = excluded.query_selector, query_kind = excluded.query_kind,
		   locations = excluded.locations`,
	)
	if err != nil {
		return fmt.Errorf("metadata: replace: prepare refs: %w", err)
	}
	defer stmt.Close()

	for file, refs := range snap.Refs {
		if _, err := tx.Exec("INSERT INTO files (path) VALUES (?)", file); err != nil {
			return fmt.Errorf("metadata: replace: file %q: %w", file, err)
		}
		for i, r := range refs {
			if _, err := stmt.Exec(
				file, r.ID, i, r.Found, r.Span.From, r.Span.To, r.Directive,
				r.Query.File, r.Query.Selector, r.Query.Kind, marshalLocations(r.Locations),
			); err != nil {
				return fmt.Errorf("metadata: replace: ref %s in %q: %w", r.ID, file, err)
			}
		}
	}
	return nil
}

func insertNotFoundTx(tx *sql.Tx, snap *Snapshot) error {
	for i, nf := range snap.NotFound {
		if _, err := tx.Exec(
			`INSERT INTO not_found (ordinal, id, query_file, query_selector, query_kind, reason, locations)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			i, nf.ID, nf.Query.File, nf.Query.Selector, nf.Query.Kind, nf.Reason, marshalLocations(nf.Locations),
		); err != nil {
			return fmt.Errorf("metadata: replace: not-found %s: %w", nf.ID, err)
		}
	}
	return nil
}
