package database

import (
	"database/sql"
	"errors"
	"fmt"
)

// RecordCitation appends a citation edge and recomputes citation_count for the
// discovered source. Every call adds one edge: repeated citations are real.
func (db *DB) RecordCitation(primaryID, discoveredID int64, text *string) error {
	return db.withTx("record citation", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRow("SELECT 1 FROM discovered_sources WHERE id = ?", discoveredID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("discovered source %d: %w", discoveredID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		err = tx.QueryRow("SELECT 1 FROM primary_sources WHERE id = ?", primaryID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("primary source %d: %w", primaryID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		_, err = appendCitation(tx, primaryID, discoveredID, text, db.timestamp())
		return err
	})
}

// GetCitations returns the citations of a discovered source, oldest first.
func (db *DB) GetCitations(discoveredID int64) ([]Citation, error) {
	rows, err := db.conn.Query(
		`SELECT c.id, c.primary_source_id, COALESCE(p.name, ''), c.discovered_source_id, c.citation_text, c.citation_date
		FROM citations c LEFT JOIN primary_sources p ON p.id = c.primary_source_id
		WHERE c.discovered_source_id = ?
		ORDER BY c.id`, discoveredID,
	)
	if err != nil {
		return nil, wrapStorage("list citations", err)
	}
	defer rows.Close()

	var citations []Citation
	for rows.Next() {
		var c Citation
		if err := rows.Scan(&c.ID, &c.PrimaryID, &c.PrimaryName, &c.DiscoveredID, &c.Text, &c.Date); err != nil {
			return nil, wrapStorage("list citations", err)
		}
		citations = append(citations, c)
	}
	return citations, wrapStorage("list citations", rows.Err())
}

// appendCitation inserts the edge and rewrites citation_count from the edge
// count, returning the new count.
func appendCitation(tx *sql.Tx, primaryID, discoveredID int64, text *string, now string) (int, error) {
	if _, err := tx.Exec(
		`INSERT INTO citations (primary_source_id, discovered_source_id, citation_text, citation_date)
		VALUES (?, ?, ?, ?)`,
		primaryID, discoveredID, text, now,
	); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(
		`UPDATE discovered_sources
		SET citation_count = (SELECT COUNT(*) FROM citations WHERE discovered_source_id = ?)
		WHERE id = ?`,
		discoveredID, discoveredID,
	); err != nil {
		return 0, err
	}

	var count int
	if err := tx.QueryRow("SELECT citation_count FROM discovered_sources WHERE id = ?", discoveredID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
