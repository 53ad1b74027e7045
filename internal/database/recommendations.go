package database

import (
	"database/sql"
	"errors"
	"fmt"
)

// MarkSent flags a discovered source as recommended and appends a
// recommendation record holding its current score. The flag and the first
// sent timestamp never change afterwards; a repeated call still appends a
// record, so callers invoke it at most once per source per pass.
func (db *DB) MarkSent(discoveredID int64, reasoning string) error {
	return db.withTx("mark recommendation sent", func(tx *sql.Tx) error {
		var score float64
		err := tx.QueryRow(
			"SELECT COALESCE(relevance_score, 0) FROM discovered_sources WHERE id = ?", discoveredID,
		).Scan(&score)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("discovered source %d: %w", discoveredID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		now := db.timestamp()
		if _, err := tx.Exec(
			`UPDATE discovered_sources
			SET recommendation_sent = 1, recommendation_sent_at = COALESCE(recommendation_sent_at, ?)
			WHERE id = ?`,
			now, discoveredID,
		); err != nil {
			return err
		}

		_, err = tx.Exec(
			`INSERT INTO recommendations (source_id, recommendation_date, relevance_score, reasoning)
			VALUES (?, ?, ?, ?)`,
			discoveredID, now, score, reasoning,
		)
		return err
	})
}

// GetRecommendations returns the recommendation history, newest first.
// A limit of zero or less returns everything.
func (db *DB) GetRecommendations(limit int) ([]Recommendation, error) {
	query := `SELECT r.id, r.source_id, COALESCE(d.name, ''), r.recommendation_date,
		COALESCE(r.relevance_score, 0), r.reasoning
		FROM recommendations r LEFT JOIN discovered_sources d ON d.id = r.source_id
		ORDER BY r.id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, wrapStorage("list recommendations", err)
	}
	defer rows.Close()

	var recs []Recommendation
	for rows.Next() {
		var r Recommendation
		if err := rows.Scan(&r.ID, &r.SourceID, &r.SourceName, &r.Date, &r.RelevanceScore, &r.Reasoning); err != nil {
			return nil, wrapStorage("list recommendations", err)
		}
		recs = append(recs, r)
	}
	return recs, wrapStorage("list recommendations", rows.Err())
}
