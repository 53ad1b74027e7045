package database

import (
	"database/sql"
	"errors"
	"fmt"
)

const discoveredColumns = `id, name, url, handle, COALESCE(source_type, ''),
	COALESCE(relevance_score, 0), COALESCE(citation_count, 0), last_active, discovered_at,
	COALESCE(recommendation_sent, 0), recommendation_sent_at`

// UpsertDiscovered inserts a discovered source if its name is unknown and
// returns its id. An existing row is left untouched. A zero id with a nil
// error means the row could not be resolved; callers re-fetch by name.
func (db *DB) UpsertDiscovered(name string, url, handle *string, kind SourceKind, score float64, lastActive *string) (int64, error) {
	if err := validateSighting(name, kind, score); err != nil {
		return 0, err
	}

	var id int64
	err := db.withTx("upsert discovered source", func(tx *sql.Tx) error {
		if _, err := insertDiscovered(tx, name, url, handle, kind, score, lastActive, db.timestamp()); err != nil {
			return err
		}
		err := tx.QueryRow("SELECT id FROM discovered_sources WHERE name = ?", name).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			id = 0
			return nil
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// RaiseScore stores score for a discovered source only if it is higher than
// the current one. Relevance never decreases.
func (db *DB) RaiseScore(discoveredID int64, score float64) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("relevance score %.4f outside [0, 1]", score)
	}
	return db.withTx("raise relevance score", func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`UPDATE discovered_sources SET relevance_score = MAX(COALESCE(relevance_score, 0), ?) WHERE id = ?`,
			score, discoveredID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("discovered source %d: %w", discoveredID, ErrNotFound)
		}
		return nil
	})
}

// RecordSighting merges one candidate observation in a single transaction:
// the source is inserted if new, its score raised to the maximum of old and
// new, last_active advanced, a citation appended and citation_count recomputed.
func (db *DB) RecordSighting(primaryID int64, s Sighting) (*SightingResult, error) {
	if err := validateSighting(s.Name, s.Kind, s.Score); err != nil {
		return nil, err
	}

	res := &SightingResult{}
	err := db.withTx("record sighting", func(tx *sql.Tx) error {
		now := db.timestamp()
		lastActive := s.LastActive
		if lastActive == nil {
			lastActive = &now
		}

		inserted, err := insertDiscovered(tx, s.Name, s.URL, s.Handle, s.Kind, s.Score, lastActive, now)
		if err != nil {
			return err
		}
		res.New = inserted

		var storedActive *string
		if err := tx.QueryRow(
			`SELECT id, COALESCE(relevance_score, 0), last_active FROM discovered_sources WHERE name = ?`, s.Name,
		).Scan(&res.ID, &res.RelevanceScore, &storedActive); err != nil {
			return err
		}

		if !inserted {
			if s.Score > res.RelevanceScore {
				res.RelevanceScore = s.Score
			}
			if _, err := tx.Exec(
				`UPDATE discovered_sources SET relevance_score = ?, last_active = ? WHERE id = ?`,
				res.RelevanceScore, later(storedActive, lastActive), res.ID,
			); err != nil {
				return err
			}
		}

		count, err := appendCitation(tx, primaryID, res.ID, s.Text, now)
		if err != nil {
			return err
		}
		res.CitationCount = count
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// QueryEligible returns unsent sources meeting both thresholds, ordered by
// relevance, then citations, then insertion order.
func (db *DB) QueryEligible(minRelevance float64, minCitations int) ([]DiscoveredSource, error) {
	return db.queryDiscovered("query eligible sources",
		`SELECT `+discoveredColumns+` FROM discovered_sources
		WHERE COALESCE(relevance_score, 0) >= ?
		AND COALESCE(citation_count, 0) >= ?
		AND COALESCE(recommendation_sent, 0) = 0
		ORDER BY relevance_score DESC, citation_count DESC, id ASC`,
		minRelevance, minCitations,
	)
}

// GetAllDiscovered returns every discovered source, most cited first.
func (db *DB) GetAllDiscovered() ([]DiscoveredSource, error) {
	return db.queryDiscovered("list discovered sources",
		`SELECT `+discoveredColumns+` FROM discovered_sources
		ORDER BY citation_count DESC, relevance_score DESC, id ASC`,
	)
}

// GetDiscoveredByName returns a discovered source by name, or nil if absent.
func (db *DB) GetDiscoveredByName(name string) (*DiscoveredSource, error) {
	return db.getDiscovered("SELECT "+discoveredColumns+" FROM discovered_sources WHERE name = ?", name)
}

// GetDiscoveredByID returns a discovered source by id, or nil if absent.
func (db *DB) GetDiscoveredByID(id int64) (*DiscoveredSource, error) {
	return db.getDiscovered("SELECT "+discoveredColumns+" FROM discovered_sources WHERE id = ?", id)
}

func (db *DB) getDiscovered(query string, arg any) (*DiscoveredSource, error) {
	d, err := scanDiscovered(db.conn.QueryRow(query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorage("get discovered source", err)
	}
	return d, nil
}

func (db *DB) queryDiscovered(op, query string, args ...any) ([]DiscoveredSource, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, wrapStorage(op, err)
	}
	defer rows.Close()

	var sources []DiscoveredSource
	for rows.Next() {
		d, err := scanDiscovered(rows)
		if err != nil {
			return nil, wrapStorage(op, err)
		}
		sources = append(sources, *d)
	}
	return sources, wrapStorage(op, rows.Err())
}

// insertDiscovered reports whether a new row was created.
func insertDiscovered(tx *sql.Tx, name string, url, handle *string, kind SourceKind, score float64, lastActive *string, now string) (bool, error) {
	res, err := tx.Exec(
		`INSERT INTO discovered_sources
		(name, url, handle, source_type, relevance_score, citation_count, last_active, discovered_at, recommendation_sent)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, 0)
		ON CONFLICT(name) DO NOTHING`,
		name, url, handle, string(kind), score, lastActive, now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func validateSighting(name string, kind SourceKind, score float64) error {
	if name == "" {
		return fmt.Errorf("discovered source name is required")
	}
	if !kind.Valid() {
		return fmt.Errorf("invalid source kind %q", kind)
	}
	if score < 0 || score > 1 {
		return fmt.Errorf("relevance score %.4f outside [0, 1]", score)
	}
	return nil
}

func scanDiscovered(s scanner) (*DiscoveredSource, error) {
	var d DiscoveredSource
	var kind string
	var sent int
	if err := s.Scan(&d.ID, &d.Name, &d.URL, &d.Handle, &kind, &d.RelevanceScore, &d.CitationCount,
		&d.LastActive, &d.DiscoveredAt, &sent, &d.RecommendationSentAt); err != nil {
		return nil, err
	}
	d.Kind = kindFromColumn(kind)
	d.RecommendationSent = sent != 0
	return &d, nil
}
