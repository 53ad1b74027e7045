package database

import (
	"database/sql"
	"errors"
)

// InsertRun records a completed discovery pass.
func (db *DB) InsertRun(r Run) error {
	return db.withTx("insert run", func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO discovery_runs
			(id, started_at, finished_at, sources_checked, fetch_failures, candidates, new_sources, recommended)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.StartedAt, r.FinishedAt, r.SourcesChecked, r.FetchFailures, r.Candidates, r.NewSources, r.Recommended,
		)
		return err
	})
}

// GetLastRun returns the most recently finished pass, or nil if none exists.
func (db *DB) GetLastRun() (*Run, error) {
	var r Run
	err := db.conn.QueryRow(
		`SELECT id, started_at, finished_at, sources_checked, fetch_failures, candidates, new_sources, recommended
		FROM discovery_runs ORDER BY finished_at DESC LIMIT 1`,
	).Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.SourcesChecked, &r.FetchFailures, &r.Candidates, &r.NewSources, &r.Recommended)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorage("get last run", err)
	}
	return &r, nil
}

// InsertReport stores a narrative report.
func (db *DB) InsertReport(runID *string, bodyMarkdown string) (int64, error) {
	var id int64
	err := db.withTx("insert report", func(tx *sql.Tx) error {
		result, err := tx.Exec(
			`INSERT INTO reports (run_id, body_markdown, generated_at) VALUES (?, ?, ?)`,
			runID, bodyMarkdown, db.timestamp(),
		)
		if err != nil {
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	return id, err
}

// GetLatestReport returns the newest report, or nil if none exists.
func (db *DB) GetLatestReport() (*Report, error) {
	var r Report
	err := db.conn.QueryRow(
		"SELECT id, run_id, body_markdown, generated_at FROM reports ORDER BY id DESC LIMIT 1",
	).Scan(&r.ID, &r.RunID, &r.BodyMarkdown, &r.GeneratedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorage("get latest report", err)
	}
	return &r, nil
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM primary_sources", &s.PrimarySources},
		{"SELECT COUNT(*) FROM discovered_sources", &s.DiscoveredSources},
		{"SELECT COUNT(*) FROM citations", &s.Citations},
		{"SELECT COUNT(*) FROM discovered_sources WHERE recommendation_sent = 1", &s.Recommended},
		{"SELECT COUNT(*) FROM recommendations", &s.Recommendations},
		{"SELECT COUNT(*) FROM interests", &s.TotalInterests},
		{"SELECT COUNT(*) FROM interests WHERE is_active = 1", &s.ActiveInterests},
		{"SELECT COUNT(*) FROM discovery_runs", &s.Runs},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, wrapStorage("get stats", err)
		}
	}

	return s, nil
}
