package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS primary_sources (
    id INTEGER PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    url TEXT,
    source_type TEXT,
    handle TEXT,
    last_checked TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS discovered_sources (
    id INTEGER PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    url TEXT,
    handle TEXT,
    source_type TEXT,
    relevance_score REAL,
    citation_count INTEGER DEFAULT 0,
    last_active TIMESTAMP,
    discovered_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    recommendation_sent BOOLEAN DEFAULT 0,
    recommendation_sent_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS citations (
    id INTEGER PRIMARY KEY,
    primary_source_id INTEGER NOT NULL,
    discovered_source_id INTEGER NOT NULL,
    citation_text TEXT,
    citation_date TIMESTAMP,
    FOREIGN KEY(primary_source_id) REFERENCES primary_sources(id),
    FOREIGN KEY(discovered_source_id) REFERENCES discovered_sources(id)
);

CREATE TABLE IF NOT EXISTS recommendations (
    id INTEGER PRIMARY KEY,
    source_id INTEGER NOT NULL,
    recommendation_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    relevance_score REAL,
    reasoning TEXT,
    FOREIGN KEY(source_id) REFERENCES discovered_sources(id)
);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "interests, run log, reports and lookup indexes",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS interests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    term TEXT UNIQUE NOT NULL,
    is_active INTEGER DEFAULT 1,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS discovery_runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    sources_checked INTEGER DEFAULT 0,
    fetch_failures INTEGER DEFAULT 0,
    candidates INTEGER DEFAULT 0,
    new_sources INTEGER DEFAULT 0,
    recommended INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT,
    body_markdown TEXT NOT NULL,
    generated_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_citations_discovered ON citations(discovered_source_id);
CREATE INDEX IF NOT EXISTS idx_citations_primary ON citations(primary_source_id);
CREATE INDEX IF NOT EXISTS idx_discovered_eligible ON discovered_sources(recommendation_sent, relevance_score, citation_count);
CREATE INDEX IF NOT EXISTS idx_recommendations_source ON recommendations(source_id);
CREATE INDEX IF NOT EXISTS idx_discovery_runs_finished ON discovery_runs(finished_at);
`)
			if err != nil {
				return err
			}
			return normalizeLegacyKinds(tx)
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
