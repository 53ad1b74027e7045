package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := getSchemaVersion(db.conn)
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), version)
}

func TestMigrateLegacyDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "discovery.db")

	// A discovery.db written before user_version tracking existed.
	raw, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE discovered_sources (
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
	)`)
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO discovered_sources (name, source_type, relevance_score, citation_count)
		VALUES ('@legacy', 'twitter', 0.9, 3), ('@shouty', 'X', 0.8, 2), ('https://blog.example', 'blog', 0.5, 1)`)
	require.NoError(t, err)
	raw.Close()

	db, err := Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	version, err := getSchemaVersion(db.conn)
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), version)

	d, err := db.GetDiscoveredByName("@legacy")
	require.NoError(t, err)
	require.NotNil(t, d, "legacy rows survive migration")
	assert.Equal(t, KindSocial, d.Kind, "legacy twitter rows read as social")
	assert.Equal(t, 3, d.CitationCount)

	kinds := map[string]string{}
	rows, err := db.conn.Query("SELECT name, source_type FROM discovered_sources")
	require.NoError(t, err)
	for rows.Next() {
		var name, kind string
		require.NoError(t, rows.Scan(&name, &kind))
		kinds[name] = kind
	}
	require.NoError(t, rows.Err())
	rows.Close()
	assert.Equal(t, map[string]string{
		"@legacy":              "social",
		"@shouty":              "social",
		"https://blog.example": "blog",
	}, kinds, "stored kinds are rewritten, not just read as social")

	_, err = db.UpsertPrimary("Alpha", nil, KindBlog, nil)
	assert.NoError(t, err, "source tables missing from the legacy file are created")

	_, err = db.InsertInterest("agents")
	assert.NoError(t, err, "migration 2 tables exist")
}

func TestNormalizeLegacyKindsPrimarySources(t *testing.T) {
	db := openTestDB(t)

	_, err := db.conn.Exec(`INSERT INTO primary_sources (name, source_type, handle) VALUES ('Karpathy', 'twitter', 'karpathy')`)
	require.NoError(t, err)

	tx, err := db.conn.Begin()
	require.NoError(t, err)
	require.NoError(t, normalizeLegacyKinds(tx))
	require.NoError(t, tx.Commit())

	var kind string
	require.NoError(t, db.conn.QueryRow(`SELECT source_type FROM primary_sources WHERE name = 'Karpathy'`).Scan(&kind))
	assert.Equal(t, "social", kind)
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath)
	require.NoError(t, err)
	db1.Close()

	db2, err := Open(dbPath)
	require.NoError(t, err)
	defer db2.Close()

	version, err := getSchemaVersion(db2.conn)
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), version)
}

func TestGetSchemaVersionNewDB(t *testing.T) {
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer conn.Close()

	version, err := getSchemaVersion(conn)
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestIsLegacyDBFalseOnNew(t *testing.T) {
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer conn.Close()

	legacy, err := isLegacyDB(conn)
	require.NoError(t, err)
	assert.False(t, legacy)
}
