package database

import (
	"database/sql"
	"fmt"
	"log"
)

// legacyKinds maps source_type values written by older releases onto the
// kinds the store understands today.
var legacyKinds = map[string]SourceKind{
	"twitter": KindSocial,
	"x":       KindSocial,
}

// kindTables are the tables carrying a source_type column.
var kindTables = []string{"primary_sources", "discovered_sources"}

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// legacyTables counts the source tables present in a database that carries
// no user_version. discovery.db files written before schema tracking hold
// discovered_sources, sometimes without primary_sources or citations.
func legacyTables(conn *sql.DB) (int, error) {
	var count int
	err := conn.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master
		 WHERE type='table' AND name IN ('primary_sources', 'discovered_sources', 'citations')`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("checking for legacy tables: %w", err)
	}
	return count, nil
}

// isLegacyDB returns true if an untracked database already holds discovered
// sources.
func isLegacyDB(conn *sql.DB) (bool, error) {
	var count int
	err := conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='discovered_sources'",
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking for legacy tables: %w", err)
	}
	return count > 0, nil
}

// normalizeLegacyKinds rewrites old source_type values in every table that
// exists. Missing tables are skipped so partial legacy files still migrate.
func normalizeLegacyKinds(tx *sql.Tx) error {
	var total int64
	for _, table := range kindTables {
		var exists int
		if err := tx.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking table %s: %w", table, err)
		}
		if exists == 0 {
			continue
		}
		for old, kind := range legacyKinds {
			res, err := tx.Exec(
				fmt.Sprintf("UPDATE %s SET source_type = ? WHERE lower(source_type) = ?", table),
				string(kind), old,
			)
			if err != nil {
				return fmt.Errorf("normalizing %s kinds in %s: %w", old, table, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
	}
	if total > 0 {
		log.Printf("normalized %d legacy source kinds", total)
	}
	return nil
}

// migrate brings the database schema up to the latest version.
// It uses PRAGMA user_version to track which migrations have been applied.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}

	// An untracked discovery.db with discovered_sources predates user_version.
	// Migration 1 is all CREATE IF NOT EXISTS, so it runs again to fill in
	// whichever source tables the old file lacks, then migration 2 rewrites
	// its legacy kinds.
	if current == 0 {
		legacy, err := isLegacyDB(conn)
		if err != nil {
			return err
		}
		if legacy {
			n, err := legacyTables(conn)
			if err != nil {
				return err
			}
			log.Printf("detected legacy discovery database (%d of 3 source tables present)", n)
		}
	}

	latest := latestVersion()
	if current >= latest {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		log.Printf("applying migration %d: %s", m.Version, m.Description)

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// modernc/sqlite refuses PRAGMA user_version inside a transaction.
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return fmt.Errorf("setting version %d: %w", m.Version, err)
		}
	}

	return nil
}
