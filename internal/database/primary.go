package database

import (
	"database/sql"
	"errors"
	"fmt"
)

const primaryColumns = `id, name, url, handle, COALESCE(source_type, ''), last_checked, created_at`

// UpsertPrimary registers a primary source if its name is unknown and returns
// its id. Existing rows are never updated. If the existing row has a different
// kind the id is returned together with ErrKindConflict.
func (db *DB) UpsertPrimary(name string, url *string, kind SourceKind, handle *string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("primary source name is required")
	}
	if !kind.Valid() {
		return 0, fmt.Errorf("invalid source kind %q", kind)
	}

	var id int64
	var stored string
	err := db.withTx("upsert primary source", func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO primary_sources (name, url, source_type, handle, created_at)
			VALUES (?, ?, ?, ?, ?) ON CONFLICT(name) DO NOTHING`,
			name, url, string(kind), handle, db.timestamp(),
		); err != nil {
			return err
		}
		return tx.QueryRow(
			"SELECT id, COALESCE(source_type, '') FROM primary_sources WHERE name = ?", name,
		).Scan(&id, &stored)
	})
	if err != nil {
		return 0, err
	}

	if kindFromColumn(stored) != kind {
		return id, ErrKindConflict
	}
	return id, nil
}

// TouchPrimary advances last_checked for a primary source.
func (db *DB) TouchPrimary(primaryID int64) error {
	return db.withTx("touch primary source", func(tx *sql.Tx) error {
		res, err := tx.Exec("UPDATE primary_sources SET last_checked = ? WHERE id = ?", db.timestamp(), primaryID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("primary source %d: %w", primaryID, ErrNotFound)
		}
		return nil
	})
}

// GetPrimaryByName returns a primary source by name, or nil if absent.
func (db *DB) GetPrimaryByName(name string) (*PrimarySource, error) {
	row := db.conn.QueryRow("SELECT "+primaryColumns+" FROM primary_sources WHERE name = ?", name)
	p, err := scanPrimary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorage("get primary source", err)
	}
	return p, nil
}

// GetAllPrimary returns all primary sources in registration order.
func (db *DB) GetAllPrimary() ([]PrimarySource, error) {
	rows, err := db.conn.Query("SELECT " + primaryColumns + " FROM primary_sources ORDER BY id")
	if err != nil {
		return nil, wrapStorage("list primary sources", err)
	}
	defer rows.Close()

	var sources []PrimarySource
	for rows.Next() {
		p, err := scanPrimary(rows)
		if err != nil {
			return nil, wrapStorage("list primary sources", err)
		}
		sources = append(sources, *p)
	}
	return sources, wrapStorage("list primary sources", rows.Err())
}

// LookupByName returns the *DiscoveredSource or *PrimarySource with the given
// name from the selected table. The result is nil when no row matches.
func (db *DB) LookupByName(name string, table Table) (any, error) {
	switch table {
	case TableDiscovered:
		src, err := db.GetDiscoveredByName(name)
		if err != nil || src == nil {
			return nil, err
		}
		return src, nil
	case TablePrimary:
		src, err := db.GetPrimaryByName(name)
		if err != nil || src == nil {
			return nil, err
		}
		return src, nil
	}
	return nil, fmt.Errorf("unknown table %d", table)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrimary(s scanner) (*PrimarySource, error) {
	var p PrimarySource
	var kind string
	if err := s.Scan(&p.ID, &p.Name, &p.URL, &p.Handle, &kind, &p.LastChecked, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Kind = kindFromColumn(kind)
	return &p, nil
}
