package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// InsertInterest adds an interest term. Returns the ID on success, 0 if the
// term already exists.
func (db *DB) InsertInterest(term string) (int64, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return 0, fmt.Errorf("interest term is required")
	}

	var id int64
	err := db.withTx("insert interest", func(tx *sql.Tx) error {
		result, err := tx.Exec(
			`INSERT INTO interests (term, created_at) VALUES (?, ?) ON CONFLICT(term) DO NOTHING`,
			term, db.timestamp(),
		)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil
		}
		id, err = result.LastInsertId()
		return err
	})
	return id, err
}

// GetAllInterests returns all interests in insertion order.
func (db *DB) GetAllInterests() ([]Interest, error) {
	return db.queryInterests("SELECT id, term, is_active, created_at FROM interests ORDER BY id")
}

// GetActiveInterestTerms returns the terms of active interests in insertion order.
func (db *DB) GetActiveInterestTerms() ([]string, error) {
	interests, err := db.queryInterests("SELECT id, term, is_active, created_at FROM interests WHERE is_active = 1 ORDER BY id")
	if err != nil {
		return nil, err
	}
	terms := make([]string, 0, len(interests))
	for _, i := range interests {
		terms = append(terms, i.Term)
	}
	return terms, nil
}

// GetInterest returns a single interest by ID, or nil if absent.
func (db *DB) GetInterest(interestID int64) (*Interest, error) {
	row := db.conn.QueryRow("SELECT id, term, is_active, created_at FROM interests WHERE id = ?", interestID)
	i, err := scanInterest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorage("get interest", err)
	}
	return i, nil
}

// ToggleInterest toggles the active state of an interest.
func (db *DB) ToggleInterest(interestID int64) error {
	return db.withTx("toggle interest", func(tx *sql.Tx) error {
		res, err := tx.Exec("UPDATE interests SET is_active = NOT is_active WHERE id = ?", interestID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("interest %d: %w", interestID, ErrNotFound)
		}
		return nil
	})
}

// DeleteInterest removes an interest.
func (db *DB) DeleteInterest(interestID int64) error {
	return db.withTx("delete interest", func(tx *sql.Tx) error {
		_, err := tx.Exec("DELETE FROM interests WHERE id = ?", interestID)
		return err
	})
}

func (db *DB) queryInterests(query string, args ...any) ([]Interest, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, wrapStorage("list interests", err)
	}
	defer rows.Close()

	var interests []Interest
	for rows.Next() {
		i, err := scanInterest(rows)
		if err != nil {
			return nil, wrapStorage("list interests", err)
		}
		interests = append(interests, *i)
	}
	return interests, wrapStorage("list interests", rows.Err())
}

func scanInterest(s scanner) (*Interest, error) {
	var i Interest
	var active int
	if err := s.Scan(&i.ID, &i.Term, &active, &i.CreatedAt); err != nil {
		return nil, err
	}
	i.IsActive = active != 0
	return &i, nil
}
