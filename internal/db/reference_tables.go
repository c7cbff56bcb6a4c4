package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/banshee-data/lbl/internal/lbl"
)

// SaveReferenceTable stores the geometry of table under key, replacing
// any table already stored there. Diagnostics are not persisted.
func (db *DB) SaveReferenceTable(key string, table *lbl.ReferenceTable) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM reference_tables WHERE table_key = ?`, key); err != nil {
		return fmt.Errorf("clear reference table %q: %w", key, err)
	}
	if _, err := tx.Exec(
		`INSERT INTO reference_tables (table_key, n_lines, created_unix) VALUES (?, ?, ?)`,
		key, table.Len(), db.now(),
	); err != nil {
		return fmt.Errorf("insert reference table %q: %w", key, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO reference_lines (
			table_key, line_index, order_index, wave_start, wave_end, weight, xpix
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare reference line insert: %w", err)
	}
	defer stmt.Close()
	for i, l := range table.Lines {
		if _, err := stmt.Exec(key, i, l.Order, l.WaveStart, l.WaveEnd, l.Weight, nullFloat(l.XPix)); err != nil {
			return fmt.Errorf("insert reference line %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LoadReferenceTable returns the table stored under key. found is false
// when no table exists.
func (db *DB) LoadReferenceTable(key string) (table *lbl.ReferenceTable, found bool, err error) {
	var nLines int
	err = db.QueryRow(`SELECT n_lines FROM reference_tables WHERE table_key = ?`, key).Scan(&nLines)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query reference table %q: %w", key, err)
	}

	rows, err := db.Query(`SELECT order_index, wave_start, wave_end, weight, xpix
		FROM reference_lines WHERE table_key = ? ORDER BY line_index`, key)
	if err != nil {
		return nil, false, fmt.Errorf("query reference lines %q: %w", key, err)
	}
	defer rows.Close()

	table = &lbl.ReferenceTable{Lines: make([]lbl.ReferenceLine, 0, nLines)}
	for rows.Next() {
		var l lbl.ReferenceLine
		var xpix sql.NullFloat64
		if err := rows.Scan(&l.Order, &l.WaveStart, &l.WaveEnd, &l.Weight, &xpix); err != nil {
			return nil, false, fmt.Errorf("scan reference line: %w", err)
		}
		l.XPix = floatOrNaN(xpix)
		table.Lines = append(table.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if table.Len() != nLines {
		return nil, false, fmt.Errorf("reference table %q: expected %d lines, found %d", key, nLines, table.Len())
	}
	return table, true, nil
}

// ReferenceTableKeys lists the stored table keys.
func (db *DB) ReferenceTableKeys() ([]string, error) {
	rows, err := db.Query(`SELECT table_key FROM reference_tables ORDER BY table_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
