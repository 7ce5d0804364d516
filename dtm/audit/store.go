// Package audit keeps the raw samples of closed 95th-percentile accounting
// periods in SQLite, so the reference vector of any period can be checked
// after the in-memory history has rolled over.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smartenit-eu/smartenit-sub001/dtm/economic"
)

const schema = `
CREATE TABLE IF NOT EXISTS period_samples (
    session TEXT NOT NULL,
    period  INTEGER NOT NULL,
    kind    TEXT NOT NULL,
    link    INTEGER NOT NULL,
    seq     INTEGER NOT NULL,
    value   INTEGER NOT NULL,
    PRIMARY KEY (session, period, kind, link, seq)
);
`

const (
	kindLink   = "link"
	kindTunnel = "tunnel"
)

// Store is an economic.AuditSink backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("audit directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// One connection, so an in-memory database is shared by every query.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordPeriod stores the samples of one period in a single transaction.
// Recording the same period twice fails.
func (s *Store) RecordPeriod(key economic.PairKey, period int, samples economic.PeriodSamples) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
        INSERT INTO period_samples (session, period, kind, link, seq, value)
        VALUES (?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	insert := func(kind string, series [2][]economic.TrafficSample) error {
		for link, ss := range series {
			for _, smp := range ss {
				if _, err := stmt.Exec(key.String(), period, kind, link, smp.Seq, smp.Value); err != nil {
					return fmt.Errorf("period %d of %s: %w", period, key, err)
				}
			}
		}
		return nil
	}
	if err := insert(kindLink, samples.Links); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := insert(kindTunnel, samples.Tunnels); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Samples returns the stored samples of one period, each series in sample
// order. ok is false when nothing was recorded for the period.
func (s *Store) Samples(key economic.PairKey, period int) (economic.PeriodSamples, bool, error) {
	rows, err := s.db.Query(`
        SELECT kind, link, seq, value
        FROM period_samples
        WHERE session = ? AND period = ?
        ORDER BY kind, link, seq
    `, key.String(), period)
	if err != nil {
		return economic.PeriodSamples{}, false, err
	}
	defer rows.Close()

	var out economic.PeriodSamples
	found := false
	for rows.Next() {
		var (
			kind string
			link int
			smp  economic.TrafficSample
		)
		if err := rows.Scan(&kind, &link, &smp.Seq, &smp.Value); err != nil {
			return economic.PeriodSamples{}, false, err
		}
		if link < 0 || link > 1 {
			return economic.PeriodSamples{}, false, fmt.Errorf("period %d of %s: bad link index %d", period, key, link)
		}
		switch kind {
		case kindLink:
			out.Links[link] = append(out.Links[link], smp)
		case kindTunnel:
			out.Tunnels[link] = append(out.Tunnels[link], smp)
		default:
			return economic.PeriodSamples{}, false, fmt.Errorf("period %d of %s: bad sample kind %q", period, key, kind)
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return economic.PeriodSamples{}, false, err
	}
	return out, found, nil
}

// Periods returns the recorded period numbers of a session, ascending.
func (s *Store) Periods(key economic.PairKey) ([]int, error) {
	rows, err := s.db.Query(`
        SELECT DISTINCT period
        FROM period_samples
        WHERE session = ?
        ORDER BY period
    `, key.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
