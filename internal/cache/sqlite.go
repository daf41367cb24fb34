package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wsdtool/wsdtool/internal/wsd"
)

// SQLiteStore keeps the cache in a single SQLite table
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the cache database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate cache database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS targets (
		ep_ref_addr TEXT PRIMARY KEY,
		record BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`)
	return err
}

// Upsert inserts t or overwrites the record with the same address
func (s *SQLiteStore) Upsert(ctx context.Context, t wsd.TargetService) error {
	data, err := encodeRecord(t)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", t.EpRefAddr, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO targets (ep_ref_addr, record, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(ep_ref_addr) DO UPDATE SET
			record = excluded.record,
			updated_at = excluded.updated_at
	`, t.EpRefAddr, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", t.EpRefAddr, err)
	}
	return nil
}

// Delete removes the record for epRefAddr. Missing records are not an error.
func (s *SQLiteStore) Delete(ctx context.Context, epRefAddr string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE ep_ref_addr = ?`, epRefAddr); err != nil {
		return fmt.Errorf("failed to delete %s: %w", epRefAddr, err)
	}
	return nil
}

// List returns every cached target ordered by address
func (s *SQLiteStore) List(ctx context.Context) ([]wsd.TargetService, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ep_ref_addr, record FROM targets ORDER BY ep_ref_addr`)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	var out []wsd.TargetService
	for rows.Next() {
		var (
			addr string
			data []byte
		)
		if err := rows.Scan(&addr, &data); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		t, err := decodeRecord(addr, data)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating targets: %w", err)
	}
	return out, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
