package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps one row per domain. The record column holds the sessions
// and the active pointer together so both change in one statement.
type SQLiteStore struct {
	db *sql.DB

	mu        sync.RWMutex
	listeners []OnChangeListener
}

// OpenSQLiteStore creates or opens the database at dbPath.
func OpenSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS domain_records (
			domain TEXT PRIMARY KEY,
			record TEXT NOT NULL,
			revision INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, domain string) (DomainRecord, error) {
	var (
		raw      string
		revision int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT record, revision FROM domain_records WHERE domain = ?`, domain,
	).Scan(&raw, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return DomainRecord{Sessions: []Session{}}, nil
	}
	if err != nil {
		return DomainRecord{}, fmt.Errorf("load %s: %w", domain, err)
	}

	var rec DomainRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return DomainRecord{}, fmt.Errorf("decode %s: %w", domain, err)
	}
	rec.Revision = revision
	rec = rec.Clone()
	healOnLoad(domain, &rec)
	return rec, nil
}

func (s *SQLiteStore) Commit(ctx context.Context, domain string, rec DomainRecord) (DomainRecord, error) {
	committed := rec.Clone()
	committed.Revision = rec.Revision + 1

	raw, err := json.Marshal(committed)
	if err != nil {
		return DomainRecord{}, err
	}
	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DomainRecord{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var res sql.Result
	if rec.Revision == 0 {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO domain_records (domain, record, revision, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(domain) DO NOTHING`,
			domain, string(raw), committed.Revision, now)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE domain_records SET record = ?, revision = ?, updated_at = ?
			 WHERE domain = ? AND revision = ?`,
			string(raw), committed.Revision, now, domain, rec.Revision)
	}
	if err != nil {
		return DomainRecord{}, fmt.Errorf("write %s: %w", domain, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return DomainRecord{}, err
	}
	if n == 0 {
		return DomainRecord{}, fmt.Errorf("%w: %s", ErrConflict, domain)
	}
	if err := tx.Commit(); err != nil {
		return DomainRecord{}, fmt.Errorf("commit: %w", err)
	}

	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()
	notify(listeners, ChangeEvent{Domain: domain, Record: committed.Clone()})

	return committed, nil
}

func (s *SQLiteStore) Domains(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain FROM domain_records ORDER BY domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	domains := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

func (s *SQLiteStore) AddOnChangeListener(listener OnChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

var _ Store = (*SQLiteStore)(nil)
