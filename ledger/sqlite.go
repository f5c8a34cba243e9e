package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	address    BLOB PRIMARY KEY,
	data       BLOB NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	id        TEXT NOT NULL UNIQUE,
	tx_id     TEXT NOT NULL DEFAULT '',
	task_id   TEXT NOT NULL,
	kind      TEXT NOT NULL,
	data      BLOB NOT NULL,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS entries_task_seq ON entries (task_id, seq);
`

// SQLite persists the ledger in a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a SQLite database at dbPath and ensures the
// schema exists. The caller is responsible for calling Close.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLite) Close() error { return s.db.Close() }

type sqliteTx struct {
	ctx context.Context
	tx  *sql.Tx
}

// Exec runs fn inside a database transaction, rolling back on error.
func (s *SQLite) Exec(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(&sqliteTx{ctx: ctx, tx: tx}); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *sqliteTx) Get(addr Address) ([]byte, error) {
	var data []byte
	err := t.tx.QueryRowContext(t.ctx, `SELECT data FROM accounts WHERE address = ?`, addr[:]).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", addr, err)
	}
	return data, nil
}

func (t *sqliteTx) Allocate(addr Address, data []byte) error {
	var n int
	if err := t.tx.QueryRowContext(t.ctx, `SELECT COUNT(*) FROM accounts WHERE address = ?`, addr[:]).Scan(&n); err != nil {
		return fmt.Errorf("check account %s: %w", addr, err)
	}
	if n > 0 {
		return ErrAccountExists
	}
	now := time.Now().UTC()
	if _, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO accounts (address, data, created_at, updated_at) VALUES (?,?,?,?)`,
		addr[:], data, now, now,
	); err != nil {
		return fmt.Errorf("insert account %s: %w", addr, err)
	}
	return nil
}

func (t *sqliteTx) Put(addr Address, data []byte) error {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE accounts SET data = ?, updated_at = ? WHERE address = ?`,
		data, time.Now().UTC(), addr[:],
	)
	if err != nil {
		return fmt.Errorf("update account %s: %w", addr, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (t *sqliteTx) Log(e *Entry) error {
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO entries (id, tx_id, task_id, kind, data, timestamp)
		VALUES (?,?,?,?,?,?)`,
		e.ID, e.TxID, e.TaskID, e.Kind, e.Data, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("entry seq: %w", err)
	}
	e.Seq = uint64(seq)
	return nil
}

// Account returns committed account data.
func (s *SQLite) Account(ctx context.Context, addr Address) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM accounts WHERE address = ?`, addr[:]).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", addr, err)
	}
	return data, nil
}

// Entries returns committed log entries matching the filter.
func (s *SQLite) Entries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	q := strings.Builder{}
	q.WriteString("SELECT seq, id, tx_id, task_id, kind, data, timestamp FROM entries WHERE seq > ?")
	args := []any{filter.AfterSeq}

	if filter.TaskID != "" {
		q.WriteString(" AND task_id=?")
		args = append(args, filter.TaskID)
	}
	if filter.Kind != "" {
		q.WriteString(" AND kind=?")
		args = append(args, filter.Kind)
	}
	q.WriteString(" ORDER BY seq ASC")
	if filter.Limit > 0 {
		q.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
	}

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for scanEntry.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var seq int64
	if err := s.Scan(&seq, &e.ID, &e.TxID, &e.TaskID, &e.Kind, &e.Data, &e.Timestamp); err != nil {
		return nil, err
	}
	e.Seq = uint64(seq)
	return &e, nil
}
