// Package sqlite implements db.Store on an embedded SQLite database, for single-site
// deployments such as a kiosk running without a database server.
//
// All access goes through one connection and every transaction starts with
// BEGIN IMMEDIATE, so writers are fully serialised by SQLite itself.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"strings"

	msqlite "modernc.org/sqlite"

	"github.com/jakechorley/spin-wheel/pkg/db"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// SQLite primary result codes that signal lock contention
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

var _ db.Store = (*Store)(nil)

// Store provides database operations using SQLite
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at path and applies the schema
func Open(ctx context.Context, path string) (*Store, error) {
	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer; one connection avoids SQLITE_BUSY between our own transactions
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := applySchema(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: conn}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RunInTx runs fn inside an immediate transaction. The mode is not needed here:
// every SQLite transaction already excludes all other writers.
func (s *Store) RunInTx(ctx context.Context, mode db.TxMode, fn func(ctx context.Context, tx db.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(ctx, &sqliteTx{tx: sqlTx}); err != nil {
		return mapError(err)
	}

	if err = ctx.Err(); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return mapError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func dsn(path string) string {
	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}

func applySchema(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	var version int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// mapError marks lock contention as db.ErrConflict so the engine retries
func mapError(err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xff
		if code == sqliteBusy || code == sqliteLocked {
			return fmt.Errorf("%w: %w", db.ErrConflict, err)
		}
	}
	return err
}
