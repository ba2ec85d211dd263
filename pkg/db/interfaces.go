package db

import (
	"context"
	"time"

	"github.com/jakechorley/spin-wheel/pkg/core/model"
)

// TxMode selects how a transaction coordinates with other transactions
type TxMode int

const (
	// TxShared is used by allocations and reads. Shared transactions may run
	// alongside each other; the store serialises their writes.
	TxShared TxMode = iota

	// TxExclusive excludes every other transaction for its whole duration.
	// Used by administrative resets.
	TxExclusive
)

// Tx exposes the operations available inside a store transaction.
// Nothing written through a Tx is visible to other callers until the
// enclosing RunInTx returns nil.
type Tx interface {
	// GetSystemState returns ErrNotFound when the store has never been initialised
	GetSystemState(ctx context.Context) (model.SystemState, error)
	PutSystemState(ctx context.Context, state model.SystemState) error

	// GetLedger returns the rows for a round ordered by category number
	GetLedger(ctx context.Context, round int) ([]model.Category, error)
	SeedLedger(ctx context.Context, round int, defs []model.CategoryDef) error

	// IncrementCategory adds one to current_count only while current_count < max_per_round.
	// Returns ErrConflict when the row is already at its cap and ErrNotFound when it does not exist.
	IncrementCategory(ctx context.Context, round, number int) error

	HasIssuanceSince(ctx context.Context, participantID string, since time.Time) (bool, error)
	AppendIssuance(ctx context.Context, issuance model.Issuance) error

	// ListIssuances returns a participant's issuances, newest first
	ListIssuances(ctx context.Context, participantID string) ([]model.Issuance, error)

	// Clear removes the system state, every ledger row and every issuance
	Clear(ctx context.Context) error
}

// Store is a durable backend for the allocation engine.
// Postgres, SQLite and the in-memory store all implement this interface.
type Store interface {
	// RunInTx runs fn inside a single atomic transaction. If fn returns an error,
	// or ctx is cancelled before commit, nothing fn wrote is kept.
	// Transient contention is reported as ErrConflict so callers can retry.
	RunInTx(ctx context.Context, mode TxMode, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}
