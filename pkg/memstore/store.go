// Package memstore provides an in-process implementation of db.Store.
// Each transaction works on a private copy of the data which replaces the
// shared copy only on successful commit.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jakechorley/spin-wheel/pkg/core/model"
	"github.com/jakechorley/spin-wheel/pkg/db"
)

var _ db.Store = (*Store)(nil)

type ledgerKey struct {
	round  int
	number int
}

type data struct {
	state     *model.SystemState
	ledger    map[ledgerKey]model.Category
	issuances []model.Issuance
}

func (d *data) clone() *data {
	out := &data{
		ledger:    make(map[ledgerKey]model.Category, len(d.ledger)),
		issuances: make([]model.Issuance, len(d.issuances)),
	}
	if d.state != nil {
		s := *d.state
		out.state = &s
	}
	for k, v := range d.ledger {
		out.ledger[k] = v
	}
	copy(out.issuances, d.issuances)
	return out
}

// Store keeps all state in memory. Transactions are fully serialised.
type Store struct {
	mu   sync.Mutex
	data *data
}

// New creates an empty store
func New() *Store {
	return &Store{data: &data{ledger: make(map[ledgerKey]model.Category)}}
}

// RunInTx runs fn against a copy of the data and publishes the copy if fn succeeds
func (s *Store) RunInTx(ctx context.Context, mode db.TxMode, fn func(ctx context.Context, tx db.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{data: s.data.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	// An abandoned caller must not observe a commit after giving up
	if err := ctx.Err(); err != nil {
		return err
	}

	s.data = tx.data
	return nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

type memTx struct {
	data *data
}

func (t *memTx) GetSystemState(ctx context.Context) (model.SystemState, error) {
	if t.data.state == nil {
		return model.SystemState{}, db.ErrNotFound
	}
	return *t.data.state, nil
}

func (t *memTx) PutSystemState(ctx context.Context, state model.SystemState) error {
	t.data.state = &state
	return nil
}

func (t *memTx) GetLedger(ctx context.Context, round int) ([]model.Category, error) {
	var rows []model.Category
	for k, v := range t.data.ledger {
		if k.round == round {
			rows = append(rows, v)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Number < rows[j].Number
	})
	return rows, nil
}

func (t *memTx) SeedLedger(ctx context.Context, round int, defs []model.CategoryDef) error {
	for _, row := range model.SeedLedger(round, defs) {
		key := ledgerKey{round: round, number: row.Number}
		if _, exists := t.data.ledger[key]; exists {
			return fmt.Errorf("ledger row for round %d category %d already exists", round, row.Number)
		}
		t.data.ledger[key] = row
	}
	return nil
}

func (t *memTx) IncrementCategory(ctx context.Context, round, number int) error {
	key := ledgerKey{round: round, number: number}
	row, ok := t.data.ledger[key]
	if !ok {
		return fmt.Errorf("ledger row for round %d category %d: %w", round, number, db.ErrNotFound)
	}
	if row.CurrentCount >= row.MaxPerRound {
		return fmt.Errorf("category %d in round %d is at its cap: %w", number, round, db.ErrConflict)
	}
	row.CurrentCount++
	t.data.ledger[key] = row
	return nil
}

func (t *memTx) HasIssuanceSince(ctx context.Context, participantID string, since time.Time) (bool, error) {
	for _, iss := range t.data.issuances {
		if iss.ParticipantID == participantID && !iss.IssuedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) AppendIssuance(ctx context.Context, issuance model.Issuance) error {
	t.data.issuances = append(t.data.issuances, issuance)
	return nil
}

func (t *memTx) ListIssuances(ctx context.Context, participantID string) ([]model.Issuance, error) {
	var out []model.Issuance
	for i := len(t.data.issuances) - 1; i >= 0; i-- {
		if t.data.issuances[i].ParticipantID == participantID {
			out = append(out, t.data.issuances[i])
		}
	}
	return out, nil
}

func (t *memTx) Clear(ctx context.Context) error {
	t.data = &data{ledger: make(map[ledgerKey]model.Category)}
	return nil
}
