// Package dbtest holds behaviour tests shared by every db.Store implementation.
package dbtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/spin-wheel/pkg/core/model"
	"github.com/jakechorley/spin-wheel/pkg/db"
)

// TestCategories is a small two-category configuration used across store tests
var TestCategories = []model.CategoryDef{
	{Number: 1, Label: "Silver Coin", MaxPerRound: 2},
	{Number: 2, Label: "5% Off", MaxPerRound: 3},
}

// RunStoreTests exercises the db.Store contract against a fresh store from newStore
func RunStoreTests(t *testing.T, newStore func(t *testing.T) db.Store) {
	t.Run("MissingStateIsNotFound", func(t *testing.T) {
		store := newStore(t)
		err := store.RunInTx(context.Background(), db.TxShared, func(ctx context.Context, tx db.Tx) error {
			_, err := tx.GetSystemState(ctx)
			return err
		})
		assert.ErrorIs(t, err, db.ErrNotFound)
	})

	t.Run("StateAndLedgerRoundTrip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		seed(t, store)

		err := store.RunInTx(ctx, db.TxShared, func(ctx context.Context, tx db.Tx) error {
			state, err := tx.GetSystemState(ctx)
			require.NoError(t, err)
			assert.Equal(t, model.SystemState{}, state)

			ledger, err := tx.GetLedger(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, model.SeedLedger(0, TestCategories), ledger)

			empty, err := tx.GetLedger(ctx, 1)
			require.NoError(t, err)
			assert.Empty(t, empty)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("IncrementStopsAtCap", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		seed(t, store)

		increment := func() error {
			return store.RunInTx(ctx, db.TxShared, func(ctx context.Context, tx db.Tx) error {
				return tx.IncrementCategory(ctx, 0, 1)
			})
		}
		require.NoError(t, increment())
		require.NoError(t, increment())
		assert.ErrorIs(t, increment(), db.ErrConflict)

		ledger := readLedger(t, store, 0)
		assert.Equal(t, 2, ledger[0].CurrentCount)
	})

	t.Run("IncrementMissingRow", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)

		err := store.RunInTx(context.Background(), db.TxShared, func(ctx context.Context, tx db.Tx) error {
			return tx.IncrementCategory(ctx, 7, 1)
		})
		assert.ErrorIs(t, err, db.ErrNotFound)
	})

	t.Run("FailedTransactionRollsBack", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		seed(t, store)

		boom := errors.New("boom")
		err := store.RunInTx(ctx, db.TxShared, func(ctx context.Context, tx db.Tx) error {
			require.NoError(t, tx.IncrementCategory(ctx, 0, 2))
			require.NoError(t, tx.AppendIssuance(ctx, issuance("p-1", time.Now())))
			require.NoError(t, tx.PutSystemState(ctx, model.SystemState{TotalIssuances: 1, IssuancesInRound: 1}))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		assert.Equal(t, 0, readLedger(t, store, 0)[1].CurrentCount)
		assert.Equal(t, model.SystemState{}, readState(t, store))
		assert.Empty(t, history(t, store, "p-1"))
	})

	t.Run("CancelledContextCommitsNothing", func(t *testing.T) {
		store := newStore(t)
		seed(t, store)

		ctx, cancel := context.WithCancel(context.Background())
		err := store.RunInTx(ctx, db.TxShared, func(txCtx context.Context, tx db.Tx) error {
			if err := tx.IncrementCategory(txCtx, 0, 1); err != nil {
				return err
			}
			cancel()
			return nil
		})
		assert.Error(t, err)
		assert.Equal(t, 0, readLedger(t, store, 0)[0].CurrentCount)
	})

	t.Run("IssuancesSinceAndHistory", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		seed(t, store)

		dayStart := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
		older := issuance("p-1", dayStart.Add(-time.Hour))
		newer := issuance("p-1", dayStart.Add(3*time.Hour))
		other := issuance("p-2", dayStart.Add(-2*time.Hour))

		err := store.RunInTx(ctx, db.TxShared, func(ctx context.Context, tx db.Tx) error {
			for _, iss := range []model.Issuance{older, other, newer} {
				if err := tx.AppendIssuance(ctx, iss); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)

		err = store.RunInTx(ctx, db.TxShared, func(ctx context.Context, tx db.Tx) error {
			got, err := tx.HasIssuanceSince(ctx, "p-1", dayStart)
			require.NoError(t, err)
			assert.True(t, got)

			got, err = tx.HasIssuanceSince(ctx, "p-2", dayStart)
			require.NoError(t, err)
			assert.False(t, got)

			got, err = tx.HasIssuanceSince(ctx, "p-1", newer.IssuedAt)
			require.NoError(t, err)
			assert.True(t, got, "boundary is inclusive")
			return nil
		})
		require.NoError(t, err)

		hist := history(t, store, "p-1")
		require.Len(t, hist, 2)
		assert.Equal(t, newer.ID, hist[0].ID, "newest first")
		assert.Equal(t, older.ID, hist[1].ID)
		assert.True(t, hist[0].IssuedAt.Equal(newer.IssuedAt))
		assert.Equal(t, newer.Label, hist[0].Label)
		assert.Equal(t, newer.IndexTotal, hist[0].IndexTotal)
	})

	t.Run("ClearRemovesEverything", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		seed(t, store)

		err := store.RunInTx(ctx, db.TxShared, func(ctx context.Context, tx db.Tx) error {
			return tx.AppendIssuance(ctx, issuance("p-1", time.Now()))
		})
		require.NoError(t, err)

		err = store.RunInTx(ctx, db.TxExclusive, func(ctx context.Context, tx db.Tx) error {
			return tx.Clear(ctx)
		})
		require.NoError(t, err)

		err = store.RunInTx(ctx, db.TxShared, func(ctx context.Context, tx db.Tx) error {
			_, err := tx.GetSystemState(ctx)
			return err
		})
		assert.ErrorIs(t, err, db.ErrNotFound)
		assert.Empty(t, readLedger(t, store, 0))
		assert.Empty(t, history(t, store, "p-1"))
	})
}

func seed(t *testing.T, store db.Store) {
	t.Helper()
	err := store.RunInTx(context.Background(), db.TxExclusive, func(ctx context.Context, tx db.Tx) error {
		if err := tx.PutSystemState(ctx, model.SystemState{}); err != nil {
			return err
		}
		return tx.SeedLedger(ctx, 0, TestCategories)
	})
	require.NoError(t, err)
}

func readLedger(t *testing.T, store db.Store, round int) []model.Category {
	t.Helper()
	var ledger []model.Category
	err := store.RunInTx(context.Background(), db.TxShared, func(ctx context.Context, tx db.Tx) error {
		var err error
		ledger, err = tx.GetLedger(ctx, round)
		return err
	})
	require.NoError(t, err)
	return ledger
}

func readState(t *testing.T, store db.Store) model.SystemState {
	t.Helper()
	var state model.SystemState
	err := store.RunInTx(context.Background(), db.TxShared, func(ctx context.Context, tx db.Tx) error {
		var err error
		state, err = tx.GetSystemState(ctx)
		return err
	})
	require.NoError(t, err)
	return state
}

func history(t *testing.T, store db.Store, participantID string) []model.Issuance {
	t.Helper()
	var out []model.Issuance
	err := store.RunInTx(context.Background(), db.TxShared, func(ctx context.Context, tx db.Tx) error {
		var err error
		out, err = tx.ListIssuances(ctx, participantID)
		return err
	})
	require.NoError(t, err)
	return out
}

func issuance(participantID string, at time.Time) model.Issuance {
	return model.Issuance{
		ID:             uuid.New().String(),
		ParticipantID:  participantID,
		CategoryNumber: 1,
		Label:          "Silver Coin",
		Round:          0,
		IndexInRound:   1,
		IndexTotal:     1,
		IssuedAt:       at.UTC().Truncate(time.Microsecond),
	}
}
