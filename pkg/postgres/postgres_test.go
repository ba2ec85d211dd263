package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/spin-wheel/pkg/db"
	"github.com/jakechorley/spin-wheel/pkg/db/dbtest"
)

func TestMapError_SerializationFailure(t *testing.T) {
	err := fmt.Errorf("failed to commit transaction: %w", &pgconn.PgError{Code: "40001"})

	mapped := mapError(err)
	assert.ErrorIs(t, mapped, db.ErrConflict)
}

func TestMapError_Deadlock(t *testing.T) {
	mapped := mapError(&pgconn.PgError{Code: "40P01"})
	assert.ErrorIs(t, mapped, db.ErrConflict)
}

func TestMapError_CheckViolationIsNotRetried(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514"}

	mapped := mapError(pgErr)
	assert.False(t, errors.Is(mapped, db.ErrConflict))
	assert.Equal(t, pgErr, mapped)
}

func TestPendingMigrations(t *testing.T) {
	all, err := pendingMigrations(map[string]bool{})
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, "001_init.sql", all[0])

	none, err := pendingMigrations(map[string]bool{"001_init.sql": true})
	require.NoError(t, err)
	assert.NotContains(t, none, "001_init.sql")
}

// TestStore runs against a live database when SPIN_TEST_POSTGRES_DSN is set
func TestStore(t *testing.T) {
	dsn := os.Getenv("SPIN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SPIN_TEST_POSTGRES_DSN not set")
	}

	dbtest.RunStoreTests(t, func(t *testing.T) db.Store {
		ctx := context.Background()
		store, err := NewDB(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })

		require.NoError(t, store.RunMigrations(ctx))
		require.NoError(t, store.RunInTx(ctx, db.TxExclusive, func(ctx context.Context, tx db.Tx) error {
			return tx.Clear(ctx)
		}))
		return store
	})
}
