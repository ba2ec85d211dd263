package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/spin-wheel/pkg/core/model"
	"github.com/jakechorley/spin-wheel/pkg/db"
)

// ErrRoundNotFound is returned when a round has no ledger rows
var ErrRoundNotFound = errors.New("round not found")

// RoundStats summarises the category ledger of one round
type RoundStats struct {
	Round      int
	Current    bool             // true if the round is still accepting allocations
	Categories []model.Category // ordered by category number
	Issued     int              // sum of current counts
	Capacity   int              // sum of max per round
}

// GetRoundStats returns the ledger of the given round, or of the current round when round is negative
func GetRoundStats(ctx context.Context, store db.Store, logger *zap.Logger, round int) (*RoundStats, error) {
	logger.Debug("Fetching round stats", zap.Int("round", round))

	var (
		state  model.SystemState
		ledger []model.Category
	)
	err := store.RunInTx(ctx, db.TxShared, func(ctx context.Context, tx db.Tx) error {
		var err error
		state, err = tx.GetSystemState(ctx)
		if err != nil {
			return fmt.Errorf("failed to read system state: %w", err)
		}
		if round < 0 {
			round = state.CurrentRound
		}
		ledger, err = tx.GetLedger(ctx, round)
		if err != nil {
			return fmt.Errorf("failed to read ledger for round %d: %w", round, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(ledger) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrRoundNotFound, round)
	}

	stats := &RoundStats{
		Round:      round,
		Current:    round == state.CurrentRound,
		Categories: ledger,
	}
	for _, row := range ledger {
		stats.Issued += row.CurrentCount
		stats.Capacity += row.MaxPerRound
	}
	return stats, nil
}

// GetAvailableCategories returns the current round's categories that still have quota
func GetAvailableCategories(ctx context.Context, store db.Store, logger *zap.Logger) ([]model.Category, error) {
	stats, err := GetRoundStats(ctx, store, logger, -1)
	if err != nil {
		return nil, err
	}

	var available []model.Category
	for _, row := range stats.Categories {
		if row.Remaining() > 0 {
			available = append(available, row)
		}
	}

	logger.Debug("Available categories",
		zap.Int("round", stats.Round),
		zap.Int("available", len(available)),
		zap.Int("total", len(stats.Categories)))
	return available, nil
}
