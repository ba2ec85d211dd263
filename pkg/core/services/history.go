package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/spin-wheel/pkg/core/model"
	"github.com/jakechorley/spin-wheel/pkg/db"
)

// GetParticipantHistory returns a participant's issuances, newest first.
// A positive limit keeps only the most recent entries.
func GetParticipantHistory(ctx context.Context, store db.Store, logger *zap.Logger, participantID string, limit int) ([]model.Issuance, error) {
	if participantID == "" {
		return nil, fmt.Errorf("participant id must not be empty")
	}

	var issuances []model.Issuance
	err := store.RunInTx(ctx, db.TxShared, func(ctx context.Context, tx db.Tx) error {
		var err error
		issuances, err = tx.ListIssuances(ctx, participantID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list issuances for %s: %w", participantID, err)
	}

	if limit > 0 && len(issuances) > limit {
		issuances = issuances[:limit]
	}

	logger.Debug("Fetched participant history",
		zap.String("participant_id", participantID),
		zap.Int("count", len(issuances)))
	return issuances, nil
}
