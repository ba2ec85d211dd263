package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/spin-wheel/pkg/core/model"
	"github.com/jakechorley/spin-wheel/pkg/db"
)

type pgTx struct {
	tx pgx.Tx
}

// GetSystemState locks the state row; every issuance rewrites it, so allocations queue here
func (t *pgTx) GetSystemState(ctx context.Context) (model.SystemState, error) {
	var state model.SystemState
	err := t.tx.QueryRow(ctx, `
		SELECT total_issuances, current_round, issuances_in_round
		FROM system_state
		WHERE id = 1
		FOR UPDATE
	`).Scan(&state.TotalIssuances, &state.CurrentRound, &state.IssuancesInRound)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.SystemState{}, db.ErrNotFound
	}
	if err != nil {
		return model.SystemState{}, fmt.Errorf("failed to query system state: %w", err)
	}
	return state, nil
}

func (t *pgTx) PutSystemState(ctx context.Context, state model.SystemState) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO system_state (id, total_issuances, current_round, issuances_in_round, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			total_issuances = EXCLUDED.total_issuances,
			current_round = EXCLUDED.current_round,
			issuances_in_round = EXCLUDED.issuances_in_round,
			updated_at = EXCLUDED.updated_at
	`, state.TotalIssuances, state.CurrentRound, state.IssuancesInRound)
	if err != nil {
		return fmt.Errorf("failed to write system state: %w", err)
	}
	return nil
}

func (t *pgTx) GetLedger(ctx context.Context, round int) ([]model.Category, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT round_id, category_number, label, max_per_round, current_count
		FROM category_ledger
		WHERE round_id = $1
		ORDER BY category_number
	`, round)
	if err != nil {
		return nil, fmt.Errorf("failed to query category ledger: %w", err)
	}
	defer rows.Close()

	var ledger []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.Round, &c.Number, &c.Label, &c.MaxPerRound, &c.CurrentCount); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		ledger = append(ledger, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}
	return ledger, nil
}

func (t *pgTx) SeedLedger(ctx context.Context, round int, defs []model.CategoryDef) error {
	batch := &pgx.Batch{}
	for _, def := range defs {
		batch.Queue(`
			INSERT INTO category_ledger (round_id, category_number, label, max_per_round, current_count)
			VALUES ($1, $2, $3, $4, 0)
		`, round, def.Number, def.Label, def.MaxPerRound)
	}

	results := t.tx.SendBatch(ctx, batch)
	for _, def := range defs {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to seed category %d for round %d: %w", def.Number, round, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to seed ledger for round %d: %w", round, err)
	}
	return nil
}

func (t *pgTx) IncrementCategory(ctx context.Context, round, number int) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE category_ledger
		SET current_count = current_count + 1
		WHERE round_id = $1 AND category_number = $2 AND current_count < max_per_round
	`, round, number)
	if err != nil {
		return fmt.Errorf("failed to increment category %d: %w", number, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM category_ledger WHERE round_id = $1 AND category_number = $2)
	`, round, number).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check ledger row: %w", err)
	}
	if !exists {
		return fmt.Errorf("ledger row for round %d category %d: %w", round, number, db.ErrNotFound)
	}
	return fmt.Errorf("category %d in round %d is at its cap: %w", number, round, db.ErrConflict)
}

func (t *pgTx) HasIssuanceSince(ctx context.Context, participantID string, since time.Time) (bool, error) {
	var found bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM issuance_log WHERE participant_id = $1 AND issued_at >= $2
		)
	`, participantID, since.UTC()).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to query issuance log: %w", err)
	}
	return found, nil
}

func (t *pgTx) AppendIssuance(ctx context.Context, iss model.Issuance) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO issuance_log
			(id, participant_id, category_number, label, round_id,
			 issuance_index_in_round, issuance_index_total, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, iss.ID, iss.ParticipantID, iss.CategoryNumber, iss.Label, iss.Round,
		iss.IndexInRound, iss.IndexTotal, iss.IssuedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert issuance: %w", err)
	}
	return nil
}

func (t *pgTx) ListIssuances(ctx context.Context, participantID string) ([]model.Issuance, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, participant_id, category_number, label, round_id,
		       issuance_index_in_round, issuance_index_total, issued_at
		FROM issuance_log
		WHERE participant_id = $1
		ORDER BY issued_at DESC, issuance_index_total DESC
	`, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query issuances: %w", err)
	}
	defer rows.Close()

	var out []model.Issuance
	for rows.Next() {
		var iss model.Issuance
		if err := rows.Scan(&iss.ID, &iss.ParticipantID, &iss.CategoryNumber, &iss.Label, &iss.Round,
			&iss.IndexInRound, &iss.IndexTotal, &iss.IssuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan issuance: %w", err)
		}
		iss.IssuedAt = iss.IssuedAt.UTC()
		out = append(out, iss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issuances: %w", err)
	}
	return out, nil
}

func (t *pgTx) Clear(ctx context.Context) error {
	if _, err := t.tx.Exec(ctx, `TRUNCATE issuance_log, category_ledger, system_state`); err != nil {
		return fmt.Errorf("failed to clear allocation tables: %w", err)
	}
	return nil
}
