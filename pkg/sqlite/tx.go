package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jakechorley/spin-wheel/pkg/core/model"
	"github.com/jakechorley/spin-wheel/pkg/db"
)

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetSystemState(ctx context.Context) (model.SystemState, error) {
	var state model.SystemState
	err := t.tx.QueryRowContext(ctx, `
		SELECT total_issuances, current_round, issuances_in_round
		FROM system_state WHERE id = 1
	`).Scan(&state.TotalIssuances, &state.CurrentRound, &state.IssuancesInRound)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SystemState{}, db.ErrNotFound
	}
	if err != nil {
		return model.SystemState{}, fmt.Errorf("failed to query system state: %w", err)
	}
	return state, nil
}

func (t *sqliteTx) PutSystemState(ctx context.Context, state model.SystemState) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO system_state (id, total_issuances, current_round, issuances_in_round, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_issuances = excluded.total_issuances,
			current_round = excluded.current_round,
			issuances_in_round = excluded.issuances_in_round,
			updated_at = excluded.updated_at
	`, state.TotalIssuances, state.CurrentRound, state.IssuancesInRound, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write system state: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetLedger(ctx context.Context, round int) ([]model.Category, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT round_id, category_number, label, max_per_round, current_count
		FROM category_ledger
		WHERE round_id = ?
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

func (t *sqliteTx) SeedLedger(ctx context.Context, round int, defs []model.CategoryDef) error {
	for _, def := range defs {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO category_ledger (round_id, category_number, label, max_per_round, current_count)
			VALUES (?, ?, ?, ?, 0)
		`, round, def.Number, def.Label, def.MaxPerRound)
		if err != nil {
			return fmt.Errorf("failed to seed category %d for round %d: %w", def.Number, round, err)
		}
	}
	return nil
}

func (t *sqliteTx) IncrementCategory(ctx context.Context, round, number int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE category_ledger
		SET current_count = current_count + 1
		WHERE round_id = ? AND category_number = ? AND current_count < max_per_round
	`, round, number)
	if err != nil {
		return fmt.Errorf("failed to increment category %d: %w", number, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM category_ledger WHERE round_id = ? AND category_number = ?
	`, round, number).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check ledger row: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("ledger row for round %d category %d: %w", round, number, db.ErrNotFound)
	}
	return fmt.Errorf("category %d in round %d is at its cap: %w", number, round, db.ErrConflict)
}

func (t *sqliteTx) HasIssuanceSince(ctx context.Context, participantID string, since time.Time) (bool, error) {
	var found int
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM issuance_log WHERE participant_id = ? AND issued_at >= ?
		)
	`, participantID, since.UTC().UnixNano()).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to query issuance log: %w", err)
	}
	return found == 1, nil
}

func (t *sqliteTx) AppendIssuance(ctx context.Context, iss model.Issuance) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO issuance_log
			(id, participant_id, category_number, label, round_id,
			 issuance_index_in_round, issuance_index_total, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, iss.ID, iss.ParticipantID, iss.CategoryNumber, iss.Label, iss.Round,
		iss.IndexInRound, iss.IndexTotal, iss.IssuedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert issuance: %w", err)
	}
	return nil
}

func (t *sqliteTx) ListIssuances(ctx context.Context, participantID string) ([]model.Issuance, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, participant_id, category_number, label, round_id,
		       issuance_index_in_round, issuance_index_total, issued_at
		FROM issuance_log
		WHERE participant_id = ?
		ORDER BY issued_at DESC, issuance_index_total DESC
	`, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query issuances: %w", err)
	}
	defer rows.Close()

	var out []model.Issuance
	for rows.Next() {
		var iss model.Issuance
		var issuedAt int64
		if err := rows.Scan(&iss.ID, &iss.ParticipantID, &iss.CategoryNumber, &iss.Label, &iss.Round,
			&iss.IndexInRound, &iss.IndexTotal, &issuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan issuance: %w", err)
		}
		iss.IssuedAt = time.Unix(0, issuedAt).UTC()
		out = append(out, iss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issuances: %w", err)
	}
	return out, nil
}

func (t *sqliteTx) Clear(ctx context.Context) error {
	for _, table := range []string{"issuance_log", "category_ledger", "system_state"} {
		if _, err := t.tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
