package allocator

import (
	"fmt"

	"github.com/jakechorley/spin-wheel/pkg/core/model"
)

// Transition is the result of applying one issuance to the system state
type Transition struct {
	// State is the system state after the issuance
	State model.SystemState

	// Round the issuance belongs to (the round that was open before it)
	Round int

	// IndexInRound and IndexTotal are the 1-based positions of the issuance
	IndexInRound int
	IndexTotal   int

	// Rolled is true when this issuance closed its round and opened the next one.
	// The caller must seed the ledger for State.CurrentRound in the same transaction.
	Rolled bool
}

// CheckState verifies the counter invariants for the given threshold
func CheckState(state model.SystemState, threshold int) error {
	if threshold <= 0 {
		return fmt.Errorf("%w: threshold must be positive, got %d", ErrInvariantViolation, threshold)
	}
	if state.TotalIssuances < 0 {
		return fmt.Errorf("%w: negative total issuances %d", ErrInvariantViolation, state.TotalIssuances)
	}
	if state.IssuancesInRound != state.TotalIssuances%threshold ||
		state.CurrentRound != state.TotalIssuances/threshold {
		return fmt.Errorf("%w: state {total=%d round=%d in_round=%d} inconsistent with threshold %d",
			ErrInvariantViolation, state.TotalIssuances, state.CurrentRound, state.IssuancesInRound, threshold)
	}
	return nil
}

// ApplyIssuance computes the state transition for a single issuance.
// It has no side effects; persisting the result is the caller's job.
func ApplyIssuance(state model.SystemState, threshold int) (Transition, error) {
	if err := CheckState(state, threshold); err != nil {
		return Transition{}, err
	}

	t := Transition{
		Round:        state.CurrentRound,
		IndexInRound: state.IssuancesInRound + 1,
		IndexTotal:   state.TotalIssuances + 1,
	}

	if state.IssuancesInRound+1 == threshold {
		t.State = model.SystemState{
			TotalIssuances:   state.TotalIssuances + 1,
			CurrentRound:     state.CurrentRound + 1,
			IssuancesInRound: 0,
		}
		t.Rolled = true
		return t, nil
	}

	t.State = model.SystemState{
		TotalIssuances:   state.TotalIssuances + 1,
		CurrentRound:     state.CurrentRound,
		IssuancesInRound: state.IssuancesInRound + 1,
	}
	return t, nil
}
