package model

import "time"

// CategoryDef is the static configuration of a reward category.
// The same set is seeded into the ledger at the start of every round.
type CategoryDef struct {
	Number      int
	Label       string
	MaxPerRound int
}

// Category is one row of the category ledger for a given round
type Category struct {
	Round        int
	Number       int
	Label        string
	MaxPerRound  int
	CurrentCount int
}

// Remaining returns how many more times the category may be issued this round
func (c Category) Remaining() int {
	return c.MaxPerRound - c.CurrentCount
}

// SystemState holds the global issuance counters.
// IssuancesInRound == TotalIssuances mod threshold and
// CurrentRound == TotalIssuances div threshold.
type SystemState struct {
	TotalIssuances   int
	CurrentRound     int
	IssuancesInRound int
}

// Issuance is an append-only record of one successful allocation
type Issuance struct {
	ID             string
	ParticipantID  string
	CategoryNumber int
	Label          string
	Round          int
	IndexInRound   int
	IndexTotal     int
	IssuedAt       time.Time
}

// SeedLedger builds a fresh ledger for the given round with every count at zero
func SeedLedger(round int, defs []CategoryDef) []Category {
	ledger := make([]Category, 0, len(defs))
	for _, def := range defs {
		ledger = append(ledger, Category{
			Round:       round,
			Number:      def.Number,
			Label:       def.Label,
			MaxPerRound: def.MaxPerRound,
		})
	}
	return ledger
}
