package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/jakechorley/spin-wheel/pkg/core/model"
	"github.com/jakechorley/spin-wheel/pkg/core/services"
)

const historyTimeLayout = "2006-01-02 15:04"

func renderAllocation(w io.Writer, participantID string, cat model.Category) {
	fmt.Fprintf(w, "\n🎉 %s won: %s (category %d)\n", participantID, cat.Label, cat.Number)
	fmt.Fprintf(w, "   Round %d: %d of %d issued\n\n", cat.Round, cat.CurrentCount, cat.MaxPerRound)
}

func renderEligibility(w io.Writer, participantID string, eligible bool) {
	if eligible {
		fmt.Fprintf(w, "\n✓ %s can spin\n\n", participantID)
		return
	}
	fmt.Fprintf(w, "\n✗ %s has already spun this period\n\n", participantID)
}

func renderState(w io.Writer, state model.SystemState, threshold int) {
	fmt.Fprintf(w, "\nSystem state\n")
	fmt.Fprintf(w, "  %-20s%d\n", "Total issuances:", state.TotalIssuances)
	fmt.Fprintf(w, "  %-20s%d\n", "Current round:", state.CurrentRound)
	fmt.Fprintf(w, "  %-20s%d/%d\n\n", "Issuances in round:", state.IssuancesInRound, threshold)
}

func renderStats(w io.Writer, stats *services.RoundStats) {
	status := "closed"
	if stats.Current {
		status = "open"
	}
	fmt.Fprintf(w, "\nRound %d (%s): %d/%d issued\n\n", stats.Round, status, stats.Issued, stats.Capacity)
	fmt.Fprintf(w, "  %-3s %-20s %7s %6s\n", "#", "Category", "Issued", "Left")
	for _, c := range stats.Categories {
		issued := fmt.Sprintf("%d/%d", c.CurrentCount, c.MaxPerRound)
		fmt.Fprintf(w, "  %-3d %-20s %7s %6d\n", c.Number, c.Label, issued, c.Remaining())
	}
	fmt.Fprintln(w)
}

func renderAvailable(w io.Writer, available []model.Category) {
	if len(available) == 0 {
		fmt.Fprintf(w, "\nNo categories available\n\n")
		return
	}
	fmt.Fprintf(w, "\nAvailable in round %d:\n", available[0].Round)
	for _, c := range available {
		fmt.Fprintf(w, "  %-3d %-20s %d left\n", c.Number, c.Label, c.Remaining())
	}
	fmt.Fprintln(w)
}

func renderHistory(w io.Writer, participantID string, issuances []model.Issuance, loc *time.Location) {
	if len(issuances) == 0 {
		fmt.Fprintf(w, "\nNo issuances for %s\n\n", participantID)
		return
	}
	fmt.Fprintf(w, "\nHistory for %s (%d issuances)\n\n", participantID, len(issuances))
	for _, iss := range issuances {
		fmt.Fprintf(w, "  %s  %-20s round %d #%d (total %d)\n",
			iss.IssuedAt.In(loc).Format(historyTimeLayout),
			iss.Label,
			iss.Round,
			iss.IndexInRound,
			iss.IndexTotal)
	}
	fmt.Fprintln(w)
}

func renderSimulation(w io.Writer, result *SimulationResult, categories []model.CategoryDef) {
	fmt.Fprintf(w, "\nSimulated %d spins: %d allocated, %d ineligible, %d failed\n\n",
		result.Attempted, result.Allocated, result.Ineligible, result.Failed)
	for _, c := range categories {
		fmt.Fprintf(w, "  %-20s %6d\n", c.Label, result.ByCategory[c.Number])
	}
	fmt.Fprintln(w)
}
