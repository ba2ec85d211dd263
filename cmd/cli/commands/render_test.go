package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/jakechorley/spin-wheel/pkg/core/model"
	"github.com/jakechorley/spin-wheel/pkg/core/services"
)

var testCategories = []model.CategoryDef{
	{Number: 1, Label: "Silver Coin", MaxPerRound: 10},
	{Number: 2, Label: "5% Off", MaxPerRound: 30},
	{Number: 3, Label: "Thank You", MaxPerRound: 60},
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestRenderAllocation(t *testing.T) {
	var buf bytes.Buffer
	renderAllocation(&buf, "alice", model.Category{Round: 2, Number: 2, Label: "5% Off", MaxPerRound: 30, CurrentCount: 21})

	newGoldie(t).Assert(t, "allocation", buf.Bytes())
}

func TestRenderEligibility(t *testing.T) {
	var buf bytes.Buffer
	renderEligibility(&buf, "alice", true)
	renderEligibility(&buf, "bob", false)

	newGoldie(t).Assert(t, "eligibility", buf.Bytes())
}

func TestRenderState(t *testing.T) {
	var buf bytes.Buffer
	renderState(&buf, model.SystemState{TotalIssuances: 257, CurrentRound: 2, IssuancesInRound: 57}, 100)

	newGoldie(t).Assert(t, "state", buf.Bytes())
}

func TestRenderStats(t *testing.T) {
	var buf bytes.Buffer
	renderStats(&buf, &services.RoundStats{
		Round:   2,
		Current: true,
		Categories: []model.Category{
			{Round: 2, Number: 1, Label: "Silver Coin", MaxPerRound: 10, CurrentCount: 6},
			{Round: 2, Number: 2, Label: "5% Off", MaxPerRound: 30, CurrentCount: 20},
			{Round: 2, Number: 3, Label: "Thank You", MaxPerRound: 60, CurrentCount: 31},
		},
		Issued:   57,
		Capacity: 100,
	})

	newGoldie(t).Assert(t, "stats", buf.Bytes())
}

func TestRenderAvailable(t *testing.T) {
	var buf bytes.Buffer
	renderAvailable(&buf, []model.Category{
		{Round: 0, Number: 2, Label: "5% Off", MaxPerRound: 30, CurrentCount: 25},
		{Round: 0, Number: 3, Label: "Thank You", MaxPerRound: 60, CurrentCount: 59},
	})
	renderAvailable(&buf, nil)

	newGoldie(t).Assert(t, "available", buf.Bytes())
}

func TestRenderHistory(t *testing.T) {
	var buf bytes.Buffer
	renderHistory(&buf, "alice", []model.Issuance{
		{Label: "Thank You", Round: 2, IndexInRound: 57, IndexTotal: 257, IssuedAt: time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)},
		{Label: "Silver Coin", Round: 2, IndexInRound: 12, IndexTotal: 212, IssuedAt: time.Date(2026, 10, 15, 17, 30, 0, 0, time.UTC)},
	}, time.UTC)
	renderHistory(&buf, "bob", nil, time.UTC)

	newGoldie(t).Assert(t, "history", buf.Bytes())
}

func TestRenderSimulation(t *testing.T) {
	var buf bytes.Buffer
	renderSimulation(&buf, &SimulationResult{
		Attempted:  12,
		Allocated:  10,
		Ineligible: 2,
		ByCategory: map[int]int{1: 1, 2: 3, 3: 6},
	}, testCategories)

	newGoldie(t).Assert(t, "simulation", buf.Bytes())
}
