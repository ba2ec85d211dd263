package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/spin-wheel/internal/config"
	"github.com/jakechorley/spin-wheel/pkg/core/eligibility"
	"github.com/jakechorley/spin-wheel/pkg/core/engine"
	"github.com/jakechorley/spin-wheel/pkg/core/model"
	"github.com/jakechorley/spin-wheel/pkg/memstore"
)

func newTestApp(t *testing.T, categories []model.CategoryDef, threshold int) *AppContext {
	t.Helper()
	store := memstore.New()
	e, err := engine.New(store, engine.Config{
		Categories: categories,
		Threshold:  threshold,
		Window:     eligibility.Daily(time.UTC),
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, e.Init(context.Background()))

	return &AppContext{
		Cfg:    &config.Config{TimeZone: "UTC"},
		Store:  store,
		Engine: e,
		Logger: zap.NewNop(),
		Ctx:    context.Background(),
	}
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	// A nil slice makes cobra fall back to os.Args
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSpinCmd(t *testing.T) {
	app := newTestApp(t, []model.CategoryDef{{Number: 1, Label: "Thank You", MaxPerRound: 10}}, 10)

	out, err := execute(t, SpinCmd(app), "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "alice won: Thank You (category 1)")
	assert.Contains(t, out, "Round 0: 1 of 10 issued")

	out, err = execute(t, SpinCmd(app), "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "alice has already spun this period")
}

func TestEligibleCmd(t *testing.T) {
	app := newTestApp(t, testCategories, 100)

	out, err := execute(t, EligibleCmd(app), "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "alice can spin")
}

func TestStatsCmd(t *testing.T) {
	app := newTestApp(t, testCategories, 100)

	_, err := app.Engine.Allocate(app.Ctx, "alice")
	require.NoError(t, err)

	out, err := execute(t, StatsCmd(app))
	require.NoError(t, err)
	assert.Contains(t, out, "Round 0 (open): 1/100 issued")

	_, err = execute(t, StatsCmd(app), "-3")
	assert.Error(t, err)

	_, err = execute(t, StatsCmd(app), "4")
	assert.Error(t, err)
}

func TestHistoryCmd(t *testing.T) {
	app := newTestApp(t, testCategories, 100)

	cat, err := app.Engine.Allocate(app.Ctx, "alice")
	require.NoError(t, err)

	out, err := execute(t, HistoryCmd(app), "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "History for alice (1 issuances)")
	assert.Contains(t, out, cat.Label)
	assert.Contains(t, out, "round 0 #1 (total 1)")
}

func TestResetCmd_RequiresConfirmation(t *testing.T) {
	app := newTestApp(t, testCategories, 100)

	_, err := app.Engine.Allocate(app.Ctx, "alice")
	require.NoError(t, err)

	_, err = execute(t, ResetCmd(app))
	assert.Error(t, err)

	state, err := app.Engine.GetState(app.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, state.TotalIssuances)

	out, err := execute(t, ResetCmd(app), "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "All counters reset")

	state, err = app.Engine.GetState(app.Ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SystemState{}, state)
}

func TestRunSimulation_FillsRoundsExactly(t *testing.T) {
	categories := []model.CategoryDef{
		{Number: 1, Label: "A", MaxPerRound: 2},
		{Number: 2, Label: "B", MaxPerRound: 8},
	}
	app := newTestApp(t, categories, 10)

	ids := make([]string, 30)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i)
	}
	// Repeat a participant to exercise the ineligible path
	ids = append(ids, "p0", "p1")

	result, err := runSimulation(app.Ctx, app.Engine, app.Logger, ids, 6)
	require.NoError(t, err)

	assert.Equal(t, 32, result.Attempted)
	assert.Equal(t, 30, result.Allocated)
	assert.Equal(t, 2, result.Ineligible)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, map[int]int{1: 6, 2: 24}, result.ByCategory)
}

type failingAllocator struct{}

func (failingAllocator) Allocate(ctx context.Context, participantID string) (model.Category, error) {
	if participantID == "stop" {
		return model.Category{}, context.Canceled
	}
	return model.Category{}, fmt.Errorf("%w: disk full", engine.ErrStorageFailure)
}

func TestRunSimulation_CountsFailures(t *testing.T) {
	result, err := runSimulation(context.Background(), failingAllocator{}, zap.NewNop(), []string{"a", "b"}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 0, result.Allocated)
}

func TestRunSimulation_StopsOnCancellation(t *testing.T) {
	_, err := runSimulation(context.Background(), failingAllocator{}, zap.NewNop(), []string{"a", "stop"}, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunInteractive(t *testing.T) {
	app := newTestApp(t, []model.CategoryDef{{Number: 1, Label: "Thank You", MaxPerRound: 10}}, 10)
	commands := map[string]*cobra.Command{
		"spin":  SpinCmd(app),
		"state": StateCmd(app),
	}

	in := strings.NewReader("help\nspin \"alice smith\"\nbogus\nstate\nspin\nquit\nspin bob\n")
	var out bytes.Buffer

	require.NoError(t, runInteractive(in, &out, commands, app))

	text := out.String()
	assert.Contains(t, text, "Available commands:")
	assert.Contains(t, text, "alice smith won: Thank You")
	assert.Contains(t, text, "unknown command: bogus")
	assert.Contains(t, text, "Issuances in round: 1/10")
	assert.Contains(t, text, "accepts 1 arg(s), received 0")
	assert.Contains(t, text, "Goodbye!")
	assert.NotContains(t, text, "bob won")
}

func TestParseCommandLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
		wantErr  bool
	}{
		{"simple", "spin alice", []string{"spin", "alice"}, false},
		{"double quotes", `spin "alice smith"`, []string{"spin", "alice smith"}, false},
		{"single quotes", `history 'bob jones' --limit 5`, []string{"history", "bob jones", "--limit", "5"}, false},
		{"extra whitespace", "  state   ", []string{"state"}, false},
		{"empty quoted argument", `spin ""`, []string{"spin", ""}, false},
		{"escaped space", `spin alice\ smith`, []string{"spin", "alice smith"}, false},
		{"escaped quote", `spin "say \"hi\""`, []string{"spin", `say "hi"`}, false},
		{"backslash inside single quotes", `spin 'a\b'`, []string{"spin", `a\b`}, false},
		{"unclosed quote", `spin "alice`, nil, true},
		{"trailing backslash", `spin alice\`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := parseCommandLine(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, args)
		})
	}
}
