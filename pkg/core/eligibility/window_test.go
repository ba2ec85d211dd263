package eligibility

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaily_StartOfCalendarDay(t *testing.T) {
	w := Daily(time.UTC)

	start, err := w.Start(time.Date(2026, 10, 14, 15, 42, 7, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)), "got %s", start)
}

func TestDaily_ExactlyMidnightStartsNewDay(t *testing.T) {
	w := Daily(time.UTC)

	midnight := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	start, err := w.Start(midnight)
	require.NoError(t, err)
	assert.True(t, start.Equal(midnight))
}

func TestDaily_UsesConfiguredZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	w := Daily(ny)

	// 02:30 UTC on the 15th is still the evening of the 14th in New York
	start, err := w.Start(time.Date(2026, 3, 15, 2, 30, 0, 0, time.UTC))
	require.NoError(t, err)

	want := time.Date(2026, 3, 14, 0, 0, 0, 0, ny)
	assert.True(t, start.Equal(want), "got %s want %s", start, want)
}

func TestWeeklyRule(t *testing.T) {
	w, err := NewWindow("FREQ=WEEKLY;BYDAY=MO", time.UTC)
	require.NoError(t, err)

	// Wednesday
	start, err := w.Start(time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)), "got %s", start)
}

func TestNewWindow_EmptyRuleDefaultsToDaily(t *testing.T) {
	w, err := NewWindow("", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, DefaultRule, w.rule)
}

func TestNewWindow_InvalidRule(t *testing.T) {
	_, err := NewWindow("NOT_A_RULE", time.UTC)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid eligibility rule")
}

func TestNewWindow_NilLocation(t *testing.T) {
	_, err := NewWindow(DefaultRule, nil)
	assert.Error(t, err)
}
