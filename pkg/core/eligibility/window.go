package eligibility

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// DefaultRule limits participants to one issuance per calendar day
const DefaultRule = "FREQ=DAILY"

// Window computes the start of the current eligibility period.
// Periods begin at each occurrence of an RRULE anchored at local midnight,
// so the default FREQ=DAILY rule yields calendar days in the configured zone.
type Window struct {
	rule string
	opt  rrule.ROption
	loc  *time.Location
}

// NewWindow parses the recurrence rule and binds it to a time zone
func NewWindow(rule string, loc *time.Location) (*Window, error) {
	if rule == "" {
		rule = DefaultRule
	}
	if loc == nil {
		return nil, fmt.Errorf("eligibility window requires a time zone")
	}

	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, fmt.Errorf("invalid eligibility rule %q: %w", rule, err)
	}

	return &Window{rule: rule, opt: *opt, loc: loc}, nil
}

// Daily returns the calendar-day window for the given zone
func Daily(loc *time.Location) *Window {
	w, err := NewWindow(DefaultRule, loc)
	if err != nil {
		// DefaultRule always parses
		panic(err)
	}
	return w
}

// Start returns the beginning of the period containing now
func (w *Window) Start(now time.Time) (time.Time, error) {
	local := now.In(w.loc)

	// Anchor a year back so weekly and monthly rules still have an occurrence before now
	anchor := time.Date(local.Year()-1, local.Month(), local.Day(), 0, 0, 0, 0, w.loc)

	opt := w.opt
	opt.Dtstart = anchor
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to build eligibility rule %q: %w", w.rule, err)
	}

	start := r.Before(local, true)
	if start.IsZero() {
		return time.Time{}, fmt.Errorf("eligibility rule %q has no occurrence before %s", w.rule, local.Format(time.RFC3339))
	}
	return start, nil
}

// Location returns the zone used for period boundaries
func (w *Window) Location() *time.Location {
	return w.loc
}
