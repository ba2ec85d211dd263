package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/spin-wheel/pkg/core/allocator"
	"github.com/jakechorley/spin-wheel/pkg/core/eligibility"
	"github.com/jakechorley/spin-wheel/pkg/core/model"
	"github.com/jakechorley/spin-wheel/pkg/db"
)

const (
	// DefaultThreshold is the number of issuances that closes a round
	DefaultThreshold = 100

	DefaultMaxRetries   = 8
	DefaultRetryBackoff = 10 * time.Millisecond

	// NoRetries as Config.MaxRetries fails on the first conflict
	NoRetries = -1
)

var (
	// ErrIneligible is returned when the participant already received an issuance this period
	ErrIneligible = errors.New("participant already received an issuance in the current period")

	// ErrNoCapacity is returned when no category in the current round has quota left.
	// Under a valid configuration this means the ledger and the round counters disagree.
	ErrNoCapacity = allocator.ErrNoCapacity

	// ErrStorageFailure is returned when the store could not complete the operation,
	// including retry exhaustion and detected invariant violations. The spin did not happen.
	ErrStorageFailure = errors.New("storage failure")

	// ErrConfiguration is returned by New when the category set or threshold is malformed
	ErrConfiguration = errors.New("invalid engine configuration")

	// ErrInvalidParticipant is returned for an empty participant id
	ErrInvalidParticipant = errors.New("participant id must not be empty")
)

// Config is the static configuration of the engine
type Config struct {
	// Categories in the order they are seeded; numbers must be unique and positive
	Categories []model.CategoryDef

	// Threshold is the number of issuances per round
	Threshold int

	// Window defines the eligibility period (one issuance per period)
	Window *eligibility.Window

	// MaxRetries bounds how many times a conflicting transaction is retried.
	// Zero selects DefaultMaxRetries; use NoRetries to disable retrying.
	MaxRetries int

	// RetryBackoff is the initial wait between retries; it doubles on each attempt
	RetryBackoff time.Duration
}

// Recorder receives allocation events, typically to export metrics
type Recorder interface {
	ObserveIssuance(label string, rolled bool, duration time.Duration)
	ObserveRejection(reason string)
	ObserveRetry(operation string)
	SetState(state model.SystemState)
}

// Option customises an Engine
type Option func(*Engine)

// WithSource sets the random source used for selection
func WithSource(src allocator.Source) Option {
	return func(e *Engine) { e.src = src }
}

// WithClock sets the clock used for issuance timestamps and eligibility periods
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// Engine allocates reward categories to participants against a durable store
type Engine struct {
	store   db.Store
	cfg     Config
	logger  *zap.Logger
	src     allocator.Source
	now     func() time.Time
	metrics Recorder

	// resetMu keeps ResetAll from overlapping allocations issued through this engine.
	// Stores provide the same exclusion across processes via db.TxExclusive.
	resetMu sync.RWMutex

	// stateMu orders gauge updates; published is the highest total reported so far
	stateMu   sync.Mutex
	published int
}

// New validates the configuration and creates an engine. Call Init before use.
func New(store db.Store, cfg Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.Window == nil {
		cfg.Window = eligibility.Daily(time.Local)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	e := &Engine{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		src:     allocator.DefaultSource(),
		now:     time.Now,
		metrics: nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ValidateConfig checks the category set and threshold
func ValidateConfig(cfg Config) error {
	if cfg.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be positive, got %d", ErrConfiguration, cfg.Threshold)
	}
	if cfg.MaxRetries < NoRetries {
		return fmt.Errorf("%w: max retries must be NoRetries or at least zero, got %d", ErrConfiguration, cfg.MaxRetries)
	}
	if len(cfg.Categories) == 0 {
		return fmt.Errorf("%w: at least one category is required", ErrConfiguration)
	}

	seen := make(map[int]bool, len(cfg.Categories))
	capacity := 0
	for _, c := range cfg.Categories {
		if c.Number <= 0 {
			return fmt.Errorf("%w: category number must be positive, got %d", ErrConfiguration, c.Number)
		}
		if seen[c.Number] {
			return fmt.Errorf("%w: duplicate category number %d", ErrConfiguration, c.Number)
		}
		seen[c.Number] = true
		if c.Label == "" {
			return fmt.Errorf("%w: category %d has no label", ErrConfiguration, c.Number)
		}
		if c.MaxPerRound <= 0 {
			return fmt.Errorf("%w: category %d max per round must be positive, got %d", ErrConfiguration, c.Number, c.MaxPerRound)
		}
		capacity += c.MaxPerRound
	}

	// Every round must be able to reach its threshold
	if capacity < cfg.Threshold {
		return fmt.Errorf("%w: combined category quota %d is below the round threshold %d", ErrConfiguration, capacity, cfg.Threshold)
	}
	return nil
}

// Threshold returns the number of issuances per round
func (e *Engine) Threshold() int {
	return e.cfg.Threshold
}

// Categories returns the configured category set
func (e *Engine) Categories() []model.CategoryDef {
	out := make([]model.CategoryDef, len(e.cfg.Categories))
	copy(out, e.cfg.Categories)
	return out
}

// Init creates the initial state and round 0 ledger on an empty store.
// On an existing store it checks the stored counters against the threshold.
func (e *Engine) Init(ctx context.Context) error {
	e.resetMu.Lock()
	defer e.resetMu.Unlock()

	var state model.SystemState
	err := e.runWithRetry(ctx, "init", db.TxExclusive, func(ctx context.Context, tx db.Tx) error {
		var err error
		state, err = tx.GetSystemState(ctx)
		if errors.Is(err, db.ErrNotFound) {
			e.logger.Info("Initialising empty store", zap.Int("categories", len(e.cfg.Categories)))
			state = model.SystemState{}
			if err := tx.PutSystemState(ctx, state); err != nil {
				return err
			}
			return tx.SeedLedger(ctx, 0, e.cfg.Categories)
		}
		if err != nil {
			return err
		}

		if err := allocator.CheckState(state, e.cfg.Threshold); err != nil {
			return fmt.Errorf("%w: stored counters do not match round threshold %d: %w", ErrConfiguration, e.cfg.Threshold, err)
		}

		ledger, err := tx.GetLedger(ctx, state.CurrentRound)
		if err != nil {
			return err
		}
		if len(ledger) == 0 {
			e.logger.Warn("Current round has no ledger, seeding from configuration", zap.Int("round", state.CurrentRound))
			return tx.SeedLedger(ctx, state.CurrentRound, e.cfg.Categories)
		}
		e.warnOnDrift(state.CurrentRound, ledger)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrStorageFailure) {
			return err
		}
		return fmt.Errorf("%w: failed to initialise store: %w", ErrStorageFailure, err)
	}

	e.stateMu.Lock()
	e.published = state.TotalIssuances
	e.metrics.SetState(state)
	e.stateMu.Unlock()

	e.logger.Info("Engine initialised",
		zap.Int("total_issuances", state.TotalIssuances),
		zap.Int("current_round", state.CurrentRound),
		zap.Int("issuances_in_round", state.IssuancesInRound),
		zap.Int("threshold", e.cfg.Threshold))
	return nil
}

// IsEligible reports whether the participant may receive an issuance now
func (e *Engine) IsEligible(ctx context.Context, participantID string) (bool, error) {
	if participantID == "" {
		return false, ErrInvalidParticipant
	}

	var eligible bool
	err := e.runWithRetry(ctx, "eligibility", db.TxShared, func(ctx context.Context, tx db.Tx) error {
		var err error
		eligible, err = e.isEligible(ctx, tx, participantID, e.now())
		return err
	})
	if err != nil {
		return false, e.storageError("failed to check eligibility", err)
	}
	return eligible, nil
}

// Allocate selects a category for the participant and records the issuance.
// Eligibility, selection, the quota increment, the issuance record and any round
// rollover are committed together or not at all.
func (e *Engine) Allocate(ctx context.Context, participantID string) (model.Category, error) {
	if participantID == "" {
		return model.Category{}, ErrInvalidParticipant
	}

	e.resetMu.RLock()
	defer e.resetMu.RUnlock()

	started := time.Now()
	logger := e.logger.With(zap.String("participant_id", participantID))
	logger.Debug("Allocating category")

	var (
		result     model.Category
		transition allocator.Transition
	)
	err := e.runWithRetry(ctx, "allocate", db.TxShared, func(ctx context.Context, tx db.Tx) error {
		now := e.now()

		eligible, err := e.isEligible(ctx, tx, participantID, now)
		if err != nil {
			return err
		}
		if !eligible {
			return ErrIneligible
		}

		state, err := tx.GetSystemState(ctx)
		if err != nil {
			return fmt.Errorf("failed to read system state: %w", err)
		}

		tr, err := allocator.ApplyIssuance(state, e.cfg.Threshold)
		if err != nil {
			return err
		}

		ledger, err := tx.GetLedger(ctx, state.CurrentRound)
		if err != nil {
			return fmt.Errorf("failed to read ledger for round %d: %w", state.CurrentRound, err)
		}
		if len(ledger) == 0 {
			return fmt.Errorf("%w: no ledger rows for open round %d", allocator.ErrInvariantViolation, state.CurrentRound)
		}

		weights, err := allocator.RemainingWeights(ledger)
		if err != nil {
			return err
		}

		chosen, err := allocator.Select(weights, e.src)
		if err != nil {
			return err
		}

		if err := tx.IncrementCategory(ctx, state.CurrentRound, chosen.Number); err != nil {
			return err
		}

		issuance := model.Issuance{
			ID:             uuid.New().String(),
			ParticipantID:  participantID,
			CategoryNumber: chosen.Number,
			Label:          chosen.Label,
			Round:          tr.Round,
			IndexInRound:   tr.IndexInRound,
			IndexTotal:     tr.IndexTotal,
			IssuedAt:       now,
		}
		if err := tx.AppendIssuance(ctx, issuance); err != nil {
			return err
		}

		if err := tx.PutSystemState(ctx, tr.State); err != nil {
			return err
		}

		if tr.Rolled {
			if err := tx.SeedLedger(ctx, tr.State.CurrentRound, e.cfg.Categories); err != nil {
				return fmt.Errorf("failed to seed round %d: %w", tr.State.CurrentRound, err)
			}
		}

		for _, row := range ledger {
			if row.Number == chosen.Number {
				result = row
				result.CurrentCount++
			}
		}
		transition = tr
		return nil
	})
	if err != nil {
		return model.Category{}, e.allocationError(logger, err)
	}

	e.metrics.ObserveIssuance(result.Label, transition.Rolled, time.Since(started))
	e.publishState(transition.State)

	logger.Info("Category allocated",
		zap.Int("category", result.Number),
		zap.String("label", result.Label),
		zap.Int("round", transition.Round),
		zap.Int("index_in_round", transition.IndexInRound),
		zap.Int("index_total", transition.IndexTotal))
	if transition.Rolled {
		logger.Info("Round closed", zap.Int("closed_round", transition.Round), zap.Int("new_round", transition.State.CurrentRound))
	}

	return result, nil
}

// ResetAll clears every issuance and ledger and starts again from round 0.
// It waits for in-flight allocations on this engine and blocks new ones until done.
func (e *Engine) ResetAll(ctx context.Context) error {
	e.resetMu.Lock()
	defer e.resetMu.Unlock()

	err := e.runWithRetry(ctx, "reset", db.TxExclusive, func(ctx context.Context, tx db.Tx) error {
		if err := tx.Clear(ctx); err != nil {
			return err
		}
		if err := tx.PutSystemState(ctx, model.SystemState{}); err != nil {
			return err
		}
		return tx.SeedLedger(ctx, 0, e.cfg.Categories)
	})
	if err != nil {
		return e.storageError("failed to reset", err)
	}

	e.stateMu.Lock()
	e.published = 0
	e.metrics.SetState(model.SystemState{})
	e.stateMu.Unlock()

	e.logger.Warn("All counters reset")
	return nil
}

// publishState reports state unless a later issuance was already reported.
// Commits can finish out of order, and the gauges must not move backwards.
func (e *Engine) publishState(state model.SystemState) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if state.TotalIssuances <= e.published {
		return
	}
	e.published = state.TotalIssuances
	e.metrics.SetState(state)
}

// GetState returns the current counters
func (e *Engine) GetState(ctx context.Context) (model.SystemState, error) {
	var state model.SystemState
	err := e.runWithRetry(ctx, "state", db.TxShared, func(ctx context.Context, tx db.Tx) error {
		var err error
		state, err = tx.GetSystemState(ctx)
		return err
	})
	if err != nil {
		return model.SystemState{}, e.storageError("failed to read system state", err)
	}
	return state, nil
}

func (e *Engine) isEligible(ctx context.Context, tx db.Tx, participantID string, now time.Time) (bool, error) {
	since, err := e.cfg.Window.Start(now)
	if err != nil {
		return false, err
	}
	issued, err := tx.HasIssuanceSince(ctx, participantID, since)
	if err != nil {
		return false, err
	}
	return !issued, nil
}

// allocationError passes caller-facing errors through and folds everything else into ErrStorageFailure
func (e *Engine) allocationError(logger *zap.Logger, err error) error {
	switch {
	case errors.Is(err, ErrIneligible):
		e.metrics.ObserveRejection("ineligible")
		logger.Info("Participant not eligible")
		return err
	case errors.Is(err, ErrNoCapacity):
		e.metrics.ObserveRejection("no_capacity")
		logger.Error("No category has remaining capacity", zap.Error(err))
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		e.metrics.ObserveRejection("cancelled")
		logger.Debug("Allocation abandoned", zap.Error(err))
		return err
	}

	e.metrics.ObserveRejection("storage")
	logger.Error("Allocation failed", zap.Error(err))
	return e.storageError("allocation failed", err)
}

func (e *Engine) storageError(msg string, err error) error {
	if errors.Is(err, ErrStorageFailure) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, msg, err)
}

func (e *Engine) warnOnDrift(round int, ledger []model.Category) {
	stored := make(map[int]model.Category, len(ledger))
	for _, row := range ledger {
		stored[row.Number] = row
	}
	for _, def := range e.cfg.Categories {
		row, ok := stored[def.Number]
		if !ok || row.Label != def.Label || row.MaxPerRound != def.MaxPerRound {
			e.logger.Warn("Current round ledger differs from configuration; changes apply from the next round",
				zap.Int("round", round),
				zap.Int("category", def.Number))
		}
	}
	if len(stored) != len(e.cfg.Categories) {
		e.logger.Warn("Current round ledger has a different number of categories than configuration",
			zap.Int("round", round),
			zap.Int("stored", len(stored)),
			zap.Int("configured", len(e.cfg.Categories)))
	}
}

type nopRecorder struct{}

func (nopRecorder) ObserveIssuance(string, bool, time.Duration) {}
func (nopRecorder) ObserveRejection(string)                     {}
func (nopRecorder) ObserveRetry(string)                         {}
func (nopRecorder) SetState(model.SystemState)                  {}
