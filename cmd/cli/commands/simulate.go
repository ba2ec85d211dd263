package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jakechorley/spin-wheel/pkg/core/engine"
	"github.com/jakechorley/spin-wheel/pkg/core/model"
)

// Allocator is the engine operation the simulation drives
type Allocator interface {
	Allocate(ctx context.Context, participantID string) (model.Category, error)
}

// SimulationResult counts the outcomes of a simulated batch of spins
type SimulationResult struct {
	Attempted  int
	Allocated  int
	Ineligible int
	Failed     int
	ByCategory map[int]int
}

// SimulateCmd creates the simulate command
func SimulateCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Spin for many generated participants concurrently and summarise the prizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("participants")
			concurrency, _ := cmd.Flags().GetInt("concurrency")
			prefix, _ := cmd.Flags().GetString("prefix")

			if count <= 0 {
				return fmt.Errorf("participants must be positive, got %d", count)
			}

			ids := make([]string, count)
			for i := range ids {
				ids[i] = fmt.Sprintf("%s-%d", prefix, i+1)
			}

			result, err := runSimulation(app.Ctx, app.Engine, app.Logger, ids, concurrency)
			if err != nil {
				return err
			}

			renderSimulation(cmd.OutOrStdout(), result, app.Engine.Categories())
			return nil
		},
	}

	cmd.Flags().Int("participants", 100, "Number of participants to spin for")
	cmd.Flags().Int("concurrency", 8, "Maximum concurrent spins")
	cmd.Flags().String("prefix", "sim", "Participant ID prefix")

	return cmd
}

// runSimulation allocates once per participant ID with bounded concurrency.
// Ineligible and failed spins are counted; only cancellation stops the run.
func runSimulation(ctx context.Context, a Allocator, logger *zap.Logger, ids []string, concurrency int) (*SimulationResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	result := &SimulationResult{ByCategory: make(map[int]int)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, id := range ids {
		g.Go(func() error {
			cat, err := a.Allocate(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			result.Attempted++

			switch {
			case err == nil:
				result.Allocated++
				result.ByCategory[cat.Number]++
			case errors.Is(err, engine.ErrIneligible):
				result.Ineligible++
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				result.Failed++
				logger.Warn("Simulated spin failed", zap.String("participant_id", id), zap.Error(err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("simulation interrupted: %w", err)
	}
	return result, nil
}
