package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/spin-wheel/pkg/core/engine"
)

// SpinCmd creates the spin command
func SpinCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "spin <participant_id>",
		Short: "Spin the wheel for a participant and record the prize",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			participantID := args[0]
			app.Logger.Debug("spin command", zap.String("participant_id", participantID))

			cat, err := app.Engine.Allocate(app.Ctx, participantID)
			if errors.Is(err, engine.ErrIneligible) {
				renderEligibility(cmd.OutOrStdout(), participantID, false)
				return nil
			}
			if err != nil {
				return fmt.Errorf("spin failed: %w", err)
			}

			renderAllocation(cmd.OutOrStdout(), participantID, cat)
			return nil
		},
	}
}
