package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jakechorley/spin-wheel/pkg/core/services"
)

// StatsCmd creates the stats command
func StatsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [round]",
		Short: "Show category counts for a round (defaults to the current round)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			round := -1
			if len(args) > 0 {
				var err error
				round, err = strconv.Atoi(args[0])
				if err != nil || round < 0 {
					return fmt.Errorf("round must be a non-negative number: %q", args[0])
				}
			}

			stats, err := services.GetRoundStats(app.Ctx, app.Store, app.Logger, round)
			if err != nil {
				return err
			}

			renderStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}
