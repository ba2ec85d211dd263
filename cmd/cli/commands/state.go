package commands

import (
	"github.com/spf13/cobra"
)

// StateCmd creates the state command
func StateCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the issuance counters and current round",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := app.Engine.GetState(app.Ctx)
			if err != nil {
				return err
			}

			renderState(cmd.OutOrStdout(), state, app.Engine.Threshold())
			return nil
		},
	}
}
