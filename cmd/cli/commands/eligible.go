package commands

import (
	"github.com/spf13/cobra"
)

// EligibleCmd creates the eligible command
func EligibleCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "eligible <participant_id>",
		Short: "Check whether a participant can spin right now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eligible, err := app.Engine.IsEligible(app.Ctx, args[0])
			if err != nil {
				return err
			}

			renderEligibility(cmd.OutOrStdout(), args[0], eligible)
			return nil
		},
	}
}
