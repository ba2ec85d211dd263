package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ResetCmd creates the reset command
func ResetCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all issuances and start again from round 0",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return fmt.Errorf("reset deletes every issuance and round; re-run with --yes to confirm")
			}

			if err := app.Engine.ResetAll(app.Ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n✓ All counters reset, round 0 is open\n\n")
			return nil
		},
	}

	cmd.Flags().Bool("yes", false, "Confirm the reset")

	return cmd
}
