package commands

import (
	"github.com/spf13/cobra"

	"github.com/jakechorley/spin-wheel/pkg/core/services"
)

// HistoryCmd creates the history command
func HistoryCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <participant_id>",
		Short: "Show a participant's past prizes, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			issuances, err := services.GetParticipantHistory(app.Ctx, app.Store, app.Logger, args[0], limit)
			if err != nil {
				return err
			}

			loc, err := app.Cfg.Location()
			if err != nil {
				return err
			}

			renderHistory(cmd.OutOrStdout(), args[0], issuances, loc)
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of entries to show (0 for all)")

	return cmd
}
