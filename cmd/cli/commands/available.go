package commands

import (
	"github.com/spf13/cobra"

	"github.com/jakechorley/spin-wheel/pkg/core/services"
)

// AvailableCmd creates the available command
func AvailableCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "available",
		Short: "List categories with prizes left in the current round",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			available, err := services.GetAvailableCategories(app.Ctx, app.Store, app.Logger)
			if err != nil {
				return err
			}

			renderAvailable(cmd.OutOrStdout(), available)
			return nil
		},
	}
}
