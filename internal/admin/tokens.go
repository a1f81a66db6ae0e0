package admin

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepTokensCmd = &cobra.Command{
	Use:   "sweep-tokens",
	Short: "Remove expired refresh tokens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := tokenService.SweepExpired(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweeping tokens: %w", err)
		}

		if flagJSON {
			return printJSON(cmd.OutOrStdout(), map[string]int64{"removed": removed})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired refresh token(s)\n", removed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepTokensCmd)
}
