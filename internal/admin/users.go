package admin

import (
	"fmt"

	"github.com/darusc/Fileknight/internal/models"
	"github.com/spf13/cobra"
)

var (
	flagAdminRole bool
	flagYes       bool
)

type tokenOutput struct {
	Username  string `json:"username"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

var createUserCmd = &cobra.Command{
	Use:   "create-user <username>",
	Short: "Create a user and print their registration token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role := models.UserRoleUser
		if flagAdminRole {
			role = models.UserRoleAdmin
		}

		user, token, err := userService.Create(cmd.Context(), args[0], role)
		if err != nil {
			return fmt.Errorf("creating user: %w", err)
		}

		if flagJSON {
			return printJSON(cmd.OutOrStdout(), tokenOutput{
				Username:  user.Username,
				Token:     token.Token,
				ExpiresAt: token.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
			})
		}
		tokenInfo(cmd.OutOrStdout(), user.Username, token)
		return nil
	},
}

var resetUserCmd = &cobra.Command{
	Use:   "reset-user <username>",
	Short: "Force a password reset and print the new registration token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := userService.Reset(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("resetting user: %w", err)
		}

		if flagJSON {
			return printJSON(cmd.OutOrStdout(), tokenOutput{
				Username:  args[0],
				Token:     token.Token,
				ExpiresAt: token.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
			})
		}
		tokenInfo(cmd.OutOrStdout(), args[0], token)
		return nil
	},
}

var deleteUserCmd = &cobra.Command{
	Use:   "delete-user <username>",
	Short: "Delete a user with all of their files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagYes {
			return fmt.Errorf("refusing to delete %q and all of their files without --yes", args[0])
		}

		user, err := userService.GetByUsername(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("loading user: %w", err)
		}
		if err := userService.Delete(cmd.Context(), user); err != nil {
			return fmt.Errorf("deleting user: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", user.Username)
		return nil
	},
}

var listUsersCmd = &cobra.Command{
	Use:   "list-users",
	Short: "List all users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := userService.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing users: %w", err)
		}

		if flagJSON {
			return printJSON(cmd.OutOrStdout(), users)
		}
		userTable(cmd.OutOrStdout(), users)
		return nil
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage <username>",
	Short: "Show how much storage a user occupies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := userService.GetByUsername(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("loading user: %w", err)
		}
		usage, err := userService.Usage(cmd.Context(), user)
		if err != nil {
			return fmt.Errorf("computing usage: %w", err)
		}

		if flagJSON {
			return printJSON(cmd.OutOrStdout(), usage)
		}
		usageInfo(cmd.OutOrStdout(), user.Username, usage)
		return nil
	},
}

func init() {
	createUserCmd.Flags().BoolVar(&flagAdminRole, "admin", false, "Grant the admin role")
	deleteUserCmd.Flags().BoolVar(&flagYes, "yes", false, "Confirm the deletion")

	rootCmd.AddCommand(createUserCmd, resetUserCmd, deleteUserCmd, listUsersCmd, usageCmd)
}
