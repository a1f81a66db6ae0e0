package admin

import (
	"context"
	"fmt"
	"os"

	"github.com/darusc/Fileknight/internal/config"
	"github.com/darusc/Fileknight/internal/database"
	"github.com/darusc/Fileknight/internal/services"
	"github.com/darusc/Fileknight/internal/storage"
	"github.com/darusc/Fileknight/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	flagJSON bool

	userService  *services.UserService
	tokenService *services.TokenService

	// setup wires the services the commands use.
	setup = setupServices
)

var rootCmd = &cobra.Command{
	Use:   "fileknight-admin",
	Short: "Fileknight administration",
	Long: `fileknight-admin manages users and sessions directly against the
Fileknight database and storage, using the same environment as the server.

  fileknight-admin create-user alice        Create a user and print the registration token
  fileknight-admin reset-user alice         Force a password reset
  fileknight-admin list-users               List all users
  fileknight-admin sweep-tokens             Remove expired refresh tokens`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
}

func setupServices(ctx context.Context) error {
	cfg := config.Load()
	// Keep stdout for command output.
	logger.SetOutput(os.Stderr, logger.ParseLevel(cfg.App.LogLevel))

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	store, err := storage.New(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	files := services.NewFileService(db, store)
	dirs := services.NewDirectoryService(db, store, files)
	tokenService = services.NewTokenService(db, cfg.Tokens.RefreshLifetime)
	userService = services.NewUserService(db, dirs, tokenService, cfg.Tokens)
	return nil
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
