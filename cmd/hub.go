package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"voxhub/pkg/config"
	"voxhub/pkg/hub"
	"voxhub/pkg/logger"

	"github.com/spf13/cobra"
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Run the assistant hub",
	Long:  "Runs VoxHub with the configured drivers, accessories and listeners, plus health and readiness endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.hub")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := hub.NewService(runCtx, cfg, log)
		if err != nil {
			log.Error("Failed to initialize hub service", "error", err)
			return
		}

		log.Info("Hub started", "uid", cfg.UID, "server_mode", cfg.ServerMode, "drivers", cfg.DriversToLoad(), "resolver", cfg.Resolver.Provider)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Hub runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(hubCmd)
}
