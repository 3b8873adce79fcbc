package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiredraw-server/internal/app"
	"github.com/vovakirdan/wiredraw-server/internal/config"
	applog "github.com/vovakirdan/wiredraw-server/internal/log"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "wiredraw-server",
		Short:         "Room-scoped realtime relay with per-room history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newTokenCommand())
	return root
}

func newServeCommand() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLog := applog.New("info")
			cfg, usedPath, err := config.Load(bootLog, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.UpdateFrom(overrides)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger := applog.New(cfg.LogLevel)
			logger.Info().Str("config", usedPath).Str("addr", cfg.Addr).Msg("starting wiredraw server")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("server exited with error: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&overrides.HistoryDriver, "history-driver", "", "history driver (sqlite, memory)")
	cmd.Flags().StringVar(&overrides.DatabasePath, "db", "", "sqlite database path")
	return cmd
}
