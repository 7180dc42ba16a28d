package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatdispatch/internal/app"
	"github.com/vovakirdan/chatdispatch/internal/config"
	applog "github.com/vovakirdan/chatdispatch/internal/log"
)

var version = "dev"

type serveFlags struct {
	configPath string
	overrides  config.Config
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &serveFlags{}

	root := &cobra.Command{
		Use:           "chatdispatch",
		Short:         "Real-time chat dispatch server",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
	bindServeFlags(root, flags)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
	bindServeFlags(serve, flags)

	root.AddCommand(serve, &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

func bindServeFlags(cmd *cobra.Command, flags *serveFlags) {
	cmd.Flags().StringVar(&flags.configPath, "config", "", "path to config file (default ./config.yaml)")
	cmd.Flags().StringVar(&flags.overrides.Addr, "addr", "", "HTTP listen address")
	cmd.Flags().DurationVar(&flags.overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	cmd.Flags().DurationVar(&flags.overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	cmd.Flags().StringVar(&flags.overrides.Log.Level, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&flags.overrides.Log.Format, "log-format", "", "log format (console, json)")
}

func runServe(parent context.Context, flags *serveFlags) error {
	bootLogger := applog.New("info", "console")

	cfg, cfgPath, err := config.Load(bootLogger, flags.configPath)
	if err != nil {
		bootLogger.Error().Err(err).Str("path", cfgPath).Msg("failed to load config")
		return err
	}
	cfg.UpdateFrom(flags.overrides)

	logger := applog.New(cfg.Log.Level, cfg.Log.Format)
	logger.Info().Str("config", cfgPath).Str("version", version).Msg("configuration loaded")

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize application")
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting chatdispatch server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
