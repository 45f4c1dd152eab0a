package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/tinyhttpd/internal/logger"
	"github.com/marmos91/tinyhttpd/pkg/config"
	"github.com/marmos91/tinyhttpd/pkg/server"
)

var serveFlags struct {
	port int
	root string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&serveFlags.port, "port", "p", -1, "override adapters.http.port")
	serveCmd.Flags().StringVarP(&serveFlags.root, "root", "r", "", "override adapters.http.document_root")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Adapters.HTTP.Port = serveFlags.port
	}
	if serveFlags.root != "" {
		cfg.Adapters.HTTP.DocumentRoot = serveFlags.root
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return err
	}

	logger.Info("tinyhttpd %s (commit %s, built %s)", Version, Commit, BuildTime)

	metricsResult := config.InitializeMetrics(cfg)

	adapters, err := config.CreateAdapters(cfg, metricsResult.HTTPMetrics)
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server.ShutdownTimeout)
	for _, adp := range adapters {
		if err := srv.AddAdapter(adp); err != nil {
			return err
		}
	}
	if metricsResult.Server != nil {
		if err := srv.AddAuxServer("metrics", metricsResult.Server); err != nil {
			return err
		}
	}

	logger.Info("tinyhttpd starting. Press Ctrl+C to stop.")

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}
