package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/graphline/internal/audit"
	"github.com/roach88/graphline/internal/config"
	"github.com/roach88/graphline/internal/graph"
	"github.com/roach88/graphline/internal/server"
	"github.com/roach88/graphline/internal/session"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath  string
	ListenAddr  string
	MetricsAddr string
	AuditDB     string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the graph server",
		Long: `Start the TCP graph server.

The server holds one shared graph in memory and speaks the line
protocol with every connected client. Configuration comes from an
optional YAML file; flags override file values.

Example:
  graphline serve
  graphline serve --config ./graphline.yaml --verbose
  graphline serve --listen :50000 --metrics :9100 --audit-db ./audit.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.ListenAddr, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics", "", "Prometheus endpoint address (overrides config)")
	cmd.Flags().StringVar(&opts.AuditDB, "audit-db", "", "SQLite audit journal path (overrides config)")

	return cmd
}

// resolveConfig merges the config file (if any) with flag overrides.
func resolveConfig(opts *ServeOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if opts.ListenAddr != "" {
		cfg.ListenAddr = opts.ListenAddr
	}
	if opts.MetricsAddr != "" {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if opts.AuditDB != "" {
		cfg.AuditDB = opts.AuditDB
	}
	return cfg, nil
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := resolveConfig(opts)
	if err != nil {
		return failf(ExitCommandError, "load config: %w", err)
	}

	var recorder session.Recorder = session.NopRecorder{}
	if cfg.AuditDB != "" {
		journal, err := audit.Open(cfg.AuditDB)
		if err != nil {
			return failf(ExitCommandError, "open audit journal: %w", err)
		}
		defer func() {
			if closeErr := journal.Close(); closeErr != nil {
				slog.Error("error closing audit journal", "error", closeErr)
			}
		}()
		slog.Info("audit journal ready", "path", cfg.AuditDB)
		recorder = journal
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	metrics := server.NewMetrics()
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			slog.Info("metrics endpoint listening", "addr", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics endpoint failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics endpoint shutdown failed", "error", err)
			}
		}()
	}

	srv := server.New(graph.New(), server.Config{
		ListenAddr:  cfg.ListenAddr,
		IdleTimeout: cfg.IdleTimeout,
		Logger:      logger,
		Recorder:    recorder,
		Metrics:     metrics,
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Server listening on %s. Press Ctrl-C to stop.\n", cfg.ListenAddr)

	if err := srv.ListenAndServe(ctx); err != nil {
		return failf(ExitFailure, "server error: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
