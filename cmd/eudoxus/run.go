package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/klyr/eudoxus/internal/config"
	"github.com/klyr/eudoxus/internal/gateway"
	"github.com/klyr/eudoxus/internal/logging"
	"github.com/klyr/eudoxus/internal/observability"
	"github.com/klyr/eudoxus/internal/rules"
)

func newRunCmd() *cobra.Command {
	var configPath string
	var modeOverride string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the inspecting gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadForRun(configPath, modeOverride)
			if err != nil {
				return err
			}
			return runGateway(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&modeOverride, "mode", "", "Override the mode of every site: enforce|detect|off")

	return cmd
}

func newEnforceCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "enforce",
		Short: "Run the gateway with every site in enforce mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadForRun(configPath, config.ModeEnforce)
			if err != nil {
				return err
			}
			return runGateway(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	return cmd
}

func loadForRun(configPath, modeOverride string) (*config.Config, error) {
	if configPath == "" {
		return nil, errors.New("config path is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyModeOverride(cfg, modeOverride)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runGateway(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	var (
		reg     *prometheus.Registry
		metrics *observability.Metrics
	)
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		metrics = observability.NewMetrics(reg)
	}

	engine, err := rules.BuildEngine(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	for _, loadErr := range engine.LoadErrors() {
		logger.Warn("rules disabled by failed automaton", "automaton", loadErr.Automaton, "rules", loadErr.Rules)
	}

	gw, err := gateway.New(cfg, engine)
	if err != nil {
		return err
	}
	gw.SetLogger(logger)
	gw.SetMetrics(metrics)

	if cfg.Logging.DecisionLog != "" {
		decisions, closer, err := logging.OpenDecisionLog(cfg.ResolvePath(cfg.Logging.DecisionLog))
		if err != nil {
			return err
		}
		defer func() { _ = closer() }()
		gw.SetDecisionLogger(decisions)
	}

	metricsSrv := startMetricsServer(cfg, metrics, reg, logger)
	defer func() {
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(context.Background())
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           gw,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if cfg.Server.TLS.Enabled {
			serverErr <- srv.ListenAndServeTLS(cfg.ResolvePath(cfg.Server.TLS.CertFile), cfg.ResolvePath(cfg.Server.TLS.KeyFile))
			return
		}
		serverErr <- srv.ListenAndServe()
	}()
	logger.Info("gateway listening", "addr", cfg.Server.Listen, "sites", len(cfg.Sites), "automata", engine.Registry().Len())

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-signalCtx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func startMetricsServer(cfg *config.Config, metrics *observability.Metrics, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	if metrics == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	return srv
}

func applyModeOverride(cfg *config.Config, mode string) {
	if mode == "" {
		return
	}
	for i := range cfg.Sites {
		cfg.Sites[i].Mode = mode
	}
}
