package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/alerts"
	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/escalate"
	"github.com/pulsewatch/pulsewatch/internal/monitor"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/record"
	"github.com/pulsewatch/pulsewatch/internal/remedy"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("pulsewatchd starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"targets", len(cfg.Targets),
		"channels", len(cfg.Channels),
		"interval", time.Duration(cfg.Interval),
		"remediation", cfg.Remediation.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Transition/event/attempt history. Absent history_path means no
	// persistence at all; the engine keeps only the active set in memory.
	var recorder record.Recorder = record.Nop{}
	if cfg.HistoryPath != "" {
		sq, err := record.OpenSQLite(cfg.HistoryPath, logger)
		if err != nil {
			slog.Error("failed to open history database", "path", cfg.HistoryPath, "err", err)
			os.Exit(1)
		}
		recorder = sq
		slog.Info("history recording enabled", "path", cfg.HistoryPath)
	}

	store := alerts.NewStore()

	channels := notify.BuildChannels(cfg.Channels, logger)
	if len(channels) == 0 {
		slog.Warn("no notification channels configured; events will only be logged")
	}
	dispatcher := notify.NewDispatcher(channels, cfg.QuietHours, logger)

	// Remediation executor, nil when disabled so nothing downstream can
	// invoke an action by accident.
	var executor *remedy.Executor
	if cfg.Remediation.Enabled {
		invoker := remedy.NewScriptInvoker(cfg.Remediation, logger)
		executor = remedy.NewExecutor(cfg.Targets, store, invoker, cfg.Remediation.MaxAttempts, logger)
		slog.Info("remediation enabled",
			"actions", len(cfg.Remediation.Actions),
			"max_attempts", cfg.Remediation.MaxAttempts,
		)
	}

	// Escalation sweeper re-fires unresolved critical alerts.
	sweeper := escalate.New(store, dispatcher, executor, recorder,
		time.Duration(cfg.Escalation.RepeatInterval),
		time.Duration(cfg.Escalation.SweepInterval),
		logger,
	)
	go sweeper.Run(ctx)

	// Sampling scheduler with the shell probe collector.
	collector := monitor.NewCommandCollector(time.Duration(cfg.CycleDeadline))
	scheduler := monitor.NewScheduler(cfg.Targets, collector, store, dispatcher, executor, recorder,
		monitor.Options{
			Interval:           time.Duration(cfg.Interval),
			CycleDeadline:      time.Duration(cfg.CycleDeadline),
			Workers:            cfg.Workers,
			NotifyDeescalation: cfg.NotifyDeescalation,
		},
		logger,
	)
	go scheduler.Run(ctx)

	// Status API + Prometheus metrics.
	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.New(store, dispatcher),
	}
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("pulsewatchd shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	if err := recorder.Close(); err != nil {
		slog.Error("failed to close history database", "err", err)
	}
}
