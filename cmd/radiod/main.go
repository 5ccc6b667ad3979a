package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"radio-stack/internal/analysis"
	"radio-stack/internal/chat"
	"radio-stack/internal/harness"
	"radio-stack/internal/pipeline"
	"radio-stack/internal/registry"
	"radio-stack/internal/schedule"
	"radio-stack/internal/server"
	"radio-stack/shared/ai"
	"radio-stack/shared/config"
	"radio-stack/shared/logging"
	"radio-stack/shared/monitoring"
	"radio-stack/shared/news"
	"radio-stack/shared/notify"
	"radio-stack/shared/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(cfg.Logger.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	gateway, err := ai.NewGateway(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create provider gateway")
	}

	metrics := monitoring.NewMetrics(cfg.Metrics.Enabled)
	monitor := monitoring.NewMonitor()

	reg := registry.New(st, gateway, metrics, logger)
	if err := reg.SeedDefaults(); err != nil {
		logger.Fatal().Err(err).Msg("seed agent roster")
	}

	chatSvc := chat.NewService(st, gateway, reg, logger)
	sched := schedule.NewStore(st)
	newsClient := news.NewClient(&cfg.News, logger)
	notifier := notify.NewNotifier(&cfg.Telegram, st, metrics, logger)

	delivery, err := pipeline.NewFileDelivery(cfg.Store.AudioDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("create audio delivery")
	}

	pipe := pipeline.New(st, sched, reg, gateway, gateway, newsClient, delivery,
		notifier, metrics, cfg.Pipeline, logger)
	trigger := schedule.NewTrigger(sched, pipe, cfg.Schedule.TriggerWindow, logger)
	compiler := analysis.NewCompiler(st, chatSvc, reg, gateway, notifier,
		cfg.Analysis.CoordinatorAgent, cfg.Analysis.MaxConcurrent, logger)
	h := harness.New(reg, gateway, gateway, logger)

	srv := server.New(sched, trigger, pipe, reg, chatSvc, compiler, h,
		notifier, gateway, monitor, logger)

	// Prevent overlapping schedule checks.
	checker := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err = checker.AddFunc(cfg.Schedule.CheckSpec, func() {
		report, err := trigger.CheckNow(ctx, time.Now())
		if err != nil {
			monitor.RecordFailure()
			logger.Error().Err(err).Msg("schedule check failed")
			return
		}
		monitor.RecordSuccess()
		if report.Total > 0 {
			logger.Info().Int("due", report.Total).Int("succeeded", report.Succeeded).
				Int("failed", report.Failed).Msg("schedule check complete")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.Schedule.CheckSpec).Msg("add schedule check job")
	}
	checker.Start()
	logger.Info().Str("spec", cfg.Schedule.CheckSpec).Msg("schedule checker started")

	go func() {
		if err := srv.Run(cfg.Server.Port); err != nil {
			logger.Error().Err(err).Msg("HTTP server stopped")
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	<-checker.Stop().Done()
}
