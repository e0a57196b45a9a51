// cmd/monitor-runner/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"clientpulse/internal/common/aws"
	"clientpulse/internal/common/config"
	"clientpulse/internal/common/database"
	"clientpulse/internal/common/logger"
	"clientpulse/internal/common/observability"
	"clientpulse/internal/models"
	"clientpulse/internal/pipeline/aggregate"
	"clientpulse/internal/pipeline/classify"
	"clientpulse/internal/pipeline/dedup"
	"clientpulse/internal/pipeline/engine"
	"clientpulse/internal/pipeline/enrich"
	"clientpulse/internal/pipeline/notify"
	"clientpulse/internal/pipeline/resilience"
	"clientpulse/internal/pipeline/sources"
	"clientpulse/internal/pipeline/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting monitor runner...",
		zap.String("environment", cfg.App.Environment),
		zap.Int("sources", len(cfg.Sources)),
	)

	obs := observability.New("monitor-runner")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 10, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Resilience registry, optionally restored from Redis ---
	registry := resilience.NewRegistry(resilience.Options{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		Lookback:         cfg.Resilience.Lookback(),
		Cooldown:         cfg.Resilience.Cooldown(),
	}, log)

	sourceConfigs := toSourceModels(cfg.Sources)
	for _, src := range sourceConfigs {
		registry.Register(src)
	}

	var snapshots *resilience.RedisSnapshotStore
	if cfg.Resilience.SnapshotEnabled {
		redisClient, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			zapLog.Warn("redis unavailable, resilience snapshots disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			snapshots = resilience.NewRedisSnapshotStore(redisClient.Client)
			if err := registry.Restore(ctx, snapshots); err != nil {
				zapLog.Warn("could not restore resilience state", zap.Error(err))
			} else {
				zapLog.Info("resilience state restored from redis")
			}
		}
	}

	// --- Pipeline wiring ---
	caller := sources.NewCaller(registry, sources.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay(),
	}, log)
	adapters := sources.BuildAdapters(sourceConfigs, caller, cfg.Engine.SourceTimeout(), log)

	dd := dedup.New(cfg.Dedup.URLWindow(), cfg.Dedup.TitleWindow(), log)
	aggregator := aggregate.New(adapters, sources.NewMockAdapter(), dd, cfg.Engine.SourceTimeout(), log)

	providers := []classify.Classifier{}
	if cfg.Classifier.BaseURL != "" {
		providers = append(providers, classify.NewLLMProvider(cfg.Classifier, log))
	}
	providers = append(providers, classify.NewRuleProvider())
	chain := classify.NewChain(log, providers...)

	var enricher enrich.Enricher
	if cfg.Integrations.CRM.BaseURL != "" {
		enricher = enrich.NewCRMEnricher(cfg.Integrations, log)
	}

	recordStore := store.NewRecordStore(pg.DB, log)
	rawStore := store.NewRawStore(esClient.Client, cfg.Database.Elasticsearch.RawIndex, log)

	var emailSender notify.EmailSender
	if cfg.Integrations.AWS.SES.Enabled {
		ses, err := aws.NewSESClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Warn("SES client init failed, email channel disabled", zap.Error(err))
		} else {
			emailSender = ses
		}
	}
	var smsSender notify.SMSSender
	if cfg.Integrations.AWS.SNS.Enabled {
		sns, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Warn("SNS client init failed, SMS channel disabled", zap.Error(err))
		} else {
			smsSender = sns
		}
	}

	dispatcher := notify.NewDispatcher(recordStore, emailSender, smsSender, notify.DispatcherConfig{
		FromEmail:   cfg.Integrations.AWS.SES.FromEmail,
		SMSSenderID: cfg.Integrations.AWS.SNS.DefaultSMSSenderID,
		EmailOn:     emailSender != nil,
		SMSOn:       smsSender != nil,
	}, log)

	tracker := engine.NewTracker(recordStore, log)
	eng := engine.New(recordStore, rawStore, aggregator, dd, chain, enricher, dispatcher, tracker,
		engine.Options{
			Workers:           cfg.Engine.WorkerPoolSize,
			WindowDays:        cfg.Engine.WindowDays,
			MaxResults:        cfg.Engine.MaxResultsPerSource,
			InsightsThreshold: cfg.Classifier.InsightsThreshold,
		}, log)

	// --- Metrics and pprof endpoint ---
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("metrics server listening", zap.String("address", cfg.Server.MetricsAddress))
		if err := http.ListenAndServe(cfg.Server.MetricsAddress, nil); err != nil {
			zapLog.Error("metrics server stopped", zap.Error(err))
		}
	}()

	// --- Run: one-shot or on an interval ---
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		zapLog.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	persist := func() {
		if snapshots == nil {
			return
		}
		persistCtx, persistCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer persistCancel()
		if err := registry.Persist(persistCtx, snapshots); err != nil {
			zapLog.Warn("could not persist resilience state", zap.Error(err))
		}
	}

	runOnce := func() {
		start := time.Now()
		run, err := eng.Run(runCtx)
		status := string(run.Status)
		obs.RecordRun(ctx, status)
		obs.RecordRunDuration(ctx, time.Since(start), status)
		if err != nil {
			zapLog.Error("monitoring run failed", zap.String("run", run.ID), zap.Error(err))
		}
		persist()
	}

	if cfg.Engine.Interval() <= 0 {
		runOnce()
		return
	}

	zapLog.Info("running on interval", zap.Duration("interval", cfg.Engine.Interval()))
	runOnce()
	ticker := time.NewTicker(cfg.Engine.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			zapLog.Info("monitor runner stopped")
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

func toSourceModels(cfgs []config.SourceConfig) []models.SourceConfig {
	out := make([]models.SourceConfig, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, models.SourceConfig{
			ID:          c.ID,
			TenantID:    c.TenantID,
			Type:        models.SourceType(c.Type),
			Name:        c.Name,
			BaseURL:     c.BaseURL,
			APIKey:      c.APIKey,
			EngineID:    c.EngineID,
			Enabled:     c.Enabled,
			DailyBudget: c.DailyBudget,
		})
	}
	return out
}
