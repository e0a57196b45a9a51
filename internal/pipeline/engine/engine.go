// Package engine orchestrates one monitoring pass: list entities, fan
// each one through search, dedup, classification, enrichment, and
// notification, and account for it all in a JobRun. Entity failures are
// isolated; only failing to list entities fails the run.
package engine

import (
	"context"
	"sync"
	"time"

	"clientpulse/internal/common/errors"
	"clientpulse/internal/common/logger"
	"clientpulse/internal/common/metrics"
	"clientpulse/internal/models"
	"clientpulse/internal/pipeline/aggregate"
	"clientpulse/internal/pipeline/dedup"
	"clientpulse/internal/pipeline/enrich"
	"clientpulse/internal/pipeline/notify"
)

// RecordStore is the system-of-record surface the engine needs.
type RecordStore interface {
	dedup.HistoryLookup
	ListMonitoredEntities(ctx context.Context) ([]models.Entity, error)
	CreateEvent(ctx context.Context, entity models.Entity, ev models.ClassifiedEvent, insights *models.Insights, enrichment *models.EnrichmentContext) (string, error)
	RecipientsFor(ctx context.Context, tenantID string) ([]models.Recipient, error)
}

// RawStore is the optional audit archive for fetched items.
type RawStore interface {
	SaveRawResults(ctx context.Context, jobRunID string, entity models.Entity, results []models.RawResult) ([]string, error)
	MarkProcessed(ctx context.Context, docID, eventID string) error
	MarkFailed(ctx context.Context, docID, reason string) error
}

// Searcher runs the concurrent source fan-out for one entity.
type Searcher interface {
	Search(ctx context.Context, entity models.Entity, windowDays, maxResults int) aggregate.Result
}

// ClassifierChain resolves category and scores for each item.
type ClassifierChain interface {
	Classify(ctx context.Context, entity models.Entity, raw models.RawResult) (models.ClassificationResult, error)
	GenerateInsights(ctx context.Context, entity models.Entity, ev models.ClassifiedEvent) (models.Insights, error)
}

// Notifier delivers one created event to its recipients.
type Notifier interface {
	Dispatch(ctx context.Context, entity models.Entity, eventID string, ev models.ClassifiedEvent, insights *models.Insights, decisions []models.NotificationDecision) []models.Notification
}

// Options are the orchestration knobs.
type Options struct {
	Workers           int
	WindowDays        int
	MaxResults        int
	InsightsThreshold float64
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.WindowDays <= 0 {
		o.WindowDays = 7
	}
	if o.MaxResults <= 0 {
		o.MaxResults = 10
	}
	if o.InsightsThreshold <= 0 {
		o.InsightsThreshold = 0.7
	}
	return o
}

type Engine struct {
	store    RecordStore
	raw      RawStore
	searcher Searcher
	dedup    *dedup.Deduplicator
	chain    ClassifierChain
	enricher enrich.Enricher
	notifier Notifier
	tracker  *Tracker
	opts     Options
	log      logger.Logger
}

func New(store RecordStore, raw RawStore, searcher Searcher, dd *dedup.Deduplicator, chain ClassifierChain, enricher enrich.Enricher, notifier Notifier, tracker *Tracker, opts Options, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Engine{
		store:    store,
		raw:      raw,
		searcher: searcher,
		dedup:    dd,
		chain:    chain,
		enricher: enricher,
		notifier: notifier,
		tracker:  tracker,
		opts:     opts.withDefaults(),
		log:      log,
	}
}

// entityOutcome is the per-entity accounting rolled up into the JobRun.
type entityOutcome struct {
	itemsFound int
	itemsNew   int
}

// Run executes one monitoring pass over all active entities with a fixed
// worker pool. The returned JobRun is terminal. Only a failure to list
// entities returns an error; everything else degrades per entity.
func (e *Engine) Run(ctx context.Context) (*models.JobRun, error) {
	start := time.Now()
	run := e.tracker.Start(ctx)

	e.log.Info("monitoring run started", map[string]interface{}{
		"run":     run.ID,
		"workers": e.opts.Workers,
	})

	entities, err := e.store.ListMonitoredEntities(ctx)
	if err != nil {
		orchErr := errors.NewOrchestrationError("cannot list monitored entities", err)
		e.tracker.Fail(ctx, run, orchErr)
		metrics.MonitoringRuns.WithLabelValues(string(models.JobRunFailed)).Inc()
		return run, orchErr
	}

	jobs := make(chan models.Entity)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entity := range jobs {
				outcome := e.processEntity(ctx, run.ID, entity)
				mu.Lock()
				run.EntitiesProcessed++
				run.ItemsFound += outcome.itemsFound
				run.ItemsNew += outcome.itemsNew
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, entity := range entities {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- entity:
		}
	}
	close(jobs)
	wg.Wait()

	if ctx.Err() != nil {
		e.tracker.Fail(ctx, run, errors.NewOrchestrationError("run cancelled", ctx.Err()))
		metrics.MonitoringRuns.WithLabelValues(string(models.JobRunFailed)).Inc()
	} else {
		e.tracker.Complete(ctx, run)
		metrics.MonitoringRuns.WithLabelValues(string(models.JobRunCompleted)).Inc()
	}
	metrics.MonitoringRunDuration.Observe(time.Since(start).Seconds())

	e.log.Info("monitoring run finished", map[string]interface{}{
		"run":               run.ID,
		"status":            string(run.Status),
		"entitiesProcessed": run.EntitiesProcessed,
		"itemsFound":        run.ItemsFound,
		"itemsNew":          run.ItemsNew,
		"duration":          time.Since(start).String(),
	})
	return run, nil
}

// processEntity runs the full per-entity pipeline. Nothing in here can
// fail the run: each stage degrades and is logged.
func (e *Engine) processEntity(ctx context.Context, runID string, entity models.Entity) entityOutcome {
	log := e.log.With(map[string]interface{}{
		"run":    runID,
		"entity": entity.Name,
	})

	res := e.searcher.Search(ctx, entity, e.opts.WindowDays, e.opts.MaxResults)
	outcome := entityOutcome{itemsFound: len(res.Items)}

	for source, srcErr := range res.SourceErrors {
		log.Warn("source failed for entity", map[string]interface{}{
			"source": source,
			"error":  srcErr.Error(),
		})
	}

	rawIDs := e.archiveRaw(ctx, runID, entity, res.Items, log)

	enrichment := e.enrichEntity(ctx, entity, log)

	recipients, err := e.store.RecipientsFor(ctx, entity.TenantID)
	if err != nil {
		log.Error("failed to load recipients, skipping notifications", map[string]interface{}{
			"error": err.Error(),
		})
		recipients = nil
	}

	for i, item := range res.Items {
		docID := ""
		if i < len(rawIDs) {
			docID = rawIDs[i]
		}
		if e.processItem(ctx, entity, item, docID, enrichment, recipients, log) {
			outcome.itemsNew++
		}
	}
	return outcome
}

// processItem takes one normalized item through history dedup,
// classification, event creation, and notification. Returns true when a
// new event was created.
func (e *Engine) processItem(ctx context.Context, entity models.Entity, item models.RawResult, docID string, enrichment *models.EnrichmentContext, recipients []models.Recipient, log logger.Logger) bool {
	dupID, dup, err := e.dedup.IsDuplicateOfHistory(ctx, entity.ID, item.Title, item.URL, item.SourceName, e.store)
	if err != nil {
		log.Error("history dedup lookup failed, skipping item", map[string]interface{}{
			"title": item.Title,
			"error": err.Error(),
		})
		e.markRawFailed(ctx, docID, "dedup lookup failed", log)
		return false
	}
	if dup {
		e.markRawFailed(ctx, docID, "duplicate of "+dupID, log)
		return false
	}

	classification, err := e.chain.Classify(ctx, entity, item)
	if err != nil {
		log.Error("classification failed for item", map[string]interface{}{
			"title": item.Title,
			"error": err.Error(),
		})
		e.markRawFailed(ctx, docID, "classification failed", log)
		return false
	}
	ev := models.ClassifiedEvent{Raw: item, Classification: classification}

	decisions := notify.Decide(ev, recipients)
	willNotify := false
	for _, d := range decisions {
		if d.Notify {
			willNotify = true
			break
		}
	}

	// Insights are a provider call per event; only spend it when the
	// event is both high-relevance and actually going to someone.
	var insights *models.Insights
	if willNotify && classification.RelevanceScore >= e.opts.InsightsThreshold {
		if ins, err := e.chain.GenerateInsights(ctx, entity, ev); err == nil {
			insights = &ins
		} else {
			log.Warn("insight generation failed", map[string]interface{}{
				"title": item.Title,
				"error": err.Error(),
			})
		}
	}

	eventID, err := e.store.CreateEvent(ctx, entity, ev, insights, enrichment)
	if err != nil {
		log.Error("event creation failed", map[string]interface{}{
			"title": item.Title,
			"error": err.Error(),
		})
		e.markRawFailed(ctx, docID, "event store write failed", log)
		return false
	}
	metrics.EventsCreated.WithLabelValues(classification.Category).Inc()

	if docID != "" && e.raw != nil {
		if err := e.raw.MarkProcessed(ctx, docID, eventID); err != nil {
			log.Warn("failed to mark raw document processed", map[string]interface{}{
				"doc":   docID,
				"error": err.Error(),
			})
		}
	}

	e.notifier.Dispatch(ctx, entity, eventID, ev, insights, decisions)
	return true
}

func (e *Engine) archiveRaw(ctx context.Context, runID string, entity models.Entity, items []models.RawResult, log logger.Logger) []string {
	if e.raw == nil || len(items) == 0 {
		return nil
	}
	ids, err := e.raw.SaveRawResults(ctx, runID, entity, items)
	if err != nil {
		log.Error("raw archive write failed, continuing without audit trail", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return ids
}

func (e *Engine) enrichEntity(ctx context.Context, entity models.Entity, log logger.Logger) *models.EnrichmentContext {
	if e.enricher == nil {
		return nil
	}
	enrichment, err := e.enricher.Enrich(ctx, entity)
	if err != nil {
		log.Warn("CRM enrichment failed, continuing without it", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return enrichment
}

func (e *Engine) markRawFailed(ctx context.Context, docID, reason string, log logger.Logger) {
	if docID == "" || e.raw == nil {
		return
	}
	if err := e.raw.MarkFailed(ctx, docID, reason); err != nil {
		log.Warn("failed to mark raw document failed", map[string]interface{}{
			"doc":   docID,
			"error": err.Error(),
		})
	}
}
