// Package aggregate fans a monitoring query out to every configured
// source concurrently and merges the answers into one deduplicated,
// recency-ordered batch.
package aggregate

import (
	"context"
	"sort"
	"sync"
	"time"

	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
	"clientpulse/internal/pipeline/dedup"
	"clientpulse/internal/pipeline/sources"
)

// Result is the merged outcome of one entity search. SourceErrors is keyed
// by source name and records every source that failed; a partial result
// with some sources failed is still a success.
type Result struct {
	Items        []models.RawResult
	SourceErrors map[string]error
	UsedFallback bool
}

type Aggregator struct {
	adapters      []sources.Adapter
	fallback      sources.Adapter
	dedup         *dedup.Deduplicator
	sourceTimeout time.Duration
	log           logger.Logger
}

// New builds an Aggregator over the given adapters. The fallback adapter
// is consulted only when no real adapter succeeded (or none are
// configured), so a run never comes back empty-handed because of
// upstream outages.
func New(adapters []sources.Adapter, fallback sources.Adapter, dd *dedup.Deduplicator, sourceTimeout time.Duration, log logger.Logger) *Aggregator {
	if sourceTimeout <= 0 {
		sourceTimeout = 15 * time.Second
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Aggregator{
		adapters:      adapters,
		fallback:      fallback,
		dedup:         dd,
		sourceTimeout: sourceTimeout,
		log:           log,
	}
}

// Search queries all sources concurrently for one entity. Each source gets
// its own timeout so a slow source cannot stall the others. The merged
// batch is deduplicated and sorted newest-first, with undated items last.
func (a *Aggregator) Search(ctx context.Context, entity models.Entity, windowDays, maxResults int) Result {
	type fetchOutcome struct {
		source  string
		results []models.RawResult
		err     error
	}

	outcomes := make(chan fetchOutcome, len(a.adapters))
	var wg sync.WaitGroup

	for _, adapter := range a.adapters {
		wg.Add(1)
		go func(ad sources.Adapter) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, a.sourceTimeout)
			defer cancel()

			results, err := ad.Fetch(callCtx, entity, windowDays, maxResults)
			outcomes <- fetchOutcome{source: ad.Source().Name, results: results, err: err}
		}(adapter)
	}

	wg.Wait()
	close(outcomes)

	res := Result{SourceErrors: make(map[string]error)}
	merged := make([]models.RawResult, 0)
	succeeded := 0

	for out := range outcomes {
		if out.err != nil {
			res.SourceErrors[out.source] = out.err
			a.log.Warn("source failed during aggregation", map[string]interface{}{
				"source": out.source,
				"entity": entity.Name,
				"error":  out.err.Error(),
			})
			continue
		}
		succeeded++
		merged = append(merged, out.results...)
	}

	// Fallback covers outages and empty configuration only. A healthy
	// source legitimately returning nothing stays empty: synthetic items
	// must never reach classification when real answers exist.
	if succeeded == 0 && a.fallback != nil {
		fbResults, err := a.fallback.Fetch(ctx, entity, windowDays, maxResults)
		if err == nil {
			merged = fbResults
			res.UsedFallback = true
			a.log.Info("no source succeeded, using fallback source", map[string]interface{}{
				"entity":  entity.Name,
				"results": len(fbResults),
			})
		}
	}

	merged = a.dedup.DeduplicateBatch(merged)
	sortByRecency(merged)
	res.Items = merged
	return res
}

// sortByRecency orders newest-published first. Items without a published
// date sort after every dated item; ties keep their merge order.
func sortByRecency(items []models.RawResult) {
	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := items[i].PublishedAt, items[j].PublishedAt
		if pi.IsZero() {
			return false
		}
		if pj.IsZero() {
			return true
		}
		return pi.After(pj)
	})
}
