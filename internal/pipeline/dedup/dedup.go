// Package dedup implements the two duplicate-suppression passes of the
// monitoring pipeline: intra-batch (before persistence) and cross-history
// (before creating a new event). The first occurrence of a duplicate
// group always survives.
package dedup

import (
	"context"
	"strings"
	"time"

	"clientpulse/internal/common/logger"
	"clientpulse/internal/common/metrics"
	"clientpulse/internal/models"
	"clientpulse/internal/pipeline/sources"
)

// HistoryLookup is the injected record-store capability for the
// cross-history pass. An empty source matches events from any source.
type HistoryLookup interface {
	FindEventsSince(ctx context.Context, entityID, source string, since time.Time) ([]models.StoredEvent, error)
}

type Deduplicator struct {
	urlWindow   time.Duration
	titleWindow time.Duration
	clock       func() time.Time
	log         logger.Logger
}

// New builds a Deduplicator with the given history windows. The URL window
// (default 7 days) is deliberately wider than the title window (default
// 24h): title matching additionally requires the same source, to avoid
// suppressing unrelated outlets reporting similar headlines.
func New(urlWindow, titleWindow time.Duration, log logger.Logger) *Deduplicator {
	if urlWindow <= 0 {
		urlWindow = 7 * 24 * time.Hour
	}
	if titleWindow <= 0 {
		titleWindow = 24 * time.Hour
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Deduplicator{
		urlWindow:   urlWindow,
		titleWindow: titleWindow,
		clock:       time.Now,
		log:         log,
	}
}

// WithClock overrides the time source, for tests.
func (d *Deduplicator) WithClock(clock func() time.Time) *Deduplicator {
	d.clock = clock
	return d
}

// DeduplicateBatch drops items whose lowercased URL, normalized title, or
// content hash was already seen earlier in the batch. Iteration order is
// preserved and the pass is idempotent.
func (d *Deduplicator) DeduplicateBatch(results []models.RawResult) []models.RawResult {
	seenURL := make(map[string]bool, len(results))
	seenTitle := make(map[string]bool, len(results))
	seenHash := make(map[string]bool, len(results))

	out := make([]models.RawResult, 0, len(results))
	dropped := 0

	for _, res := range results {
		url := strings.ToLower(strings.TrimSpace(res.URL))
		title := sources.NormalizeText(res.Title)

		if (url != "" && seenURL[url]) || (title != "" && seenTitle[title]) || seenHash[res.ContentHash] {
			dropped++
			continue
		}
		if url != "" {
			seenURL[url] = true
		}
		if title != "" {
			seenTitle[title] = true
		}
		seenHash[res.ContentHash] = true
		out = append(out, res)
	}

	if dropped > 0 {
		metrics.DuplicatesSuppressed.WithLabelValues("batch").Add(float64(dropped))
		d.log.Debug("intra-batch duplicates dropped", map[string]interface{}{
			"dropped": dropped,
			"kept":    len(out),
		})
	}
	return out
}

// IsDuplicateOfHistory checks one candidate item against stored events.
// An item is a duplicate when its URL matches a same-entity event from the
// URL window, or its normalized title matches a same-entity, same-source
// event from the title window. Returns the matched event's id.
func (d *Deduplicator) IsDuplicateOfHistory(ctx context.Context, entityID, title, url, source string, lookup HistoryLookup) (string, bool, error) {
	now := d.clock().UTC()

	if u := strings.ToLower(strings.TrimSpace(url)); u != "" {
		events, err := lookup.FindEventsSince(ctx, entityID, "", now.Add(-d.urlWindow))
		if err != nil {
			return "", false, err
		}
		for _, ev := range events {
			if strings.ToLower(strings.TrimSpace(ev.URL)) == u {
				metrics.DuplicatesSuppressed.WithLabelValues("history").Inc()
				return ev.ID, true, nil
			}
		}
	}

	if nt := sources.NormalizeText(title); nt != "" {
		events, err := lookup.FindEventsSince(ctx, entityID, source, now.Add(-d.titleWindow))
		if err != nil {
			return "", false, err
		}
		for _, ev := range events {
			if ev.SourceName == source && sources.NormalizeText(ev.Title) == nt {
				metrics.DuplicatesSuppressed.WithLabelValues("history").Inc()
				return ev.ID, true, nil
			}
		}
	}

	return "", false, nil
}
