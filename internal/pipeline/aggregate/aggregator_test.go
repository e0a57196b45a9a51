// internal/pipeline/aggregate/aggregator_test.go
package aggregate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clientpulse/internal/common/errors"
	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
	"clientpulse/internal/pipeline/dedup"
	"clientpulse/internal/pipeline/sources"
)

// stubAdapter serves canned results or a canned error.
type stubAdapter struct {
	src     models.SourceConfig
	results []models.RawResult
	err     error
	delay   time.Duration
}

func (s *stubAdapter) Source() models.SourceConfig { return s.src }

func (s *stubAdapter) Fetch(ctx context.Context, _ models.Entity, _, _ int) ([]models.RawResult, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, errors.NewTransientSourceError(s.src.Name, ctx.Err())
		case <-time.After(s.delay):
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func stub(name string, results []models.RawResult, err error) *stubAdapter {
	return &stubAdapter{
		src:     models.SourceConfig{ID: name, Name: name, Type: models.SourceTypeWebSearch, Enabled: true},
		results: results,
		err:     err,
	}
}

func item(title, url string, published time.Time) models.RawResult {
	return models.RawResult{
		Title:        title,
		URL:          url,
		SourceName:   "web",
		SourceType:   models.SourceTypeWebSearch,
		PublishedAt:  published,
		DiscoveredAt: time.Now().UTC(),
		ContentHash:  fmt.Sprintf("hash-%s-%s", title, url),
	}
}

func newAggregator(t *testing.T, adapters []sources.Adapter, fallback sources.Adapter) *Aggregator {
	dd := dedup.New(7*24*time.Hour, 24*time.Hour, logger.NewTestLogger(t))
	return New(adapters, fallback, dd, 5*time.Second, logger.NewTestLogger(t))
}

func TestSearch_MergesAndRecordsPerSourceErrors(t *testing.T) {
	good := stub("web", []models.RawResult{item("A", "https://a.test/1", time.Time{})}, nil)
	bad := stub("news", nil, errors.NewTransientSourceError("news", fmt.Errorf("boom")))

	agg := newAggregator(t, []sources.Adapter{good, bad}, nil)
	res := agg.Search(context.Background(), models.Entity{ID: "e1", Name: "Acme"}, 7, 10)

	require.Len(t, res.Items, 1)
	require.Len(t, res.SourceErrors, 1)
	assert.Contains(t, res.SourceErrors, "news")
	assert.False(t, res.UsedFallback, "partial success must not trigger fallback")
}

func TestSearch_FallbackWhenAllSourcesFail(t *testing.T) {
	bad1 := stub("web", nil, errors.NewTransientSourceError("web", fmt.Errorf("down")))
	bad2 := stub("news", nil, errors.NewAuthError("news", "bad key"))

	agg := newAggregator(t, []sources.Adapter{bad1, bad2}, sources.NewMockAdapter())
	res := agg.Search(context.Background(), models.Entity{ID: "e1", Name: "Acme"}, 7, 10)

	assert.True(t, res.UsedFallback)
	assert.NotEmpty(t, res.Items)
	assert.Len(t, res.SourceErrors, 2)
}

func TestSearch_HealthySourcesWithZeroResultsStayEmpty(t *testing.T) {
	quiet := stub("web", nil, nil)
	alsoQuiet := stub("news", []models.RawResult{}, nil)

	agg := newAggregator(t, []sources.Adapter{quiet, alsoQuiet}, sources.NewMockAdapter())
	res := agg.Search(context.Background(), models.Entity{ID: "e1", Name: "Acme"}, 7, 10)

	assert.False(t, res.UsedFallback, "a quiet day on healthy sources must not fabricate items")
	assert.Empty(t, res.Items)
	assert.Empty(t, res.SourceErrors)
}

func TestSearch_FallbackWhenNoSourcesConfigured(t *testing.T) {
	agg := newAggregator(t, nil, sources.NewMockAdapter())
	res := agg.Search(context.Background(), models.Entity{ID: "e1", Name: "Acme"}, 7, 10)

	assert.True(t, res.UsedFallback)
	assert.Len(t, res.Items, 2)
	assert.Empty(t, res.SourceErrors)
}

func TestSearch_DeduplicatesAcrossSources(t *testing.T) {
	shared := item("Shared story", "https://a.test/shared", time.Time{})
	s1 := stub("web", []models.RawResult{shared}, nil)
	s2 := stub("news", []models.RawResult{shared, item("Only news", "https://a.test/news", time.Time{})}, nil)

	agg := newAggregator(t, []sources.Adapter{s1, s2}, nil)
	res := agg.Search(context.Background(), models.Entity{ID: "e1", Name: "Acme"}, 7, 10)

	assert.Len(t, res.Items, 2)
}

func TestSearch_SortsNewestFirstWithUndatedLast(t *testing.T) {
	older := item("Older", "https://a.test/old", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := item("Newer", "https://a.test/new", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	undated := item("Undated", "https://a.test/undated", time.Time{})

	src := stub("web", []models.RawResult{undated, older, newer}, nil)
	agg := newAggregator(t, []sources.Adapter{src}, nil)
	res := agg.Search(context.Background(), models.Entity{ID: "e1", Name: "Acme"}, 7, 10)

	require.Len(t, res.Items, 3)
	assert.Equal(t, "Newer", res.Items[0].Title)
	assert.Equal(t, "Older", res.Items[1].Title)
	assert.Equal(t, "Undated", res.Items[2].Title)
}

func TestSearch_SlowSourceDoesNotStallOthers(t *testing.T) {
	slow := &stubAdapter{
		src:   models.SourceConfig{ID: "slow", Name: "slow", Type: models.SourceTypeWebSearch},
		delay: 2 * time.Second,
		results: []models.RawResult{
			item("Late", "https://a.test/late", time.Time{}),
		},
	}
	fast := stub("fast", []models.RawResult{item("Fast", "https://a.test/fast", time.Time{})}, nil)

	dd := dedup.New(7*24*time.Hour, 24*time.Hour, logger.NewTestLogger(t))
	agg := New([]sources.Adapter{slow, fast}, nil, dd, 50*time.Millisecond, logger.NewTestLogger(t))

	start := time.Now()
	res := agg.Search(context.Background(), models.Entity{ID: "e1", Name: "Acme"}, 7, 10)

	assert.Less(t, time.Since(start), time.Second, "per-source timeout must bound the fan-out")
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Fast", res.Items[0].Title)
	assert.Contains(t, res.SourceErrors, "slow")
}
