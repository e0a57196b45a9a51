// internal/pipeline/sources/mock.go
package sources

import (
	"context"
	"fmt"
	"time"

	"clientpulse/internal/models"
)

// MockAdapter is the synthetic fallback source. The aggregator uses it when
// every real source fails or none are configured, so a monitoring pass
// always yields a deterministic result instead of an error. It bypasses
// the resilience controls: there is nothing external to protect.
type MockAdapter struct {
	src models.SourceConfig
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		src: models.SourceConfig{
			ID:      "mock",
			Type:    models.SourceTypeMock,
			Name:    "mock",
			Enabled: true,
		},
	}
}

func (a *MockAdapter) Source() models.SourceConfig { return a.src }

func (a *MockAdapter) Fetch(_ context.Context, entity models.Entity, _ int, maxResults int) ([]models.RawResult, error) {
	now := time.Now().UTC()

	titles := []struct {
		title   string
		snippet string
	}{
		{
			title:   fmt.Sprintf("%s announces quarterly business update", entity.Name),
			snippet: fmt.Sprintf("%s shared a routine update on operations and outlook.", entity.Name),
		},
		{
			title:   fmt.Sprintf("Industry roundup mentions %s", entity.Name),
			snippet: fmt.Sprintf("A sector overview includes a brief mention of %s.", entity.Name),
		},
	}

	results := make([]models.RawResult, 0, len(titles))
	for _, tpl := range titles {
		res, err := newRawResult(tpl.title, tpl.snippet, "", time.Time{}, a.src, now)
		if err != nil {
			continue
		}
		results = append(results, res)
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}
