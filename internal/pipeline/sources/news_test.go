// internal/pipeline/sources/news_test.go
package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clientpulse/internal/common/errors"
	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
)

func newsSource(baseURL string) models.SourceConfig {
	return models.SourceConfig{
		ID:          "news-1",
		Type:        models.SourceTypeNews,
		Name:        "news",
		BaseURL:     baseURL,
		APIKey:      "news-key",
		Enabled:     true,
		DailyBudget: 100,
	}
}

func TestNewsAdapter_FetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "news-key", r.Header.Get("X-Api-Key"))
		assert.Contains(t, r.URL.Query().Get("q"), "Acme Corp")
		_, _ = w.Write([]byte(`{"status": "ok", "articles": [
			{"title": "Acme Corp expands", "description": "New factory", "url": "https://n.test/1", "publishedAt": "2026-02-01T10:00:00Z", "source": {"name": "Wire"}},
			{"title": "", "description": "broken item", "url": "https://n.test/2"}
		]}`))
	}))
	defer server.Close()

	src := newsSource(server.URL)
	caller, _ := testCaller(t, src)
	adapter := NewNewsAdapter(src, caller, 5*time.Second, logger.NewTestLogger(t))

	results, err := adapter.Fetch(context.Background(), models.Entity{Name: "Acme Corp"}, 7, 10)

	require.NoError(t, err)
	assert.Len(t, results, 1, "title-less article dropped")
	assert.Equal(t, "Acme Corp expands", results[0].Title)
	assert.False(t, results[0].PublishedAt.IsZero())
}

func TestNewsAdapter_NonOKStatusIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "error", "articles": []}`))
	}))
	defer server.Close()

	src := newsSource(server.URL)
	caller, _ := testCaller(t, src)
	adapter := NewNewsAdapter(src, caller, 5*time.Second, logger.NewTestLogger(t))

	_, err := adapter.Fetch(context.Background(), models.Entity{Name: "Acme Corp"}, 7, 10)

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeMalformedResponse, errors.KindOf(err))
}

func TestMockAdapter_DeterministicAndNeverFails(t *testing.T) {
	adapter := NewMockAdapter()
	entity := models.Entity{ID: "e1", Name: "Acme Corp"}

	first, err := adapter.Fetch(context.Background(), entity, 7, 10)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := adapter.Fetch(context.Background(), entity, 7, 10)
	require.NoError(t, err)
	require.Len(t, second, 2)

	assert.Equal(t, first[0].Title, second[0].Title)
	assert.Equal(t, first[0].ContentHash, second[0].ContentHash)
}
