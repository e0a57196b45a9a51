// internal/pipeline/sources/websearch_test.go
package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clientpulse/internal/common/errors"
	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
	"clientpulse/internal/pipeline/resilience"
)

func testSource(baseURL string) models.SourceConfig {
	return models.SourceConfig{
		ID:          "web-1",
		Type:        models.SourceTypeWebSearch,
		Name:        "web-search",
		BaseURL:     baseURL,
		APIKey:      "test-key",
		EngineID:    "test-cx",
		Enabled:     true,
		DailyBudget: 100,
	}
}

func testCaller(t *testing.T, src models.SourceConfig) (*Caller, *resilience.Registry) {
	reg := resilience.NewRegistry(resilience.DefaultOptions(), logger.NewTestLogger(t))
	reg.Register(src)
	caller := NewCaller(reg, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}, logger.NewTestLogger(t))
	return caller, reg
}

const searchBody = `{"items": [
	{"title": "Acme Corp raises Series B", "snippet": "Funding round announced", "link": "https://news.test/acme-b", "mime": "text/html"},
	{"title": "Acme annual report", "snippet": "PDF filing", "link": "https://files.test/acme.pdf", "mime": "application/pdf"},
	{"title": "Acme opens Berlin office", "snippet": "Expansion into Europe", "link": "https://news.test/acme-berlin"}
]}`

func TestWebSearchAdapter_FetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "test-cx", r.URL.Query().Get("cx"))
		assert.Contains(t, r.URL.Query().Get("q"), "Acme Corp")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchBody))
	}))
	defer server.Close()

	src := testSource(server.URL)
	caller, reg := testCaller(t, src)
	adapter := NewWebSearchAdapter(src, caller, 5*time.Second, logger.NewTestLogger(t))

	results, err := adapter.Fetch(context.Background(), models.Entity{ID: "e1", Name: "Acme Corp"}, 7, 10)

	require.NoError(t, err)
	assert.Len(t, results, 2, "PDF hit filtered out")
	assert.Equal(t, "Acme Corp raises Series B", results[0].Title)
	assert.Equal(t, "web-search", results[0].SourceName)
	assert.NotEmpty(t, results[0].ContentHash)
	assert.Equal(t, 99, reg.RemainingCalls(src.ID))
}

func TestWebSearchAdapter_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(searchBody))
	}))
	defer server.Close()

	src := testSource(server.URL)
	caller, reg := testCaller(t, src)
	adapter := NewWebSearchAdapter(src, caller, 5*time.Second, logger.NewTestLogger(t))

	results, err := adapter.Fetch(context.Background(), models.Entity{Name: "Acme Corp"}, 7, 10)

	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, int32(3), calls.Load())
	// Every attempt counts against the budget.
	assert.Equal(t, 97, reg.RemainingCalls(src.ID))
	assert.Equal(t, resilience.CircuitClosed, reg.CircuitStatusOf(src.ID))
}

func TestWebSearchAdapter_RateLimitAbortsRetryLoop(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	src := testSource(server.URL)
	caller, _ := testCaller(t, src)
	adapter := NewWebSearchAdapter(src, caller, 5*time.Second, logger.NewTestLogger(t))

	_, err := adapter.Fetch(context.Background(), models.Entity{Name: "Acme Corp"}, 7, 10)

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSourceRateLimited, errors.KindOf(err))
	assert.Equal(t, int32(1), calls.Load(), "429 must not be retried")
}

func TestWebSearchAdapter_AuthErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	src := testSource(server.URL)
	caller, _ := testCaller(t, src)
	adapter := NewWebSearchAdapter(src, caller, 5*time.Second, logger.NewTestLogger(t))

	_, err := adapter.Fetch(context.Background(), models.Entity{Name: "Acme Corp"}, 7, 10)

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAuth, errors.KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebSearchAdapter_ExhaustedRetriesFeedBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	src := testSource(server.URL)
	caller, reg := testCaller(t, src)
	adapter := NewWebSearchAdapter(src, caller, 5*time.Second, logger.NewTestLogger(t))

	_, err := adapter.Fetch(context.Background(), models.Entity{Name: "Acme Corp"}, 7, 10)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTransientSource, errors.KindOf(err))

	// One breaker failure per Fetch call, not per attempt: five failed
	// fetches open the circuit.
	for i := 0; i < 4; i++ {
		_, err = adapter.Fetch(context.Background(), models.Entity{Name: "Acme Corp"}, 7, 10)
		require.Error(t, err)
	}
	assert.Equal(t, resilience.CircuitOpen, reg.CircuitStatusOf(src.ID))

	// Next call is blocked locally without touching the server.
	_, err = adapter.Fetch(context.Background(), models.Entity{Name: "Acme Corp"}, 7, 10)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeCircuitOpen, errors.KindOf(err))
}

func TestWebSearchAdapter_BudgetExhaustedBlocksLocally(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	defer server.Close()

	src := testSource(server.URL)
	src.DailyBudget = 1
	caller, _ := testCaller(t, src)
	adapter := NewWebSearchAdapter(src, caller, 5*time.Second, logger.NewTestLogger(t))

	_, err := adapter.Fetch(context.Background(), models.Entity{Name: "Acme Corp"}, 7, 10)
	require.NoError(t, err)

	_, err = adapter.Fetch(context.Background(), models.Entity{Name: "Acme Corp"}, 7, 10)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRateBudgetExhausted, errors.KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebSearchAdapter_MalformedBodyNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"items": [`))
	}))
	defer server.Close()

	src := testSource(server.URL)
	caller, _ := testCaller(t, src)
	adapter := NewWebSearchAdapter(src, caller, 5*time.Second, logger.NewTestLogger(t))

	_, err := adapter.Fetch(context.Background(), models.Entity{Name: "Acme Corp"}, 7, 10)

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeMalformedResponse, errors.KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}
