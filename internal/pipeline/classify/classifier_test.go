// internal/pipeline/classify/classifier_test.go
package classify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clientpulse/internal/common/config"
	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
)

func llmConfig(baseURL string) config.ClassifierConfig {
	return config.ClassifierConfig{
		BaseURL:   baseURL,
		APIKey:    "test-key",
		Model:     "classifier-v1",
		TimeoutMS: 2000,
	}
}

func sampleRaw(title, snippet string) models.RawResult {
	return models.RawResult{
		Title:        title,
		Snippet:      snippet,
		SourceName:   "news",
		SourceType:   models.SourceTypeNews,
		DiscoveredAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestLLMProvider_ValidOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ai/classify-event", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{
			"category": "funding",
			"relevanceScore": 0.92,
			"sentimentScore": 0.6,
			"confidenceScore": 0.88,
			"tags": ["series-b"],
			"eventDate": "2026-02-20T00:00:00Z"
		}`))
	}))
	defer server.Close()

	provider := NewLLMProvider(llmConfig(server.URL), logger.NewTestLogger(t))
	res, err := provider.Classify(context.Background(), models.Entity{Name: "Acme"}, sampleRaw("Acme raises $50M", "Series B"))

	require.NoError(t, err)
	assert.Equal(t, models.CategoryFunding, res.Category)
	assert.Equal(t, 0.92, res.RelevanceScore)
	assert.Equal(t, []string{"series-b"}, res.Tags)
	assert.Equal(t, "llm", res.Provider)
	assert.Equal(t, 2026, res.EventDate.Year())
	assert.Equal(t, time.February, res.EventDate.Month())
}

func TestLLMProvider_RejectsOutOfRangeScores(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"category": "funding",
			"relevanceScore": 1.7,
			"sentimentScore": 0.0,
			"confidenceScore": 0.5
		}`))
	}))
	defer server.Close()

	provider := NewLLMProvider(llmConfig(server.URL), logger.NewTestLogger(t))
	_, err := provider.Classify(context.Background(), models.Entity{Name: "Acme"}, sampleRaw("Acme raises $50M", ""))
	assert.Error(t, err)
}

func TestLLMProvider_RejectsUnknownCategory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"category": "gossip",
			"relevanceScore": 0.5,
			"sentimentScore": 0.0,
			"confidenceScore": 0.5
		}`))
	}))
	defer server.Close()

	provider := NewLLMProvider(llmConfig(server.URL), logger.NewTestLogger(t))
	_, err := provider.Classify(context.Background(), models.Entity{Name: "Acme"}, sampleRaw("Acme update", ""))
	assert.Error(t, err)
}

func TestChain_FallsBackToRulesOnMalformedPrimary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json at all`))
	}))
	defer server.Close()

	chain := NewChain(logger.NewTestLogger(t),
		NewLLMProvider(llmConfig(server.URL), logger.NewTestLogger(t)),
		NewRuleProvider(),
	)

	res, err := chain.Classify(context.Background(), models.Entity{Name: "Acme"},
		sampleRaw("Acme raises $50M in Series B funding", "Led by Example Ventures"))

	require.NoError(t, err, "chain with rule fallback must not fail")
	assert.Equal(t, "rules", res.Provider)
	assert.Equal(t, models.CategoryFunding, res.Category)
	assert.NoError(t, checkResult(res))
}

func TestChain_PrimaryWinsWhenValid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"category": "expansion",
			"relevanceScore": 0.7,
			"sentimentScore": 0.4,
			"confidenceScore": 0.8
		}`))
	}))
	defer server.Close()

	chain := NewChain(logger.NewTestLogger(t),
		NewLLMProvider(llmConfig(server.URL), logger.NewTestLogger(t)),
		NewRuleProvider(),
	)

	res, err := chain.Classify(context.Background(), models.Entity{Name: "Acme"}, sampleRaw("Acme opens Berlin office", ""))
	require.NoError(t, err)
	assert.Equal(t, "llm", res.Provider)
	assert.Equal(t, models.CategoryExpansion, res.Category)
}

func TestRuleProvider_AlwaysInRange(t *testing.T) {
	provider := NewRuleProvider()
	titles := []string{
		"Acme raises $50M",
		"Acme hit with lawsuit",
		"Acme announces layoffs amid restructuring",
		"Acme appoints new CEO",
		"Acme unveils new platform",
		"Completely unrelated gardening tips",
		"",
	}

	for _, title := range titles {
		res, err := provider.Classify(context.Background(), models.Entity{Name: "Acme"}, sampleRaw(title, ""))
		require.NoError(t, err, "rule provider must never fail")
		assert.NoError(t, checkResult(res), "title %q produced out-of-range result", title)
	}
}

func TestRuleProvider_RiskBeatsOtherCategories(t *testing.T) {
	provider := NewRuleProvider()
	res, err := provider.Classify(context.Background(), models.Entity{Name: "Acme"},
		sampleRaw("Acme faces lawsuit over failed acquisition", ""))

	require.NoError(t, err)
	assert.Equal(t, models.CategoryLegalRisk, res.Category)
}

func TestRuleProvider_EventDateDefaults(t *testing.T) {
	provider := NewRuleProvider()
	raw := sampleRaw("Acme raises funding", "")

	res, err := provider.Classify(context.Background(), models.Entity{Name: "Acme"}, raw)
	require.NoError(t, err)
	assert.Equal(t, raw.DiscoveredAt, res.EventDate, "undated items use discovery time")

	raw.PublishedAt = time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	res, err = provider.Classify(context.Background(), models.Entity{Name: "Acme"}, raw)
	require.NoError(t, err)
	assert.Equal(t, raw.PublishedAt, res.EventDate)
}

func TestChain_GenerateInsightsFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	chain := NewChain(logger.NewTestLogger(t),
		NewLLMProvider(llmConfig(server.URL), logger.NewTestLogger(t)),
		NewRuleProvider(),
	)

	ev := models.ClassifiedEvent{
		Raw: sampleRaw("Acme raises $50M", ""),
		Classification: models.ClassificationResult{
			Category:       models.CategoryFunding,
			RelevanceScore: 0.9,
		},
	}

	insights, err := chain.GenerateInsights(context.Background(), models.Entity{Name: "Acme"}, ev)
	require.NoError(t, err)
	assert.Equal(t, "rules", insights.Provider)
	assert.NotEmpty(t, insights.Summary)
	assert.NotEmpty(t, insights.RecommendedActions)
}
