// internal/pipeline/classify/llm.go
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"clientpulse/internal/common/config"
	"clientpulse/internal/common/errors"
	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
)

// LLMProvider calls the AI gateway for classification and insight
// generation. Its output is schema-validated before being trusted; any
// shape or transport failure hands the item to the next chain provider.
type LLMProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	log     logger.Logger
}

func NewLLMProvider(cfg config.ClassifierConfig, log logger.Logger) *LLMProvider {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &LLMProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (p *LLMProvider) Name() string { return "llm" }

func (p *LLMProvider) Classify(ctx context.Context, entity models.Entity, raw models.RawResult) (models.ClassificationResult, error) {
	requestBody := map[string]interface{}{
		"model": p.model,
		"task":  "classify-event",
		"input": map[string]interface{}{
			"entityName": entity.Name,
			"title":      raw.Title,
			"snippet":    raw.Snippet,
			"sourceType": raw.SourceType,
		},
	}

	var payload map[string]interface{}
	if err := p.post(ctx, "/api/ai/classify-event", requestBody, &payload); err != nil {
		return models.ClassificationResult{}, err
	}

	if err := validatePayload(payload); err != nil {
		return models.ClassificationResult{}, errors.NewMalformedResponseError(p.Name(), err)
	}

	res := models.ClassificationResult{
		Category:        payload["category"].(string),
		RelevanceScore:  payload["relevanceScore"].(float64),
		SentimentScore:  payload["sentimentScore"].(float64),
		ConfidenceScore: payload["confidenceScore"].(float64),
		EventDate:       eventDateOf(payload, raw),
		Provider:        p.Name(),
	}
	if tags, ok := payload["tags"].([]interface{}); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok {
				res.Tags = append(res.Tags, s)
			}
		}
	}
	return res, nil
}

func (p *LLMProvider) GenerateInsights(ctx context.Context, entity models.Entity, ev models.ClassifiedEvent) (models.Insights, error) {
	requestBody := map[string]interface{}{
		"model": p.model,
		"task":  "generate-insights",
		"input": map[string]interface{}{
			"entityName": entity.Name,
			"title":      ev.Raw.Title,
			"snippet":    ev.Raw.Snippet,
			"category":   ev.Classification.Category,
			"relevance":  ev.Classification.RelevanceScore,
		},
	}

	var payload struct {
		Summary            string   `json:"summary"`
		RecommendedActions []string `json:"recommendedActions"`
	}
	if err := p.post(ctx, "/api/ai/generate-insights", requestBody, &payload); err != nil {
		return models.Insights{}, err
	}
	if strings.TrimSpace(payload.Summary) == "" {
		return models.Insights{}, errors.NewMalformedResponseError(p.Name(), fmt.Errorf("empty summary"))
	}
	return models.Insights{
		Summary:            payload.Summary,
		RecommendedActions: payload.RecommendedActions,
		Provider:           p.Name(),
	}, nil
}

func (p *LLMProvider) post(ctx context.Context, path string, requestBody interface{}, out interface{}) error {
	body, err := json.Marshal(requestBody)
	if err != nil {
		return errors.NewClassificationFailedError(p.Name(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return errors.NewClassificationFailedError(p.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.NewClassificationFailedError(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.NewClassificationFailedError(p.Name(), fmt.Errorf("status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewMalformedResponseError(p.Name(), err)
	}
	return nil
}

// eventDateOf prefers the provider's eventDate, then the item's published
// date, then discovery time.
func eventDateOf(payload map[string]interface{}, raw models.RawResult) time.Time {
	if s, ok := payload["eventDate"].(string); ok && s != "" {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts.UTC()
		}
		if ts, err := time.Parse("2006-01-02", s); err == nil {
			return ts.UTC()
		}
	}
	if !raw.PublishedAt.IsZero() {
		return raw.PublishedAt
	}
	return raw.DiscoveredAt
}
