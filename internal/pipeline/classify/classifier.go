// Package classify assigns a category and scores to each normalized
// result. Providers are arranged in a chain; the rule-based provider sits
// last and never fails, so classification as a whole cannot fail.
package classify

import (
	"context"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"clientpulse/internal/common/errors"
	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
)

// Classifier is one provider in the chain.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, entity models.Entity, raw models.RawResult) (models.ClassificationResult, error)
	GenerateInsights(ctx context.Context, entity models.Entity, ev models.ClassifiedEvent) (models.Insights, error)
}

var validCategories = map[string]bool{
	models.CategoryFunding:          true,
	models.CategoryAcquisition:      true,
	models.CategoryLeadershipChange: true,
	models.CategoryExpansion:        true,
	models.CategoryProductLaunch:    true,
	models.CategoryLegalRisk:        true,
	models.CategoryFinancialRisk:    true,
	models.CategoryGeneral:          true,
}

// classificationSchema is the contract a provider's JSON output must meet
// before it is trusted. Score bounds are enforced here and re-checked on
// the typed result, since the rule provider never goes through JSON.
var classificationSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"category": map[string]interface{}{
			"type": "string",
			"enum": []string{
				models.CategoryFunding, models.CategoryAcquisition,
				models.CategoryLeadershipChange, models.CategoryExpansion,
				models.CategoryProductLaunch, models.CategoryLegalRisk,
				models.CategoryFinancialRisk, models.CategoryGeneral,
			},
		},
		"relevanceScore":  map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
		"sentimentScore":  map[string]interface{}{"type": "number", "minimum": -1, "maximum": 1},
		"confidenceScore": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
		"tags": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
		"eventDate": map[string]interface{}{"type": "string"},
	},
	"required": []string{"category", "relevanceScore", "sentimentScore", "confidenceScore"},
}

// validatePayload checks a provider's decoded JSON output against the
// classification schema.
func validatePayload(payload map[string]interface{}) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(classificationSchema),
		gojsonschema.NewGoLoader(payload),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("classification payload invalid: %v", msgs)
	}
	return nil
}

// checkResult enforces score bounds and category membership on the typed
// result, whatever provider produced it.
func checkResult(res models.ClassificationResult) error {
	if !validCategories[res.Category] {
		return fmt.Errorf("unknown category %q", res.Category)
	}
	if res.RelevanceScore < 0 || res.RelevanceScore > 1 {
		return fmt.Errorf("relevance score %v out of [0,1]", res.RelevanceScore)
	}
	if res.SentimentScore < -1 || res.SentimentScore > 1 {
		return fmt.Errorf("sentiment score %v out of [-1,1]", res.SentimentScore)
	}
	if res.ConfidenceScore < 0 || res.ConfidenceScore > 1 {
		return fmt.Errorf("confidence score %v out of [0,1]", res.ConfidenceScore)
	}
	return nil
}

// Chain tries providers in order and returns the first valid result.
type Chain struct {
	providers []Classifier
	log       logger.Logger
}

// NewChain builds the provider chain. Callers put the rule-based provider
// last so the chain always resolves.
func NewChain(log logger.Logger, providers ...Classifier) *Chain {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Chain{providers: providers, log: log}
}

// Classify runs the chain. A provider failure or an out-of-range result
// moves on to the next provider instead of failing the item.
func (c *Chain) Classify(ctx context.Context, entity models.Entity, raw models.RawResult) (models.ClassificationResult, error) {
	var lastErr error

	for _, p := range c.providers {
		res, err := p.Classify(ctx, entity, raw)
		if err == nil {
			err = checkResult(res)
		}
		if err != nil {
			lastErr = errors.NewClassificationFailedError(p.Name(), err)
			c.log.Warn("classifier provider failed, trying next", map[string]interface{}{
				"provider": p.Name(),
				"title":    raw.Title,
				"error":    err.Error(),
			})
			continue
		}
		return res, nil
	}

	if lastErr == nil {
		lastErr = errors.NewClassificationFailedError("chain", fmt.Errorf("no providers configured"))
	}
	return models.ClassificationResult{}, lastErr
}

// GenerateInsights runs the chain for the optional insight pass on
// high-relevance events.
func (c *Chain) GenerateInsights(ctx context.Context, entity models.Entity, ev models.ClassifiedEvent) (models.Insights, error) {
	var lastErr error

	for _, p := range c.providers {
		insights, err := p.GenerateInsights(ctx, entity, ev)
		if err != nil {
			lastErr = errors.NewClassificationFailedError(p.Name(), err)
			continue
		}
		return insights, nil
	}

	if lastErr == nil {
		lastErr = errors.NewClassificationFailedError("chain", fmt.Errorf("no providers configured"))
	}
	return models.Insights{}, lastErr
}
