// internal/pipeline/classify/rules.go
package classify

import (
	"context"
	"fmt"
	"strings"

	"clientpulse/internal/models"
	"clientpulse/internal/pipeline/sources"
)

// categoryRule maps keywords to a category with fixed scores. Rules are
// evaluated in order; the first keyword hit decides the category.
type categoryRule struct {
	category  string
	keywords  []string
	relevance float64
	sentiment float64
}

// Risk categories go first so "lawsuit over acquisition" lands on the
// risk side.
var defaultRules = []categoryRule{
	{
		category:  models.CategoryLegalRisk,
		keywords:  []string{"lawsuit", "litigation", "sued", "fined", "settlement", "investigation", "regulator", "subpoena"},
		relevance: 0.8,
		sentiment: -0.7,
	},
	{
		category:  models.CategoryFinancialRisk,
		keywords:  []string{"bankruptcy", "insolvency", "layoffs", "downsizing", "default", "restructuring", "losses", "missed earnings"},
		relevance: 0.8,
		sentiment: -0.6,
	},
	{
		category:  models.CategoryAcquisition,
		keywords:  []string{"acquires", "acquisition", "merger", "merges with", "buyout", "takes over", "acquired by"},
		relevance: 0.85,
		sentiment: 0.3,
	},
	{
		category:  models.CategoryFunding,
		keywords:  []string{"funding", "raises", "raised", "series a", "series b", "series c", "investment round", "venture capital", "seed round"},
		relevance: 0.8,
		sentiment: 0.5,
	},
	{
		category:  models.CategoryLeadershipChange,
		keywords:  []string{"appoints", "new ceo", "new cfo", "new cto", "steps down", "resigns", "joins as", "hires", "promoted to"},
		relevance: 0.7,
		sentiment: 0.0,
	},
	{
		category:  models.CategoryExpansion,
		keywords:  []string{"expands", "expansion", "opens office", "new office", "new headquarters", "enters market", "new factory"},
		relevance: 0.7,
		sentiment: 0.4,
	},
	{
		category:  models.CategoryProductLaunch,
		keywords:  []string{"launches", "launch", "unveils", "releases", "introduces", "announces new product", "rolls out"},
		relevance: 0.65,
		sentiment: 0.4,
	},
}

// RuleProvider is the deterministic fallback classifier. It never errors
// and always produces in-range scores, which is what makes the chain
// total.
type RuleProvider struct {
	rules []categoryRule
}

func NewRuleProvider() *RuleProvider {
	return &RuleProvider{rules: defaultRules}
}

func (p *RuleProvider) Name() string { return "rules" }

func (p *RuleProvider) Classify(_ context.Context, _ models.Entity, raw models.RawResult) (models.ClassificationResult, error) {
	text := sources.NormalizeText(raw.Title + " " + raw.Snippet)

	eventDate := raw.PublishedAt
	if eventDate.IsZero() {
		eventDate = raw.DiscoveredAt
	}

	for _, rule := range p.rules {
		var matched []string
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) == 0 {
			continue
		}
		return models.ClassificationResult{
			Category:        rule.category,
			RelevanceScore:  rule.relevance,
			SentimentScore:  rule.sentiment,
			ConfidenceScore: 0.4,
			Tags:            matched,
			EventDate:       eventDate,
			Provider:        p.Name(),
		}, nil
	}

	return models.ClassificationResult{
		Category:        models.CategoryGeneral,
		RelevanceScore:  0.3,
		SentimentScore:  0,
		ConfidenceScore: 0.3,
		EventDate:       eventDate,
		Provider:        p.Name(),
	}, nil
}

func (p *RuleProvider) GenerateInsights(_ context.Context, entity models.Entity, ev models.ClassifiedEvent) (models.Insights, error) {
	summary := fmt.Sprintf("%s: %s event detected (%s).",
		entity.Name, strings.ReplaceAll(ev.Classification.Category, "_", " "), ev.Raw.Title)

	actions := []string{"Review the source item and confirm relevance."}
	switch ev.Classification.Category {
	case models.CategoryLegalRisk, models.CategoryFinancialRisk:
		actions = append(actions, "Flag the account for a health review.")
	case models.CategoryFunding, models.CategoryAcquisition:
		actions = append(actions, "Reach out to discuss expansion opportunities.")
	case models.CategoryLeadershipChange:
		actions = append(actions, "Update account contacts and re-establish the relationship.")
	}

	return models.Insights{
		Summary:            summary,
		RecommendedActions: actions,
		Provider:           p.Name(),
	}, nil
}
