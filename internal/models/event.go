// internal/models/event.go
package models

import "time"

// RawResult is one normalized hit from one source adapter. Immutable once
// created by the normalizer.
type RawResult struct {
	Title        string     `json:"title"`
	Snippet      string     `json:"snippet"`
	URL          string     `json:"url,omitempty"`
	SourceName   string     `json:"sourceName"`
	SourceType   SourceType `json:"sourceType"`
	PublishedAt  time.Time  `json:"publishedAt,omitempty"` // zero when the source gave no date
	DiscoveredAt time.Time  `json:"discoveredAt"`
	ContentHash  string     `json:"contentHash"`
}

// Event categories produced by classification.
const (
	CategoryFunding          = "funding"
	CategoryAcquisition      = "acquisition"
	CategoryLeadershipChange = "leadership_change"
	CategoryExpansion        = "expansion"
	CategoryProductLaunch    = "product_launch"
	CategoryLegalRisk        = "legal_risk"
	CategoryFinancialRisk    = "financial_risk"
	CategoryGeneral          = "general"
)

// ClassificationResult is the validated output of a classifier provider.
type ClassificationResult struct {
	Category        string    `json:"category"`
	RelevanceScore  float64   `json:"relevanceScore"`  // [0,1]
	SentimentScore  float64   `json:"sentimentScore"`  // [-1,1]
	ConfidenceScore float64   `json:"confidenceScore"` // [0,1]
	Tags            []string  `json:"tags,omitempty"`
	EventDate       time.Time `json:"eventDate"`
	Provider        string    `json:"provider"`
}

// ClassifiedEvent is a RawResult plus its classification.
type ClassifiedEvent struct {
	Raw            RawResult            `json:"raw"`
	Classification ClassificationResult `json:"classification"`
}

// StoredEvent is the record-store view of a previously created event, as
// needed by the cross-history duplicate check.
type StoredEvent struct {
	ID           string     `json:"id"`
	EntityID     string     `json:"entityId"`
	Title        string     `json:"title"`
	URL          string     `json:"url,omitempty"`
	SourceName   string     `json:"sourceName"`
	SourceType   SourceType `json:"sourceType"`
	Category     string     `json:"category"`
	DiscoveredAt time.Time  `json:"discoveredAt"`
}

// Insights holds optional enriched commentary for high-relevance events.
type Insights struct {
	Summary            string   `json:"summary"`
	RecommendedActions []string `json:"recommendedActions,omitempty"`
	Provider           string   `json:"provider"`
}
