// internal/models/enrichment.go
package models

import "time"

// CRMContact is a named contact pulled from the CRM account record.
type CRMContact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Title string `json:"title,omitempty"`
}

// EnrichmentContext carries CRM-derived facts about a tracked entity.
// Optional everywhere: absence never blocks classification.
type EnrichmentContext struct {
	AccountID         string       `json:"accountId"`
	HealthScore       float64      `json:"healthScore"`
	AnnualRevenue     float64      `json:"annualRevenue"`
	OpenOpportunities int          `json:"openOpportunities"`
	ContractEndDate   *time.Time   `json:"contractEndDate,omitempty"`
	Contacts          []CRMContact `json:"contacts,omitempty"`
}
