// internal/models/entity.go
package models

// Entity is a tracked business/client being monitored.
type Entity struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Name     string `json:"name"`
	Domain   string `json:"domain,omitempty"`
	Industry string `json:"industry,omitempty"`
	Status   string `json:"status"` // "active", "paused"
}

// SourceType identifies the kind of external system behind a SourceConfig.
type SourceType string

const (
	SourceTypeWebSearch SourceType = "web_search"
	SourceTypeNews      SourceType = "news"
	SourceTypeCRM       SourceType = "crm"
	SourceTypeMock      SourceType = "mock"
)

// SourceConfig identifies one external source. Owned by the tenant and
// read-only to the pipeline.
type SourceConfig struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	Type        SourceType `json:"type"`
	Name        string     `json:"name"`
	BaseURL     string     `json:"baseUrl,omitempty"`
	APIKey      string     `json:"-"`
	EngineID    string     `json:"-"` // web search engine/cx id
	Enabled     bool       `json:"enabled"`
	DailyBudget int        `json:"dailyBudget"`
}
