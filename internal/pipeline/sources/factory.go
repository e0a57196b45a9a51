// internal/pipeline/sources/factory.go
package sources

import (
	"time"

	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
)

// BuildAdapters constructs one adapter per enabled source config. Unknown
// source types are skipped with a warning; the CRM source type is handled
// by the enrichment adapter, not the search fan-out.
func BuildAdapters(cfgs []models.SourceConfig, caller *Caller, timeout time.Duration, log logger.Logger) []Adapter {
	adapters := make([]Adapter, 0, len(cfgs))
	for _, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		switch cfg.Type {
		case models.SourceTypeWebSearch:
			adapters = append(adapters, NewWebSearchAdapter(cfg, caller, timeout, log))
		case models.SourceTypeNews:
			adapters = append(adapters, NewNewsAdapter(cfg, caller, timeout, log))
		case models.SourceTypeMock:
			adapters = append(adapters, NewMockAdapter())
		case models.SourceTypeCRM:
			// enrichment concern, not a search source
		default:
			log.Warn("unknown source type, skipping", map[string]interface{}{
				"source": cfg.Name,
				"type":   string(cfg.Type),
			})
		}
	}
	return adapters
}
