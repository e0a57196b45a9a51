// internal/pipeline/sources/websearch.go
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"clientpulse/internal/common/errors"
	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// WebSearchAdapter queries a Google-custom-search-shaped API for recent
// mentions of a tracked entity.
type WebSearchAdapter struct {
	src    models.SourceConfig
	caller *Caller
	client *http.Client
	logger logger.Logger
}

func NewWebSearchAdapter(src models.SourceConfig, caller *Caller, timeout time.Duration, log logger.Logger) *WebSearchAdapter {
	return &WebSearchAdapter{
		src:    src,
		caller: caller,
		client: &http.Client{Timeout: timeout},
		logger: log.With(map[string]interface{}{"source": src.Name}),
	}
}

func (a *WebSearchAdapter) Source() models.SourceConfig { return a.src }

func (a *WebSearchAdapter) Fetch(ctx context.Context, entity models.Entity, windowDays, maxResults int) ([]models.RawResult, error) {
	var results []models.RawResult

	err := a.caller.Call(ctx, a.src, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.buildSearchURL(entity, windowDays, maxResults), nil)
		if err != nil {
			return errors.NewMalformedResponseError(a.src.Name, err)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return errors.NewTransientSourceError(a.src.Name, err)
		}
		defer resp.Body.Close()

		if err := statusToError(a.src.Name, resp.StatusCode); err != nil {
			return err
		}

		var payload struct {
			Items []webSearchItem `json:"items"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return errors.NewMalformedResponseError(a.src.Name, err)
		}

		items := make([]webSearchItem, 0, len(payload.Items))
		for _, it := range payload.Items {
			// Skip non-HTML hits (PDFs and the like).
			if it.Mime != "" && !strings.Contains(it.Mime, "html") {
				continue
			}
			items = append(items, it)
		}

		results = normalizeAll(items, a.src, time.Now().UTC(), a.logger)
		if len(results) > maxResults {
			results = results[:maxResults]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("web search completed", map[string]interface{}{
		"entity":      entity.Name,
		"resultCount": len(results),
	})
	return results, nil
}

func (a *WebSearchAdapter) buildSearchURL(entity models.Entity, windowDays, maxResults int) string {
	query := fmt.Sprintf("%q", entity.Name)
	if entity.Domain != "" {
		query += " " + entity.Domain
	}
	query = whitespaceRe.ReplaceAllString(strings.TrimSpace(query), " ")

	base, _ := url.Parse(a.src.BaseURL)
	params := url.Values{}
	params.Add("key", a.src.APIKey)
	params.Add("cx", a.src.EngineID)
	params.Add("q", query)
	params.Add("num", fmt.Sprintf("%d", maxResults))
	params.Add("dateRestrict", fmt.Sprintf("d%d", windowDays))
	base.RawQuery = params.Encode()
	return base.String()
}

// statusToError maps HTTP status codes onto the pipeline error taxonomy.
// Shared by all HTTP-backed source adapters.
func statusToError(source string, status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return errors.NewSourceRateLimitedError(source)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.NewAuthError(source, fmt.Sprintf("status %d", status))
	case status >= 500:
		return errors.NewTransientSourceError(source, fmt.Errorf("status %d", status))
	default:
		return errors.NewMalformedResponseError(source, fmt.Errorf("unexpected status %d", status))
	}
}
