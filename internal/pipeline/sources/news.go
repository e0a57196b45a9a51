// internal/pipeline/sources/news.go
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"clientpulse/internal/common/errors"
	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
)

// NewsAdapter queries a news-API-shaped endpoint for articles mentioning a
// tracked entity within the lookback window.
type NewsAdapter struct {
	src    models.SourceConfig
	caller *Caller
	client *http.Client
	logger logger.Logger
}

func NewNewsAdapter(src models.SourceConfig, caller *Caller, timeout time.Duration, log logger.Logger) *NewsAdapter {
	return &NewsAdapter{
		src:    src,
		caller: caller,
		client: &http.Client{Timeout: timeout},
		logger: log.With(map[string]interface{}{"source": src.Name}),
	}
}

func (a *NewsAdapter) Source() models.SourceConfig { return a.src }

func (a *NewsAdapter) Fetch(ctx context.Context, entity models.Entity, windowDays, maxResults int) ([]models.RawResult, error) {
	var results []models.RawResult

	err := a.caller.Call(ctx, a.src, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.buildQueryURL(entity, windowDays, maxResults), nil)
		if err != nil {
			return errors.NewMalformedResponseError(a.src.Name, err)
		}
		req.Header.Set("X-Api-Key", a.src.APIKey)

		resp, err := a.client.Do(req)
		if err != nil {
			return errors.NewTransientSourceError(a.src.Name, err)
		}
		defer resp.Body.Close()

		if err := statusToError(a.src.Name, resp.StatusCode); err != nil {
			return err
		}

		var payload struct {
			Status   string        `json:"status"`
			Articles []newsArticle `json:"articles"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return errors.NewMalformedResponseError(a.src.Name, err)
		}
		if payload.Status != "" && payload.Status != "ok" {
			return errors.NewMalformedResponseError(a.src.Name, fmt.Errorf("api status %q", payload.Status))
		}

		results = normalizeAll(payload.Articles, a.src, time.Now().UTC(), a.logger)
		if len(results) > maxResults {
			results = results[:maxResults]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("news search completed", map[string]interface{}{
		"entity":      entity.Name,
		"resultCount": len(results),
	})
	return results, nil
}

func (a *NewsAdapter) buildQueryURL(entity models.Entity, windowDays, maxResults int) string {
	from := time.Now().UTC().AddDate(0, 0, -windowDays).Format("2006-01-02")

	base, _ := url.Parse(a.src.BaseURL)
	params := url.Values{}
	params.Add("q", fmt.Sprintf("%q", entity.Name))
	params.Add("from", from)
	params.Add("sortBy", "publishedAt")
	params.Add("pageSize", fmt.Sprintf("%d", maxResults))
	params.Add("language", "en")
	base.RawQuery = params.Encode()
	return base.String()
}
