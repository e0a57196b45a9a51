// Package enrich pulls CRM account context for a tracked entity so the
// notification stage can describe the relationship, not just the event.
// Enrichment is strictly best-effort: a CRM outage degrades to a nil
// context and the pipeline carries on.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clientpulse/internal/common/config"
	"clientpulse/internal/common/errors"
	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
)

// Enricher is the CRM lookup the engine depends on.
type Enricher interface {
	Enrich(ctx context.Context, entity models.Entity) (*models.EnrichmentContext, error)
}

// CRMEnricher reads account records from a Zoho-style CRM REST API.
type CRMEnricher struct {
	baseURL    string
	oauthToken string
	client     *http.Client
	log        logger.Logger
}

func NewCRMEnricher(cfg config.IntegrationConfig, log logger.Logger) *CRMEnricher {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &CRMEnricher{
		baseURL:    strings.TrimRight(cfg.CRM.BaseURL, "/"),
		oauthToken: cfg.CRM.OAuthToken,
		client:     &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

type accountRecord struct {
	ID                string  `json:"id"`
	HealthScore       float64 `json:"Health_Score"`
	AnnualRevenue     float64 `json:"Annual_Revenue"`
	OpenOpportunities int     `json:"Open_Opportunities"`
	ContractEndDate   string  `json:"Contract_End_Date"`
	Contacts          []struct {
		FullName string `json:"Full_Name"`
		Email    string `json:"Email"`
		Title    string `json:"Title"`
	} `json:"Contacts"`
}

// Enrich looks the entity up by name. A missing account is not an error,
// just a nil context; transport and shape failures are reported so the
// caller can log them, but callers degrade to nil either way.
func (e *CRMEnricher) Enrich(ctx context.Context, entity models.Entity) (*models.EnrichmentContext, error) {
	searchURL := fmt.Sprintf("%s/Accounts/search?criteria=%s",
		e.baseURL, url.QueryEscape(fmt.Sprintf("(Account_Name:equals:%s)", entity.Name)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, errors.NewEnrichmentFailedError(err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+e.oauthToken)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.NewEnrichmentFailedError(err)
	}
	defer resp.Body.Close()

	// Zoho returns 204 when the search matches nothing.
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		e.log.Debug("no CRM account for entity", map[string]interface{}{
			"entity": entity.Name,
		})
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.NewEnrichmentFailedError(
			fmt.Errorf("CRM search returned status %d: %s", resp.StatusCode, string(body)))
	}

	var result struct {
		Data []accountRecord `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.NewEnrichmentFailedError(err)
	}
	if len(result.Data) == 0 {
		return nil, nil
	}

	return toContext(result.Data[0]), nil
}

func toContext(rec accountRecord) *models.EnrichmentContext {
	ec := &models.EnrichmentContext{
		AccountID:         rec.ID,
		HealthScore:       rec.HealthScore,
		AnnualRevenue:     rec.AnnualRevenue,
		OpenOpportunities: rec.OpenOpportunities,
	}
	if rec.ContractEndDate != "" {
		if ts, err := time.Parse("2006-01-02", rec.ContractEndDate); err == nil {
			ec.ContractEndDate = &ts
		}
	}
	for _, c := range rec.Contacts {
		ec.Contacts = append(ec.Contacts, models.CRMContact{
			Name:  c.FullName,
			Email: c.Email,
			Title: c.Title,
		})
	}
	return ec
}
