// Package store persists pipeline output: events, notifications, and job
// runs in Postgres; raw source payloads in Elasticsearch for audit.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"clientpulse/internal/common/errors"
	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
)

// RecordStore is the Postgres-backed system of record for entities,
// events, recipients, notifications, and job runs.
type RecordStore struct {
	db  *sql.DB
	log logger.Logger
}

func NewRecordStore(db *sql.DB, log logger.Logger) *RecordStore {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &RecordStore{db: db, log: log}
}

// ListMonitoredEntities returns every active entity, ordered by name for
// stable scheduling.
func (s *RecordStore) ListMonitoredEntities(ctx context.Context) ([]models.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, COALESCE(domain, ''), COALESCE(industry, ''), status
		FROM monitored_entities
		WHERE status = 'active'
		ORDER BY name`)
	if err != nil {
		return nil, errors.NewOrchestrationError("failed to list monitored entities", err)
	}
	defer rows.Close()

	var entities []models.Entity
	for rows.Next() {
		var e models.Entity
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Name, &e.Domain, &e.Industry, &e.Status); err != nil {
			return nil, errors.NewOrchestrationError("failed to scan entity row", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewOrchestrationError("entity row iteration failed", err)
	}
	return entities, nil
}

// FindEventsSince returns stored events for one entity discovered at or
// after the cutoff. An empty source matches all sources.
func (s *RecordStore) FindEventsSince(ctx context.Context, entityID, source string, since time.Time) ([]models.StoredEvent, error) {
	query := `
		SELECT id, entity_id, title, COALESCE(url, ''), source_name, source_type, category, discovered_at
		FROM events
		WHERE entity_id = $1 AND discovered_at >= $2`
	args := []interface{}{entityID, since}
	if source != "" {
		query += ` AND source_name = $3`
		args = append(args, source)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewEventStoreFailedError(err)
	}
	defer rows.Close()

	var events []models.StoredEvent
	for rows.Next() {
		var ev models.StoredEvent
		if err := rows.Scan(&ev.ID, &ev.EntityID, &ev.Title, &ev.URL, &ev.SourceName, &ev.SourceType, &ev.Category, &ev.DiscoveredAt); err != nil {
			return nil, errors.NewEventStoreFailedError(err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CreateEvent inserts a classified event with its optional insights and
// enrichment, returning the new event id.
func (s *RecordStore) CreateEvent(ctx context.Context, entity models.Entity, ev models.ClassifiedEvent, insights *models.Insights, enrichment *models.EnrichmentContext) (string, error) {
	id := uuid.NewString()

	var insightsJSON, enrichmentJSON, tagsJSON []byte
	var err error
	if insights != nil {
		if insightsJSON, err = json.Marshal(insights); err != nil {
			return "", errors.NewEventStoreFailedError(err)
		}
	}
	if enrichment != nil {
		if enrichmentJSON, err = json.Marshal(enrichment); err != nil {
			return "", errors.NewEventStoreFailedError(err)
		}
	}
	if len(ev.Classification.Tags) > 0 {
		if tagsJSON, err = json.Marshal(ev.Classification.Tags); err != nil {
			return "", errors.NewEventStoreFailedError(err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (
			id, entity_id, tenant_id, title, snippet, url,
			source_name, source_type, content_hash,
			category, relevance_score, sentiment_score, confidence_score,
			tags, event_date, published_at, discovered_at,
			classifier_provider, insights, enrichment
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		id, entity.ID, entity.TenantID, ev.Raw.Title, ev.Raw.Snippet, nullString(ev.Raw.URL),
		ev.Raw.SourceName, ev.Raw.SourceType, ev.Raw.ContentHash,
		ev.Classification.Category, ev.Classification.RelevanceScore,
		ev.Classification.SentimentScore, ev.Classification.ConfidenceScore,
		nullBytes(tagsJSON), ev.Classification.EventDate, nullTime(ev.Raw.PublishedAt), ev.Raw.DiscoveredAt,
		ev.Classification.Provider, nullBytes(insightsJSON), nullBytes(enrichmentJSON),
	)
	if err != nil {
		return "", errors.NewEventStoreFailedError(err)
	}
	return id, nil
}

// RecipientsFor returns the notification recipients of a tenant.
func (s *RecordStore) RecipientsFor(ctx context.Context, tenantID string) ([]models.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, email, COALESCE(phone, ''),
		       relevance_threshold, COALESCE(categories, '[]'),
		       email_opt_in, sms_opt_in
		FROM recipients
		WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, errors.NewEventStoreFailedError(err)
	}
	defer rows.Close()

	var recipients []models.Recipient
	for rows.Next() {
		var r models.Recipient
		var categories []byte
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Name, &r.Email, &r.Phone,
			&r.RelevanceThreshold, &categories, &r.EmailOptIn, &r.SMSOptIn); err != nil {
			return nil, errors.NewEventStoreFailedError(err)
		}
		if len(categories) > 0 {
			if err := json.Unmarshal(categories, &r.Categories); err != nil {
				s.log.Warn("unparseable recipient categories, treating as all", map[string]interface{}{
					"recipient": r.ID,
				})
				r.Categories = nil
			}
		}
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}

// CreateNotification inserts one delivery audit row.
func (s *RecordStore) CreateNotification(ctx context.Context, n models.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, event_id, channel, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		n.ID, n.RecipientID, n.EventID, n.Channel, n.Status, n.CreatedAt)
	if err != nil {
		return errors.NewEventStoreFailedError(err)
	}
	return nil
}

// CreateJobRun inserts a new run row in its initial state.
func (s *RecordStore) CreateJobRun(ctx context.Context, run models.JobRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_runs (id, status, started_at, entities_processed, items_found, items_new)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		run.ID, run.Status, run.StartedAt, run.EntitiesProcessed, run.ItemsFound, run.ItemsNew)
	if err != nil {
		return errors.NewEventStoreFailedError(err)
	}
	return nil
}

// UpdateJobRun writes the run's current status and counters.
func (s *RecordStore) UpdateJobRun(ctx context.Context, run models.JobRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE job_runs
		SET status = $2, completed_at = $3, entities_processed = $4,
		    items_found = $5, items_new = $6, last_error = $7
		WHERE id = $1`,
		run.ID, run.Status, run.CompletedAt, run.EntitiesProcessed,
		run.ItemsFound, run.ItemsNew, nullString(run.LastError))
	if err != nil {
		return errors.NewEventStoreFailedError(err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
