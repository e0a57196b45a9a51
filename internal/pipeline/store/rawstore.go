// internal/pipeline/store/rawstore.go
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	"clientpulse/internal/common/errors"
	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
)

// Raw document processing states.
const (
	RawStatusPending   = "pending"
	RawStatusProcessed = "processed"
	RawStatusFailed    = "failed"
)

// RawStore archives every fetched item in Elasticsearch before the
// pipeline touches it, then marks each document with its processing
// outcome. The archive is the audit trail for "what did the sources
// actually say".
type RawStore struct {
	client *elasticsearch.Client
	index  string
	log    logger.Logger
}

func NewRawStore(client *elasticsearch.Client, index string, log logger.Logger) *RawStore {
	if index == "" {
		index = "monitoring-raw-results"
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &RawStore{client: client, index: index, log: log}
}

type rawDocument struct {
	JobRunID   string           `json:"jobRunId"`
	EntityID   string           `json:"entityId"`
	EntityName string           `json:"entityName"`
	Status     string           `json:"status"`
	IndexedAt  time.Time        `json:"indexedAt"`
	Result     models.RawResult `json:"result"`
}

// SaveRawResults indexes one document per item and returns their ids, in
// input order. A partial failure returns the ids written so far along
// with the error.
func (s *RawStore) SaveRawResults(ctx context.Context, jobRunID string, entity models.Entity, results []models.RawResult) ([]string, error) {
	ids := make([]string, 0, len(results))

	for _, res := range results {
		doc := rawDocument{
			JobRunID:   jobRunID,
			EntityID:   entity.ID,
			EntityName: entity.Name,
			Status:     RawStatusPending,
			IndexedAt:  time.Now().UTC(),
			Result:     res,
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return ids, errors.NewRawStoreFailedError(err)
		}

		id := uuid.NewString()
		req := esapi.IndexRequest{
			Index:      s.index,
			DocumentID: id,
			Body:       bytes.NewReader(body),
		}
		resp, err := req.Do(ctx, s.client)
		if err != nil {
			return ids, errors.NewRawStoreFailedError(err)
		}
		resp.Body.Close()
		if resp.IsError() {
			return ids, errors.NewRawStoreFailedError(fmt.Errorf("index returned %s", resp.Status()))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// MarkProcessed links a raw document to the event created from it.
func (s *RawStore) MarkProcessed(ctx context.Context, docID, eventID string) error {
	return s.update(ctx, docID, map[string]interface{}{
		"status":  RawStatusProcessed,
		"eventId": eventID,
	})
}

// MarkFailed records why a raw document produced no event.
func (s *RawStore) MarkFailed(ctx context.Context, docID, reason string) error {
	return s.update(ctx, docID, map[string]interface{}{
		"status": RawStatusFailed,
		"reason": reason,
	})
}

func (s *RawStore) update(ctx context.Context, docID string, fields map[string]interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"doc": fields})
	if err != nil {
		return errors.NewRawStoreFailedError(err)
	}

	req := esapi.UpdateRequest{
		Index:      s.index,
		DocumentID: docID,
		Body:       bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return errors.NewRawStoreFailedError(err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return errors.NewRawStoreFailedError(fmt.Errorf("update returned %s", resp.Status()))
	}
	return nil
}
