package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mitchellh/mapstructure"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// jobsMapping is the index mapping for job documents. Date fields ignore
// malformed values because pointer fields collapse to empty strings in
// the document.
func jobsMapping() map[string]any {
	return map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"id":            map[string]any{"type": "keyword"},
				"source_id":     map[string]any{"type": "keyword"},
				"title":         map[string]any{"type": "text"},
				"org_name":      map[string]any{"type": "text"},
				"apply_url":     map[string]any{"type": "keyword"},
				"location_raw":  map[string]any{"type": "text"},
				"country":       map[string]any{"type": "keyword"},
				"country_iso":   map[string]any{"type": "keyword"},
				"city":          map[string]any{"type": "keyword"},
				"is_remote":     map[string]any{"type": "boolean"},
				"deadline":      map[string]any{"type": "date", "format": "yyyy-MM-dd", "ignore_malformed": true},
				"description":   map[string]any{"type": "text"},
				"mission_tags":  map[string]any{"type": "keyword"},
				"quality_score": map[string]any{"type": "float"},
				"quality_grade": map[string]any{"type": "keyword"},
				"updated_at":    map[string]any{"type": "date"},
			},
		},
	}
}

// EnsureIndex creates the jobs index when missing. An existing index is
// left untouched.
func (s *Sink) EnsureIndex(ctx context.Context) error {
	exists, err := s.indexExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body, err := json.Marshal(jobsMapping())
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	res, err := s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index: %s", res.String())
	}

	s.log.Info("Created search index", "index", s.index)
	return nil
}

func (s *Sink) indexExists(ctx context.Context) (bool, error) {
	res, err := s.client.Indices.Exists(
		[]string{s.index},
		s.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK, nil
}

// GetDocument fetches one indexed document by job id.
func (s *Sink) GetDocument(ctx context.Context, id string) (*domain.SearchDocument, error) {
	res, err := s.client.Get(s.index, id, s.client.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error getting document: %s", res.String())
	}

	var envelope struct {
		Source any `json:"_source"`
	}
	if decodeErr := json.NewDecoder(res.Body).Decode(&envelope); decodeErr != nil {
		return nil, fmt.Errorf("error decoding response: %w", decodeErr)
	}
	if envelope.Source == nil {
		return nil, errors.New("document not found")
	}

	var doc domain.SearchDocument
	if decodeErr := mapstructure.Decode(envelope.Source, &doc); decodeErr != nil {
		return nil, fmt.Errorf("error unmarshaling document: %w", decodeErr)
	}
	return &doc, nil
}

// Count returns the number of indexed documents.
func (s *Sink) Count(ctx context.Context) (int64, error) {
	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(s.index),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("error counting documents: %s", res.String())
	}

	var result map[string]any
	if decodeErr := json.NewDecoder(res.Body).Decode(&result); decodeErr != nil {
		return 0, fmt.Errorf("error decoding count response: %w", decodeErr)
	}

	count, ok := result["count"].(float64)
	if !ok {
		return 0, errors.New("invalid count result")
	}
	return int64(count), nil
}

// Ping verifies the cluster answers.
func (s *Sink) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("error pinging search cluster: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error pinging search cluster: %s", res.String())
	}
	return nil
}
