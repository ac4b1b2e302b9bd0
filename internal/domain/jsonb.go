// Package domain provides domain models used across the application.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// JSONBMap maps to a PostgreSQL JSONB column. Used for raw-page headers,
// failed-insert payloads, quality factors, and extracted-field summaries.
type JSONBMap map[string]any

// Value implements driver.Valuer.
func (m JSONBMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
func (m *JSONBMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for JSONBMap scan")
	}

	if len(data) == 0 {
		*m = nil
		return nil
	}
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("unmarshal jsonb: %w", err)
	}
	return nil
}

// ValidationErrorKey is the payload key that carries the hard-error
// message on failed_inserts rows with operation=validation.
const ValidationErrorKey = "validation_error"

// ValidationPayload builds the failed-insert payload for a job blocked by
// validation: the offending job fields plus the first hard-error message.
func ValidationPayload(job *Job, validationError string) JSONBMap {
	payload := JobPayload(job)
	payload[ValidationErrorKey] = validationError
	return payload
}

// JobPayload flattens a job into a JSONB payload for the failure ledger.
func JobPayload(job *Job) JSONBMap {
	if job == nil {
		return JSONBMap{}
	}
	payload := JSONBMap{
		"title":     job.Title,
		"apply_url": job.ApplyURL,
		"source_id": job.SourceID,
	}
	if job.OrgName != nil {
		payload["org_name"] = *job.OrgName
	}
	if job.LocationRaw != nil {
		payload["location_raw"] = *job.LocationRaw
	}
	if job.Deadline != nil {
		payload["deadline"] = *job.Deadline
	}
	if job.CanonicalHash != "" {
		payload["canonical_hash"] = job.CanonicalHash
	}
	return payload
}
