// Package audit keeps an append-only trail of pipeline activity. Writes are
// best-effort: a failed audit write is logged and counted but never escalates
// into the business operation that triggered it.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the pipeline.
const (
	ActionCreate     = "create"
	ActionDistribute = "distribute"
	ActionRead       = "read"
	ActionRetire     = "retire"
)

// Entry is a single audit trail record.
type Entry struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   *uuid.UUID      `db:"entity_id" json:"entity_id,omitempty"`
	Action     string          `db:"action" json:"action"`
	ActorID    *uuid.UUID      `db:"actor_id" json:"actor_id,omitempty"`
	ActorName  string          `db:"actor_name" json:"actor_name"`
	PatientID  *uuid.UUID      `db:"patient_id" json:"patient_id,omitempty"`
	Success    bool            `db:"success" json:"success"`
	IPAddress  string          `db:"ip_address" json:"ip_address"`
	UserAgent  string          `db:"user_agent" json:"user_agent"`
	RequestID  string          `db:"request_id" json:"request_id"`
	Before     json.RawMessage `db:"before_state" json:"before_state,omitempty"`
	After      json.RawMessage `db:"after_state" json:"after_state,omitempty"`
	DurationMS int64           `db:"duration_ms" json:"duration_ms"`
	RecordedAt time.Time       `db:"recorded_at" json:"recorded_at"`
}
