// Package notification implements the enterprise notification store and the
// dispatch pipeline: day-scoped deduplication, recipient fan-out, audit and
// live push.
package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GlobalNotification is the single logical record for one (event, timing
// bucket, day). It is created once, mutated only to advance distribution
// bookkeeping or to retire it, and never physically deleted by the pipeline.
type GlobalNotification struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	PatientID         uuid.UUID       `db:"patient_id" json:"patient_id"`
	Type              string          `db:"type" json:"type"`
	Subtype           *string         `db:"subtype" json:"subtype,omitempty"`
	Title             string          `db:"title" json:"title"`
	Message           string          `db:"message" json:"message"`
	RelatedID         uuid.UUID       `db:"related_id" json:"related_id"`
	RelatedType       string          `db:"related_type" json:"related_type"`
	RelatedName       string          `db:"related_name" json:"related_name"`
	Priority          string          `db:"priority" json:"priority"`
	UrgencyScore      int             `db:"urgency_score" json:"urgency_score"`
	Bucket            string          `db:"bucket" json:"bucket"`
	ScheduledAt       time.Time       `db:"scheduled_at" json:"scheduled_at"`
	TriggerAt         time.Time       `db:"trigger_at" json:"trigger_at"`
	ProcessedAt       *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	DistributedAt     *time.Time      `db:"distributed_at" json:"distributed_at,omitempty"`
	DistributionCount int             `db:"distribution_count" json:"distribution_count"`
	DedupKey          string          `db:"dedup_key" json:"dedup_key"`
	IsActive          bool            `db:"is_active" json:"is_active"`
	RetryCount        int             `db:"retry_count" json:"retry_count"`
	LastError         *string         `db:"last_error" json:"last_error,omitempty"`
	Metadata          json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// Delivery statuses for recipient copies.
const (
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// UserNotification is one recipient's copy of a global notification. The
// recipient's name, profile and access are cached at delivery time so the
// copy stays meaningful if the relationship later changes.
type UserNotification struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	GlobalID       uuid.UUID  `db:"global_id" json:"global_id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	RecipientName  string     `db:"recipient_name" json:"recipient_name"`
	ProfileType    string     `db:"profile_type" json:"profile_type"`
	AccessType     string     `db:"access_type" json:"access_type"`
	AccessLevel    string     `db:"access_level" json:"access_level"`
	Priority       string     `db:"priority" json:"priority"`
	DeliveryStatus string     `db:"delivery_status" json:"delivery_status"`
	AttemptCount   int        `db:"attempt_count" json:"attempt_count"`
	LastError      *string    `db:"last_error" json:"last_error,omitempty"`
	IsRead         bool       `db:"is_read" json:"is_read"`
	ReadAt         *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// UserNotificationView is the joined row returned by the read surface: the
// recipient copy plus the fields of its active global record.
type UserNotificationView struct {
	ID          uuid.UUID  `json:"id"`
	GlobalID    uuid.UUID  `json:"global_id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	AccessType  string     `json:"access_type"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Priority    string     `json:"priority"`
	Bucket      string     `json:"bucket"`
	RelatedType string     `json:"related_type"`
	RelatedName string     `json:"related_name"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	IsRead      bool       `json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Summary is the per-user notification count surface.
type Summary struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
}

// DedupKey builds the day-scoped deduplication key. day is the civil date
// (YYYY-MM-DD) produced by the pipeline clock; together with the partial
// unique index on active rows it guarantees at most one active notification
// per (type, patient, related entity, bucket, day).
func DedupKey(notifType string, patientID, relatedID uuid.UUID, bucket, day string) string {
	return fmt.Sprintf("enterprise_%s_%s_%s_%s_%s", notifType, patientID, relatedID, bucket, day)
}

// urgencyScores maps priority to the coarse score carried on the record.
var urgencyScores = map[string]int{
	"normal":   1,
	"high":     2,
	"critical": 3,
}

// UrgencyScore returns the score for a priority, defaulting to normal.
func UrgencyScore(priority string) int {
	if s, ok := urgencyScores[priority]; ok {
		return s
	}
	return urgencyScores["normal"]
}
