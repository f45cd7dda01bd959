// Package events provides the read side of the notification pipeline: the
// medical entities that generate reminders and the timing-bucket
// classification that decides when a reminder is due.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the pipeline.
const (
	TypeMedicationReminder  = "medication_reminder"
	TypeAppointmentReminder = "appointment_reminder"
	TypeTestReminder        = "test_reminder"
)

// Related entity types carried on candidates and notifications.
const (
	RelatedMedication  = "medication"
	RelatedAppointment = "appointment"
	RelatedExam        = "exam"
)

// Priorities, ordered by escalation.
const (
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ScheduleTime is a single daily intake time for a medication.
type ScheduleTime struct {
	ID           uuid.UUID `db:"id" json:"id"`
	MedicationID uuid.UUID `db:"medication_id" json:"medication_id"`
	Hour         int       `db:"hour" json:"hour"`
	Minute       int       `db:"minute" json:"minute"`
	IsActive     bool      `db:"is_active" json:"is_active"`
}

// Medication is the read model for an active prescription.
type Medication struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	PatientID uuid.UUID      `db:"patient_id" json:"patient_id"`
	Name      string         `db:"name" json:"name"`
	Dosage    *string        `db:"dosage" json:"dosage,omitempty"`
	StartDate time.Time      `db:"start_date" json:"start_date"`
	EndDate   *time.Time     `db:"end_date" json:"end_date,omitempty"`
	IsActive  bool           `db:"is_active" json:"is_active"`
	Schedule  []ScheduleTime `db:"-" json:"schedule,omitempty"`
}

// Appointment is the read model for a scheduled consultation.
type Appointment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	Title       string    `db:"title" json:"title"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	Status      string    `db:"status" json:"status"`
}

// Exam is the read model for a scheduled medical test.
type Exam struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	Name        string    `db:"name" json:"name"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	Status      string    `db:"status" json:"status"`
}

// Candidate is a due event produced by a source on one scheduler tick. It
// carries everything the notification service needs to build and dedupe a
// global notification.
type Candidate struct {
	Type        string
	PatientID   uuid.UUID
	RelatedID   uuid.UUID
	RelatedType string
	RelatedName string
	ScheduledAt time.Time
	Bucket      string
	Priority    string
	Title       string
	Message     string
}
