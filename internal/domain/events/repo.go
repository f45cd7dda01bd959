package events

import (
	"context"
	"time"
)

// MedicationRepository reads active prescriptions with their schedule times.
type MedicationRepository interface {
	// ListActiveOn returns medications whose date range covers the given day,
	// with active schedule times attached.
	ListActiveOn(ctx context.Context, day time.Time) ([]*Medication, error)
}

// AppointmentRepository reads appointments in a reminder-relevant window.
type AppointmentRepository interface {
	// ListBetween returns non-terminal appointments scheduled in [from, to].
	ListBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error)
}

// ExamRepository reads exams in a reminder-relevant window.
type ExamRepository interface {
	// ListBetween returns non-terminal exams scheduled in [from, to].
	ListBetween(ctx context.Context, from, to time.Time) ([]*Exam, error)
}
