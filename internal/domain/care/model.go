// Package care resolves which users are entitled to a patient's
// notifications: the patient themselves plus every caregiver holding an
// active care relationship.
package care

import (
	"time"

	"github.com/google/uuid"
)

// Access types granted to recipients.
const (
	AccessOwner     = "owner"
	AccessCaregiver = "caregiver"
)

// Access levels granted to recipients.
const (
	LevelAdmin = "admin"
	LevelWrite = "write"
)

// Recipient is a user entitled to receive a patient's notifications.
type Recipient struct {
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	ProfileType string    `json:"profile_type"`
	AccessType  string    `json:"access_type"`
	AccessLevel string    `json:"access_level"`
}

// Relationship is a care edge between a caregiver and a patient.
type Relationship struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	CaregiverID uuid.UUID `db:"caregiver_id" json:"caregiver_id"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// User is the read model for an account holder.
type User struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Email       string    `db:"email" json:"email"`
	ProfileType string    `db:"profile_type" json:"profile_type"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
