package care

import (
	"context"

	"github.com/google/uuid"
)

// Repository reads users and care relationship edges.
type Repository interface {
	// GetUser returns the user with the given id.
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	// ListActiveCaregivers returns users holding an active care relationship
	// with the patient.
	ListActiveCaregivers(ctx context.Context, patientID uuid.UUID) ([]*User, error)
}
