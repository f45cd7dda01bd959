package care

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Resolver computes the set of users entitled to a patient's notifications.
type Resolver struct {
	repo Repository
}

func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// ResolveRecipients returns the patient (owner/admin) followed by every
// active caregiver (caregiver/write), de-duplicated by user id. A zero
// patient id is a programmer error and fails loudly rather than resolving
// to an empty set.
func (r *Resolver) ResolveRecipients(ctx context.Context, patientID uuid.UUID) ([]Recipient, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("resolve recipients: patient id is required")
	}

	patient, err := r.repo.GetUser(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("loading patient %s: %w", patientID, err)
	}

	recipients := []Recipient{{
		UserID:      patient.ID,
		Name:        patient.Name,
		ProfileType: patient.ProfileType,
		AccessType:  AccessOwner,
		AccessLevel: LevelAdmin,
	}}
	seen := map[uuid.UUID]bool{patient.ID: true}

	caregivers, err := r.repo.ListActiveCaregivers(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("loading caregivers for %s: %w", patientID, err)
	}

	for _, cg := range caregivers {
		if seen[cg.ID] {
			continue
		}
		seen[cg.ID] = true
		recipients = append(recipients, Recipient{
			UserID:      cg.ID,
			Name:        cg.Name,
			ProfileType: cg.ProfileType,
			AccessType:  AccessCaregiver,
			AccessLevel: LevelWrite,
		})
	}

	return recipients, nil
}
