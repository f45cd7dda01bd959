package audit

import (
	"context"
)

// Repository is the append-only audit store. Entries are never updated or
// deleted.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	// Search filters by entity_type, action and patient_id.
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error)
}
