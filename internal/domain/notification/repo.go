package notification

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a recipient copy does not exist or belongs to
// another user.
var ErrNotFound = errors.New("notification not found")

// Repository is the notification store contract.
type Repository interface {
	// CreateGlobal inserts a global notification, relying on the partial
	// unique index on dedup_key for insert-or-ignore semantics. It reports
	// whether a row was created; false with a nil error means an active
	// record with the same dedup key already exists.
	CreateGlobal(ctx context.Context, g *GlobalNotification) (bool, error)

	// UpdateGlobal advances distribution bookkeeping on an existing record.
	UpdateGlobal(ctx context.Context, g *GlobalNotification) error

	// Retire soft-deletes a global record (is_active=false).
	Retire(ctx context.Context, id uuid.UUID) error

	// FanOut inserts one recipient copy per item with a small per-item
	// retry. A failed item does not abort its siblings; the count of
	// successfully created copies is always returned.
	FanOut(ctx context.Context, items []*UserNotification) (int, error)

	// MarkRead marks one recipient copy read, scoped to its owner.
	// Idempotent: re-reading keeps the original read_at.
	MarkRead(ctx context.Context, id, userID uuid.UUID) error

	// MarkAllRead marks all of the user's unread copies read and returns
	// how many changed.
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error)

	// ListForUser returns the user's copies newest-first, joined to their
	// active global records only.
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*UserNotificationView, int, error)

	// Summary returns total and unread counts for the user.
	Summary(ctx context.Context, userID uuid.UUID) (*Summary, error)
}
