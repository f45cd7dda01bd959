package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/caretrack/caretrack/internal/platform/metrics"
)

// Recorder writes audit entries without ever failing its caller. The trail
// is evidence, not a dependency: a notification that cannot be audited must
// still be delivered.
type Recorder struct {
	repo   Repository
	logger zerolog.Logger
}

func NewRecorder(repo Repository, logger zerolog.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Record appends the entry. Failures are logged and counted, never returned.
func (r *Recorder) Record(ctx context.Context, e *Entry) {
	if err := r.repo.Append(ctx, e); err != nil {
		metrics.RecordAuditFailure()
		r.logger.Error().Err(err).
			Str("entity_type", e.EntityType).
			Str("action", e.Action).
			Msg("audit write failed")
	}
}

// Search exposes the read side for the REST surface.
func (r *Recorder) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error) {
	return r.repo.Search(ctx, params, limit, offset)
}
