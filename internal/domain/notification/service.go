package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caretrack/caretrack/internal/domain/audit"
	"github.com/caretrack/caretrack/internal/domain/care"
	"github.com/caretrack/caretrack/internal/domain/events"
	"github.com/caretrack/caretrack/internal/platform/clock"
	"github.com/caretrack/caretrack/internal/platform/metrics"
	"github.com/caretrack/caretrack/internal/platform/ws"
)

// RecipientResolver yields the users entitled to a patient's notifications.
type RecipientResolver interface {
	ResolveRecipients(ctx context.Context, patientID uuid.UUID) ([]care.Recipient, error)
}

// Pusher delivers an event to a user's live session, reporting whether one
// accepted it.
type Pusher interface {
	Push(userID string, event ws.Event) bool
}

// AuditRecorder appends trail entries best-effort.
type AuditRecorder interface {
	Record(ctx context.Context, e *audit.Entry)
}

// Service orchestrates the notification pipeline and serves the read surface.
type Service struct {
	repo     Repository
	resolver RecipientResolver
	auditor  AuditRecorder
	pusher   Pusher
	clk      clock.Clock
	loc      *time.Location
	logger   zerolog.Logger
}

func NewService(repo Repository, resolver RecipientResolver, auditor AuditRecorder,
	pusher Pusher, clk clock.Clock, loc *time.Location, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		auditor:  auditor,
		pusher:   pusher,
		clk:      clk,
		loc:      loc,
		logger:   logger.With().Str("component", "notification").Logger(),
	}
}

// Dispatch runs one candidate through the pipeline: dedup-create, recipient
// resolution, fan-out, bookkeeping, audit and push. A suppressed duplicate is
// a successful no-op.
func (s *Service) Dispatch(ctx context.Context, c events.Candidate) error {
	if c.PatientID == uuid.Nil {
		return fmt.Errorf("dispatch: candidate has no patient id")
	}

	now := s.clk.Now()
	day := clock.Day(now, s.loc)

	g := &GlobalNotification{
		PatientID:    c.PatientID,
		Type:         c.Type,
		Title:        c.Title,
		Message:      c.Message,
		RelatedID:    c.RelatedID,
		RelatedType:  c.RelatedType,
		RelatedName:  c.RelatedName,
		Priority:     c.Priority,
		UrgencyScore: UrgencyScore(c.Priority),
		Bucket:       c.Bucket,
		ScheduledAt:  c.ScheduledAt,
		TriggerAt:    now,
		DedupKey:     DedupKey(c.Type, c.PatientID, c.RelatedID, c.Bucket, day),
	}

	created, err := s.repo.CreateGlobal(ctx, g)
	if err != nil {
		return fmt.Errorf("creating global notification: %w", err)
	}
	if !created {
		// An active record for this (event, bucket, day) already exists;
		// another tick got there first.
		metrics.RecordNotificationSuppressed(c.Type, c.Bucket)
		s.logger.Debug().Str("dedup_key", g.DedupKey).Msg("duplicate suppressed")
		return nil
	}
	metrics.RecordNotificationCreated(c.Type, c.Bucket)

	recipients, err := s.resolver.ResolveRecipients(ctx, c.PatientID)
	if err != nil {
		s.recordFailure(ctx, g, err)
		return fmt.Errorf("resolving recipients: %w", err)
	}

	items := make([]*UserNotification, 0, len(recipients))
	for _, rcp := range recipients {
		items = append(items, &UserNotification{
			GlobalID:      g.ID,
			UserID:        rcp.UserID,
			PatientID:     c.PatientID,
			RecipientName: rcp.Name,
			ProfileType:   rcp.ProfileType,
			AccessType:    rcp.AccessType,
			AccessLevel:   rcp.AccessLevel,
			Priority:      c.Priority,
		})
	}

	count, fanErr := s.repo.FanOut(ctx, items)
	metrics.RecordFanOut(count)

	done := s.clk.Now()
	g.ProcessedAt = &done
	g.DistributedAt = &done
	g.DistributionCount = count
	if fanErr != nil {
		msg := fanErr.Error()
		g.LastError = &msg
		g.RetryCount++
	}
	if err := s.repo.UpdateGlobal(ctx, g); err != nil {
		return fmt.Errorf("updating global notification: %w", err)
	}

	after, _ := json.Marshal(map[string]interface{}{
		"dedup_key":          g.DedupKey,
		"bucket":             g.Bucket,
		"distribution_count": count,
	})
	s.auditor.Record(ctx, &audit.Entry{
		EntityType: "notification",
		EntityID:   &g.ID,
		Action:     audit.ActionDistribute,
		ActorName:  "scheduler",
		PatientID:  &c.PatientID,
		Success:    fanErr == nil,
		After:      after,
	})

	s.push(items, g, now)

	return fanErr
}

// push offers the new notification to every recipient's live session.
func (s *Service) push(items []*UserNotification, g *GlobalNotification, now time.Time) {
	for _, item := range items {
		if item.DeliveryStatus == DeliveryFailed {
			continue
		}
		view := UserNotificationView{
			ID:          item.ID,
			GlobalID:    g.ID,
			PatientID:   g.PatientID,
			AccessType:  item.AccessType,
			Type:        g.Type,
			Title:       g.Title,
			Message:     g.Message,
			Priority:    g.Priority,
			Bucket:      g.Bucket,
			RelatedType: g.RelatedType,
			RelatedName: g.RelatedName,
			ScheduledAt: g.ScheduledAt,
			CreatedAt:   now,
		}
		payload, err := json.Marshal(view)
		if err != nil {
			continue
		}
		delivered := s.pusher.Push(item.UserID.String(), ws.Event{
			Type:      ws.EventTypeNotification,
			Timestamp: now,
			Data:      payload,
		})
		metrics.RecordPush(delivered)
	}
}

func (s *Service) recordFailure(ctx context.Context, g *GlobalNotification, cause error) {
	msg := cause.Error()
	g.LastError = &msg
	g.RetryCount++
	if err := s.repo.UpdateGlobal(ctx, g); err != nil {
		s.logger.Error().Err(err).Str("id", g.ID.String()).Msg("failed to record dispatch failure")
	}
}

// ListForUser returns the user's notifications newest-first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*UserNotificationView, int, error) {
	return s.repo.ListForUser(ctx, userID, limit, offset)
}

// Summary returns the user's total and unread counts.
func (s *Service) Summary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	return s.repo.Summary(ctx, userID)
}

// MarkRead marks one of the user's notifications read and audits the access.
func (s *Service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		return err
	}
	s.auditor.Record(ctx, &audit.Entry{
		EntityType: "user_notification",
		EntityID:   &id,
		Action:     audit.ActionRead,
		ActorID:    &userID,
		Success:    true,
	})
	return nil
}

// MarkAllRead marks every unread notification of the user read.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

// Retire soft-deletes a global notification.
func (s *Service) Retire(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Retire(ctx, id); err != nil {
		return err
	}
	s.auditor.Record(ctx, &audit.Entry{
		EntityType: "notification",
		EntityID:   &id,
		Action:     audit.ActionRetire,
		ActorName:  "scheduler",
		Success:    true,
	})
	return nil
}
