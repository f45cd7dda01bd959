package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caretrack/caretrack/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// fanOutRetries bounds how often a single recipient insert is retried before
// the failure is recorded and the loop moves on.
const fanOutRetries = 2

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *repoPG) CreateGlobal(ctx context.Context, g *GlobalNotification) (bool, error) {
	g.ID = uuid.New()
	g.IsActive = true

	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO global_notification (id, patient_id, type, subtype, title, message,
			related_id, related_type, related_name, priority, urgency_score, bucket,
			scheduled_at, trigger_at, dedup_key, is_active, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (dedup_key) WHERE is_active DO NOTHING`,
		g.ID, g.PatientID, g.Type, g.Subtype, g.Title, g.Message,
		g.RelatedID, g.RelatedType, g.RelatedName, g.Priority, g.UrgencyScore, g.Bucket,
		g.ScheduledAt, g.TriggerAt, g.DedupKey, g.IsActive, g.Metadata)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) UpdateGlobal(ctx context.Context, g *GlobalNotification) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE global_notification
		SET processed_at=$2, distributed_at=$3, distribution_count=$4,
			retry_count=$5, last_error=$6, updated_at=NOW()
		WHERE id = $1`,
		g.ID, g.ProcessedAt, g.DistributedAt, g.DistributionCount,
		g.RetryCount, g.LastError)
	return err
}

func (r *repoPG) Retire(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE global_notification SET is_active=false, updated_at=NOW() WHERE id = $1`, id)
	return err
}

func (r *repoPG) insertUserNotification(ctx context.Context, item *UserNotification) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO user_notification (id, global_id, user_id, patient_id,
			recipient_name, profile_type, access_type, access_level, priority,
			delivery_status, attempt_count, last_error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		item.ID, item.GlobalID, item.UserID, item.PatientID,
		item.RecipientName, item.ProfileType, item.AccessType, item.AccessLevel, item.Priority,
		item.DeliveryStatus, item.AttemptCount, item.LastError)
	return err
}

func (r *repoPG) FanOut(ctx context.Context, items []*UserNotification) (int, error) {
	created := 0
	var firstErr error

	for _, item := range items {
		var err error
		for attempt := 1; attempt <= fanOutRetries+1; attempt++ {
			item.ID = uuid.New()
			item.AttemptCount = attempt
			item.DeliveryStatus = DeliveryDelivered
			if err = r.insertUserNotification(ctx, item); err == nil {
				created++
				break
			}
		}
		if err != nil {
			// Leave a failed marker row so the attempt stays visible; a
			// failure writing the marker itself is only carried upward.
			msg := err.Error()
			item.ID = uuid.New()
			item.DeliveryStatus = DeliveryFailed
			item.LastError = &msg
			_ = r.insertUserNotification(ctx, item)
			if firstErr == nil {
				firstErr = fmt.Errorf("fan-out to user %s: %w", item.UserID, err)
			}
		}
	}
	return created, firstErr
}

func (r *repoPG) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE user_notification
		SET is_read=true, read_at=COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE user_notification
		SET is_read=true, read_at=COALESCE(read_at, NOW())
		WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

const viewCols = `un.id, un.global_id, un.patient_id, un.access_type,
	gn.type, gn.title, gn.message, gn.priority, gn.bucket,
	gn.related_type, gn.related_name, gn.scheduled_at,
	un.is_read, un.read_at, un.created_at`

func scanView(row pgx.Row) (*UserNotificationView, error) {
	var v UserNotificationView
	err := row.Scan(&v.ID, &v.GlobalID, &v.PatientID, &v.AccessType,
		&v.Type, &v.Title, &v.Message, &v.Priority, &v.Bucket,
		&v.RelatedType, &v.RelatedName, &v.ScheduledAt,
		&v.IsRead, &v.ReadAt, &v.CreatedAt)
	return &v, err
}

func (r *repoPG) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*UserNotificationView, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*)
		FROM user_notification un
		JOIN global_notification gn ON gn.id = un.global_id AND gn.is_active
		WHERE un.user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+viewCols+`
		FROM user_notification un
		JOIN global_notification gn ON gn.id = un.global_id AND gn.is_active
		WHERE un.user_id = $1
		ORDER BY un.created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*UserNotificationView
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Summary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	var s Summary
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT un.is_read)
		FROM user_notification un
		JOIN global_notification gn ON gn.id = un.global_id AND gn.is_active
		WHERE un.user_id = $1`, userID).Scan(&s.Total, &s.Unread)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
