package events

import (
	"context"
	"time"

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

// =========== Medication Repository ===========

type medicationRepoPG struct{ pool *pgxpool.Pool }

func NewMedicationRepoPG(pool *pgxpool.Pool) MedicationRepository {
	return &medicationRepoPG{pool: pool}
}

func (r *medicationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const medicationCols = `id, patient_id, name, dosage, start_date, end_date, is_active`

func scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.PatientID, &m.Name, &m.Dosage, &m.StartDate, &m.EndDate, &m.IsActive)
	return &m, err
}

func (r *medicationRepoPG) ListActiveOn(ctx context.Context, day time.Time) ([]*Medication, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+medicationCols+` FROM medication
		WHERE is_active
		  AND start_date <= $1
		  AND (end_date IS NULL OR end_date >= $1)
		ORDER BY id`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []*Medication
	index := make(map[uuid.UUID]*Medication)
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		meds = append(meds, m)
		index[m.ID] = m
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	if len(meds) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(meds))
	for _, m := range meds {
		ids = append(ids, m.ID)
	}

	timeRows, err := r.conn(ctx).Query(ctx, `
		SELECT id, medication_id, hour, minute, is_active
		FROM medication_schedule
		WHERE is_active AND medication_id = ANY($1)
		ORDER BY medication_id, hour, minute`, ids)
	if err != nil {
		return nil, err
	}
	defer timeRows.Close()

	for timeRows.Next() {
		var st ScheduleTime
		if err := timeRows.Scan(&st.ID, &st.MedicationID, &st.Hour, &st.Minute, &st.IsActive); err != nil {
			return nil, err
		}
		if m, ok := index[st.MedicationID]; ok {
			m.Schedule = append(m.Schedule, st)
		}
	}
	return meds, timeRows.Err()
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *appointmentRepoPG) ListBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, title, scheduled_at, status FROM appointment
		WHERE scheduled_at BETWEEN $1 AND $2
		  AND status NOT IN ('completed', 'cancelled')
		ORDER BY scheduled_at`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.Title, &a.ScheduledAt, &a.Status); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}

// =========== Exam Repository ===========

type examRepoPG struct{ pool *pgxpool.Pool }

func NewExamRepoPG(pool *pgxpool.Pool) ExamRepository {
	return &examRepoPG{pool: pool}
}

func (r *examRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *examRepoPG) ListBetween(ctx context.Context, from, to time.Time) ([]*Exam, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, name, scheduled_at, status FROM exam
		WHERE scheduled_at BETWEEN $1 AND $2
		  AND status NOT IN ('completed', 'cancelled')
		ORDER BY scheduled_at`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Exam
	for rows.Next() {
		var e Exam
		if err := rows.Scan(&e.ID, &e.PatientID, &e.Name, &e.ScheduledAt, &e.Status); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}
