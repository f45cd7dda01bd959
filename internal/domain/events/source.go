package events

import (
	"context"
	"fmt"
	"time"

	"github.com/caretrack/caretrack/internal/platform/clock"
)

// DueSource produces the reminder candidates that are due at a given instant.
// Each scheduler tick snapshots the clock once and passes the same now to
// every source.
type DueSource interface {
	Name() string
	DueEvents(ctx context.Context, now time.Time) ([]Candidate, error)
}

// eventWindow bounds how far around now the appointment and exam queries
// reach. 25h covers the 24h_before window with slack for clock skew.
const eventWindow = 25 * time.Hour

// MedicationSource scans active medications and classifies each of today's
// intake times against now.
type MedicationSource struct {
	repo MedicationRepository
	loc  *time.Location
}

func NewMedicationSource(repo MedicationRepository, loc *time.Location) *MedicationSource {
	return &MedicationSource{repo: repo, loc: loc}
}

func (s *MedicationSource) Name() string { return "medications" }

func (s *MedicationSource) DueEvents(ctx context.Context, now time.Time) ([]Candidate, error) {
	meds, err := s.repo.ListActiveOn(ctx, now.In(s.loc))
	if err != nil {
		return nil, fmt.Errorf("listing active medications: %w", err)
	}

	var candidates []Candidate
	for _, med := range meds {
		for _, st := range med.Schedule {
			scheduled := clock.At(now, st.Hour, st.Minute, s.loc)
			bucket, ok := MedicationBucket(scheduled, now)
			if !ok {
				continue
			}
			candidates = append(candidates, Candidate{
				Type:        TypeMedicationReminder,
				PatientID:   med.PatientID,
				RelatedID:   med.ID,
				RelatedType: RelatedMedication,
				RelatedName: med.Name,
				ScheduledAt: scheduled,
				Bucket:      bucket,
				Priority:    PriorityForBucket(bucket),
				Title:       medicationTitle(med.Name, bucket),
				Message:     medicationMessage(med, scheduled),
			})
		}
	}
	return candidates, nil
}

func medicationTitle(name, bucket string) string {
	switch bucket {
	case BucketThirtyMinBefore, BucketFifteenMinBefore:
		return fmt.Sprintf("Upcoming dose: %s", name)
	case BucketOnTime:
		return fmt.Sprintf("Time to take %s", name)
	default:
		return fmt.Sprintf("Missed dose: %s", name)
	}
}

func medicationMessage(med *Medication, scheduled time.Time) string {
	if med.Dosage != nil && *med.Dosage != "" {
		return fmt.Sprintf("%s (%s) is scheduled for %s", med.Name, *med.Dosage, scheduled.Format("15:04"))
	}
	return fmt.Sprintf("%s is scheduled for %s", med.Name, scheduled.Format("15:04"))
}

// AppointmentSource scans upcoming and recently missed appointments.
type AppointmentSource struct {
	repo AppointmentRepository
}

func NewAppointmentSource(repo AppointmentRepository) *AppointmentSource {
	return &AppointmentSource{repo: repo}
}

func (s *AppointmentSource) Name() string { return "appointments" }

func (s *AppointmentSource) DueEvents(ctx context.Context, now time.Time) ([]Candidate, error) {
	items, err := s.repo.ListBetween(ctx, now.Add(-eventWindow), now.Add(eventWindow))
	if err != nil {
		return nil, fmt.Errorf("listing appointments: %w", err)
	}

	var candidates []Candidate
	for _, a := range items {
		bucket, ok := EventBucket(a.ScheduledAt, now, a.Status)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			Type:        TypeAppointmentReminder,
			PatientID:   a.PatientID,
			RelatedID:   a.ID,
			RelatedType: RelatedAppointment,
			RelatedName: a.Title,
			ScheduledAt: a.ScheduledAt,
			Bucket:      bucket,
			Priority:    PriorityForBucket(bucket),
			Title:       eventTitle("Appointment", a.Title, bucket),
			Message:     fmt.Sprintf("%s is scheduled for %s", a.Title, a.ScheduledAt.Format("Jan 2 at 15:04")),
		})
	}
	return candidates, nil
}

// ExamSource scans upcoming and recently missed exams.
type ExamSource struct {
	repo ExamRepository
}

func NewExamSource(repo ExamRepository) *ExamSource {
	return &ExamSource{repo: repo}
}

func (s *ExamSource) Name() string { return "exams" }

func (s *ExamSource) DueEvents(ctx context.Context, now time.Time) ([]Candidate, error) {
	items, err := s.repo.ListBetween(ctx, now.Add(-eventWindow), now.Add(eventWindow))
	if err != nil {
		return nil, fmt.Errorf("listing exams: %w", err)
	}

	var candidates []Candidate
	for _, e := range items {
		bucket, ok := EventBucket(e.ScheduledAt, now, e.Status)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			Type:        TypeTestReminder,
			PatientID:   e.PatientID,
			RelatedID:   e.ID,
			RelatedType: RelatedExam,
			RelatedName: e.Name,
			ScheduledAt: e.ScheduledAt,
			Bucket:      bucket,
			Priority:    PriorityForBucket(bucket),
			Title:       eventTitle("Exam", e.Name, bucket),
			Message:     fmt.Sprintf("%s is scheduled for %s", e.Name, e.ScheduledAt.Format("Jan 2 at 15:04")),
		})
	}
	return candidates, nil
}

func eventTitle(kind, name, bucket string) string {
	switch bucket {
	case BucketDayBefore:
		return fmt.Sprintf("%s tomorrow: %s", kind, name)
	case BucketHourBefore:
		return fmt.Sprintf("%s in one hour: %s", kind, name)
	default:
		return fmt.Sprintf("%s missed: %s", kind, name)
	}
}
