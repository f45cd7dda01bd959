package events

import (
	"fmt"
	"time"
)

// Timing buckets. A bucket names a window relative to the scheduled instant;
// it participates in the deduplication key, so each window fires at most once
// per day no matter how many ticks observe it.
const (
	BucketThirtyMinBefore   = "30min_before"
	BucketFifteenMinBefore  = "15min_before"
	BucketOnTime            = "on_time"
	BucketFifteenMinOverdue = "15min_overdue"

	BucketDayBefore  = "24h_before"
	BucketHourBefore = "1h_before"
	BucketOverdue    = "overdue"
)

// continuousOverdue parameters: after the 15min_overdue window closes, the
// reminder repeats every interval until the cap. The repeat index is baked
// into the bucket name so each interval deduplicates independently.
const (
	continuousOverdueInterval = 30 * time.Minute
	continuousOverdueCap      = 6
)

// terminalStatuses excludes appointments and exams that no longer need
// reminders.
var terminalStatuses = map[string]bool{
	"completed": true,
	"cancelled": true,
}

// MedicationBucket classifies now against a medication scheduled at t.
// It returns the bucket name and whether now falls inside any window.
func MedicationBucket(t, now time.Time) (string, bool) {
	d := now.Sub(t)

	switch {
	case d >= -30*time.Minute && d < -25*time.Minute:
		return BucketThirtyMinBefore, true
	case d >= -15*time.Minute && d < -10*time.Minute:
		return BucketFifteenMinBefore, true
	case d >= -5*time.Minute && d <= 5*time.Minute:
		return BucketOnTime, true
	case d > 15*time.Minute && d <= 30*time.Minute:
		return BucketFifteenMinOverdue, true
	case d > 30*time.Minute:
		repeat := int((d-30*time.Minute-time.Nanosecond)/continuousOverdueInterval) + 1
		if repeat > continuousOverdueCap {
			return "", false
		}
		return fmt.Sprintf("continuous_overdue_%d", repeat), true
	default:
		return "", false
	}
}

// EventBucket classifies now against an appointment or exam scheduled at t.
// Terminal statuses (completed, cancelled) never match.
func EventBucket(t, now time.Time, status string) (string, bool) {
	if terminalStatuses[status] {
		return "", false
	}

	d := now.Sub(t)

	switch {
	case d >= -24*time.Hour && d < -23*time.Hour:
		return BucketDayBefore, true
	case d >= -time.Hour && d < -30*time.Minute:
		return BucketHourBefore, true
	case d > 0 && d <= 24*time.Hour:
		return BucketOverdue, true
	default:
		return "", false
	}
}

// PriorityForBucket escalates priority as a reminder ages: upcoming windows
// are normal, the first overdue window is high, repeated overdue windows are
// critical.
func PriorityForBucket(bucket string) string {
	switch bucket {
	case BucketFifteenMinOverdue, BucketOverdue:
		return PriorityHigh
	case BucketThirtyMinBefore, BucketFifteenMinBefore, BucketOnTime,
		BucketDayBefore, BucketHourBefore:
		return PriorityNormal
	default:
		// continuous_overdue_N
		return PriorityCritical
	}
}
