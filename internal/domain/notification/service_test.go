package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caretrack/caretrack/internal/domain/audit"
	"github.com/caretrack/caretrack/internal/domain/care"
	"github.com/caretrack/caretrack/internal/domain/events"
	"github.com/caretrack/caretrack/internal/platform/clock"
	"github.com/caretrack/caretrack/internal/platform/ws"
)

// mockRepo keeps globals keyed by dedup key, mirroring the partial unique
// index that backs deduplication in the real store.
type mockRepo struct {
	globals map[string]*GlobalNotification
	users   map[uuid.UUID]*UserNotification
	fanErr  error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		globals: map[string]*GlobalNotification{},
		users:   map[uuid.UUID]*UserNotification{},
	}
}

func (m *mockRepo) CreateGlobal(_ context.Context, g *GlobalNotification) (bool, error) {
	if existing, ok := m.globals[g.DedupKey]; ok && existing.IsActive {
		return false, nil
	}
	g.ID = uuid.New()
	g.IsActive = true
	m.globals[g.DedupKey] = g
	return true, nil
}

func (m *mockRepo) UpdateGlobal(_ context.Context, g *GlobalNotification) error {
	m.globals[g.DedupKey] = g
	return nil
}

func (m *mockRepo) Retire(_ context.Context, id uuid.UUID) error {
	for _, g := range m.globals {
		if g.ID == id {
			g.IsActive = false
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockRepo) FanOut(_ context.Context, items []*UserNotification) (int, error) {
	if m.fanErr != nil {
		return 0, m.fanErr
	}
	for _, item := range items {
		item.ID = uuid.New()
		item.DeliveryStatus = DeliveryDelivered
		item.AttemptCount = 1
		m.users[item.ID] = item
	}
	return len(items), nil
}

func (m *mockRepo) MarkRead(_ context.Context, id, userID uuid.UUID) error {
	item, ok := m.users[id]
	if !ok || item.UserID != userID {
		return ErrNotFound
	}
	item.IsRead = true
	if item.ReadAt == nil {
		now := time.Now()
		item.ReadAt = &now
	}
	return nil
}

func (m *mockRepo) MarkAllRead(_ context.Context, userID uuid.UUID) (int, error) {
	n := 0
	for _, item := range m.users {
		if item.UserID == userID && !item.IsRead {
			item.IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) ListForUser(_ context.Context, userID uuid.UUID, _, _ int) ([]*UserNotificationView, int, error) {
	var views []*UserNotificationView
	for _, item := range m.users {
		if item.UserID == userID {
			views = append(views, &UserNotificationView{ID: item.ID, GlobalID: item.GlobalID})
		}
	}
	return views, len(views), nil
}

func (m *mockRepo) Summary(_ context.Context, userID uuid.UUID) (*Summary, error) {
	s := &Summary{}
	for _, item := range m.users {
		if item.UserID == userID {
			s.Total++
			if !item.IsRead {
				s.Unread++
			}
		}
	}
	return s, nil
}

type stubResolver struct {
	recipients []care.Recipient
	err        error
}

func (s *stubResolver) ResolveRecipients(context.Context, uuid.UUID) ([]care.Recipient, error) {
	return s.recipients, s.err
}

type stubAuditor struct {
	entries []*audit.Entry
}

func (s *stubAuditor) Record(_ context.Context, e *audit.Entry) {
	s.entries = append(s.entries, e)
}

type stubPusher struct {
	pushed map[string][]ws.Event
	online map[string]bool
}

func newStubPusher(onlineUsers ...string) *stubPusher {
	p := &stubPusher{pushed: map[string][]ws.Event{}, online: map[string]bool{}}
	for _, u := range onlineUsers {
		p.online[u] = true
	}
	return p
}

func (s *stubPusher) Push(userID string, event ws.Event) bool {
	if !s.online[userID] {
		return false
	}
	s.pushed[userID] = append(s.pushed[userID], event)
	return true
}

func testService(repo *mockRepo, resolver *stubResolver, auditor *stubAuditor, pusher *stubPusher, now time.Time) *Service {
	return NewService(repo, resolver, auditor, pusher,
		clock.Fixed{Instant: now}, time.UTC, zerolog.Nop())
}

func medicationCandidate(patientID, medID uuid.UUID, bucket string) events.Candidate {
	return events.Candidate{
		Type:        events.TypeMedicationReminder,
		PatientID:   patientID,
		RelatedID:   medID,
		RelatedType: events.RelatedMedication,
		RelatedName: "Losartana 50mg",
		ScheduledAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		Bucket:      bucket,
		Priority:    events.PriorityNormal,
		Title:       "Lembrete de medicamento",
		Message:     "Losartana 50mg em 15 minutos",
	}
}

func TestDispatch_FanOutToAllRecipients(t *testing.T) {
	patientID := uuid.New()
	caregiver1 := uuid.New()
	caregiver2 := uuid.New()

	repo := newMockRepo()
	resolver := &stubResolver{recipients: []care.Recipient{
		{UserID: patientID, Name: "Maria", AccessType: care.AccessOwner, AccessLevel: care.LevelAdmin},
		{UserID: caregiver1, Name: "João", AccessType: care.AccessCaregiver, AccessLevel: care.LevelWrite},
		{UserID: caregiver2, Name: "Ana", AccessType: care.AccessCaregiver, AccessLevel: care.LevelWrite},
	}}
	auditor := &stubAuditor{}
	pusher := newStubPusher(patientID.String(), caregiver1.String())

	now := time.Date(2025, 6, 1, 7, 45, 0, 0, time.UTC)
	svc := testService(repo, resolver, auditor, pusher, now)

	if err := svc.Dispatch(context.Background(), medicationCandidate(patientID, uuid.New(), "15min_before")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(repo.users) != 3 {
		t.Fatalf("expected 3 recipient copies, got %d", len(repo.users))
	}
	var owners, caregivers int
	for _, item := range repo.users {
		switch item.AccessType {
		case care.AccessOwner:
			owners++
		case care.AccessCaregiver:
			caregivers++
		}
	}
	if owners != 1 || caregivers != 2 {
		t.Errorf("expected 1 owner + 2 caregiver copies, got %d + %d", owners, caregivers)
	}
	for _, item := range repo.users {
		if item.RecipientName == "" {
			t.Error("recipient name not cached on copy")
		}
		if item.Priority != events.PriorityNormal {
			t.Errorf("priority not copied, got %q", item.Priority)
		}
	}

	// Only the online sessions receive a push; the offline caregiver's copy
	// still lands in the store.
	if len(pusher.pushed[patientID.String()]) != 1 {
		t.Error("patient session did not receive a push")
	}
	if len(pusher.pushed[caregiver2.String()]) != 0 {
		t.Error("offline caregiver should not receive a push")
	}
	if got := pusher.pushed[patientID.String()][0].Type; got != ws.EventTypeNotification {
		t.Errorf("push event type = %q", got)
	}
}

func TestDispatch_DuplicateSuppressed(t *testing.T) {
	patientID := uuid.New()
	medID := uuid.New()

	repo := newMockRepo()
	resolver := &stubResolver{recipients: []care.Recipient{
		{UserID: patientID, AccessType: care.AccessOwner},
	}}
	pusher := newStubPusher(patientID.String())

	// Two ticks land inside the same bucket on the same day: 07:45 and 07:46
	// for an 08:00 dose both classify as 15min_before.
	first := testService(repo, resolver, &stubAuditor{}, pusher,
		time.Date(2025, 6, 1, 7, 45, 0, 0, time.UTC))
	second := testService(repo, resolver, &stubAuditor{}, pusher,
		time.Date(2025, 6, 1, 7, 46, 0, 0, time.UTC))

	c := medicationCandidate(patientID, medID, "15min_before")
	if err := first.Dispatch(context.Background(), c); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if err := second.Dispatch(context.Background(), c); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}

	if len(repo.globals) != 1 {
		t.Fatalf("expected 1 global notification, got %d", len(repo.globals))
	}
	if len(repo.users) != 1 {
		t.Fatalf("duplicate dispatch must not fan out again, got %d copies", len(repo.users))
	}

	// A later bucket of the same dose is a distinct notification.
	overdue := testService(repo, resolver, &stubAuditor{}, pusher,
		time.Date(2025, 6, 1, 8, 20, 0, 0, time.UTC))
	if err := overdue.Dispatch(context.Background(), medicationCandidate(patientID, medID, "15min_overdue")); err != nil {
		t.Fatalf("overdue dispatch: %v", err)
	}
	if len(repo.globals) != 2 {
		t.Fatalf("expected distinct bucket to create a second global, got %d", len(repo.globals))
	}
}

func TestDispatch_SameBucketNextDayCreates(t *testing.T) {
	patientID := uuid.New()
	medID := uuid.New()

	repo := newMockRepo()
	resolver := &stubResolver{recipients: []care.Recipient{
		{UserID: patientID, AccessType: care.AccessOwner},
	}}
	pusher := newStubPusher()

	c := medicationCandidate(patientID, medID, "15min_before")

	today := testService(repo, resolver, &stubAuditor{}, pusher,
		time.Date(2025, 6, 1, 7, 45, 0, 0, time.UTC))
	tomorrow := testService(repo, resolver, &stubAuditor{}, pusher,
		time.Date(2025, 6, 2, 7, 45, 0, 0, time.UTC))

	if err := today.Dispatch(context.Background(), c); err != nil {
		t.Fatalf("today: %v", err)
	}
	if err := tomorrow.Dispatch(context.Background(), c); err != nil {
		t.Fatalf("tomorrow: %v", err)
	}
	if len(repo.globals) != 2 {
		t.Fatalf("day rollover must reset dedup, got %d globals", len(repo.globals))
	}
}

func TestDispatch_ResolverFailureRecorded(t *testing.T) {
	patientID := uuid.New()

	repo := newMockRepo()
	resolver := &stubResolver{err: errors.New("db unavailable")}
	svc := testService(repo, resolver, &stubAuditor{}, newStubPusher(),
		time.Date(2025, 6, 1, 7, 45, 0, 0, time.UTC))

	err := svc.Dispatch(context.Background(), medicationCandidate(patientID, uuid.New(), "15min_before"))
	if err == nil {
		t.Fatal("expected error when recipient resolution fails")
	}

	if len(repo.globals) != 1 {
		t.Fatalf("global record should exist before resolution, got %d", len(repo.globals))
	}
	for _, g := range repo.globals {
		if g.RetryCount != 1 {
			t.Errorf("retry count = %d, want 1", g.RetryCount)
		}
		if g.LastError == nil {
			t.Error("last error not recorded")
		}
	}
	if len(repo.users) != 0 {
		t.Errorf("no fan-out expected on resolver failure, got %d", len(repo.users))
	}
}

func TestDispatch_FanOutErrorStillRecordsDistribution(t *testing.T) {
	patientID := uuid.New()

	repo := newMockRepo()
	repo.fanErr = errors.New("insert failed")
	resolver := &stubResolver{recipients: []care.Recipient{
		{UserID: patientID, AccessType: care.AccessOwner},
	}}
	auditor := &stubAuditor{}
	svc := testService(repo, resolver, auditor, newStubPusher(),
		time.Date(2025, 6, 1, 7, 45, 0, 0, time.UTC))

	err := svc.Dispatch(context.Background(), medicationCandidate(patientID, uuid.New(), "on_time"))
	if err == nil {
		t.Fatal("expected fan-out error to surface")
	}

	for _, g := range repo.globals {
		if g.ProcessedAt == nil || g.DistributedAt == nil {
			t.Error("processing timestamps must be set even on partial failure")
		}
		if g.LastError == nil {
			t.Error("fan-out error not recorded on global")
		}
	}
	if len(auditor.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(auditor.entries))
	}
	if auditor.entries[0].Success {
		t.Error("audit entry should mark failed distribution")
	}
}

func TestDispatch_AuditsDistribution(t *testing.T) {
	patientID := uuid.New()

	repo := newMockRepo()
	resolver := &stubResolver{recipients: []care.Recipient{
		{UserID: patientID, AccessType: care.AccessOwner},
	}}
	auditor := &stubAuditor{}
	svc := testService(repo, resolver, auditor, newStubPusher(),
		time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))

	if err := svc.Dispatch(context.Background(), medicationCandidate(patientID, uuid.New(), "on_time")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(auditor.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(auditor.entries))
	}
	e := auditor.entries[0]
	if e.Action != audit.ActionDistribute || e.EntityType != "notification" {
		t.Errorf("unexpected audit entry: %s %s", e.EntityType, e.Action)
	}
	if e.PatientID == nil || *e.PatientID != patientID {
		t.Error("audit entry missing patient scope")
	}
	if !e.Success {
		t.Error("successful distribution should audit success")
	}
}

func TestDispatch_RejectsMissingPatient(t *testing.T) {
	svc := testService(newMockRepo(), &stubResolver{}, &stubAuditor{}, newStubPusher(),
		time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))

	err := svc.Dispatch(context.Background(), events.Candidate{Type: events.TypeMedicationReminder})
	if err == nil {
		t.Fatal("expected error for candidate without patient id")
	}
}

func TestMarkRead_AuditsAccess(t *testing.T) {
	userID := uuid.New()
	repo := newMockRepo()
	id := uuid.New()
	repo.users[id] = &UserNotification{ID: id, UserID: userID}

	auditor := &stubAuditor{}
	svc := testService(repo, &stubResolver{}, auditor, newStubPusher(), time.Now())

	if err := svc.MarkRead(context.Background(), id, userID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !repo.users[id].IsRead {
		t.Error("notification not marked read")
	}
	if len(auditor.entries) != 1 || auditor.entries[0].Action != audit.ActionRead {
		t.Error("read access not audited")
	}
}

func TestMarkRead_Idempotent(t *testing.T) {
	userID := uuid.New()
	repo := newMockRepo()
	id := uuid.New()
	repo.users[id] = &UserNotification{ID: id, UserID: userID}

	svc := testService(repo, &stubResolver{}, &stubAuditor{}, newStubPusher(), time.Now())

	if err := svc.MarkRead(context.Background(), id, userID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	firstReadAt := repo.users[id].ReadAt
	if firstReadAt == nil {
		t.Fatal("read_at not set on first mark")
	}

	// Marking an already-read notification must succeed and keep the
	// original read timestamp.
	if err := svc.MarkRead(context.Background(), id, userID); err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	if !repo.users[id].IsRead {
		t.Error("notification no longer read")
	}
	if repo.users[id].ReadAt != firstReadAt {
		t.Error("read_at changed on second mark")
	}
}

func TestRetire_DeactivatesAndAudits(t *testing.T) {
	patientID := uuid.New()
	repo := newMockRepo()
	resolver := &stubResolver{recipients: []care.Recipient{
		{UserID: patientID, AccessType: care.AccessOwner},
	}}
	auditor := &stubAuditor{}
	svc := testService(repo, resolver, auditor, newStubPusher(),
		time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))

	c := medicationCandidate(patientID, uuid.New(), "on_time")
	if err := svc.Dispatch(context.Background(), c); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	var g *GlobalNotification
	for _, stored := range repo.globals {
		g = stored
	}
	if err := svc.Retire(context.Background(), g.ID); err != nil {
		t.Fatalf("retire: %v", err)
	}
	if g.IsActive {
		t.Error("retired notification still active")
	}

	// A retired record no longer occupies its dedup slot: re-dispatch creates
	// a fresh one.
	if err := svc.Dispatch(context.Background(), c); err != nil {
		t.Fatalf("re-dispatch after retire: %v", err)
	}
	retires := 0
	for _, e := range auditor.entries {
		if e.Action == audit.ActionRetire {
			retires++
		}
	}
	if retires != 1 {
		t.Errorf("expected 1 retire audit entry, got %d", retires)
	}
}

func TestMarkRead_WrongUser(t *testing.T) {
	repo := newMockRepo()
	id := uuid.New()
	repo.users[id] = &UserNotification{ID: id, UserID: uuid.New()}

	svc := testService(repo, &stubResolver{}, &stubAuditor{}, newStubPusher(), time.Now())

	if err := svc.MarkRead(context.Background(), id, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign notification, got %v", err)
	}
}

func TestDedupKey(t *testing.T) {
	patientID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	medID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	got := DedupKey(events.TypeMedicationReminder, patientID, medID, "15min_before", "2025-06-01")
	want := "enterprise_medication_reminder_11111111-1111-1111-1111-111111111111_22222222-2222-2222-2222-222222222222_15min_before_2025-06-01"
	if got != want {
		t.Errorf("dedup key = %q, want %q", got, want)
	}
}

func TestUrgencyScore(t *testing.T) {
	cases := map[string]int{
		"normal":   1,
		"high":     2,
		"critical": 3,
		"unknown":  1,
		"":         1,
	}
	for priority, want := range cases {
		if got := UrgencyScore(priority); got != want {
			t.Errorf("UrgencyScore(%q) = %d, want %d", priority, got, want)
		}
	}
}
