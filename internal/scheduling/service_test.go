package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/cristoferscalante/v1tr0-scheduling/internal/redis"
)

type fakeRepo struct {
	mu       sync.Mutex
	clients  map[string]*Client
	meetings map[uuid.UUID]*Meeting

	batchReads int
	// staleReads makes occupancy reads return nothing, simulating two
	// requests that both pass the pre-check before either inserts.
	staleReads bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		clients:  make(map[string]*Client),
		meetings: make(map[uuid.UUID]*Meeting),
	}
}

func (r *fakeRepo) FindOrCreateClient(_ context.Context, name, email string, phone, company *string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[email]; ok {
		return c, nil
	}
	c := &Client{ID: uuid.New(), Name: name, Email: email, Phone: phone, Company: company}
	r.clients[email] = c
	return c, nil
}

func (r *fakeRepo) GetClientByID(_ context.Context, id uuid.UUID) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.clients {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, ErrClientNotFound
}

func (r *fakeRepo) activeByDateLocked(date string) []Meeting {
	var out []Meeting
	for _, m := range r.meetings {
		if m.MeetingDate == date && (m.Status == StatusScheduled || m.Status == StatusConfirmed) {
			out = append(out, *m)
		}
	}
	return out
}

func (r *fakeRepo) ActiveMeetingsByDate(_ context.Context, date string) ([]Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.staleReads {
		return nil, nil
	}
	return r.activeByDateLocked(date), nil
}

func (r *fakeRepo) ActiveMeetingsByDates(_ context.Context, dates []string) (map[string][]Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batchReads++
	byDate := make(map[string][]Meeting)
	for _, d := range dates {
		byDate[d] = r.activeByDateLocked(d)
	}
	return byDate, nil
}

func (r *fakeRepo) CreateMeeting(_ context.Context, m Meeting) (*Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Mimic the partial unique index on active (date, time).
	for _, existing := range r.meetings {
		if existing.MeetingDate == m.MeetingDate && existing.MeetingTime == m.MeetingTime &&
			(existing.Status == StatusScheduled || existing.Status == StatusConfirmed) {
			return nil, ErrSlotTaken
		}
	}

	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	r.meetings[m.ID] = &m

	copied := m
	return &copied, nil
}

func (r *fakeRepo) GetMeetingByID(_ context.Context, id uuid.UUID) (*Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.meetings[id]
	if !ok {
		return nil, ErrMeetingNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *fakeRepo) GetMeetingDetail(ctx context.Context, id uuid.UUID) (*MeetingDetail, error) {
	m, err := r.GetMeetingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	client, err := r.GetClientByID(ctx, m.ClientID)
	if err != nil {
		return nil, err
	}
	return &MeetingDetail{Meeting: *m, Client: client}, nil
}

func (r *fakeRepo) UpdateMeeting(_ context.Context, id uuid.UUID, patch MeetingPatch) (*Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.meetings[id]
	if !ok {
		return nil, ErrMeetingNotFound
	}
	if patch.MeetingDate != nil {
		m.MeetingDate = *patch.MeetingDate
	}
	if patch.MeetingTime != nil {
		m.MeetingTime = *patch.MeetingTime
	}
	if patch.DurationMinutes != nil {
		m.DurationMinutes = *patch.DurationMinutes
	}
	if patch.Status != nil {
		m.Status = *patch.Status
	}
	if patch.Title != nil {
		m.Title = patch.Title
	}
	if patch.Description != nil {
		m.Description = patch.Description
	}
	if patch.MeetingType != nil {
		m.MeetingType = patch.MeetingType
	}

	copied := *m
	return &copied, nil
}

func (r *fakeRepo) DeleteMeeting(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.meetings[id]; !ok {
		return ErrMeetingNotFound
	}
	delete(r.meetings, id)
	return nil
}

func (r *fakeRepo) SetCalendarEventID(_ context.Context, id uuid.UUID, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.meetings[id]
	if !ok {
		return ErrMeetingNotFound
	}
	m.CalendarEventID = &eventID
	return nil
}

func (r *fakeRepo) FindActiveEndedBefore(_ context.Context, cutoff time.Time) ([]Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Meeting
	for _, m := range r.meetings {
		if m.Status != StatusScheduled && m.Status != StatusConfirmed {
			continue
		}
		day, err := time.ParseInLocation(dateLayout, m.MeetingDate, cutoff.Location())
		if err != nil {
			return nil, err
		}
		minutes, err := ParseClock(m.MeetingTime)
		if err != nil {
			return nil, err
		}
		end := day.Add(time.Duration(minutes+m.DurationMinutes) * time.Minute)
		if end.Before(cutoff) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListMeetingsByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]MeetingDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []MeetingDetail
	for _, m := range r.meetings {
		if m.ClientID == clientID {
			out = append(out, MeetingDetail{Meeting: *m})
		}
	}
	return out, nil
}

type fakeLocker struct {
	busy  bool
	calls int
}

func (l *fakeLocker) WithSlotLock(ctx context.Context, date, clock string, fn func(ctx context.Context) error) error {
	l.calls++
	if l.busy {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}

type fakeMirror struct {
	eventID   string
	createErr error
	updateErr error

	created int
	updated []string
	deleted []string
}

func (m *fakeMirror) CreateEvent(context.Context, *Meeting, *Client) (string, error) {
	m.created++
	if m.createErr != nil {
		return "", m.createErr
	}
	return m.eventID, nil
}

func (m *fakeMirror) UpdateEvent(_ context.Context, eventID string, _ *Meeting, _ *Client) error {
	m.updated = append(m.updated, eventID)
	return m.updateErr
}

func (m *fakeMirror) DeleteEvent(_ context.Context, eventID string) error {
	m.deleted = append(m.deleted, eventID)
	return nil
}

func newTestService(t *testing.T, repo *fakeRepo, locker *fakeLocker, mirror *fakeMirror, now time.Time) *Service {
	t.Helper()
	rules := testRules(t)
	cache := NewAvailabilityCache(2*time.Minute, func() time.Time { return now })
	return NewService(repo, locker, cache, mirror, rules, 60, func() time.Time { return now })
}

func validBooking() BookingInput {
	return BookingInput{
		Date:  "2024-01-25", // a Thursday
		Time:  "15:00",
		Name:  "Ada Lovelace",
		Email: "ada@example.com",
	}
}

func TestBook_PersistsAndMirrors(t *testing.T) {
	repo := newFakeRepo()
	mirror := &fakeMirror{eventID: "evt-123"}
	svc := newTestService(t, repo, &fakeLocker{}, mirror, bogotaTime(t, "2024-01-24 10:00"))

	detail, err := svc.Book(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	if detail.Status != StatusScheduled {
		t.Fatalf("expected scheduled status, got %s", detail.Status)
	}
	if detail.Client == nil || detail.Client.Email != "ada@example.com" {
		t.Fatalf("expected client on detail, got %+v", detail.Client)
	}
	if detail.CalendarEventID == nil || *detail.CalendarEventID != "evt-123" {
		t.Fatalf("expected mirrored event id, got %v", detail.CalendarEventID)
	}

	stored, err := repo.GetMeetingByID(context.Background(), detail.ID)
	if err != nil {
		t.Fatalf("meeting not persisted: %v", err)
	}
	if stored.CalendarEventID == nil || *stored.CalendarEventID != "evt-123" {
		t.Fatalf("event id not recorded in store: %v", stored.CalendarEventID)
	}
}

func TestBook_MirrorFailureDoesNotBlockBooking(t *testing.T) {
	repo := newFakeRepo()
	mirror := &fakeMirror{createErr: errors.New("calendar API unreachable")}
	svc := newTestService(t, repo, &fakeLocker{}, mirror, bogotaTime(t, "2024-01-24 10:00"))

	detail, err := svc.Book(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("Book should succeed despite mirror failure: %v", err)
	}
	if detail.CalendarEventID != nil {
		t.Fatalf("expected no event id, got %v", *detail.CalendarEventID)
	}
	if _, err := repo.GetMeetingByID(context.Background(), detail.ID); err != nil {
		t.Fatalf("meeting must stay persisted: %v", err)
	}
}

func TestBook_FindOrCreateReusesClient(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeLocker{}, &fakeMirror{}, bogotaTime(t, "2024-01-24 10:00"))

	first, err := svc.Book(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("first Book: %v", err)
	}

	second := validBooking()
	second.Time = "16:00"
	second.Name = "A. Lovelace" // different display name, same email
	detail, err := svc.Book(context.Background(), second)
	if err != nil {
		t.Fatalf("second Book: %v", err)
	}

	if detail.Client.ID != first.Client.ID {
		t.Fatal("expected the same client record to be reused")
	}
	if detail.Client.Name != "Ada Lovelace" {
		t.Fatalf("existing client name must not be overwritten, got %q", detail.Client.Name)
	}
}

func TestBook_SecondBookingSameSlotRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeLocker{}, &fakeMirror{}, bogotaTime(t, "2024-01-24 10:00"))

	if _, err := svc.Book(context.Background(), validBooking()); err != nil {
		t.Fatalf("first Book: %v", err)
	}

	in := validBooking()
	in.Email = "other@example.com"
	_, err := svc.Book(context.Background(), in)
	if !errors.Is(err, ErrSlotOccupied) {
		t.Fatalf("expected ErrSlotOccupied, got %v", err)
	}
}

// Even when both requests pass the pre-check on stale reads, the store-level
// uniqueness still rejects the loser.
func TestBook_RaceClosedByStoreConstraint(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeLocker{}, &fakeMirror{}, bogotaTime(t, "2024-01-24 10:00"))

	if _, err := svc.Book(context.Background(), validBooking()); err != nil {
		t.Fatalf("first Book: %v", err)
	}

	repo.staleReads = true

	in := validBooking()
	in.Email = "other@example.com"
	_, err := svc.Book(context.Background(), in)
	if !errors.Is(err, ErrSlotOccupied) {
		t.Fatalf("expected ErrSlotOccupied from constraint, got %v", err)
	}

	var active int
	for _, m := range repo.meetings {
		if m.MeetingDate == "2024-01-25" && m.MeetingTime == "15:00" &&
			(m.Status == StatusScheduled || m.Status == StatusConfirmed) {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active meeting for the slot, got %d", active)
	}
}

func TestBook_LockContention(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeLocker{busy: true}, &fakeMirror{}, bogotaTime(t, "2024-01-24 10:00"))

	_, err := svc.Book(context.Background(), validBooking())
	if !errors.Is(err, ErrSlotBusy) {
		t.Fatalf("expected ErrSlotBusy, got %v", err)
	}
}

func TestBook_GuardRejections(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeLocker{}, &fakeMirror{}, bogotaTime(t, "2024-01-24 10:00"))

	cases := []struct {
		name string
		date string
		time string
		want error
	}{
		{"weekend", "2024-01-27", "15:00", ErrWeekend},
		{"out of hours", "2024-01-25", "11:00", ErrOutOfWorkingHours},
		{"past day", "2024-01-23", "15:00", ErrPastTime},
	}

	for _, tc := range cases {
		in := validBooking()
		in.Date = tc.date
		in.Time = tc.time
		if _, err := svc.Book(context.Background(), in); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestBook_InvalidInput(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), &fakeLocker{}, &fakeMirror{}, bogotaTime(t, "2024-01-24 10:00"))

	in := validBooking()
	in.Name = "  "
	if _, err := svc.Book(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank name, got %v", err)
	}

	in = validBooking()
	in.Email = "not-an-email"
	if _, err := svc.Book(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad email, got %v", err)
	}
}

func TestAvailability_CachesWithinTTL(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeLocker{}, &fakeMirror{}, bogotaTime(t, "2024-01-24 10:00"))

	dates := []string{"2024-01-25", "2024-01-26"}

	first, err := svc.Availability(context.Background(), dates)
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	second, err := svc.Availability(context.Background(), dates)
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}

	if repo.batchReads != 1 {
		t.Fatalf("expected 1 store read, got %d", repo.batchReads)
	}
	for _, d := range dates {
		if fmt.Sprint(first[d]) != fmt.Sprint(second[d]) {
			t.Fatalf("cached result differs for %s", d)
		}
	}
}

func TestAvailability_InvalidatedByBooking(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeLocker{}, &fakeMirror{}, bogotaTime(t, "2024-01-24 10:00"))

	dates := []string{"2024-01-25"}

	if _, err := svc.Availability(context.Background(), dates); err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if _, err := svc.Book(context.Background(), validBooking()); err != nil {
		t.Fatalf("Book: %v", err)
	}

	days, err := svc.Availability(context.Background(), dates)
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if repo.batchReads != 2 {
		t.Fatalf("expected recomputation after booking, got %d reads", repo.batchReads)
	}

	for _, s := range days["2024-01-25"] {
		if s.Time == "15:00" && !s.Occupied {
			t.Fatalf("booked slot should show occupied, got %+v", s)
		}
	}
}

func TestCancel_RemovesMeetingAndMirrorEvent(t *testing.T) {
	repo := newFakeRepo()
	mirror := &fakeMirror{eventID: "evt-9"}
	svc := newTestService(t, repo, &fakeLocker{}, mirror, bogotaTime(t, "2024-01-24 10:00"))

	detail, err := svc.Book(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	if err := svc.Cancel(context.Background(), detail.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if _, err := repo.GetMeetingByID(context.Background(), detail.ID); !errors.Is(err, ErrMeetingNotFound) {
		t.Fatalf("meeting should be deleted, got %v", err)
	}
	if len(mirror.deleted) != 1 || mirror.deleted[0] != "evt-9" {
		t.Fatalf("expected mirror delete for evt-9, got %v", mirror.deleted)
	}
}

func TestReschedule_MovesToFreeSlot(t *testing.T) {
	repo := newFakeRepo()
	mirror := &fakeMirror{eventID: "evt-5"}
	svc := newTestService(t, repo, &fakeLocker{}, mirror, bogotaTime(t, "2024-01-24 10:00"))

	detail, err := svc.Book(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	newTime := "16:30"
	moved, err := svc.Reschedule(context.Background(), detail.ID, MeetingPatch{MeetingTime: &newTime})
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if moved.MeetingTime != "16:30" {
		t.Fatalf("expected meeting at 16:30, got %s", moved.MeetingTime)
	}
	if len(mirror.updated) != 1 || mirror.updated[0] != "evt-5" {
		t.Fatalf("expected mirror update for evt-5, got %v", mirror.updated)
	}
}

func TestReschedule_OccupiedTargetRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeLocker{}, &fakeMirror{}, bogotaTime(t, "2024-01-24 10:00"))

	first, err := svc.Book(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	other := validBooking()
	other.Time = "16:00"
	other.Email = "other@example.com"
	if _, err := svc.Book(context.Background(), other); err != nil {
		t.Fatalf("Book: %v", err)
	}

	taken := "16:00"
	_, err = svc.Reschedule(context.Background(), first.ID, MeetingPatch{MeetingTime: &taken})
	if !errors.Is(err, ErrSlotOccupied) {
		t.Fatalf("expected ErrSlotOccupied, got %v", err)
	}
}

func TestCompletePastMeetings(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeLocker{}, &fakeMirror{}, bogotaTime(t, "2024-01-24 10:00"))

	detail, err := svc.Book(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	// Advance past the meeting's end.
	later := newTestService(t, repo, &fakeLocker{}, &fakeMirror{}, bogotaTime(t, "2024-01-25 17:00"))
	if err := later.CompletePastMeetings(context.Background()); err != nil {
		t.Fatalf("CompletePastMeetings: %v", err)
	}

	m, err := repo.GetMeetingByID(context.Background(), detail.ID)
	if err != nil {
		t.Fatalf("GetMeetingByID: %v", err)
	}
	if m.Status != StatusCompleted {
		t.Fatalf("expected completed status, got %s", m.Status)
	}
}
