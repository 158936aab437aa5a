package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/cristoferscalante/v1tr0-scheduling/internal/redis"
)

var (
	ErrInvalidInput = errors.New("invalid input")

	// ErrSlotBusy means another booking for the same slot holds the lock
	// right now. The caller should retry or refetch availability.
	ErrSlotBusy = errors.New("slot is currently being booked, please retry")
)

// CalendarMirror is the best-effort downstream calendar. Implementations
// must degrade to a no-op (empty id, nil error) when not configured; they
// are never authoritative for occupancy.
type CalendarMirror interface {
	CreateEvent(ctx context.Context, m *Meeting, c *Client) (string, error)
	UpdateEvent(ctx context.Context, eventID string, m *Meeting, c *Client) error
	DeleteEvent(ctx context.Context, eventID string) error
}

type Service struct {
	repo            Repository
	locker          redisclient.Locker
	cache           *AvailabilityCache
	mirror          CalendarMirror
	rules           Rules
	defaultDuration int
	now             func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cache *AvailabilityCache, mirror CalendarMirror, rules Rules, defaultDuration int, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:            repo,
		locker:          locker,
		cache:           cache,
		mirror:          mirror,
		rules:           rules,
		defaultDuration: defaultDuration,
		now:             now,
	}
}

// Availability returns the slot map for the requested dates, serving from
// cache within the TTL and otherwise recomputing from one batched store read.
func (s *Service) Availability(ctx context.Context, dates []string) (map[string][]Slot, error) {
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: at least one date is required", ErrInvalidInput)
	}
	for _, d := range dates {
		if _, err := time.ParseInLocation(dateLayout, d, s.rules.Location); err != nil {
			return nil, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, d)
		}
	}

	if days, ok := s.cache.Get(dates); ok {
		return days, nil
	}

	byDate, err := s.repo.ActiveMeetingsByDates(ctx, dates)
	if err != nil {
		return nil, fmt.Errorf("load meetings: %w", err)
	}

	now := s.now()
	days := make(map[string][]Slot, len(dates))
	for _, d := range dates {
		slots, err := ComputeDaySlots(d, bookedSet(byDate[d]), now, s.rules)
		if err != nil {
			return nil, err
		}
		days[d] = slots
	}

	s.cache.Put(dates, days)
	return days, nil
}

type BookingInput struct {
	Date        string
	Time        string
	Name        string
	Email       string
	Phone       *string
	Company     *string
	Title       *string
	Description *string
	MeetingType *string
	Duration    int // minutes, 0 means the configured default
}

// Book validates the requested slot, persists the meeting under a per-slot
// lock, and mirrors it to the external calendar after the write commits.
// The occupancy check runs twice: once up front and once inside the lock,
// and the active-slot unique index backstops both.
func (s *Service) Book(ctx context.Context, in BookingInput) (*MeetingDetail, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}

	if err := s.validateSlot(ctx, in.Date, in.Time); err != nil {
		return nil, err
	}

	duration := in.Duration
	if duration <= 0 {
		duration = s.defaultDuration
	}

	var detail *MeetingDetail

	err := s.locker.WithSlotLock(ctx, in.Date, in.Time, func(lockCtx context.Context) error {
		// Re-check inside the critical section: another request may have
		// booked the slot between listing and submission.
		if err := s.validateSlot(lockCtx, in.Date, in.Time); err != nil {
			return err
		}

		client, err := s.repo.FindOrCreateClient(lockCtx, name, email, in.Phone, in.Company)
		if err != nil {
			return fmt.Errorf("find or create client: %w", err)
		}

		meeting, err := s.repo.CreateMeeting(lockCtx, Meeting{
			ClientID:        client.ID,
			MeetingDate:     in.Date,
			MeetingTime:     in.Time,
			DurationMinutes: duration,
			Status:          StatusScheduled,
			Title:           in.Title,
			Description:     in.Description,
			MeetingType:     in.MeetingType,
		})
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return ErrSlotOccupied
			}
			return fmt.Errorf("create meeting: %w", err)
		}

		detail = &MeetingDetail{Meeting: *meeting, Client: client}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	s.cache.Invalidate()
	s.mirrorCreate(ctx, detail)

	return detail, nil
}

// Reschedule moves or mutates an existing meeting. A date/time change goes
// through the same guard and lock as a fresh booking.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, patch MeetingPatch) (*MeetingDetail, error) {
	current, err := s.repo.GetMeetingByID(ctx, id)
	if err != nil {
		return nil, err
	}

	newDate := current.MeetingDate
	if patch.MeetingDate != nil {
		newDate = *patch.MeetingDate
	}
	newTime := current.MeetingTime
	if patch.MeetingTime != nil {
		newTime = *patch.MeetingTime
	}

	moving := newDate != current.MeetingDate || newTime != current.MeetingTime

	apply := func(applyCtx context.Context) error {
		if moving {
			if err := s.validateSlot(applyCtx, newDate, newTime); err != nil {
				return err
			}
		}

		updated, err := s.repo.UpdateMeeting(applyCtx, id, patch)
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return ErrSlotOccupied
			}
			return fmt.Errorf("update meeting: %w", err)
		}
		current = updated
		return nil
	}

	if moving {
		err = s.locker.WithSlotLock(ctx, newDate, newTime, apply)
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
	} else {
		err = apply(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate()

	detail, err := s.repo.GetMeetingDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	if detail.CalendarEventID != nil && *detail.CalendarEventID != "" {
		if err := s.mirror.UpdateEvent(ctx, *detail.CalendarEventID, &detail.Meeting, detail.Client); err != nil {
			log.Printf("calendar mirror update failed for meeting %s: %v", id, err)
		}
	}

	return detail, nil
}

// Cancel removes the meeting and best-effort deletes its mirrored event.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	meeting, err := s.repo.GetMeetingByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteMeeting(ctx, id); err != nil {
		return fmt.Errorf("delete meeting: %w", err)
	}

	s.cache.Invalidate()

	if meeting.CalendarEventID != nil && *meeting.CalendarEventID != "" {
		if err := s.mirror.DeleteEvent(ctx, *meeting.CalendarEventID); err != nil {
			log.Printf("calendar mirror delete failed for meeting %s: %v", id, err)
		}
	}

	return nil
}

func (s *Service) GetMeeting(ctx context.Context, id uuid.UUID) (*MeetingDetail, error) {
	return s.repo.GetMeetingDetail(ctx, id)
}

func (s *Service) ListMeetingsByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]MeetingDetail, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListMeetingsByClient(ctx, clientID, limit, offset)
}

// CompletePastMeetings marks active meetings whose end time has passed as
// completed, which releases their slot from the unique index. Called
// periodically by the completion worker.
func (s *Service) CompletePastMeetings(ctx context.Context) error {
	cutoff := s.now().In(s.rules.Location)

	ended, err := s.repo.FindActiveEndedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find ended meetings: %w", err)
	}

	status := StatusCompleted
	for _, m := range ended {
		if _, err := s.repo.UpdateMeeting(ctx, m.ID, MeetingPatch{Status: &status}); err != nil && !errors.Is(err, ErrMeetingNotFound) {
			log.Printf("failed to complete meeting %s: %v", m.ID, err)
		}
	}

	if len(ended) > 0 {
		s.cache.Invalidate()
	}

	return nil
}

// validateSlot runs the guard against current occupancy.
func (s *Service) validateSlot(ctx context.Context, date, clock string) error {
	meetings, err := s.repo.ActiveMeetingsByDate(ctx, date)
	if err != nil {
		return fmt.Errorf("load meetings for %s: %w", date, err)
	}
	return Validate(date, clock, bookedSet(meetings), s.now(), s.rules)
}

func (s *Service) mirrorCreate(ctx context.Context, detail *MeetingDetail) {
	eventID, err := s.mirror.CreateEvent(ctx, &detail.Meeting, detail.Client)
	if err != nil {
		log.Printf("calendar mirror create failed for meeting %s: %v", detail.ID, err)
		return
	}
	if eventID == "" {
		return
	}

	if err := s.repo.SetCalendarEventID(ctx, detail.ID, eventID); err != nil {
		log.Printf("failed to record calendar event id for meeting %s: %v", detail.ID, err)
		return
	}
	detail.CalendarEventID = &eventID
}

func bookedSet(meetings []Meeting) map[string]bool {
	booked := make(map[string]bool, len(meetings))
	for _, m := range meetings {
		booked[m.MeetingTime] = true
	}
	return booked
}
