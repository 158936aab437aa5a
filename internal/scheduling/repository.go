package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClientNotFound  = errors.New("client not found")
	ErrMeetingNotFound = errors.New("meeting not found")

	// ErrSlotTaken is returned when an insert or reschedule collides with the
	// active-slot unique index. It is the authoritative double-booking guard;
	// the validation pre-check only narrows the window.
	ErrSlotTaken = errors.New("slot already holds an active meeting")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// FindOrCreateClient looks a client up by email and creates one when
	// absent. Name, phone and company are only written on create.
	FindOrCreateClient(ctx context.Context, name, email string, phone, company *string) (*Client, error)
	GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error)

	// Occupancy reads. Both return only meetings in an active status.
	ActiveMeetingsByDate(ctx context.Context, date string) ([]Meeting, error)
	ActiveMeetingsByDates(ctx context.Context, dates []string) (map[string][]Meeting, error)

	CreateMeeting(ctx context.Context, m Meeting) (*Meeting, error)
	GetMeetingByID(ctx context.Context, id uuid.UUID) (*Meeting, error)
	GetMeetingDetail(ctx context.Context, id uuid.UUID) (*MeetingDetail, error)
	UpdateMeeting(ctx context.Context, id uuid.UUID, patch MeetingPatch) (*Meeting, error)
	DeleteMeeting(ctx context.Context, id uuid.UUID) error

	// SetCalendarEventID records the mirrored external event after the fact.
	SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) error

	// Completion worker. cutoff is wall-clock time in the business timezone;
	// a meeting matches when date + time + duration lies before it.
	FindActiveEndedBefore(ctx context.Context, cutoff time.Time) ([]Meeting, error)

	ListMeetingsByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]MeetingDetail, error)
}

// MeetingPatch carries the mutable meeting fields; nil means leave unchanged.
type MeetingPatch struct {
	MeetingDate     *string
	MeetingTime     *string
	DurationMinutes *int
	Status          *MeetingStatus
	Title           *string
	Description     *string
	MeetingType     *string
}
