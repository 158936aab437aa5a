package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type MeetingStatus string

// scheduled and confirmed occupy a slot; the partial unique index on
// meetings(meeting_date, meeting_time) covers exactly those two.
const (
	StatusScheduled MeetingStatus = "scheduled"
	StatusConfirmed MeetingStatus = "confirmed"
	StatusCompleted MeetingStatus = "completed"
)

type Client struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     *string
	Company   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Meeting struct {
	ID              uuid.UUID
	ClientID        uuid.UUID
	MeetingDate     string // YYYY-MM-DD in the business timezone
	MeetingTime     string // HH:MM, minute granularity
	DurationMinutes int
	Status          MeetingStatus
	Title           *string
	Description     *string
	MeetingType     *string
	CalendarEventID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type MeetingDetail struct {
	Meeting
	Client *Client
}

// Slot is one candidate time within a working day. Exactly one of the three
// flags is set.
type Slot struct {
	Time      string
	Available bool
	Occupied  bool
	Passed    bool
}
