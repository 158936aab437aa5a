// Package gcal mirrors booked meetings into a Google Calendar. The mirror is
// strictly best-effort: the meetings table stays authoritative and every
// failure here is logged by the caller rather than surfaced to the booker.
package gcal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/cristoferscalante/v1tr0-scheduling/internal/scheduling"
)

type Mirror struct {
	svc        *calendar.Service
	calendarID string
	location   *time.Location
}

// NewMirror builds the mirror from a service-account credentials file. An
// empty credentialsFile returns a disabled mirror whose operations are
// no-ops; callers must not treat that as an error.
func NewMirror(ctx context.Context, credentialsFile, calendarID string, location *time.Location) (*Mirror, error) {
	if credentialsFile == "" {
		return &Mirror{location: location}, nil
	}

	svc, err := calendar.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(calendar.CalendarEventsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	return &Mirror{
		svc:        svc,
		calendarID: calendarID,
		location:   location,
	}, nil
}

func (m *Mirror) Enabled() bool { return m.svc != nil }

func (m *Mirror) CreateEvent(ctx context.Context, meeting *scheduling.Meeting, client *scheduling.Client) (string, error) {
	if !m.Enabled() {
		return "", nil
	}

	event, err := m.buildEvent(meeting, client)
	if err != nil {
		return "", err
	}

	created, err := m.svc.Events.Insert(m.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}
	return created.Id, nil
}

func (m *Mirror) UpdateEvent(ctx context.Context, eventID string, meeting *scheduling.Meeting, client *scheduling.Client) error {
	if !m.Enabled() || eventID == "" {
		return nil
	}

	event, err := m.buildEvent(meeting, client)
	if err != nil {
		return err
	}

	if _, err := m.svc.Events.Update(m.calendarID, eventID, event).Context(ctx).Do(); err != nil {
		return fmt.Errorf("update calendar event: %w", err)
	}
	return nil
}

func (m *Mirror) DeleteEvent(ctx context.Context, eventID string) error {
	if !m.Enabled() || eventID == "" {
		return nil
	}

	if err := m.svc.Events.Delete(m.calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return nil
}

func (m *Mirror) buildEvent(meeting *scheduling.Meeting, client *scheduling.Client) (*calendar.Event, error) {
	start, end, err := eventWindow(meeting, m.location)
	if err != nil {
		return nil, err
	}

	return &calendar.Event{
		Summary:     eventSummary(meeting, client),
		Description: eventDescription(meeting, client),
		Start: &calendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: m.location.String(),
		},
		End: &calendar.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: m.location.String(),
		},
		Attendees: []*calendar.EventAttendee{
			{Email: client.Email},
		},
	}, nil
}

func eventWindow(meeting *scheduling.Meeting, loc *time.Location) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", meeting.MeetingDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid meeting date: %w", err)
	}
	minutes, err := scheduling.ParseClock(meeting.MeetingTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid meeting time: %w", err)
	}

	start := day.Add(time.Duration(minutes) * time.Minute)
	end := start.Add(time.Duration(meeting.DurationMinutes) * time.Minute)
	return start, end, nil
}

func eventSummary(meeting *scheduling.Meeting, client *scheduling.Client) string {
	if meeting.Title != nil && strings.TrimSpace(*meeting.Title) != "" {
		return *meeting.Title
	}
	return fmt.Sprintf("Meeting with %s", client.Name)
}

func eventDescription(meeting *scheduling.Meeting, client *scheduling.Client) string {
	var b strings.Builder

	if meeting.Description != nil && *meeting.Description != "" {
		b.WriteString(*meeting.Description)
		b.WriteString("\n\n")
	}
	if meeting.MeetingType != nil && *meeting.MeetingType != "" {
		fmt.Fprintf(&b, "Type: %s\n", *meeting.MeetingType)
	}

	fmt.Fprintf(&b, "Contact: %s <%s>", client.Name, client.Email)
	if client.Phone != nil && *client.Phone != "" {
		fmt.Fprintf(&b, ", %s", *client.Phone)
	}
	if client.Company != nil && *client.Company != "" {
		fmt.Fprintf(&b, "\nCompany: %s", *client.Company)
	}

	return b.String()
}
