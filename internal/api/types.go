package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/cristoferscalante/v1tr0-scheduling/internal/scheduling"
)

type BookingRequest struct {
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Phone       *string `json:"phone,omitempty"`
	Company     *string `json:"company,omitempty"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	MeetingType *string `json:"meeting_type,omitempty"`
	Duration    int     `json:"duration_minutes,omitempty"`
}

type ReschedulePatch struct {
	Date        *string `json:"date,omitempty"`
	Time        *string `json:"time,omitempty"`
	Duration    *int    `json:"duration_minutes,omitempty"`
	Status      *string `json:"status,omitempty"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	MeetingType *string `json:"meeting_type,omitempty"`
}

type SlotResponse struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
	Occupied  bool   `json:"occupied"`
	Passed    bool   `json:"passed"`
}

type AvailabilityResponse struct {
	Days map[string][]SlotResponse `json:"days"`
}

type ClientResponse struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Phone   *string   `json:"phone,omitempty"`
	Company *string   `json:"company,omitempty"`
}

type MeetingResponse struct {
	ID              uuid.UUID       `json:"id"`
	Date            string          `json:"date"`
	Time            string          `json:"time"`
	DurationMinutes int             `json:"duration_minutes"`
	Status          string          `json:"status"`
	Title           *string         `json:"title,omitempty"`
	Description     *string         `json:"description,omitempty"`
	MeetingType     *string         `json:"meeting_type,omitempty"`
	CalendarEventID *string         `json:"google_calendar_event_id,omitempty"`
	Client          *ClientResponse `json:"client,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponses(slots []scheduling.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			Time:      s.Time,
			Available: s.Available,
			Occupied:  s.Occupied,
			Passed:    s.Passed,
		})
	}
	return out
}

func toMeetingResponse(d *scheduling.MeetingDetail) MeetingResponse {
	resp := MeetingResponse{
		ID:              d.ID,
		Date:            d.MeetingDate,
		Time:            d.MeetingTime,
		DurationMinutes: d.DurationMinutes,
		Status:          string(d.Status),
		Title:           d.Title,
		Description:     d.Description,
		MeetingType:     d.MeetingType,
		CalendarEventID: d.CalendarEventID,
		CreatedAt:       d.CreatedAt,
	}
	if d.Client != nil {
		resp.Client = &ClientResponse{
			ID:      d.Client.ID,
			Name:    d.Client.Name,
			Email:   d.Client.Email,
			Phone:   d.Client.Phone,
			Company: d.Client.Company,
		}
	}
	return resp
}
