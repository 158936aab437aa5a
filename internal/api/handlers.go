package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	redisclient "github.com/cristoferscalante/v1tr0-scheduling/internal/redis"
	"github.com/cristoferscalante/v1tr0-scheduling/internal/scheduling"
)

func availabilityHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("dates")
		if raw == "" {
			writeError(w, http.StatusBadRequest, "missing_dates", "dates query parameter is required")
			return
		}

		dates := strings.Split(raw, ",")
		for i := range dates {
			dates[i] = strings.TrimSpace(dates[i])
		}

		days, err := svc.Availability(r.Context(), dates)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		resp := AvailabilityResponse{Days: make(map[string][]SlotResponse, len(days))}
		for date, slots := range days {
			resp.Days[date] = toSlotResponses(slots)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func createBookingHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		detail, err := svc.Book(r.Context(), scheduling.BookingInput{
			Date:        req.Date,
			Time:        req.Time,
			Name:        req.Name,
			Email:       req.Email,
			Phone:       req.Phone,
			Company:     req.Company,
			Title:       req.Title,
			Description: req.Description,
			MeetingType: req.MeetingType,
			Duration:    req.Duration,
		})
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toMeetingResponse(detail))
	}
}

func getBookingHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		detail, err := svc.GetMeeting(r.Context(), id)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toMeetingResponse(detail))
	}
}

func listBookingsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := uuid.Parse(r.URL.Query().Get("client_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", "client_id must be a valid UUID")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		details, err := svc.ListMeetingsByClient(r.Context(), clientID, limit, offset)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		resp := make([]MeetingResponse, 0, len(details))
		for i := range details {
			resp = append(resp, toMeetingResponse(&details[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func rescheduleBookingHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		var req ReschedulePatch
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patch := scheduling.MeetingPatch{
			MeetingDate:     req.Date,
			MeetingTime:     req.Time,
			DurationMinutes: req.Duration,
			Title:           req.Title,
			Description:     req.Description,
			MeetingType:     req.MeetingType,
		}
		if req.Status != nil {
			status := scheduling.MeetingStatus(*req.Status)
			switch status {
			case scheduling.StatusScheduled, scheduling.StatusConfirmed, scheduling.StatusCompleted:
				patch.Status = &status
			default:
				writeError(w, http.StatusBadRequest, "invalid_status", "unknown meeting status")
				return
			}
		}

		detail, err := svc.Reschedule(r.Context(), id, patch)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toMeetingResponse(detail))
	}
}

func cancelBookingHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		if err := svc.Cancel(r.Context(), id); err != nil {
			handleSchedulingError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSchedulingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, scheduling.ErrPastTime):
		writeError(w, http.StatusUnprocessableEntity, "past_time", "the requested time is too soon or already past")
	case errors.Is(err, scheduling.ErrOutOfWorkingHours):
		writeError(w, http.StatusUnprocessableEntity, "out_of_working_hours", "the requested time is outside working hours")
	case errors.Is(err, scheduling.ErrWeekend):
		writeError(w, http.StatusUnprocessableEntity, "weekend", "bookings are only taken on business days")
	case errors.Is(err, scheduling.ErrSlotOccupied):
		writeError(w, http.StatusConflict, "slot_occupied", "slot no longer available, please pick another")
	case errors.Is(err, scheduling.ErrSlotBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_busy", "slot is currently being booked, please retry shortly")
	case errors.Is(err, scheduling.ErrMeetingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, scheduling.ErrClientNotFound):
		writeError(w, http.StatusNotFound, "client_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "booking could not be processed")
	}
}
