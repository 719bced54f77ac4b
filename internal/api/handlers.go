package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/psiagenda/scheduling-service/internal/booking"
	"github.com/psiagenda/scheduling-service/internal/schedule"
)

func queryAvailabilityHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, ok := parsePractitionerID(w, r)
		if !ok {
			return
		}

		from, err := schedule.ParseDate(r.URL.Query().Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
			return
		}
		to, err := schedule.ParseDate(r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
			return
		}
		if to.Before(from) {
			writeError(w, http.StatusBadRequest, "invalid_range", "to must not precede from")
			return
		}

		days, err := svc.QueryAvailability(r.Context(), practitionerID, from, to)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toDayAvailabilityResponse(days))
	}
}

func saveTemplateHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, ok := parsePractitionerID(w, r)
		if !ok {
			return
		}

		var req SaveTemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		entries, err := toTemplateEntries(req.Entries)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_template_entry", err.Error())
			return
		}

		result, err := svc.SaveWeeklyTemplate(r.Context(), practitionerID, entries)
		if err != nil {
			if errors.Is(err, booking.ErrInvalidTemplate) {
				writeJSON(w, http.StatusUnprocessableEntity, toValidationResponse(result))
				return
			}
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toValidationResponse(result))
	}
}

func validateTemplateHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := parsePractitionerID(w, r); !ok {
			return
		}

		var req SaveTemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		entries, err := toTemplateEntries(req.Entries)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_template_entry", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toValidationResponse(svc.ValidateTemplateDraft(entries)))
	}
}

func bookHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}
		date, err := schedule.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		start, err := schedule.ParseTimeOfDay(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
			return
		}
		if req.Patient.Name == "" {
			writeError(w, http.StatusBadRequest, "missing_patient_name", "patient.name is required")
			return
		}

		conf, err := svc.Book(r.Context(), booking.BookingRequest{
			PractitionerID: practitionerID,
			Date:           date,
			Start:          start,
			Modality:       schedule.Modality(req.Modality),
			Patient: booking.Patient{
				Name:  req.Patient.Name,
				Email: req.Patient.Email,
				Phone: req.Patient.Phone,
			},
			Specialty: req.Specialty,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, BookingResponse{
			AppointmentID: conf.AppointmentID.String(),
			SessionID:     conf.SessionID.String(),
		})
	}
}

func listSessionsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, err := uuid.Parse(r.URL.Query().Get("practitioner_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}
		from, err := schedule.ParseDate(r.URL.Query().Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
			return
		}
		to, err := schedule.ParseDate(r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
			return
		}

		sessions, err := svc.ListSessions(r.Context(), practitionerID, from, to)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		out := make([]SessionResponse, 0, len(sessions))
		for i := range sessions {
			out = append(out, toSessionResponse(&sessions[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getSessionHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := parseSessionID(w, r)
		if !ok {
			return
		}

		sess, err := svc.GetSession(r.Context(), sessionID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSessionResponse(sess))
	}
}

func cancelSessionHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := parseSessionID(w, r)
		if !ok {
			return
		}

		if err := svc.Cancel(r.Context(), sessionID); err != nil {
			handleServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func rescheduleSessionHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := parseSessionID(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := schedule.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		start, err := schedule.ParseTimeOfDay(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
			return
		}

		conf, err := svc.Reschedule(r.Context(), sessionID, date, start)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, BookingResponse{
			AppointmentID: conf.AppointmentID.String(),
			SessionID:     conf.SessionID.String(),
		})
	}
}

func parsePractitionerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "practitionerID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitionerID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseSessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session_id", "sessionID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	case errors.Is(err, booking.ErrPractitionerInactive):
		writeError(w, http.StatusConflict, "practitioner_inactive", err.Error())
	case errors.Is(err, booking.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", "slot is no longer available, please pick another time")
	case errors.Is(err, booking.ErrBookingContended):
		writeError(w, http.StatusConflict, "booking_contended", "slot is currently being booked, please retry shortly")
	case errors.Is(err, booking.ErrInsufficientLeadTime):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_lead_time", "bookings require at least 6 hours notice")
	case errors.Is(err, booking.ErrInvalidModality):
		writeError(w, http.StatusUnprocessableEntity, "invalid_modality", err.Error())
	case errors.Is(err, booking.ErrSessionNotCancellable):
		writeError(w, http.StatusConflict, "session_already_cancelled", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
