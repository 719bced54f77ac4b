package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/psiagenda/scheduling-service/internal/booking"
	"github.com/psiagenda/scheduling-service/internal/schedule"
)

type SlotResponse struct {
	StartTime  string   `json:"start_time"`
	EndTime    string   `json:"end_time"`
	Modalities []string `json:"modalities"`
	Available  bool     `json:"available"`
}

type DayAvailabilityResponse struct {
	Date  string         `json:"date"`
	Slots []SlotResponse `json:"slots"`
}

type TemplateEntryRequest struct {
	Weekday    int      `json:"weekday"` // 0=Sunday
	StartTime  string   `json:"start_time"`
	EndTime    string   `json:"end_time"`
	Modalities []string `json:"modalities"`
	Active     bool     `json:"active"`
}

type SaveTemplateRequest struct {
	Entries []TemplateEntryRequest `json:"entries"`
}

type TemplateIssueResponse struct {
	Code    string `json:"code"`
	Entries []int  `json:"entries,omitempty"`
}

type TemplateValidationResponse struct {
	Valid           bool                               `json:"valid"`
	ErrorsByWeekday map[string][]TemplateIssueResponse `json:"errors_by_weekday,omitempty"`
}

type PatientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type BookRequest struct {
	PractitionerID string         `json:"practitioner_id"`
	Date           string         `json:"date"`
	Time           string         `json:"time"`
	Modality       string         `json:"modality"`
	Patient        PatientRequest `json:"patient"`
	Specialty      string         `json:"specialty"`
}

type BookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	SessionID     string `json:"session_id"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type SessionResponse struct {
	ID             string         `json:"id"`
	PractitionerID string         `json:"practitioner_id"`
	Date           string         `json:"date"`
	Time           string         `json:"time"`
	Modality       string         `json:"modality"`
	Patient        PatientRequest `json:"patient"`
	Specialty      string         `json:"specialty"`
	Status         string         `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Mapping helpers

func toDayAvailabilityResponse(days []schedule.DayAvailability) []DayAvailabilityResponse {
	out := make([]DayAvailabilityResponse, 0, len(days))
	for _, day := range days {
		slots := make([]SlotResponse, 0, len(day.Slots))
		for _, s := range day.Slots {
			slots = append(slots, SlotResponse{
				StartTime:  s.Start.String(),
				EndTime:    s.End.String(),
				Modalities: modalityStrings(s.Modalities),
				Available:  s.Available,
			})
		}
		out = append(out, DayAvailabilityResponse{Date: day.Date.String(), Slots: slots})
	}
	return out
}

func toSessionResponse(s *booking.Session) SessionResponse {
	return SessionResponse{
		ID:             s.ID.String(),
		PractitionerID: s.PractitionerID.String(),
		Date:           s.Date.String(),
		Time:           s.Start.String(),
		Modality:       string(s.Modality),
		Patient: PatientRequest{
			Name:  s.Patient.Name,
			Email: s.Patient.Email,
			Phone: s.Patient.Phone,
		},
		Specialty: s.Specialty,
		Status:    string(s.Status),
	}
}

func toValidationResponse(result schedule.ValidationResult) TemplateValidationResponse {
	resp := TemplateValidationResponse{Valid: result.Valid()}
	if resp.Valid {
		return resp
	}

	resp.ErrorsByWeekday = make(map[string][]TemplateIssueResponse)
	for day, issues := range result.IssuesByWeekday() {
		key := weekdayKey(day)
		for _, issue := range issues {
			resp.ErrorsByWeekday[key] = append(resp.ErrorsByWeekday[key], TemplateIssueResponse{
				Code:    string(issue.Code),
				Entries: issue.Entries,
			})
		}
	}
	return resp
}

// weekdayKey names days in JSON; template-wide issues land under "template".
func weekdayKey(day time.Weekday) string {
	if day == schedule.WeekdayNone {
		return "template"
	}
	return strings.ToLower(day.String())
}

func toTemplateEntries(reqs []TemplateEntryRequest) ([]schedule.WeeklyTemplateEntry, error) {
	entries := make([]schedule.WeeklyTemplateEntry, 0, len(reqs))
	for i, req := range reqs {
		if req.Weekday < 0 || req.Weekday > 6 {
			return nil, fmt.Errorf("entry %d: weekday must be 0-6", i)
		}
		start, err := schedule.ParseTimeOfDay(req.StartTime)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		end, err := schedule.ParseTimeOfDay(req.EndTime)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		modalities, err := parseModalities(req.Modalities)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, schedule.WeeklyTemplateEntry{
			Weekday:    time.Weekday(req.Weekday),
			Start:      start,
			End:        end,
			Modalities: modalities,
			Active:     req.Active,
		})
	}
	return entries, nil
}

func parseModalities(in []string) ([]schedule.Modality, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("at least one modality is required")
	}
	out := make([]schedule.Modality, 0, len(in))
	for _, raw := range in {
		m := schedule.Modality(raw)
		if !schedule.ValidModality(m) {
			return nil, fmt.Errorf("unknown modality %q", raw)
		}
		out = append(out, m)
	}
	return out, nil
}

func modalityStrings(in []schedule.Modality) []string {
	out := make([]string, 0, len(in))
	for _, m := range in {
		out = append(out, string(m))
	}
	return out
}
