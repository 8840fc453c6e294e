package handler

import (
	"time"

	"timeclock/internal/attendance/models"
	"timeclock/internal/attendance/service"
)

// SessionResponse is the wire shape of a session.
type SessionResponse struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Status           string           `json:"status"`
	WorkLocation     string           `json:"work_location"`
	CheckInAt        time.Time        `json:"check_in_at"`
	CheckOutAt       *time.Time       `json:"check_out_at"`
	TotalHours       *float64         `json:"total_hours"`
	CheckInLocation  *models.Location `json:"check_in_location"`
	CheckOutLocation *models.Location `json:"check_out_location"`
	IsLate           bool             `json:"is_late"`
	LateMinutes      *int             `json:"late_minutes"`
	LateReason       string           `json:"late_reason,omitempty"`
	CheckInNotes     string           `json:"check_in_notes,omitempty"`
	CheckOutNotes    string           `json:"check_out_notes,omitempty"`
	CheckInDevice    string           `json:"check_in_device,omitempty"`
	PingCount        *int             `json:"ping_count,omitempty"`
}

func toSessionResponse(s *models.Session) *SessionResponse {
	if s == nil {
		return nil
	}
	return &SessionResponse{
		ID:               s.ID.String(),
		UserID:           s.UserID.String(),
		Status:           s.Status.String(),
		WorkLocation:     s.WorkLocation.String(),
		CheckInAt:        s.CheckInAt,
		CheckOutAt:       s.CheckOutAt,
		TotalHours:       s.TotalHours,
		CheckInLocation:  s.CheckInLocation,
		CheckOutLocation: s.CheckOutLocation,
		IsLate:           s.IsLate,
		LateMinutes:      s.LateMinutes,
		LateReason:       s.LateReason,
		CheckInNotes:     s.CheckInNotes,
		CheckOutNotes:    s.CheckOutNotes,
		CheckInDevice:    s.CheckInDevice,
	}
}

// CurrentResponse always carries the session key; it is null when the user
// has no ACTIVE session.
type CurrentResponse struct {
	Session *SessionResponse `json:"session"`
}

type HistoryResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
}

func toHistoryResponse(rows []service.SessionSummary) HistoryResponse {
	out := HistoryResponse{Sessions: make([]*SessionResponse, 0, len(rows))}
	for _, row := range rows {
		resp := toSessionResponse(row.Session)
		count := row.PingCount
		resp.PingCount = &count
		out.Sessions = append(out.Sessions, resp)
	}
	return out
}

type PingResponse struct {
	ID         string    `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Address    string    `json:"address,omitempty"`
}

type PingsResponse struct {
	SessionID string         `json:"session_id"`
	Pings     []PingResponse `json:"pings"`
}

func toPingsResponse(sessionID string, pings []models.LocationPing) PingsResponse {
	out := PingsResponse{SessionID: sessionID, Pings: make([]PingResponse, 0, len(pings))}
	for _, p := range pings {
		out.Pings = append(out.Pings, PingResponse{
			ID:         p.ID.String(),
			RecordedAt: p.RecordedAt,
			Latitude:   p.Latitude,
			Longitude:  p.Longitude,
			Address:    p.Address,
		})
	}
	return out
}

// RecordLocationResponse acknowledges a sample. Recorded is informational;
// the status is 202 either way.
type RecordLocationResponse struct {
	Recorded bool `json:"recorded"`
}
