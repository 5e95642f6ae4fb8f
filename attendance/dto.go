package attendance

import (
	"time"

	"github.com/google/uuid"
)

// CaptureInput is one time-in or time-out capture from a device.
type CaptureInput struct {
	UserID              uuid.UUID
	OrgID               uuid.UUID
	Latitude            *float64
	Longitude           *float64
	Accuracy            *float64
	Evidence            []byte
	EvidenceContentType string
	LateReason          *string
	IPAddress           string
	UserAgent           string
}

func (in CaptureInput) HasEvidence() bool {
	return len(in.Evidence) > 0
}

// SideEffects reports what happened to the best-effort steps that follow a
// committed capture. None of them can fail the capture itself.
type SideEffects struct {
	AggregateSynced  bool   `json:"aggregate_synced"`
	AggregateError   string `json:"aggregate_error,omitempty"`
	EvidenceState    string `json:"evidence_state"`
	EvidenceError    string `json:"evidence_error,omitempty"`
	LocationDegraded bool   `json:"location_degraded"`
	DegradedReason   string `json:"degraded_reason,omitempty"`
	EventsEmitted    int    `json:"events_emitted"`
	EventsFailed     int    `json:"events_failed"`
}

type SessionResult struct {
	SessionID       uuid.UUID   `json:"session_id"`
	SessionNumber   int         `json:"session_number"`
	IsFirstSession  bool        `json:"is_first_session"`
	WorkDate        string      `json:"work_date"`
	LocalTime       string      `json:"local_time"`
	Timezone        string      `json:"timezone"`
	Address         string      `json:"address"`
	TimeIn          time.Time   `json:"time_in"`
	TimeOut         *time.Time  `json:"time_out,omitempty"`
	IsLate          bool        `json:"is_late"`
	LateMinutes     int         `json:"late_minutes"`
	SessionHours    float64     `json:"session_hours"`
	OvertimeHours   float64     `json:"overtime_hours"`
	TodayTotalHours float64     `json:"today_total_hours"`
	DayStatus       string      `json:"day_status,omitempty"`
	SideEffects     SideEffects `json:"side_effects"`
}
