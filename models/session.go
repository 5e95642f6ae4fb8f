package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SessionStatusOpen = "OPEN"
	StatusPresent     = "PRESENT"
	StatusLate        = "LATE"
)

const (
	SourceCapture        = "CAPTURE"
	SourceManualAddition = "MANUAL_ADDITION"
	SourceCorrection     = "CORRECTION_RESET"
)

// Evidence upload is a two-phase write: the session is committed with
// EvidencePending and moved to EvidenceAttached or EvidenceFailed once the
// upload settles. EvidenceNone means nothing was captured for the leg.
const (
	EvidenceNone     = "none"
	EvidencePending  = "pending"
	EvidenceAttached = "attached"
	EvidenceFailed   = "failed"
)

const (
	LegIn  = "in"
	LegOut = "out"
)

// ManualAddress replaces the geocoded address on rows created by a correction.
const ManualAddress = "Manual Addition"

type LegMetadata struct {
	Accuracy       *float64  `json:"accuracy,omitempty"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	Timezone       string    `json:"timezone,omitempty"`
	LocalTime      string    `json:"local_time,omitempty"`
	Degraded       bool      `json:"degraded,omitempty"`
	DegradedReason string    `json:"degraded_reason,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}

type SessionMetadata struct {
	SessionNumber       int          `json:"session_number"`
	IsFirstSession      bool         `json:"is_first_session"`
	IsLate              bool         `json:"is_late"`
	GracePeriodMinutes  int          `json:"grace_period_minutes,omitempty"`
	In                  *LegMetadata `json:"in,omitempty"`
	Out                 *LegMetadata `json:"out,omitempty"`
	ManualEntry         bool         `json:"manual_entry,omitempty"`
	CorrectionRequestID string       `json:"correction_request_id,omitempty"`
}

type AttendanceSession struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_sessions_user_time_in,priority:1;index:idx_sessions_user_date,priority:1" json:"user_id"`
	OrgID     uuid.UUID `gorm:"type:uuid;not null;index" json:"org_id"`
	WorkDate  time.Time `gorm:"type:date;not null;index:idx_sessions_user_date,priority:2" json:"work_date"`
	Timezone  string    `gorm:"size:64;not null;default:UTC" json:"timezone"`

	TimeIn  time.Time  `gorm:"type:timestamptz;not null;index:idx_sessions_user_time_in,priority:2" json:"time_in"`
	TimeOut *time.Time `gorm:"type:timestamptz" json:"time_out"`

	InLatitude       *float64 `json:"in_latitude"`
	InLongitude      *float64 `json:"in_longitude"`
	InAccuracy       *float64 `json:"in_accuracy"`
	InAddress        string   `gorm:"size:500" json:"in_address"`
	InEvidenceRef    *string  `gorm:"size:500" json:"in_evidence_ref"`
	InEvidenceState  string   `gorm:"size:16;not null;default:none" json:"in_evidence_state"`
	OutLatitude      *float64 `json:"out_latitude"`
	OutLongitude     *float64 `json:"out_longitude"`
	OutAccuracy      *float64 `json:"out_accuracy"`
	OutAddress       string   `gorm:"size:500" json:"out_address"`
	OutEvidenceRef   *string  `gorm:"size:500" json:"out_evidence_ref"`
	OutEvidenceState string   `gorm:"size:16;not null;default:none" json:"out_evidence_state"`

	LateMinutes   int     `gorm:"not null;default:0" json:"late_minutes"`
	LateReason    *string `gorm:"size:500" json:"late_reason"`
	OvertimeHours float64 `gorm:"not null;default:0" json:"overtime_hours"`
	Status        string  `gorm:"size:20;not null" json:"status"`
	Source        string  `gorm:"size:30;not null;default:CAPTURE" json:"source"`

	// StaleNotifiedAt is set once the stale sweep has reported the session.
	StaleNotifiedAt *time.Time `gorm:"type:timestamptz" json:"stale_notified_at,omitempty"`

	Metadata datatypes.JSONType[SessionMetadata] `json:"metadata"`
}

func (AttendanceSession) TableName() string {
	return "attendance_sessions"
}

func (s *AttendanceSession) IsOpen() bool {
	return s.TimeOut == nil
}

// Duration is zero for open sessions; they contribute nothing to totals.
func (s *AttendanceSession) Duration() time.Duration {
	if s.TimeOut == nil {
		return 0
	}
	d := s.TimeOut.Sub(s.TimeIn)
	if d < 0 {
		return 0
	}
	return d
}

func (s *AttendanceSession) IsLate() bool {
	return s.LateMinutes > 0 || s.Metadata.Data().IsLate
}
