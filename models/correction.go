package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	CorrectionPending  = "pending"
	CorrectionApproved = "approved"
	CorrectionRejected = "rejected"
)

const (
	MethodFix        = "fix"
	MethodAddSession = "add_session"
	MethodReset      = "reset"
)

const (
	AuditSubmitted = "submitted"
	AuditApproved  = "approved"
	AuditRejected  = "rejected"
)

// SessionPair is a requested interval in local wall-clock HH:MM on the
// request date.
type SessionPair struct {
	TimeIn  string `json:"time_in"`
	TimeOut string `json:"time_out"`
}

type AuditEntry struct {
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Comment   string    `json:"comment,omitempty"`
}

type CorrectionRequest struct {
	ID               uuid.UUID                        `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt        time.Time                        `json:"created_at"`
	UpdatedAt        time.Time                        `json:"updated_at"`
	UserID           uuid.UUID                        `gorm:"type:uuid;not null;index" json:"user_id"`
	OrgID            uuid.UUID                        `gorm:"type:uuid;not null;index" json:"org_id"`
	CorrectionType   string                           `gorm:"size:50;not null" json:"correction_type"`
	RequestDate      time.Time                        `gorm:"type:date;not null" json:"request_date"`
	Reason           string                           `gorm:"type:text;not null" json:"reason"`
	Method           string                           `gorm:"column:correction_method;size:20;not null" json:"correction_method"`
	RequestedTimeIn  *string                          `gorm:"size:8" json:"requested_time_in"`
	RequestedTimeOut *string                          `gorm:"size:8" json:"requested_time_out"`
	Sessions         datatypes.JSONSlice[SessionPair] `json:"sessions"`
	Status           string                           `gorm:"size:20;not null;index" json:"status"`
	ReviewedBy       *uuid.UUID                       `gorm:"type:uuid" json:"reviewed_by"`
	ReviewedAt       *time.Time                       `json:"reviewed_at"`
	ReviewComments   *string                          `gorm:"type:text" json:"review_comments"`
	AuditTrail       datatypes.JSONSlice[AuditEntry]  `json:"audit_trail"`
}

func (CorrectionRequest) TableName() string {
	return "correction_requests"
}

func (c *CorrectionRequest) IsPending() bool {
	return c.Status == CorrectionPending
}
