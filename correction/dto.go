package correction

import (
	"timekeeping/models"

	"github.com/google/uuid"
)

// Actor is the authenticated caller acting on a correction.
type Actor struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Role   models.Role
}

type SessionPairRequest struct {
	TimeIn  string `json:"time_in" validate:"required,datetime=15:04"`
	TimeOut string `json:"time_out" validate:"required,datetime=15:04"`
}

type SubmitRequest struct {
	CorrectionType   string               `json:"correction_type" validate:"required,max=50"`
	RequestDate      string               `json:"request_date" validate:"required,datetime=2006-01-02"`
	Reason           string               `json:"reason" validate:"required,max=2000"`
	Method           string               `json:"correction_method"`
	RequestedTimeIn  *string              `json:"requested_time_in" validate:"omitempty,datetime=15:04"`
	RequestedTimeOut *string              `json:"requested_time_out" validate:"omitempty,datetime=15:04"`
	Sessions         []SessionPairRequest `json:"sessions" validate:"omitempty,max=10,dive"`
}

type ReviewRequest struct {
	Decision string `json:"status"`
	Comment  string `json:"comment" validate:"max=2000"`
}
