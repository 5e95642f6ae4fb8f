package models

import (
	"time"

	"github.com/google/uuid"
)

// DailyAttendance is the per-user-per-day rollup. Its derived fields are
// always rebuilt from the day's sessions, never patched in place.
type DailyAttendance struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	UserID             uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:ux_daily_user_date,priority:1" json:"user_id"`
	OrgID              uuid.UUID  `gorm:"type:uuid;not null;index" json:"org_id"`
	Date               time.Time  `gorm:"type:date;not null;uniqueIndex:ux_daily_user_date,priority:2" json:"date"`
	ShiftID            *uuid.UUID `gorm:"type:uuid" json:"shift_id"`
	FirstIn            *string    `gorm:"size:8" json:"first_in"`
	LastOut            *string    `gorm:"size:8" json:"last_out"`
	TotalHours         float64    `gorm:"not null;default:0" json:"total_hours"`
	OvertimeHours      float64    `gorm:"not null;default:0" json:"overtime_hours"`
	SessionCount       int        `gorm:"not null;default:0" json:"session_count"`
	Status             string     `gorm:"size:20;not null" json:"status"`
	IsManualAdjustment bool       `gorm:"not null;default:false" json:"is_manual_adjustment"`
	AdjustmentReason   *string    `gorm:"size:500" json:"adjustment_reason"`
}

func (DailyAttendance) TableName() string {
	return "daily_attendances"
}
