package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Requirements are the capture rules applied to one leg (entry or exit).
type Requirements struct {
	Geofence bool `json:"geofence"`
	Photo    bool `json:"photo"`
}

type WorkLocation struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	OrgID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"org_id"`
	Name         string         `gorm:"not null;size:150" json:"name"`
	Latitude     float64        `gorm:"not null" json:"latitude"`
	Longitude    float64        `gorm:"not null" json:"longitude"`
	RadiusMeters float64        `gorm:"not null;default:100" json:"radius_meters"`
	Timezone     string         `gorm:"size:64" json:"timezone"`
}

type Shift struct {
	ID                     uuid.UUID                        `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt              time.Time                        `json:"created_at"`
	UpdatedAt              time.Time                        `json:"updated_at"`
	DeletedAt              gorm.DeletedAt                   `gorm:"index" json:"-"`
	OrgID                  uuid.UUID                        `gorm:"type:uuid;not null;index" json:"org_id"`
	Name                   string                           `gorm:"not null;size:100" json:"name"`
	StartTime              string                           `gorm:"size:8" json:"start_time"` // HH:MM, local wall clock
	EndTime                string                           `gorm:"size:8" json:"end_time"`
	GracePeriodMinutes     int                              `gorm:"not null;default:0" json:"grace_period_minutes"`
	OvertimeThresholdHours float64                          `gorm:"not null;default:0" json:"overtime_threshold_hours"`
	EntryRequirements      datatypes.JSONType[Requirements] `json:"entry_requirements"`
	ExitRequirements       datatypes.JSONType[Requirements] `json:"exit_requirements"`
	WorkLocationID         *uuid.UUID                       `gorm:"type:uuid;index" json:"work_location_id"`
	WorkLocation           *WorkLocation                    `gorm:"foreignKey:WorkLocationID" json:"work_location,omitempty"`
}
