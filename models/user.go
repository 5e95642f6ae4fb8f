package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleHR         Role = "HR"
	RoleSupervisor Role = "SUPERVISOR"
	RoleEmployee   Role = "EMPLOYEE"
)

// User is the local projection of an identity owned by the auth service. It
// only carries what attendance needs: org membership, role and shift.
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	OrgID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"org_id"`
	FullName  string         `gorm:"not null;size:200" json:"full_name"`
	Role      Role           `gorm:"not null;size:20" json:"role"`
	ShiftID   *uuid.UUID     `gorm:"type:uuid;index" json:"shift_id"`
	Shift     *Shift         `gorm:"foreignKey:ShiftID" json:"shift,omitempty"`
}
