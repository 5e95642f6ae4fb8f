package rbac

import (
	"testing"

	"timekeeping/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnforcer_Can(t *testing.T) {
	e, err := NewEnforcer()
	require.NoError(t, err)

	tests := []struct {
		role models.Role
		obj  string
		act  string
		want bool
	}{
		{models.RoleAdmin, ObjCorrection, ActReview, true},
		{models.RoleHR, ObjCorrection, ActReview, true},
		{models.RoleSupervisor, ObjCorrection, ActReview, true},
		{models.RoleEmployee, ObjCorrection, ActReview, false},
		{models.RoleEmployee, ObjCorrection, ActList, false},
		{models.RoleEmployee, ObjCorrection, ActSubmit, true},
		{models.RoleAdmin, ObjAttendance, ActCapture, true},
		{"", ObjCorrection, ActReview, false},
		{"GUEST", ObjAttendance, ActCapture, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+tt.obj+"/"+tt.act, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Can(tt.role, tt.obj, tt.act))
		})
	}
}
