// Package policy evaluates a shift's attendance rules. Every function is pure:
// outcomes are returned as values and nothing is logged or persisted here.
package policy

import (
	"math"
	"time"

	"timekeeping/models"
)

const DefaultOvertimeThresholdHours = 8.0

// Location is the geofence a capture must fall inside.
type Location struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
}

type Rules struct {
	HasStartTime           bool
	StartMinute            int // minutes after local midnight
	GracePeriodMinutes     int
	OvertimeThresholdHours float64
	Entry                  models.Requirements
	Exit                   models.Requirements
	Location               *Location
	Timezone               string
}

// Result is the outcome of a single check. Kind is set only on failure.
type Result struct {
	OK    bool
	Kind  string
	Error string
}

func pass() Result {
	return Result{OK: true}
}

func fail(kind, msg string) Result {
	return Result{OK: false, Kind: kind, Error: msg}
}

// DefaultRules is what a user without a shift is held to: no geofence, no
// photo, no lateness and the default overtime threshold.
func DefaultRules() Rules {
	return Rules{OvertimeThresholdHours: DefaultOvertimeThresholdHours}
}

// RulesFromShift projects a shift into normalized rules. A nil shift yields
// DefaultRules.
func RulesFromShift(shift *models.Shift) Rules {
	if shift == nil {
		return DefaultRules()
	}

	rules := Rules{
		GracePeriodMinutes:     shift.GracePeriodMinutes,
		OvertimeThresholdHours: shift.OvertimeThresholdHours,
		Entry:                  shift.EntryRequirements.Data(),
		Exit:                   shift.ExitRequirements.Data(),
	}
	if rules.GracePeriodMinutes < 0 {
		rules.GracePeriodMinutes = 0
	}
	if rules.OvertimeThresholdHours <= 0 {
		rules.OvertimeThresholdHours = DefaultOvertimeThresholdHours
	}
	if m, ok := ParseClock(shift.StartTime); ok {
		rules.HasStartTime = true
		rules.StartMinute = m
	}
	if wl := shift.WorkLocation; wl != nil {
		rules.Location = &Location{
			Latitude:     wl.Latitude,
			Longitude:    wl.Longitude,
			RadiusMeters: wl.RadiusMeters,
		}
		rules.Timezone = wl.Timezone
	}
	return rules
}

// ParseClock parses "HH:MM" or "HH:MM:SS" into minutes after midnight.
func ParseClock(s string) (int, bool) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), true
		}
	}
	return 0, false
}

// Round2 rounds to two decimals, the precision hours are stored at.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
