package policy

import "time"

type Lateness struct {
	MinutesLate int
	IsLate      bool
	GracePeriod int
}

// CalculateLateArrival compares the local time of day against the shift start
// plus grace period. Minutes late are counted past the grace limit. Only the
// first session of a day can be late.
func CalculateLateArrival(local time.Time, rules Rules, isFirstSession bool) Lateness {
	out := Lateness{GracePeriod: rules.GracePeriodMinutes}
	if !isFirstSession || !rules.HasStartTime {
		return out
	}

	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	limit := midnight.Add(time.Duration(rules.StartMinute+rules.GracePeriodMinutes) * time.Minute)
	if !local.After(limit) {
		return out
	}

	minutes := int(local.Sub(limit) / time.Minute)
	if minutes <= 0 {
		return out
	}
	out.MinutesLate = minutes
	out.IsLate = true
	return out
}
