package policy

// OvertimeHours is the excess of worked over threshold, never negative.
func OvertimeHours(workedHours, thresholdHours float64) float64 {
	if thresholdHours <= 0 {
		thresholdHours = DefaultOvertimeThresholdHours
	}
	if workedHours <= thresholdHours {
		return 0
	}
	return Round2(workedHours - thresholdHours)
}
