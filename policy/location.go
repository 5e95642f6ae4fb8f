package policy

import (
	"fmt"
	"math"

	"timekeeping/apperror"
	"timekeeping/models"
)

const earthRadiusMeters = 6371000.0

// Distance returns the haversine distance in meters.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// CheckLocation enforces the geofence when the requirement asks for one.
// Reported accuracy widens the allowed radius, but a fix less precise than the
// radius itself cannot prove presence and is rejected.
func CheckLocation(lat, lng, accuracy *float64, req models.Requirements, loc *Location) Result {
	if !req.Geofence {
		return pass()
	}
	if loc == nil {
		return fail(apperror.PolicyKindLocation, "no work location is assigned to this shift")
	}
	if lat == nil || lng == nil {
		return fail(apperror.PolicyKindLocation, "location is required")
	}

	margin := 0.0
	if accuracy != nil {
		if *accuracy < 0 {
			return fail(apperror.PolicyKindLocation, "accuracy must not be negative")
		}
		if *accuracy > loc.RadiusMeters {
			return fail(apperror.PolicyKindLocation,
				fmt.Sprintf("location accuracy %.0fm exceeds the %.0fm work-location radius", *accuracy, loc.RadiusMeters))
		}
		margin = *accuracy
	}

	d := Distance(*lat, *lng, loc.Latitude, loc.Longitude)
	if d > loc.RadiusMeters+margin {
		return fail(apperror.PolicyKindLocation,
			fmt.Sprintf("%.0fm from the work location, allowed %.0fm", d, loc.RadiusMeters+margin))
	}
	return pass()
}
