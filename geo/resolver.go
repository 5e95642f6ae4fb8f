// Package geo turns a capture's coordinates and instant into local context:
// wall-clock time, timezone and a human readable address. Every lookup is
// best effort; failures produce a degraded context instead of an error.
package geo

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	UnknownAddress = "Unknown Location"
	FallbackZone   = "UTC"
)

const (
	ReasonNoCoordinates   = "no_coordinates"
	ReasonGeocodeFailed   = "geocode_failed"
	ReasonUnknownTimezone = "unknown_timezone"
)

type LocalContext struct {
	LocalTime      time.Time
	Timezone       string
	Address        string
	Degraded       bool
	DegradedReason string
}

//go:generate mockgen -source=resolver.go -destination=mock/resolver_mock.go -package=mock
type Resolver interface {
	Resolve(ctx context.Context, lat, lng *float64, utcNow time.Time, tzHint string) LocalContext
}

type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

type resolver struct {
	geocoder  Geocoder
	defaultTZ string
	logger    *zap.Logger
}

// NewResolver returns a Resolver. geocoder may be nil, in which case every
// capture with coordinates resolves to UnknownAddress.
func NewResolver(geocoder Geocoder, defaultTZ string, logger *zap.Logger) Resolver {
	if logger == nil {
		logger = zap.L()
	}
	return &resolver{
		geocoder:  geocoder,
		defaultTZ: defaultTZ,
		logger:    logger.Named("geo.resolver"),
	}
}

func (r *resolver) Resolve(ctx context.Context, lat, lng *float64, utcNow time.Time, tzHint string) LocalContext {
	out := LocalContext{Address: UnknownAddress}

	loc, name, ok := r.location(tzHint)
	if !ok {
		out.Degraded = true
		out.DegradedReason = ReasonUnknownTimezone
	}
	out.Timezone = name
	out.LocalTime = utcNow.In(loc)

	if lat == nil || lng == nil {
		out.Degraded = true
		if out.DegradedReason == "" {
			out.DegradedReason = ReasonNoCoordinates
		}
		return out
	}
	if r.geocoder == nil {
		out.Degraded = true
		if out.DegradedReason == "" {
			out.DegradedReason = ReasonGeocodeFailed
		}
		return out
	}

	addr, err := r.geocoder.ReverseGeocode(ctx, *lat, *lng)
	if err != nil || addr == "" {
		r.logger.Warn("reverse geocode failed",
			zap.Float64("lat", *lat),
			zap.Float64("lng", *lng),
			zap.Error(err),
		)
		out.Degraded = true
		if out.DegradedReason == "" {
			out.DegradedReason = ReasonGeocodeFailed
		}
		return out
	}
	out.Address = addr
	return out
}

// location picks the hint, then the configured default, then UTC. ok is
// false when a configured zone could not be loaded.
func (r *resolver) location(tzHint string) (*time.Location, string, bool) {
	ok := true
	for _, name := range []string{tzHint, r.defaultTZ} {
		if name == "" {
			continue
		}
		loc, err := time.LoadLocation(name)
		if err == nil {
			return loc, name, ok
		}
		r.logger.Warn("unknown timezone", zap.String("timezone", name), zap.Error(err))
		ok = false
	}
	return time.UTC, FallbackZone, ok
}

// LoadLocation loads name, falling back to UTC.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
