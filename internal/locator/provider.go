// Package locator resolves a trustworthy device location and place name
// through a chain of fallbacks: shared-state short-circuit, permission
// request, bounded position fix, reverse geocoding, and finally the
// map-configuration service's location name.
package locator

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tidewatch/riskmap-service/internal/domain"
)

// PermissionStatus is the outcome of a foreground-location permission
// request.
type PermissionStatus int

const (
	PermissionGranted PermissionStatus = iota
	PermissionDenied
)

// Fix is a position fix with the time it was taken, so callers can
// judge the age of cached fixes.
type Fix struct {
	Coordinate domain.Coordinate
	TakenAt    time.Time
}

// FixRequest bounds a position query. MaxAge allows a cached fix up to
// that age; Timeout bounds the wait for a fresh one.
type FixRequest struct {
	MaxAge       time.Duration
	Timeout      time.Duration
	HighAccuracy bool
}

// Provider is the device location capability: permission handling plus
// position fixes. Implementations must respect ctx cancellation.
type Provider interface {
	RequestPermission(ctx context.Context) (PermissionStatus, error)
	CurrentPosition(ctx context.Context, req FixRequest) (Fix, error)
}

// StaticProvider serves a fixed coordinate, for headless deployments
// and local development where no device positioning exists. Denied
// simulates a user refusing the permission prompt.
type StaticProvider struct {
	Coord  domain.Coordinate
	Denied bool
	Clock  clockwork.Clock
}

func (p *StaticProvider) RequestPermission(_ context.Context) (PermissionStatus, error) {
	if p.Denied {
		return PermissionDenied, nil
	}
	return PermissionGranted, nil
}

func (p *StaticProvider) CurrentPosition(_ context.Context, _ FixRequest) (Fix, error) {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return Fix{Coordinate: p.Coord, TakenAt: clock.Now()}, nil
}
