package locator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tidewatch/riskmap-service/internal/domain"
	"github.com/tidewatch/riskmap-service/internal/observability"
	"github.com/tidewatch/riskmap-service/internal/state"
)

// NameFallback supplies a place name for a coordinate when reverse
// geocoding yields nothing. The map-configuration provider implements
// this with its locationName field.
type NameFallback interface {
	LocationName(ctx context.Context, coord domain.Coordinate) (string, bool)
}

const (
	defaultFixTimeout = 4 * time.Second
	defaultFixMaxAge  = 10 * time.Second
	advisoryMessage   = "location acquisition failed"
)

// Resolver runs the ordered location fallback chain and publishes
// partial results to the shared store as each step completes:
// coordinate first, name second. Concurrent triggers are tolerated via
// the shared-state short-circuit plus a monotonic generation id; a
// resolution superseded by a newer one discards its late results
// instead of publishing them.
type Resolver struct {
	store    *state.Store
	provider Provider
	geocoder domain.Geocoder
	fallback NameFallback
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock

	fixTimeout time.Duration
	fixMaxAge  time.Duration

	gen atomic.Uint64
}

// Option tweaks Resolver construction.
type Option func(*Resolver)

// WithFixTimeout bounds the wait for a position fix.
func WithFixTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.fixTimeout = d }
}

// WithFixMaxAge allows cached fixes up to the given age.
func WithFixMaxAge(d time.Duration) Option {
	return func(r *Resolver) { r.fixMaxAge = d }
}

// WithClock swaps the time source, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(r *Resolver) { r.clock = c }
}

// New creates a Resolver. geocoder and fallback may be nil; the chain
// then skips those naming steps.
func New(store *state.Store, provider Provider, geocoder domain.Geocoder, fallback NameFallback, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Resolver {
	r := &Resolver{
		store:      store,
		provider:   provider,
		geocoder:   geocoder,
		fallback:   fallback,
		logger:     logger,
		metrics:    metrics,
		clock:      clockwork.NewRealClock(),
		fixTimeout: defaultFixTimeout,
		fixMaxAge:  defaultFixMaxAge,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs the fallback chain and returns the refined
// NamedLocation. Naming failures are not fatal: a coordinate with an
// unset name is a success. Only permission denial and fix failure
// return an error, and both raise the single user-visible advisory.
func (r *Resolver) Resolve(ctx context.Context) (domain.NamedLocation, error) {
	gen := r.gen.Add(1)

	coord, ok := r.store.Coordinate()
	if ok {
		// Location acquisition already satisfied; only refine the name.
		r.metrics.ResolveTotal.WithLabelValues("short_circuit").Inc()
	} else {
		acquired, err := r.acquire(ctx, gen)
		if err != nil {
			return r.store.Location(), err
		}
		coord = acquired
	}

	if r.store.Location().Name == "" {
		r.resolveName(ctx, gen, coord)
	}

	return r.store.Location(), nil
}

// acquire runs permission + position fix and publishes the
// coordinate-only update.
func (r *Resolver) acquire(ctx context.Context, gen uint64) (domain.Coordinate, error) {
	status, err := r.provider.RequestPermission(ctx)
	if err != nil || status != PermissionGranted {
		r.logger.Warn("location permission not granted", "error", err)
		r.metrics.ResolveTotal.WithLabelValues("permission_denied").Inc()
		if r.current(gen) {
			r.store.RaiseAdvisory(advisoryMessage)
		}
		return domain.Coordinate{}, fmt.Errorf("request permission: %w", domain.ErrPermissionDenied)
	}

	fixCtx, cancel := context.WithTimeout(ctx, r.fixTimeout)
	defer cancel()

	fix, err := r.provider.CurrentPosition(fixCtx, FixRequest{
		MaxAge:       r.fixMaxAge,
		Timeout:      r.fixTimeout,
		HighAccuracy: true,
	})
	if err != nil || r.clock.Since(fix.TakenAt) > r.fixMaxAge {
		r.logger.Warn("position fix failed", "error", err)
		r.metrics.ResolveTotal.WithLabelValues("unavailable").Inc()
		if r.current(gen) {
			r.store.RaiseAdvisory(advisoryMessage)
		}
		return domain.Coordinate{}, fmt.Errorf("current position: %w", domain.ErrLocationUnavailable)
	}

	if !r.current(gen) {
		return domain.Coordinate{}, fmt.Errorf("current position: %w", context.Canceled)
	}
	r.store.SetCoordinate(fix.Coordinate)
	r.metrics.ResolveTotal.WithLabelValues("success").Inc()
	r.logger.Info("coordinate published",
		"lat", fix.Coordinate.Latitude,
		"lng", fix.Coordinate.Longitude,
	)
	return fix.Coordinate, nil
}

// resolveName tries reverse geocoding, then the configuration service.
// Both failures degrade silently: the coordinate alone is enough.
func (r *Resolver) resolveName(ctx context.Context, gen uint64, coord domain.Coordinate) {
	if name := r.geocodeName(ctx, coord); name != "" {
		if r.current(gen) {
			r.store.SetLocationName(name)
			r.metrics.NameSource.WithLabelValues("geocoder").Inc()
		}
		return
	}

	if r.fallback != nil {
		if name, ok := r.fallback.LocationName(ctx, coord); ok && r.current(gen) {
			r.store.SetLocationName(name)
			r.metrics.NameSource.WithLabelValues("config").Inc()
			return
		}
	}

	r.metrics.NameSource.WithLabelValues("none").Inc()
	r.logger.Debug("no place name resolved, keeping coordinate only")
}

func (r *Resolver) geocodeName(ctx context.Context, coord domain.Coordinate) string {
	if r.geocoder == nil {
		return ""
	}
	addr, err := r.geocoder.ReverseGeocode(ctx, coord.Latitude, coord.Longitude)
	if err != nil {
		r.logger.Warn("reverse geocoding failed", "error", err)
		return ""
	}
	return addr.DisplayName()
}

// current reports whether gen is still the newest resolution pass.
func (r *Resolver) current(gen uint64) bool {
	return r.gen.Load() == gen
}
