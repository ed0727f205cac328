// Package aggregator recomputes the risk-heatmap point set whenever an
// input feed or the active map configuration changes, and publishes
// each result wholesale to shared state.
package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tidewatch/riskmap-service/internal/domain"
	"github.com/tidewatch/riskmap-service/internal/feed"
	"github.com/tidewatch/riskmap-service/internal/observability"
	"github.com/tidewatch/riskmap-service/internal/state"
)

// Service drives the aggregation loop. One goroutine runs all passes,
// so the jitter rng needs no locking.
type Service struct {
	store   *state.Store
	signals *feed.SignalStore
	reports *feed.ReportStore
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	rng     *rand.Rand
	ready   atomic.Bool
}

// Option tweaks Service construction.
type Option func(*Service)

// WithClock swaps the time source, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithRand injects the jitter source, for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(s *Service) { s.rng = rng }
}

func New(store *state.Store, signals *feed.SignalStore, reports *feed.ReportStore, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		store:   store,
		signals: signals,
		reports: reports,
		logger:  logger,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckReadiness returns nil once the first aggregation pass has
// published a snapshot.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no aggregation pass has completed yet")
	}
	return nil
}

// Run executes the aggregation loop until the context is cancelled. It
// reacts to feed changes and configuration changes; it ignores heatmap
// events, which it produces itself.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("aggregator started")
	s.metrics.AggregatorRunning.Set(1)
	defer s.metrics.AggregatorRunning.Set(0)

	events, cancel := s.store.Subscribe()
	defer cancel()

	// Initial pass covers feeds and config populated before Run.
	s.runPass()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("aggregator stopping", "reason", ctx.Err())
			return nil
		case <-s.signals.Changed():
			s.runPass()
		case <-s.reports.Changed():
			s.runPass()
		case ev := <-events:
			if ev.Kind == state.ConfigUpdated {
				s.runPass()
			}
		}
	}
}

// runPass recomputes the point set from the current inputs. Without a
// map configuration there is no viewport to place signals in, so the
// pass waits for one rather than publishing a half-formed snapshot.
func (s *Service) runPass() {
	cfg, ok := s.store.MapConfig()
	if !ok {
		s.logger.Debug("skipping aggregation pass, no map configuration yet")
		return
	}

	start := s.clock.Now()
	signals := s.signals.Items()
	reports := s.reports.Items()

	points := domain.AggregateRisk(cfg.InitialRegion, signals, reports, s.rng)
	pass := s.store.PublishHeatmap(points, s.clock.Now())
	s.ready.Store(true)

	s.metrics.AggregationPasses.Inc()
	s.metrics.AggregationDuration.Observe(s.clock.Since(start).Seconds())
	s.metrics.HeatmapPoints.Set(float64(len(points)))

	s.logger.Info("aggregation pass complete",
		"pass", pass,
		"signals", len(signals),
		"reports", len(reports),
		"points", len(points),
	)
}
