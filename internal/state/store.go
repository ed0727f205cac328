// Package state holds the process-wide shared state the mobile client
// reads: the refined NamedLocation, the active map configuration, and
// the latest risk-heatmap snapshot. Writes go through a narrow API —
// the location resolver and the map-config provider are the only
// intended writers of NamedLocation — and every write notifies
// subscribers so readers never poll.
package state

import (
	"sync"
	"time"

	"github.com/tidewatch/riskmap-service/internal/domain"
)

// EventKind identifies which slice of shared state changed.
type EventKind int

const (
	// CoordinateUpdated fires when the device coordinate is published.
	// It always precedes NameUpdated within one resolution pass.
	CoordinateUpdated EventKind = iota
	// NameUpdated fires when the human-readable place name is refined.
	NameUpdated
	// ConfigUpdated fires when a new map configuration becomes active.
	ConfigUpdated
	// HeatmapUpdated fires when a fresh risk-point snapshot is published.
	HeatmapUpdated
	// AdvisoryRaised fires when a user-visible advisory is set.
	AdvisoryRaised
)

// Event is a change notification delivered to subscribers.
type Event struct {
	Kind EventKind
}

// HeatmapSnapshot is one wholesale-replaced aggregation result. Pass is
// a monotonic counter; zero means aggregation has never run, which is
// distinct from a run that produced no points.
type HeatmapSnapshot struct {
	Points      []domain.RiskPoint `json:"points"`
	Pass        uint64             `json:"pass"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Store is the shared state container. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	location domain.NamedLocation
	advisory string
	config   *domain.MapConfiguration
	snapshot HeatmapSnapshot
	subs     map[chan Event]struct{}
}

func New() *Store {
	return &Store{
		subs: make(map[chan Event]struct{}),
	}
}

// Subscribe registers for change notifications. Delivery is best-effort:
// a subscriber that falls behind misses intermediate events but can
// always read the current state directly. The returned cancel func must
// be called to release the subscription.
func (s *Store) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
	return ch, cancel
}

// notify must be called with s.mu held.
func (s *Store) notify(kind EventKind) {
	for ch := range s.subs {
		select {
		case ch <- Event{Kind: kind}:
		default:
		}
	}
}

// SetCoordinate publishes a coordinate-only update so dependent UI can
// start rendering before naming completes. It also clears any standing
// advisory, since a fresh fix supersedes earlier acquisition failures.
func (s *Store) SetCoordinate(c domain.Coordinate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location.Coordinate = &c
	s.advisory = ""
	s.notify(CoordinateUpdated)
}

// Coordinate returns the resolved device coordinate, if any.
func (s *Store) Coordinate() (domain.Coordinate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.location.Coordinate == nil {
		return domain.Coordinate{}, false
	}
	return *s.location.Coordinate, true
}

// SetLocationName refines the place name. Empty names are ignored so a
// failed naming step cannot erase an earlier success.
func (s *Store) SetLocationName(name string) {
	if name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location.Name = name
	s.notify(NameUpdated)
}

// SetAreaInfo records area risk context delivered by the configuration
// service alongside the location name.
func (s *Store) SetAreaInfo(riskLevel, evacuationZone string) {
	if riskLevel == "" && evacuationZone == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if riskLevel != "" {
		s.location.RiskLevel = riskLevel
	}
	if evacuationZone != "" {
		s.location.EvacuationZone = evacuationZone
	}
	s.notify(NameUpdated)
}

// Location returns a copy of the current NamedLocation.
func (s *Store) Location() domain.NamedLocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc := s.location
	if s.location.Coordinate != nil {
		c := *s.location.Coordinate
		loc.Coordinate = &c
	}
	return loc
}

// RaiseAdvisory sets the single user-visible advisory message. Only
// location-acquisition failures raise one; naming and configuration
// failures degrade silently.
func (s *Store) RaiseAdvisory(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advisory = msg
	s.notify(AdvisoryRaised)
}

// Advisory returns the current advisory message, empty when none.
func (s *Store) Advisory() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.advisory
}

// SetMapConfig activates a map configuration.
func (s *Store) SetMapConfig(cfg domain.MapConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = &cfg
	s.notify(ConfigUpdated)
}

// MapConfig returns the active map configuration, if any.
func (s *Store) MapConfig() (domain.MapConfiguration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return domain.MapConfiguration{}, false
	}
	return *s.config, true
}

// PublishHeatmap replaces the risk-point snapshot wholesale and returns
// the new pass number. The slice is copied; callers may reuse theirs.
func (s *Store) PublishHeatmap(points []domain.RiskPoint, generatedAt time.Time) uint64 {
	snap := HeatmapSnapshot{
		Points:      make([]domain.RiskPoint, len(points)),
		GeneratedAt: generatedAt,
	}
	copy(snap.Points, points)

	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Pass = s.snapshot.Pass + 1
	s.snapshot = snap
	s.notify(HeatmapUpdated)
	return snap.Pass
}

// Heatmap returns the latest snapshot. Pass zero means aggregation has
// not yet run.
func (s *Store) Heatmap() HeatmapSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snapshot
	snap.Points = make([]domain.RiskPoint, len(s.snapshot.Points))
	copy(snap.Points, s.snapshot.Points)
	return snap
}
