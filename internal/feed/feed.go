// Package feed holds the two in-memory read stores the aggregator
// consumes: the social-media disaster-signal feed and the community
// report feed. The core never fetches these itself; Kafka consumers,
// the HTTP API, and the startup replay populate them.
package feed

import (
	"sync"

	"github.com/tidewatch/riskmap-service/internal/domain"
)

// SignalStore is the disaster-signal read source.
type SignalStore struct {
	mu      sync.RWMutex
	items   []domain.DisasterSignal
	changed chan struct{}
}

func NewSignalStore() *SignalStore {
	return &SignalStore{changed: make(chan struct{}, 1)}
}

// Append adds a signal and signals change.
func (s *SignalStore) Append(sig domain.DisasterSignal) {
	s.mu.Lock()
	s.items = append(s.items, sig)
	s.mu.Unlock()
	notify(s.changed)
}

// Replace swaps the whole feed content, for bulk loads.
func (s *SignalStore) Replace(items []domain.DisasterSignal) {
	s.mu.Lock()
	s.items = append([]domain.DisasterSignal(nil), items...)
	s.mu.Unlock()
	notify(s.changed)
}

// Items returns a copy of the current feed content.
func (s *SignalStore) Items() []domain.DisasterSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.DisasterSignal(nil), s.items...)
}

// Changed delivers a coalesced notification per batch of writes.
func (s *SignalStore) Changed() <-chan struct{} {
	return s.changed
}

// ReportStore is the community-report read source.
type ReportStore struct {
	mu      sync.RWMutex
	items   []domain.CommunityReport
	changed chan struct{}
}

func NewReportStore() *ReportStore {
	return &ReportStore{changed: make(chan struct{}, 1)}
}

func (s *ReportStore) Append(r domain.CommunityReport) {
	s.mu.Lock()
	s.items = append(s.items, r)
	s.mu.Unlock()
	notify(s.changed)
}

func (s *ReportStore) Replace(items []domain.CommunityReport) {
	s.mu.Lock()
	s.items = append([]domain.CommunityReport(nil), items...)
	s.mu.Unlock()
	notify(s.changed)
}

func (s *ReportStore) Items() []domain.CommunityReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CommunityReport(nil), s.items...)
}

func (s *ReportStore) Changed() <-chan struct{} {
	return s.changed
}

// notify coalesces: an unconsumed notification already covers this write.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
