package domain

import (
	"math/rand"
	"time"
)

// DisasterSignal is a social-media-derived disaster indicator. Signals
// carry a classifier confidence but no geolocation.
type DisasterSignal struct {
	ID         string    `json:"id,omitempty"`
	Text       string    `json:"text,omitempty"`
	Confidence float64   `json:"confidence"`
	ObservedAt time.Time `json:"observed_at,omitempty"`
}

// CommunityReport is a user-submitted incident report. Coordinate is
// nil when the submission lacked a usable lat/lng pair.
type CommunityReport struct {
	ID          string      `json:"id"`
	Coordinate  *Coordinate `json:"coordinates,omitempty"`
	Description string      `json:"description,omitempty"`
	Verified    bool        `json:"verified"`
	Upvotes     int         `json:"upvotes"`
	SubmittedAt time.Time   `json:"submitted_at,omitempty"`
}

// RiskPoint is a single weighted geographic sample consumed by the
// heat-layer renderer. Weight is on a 0–100 scale.
type RiskPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Weight    float64 `json:"weight"`
}

// Community report weighting. The sum is intentionally not clamped; the
// current base self-bounds at 100 and any future base change must be
// reviewed against the renderer's scale.
const (
	reportBaseWeight    = 50.0
	reportVerifiedBonus = 25.0
	reportUpvoteStep    = 5.0
	reportUpvoteCap     = 25.0
)

// ReportWeight computes the additive weight for a community report:
// base 50, +25 when verified, +5 per upvote capped at 25.
func ReportWeight(r CommunityReport) float64 {
	w := reportBaseWeight
	if r.Verified {
		w += reportVerifiedBonus
	}
	bonus := float64(r.Upvotes) * reportUpvoteStep
	if bonus > reportUpvoteCap {
		bonus = reportUpvoteCap
	}
	return w + bonus
}

// SignalWeight maps a classifier confidence in [0,1] linearly onto the
// 0–100 risk scale.
func SignalWeight(s DisasterSignal) float64 {
	return s.Confidence * 100
}

// AggregateRisk fuses disaster signals and community reports into a
// fresh RiskPoint set for the given viewport. Signals lack geolocation,
// so each one is placed at the region center plus a uniform offset of
// at most half the viewport span per axis, drawn from rng. Reports
// without a coordinate are skipped. Output order is stable: all
// signal-derived points first, then report-derived points. An empty
// result is a valid outcome, not an error.
func AggregateRisk(region MapRegion, signals []DisasterSignal, reports []CommunityReport, rng *rand.Rand) []RiskPoint {
	points := make([]RiskPoint, 0, len(signals)+len(reports))

	if region.Valid() {
		for _, s := range signals {
			points = append(points, RiskPoint{
				Latitude:  region.Latitude + jitter(rng, region.LatitudeDelta),
				Longitude: region.Longitude + jitter(rng, region.LongitudeDelta),
				Weight:    SignalWeight(s),
			})
		}
	}

	for _, r := range reports {
		if r.Coordinate == nil {
			continue
		}
		points = append(points, RiskPoint{
			Latitude:  r.Coordinate.Latitude,
			Longitude: r.Coordinate.Longitude,
			Weight:    ReportWeight(r),
		})
	}

	return points
}

// jitter draws a uniform offset in [-delta/2, +delta/2].
func jitter(rng *rand.Rand, delta float64) float64 {
	return (rng.Float64() - 0.5) * delta
}
