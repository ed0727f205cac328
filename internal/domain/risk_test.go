package domain

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegion() MapRegion {
	return MapRegion{
		Coordinate:     Coordinate{Latitude: 40.7128, Longitude: -74.0060},
		LatitudeDelta:  0.0922,
		LongitudeDelta: 0.0421,
	}
}

func testRNG() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

func TestSignalWeight_LinearOnConfidence(t *testing.T) {
	cases := []struct {
		confidence float64
		want       float64
	}{
		{0, 0},
		{0.25, 25},
		{0.5, 50},
		{0.87, 87},
		{1, 100},
	}
	for _, tc := range cases {
		got := SignalWeight(DisasterSignal{Confidence: tc.confidence})
		assert.Equal(t, tc.want, got, "confidence %v", tc.confidence)
	}
}

func TestReportWeight(t *testing.T) {
	cases := []struct {
		name     string
		verified bool
		upvotes  int
		want     float64
	}{
		{"base only", false, 0, 50},
		{"verified no upvotes", true, 0, 75},
		{"verified three upvotes", true, 3, 90},
		{"unverified ten upvotes saturates bonus", false, 10, 75},
		{"verified five upvotes hits full scale", true, 5, 100},
		{"verified hundred upvotes still capped", true, 100, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ReportWeight(CommunityReport{Verified: tc.verified, Upvotes: tc.upvotes})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAggregateRisk_Empty(t *testing.T) {
	points := AggregateRisk(testRegion(), nil, nil, testRNG())
	require.NotNil(t, points)
	assert.Empty(t, points)
}

func TestAggregateRisk_SignalsJitteredWithinViewport(t *testing.T) {
	region := testRegion()
	signals := make([]DisasterSignal, 50)
	for i := range signals {
		signals[i] = DisasterSignal{Confidence: 0.6}
	}

	points := AggregateRisk(region, signals, nil, testRNG())
	require.Len(t, points, 50)

	for _, p := range points {
		assert.Equal(t, 60.0, p.Weight)
		assert.InDelta(t, region.Latitude, p.Latitude, region.LatitudeDelta/2)
		assert.InDelta(t, region.Longitude, p.Longitude, region.LongitudeDelta/2)
	}
}

func TestAggregateRisk_JitterDeterministicPerSeed(t *testing.T) {
	region := testRegion()
	signals := []DisasterSignal{{Confidence: 0.4}, {Confidence: 0.9}}

	a := AggregateRisk(region, signals, nil, rand.New(rand.NewSource(7)))
	b := AggregateRisk(region, signals, nil, rand.New(rand.NewSource(7)))

	assert.Equal(t, a, b)
}

func TestAggregateRisk_SkipsReportsWithoutCoordinate(t *testing.T) {
	reports := []CommunityReport{
		{ID: "r-1", Verified: true, Upvotes: 2}, // no coordinate
		{ID: "r-2", Coordinate: &Coordinate{Latitude: 40.7, Longitude: -74.0}, Upvotes: 1},
	}

	points := AggregateRisk(testRegion(), nil, reports, testRNG())
	require.Len(t, points, 1)
	assert.Equal(t, 40.7, points[0].Latitude)
	assert.Equal(t, -74.0, points[0].Longitude)
	assert.Equal(t, 55.0, points[0].Weight)
}

func TestAggregateRisk_SignalsBeforeReports(t *testing.T) {
	signals := []DisasterSignal{{Confidence: 1}}
	reports := []CommunityReport{
		{ID: "r-1", Coordinate: &Coordinate{Latitude: 34.05, Longitude: -118.24}, Verified: true},
	}

	points := AggregateRisk(testRegion(), signals, reports, testRNG())
	require.Len(t, points, 2)
	assert.Equal(t, 100.0, points[0].Weight)
	assert.Equal(t, 75.0, points[1].Weight)
	assert.Equal(t, 34.05, points[1].Latitude)
}

func TestAggregateRisk_SignalsDroppedWithoutValidRegion(t *testing.T) {
	// A zero-span region gives signal jitter nowhere to land; reports
	// still aggregate because they carry their own coordinates.
	region := MapRegion{Coordinate: Coordinate{Latitude: 40, Longitude: -74}}
	signals := []DisasterSignal{{Confidence: 0.8}}
	reports := []CommunityReport{
		{ID: "r-1", Coordinate: &Coordinate{Latitude: 40.1, Longitude: -74.1}},
	}

	points := AggregateRisk(region, signals, reports, testRNG())
	require.Len(t, points, 1)
	assert.Equal(t, 50.0, points[0].Weight)
}
