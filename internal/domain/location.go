package domain

import "strings"

// Coordinate is a WGS-84 latitude/longitude pair. Both fields are
// required together; a missing half means the location is unresolved,
// which callers represent with a nil *Coordinate.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NamedLocation is the device's resolved position plus whatever naming
// and area context has been refined so far. It is created empty at
// startup and filled incrementally: coordinate first, name later.
type NamedLocation struct {
	Coordinate     *Coordinate `json:"coordinates,omitempty"`
	Name           string      `json:"name,omitempty"`
	RiskLevel      string      `json:"riskLevel,omitempty"`
	EvacuationZone string      `json:"evacuationZone,omitempty"`
}

// MapRegion is a map viewport: a center coordinate and an angular span.
// Deltas are always positive.
type MapRegion struct {
	Coordinate
	LatitudeDelta  float64 `json:"latitudeDelta"`
	LongitudeDelta float64 `json:"longitudeDelta"`
}

// Valid reports whether the region has a usable span.
func (r MapRegion) Valid() bool {
	return r.LatitudeDelta > 0 && r.LongitudeDelta > 0
}

// MapConfiguration selects the tile server and initial viewport for a
// coordinate pair. Immutable once fetched; a new fetch is required to
// change it.
type MapConfiguration struct {
	TileServerURLTemplate string    `json:"tileServer"`
	InitialRegion         MapRegion `json:"initialRegion"`
	LocationName          string    `json:"locationName,omitempty"`
	RiskLevel             string    `json:"riskLevel,omitempty"`
	EvacuationZone        string    `json:"evacuationZone,omitempty"`
}

// Address holds structured components from a reverse-geocoding lookup.
type Address struct {
	Place    string
	Street   string
	District string
	City     string
	Region   string
}

// DisplayName assembles a human-readable place name: place, street,
// then district (or city when no district is present), skipping empty
// components, joined by ", ". Falls back to city or region alone when
// nothing else is usable.
func (a Address) DisplayName() string {
	parts := make([]string, 0, 3)
	if a.Place != "" {
		parts = append(parts, a.Place)
	}
	if a.Street != "" {
		parts = append(parts, a.Street)
	}
	switch {
	case a.District != "":
		parts = append(parts, a.District)
	case a.City != "":
		parts = append(parts, a.City)
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	if a.City != "" {
		return a.City
	}
	return a.Region
}
