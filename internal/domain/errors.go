package domain

import "errors"

// Failure taxonomy for the location and configuration chain. Every one
// of these is absorbed by a fallback step; only ErrPermissionDenied and
// ErrLocationUnavailable surface a user-visible advisory.
var (
	// ErrPermissionDenied means the user refused foreground location access.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrLocationUnavailable means the position fix timed out or the
	// device reported an error.
	ErrLocationUnavailable = errors.New("location unavailable")

	// ErrGeocodingFailed means reverse geocoding returned an error or
	// nothing usable.
	ErrGeocodingFailed = errors.New("geocoding failed")

	// ErrConfigFetch means the remote map-configuration endpoint could
	// not be reached within its timeout.
	ErrConfigFetch = errors.New("map config fetch failed")

	// ErrMalformedResponse means a remote payload decoded but failed
	// validation.
	ErrMalformedResponse = errors.New("malformed response")
)
