// Package domain models the risk-heatmap core: device location, map
// configuration, and the weighted point set rendered as a heat layer.
//
// # Risk Weighting
//
// RiskPoint weights live on a 0–100 scale.
//
// Social-media disaster signals carry a classifier confidence in [0,1]
// and no geolocation. Each signal maps to one point with
//
//	weight = confidence * 100
//
// placed at the active region center plus a bounded pseudo-random
// offset within the viewport span. The jitter is an approximation, not
// geocoding: the points indicate regional activity, not incident sites.
//
// Community reports carry an explicit coordinate and map to one point
// with an additive weight
//
//	weight = 50 + (verified ? 25 : 0) + min(25, upvotes*5)
//
// The formula is deliberately unclamped; with the current base it
// self-bounds at 100. Reports without a usable coordinate are skipped.
//
// # Naming
//
// A human-readable place name is assembled from reverse-geocoded
// address components: place, street, then district (or city when no
// district exists), joined by ", ". When no component is usable the
// city or region field stands in alone.
package domain
