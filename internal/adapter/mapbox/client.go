// Package mapbox implements domain.Geocoder against the Mapbox
// Geocoding API, with an in-memory LRU cache decorator.
package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidewatch/riskmap-service/internal/domain"
	"github.com/tidewatch/riskmap-service/internal/observability"
)

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.mapbox.com/geocoding/v5/mapbox.places",
		logger:  logger,
		metrics: metrics,
	}
}

// ReverseGeocode converts a coordinate to structured address
// components. An empty Address with a nil error means Mapbox found
// nothing at that coordinate.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.Address, error) {
	// Mapbox uses lon,lat order.
	coord := fmt.Sprintf("%.6f,%.6f", lon, lat)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Address{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.Address{}, fmt.Errorf("%w: %w", domain.ErrGeocodingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(resp.Body)
		return domain.Address{}, fmt.Errorf("%w: status %d: %s", domain.ErrGeocodingFailed, resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.Address{}, fmt.Errorf("%w: decode: %w", domain.ErrMalformedResponse, err)
	}

	if len(mapboxResp.Features) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		return domain.Address{}, nil
	}

	c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	return assembleAddress(mapboxResp.Features[0]), nil
}

// assembleAddress maps the primary feature and its context hierarchy
// onto address components. Mapbox identifies component kinds by the
// feature's place_type and by context id prefixes ("locality.123").
func assembleAddress(f feature) domain.Address {
	var addr domain.Address

	if len(f.PlaceType) > 0 {
		setComponent(&addr, f.PlaceType[0], f.Text)
	}
	for _, c := range f.Context {
		kind, _, _ := strings.Cut(c.ID, ".")
		setComponent(&addr, kind, c.Text)
	}
	return addr
}

func setComponent(addr *domain.Address, kind, text string) {
	if text == "" {
		return
	}
	switch kind {
	case "poi":
		if addr.Place == "" {
			addr.Place = text
		}
	case "address":
		if addr.Street == "" {
			addr.Street = text
		}
	case "neighborhood", "locality", "district":
		if addr.District == "" {
			addr.District = text
		}
	case "place":
		if addr.City == "" {
			addr.City = text
		}
	case "region":
		if addr.Region == "" {
			addr.Region = text
		}
	}
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	PlaceType []string      `json:"place_type"`
	Text      string        `json:"text"`
	Context   []contextItem `json:"context"`
}

type contextItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}
