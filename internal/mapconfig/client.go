// Package mapconfig fetches tile-server and region configuration from
// the remote configuration service, with a deterministic local fallback
// when the service is unreachable.
package mapconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/tidewatch/riskmap-service/internal/domain"
	"github.com/tidewatch/riskmap-service/internal/observability"
	"github.com/tidewatch/riskmap-service/internal/state"
)

// Fallback configuration used when the remote service cannot answer:
// a public OSM tile template and a roughly 10 km viewport centered on
// the requested coordinate, or on New York City when none was given.
const (
	DefaultTileTemplate   = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	DefaultLatitude       = 40.7128
	DefaultLongitude      = -74.0060
	DefaultLatitudeDelta  = 0.0922
	DefaultLongitudeDelta = 0.0421
)

// Client fetches map configurations. Get never fails: any fetch or
// validation problem substitutes the deterministic fallback. Successful
// fetches are cached per coordinate pair, so repeated calls for the
// same coordinate are idempotent and cost no network traffic.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *state.Store
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu    sync.Mutex
	cache map[string]domain.MapConfiguration
}

// NewClient creates a map-configuration client. store may be nil when
// no shared state should be updated (tests, tooling).
func NewClient(baseURL string, timeout time.Duration, store *state.Store, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		store:   store,
		logger:  logger,
		metrics: metrics,
		cache:   make(map[string]domain.MapConfiguration),
	}
}

// Get returns the configuration for the given coordinate, or the
// no-coordinate default when coord is nil. Cached results are returned
// unchanged. Fallback results are not cached, so a recovered service is
// picked up on the next call.
func (c *Client) Get(ctx context.Context, coord *domain.Coordinate) domain.MapConfiguration {
	key := cacheKey(coord)

	c.mu.Lock()
	cached, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		c.metrics.ConfigFetch.WithLabelValues("cache_hit").Inc()
		return cached
	}

	cfg, err := c.fetch(ctx, coord)
	if err != nil {
		c.logger.Warn("map config fetch failed, using fallback", "error", err)
		c.metrics.ConfigFetch.WithLabelValues("fallback").Inc()
		cfg = Fallback(coord)
	} else {
		c.metrics.ConfigFetch.WithLabelValues("success").Inc()
		c.mu.Lock()
		c.cache[key] = cfg
		c.mu.Unlock()
	}

	c.publish(cfg, coord)
	return cfg
}

// LocationName implements the resolver's naming fallback: it asks the
// configuration service for the coordinate and extracts locationName.
func (c *Client) LocationName(ctx context.Context, coord domain.Coordinate) (string, bool) {
	cfg := c.Get(ctx, &coord)
	return cfg.LocationName, cfg.LocationName != ""
}

// Fallback builds the deterministic local configuration for a
// coordinate, or for the default region when coord is nil.
func Fallback(coord *domain.Coordinate) domain.MapConfiguration {
	center := domain.Coordinate{Latitude: DefaultLatitude, Longitude: DefaultLongitude}
	if coord != nil {
		center = *coord
	}
	return domain.MapConfiguration{
		TileServerURLTemplate: DefaultTileTemplate,
		InitialRegion: domain.MapRegion{
			Coordinate:     center,
			LatitudeDelta:  DefaultLatitudeDelta,
			LongitudeDelta: DefaultLongitudeDelta,
		},
	}
}

func (c *Client) fetch(ctx context.Context, coord *domain.Coordinate) (domain.MapConfiguration, error) {
	endpoint := c.baseURL + "/map/config"
	if coord != nil {
		params := url.Values{
			"lat": {strconv.FormatFloat(coord.Latitude, 'f', -1, 64)},
			"lng": {strconv.FormatFloat(coord.Longitude, 'f', -1, 64)},
		}
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.MapConfiguration{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.MapConfiguration{}, fmt.Errorf("%w: %w", domain.ErrConfigFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.MapConfiguration{}, fmt.Errorf("%w: status %d", domain.ErrConfigFetch, resp.StatusCode)
	}

	var cfg domain.MapConfiguration
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return domain.MapConfiguration{}, fmt.Errorf("%w: decode: %w", domain.ErrMalformedResponse, err)
	}
	if cfg.TileServerURLTemplate == "" || !cfg.InitialRegion.Valid() {
		return domain.MapConfiguration{}, fmt.Errorf("%w: missing tile server or invalid region", domain.ErrMalformedResponse)
	}
	return cfg, nil
}

// publish pushes the active configuration into shared state and, when a
// coordinate was supplied and the service produced naming or area
// context, refines NamedLocation as well.
func (c *Client) publish(cfg domain.MapConfiguration, coord *domain.Coordinate) {
	if c.store == nil {
		return
	}
	c.store.SetMapConfig(cfg)
	if coord != nil {
		c.store.SetLocationName(cfg.LocationName)
		c.store.SetAreaInfo(cfg.RiskLevel, cfg.EvacuationZone)
	}
}

func cacheKey(coord *domain.Coordinate) string {
	if coord == nil {
		return "default"
	}
	return fmt.Sprintf("%.6f,%.6f", coord.Latitude, coord.Longitude)
}
