package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewatch/riskmap-service/internal/domain"
	"github.com/tidewatch/riskmap-service/internal/feed"
	"github.com/tidewatch/riskmap-service/internal/observability"
	"github.com/tidewatch/riskmap-service/internal/state"
)

// --- mocks ---

type mockReady struct{ err error }

func (m *mockReady) CheckReadiness(_ context.Context) error { return m.err }

type mockResolver struct {
	loc    domain.NamedLocation
	err    error
	called chan struct{}
}

func (m *mockResolver) Resolve(_ context.Context) (domain.NamedLocation, error) {
	if m.called != nil {
		select {
		case m.called <- struct{}{}:
		default:
		}
	}
	return m.loc, m.err
}

type mockConfigGetter struct {
	lastCoord *domain.Coordinate
	cfg       domain.MapConfiguration
}

func (m *mockConfigGetter) Get(_ context.Context, coord *domain.Coordinate) domain.MapConfiguration {
	m.lastCoord = coord
	return m.cfg
}

type mockRepo struct {
	saved []domain.CommunityReport
	err   error
}

func (m *mockRepo) Save(_ context.Context, rep domain.CommunityReport) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, rep)
	return nil
}

type fixture struct {
	srv      *Server
	store    *state.Store
	reports  *feed.ReportStore
	resolver *mockResolver
	cfg      *mockConfigGetter
	repo     *mockRepo
	ready    *mockReady
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    state.New(),
		reports:  feed.NewReportStore(),
		resolver: &mockResolver{called: make(chan struct{}, 1)},
		cfg:      &mockConfigGetter{},
		repo:     &mockRepo{},
		ready:    &mockReady{},
	}
	f.srv = NewServer(":0", Deps{
		Store:       f.store,
		Resolver:    f.resolver,
		MapConfig:   f.cfg,
		Reports:     f.reports,
		Repo:        f.repo,
		Ready:       f.ready,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:     observability.NewMetricsForTesting(),
		Clock:       clockwork.NewFakeClock(),
		CORSOrigins: []string{"*"},
	})
	return f
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

// --- tests ---

func TestHealthz(t *testing.T) {
	f := setup(t)
	rec := doRequest(t, f.srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestReadyz(t *testing.T) {
	f := setup(t)

	rec := doRequest(t, f.srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	f.ready.err = errors.New("no aggregation pass has completed yet")
	rec = doRequest(t, f.srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHeatmap_PendingVsEmpty(t *testing.T) {
	f := setup(t)

	rec := doRequest(t, f.srv, http.MethodGet, "/api/v1/heatmap", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap state.HeatmapSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Zero(t, snap.Pass, "pass zero marks aggregation as never run")

	f.store.PublishHeatmap(nil, time.Now())
	rec = doRequest(t, f.srv, http.MethodGet, "/api/v1/heatmap", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, uint64(1), snap.Pass)
	assert.Empty(t, snap.Points)
}

func TestHeatmap_ServesPoints(t *testing.T) {
	f := setup(t)
	f.store.PublishHeatmap([]domain.RiskPoint{
		{Latitude: 40.7, Longitude: -74.0, Weight: 90},
	}, time.Now())

	rec := doRequest(t, f.srv, http.MethodGet, "/api/v1/heatmap", "")
	var snap state.HeatmapSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Len(t, snap.Points, 1)
	assert.Equal(t, 90.0, snap.Points[0].Weight)
}

func TestLocation_IncludesAdvisory(t *testing.T) {
	f := setup(t)
	f.store.RaiseAdvisory("location acquisition failed")

	rec := doRequest(t, f.srv, http.MethodGet, "/api/v1/location", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp locationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "location acquisition failed", resp.Advisory)
	assert.Nil(t, resp.Location.Coordinate)
}

func TestLocationRefresh_TriggersResolver(t *testing.T) {
	f := setup(t)

	rec := doRequest(t, f.srv, http.MethodPost, "/api/v1/location/refresh", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-f.resolver.called:
	case <-time.After(2 * time.Second):
		t.Fatal("resolver was not invoked")
	}
}

func TestMapConfig_CoordinateParams(t *testing.T) {
	f := setup(t)
	f.cfg.cfg = domain.MapConfiguration{TileServerURLTemplate: "https://t/{z}/{x}/{y}.png"}

	rec := doRequest(t, f.srv, http.MethodGet, "/api/v1/map/config?lat=40.7&lng=-74.0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.cfg.lastCoord)
	assert.Equal(t, 40.7, f.cfg.lastCoord.Latitude)

	rec = doRequest(t, f.srv, http.MethodGet, "/api/v1/map/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, f.cfg.lastCoord)
}

func TestMapConfig_RejectsHalfCoordinate(t *testing.T) {
	f := setup(t)
	rec := doRequest(t, f.srv, http.MethodGet, "/api/v1/map/config?lat=40.7", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitReport(t *testing.T) {
	f := setup(t)

	rec := doRequest(t, f.srv, http.MethodPost, "/api/v1/reports",
		`{"latitude":40.7,"longitude":-74.0,"description":"flooded underpass","upvotes":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var rep domain.CommunityReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.NotEmpty(t, rep.ID)
	require.NotNil(t, rep.Coordinate)
	assert.Equal(t, 40.7, rep.Coordinate.Latitude)

	require.Len(t, f.repo.saved, 1)
	require.Len(t, f.reports.Items(), 1)
	assert.Equal(t, rep.ID, f.reports.Items()[0].ID)
}

func TestSubmitReport_WithoutCoordinateAccepted(t *testing.T) {
	f := setup(t)

	rec := doRequest(t, f.srv, http.MethodPost, "/api/v1/reports", `{"description":"sirens nearby"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var rep domain.CommunityReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Nil(t, rep.Coordinate)
}

func TestSubmitReport_Invalid(t *testing.T) {
	f := setup(t)

	rec := doRequest(t, f.srv, http.MethodPost, "/api/v1/reports", `{"latitude":40.7}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, f.srv, http.MethodPost, "/api/v1/reports", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, f.reports.Items())
}

func TestSubmitReport_PersistenceFailure(t *testing.T) {
	f := setup(t)
	f.repo.err = errors.New("disk full")

	rec := doRequest(t, f.srv, http.MethodPost, "/api/v1/reports", `{"description":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, f.reports.Items(), "unpersisted reports must not enter the feed")
}

func TestHeatmapLive_StreamsSnapshots(t *testing.T) {
	f := setup(t)
	f.store.PublishHeatmap([]domain.RiskPoint{{Weight: 40}}, time.Now())

	ts := httptest.NewServer(http.HandlerFunc(f.srv.ServeHTTP))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/heatmap/live"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	var snap state.HeatmapSnapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, uint64(1), snap.Pass)

	f.store.PublishHeatmap([]domain.RiskPoint{{Weight: 40}, {Weight: 80}}, time.Now())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, uint64(2), snap.Pass)
	assert.Len(t, snap.Points, 2)
}
