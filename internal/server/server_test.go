package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/growin/growin/internal/clients/growin"
	"github.com/growin/growin/internal/events"
	"github.com/growin/growin/internal/metrics"
	"github.com/growin/growin/internal/modules/charts"
	"github.com/growin/growin/internal/modules/live"
	"github.com/growin/growin/internal/modules/portfolio"
	"github.com/growin/growin/internal/scheduler"
)

func f(v float64) *float64 { return &v }

type stubFetcher struct {
	snapshot *portfolio.Snapshot
	err      error
}

func (s *stubFetcher) GetLivePortfolio(ctx context.Context, account portfolio.AccountFilter) (*portfolio.Snapshot, error) {
	return s.snapshot, s.err
}

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) SetActiveAccount(ctx context.Context, account string) error {
	return m.Called(account).Error(0)
}

func (m *MockBackend) ClearCache(ctx context.Context) error {
	return m.Called().Error(0)
}

type testEnv struct {
	server  *Server
	poller  *live.Poller
	events  *events.Manager
	metrics *metrics.Metrics
	charts  *charts.Registry
	backend *MockBackend
	fetcher *stubFetcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zerolog.Nop()

	manager := events.NewManager(events.NewBus(log), log)
	m := metrics.New(nil)
	fetcher := &stubFetcher{snapshot: &portfolio.Snapshot{
		Positions: []portfolio.Position{
			{Ticker: "AAPL", AccountType: "invest", CurrentPrice: f(100), Quantity: f(2), AveragePrice: f(90), PPL: f(20)},
			{Ticker: "VUSA", AccountType: "isa", CurrentPrice: f(50), Quantity: f(1), AveragePrice: f(50), PPL: f(0)},
		},
	}}
	poller := live.NewPoller(fetcher, nil, live.Config{Interval: time.Hour, Events: manager, Metrics: m}, log)

	ctx, cancel := context.WithCancel(context.Background())
	registry := charts.NewRegistry(ctx, charts.RegistryConfig{
		URLFor:         func(symbol string) string { return "ws://127.0.0.1:1/ws/chart/" + symbol },
		ReconnectDelay: time.Hour,
	}, log)
	t.Cleanup(func() {
		registry.StopAll()
		cancel()
		poller.Stop()
	})

	sched := scheduler.New(log)
	backend := &MockBackend{}

	srv := New(Config{
		Log:       log,
		Port:      0,
		DevMode:   true,
		Poller:    poller,
		Charts:    registry,
		Backend:   backend,
		Events:    manager,
		Metrics:   m,
		Scheduler: sched,
	})

	return &testEnv{server: srv, poller: poller, events: manager, metrics: m, charts: registry, backend: backend, fetcher: fetcher}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestPortfolio_BeforeFirstFetch(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/portfolio", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PortfolioResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "idle", resp.Status)
	assert.Nil(t, resp.Result)

	rec = env.do(t, http.MethodGet, "/api/portfolio/accounts/invest", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPortfolio_RefreshThenRead(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/portfolio/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PortfolioResponse
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 1, resp.Cycles)
	assert.Equal(t, 250.0, resp.Result.Totals.CurrentValue)

	rec = env.do(t, http.MethodGet, "/api/portfolio/accounts/INVEST", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view portfolio.AccountView
	decodeBody(t, rec, &view)
	assert.Equal(t, 200.0, view.Summary.CurrentValue)
	assert.Len(t, view.Positions, 1)

	rec = env.do(t, http.MethodGet, "/api/portfolio/accounts/cfd", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPortfolio_RefreshFailureMapsBackendStatus(t *testing.T) {
	env := newTestEnv(t)

	env.fetcher.err = &growin.APIError{StatusCode: http.StatusServiceUnavailable, Detail: "Trading 212 unavailable"}
	rec := env.do(t, http.MethodPost, "/api/portfolio/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Trading 212 unavailable")

	env.fetcher.err = &growin.APIError{StatusCode: http.StatusUnauthorized, Detail: "bad key"}
	rec = env.do(t, http.MethodPost, "/api/portfolio/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/portfolio", "")
	var resp PortfolioResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "bad key", resp.Error)
}

func TestAllocations(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.poller.Refresh(context.Background()))

	rec := env.do(t, http.MethodGet, "/api/portfolio/allocations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all AllocationsResponse
	decodeBody(t, rec, &all)
	assert.Equal(t, "all", all.Account)
	require.Len(t, all.Items, 2)
	assert.Equal(t, "AAPL", all.Items[0].Label)
	assert.Equal(t, []float64{80, 20}, all.Shares)

	rec = env.do(t, http.MethodGet, "/api/portfolio/allocations?account=isa", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var isa AllocationsResponse
	decodeBody(t, rec, &isa)
	require.Len(t, isa.Items, 1)
	assert.Equal(t, "VUSA", isa.Items[0].Label)

	rec = env.do(t, http.MethodGet, "/api/portfolio/allocations?account=cfd", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActiveAccount_Switch(t *testing.T) {
	env := newTestEnv(t)
	env.backend.On("SetActiveAccount", "isa").Return(nil).Once()
	env.backend.On("ClearCache").Return(nil).Once()

	var changed []string
	env.events.Bus().Subscribe(events.AccountChanged, func(e *events.Event) {
		changed = append(changed, e.Data["account"].(string))
	})

	rec := env.do(t, http.MethodPost, "/api/account/active", `{"account_type": "ISA"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"account_type": "isa"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/account/active", "")
	assert.JSONEq(t, `{"account_type": "isa"}`, rec.Body.String())
	assert.Equal(t, []string{"isa"}, changed)
	env.backend.AssertExpectations(t)
}

func TestActiveAccount_AllSkipsBackend(t *testing.T) {
	env := newTestEnv(t)
	env.poller.SetAccount(portfolio.AccountInvest)

	rec := env.do(t, http.MethodPost, "/api/account/active", `{"account_type": "all"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, portfolio.AccountAll, env.poller.Account())
	env.backend.AssertNotCalled(t, "SetActiveAccount", mock.Anything)
}

func TestActiveAccount_Errors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/account/active", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/account/active", `{"account_type": "cfd"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.backend.On("SetActiveAccount", "invest").
		Return(&growin.APIError{StatusCode: http.StatusBadRequest, Detail: "No client configured"}).Once()
	rec = env.do(t, http.MethodPost, "/api/account/active", `{"account_type": "invest"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail": "No client configured"}`, rec.Body.String())
	assert.Equal(t, portfolio.AccountAll, env.poller.Account())

	env.backend.On("SetActiveAccount", "isa").Return(errors.New("connection refused")).Once()
	rec = env.do(t, http.MethodPost, "/api/account/active", `{"account_type": "isa"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestChart_DownsamplesMergedSeries(t *testing.T) {
	env := newTestEnv(t)

	points := make([]charts.Point, 30)
	for i := range points {
		points[i] = charts.Point{Timestamp: fmt.Sprintf("%d", 1700000000+i*60), Close: float64(100 + i)}
	}
	env.charts.Get("aapl").Merger().Apply(charts.InitMessage{Kind: charts.TypeInit, Symbol: "AAPL", Points: points})

	rec := env.do(t, http.MethodGet, "/api/charts/aapl?points=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChartResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "AAPL", resp.Symbol)
	assert.Equal(t, 30, resp.Total)
	assert.Len(t, resp.Points, 10)
	assert.Equal(t, 100.0, resp.Points[0].Close)
	assert.False(t, resp.Connected)

	rec = env.do(t, http.MethodGet, "/api/charts/AAPL/indicators", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ind IndicatorsResponse
	decodeBody(t, rec, &ind)
	assert.Len(t, ind.SMA, 30)
	assert.Len(t, ind.RSI, 30)
	assert.Nil(t, ind.SMA[0])
	require.NotNil(t, ind.SMA[29])
	assert.InDelta(t, 119.5, *ind.SMA[29], 1e-9)
	assert.Equal(t, 30, ind.Stats.Count)

	assert.Equal(t, []string{"AAPL"}, env.charts.Symbols())
}

func TestChart_InvalidPoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/charts/AAPL?points=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSystemStatus(t *testing.T) {
	env := newTestEnv(t)
	env.server.systemHandlers.systemStats = func() (float64, float64) { return 12.5, 40 }
	require.NoError(t, env.poller.Refresh(context.Background()))

	rec := env.do(t, http.MethodGet, "/api/system/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SystemStatusResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 12.5, resp.CPUPercent)
	assert.Equal(t, 40.0, resp.MemoryPercent)
	require.NotNil(t, resp.Poller)
	assert.Equal(t, 1, resp.Poller.Cycles)
	assert.False(t, resp.Poller.Running)
	assert.Empty(t, resp.Streams)
}

func TestTriggerJob(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/system/jobs/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/system/database/stats", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/api/portfolio", "")
	rec := env.do(t, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `growin_http_requests_total{path="/api/portfolio`)
	assert.Contains(t, body, `status="200"`)
}

func TestEventsStream_ForwardsEventsAndUnsubscribes(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events/stream?types=PORTFOLIO_UPDATED", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readFrame := func() map[string]interface{} {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				var frame map[string]interface{}
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
				return frame
			}
		}
	}

	assert.Equal(t, "connected", readFrame()["type"])
	assert.Equal(t, 1, env.events.Bus().SubscriberCount(events.PortfolioUpdated))
	assert.Zero(t, env.events.Bus().SubscriberCount(events.ChartUpdated))

	require.NoError(t, env.poller.Refresh(context.Background()))

	frame := readFrame()
	assert.Equal(t, "PORTFOLIO_UPDATED", frame["type"])
	assert.Equal(t, "live", frame["module"])
	data := frame["data"].(map[string]interface{})
	assert.Equal(t, 250.0, data["current_value"])

	cancel()
	require.Eventually(t, func() bool {
		return env.events.Bus().SubscriberCount(events.PortfolioUpdated) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
