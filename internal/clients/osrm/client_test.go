package osrm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/cache"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/routing"
)

// testContext carries a logger, as prefab request contexts do
func testContext(t *testing.T) context.Context {
	return logging.EnsureLogger(t.Context())
}

// MockHTTPDoer is a mock implementation of HTTPDoer
type MockHTTPDoer struct {
	mock.Mock
}

func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

// Helper function to create mock HTTP response
func createMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

var (
	start = geo.Point{Longitude: 34.78, Latitude: 32.08}
	end   = geo.Point{Longitude: 34.80, Latitude: 32.10}

	snapped = geo.Polyline{
		start,
		{Longitude: 34.785, Latitude: 32.085},
		{Longitude: 34.79, Latitude: 32.095},
		end,
	}
)

func okBody(line geo.Polyline) string {
	return `{"code":"Ok","routes":[{"geometry":"` + geo.EncodePolyline(line) + `","distance":3000,"duration":400}]}`
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		Profile:        "driving",
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	}
}

func TestResolveRoute_Success(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, okBody(snapped))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL + "/"))
	line, err := client.ResolveRoute(testContext(t), geo.Polyline{start, end})

	require.NoError(t, err)
	require.Len(t, line, len(snapped))
	for i := range snapped {
		assert.InDelta(t, snapped[i].Longitude, line[i].Longitude, 1e-5)
		assert.InDelta(t, snapped[i].Latitude, line[i].Latitude, 1e-5)
	}

	assert.Equal(t, "/route/v1/driving/34.780000,32.080000;34.800000,32.100000", gotPath)
	assert.Contains(t, gotQuery, "overview=full")
	assert.Contains(t, gotQuery, "geometries=polyline")
}

func TestResolveRoute_NoRoute(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, `{"code":"NoRoute","message":"Impossible route","routes":[]}`), nil).Once()

	client := NewClientWithHTTPDoer(testConfig("http://osrm.test"), mockHTTP)
	_, err := client.ResolveRoute(testContext(t), geo.Polyline{start, end})

	require.Error(t, err)
	assert.ErrorIs(t, err, routing.ErrNoRoute)
	assert.Contains(t, err.Error(), "Impossible route")
	mockHTTP.AssertExpectations(t)
}

func TestResolveRoute_BadRequestIsNotRetried(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(400, `{"code":"InvalidQuery","message":"Query string malformed"}`), nil).Once()

	client := NewClientWithHTTPDoer(testConfig("http://osrm.test"), mockHTTP)
	_, err := client.ResolveRoute(testContext(t), geo.Polyline{start, end})

	assert.ErrorIs(t, err, routing.ErrNoRoute)
	mockHTTP.AssertNumberOfCalls(t, "Do", 1)
}

func TestResolveRoute_RetriesTransientFailures(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(503, "unavailable"), nil).Once()
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(429, ""), nil).Once()
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, okBody(snapped)), nil).Once()

	client := NewClientWithHTTPDoer(testConfig("http://osrm.test"), mockHTTP)
	line, err := client.ResolveRoute(testContext(t), geo.Polyline{start, end})

	require.NoError(t, err)
	assert.Len(t, line, len(snapped))
	mockHTTP.AssertExpectations(t)
}

func TestResolveRoute_RateLimitExhausted(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	for i := 0; i < 3; i++ {
		mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
			createMockResponse(429, ""), nil).Once()
	}

	client := NewClientWithHTTPDoer(testConfig("http://osrm.test"), mockHTTP)
	_, err := client.ResolveRoute(testContext(t), geo.Polyline{start, end})

	assert.ErrorIs(t, err, ErrRateLimited)
	mockHTTP.AssertNumberOfCalls(t, "Do", 3)
}

func TestResolveRoute_APIError(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(500, "boom"), nil)

	cfg := testConfig("http://osrm.test")
	cfg.MaxAttempts = 2
	client := NewClientWithHTTPDoer(cfg, mockHTTP)
	_, err := client.ResolveRoute(testContext(t), geo.Polyline{start, end})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "API error 500")
	mockHTTP.AssertNumberOfCalls(t, "Do", 2)
}

func TestResolveRoute_ShortGeometry(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, okBody(geo.Polyline{start})), nil)

	client := NewClientWithHTTPDoer(testConfig("http://osrm.test"), mockHTTP)
	_, err := client.ResolveRoute(testContext(t), geo.Polyline{start, end})
	assert.ErrorIs(t, err, routing.ErrNoRoute)
}

func TestResolveRoute_InvalidInput(t *testing.T) {
	client := NewClientWithHTTPDoer(testConfig("http://osrm.test"), &MockHTTPDoer{})

	_, err := client.ResolveRoute(testContext(t), geo.Polyline{start})
	assert.ErrorIs(t, err, routing.ErrInvalidInput)

	_, err = client.ResolveRoute(testContext(t), geo.Polyline{start, {Longitude: 400}})
	assert.ErrorIs(t, err, routing.ErrInvalidInput)
}

func TestResolveRoute_CancelledContext(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	client := NewClientWithHTTPDoer(testConfig("http://osrm.test"), mockHTTP)

	ctx, cancel := context.WithCancel(testContext(t))
	cancel()
	_, err := client.ResolveRoute(ctx, geo.Polyline{start, end})

	assert.True(t, errors.Is(err, context.Canceled))
	mockHTTP.AssertNotCalled(t, "Do", mock.Anything)
}

func TestCachedRouter(t *testing.T) {
	calls := 0
	next := routing.RouterFunc(func(ctx context.Context, waypoints geo.Polyline) (geo.Polyline, error) {
		calls++
		if waypoints[0] == end {
			return nil, routing.ErrNoRoute
		}
		return snapped, nil
	})

	router := NewCachedRouter(next, cache.NewCache(), "driving", time.Hour)

	for i := 0; i < 3; i++ {
		line, err := router.ResolveRoute(testContext(t), geo.Polyline{start, end})
		require.NoError(t, err)
		assert.Equal(t, snapped, line)
	}
	assert.Equal(t, 1, calls, "repeat requests are served from cache")

	for i := 0; i < 2; i++ {
		_, err := router.ResolveRoute(testContext(t), geo.Polyline{end, start})
		assert.ErrorIs(t, err, routing.ErrNoRoute)
	}
	assert.Equal(t, 3, calls, "failures are not cached")
}
