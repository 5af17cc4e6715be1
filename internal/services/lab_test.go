package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/config"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/edit"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/routing"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/scoring"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/segment"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/viewport"
)

var (
	telAvivStart = geo.Point{Longitude: 34.78, Latitude: 32.08}
	telAvivEnd   = geo.Point{Longitude: 34.80, Latitude: 32.10}
)

// densify returns the waypoints with perLeg evenly spaced points per leg, so
// routed lines have enough vertices to split and edit
func densify(waypoints geo.Polyline, perLeg int) geo.Polyline {
	out := geo.Polyline{waypoints[0]}
	for i := 1; i < len(waypoints); i++ {
		a, b := waypoints[i-1], waypoints[i]
		for k := 1; k < perLeg; k++ {
			t := float64(k) / float64(perLeg)
			out = append(out, geo.Point{
				Longitude: a.Longitude + (b.Longitude-a.Longitude)*t,
				Latitude:  a.Latitude + (b.Latitude-a.Latitude)*t,
			})
		}
		out = append(out, b)
	}
	return out
}

// countingRouter densifies every request and counts calls
type countingRouter struct {
	calls atomic.Int32
}

func (r *countingRouter) ResolveRoute(ctx context.Context, waypoints geo.Polyline) (geo.Polyline, error) {
	r.calls.Add(1)
	return densify(waypoints, 20), nil
}

// gateRouter blocks every request until release is closed
type gateRouter struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGateRouter() *gateRouter {
	return &gateRouter{started: make(chan struct{}), release: make(chan struct{})}
}

func (r *gateRouter) ResolveRoute(ctx context.Context, waypoints geo.Polyline) (geo.Polyline, error) {
	r.once.Do(func() { close(r.started) })
	<-r.release
	return densify(waypoints, 10), nil
}

// testContext carries a logger, as prefab request contexts do
func testContext(t *testing.T) context.Context {
	return logging.EnsureLogger(t.Context())
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Planner.InterRequestDelay = 0
	return cfg
}

func newTestSession(t *testing.T, router routing.Router) (*LabService, *Session) {
	t.Helper()
	lab := NewLabService(router, testConfig())
	snap, err := lab.CreateSession(testContext(t), viewport.WebMercator{})
	require.NoError(t, err)
	sess, err := lab.GetSession(snap.ID)
	require.NoError(t, err)
	return lab, sess
}

func computeDefault(t *testing.T, sess *Session) Snapshot {
	t.Helper()
	snap, err := sess.Compute(testContext(t), ComputeRequest{
		Start:     telAvivStart,
		End:       telAvivEnd,
		Diversity: 0.5,
	})
	require.NoError(t, err)
	return snap
}

func TestLabService_Sessions(t *testing.T) {
	lab := NewLabService(&countingRouter{}, testConfig())
	ctx := testContext(t)

	snap, err := lab.CreateSession(ctx, viewport.WebMercator{})
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, DefaultView, snap.View)
	assert.False(t, snap.Computed)
	assert.Empty(t, snap.Routes)
	assert.Equal(t, 1, lab.SessionCount())

	_, err = lab.GetSession("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = lab.CreateSession(ctx, viewport.WebMercator{Zoom: 3})
	assert.ErrorIs(t, err, viewport.ErrInvalidView)

	require.NoError(t, lab.DeleteSession(ctx, snap.ID))
	assert.ErrorIs(t, lab.DeleteSession(ctx, snap.ID), ErrSessionNotFound)
	assert.Equal(t, 0, lab.SessionCount())
}

func TestLabService_SessionLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Session.MaxSessions = 2
	lab := NewLabService(&countingRouter{}, cfg)

	for i := 0; i < 2; i++ {
		_, err := lab.CreateSession(testContext(t), viewport.WebMercator{})
		require.NoError(t, err)
	}
	_, err := lab.CreateSession(testContext(t), viewport.WebMercator{})
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestLabService_ExpireIdle(t *testing.T) {
	lab := NewLabService(&countingRouter{}, testConfig())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	lab.now = func() time.Time { return now }

	old, err := lab.CreateSession(testContext(t), viewport.WebMercator{})
	require.NoError(t, err)

	now = now.Add(90 * time.Minute)
	fresh, err := lab.CreateSession(testContext(t), viewport.WebMercator{})
	require.NoError(t, err)

	now = now.Add(60 * time.Minute)
	assert.Equal(t, 1, lab.ExpireIdle(2*time.Hour))

	_, err = lab.GetSession(old.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = lab.GetSession(fresh.ID)
	assert.NoError(t, err)

	assert.Equal(t, 0, lab.ExpireIdle(0), "zero ttl never expires")
}

func TestSession_Compute(t *testing.T) {
	router := &countingRouter{}
	_, sess := newTestSession(t, router)

	snap := computeDefault(t, sess)

	assert.True(t, snap.Computed)
	assert.Equal(t, routing.RouteA, snap.Selected)
	assert.Equal(t, int32(3), router.calls.Load())
	require.Len(t, snap.Routes, 3)

	bounds := snap.View.Bounds()
	for i, r := range snap.Routes {
		assert.Equal(t, routing.RouteIDs[i], r.ID)
		assert.Equal(t, routing.StatusSnapped, r.Status)
		assert.Equal(t, telAvivStart, r.Line.Start())
		assert.Equal(t, telAvivEnd, r.Line.End())

		n := len(r.Line)
		assert.False(t, r.Split.Degenerate)
		assert.True(t, 0 < r.Split.I1 && r.Split.I1 < r.Split.I2 && r.Split.I2 < n-1, "split %+v on %d points", r.Split, n)

		assert.Equal(t, geo.MidpointByIndex(r.Line), r.Anchor.Coord)
		assert.True(t, bounds.Contains(r.Badge.Coord), "badge %s inside the view", r.ID)
		assert.Equal(t, r.Anchor.Coord, r.Link.From)
		assert.InDelta(t, geo.LengthMeters(r.Line), r.Length, 1e-6)
		assert.NotEmpty(t, r.Encoded)
	}
	assert.NotEqual(t, snap.Routes[1].Line, snap.Routes[2].Line, "detours go to opposite sides")
}

func TestSession_ComputeFallback(t *testing.T) {
	failing := routing.RouterFunc(func(ctx context.Context, waypoints geo.Polyline) (geo.Polyline, error) {
		return nil, errors.New("routing down")
	})
	_, sess := newTestSession(t, failing)

	snap := computeDefault(t, sess)
	require.Len(t, snap.Routes, 3)
	for _, r := range snap.Routes {
		assert.Equal(t, routing.StatusFallback, r.Status)
	}
	assert.Equal(t, geo.Polyline{telAvivStart, telAvivEnd}, snap.Routes[0].Line)
	assert.Len(t, snap.Routes[1].Line, 3)
}

func TestSession_ComputeInvalidInput(t *testing.T) {
	_, sess := newTestSession(t, &countingRouter{})

	_, err := sess.Compute(testContext(t), ComputeRequest{
		Start: geo.Point{Longitude: 500, Latitude: 0},
		End:   telAvivEnd,
	})
	assert.ErrorIs(t, err, routing.ErrInvalidInput)

	bad := viewport.WebMercator{Center: telAvivStart, Zoom: 12}
	_, err = sess.Compute(testContext(t), ComputeRequest{Start: telAvivStart, End: telAvivEnd, View: &bad})
	assert.ErrorIs(t, err, viewport.ErrInvalidView)
}

func TestSession_ComputeSupersededByClear(t *testing.T) {
	router := newGateRouter()
	_, sess := newTestSession(t, router)

	errc := make(chan error, 1)
	go func() {
		_, err := sess.Compute(testContext(t), ComputeRequest{Start: telAvivStart, End: telAvivEnd})
		errc <- err
	}()

	<-router.started
	sess.Clear()
	close(router.release)

	assert.ErrorIs(t, <-errc, ErrSuperseded)
	assert.False(t, sess.Snapshot().Computed, "the stale result was not applied")
}

func TestSession_SelectAndDrag(t *testing.T) {
	_, sess := newTestSession(t, &countingRouter{})

	_, err := sess.Select(routing.RouteB)
	assert.ErrorIs(t, err, ErrNoRoutes)

	before := computeDefault(t, sess)

	snap, err := sess.Select(routing.RouteB)
	require.NoError(t, err)
	assert.Equal(t, routing.RouteB, snap.Selected)

	_, err = sess.Select("D")
	assert.ErrorIs(t, err, routing.ErrInvalidInput)

	// Dragging far outside the view clamps into it
	snap, err = sess.DragBadge(routing.RouteC, geo.Point{Longitude: 40, Latitude: 40})
	require.NoError(t, err)
	c := snap.Routes[2]
	assert.True(t, snap.View.Bounds().Contains(c.Badge.Coord))
	assert.NotEqual(t, before.Routes[2].Badge.Coord, c.Badge.Coord)

	// Anchors and lines are untouched by a drag
	assert.Equal(t, before.Routes[2].Anchor, c.Anchor)
	assert.Equal(t, before.Routes[2].Line, c.Line)
	assert.Equal(t, before.Routes[0].Badge, snap.Routes[0].Badge)
	assert.Equal(t, c.Anchor.Coord, c.Link.From)

	_, err = sess.DragBadge(routing.RouteA, geo.Point{Longitude: 400})
	assert.ErrorIs(t, err, routing.ErrInvalidInput)
}

func TestSession_EditFlow(t *testing.T) {
	router := &countingRouter{}
	_, sess := newTestSession(t, router)
	ctx := testContext(t)

	_, err := sess.EnterEdit(routing.RouteB)
	assert.ErrorIs(t, err, ErrNoRoutes)

	computed := computeDefault(t, sess)
	systemLine := computed.Routes[1].Line

	snap, err := sess.EnterEdit(routing.RouteB)
	require.NoError(t, err)
	assert.True(t, snap.Edit.Active)
	assert.Equal(t, routing.RouteB, snap.Selected)
	require.GreaterOrEqual(t, len(snap.Edit.Junctions), 3)

	_, err = sess.Select(routing.RouteA)
	assert.ErrorIs(t, err, ErrEditActive)

	var target string
	for _, j := range snap.Edit.Junctions {
		if !j.Locked {
			target = j.ID
			break
		}
	}
	require.NotEmpty(t, target)

	calls := router.calls.Load()
	snap, err = sess.ToggleJunction(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, []string{target}, snap.Edit.Disabled)
	assert.Equal(t, calls+1, router.calls.Load())

	b := snap.Routes[1]
	assert.Equal(t, snap.Edit.Line, b.Line, "edited line is written back into the route set")
	assert.Equal(t, geo.MidpointByIndex(b.Line), b.Anchor.Coord, "anchor follows the edited line")
	assert.Equal(t, computed.Routes[0].Line, snap.Routes[0].Line, "other routes keep the computed line")

	snap, err = sess.Undo(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Edit.Disabled)
	assert.Equal(t, systemLine, snap.Routes[1].Line)

	snap, err = sess.Redo(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{target}, snap.Edit.Disabled)
	editedLine := snap.Routes[1].Line

	snap, err = sess.ExitEdit()
	require.NoError(t, err)
	assert.False(t, snap.Edit.Active)
	assert.Equal(t, editedLine, snap.Routes[1].Line, "exit keeps the edited line")

	_, err = sess.ExitEdit()
	assert.ErrorIs(t, err, edit.ErrNotActive)

	// Re-entering on the edited line and resetting returns to the computed route
	_, err = sess.EnterEdit(routing.RouteB)
	require.NoError(t, err)
	snap, err = sess.ResetEdit()
	require.NoError(t, err)
	assert.True(t, snap.Edit.Active)
	assert.Equal(t, systemLine, snap.Routes[1].Line)
	assert.Equal(t, 1, snap.Edit.HistoryLength)

	_, err = sess.ToggleJunction(ctx, "J99_999")
	assert.ErrorIs(t, err, edit.ErrUnknownJunction)
}

func TestSession_ComputeClosesEdit(t *testing.T) {
	_, sess := newTestSession(t, &countingRouter{})
	computeDefault(t, sess)

	_, err := sess.EnterEdit(routing.RouteC)
	require.NoError(t, err)

	snap := computeDefault(t, sess)
	assert.False(t, snap.Edit.Active)
	assert.Equal(t, routing.RouteA, snap.Selected)
}

func TestSession_Measure(t *testing.T) {
	_, sess := newTestSession(t, &countingRouter{})

	res, err := sess.Measure(geo.Polyline{telAvivStart, telAvivEnd})
	require.NoError(t, err)
	assert.InDelta(t, geo.Distance(telAvivStart, telAvivEnd), res.LengthMeters, 1e-9)
	assert.Equal(t, geo.FormatDistance(res.LengthMeters), res.Label)

	res, err = sess.Measure(nil)
	require.NoError(t, err)
	assert.Equal(t, "0 m", res.Label)

	_, err = sess.Measure(geo.Polyline{{Latitude: 100}})
	assert.ErrorIs(t, err, routing.ErrInvalidInput)
}

func TestSession_ScoresAndExport(t *testing.T) {
	_, sess := newTestSession(t, &countingRouter{})

	_, err := sess.Scores()
	assert.ErrorIs(t, err, ErrNoRoutes)
	_, err = sess.Export(ExportRequest{})
	assert.ErrorIs(t, err, ErrNoRoutes)

	computeDefault(t, sess)
	sess.SetCategories(scoring.Categories{
		Traffic: []geo.Polyline{{telAvivStart, telAvivEnd}},
	})

	scores, err := sess.Scores()
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Len(t, scores[0].Segments, 3)
	assert.Greater(t, scores[0].Segments[0].FracTraffic, 0.9, "route A runs along the traffic line")

	scenario, err := sess.Export(ExportRequest{Name: "Morning commute", RecommendedRoute: routing.RouteB})
	require.NoError(t, err)
	assert.Equal(t, "Morning commute", scenario.Name)
	assert.Len(t, scenario.Routes, 3)
	assert.Len(t, scenario.Scores, 3)
	assert.Equal(t, routing.RouteA, scenario.Selected)

	_, err = sess.Export(ExportRequest{RecommendedRoute: "Z"})
	assert.Error(t, err)
}

func TestSession_ScoresFollowConfiguredSplit(t *testing.T) {
	cfg := testConfig()
	cfg.Segment.MinFraction = 0.30
	cfg.Segment.MaxFraction = 0.40
	lab := NewLabService(&countingRouter{}, cfg)
	created, err := lab.CreateSession(testContext(t), viewport.WebMercator{})
	require.NoError(t, err)
	sess, err := lab.GetSession(created.ID)
	require.NoError(t, err)

	snap := computeDefault(t, sess)
	scores, err := sess.Scores()
	require.NoError(t, err)

	splitter := segment.NewSplitter(cfg.Segment)
	for i, route := range snap.Routes {
		parts := splitter.Parts(route.Line, route.Split)
		require.Len(t, scores[i].Segments, 3)
		for k, part := range parts {
			assert.InDelta(t, geo.LengthMeters(part), scores[i].Segments[k].LengthMeters, 5,
				"route %s segment %d", route.ID, k+1)
		}
	}
}

func TestSessionSweeper(t *testing.T) {
	cfg := testConfig()
	cfg.Session.IdleTTL = time.Hour
	cfg.Session.CleanupInterval = 5 * time.Millisecond
	lab := NewLabService(&countingRouter{}, cfg)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	lab.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	_, err := lab.CreateSession(testContext(t), viewport.WebMercator{})
	require.NoError(t, err)

	sweeper := NewSessionSweeper(lab)
	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()

	sweeper.Start(ctx)
	assert.True(t, sweeper.IsRunning())

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()

	assert.Eventually(t, func() bool { return lab.SessionCount() == 0 }, time.Second, 5*time.Millisecond)

	sweeper.Stop()
	assert.False(t, sweeper.IsRunning())
	sweeper.Stop()
}
