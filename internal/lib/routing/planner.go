package routing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
)

// PlannerConfig tunes the three-route computation
type PlannerConfig struct {
	// Offset of the via points from the start/end midpoint, as a fraction of
	// the viewport's shorter side: BaseOffsetFraction + diversity*DiversityOffsetFraction
	BaseOffsetFraction      float64       `yaml:"base_offset_fraction"`
	DiversityOffsetFraction float64       `yaml:"diversity_offset_fraction"`
	InterRequestDelay       time.Duration `yaml:"inter_request_delay"` // Pause between router calls
}

// DefaultPlannerConfig returns the offsets used by the lab UI
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		BaseOffsetFraction:      0.06,
		DiversityOffsetFraction: 0.10,
		InterRequestDelay:       250 * time.Millisecond,
	}
}

// Axes describes the start->end frame in degree space. U is perpendicular to
// the start->end direction, V runs along it. BaseOffset is the via point
// distance from the midpoint, in degrees.
type Axes struct {
	UX         float64 `json:"ux"`
	UY         float64 `json:"uy"`
	VX         float64 `json:"vx"`
	VY         float64 `json:"vy"`
	BaseOffset float64 `json:"base_offset"`
}

// TripleAxes derives the placement frame for start, end and the current viewport
func TripleAxes(start, end geo.Point, bounds geo.BoundingBox, diversity float64, cfg PlannerConfig) Axes {
	diversity = ClampDiversity(diversity)

	dx := end.Longitude - start.Longitude
	dy := end.Latitude - start.Latitude

	length := math.Hypot(dx, dy)
	if length == 0 {
		length = 1
	}

	return Axes{
		UX:         -dy / length,
		UY:         dx / length,
		VX:         dx / length,
		VY:         dy / length,
		BaseOffset: (cfg.BaseOffsetFraction + diversity*cfg.DiversityOffsetFraction) * math.Min(bounds.Width(), bounds.Height()),
	}
}

// ViaPoints returns the two detour points, symmetric about the start->end line
func (a Axes) ViaPoints(start, end geo.Point) (geo.Point, geo.Point) {
	mid := geo.Point{
		Longitude: (start.Longitude + end.Longitude) / 2,
		Latitude:  (start.Latitude + end.Latitude) / 2,
	}
	via1 := geo.Point{Longitude: mid.Longitude + a.UX*a.BaseOffset, Latitude: mid.Latitude + a.UY*a.BaseOffset}
	via2 := geo.Point{Longitude: mid.Longitude - a.UX*a.BaseOffset, Latitude: mid.Latitude - a.UY*a.BaseOffset}
	return via1, via2
}

// ClampDiversity limits diversity to [0, 1]
func ClampDiversity(diversity float64) float64 {
	if math.IsNaN(diversity) {
		return 0
	}
	return math.Max(0, math.Min(1, diversity))
}

// TripleResult is the outcome of one compute action
type TripleResult struct {
	Routes    RouteSet `json:"routes"`
	Axes      Axes     `json:"axes"`
	Diversity float64  `json:"diversity"`
}

// Planner computes the direct route and two perpendicular detours
type Planner struct {
	router Router
	cfg    PlannerConfig
}

// NewPlanner creates a planner that resolves routes through router
func NewPlanner(router Router, cfg PlannerConfig) *Planner {
	if cfg.BaseOffsetFraction <= 0 && cfg.DiversityOffsetFraction <= 0 {
		def := DefaultPlannerConfig()
		cfg.BaseOffsetFraction = def.BaseOffsetFraction
		cfg.DiversityOffsetFraction = def.DiversityOffsetFraction
	}
	return &Planner{router: router, cfg: cfg}
}

// Config returns the planner tuning
func (p *Planner) Config() PlannerConfig {
	return p.cfg
}

// ComputeTriple requests A = [start, end], B = [start, via1, end] and
// C = [start, via2, end] one after another. A failed request falls back to the
// straight line through its waypoints; only invalid input or a cancelled
// context is an error.
func (p *Planner) ComputeTriple(ctx context.Context, start, end geo.Point, diversity float64, bounds geo.BoundingBox) (TripleResult, error) {
	if !start.Valid() || !end.Valid() {
		return TripleResult{}, fmt.Errorf("%w: start or end outside lat/lng range", ErrInvalidInput)
	}

	axes := TripleAxes(start, end, bounds, diversity, p.cfg)
	via1, via2 := axes.ViaPoints(start, end)

	requests := []struct {
		id        RouteID
		waypoints geo.Polyline
	}{
		{RouteA, geo.Polyline{start, end}},
		{RouteB, geo.Polyline{start, via1, end}},
		{RouteC, geo.Polyline{start, via2, end}},
	}

	routes := make(RouteSet, len(requests))
	for i, req := range requests {
		if i > 0 {
			if err := p.pause(ctx); err != nil {
				return TripleResult{}, err
			}
		}

		line, status := Resolve(ctx, p.router, req.waypoints)
		if err := ctx.Err(); err != nil {
			return TripleResult{}, err
		}

		routes[req.id] = Route{
			ID:        req.id,
			Waypoints: req.waypoints,
			Line:      line,
			Status:    status,
		}
	}

	return TripleResult{
		Routes:    routes,
		Axes:      axes,
		Diversity: ClampDiversity(diversity),
	}, nil
}

// pause waits the inter-request delay unless ctx ends first
func (p *Planner) pause(ctx context.Context) error {
	if p.cfg.InterRequestDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.cfg.InterRequestDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
