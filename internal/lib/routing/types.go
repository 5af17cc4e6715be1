package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
)

var (
	// ErrNoRoute is returned by routers that could not produce a usable geometry
	ErrNoRoute = errors.New("no route found")

	// ErrInvalidInput is returned for coordinates outside the valid lat/lng range
	ErrInvalidInput = errors.New("invalid routing input")
)

// RouteID identifies one of the three alternative routes
type RouteID string

const (
	RouteA RouteID = "A" // Direct route
	RouteB RouteID = "B" // Detour via the first perpendicular via point
	RouteC RouteID = "C" // Detour via the opposite via point
)

// RouteIDs lists every route in display order
var RouteIDs = []RouteID{RouteA, RouteB, RouteC}

// ParseRouteID validates a route identifier received from a client
func ParseRouteID(s string) (RouteID, error) {
	switch RouteID(s) {
	case RouteA, RouteB, RouteC:
		return RouteID(s), nil
	}
	return "", fmt.Errorf("%w: unknown route %q", ErrInvalidInput, s)
}

// Status reports whether a route geometry came from the router or from the straight-line fallback
type Status string

const (
	StatusSnapped  Status = "snapped"
	StatusFallback Status = "fallback"
)

// Route is one alternative with the waypoints it was requested through
type Route struct {
	ID        RouteID      `json:"id"`
	Waypoints geo.Polyline `json:"waypoints"`
	Line      geo.Polyline `json:"line"`
	Status    Status       `json:"status"`
}

// RouteSet maps each RouteID to its current route
type RouteSet map[RouteID]Route

// Line returns the polyline for id, nil when absent
func (s RouteSet) Line(id RouteID) geo.Polyline {
	return s[id].Line
}

// Lines returns the three polylines in display order
func (s RouteSet) Lines() [3]geo.Polyline {
	return [3]geo.Polyline{s.Line(RouteA), s.Line(RouteB), s.Line(RouteC)}
}

// Clone returns a deep copy
func (s RouteSet) Clone() RouteSet {
	out := make(RouteSet, len(s))
	for id, r := range s {
		r.Waypoints = r.Waypoints.Clone()
		r.Line = r.Line.Clone()
		out[id] = r
	}
	return out
}

// Router resolves an ordered waypoint list to a snapped polyline
type Router interface {
	// ResolveRoute returns a polyline whose ends approximate the first and last
	// waypoints, or an error when no usable geometry is available
	ResolveRoute(ctx context.Context, waypoints geo.Polyline) (geo.Polyline, error)
}

// RouterFunc adapts a function to the Router interface
type RouterFunc func(ctx context.Context, waypoints geo.Polyline) (geo.Polyline, error)

// ResolveRoute calls f
func (f RouterFunc) ResolveRoute(ctx context.Context, waypoints geo.Polyline) (geo.Polyline, error) {
	return f(ctx, waypoints)
}

// StraightLine is the fallback geometry: the waypoints themselves
func StraightLine(waypoints geo.Polyline) geo.Polyline {
	return waypoints.Clone()
}

// Resolve asks router for a route through waypoints. Any failure, including a
// result with fewer than 2 points, degrades to the straight line.
func Resolve(ctx context.Context, router Router, waypoints geo.Polyline) (geo.Polyline, Status) {
	if waypoints.Empty() || router == nil {
		return StraightLine(waypoints), StatusFallback
	}

	line, err := router.ResolveRoute(ctx, waypoints)
	if err != nil || line.Empty() {
		return StraightLine(waypoints), StatusFallback
	}
	return line, StatusSnapped
}
