// Package edit implements junction-based manual editing of one route at a time,
// with a linear undo/redo history of disabled-junction sets.
package edit

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/junction"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/routing"
)

var (
	// ErrNotActive is returned by operations that need an open edit session
	ErrNotActive = errors.New("edit mode is not active")

	// ErrUnknownJunction is returned when toggling an id the session does not know
	ErrUnknownJunction = errors.New("unknown junction")

	// ErrEmptyRoute is returned when entering edit mode on a line with fewer than 2 points
	ErrEmptyRoute = errors.New("route has no geometry to edit")
)

// Config tunes junction selection and the rerouting request
type Config struct {
	Junction         junction.Config `yaml:"junction"`
	MaxRoutingPoints int             `yaml:"max_routing_points"`
}

// DefaultConfig returns the default junction tuning and a 10 waypoint cap
func DefaultConfig() Config {
	return Config{
		Junction:         junction.DefaultConfig(),
		MaxRoutingPoints: geo.DefaultMaxRoutingPoints,
	}
}

// State is a snapshot of the engine
type State struct {
	Active          bool                `json:"active"`
	RouteID         routing.RouteID     `json:"route_id,omitempty"`
	Junctions       []junction.Junction `json:"junctions,omitempty"`
	Disabled        []string            `json:"disabled"`
	HistoryPosition int                 `json:"history_position"`
	HistoryLength   int                 `json:"history_length"`
	CanUndo         bool                `json:"can_undo"`
	CanRedo         bool                `json:"can_redo"`
	Line            geo.Polyline        `json:"line,omitempty"`
	Status          routing.Status      `json:"status,omitempty"`
	Pending         bool                `json:"pending"` // Line does not yet reflect Disabled
}

// Engine runs one edit session at a time. It is safe for concurrent use; at
// most one rerouting request is outstanding and whoever issued it keeps
// re-deriving until the applied line matches the current disabled set.
type Engine struct {
	router routing.Router
	cfg    Config

	mu         sync.Mutex
	active     bool
	routeID    routing.RouteID
	entry      routing.Route // Line edit mode was entered with; the empty disabled set maps to it
	system     routing.Route // System-computed baseline used by Reset
	junctions  []junction.Junction
	history    [][]string
	pos        int
	line       geo.Polyline
	status     routing.Status
	appliedKey string
	inFlight   bool
	generation uint64
}

// NewEngine creates an engine that reroutes through router
func NewEngine(router routing.Router, cfg Config) *Engine {
	if cfg.MaxRoutingPoints < 2 {
		cfg.MaxRoutingPoints = geo.DefaultMaxRoutingPoints
	}
	return &Engine{router: router, cfg: cfg}
}

// Enter opens an edit session on current. system is the pristine computed
// route Reset returns to; an empty system falls back to current.
func (e *Engine) Enter(current, system routing.Route) (State, error) {
	if current.Line.Empty() {
		return State{}, ErrEmptyRoute
	}
	if system.Line.Empty() {
		system = current
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.active = true
	e.routeID = current.ID
	e.system = cloneRoute(system)
	e.start(cloneRoute(current))
	return e.snapshot(), nil
}

// start resets junctions and history around entry. Callers hold mu.
func (e *Engine) start(entry routing.Route) {
	e.generation++
	e.entry = entry
	e.junctions = junction.Build(entry.Line, e.cfg.Junction)
	e.history = [][]string{{}}
	e.pos = 0
	e.line = entry.Line.Clone()
	e.status = entry.Status
	e.appliedKey = ""
}

// Toggle flips the disabled state of an unlocked junction, records the new set
// in history (dropping any redo states) and reroutes. Locked junctions are left
// untouched.
func (e *Engine) Toggle(ctx context.Context, id string) (State, error) {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return State{}, ErrNotActive
	}
	j, ok := junction.Find(e.junctions, id)
	if !ok {
		e.mu.Unlock()
		return State{}, ErrUnknownJunction
	}
	if j.Locked {
		st := e.snapshot()
		e.mu.Unlock()
		return st, nil
	}

	next := flip(e.history[e.pos], id)
	e.history = append(e.history[:e.pos+1], next)
	e.pos++
	e.mu.Unlock()

	e.Refresh(ctx)
	return e.State(), nil
}

// Undo steps back one history entry and reroutes. No-op at the oldest entry.
func (e *Engine) Undo(ctx context.Context) (State, error) {
	return e.move(ctx, -1)
}

// Redo steps forward one history entry and reroutes. No-op at the newest entry.
func (e *Engine) Redo(ctx context.Context) (State, error) {
	return e.move(ctx, +1)
}

func (e *Engine) move(ctx context.Context, delta int) (State, error) {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return State{}, ErrNotActive
	}
	target := e.pos + delta
	if target < 0 || target >= len(e.history) {
		st := e.snapshot()
		e.mu.Unlock()
		return st, nil
	}
	e.pos = target
	e.mu.Unlock()

	e.Refresh(ctx)
	return e.State(), nil
}

// Reset replaces the route with the system baseline and starts a fresh
// history on it
func (e *Engine) Reset() (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return State{}, ErrNotActive
	}
	e.start(cloneRoute(e.system))
	return e.snapshot(), nil
}

// Exit closes the session. The last applied line stays in effect and is
// returned in the final state.
func (e *Engine) Exit() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.snapshot()
	st.Active = false
	st.Junctions = nil
	st.Disabled = []string{}
	st.HistoryPosition, st.HistoryLength = 0, 0
	st.CanUndo, st.CanRedo, st.Pending = false, false, false

	e.generation++
	e.active = false
	e.junctions = nil
	e.history = nil
	e.pos = 0
	return st
}

// State returns a snapshot of the engine
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// Refresh brings the line in line with the current disabled set. If another
// caller already has a request in flight it returns immediately; that caller
// picks up the newer set once its own request completes. Results that arrive
// after Reset, Exit or a new Enter are discarded. A result obtained after ctx
// is done is discarded too, and the loop carries on without ctx's
// cancellation so sets queued by other callers are still routed.
func (e *Engine) Refresh(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inFlight {
		return
	}
	e.inFlight = true
	defer func() { e.inFlight = false }()

	for e.active {
		want := e.history[e.pos]
		key := setKey(want)
		if key == e.appliedKey {
			return
		}

		if len(want) == 0 {
			e.line = e.entry.Line.Clone()
			e.status = e.entry.Status
			e.appliedKey = key
			continue
		}

		disabled := make(map[string]bool, len(want))
		for _, id := range want {
			disabled[id] = true
		}
		waypoints := geo.SimplifyForRouting(junction.Waypoints(e.entry.Line, e.junctions, disabled), e.cfg.MaxRoutingPoints)
		if len(waypoints) < 2 {
			e.appliedKey = key
			continue
		}

		gen := e.generation
		e.mu.Unlock()
		line, status := routing.Resolve(ctx, e.router, waypoints)
		e.mu.Lock()

		if ctx.Err() != nil {
			ctx = context.WithoutCancel(ctx)
			continue
		}
		if gen != e.generation {
			continue
		}
		e.line = line
		e.status = status
		e.appliedKey = key
	}
}

// snapshot copies the current state. Callers hold mu.
func (e *Engine) snapshot() State {
	st := State{
		Active:   e.active,
		RouteID:  e.routeID,
		Line:     e.line.Clone(),
		Status:   e.status,
		Disabled: []string{},
	}
	if !e.active {
		return st
	}

	st.Junctions = slices.Clone(e.junctions)
	st.Disabled = slices.Clone(e.history[e.pos])
	st.HistoryPosition = e.pos
	st.HistoryLength = len(e.history)
	st.CanUndo = e.pos > 0
	st.CanRedo = e.pos < len(e.history)-1
	st.Pending = setKey(e.history[e.pos]) != e.appliedKey
	return st
}

// flip returns a sorted copy of set with id added or removed
func flip(set []string, id string) []string {
	out := make([]string, 0, len(set)+1)
	found := false
	for _, s := range set {
		if s == id {
			found = true
			continue
		}
		out = append(out, s)
	}
	if !found {
		out = append(out, id)
		slices.Sort(out)
	}
	return out
}

func setKey(set []string) string {
	return strings.Join(set, ",")
}

func cloneRoute(r routing.Route) routing.Route {
	r.Waypoints = r.Waypoints.Clone()
	r.Line = r.Line.Clone()
	return r
}
