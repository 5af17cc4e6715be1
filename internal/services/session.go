package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/export"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/badge"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/edit"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/routing"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/scoring"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/viewport"
)

// Session is one lab map. The route set it holds is the single source of
// truth: edit results are written back into it and every derived value
// (segments, anchors, connectors) is computed from it.
type Session struct {
	ID string

	svc    *LabService
	engine *edit.Engine

	mu         sync.Mutex
	generation uint64
	createdAt  time.Time
	lastUsed   time.Time
	view       viewport.WebMercator
	computed   bool
	start      geo.Point
	end        geo.Point
	diversity  float64
	axes       routing.Axes
	routes     routing.RouteSet // Current lines, edits applied
	system     routing.RouteSet // As computed, Reset target
	anchors    [3]badge.Anchor
	badges     [3]badge.Badge
	selected   routing.RouteID
	categories scoring.Categories
}

// Snapshot is the serializable state of a session
type Snapshot struct {
	ID         string               `json:"id"`
	Generation uint64               `json:"generation"`
	CreatedAt  time.Time            `json:"created_at"`
	View       viewport.WebMercator `json:"view"`
	Computed   bool                 `json:"computed"`
	Start      *geo.Point           `json:"start,omitempty"`
	End        *geo.Point           `json:"end,omitempty"`
	Diversity  float64              `json:"diversity"`
	Selected   routing.RouteID      `json:"selected_route,omitempty"`
	Routes     []export.RouteData   `json:"routes"`
	Edit       edit.State           `json:"edit"`
	Categories scoring.Categories   `json:"categories"`
}

// ComputeRequest is the input of a compute action
type ComputeRequest struct {
	Start     geo.Point             `json:"start"`
	End       geo.Point             `json:"end"`
	Diversity float64               `json:"diversity"`
	View      *viewport.WebMercator `json:"view,omitempty"` // Replaces the session view when set
}

// MeasureResult is the outcome of a measurement
type MeasureResult struct {
	Points       geo.Polyline `json:"points"`
	LengthMeters float64      `json:"length_m"`
	Label        string       `json:"label"`
}

// ExportRequest carries the scenario metadata entered in the export dialog
type ExportRequest struct {
	Name             string          `json:"scenario_name"`
	TaskText         string          `json:"task_text,omitempty"`
	RecommendedRoute routing.RouteID `json:"recommended_route,omitempty"`
	VizType          export.VizType  `json:"viz_type,omitempty"`
}

// Snapshot returns the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SetView updates the map view used for badge clamping and connectors
func (s *Session) SetView(view viewport.WebMercator) (Snapshot, error) {
	if err := view.Validate(); err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = view
	return s.snapshotLocked(), nil
}

// Compute replaces the route set with a fresh triple, auto-places the badges
// and selects route A. Any edit session is closed first. If another Compute
// or a Clear happens while the routes are being resolved, this result is
// dropped and ErrSuperseded returned.
func (s *Session) Compute(ctx context.Context, req ComputeRequest) (Snapshot, error) {
	if req.View != nil {
		if err := req.View.Validate(); err != nil {
			return Snapshot{}, err
		}
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	if req.View != nil {
		s.view = *req.View
	}
	bounds := s.view.Bounds()
	s.mu.Unlock()

	s.engine.Exit()

	result, err := s.svc.planner.ComputeTriple(ctx, req.Start, req.End, req.Diversity, bounds)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to compute routes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		logging.Infow(ctx, "Discarding superseded compute", "session_id", s.ID, "generation", gen)
		return Snapshot{}, ErrSuperseded
	}

	s.engine.Exit()
	s.computed = true
	s.start, s.end = req.Start, req.End
	s.diversity = result.Diversity
	s.axes = result.Axes
	s.routes = result.Routes
	s.system = result.Routes.Clone()
	s.anchors = badge.Anchors(s.routes)
	s.badges = badge.Place(s.anchors, s.axes, bounds, s.svc.cfg.Badge)
	s.selected = routing.RouteA

	fallbacks := 0
	for _, r := range s.routes {
		if r.Status == routing.StatusFallback {
			fallbacks++
		}
	}
	if fallbacks > 0 {
		logging.Warnw(ctx, "Routes fell back to straight lines", "session_id", s.ID, "fallbacks", fallbacks)
	}

	return s.snapshotLocked(), nil
}

// Select makes id the selected route. While editing, only the edited route
// may be selected.
func (s *Session) Select(id routing.RouteID) (Snapshot, error) {
	if _, err := routeIndex(id); err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.computed {
		return Snapshot{}, ErrNoRoutes
	}
	if st := s.engine.State(); st.Active && st.RouteID != id {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrEditActive, st.RouteID)
	}
	s.selected = id
	return s.snapshotLocked(), nil
}

// DragBadge moves the badge of id, clamped into the current view. Anchors
// and lines are untouched.
func (s *Session) DragBadge(id routing.RouteID, to geo.Point) (Snapshot, error) {
	i, err := routeIndex(id)
	if err != nil {
		return Snapshot{}, err
	}
	if !to.Valid() {
		return Snapshot{}, fmt.Errorf("%w: badge position %v", routing.ErrInvalidInput, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.computed {
		return Snapshot{}, ErrNoRoutes
	}
	s.badges[i] = badge.Drag(s.badges[i], to, s.view.Bounds(), s.svc.cfg.Badge)
	return s.snapshotLocked(), nil
}

// Clear drops the route set, the edit session and any in-flight compute
func (s *Session) Clear() Snapshot {
	s.engine.Exit()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.computed = false
	s.start, s.end = geo.Point{}, geo.Point{}
	s.diversity = 0
	s.axes = routing.Axes{}
	s.routes, s.system = nil, nil
	s.anchors = [3]badge.Anchor{}
	s.badges = [3]badge.Badge{}
	s.selected = ""
	return s.snapshotLocked()
}

// Measure returns the length of the clicked path
func (s *Session) Measure(points geo.Polyline) (MeasureResult, error) {
	if err := points.Validate(); err != nil {
		return MeasureResult{}, fmt.Errorf("%w: %v", routing.ErrInvalidInput, err)
	}
	length := geo.LengthMeters(points)
	return MeasureResult{
		Points:       points.Clone(),
		LengthMeters: length,
		Label:        geo.FormatDistance(length),
	}, nil
}

// EnterEdit opens an edit session on id and selects it
func (s *Session) EnterEdit(id routing.RouteID) (Snapshot, error) {
	if _, err := routeIndex(id); err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.computed {
		return Snapshot{}, ErrNoRoutes
	}
	if _, err := s.engine.Enter(s.routes[id], s.system[id]); err != nil {
		return Snapshot{}, err
	}
	s.selected = id
	return s.snapshotLocked(), nil
}

// ToggleJunction enables or disables a junction and reroutes
func (s *Session) ToggleJunction(ctx context.Context, junctionID string) (Snapshot, error) {
	return s.editStep(func() (edit.State, error) {
		return s.engine.Toggle(ctx, junctionID)
	})
}

// Undo steps the edit history back
func (s *Session) Undo(ctx context.Context) (Snapshot, error) {
	return s.editStep(func() (edit.State, error) {
		return s.engine.Undo(ctx)
	})
}

// Redo steps the edit history forward
func (s *Session) Redo(ctx context.Context) (Snapshot, error) {
	return s.editStep(func() (edit.State, error) {
		return s.engine.Redo(ctx)
	})
}

// ResetEdit restores the computed route and starts a fresh edit history
func (s *Session) ResetEdit() (Snapshot, error) {
	return s.editStep(s.engine.Reset)
}

// ExitEdit closes the edit session. The edited line stays in effect.
func (s *Session) ExitEdit() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.engine.State().Active {
		return Snapshot{}, edit.ErrNotActive
	}
	s.applyEdit(s.engine.Exit())
	return s.snapshotLocked(), nil
}

// editStep runs op without holding the session lock, since it may wait on the
// router, then writes the resulting line back into the route set
func (s *Session) editStep(op func() (edit.State, error)) (Snapshot, error) {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	st, err := op()
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A compute or clear in the meantime replaced the route set
	if gen == s.generation {
		s.applyEdit(st)
	}
	return s.snapshotLocked(), nil
}

// applyEdit copies the engine's line into the edited route and moves its
// anchor. Callers hold mu.
func (s *Session) applyEdit(st edit.State) {
	if !s.computed || st.RouteID == "" || st.Line.Empty() {
		return
	}
	r, ok := s.routes[st.RouteID]
	if !ok || (r.Line.Equal(st.Line) && r.Status == st.Status) {
		return
	}
	r.Line = st.Line.Clone()
	r.Status = st.Status
	s.routes[st.RouteID] = r

	i, err := routeIndex(st.RouteID)
	if err != nil {
		return
	}
	s.anchors[i] = badge.Anchor{RouteID: st.RouteID, Coord: geo.MidpointByIndex(r.Line)}
}

// SetCategories replaces the scoring categories
func (s *Session) SetCategories(cats scoring.Categories) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = cats
	return s.snapshotLocked()
}

// Scores rates every route segment against the session categories
func (s *Session) Scores() ([]scoring.RouteScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.computed {
		return nil, ErrNoRoutes
	}
	s.syncEditLocked()
	return scoring.Compute(s.routes, s.svc.splitter, s.categories, s.svc.cfg.Scoring), nil
}

// Export builds the scenario payload for the participant viewer
func (s *Session) Export(req ExportRequest) (export.Scenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.computed {
		return export.Scenario{}, ErrNoRoutes
	}

	snap := s.snapshotLocked()
	scenario := export.Scenario{
		Version:          export.PayloadVersion,
		Name:             req.Name,
		TaskText:         req.TaskText,
		RecommendedRoute: req.RecommendedRoute,
		VizType:          req.VizType,
		CreatedAt:        s.svc.now().UTC(),
		View:             s.view,
		Start:            s.start,
		End:              s.end,
		Diversity:        s.diversity,
		Selected:         s.selected,
		Routes:           snap.Routes,
		Junctions:        snap.Edit.Junctions,
		Disabled:         snap.Edit.Disabled,
		Categories:       s.categories,
		Scores:           scoring.Compute(s.routes, s.svc.splitter, s.categories, s.svc.cfg.Scoring),
		Styles:           export.DefaultStyles(),
	}
	if scenario.Name == "" {
		scenario.Name = "scenario"
	}
	if err := scenario.Validate(); err != nil {
		return export.Scenario{}, err
	}
	return scenario, nil
}

// syncEditLocked picks up a line applied by a request that finished after its
// caller returned. Callers hold mu.
func (s *Session) syncEditLocked() edit.State {
	st := s.engine.State()
	if st.Active {
		s.applyEdit(st)
	}
	return st
}

// snapshotLocked builds the snapshot. Callers hold mu.
func (s *Session) snapshotLocked() Snapshot {
	st := s.syncEditLocked()

	snap := Snapshot{
		ID:         s.ID,
		Generation: s.generation,
		CreatedAt:  s.createdAt,
		View:       s.view,
		Computed:   s.computed,
		Diversity:  s.diversity,
		Selected:   s.selected,
		Routes:     []export.RouteData{},
		Edit:       st,
		Categories: s.categories,
	}
	if !s.computed {
		return snap
	}

	start, end := s.start, s.end
	snap.Start, snap.End = &start, &end

	cfg := s.svc.cfg.Badge
	connectors := badge.Connectors(s.view, s.anchors, s.badges, cfg)
	for i, id := range routing.RouteIDs {
		r := s.routes[id]
		split := s.svc.splitter.Split(r.Line)
		snap.Routes = append(snap.Routes, export.RouteData{
			ID:       id,
			Line:     r.Line.Clone(),
			Encoded:  geo.EncodePolyline(r.Line),
			Status:   r.Status,
			Split:    split,
			Segments: s.svc.splitter.Display(r.Line, split),
			Length:   geo.LengthMeters(r.Line),
			Badge:    s.badges[i],
			Anchor:   s.anchors[i],
			Link:     connectors[i],
		})
	}
	return snap
}

func routeIndex(id routing.RouteID) (int, error) {
	i := slices.Index(routing.RouteIDs, id)
	if i < 0 {
		return 0, fmt.Errorf("%w: unknown route %q", routing.ErrInvalidInput, id)
	}
	return i, nil
}
