// Package export produces the plain data a standalone scenario viewer consumes:
// a JSON scenario payload, a GeoJSON layer collection and a KML document.
package export

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/badge"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/junction"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/routing"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/scoring"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/segment"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/viewport"
)

// PayloadVersion is bumped whenever the scenario layout changes
const PayloadVersion = 1

// ErrInvalidScenario is returned by Validate
var ErrInvalidScenario = errors.New("invalid scenario")

// VizType selects the chart the participant viewer shows
type VizType string

const (
	VizTimes   VizType = "times"
	VizBars    VizType = "bars"
	VizRadar   VizType = "radar"
	VizHeatmap VizType = "heatmap"
)

// RouteData is one route with its derived segment display data
type RouteData struct {
	ID       routing.RouteID  `json:"id"`
	Line     geo.Polyline     `json:"line"`
	Encoded  string           `json:"encoded"` // Google polyline of Line
	Status   routing.Status   `json:"status"`
	Split    segment.Split    `json:"split"`
	Segments segment.Display  `json:"segments"`
	Length   float64          `json:"length_m"`
	Badge    badge.Badge      `json:"badge"`
	Anchor   badge.Anchor     `json:"anchor"`
	Link     badge.Connector  `json:"connector"`
}

// LineStyle is a declarative style entry for one logical layer
type LineStyle struct {
	Color   string  `json:"color"`
	Opacity float64 `json:"opacity"`
	Width   float64 `json:"width"`
}

// Styles maps logical layer names to styles
type Styles map[string]LineStyle

// DefaultStyles returns the palette the lab map uses
func DefaultStyles() Styles {
	return Styles{
		"route":          {Color: "#8CCBFF", Opacity: 0.42, Width: 7},
		"route-selected": {Color: "#1E4ED8", Opacity: 0.92, Width: 9},
		"traffic":        {Color: "#FF0022", Opacity: 1, Width: 5},
		"toll":           {Color: "#FFE100", Opacity: 1, Width: 5},
		"comm":           {Color: "#AA3CFF", Opacity: 0.65, Width: 2},
		"parks":          {Color: "#00FF66", Opacity: 0.95, Width: 2},
		"ticks":          {Color: "#111827", Opacity: 1, Width: 3},
	}
}

// Scenario is the exported payload
type Scenario struct {
	Version          int                 `json:"version"`
	Name             string              `json:"scenario_name"`
	TaskText         string              `json:"task_text,omitempty"`
	RecommendedRoute routing.RouteID     `json:"recommended_route,omitempty"`
	VizType          VizType             `json:"viz_type,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	View             viewport.WebMercator `json:"map_view"`
	Start            geo.Point           `json:"start"`
	End              geo.Point           `json:"end"`
	Diversity        float64             `json:"diversity"`
	Selected         routing.RouteID     `json:"selected_route"`
	Routes           []RouteData         `json:"routes"`
	Junctions        []junction.Junction `json:"junctions,omitempty"`
	Disabled         []string            `json:"disabled_junctions,omitempty"`
	Categories       scoring.Categories  `json:"categories"`
	Scores           []scoring.RouteScore `json:"route_scores"`
	Styles           Styles              `json:"colors"`
}

// Validate checks the payload is renderable
func (s Scenario) Validate() error {
	if err := s.View.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if len(s.Routes) == 0 {
		return fmt.Errorf("%w: no routes", ErrInvalidScenario)
	}
	seen := make(map[routing.RouteID]bool, len(s.Routes))
	for _, r := range s.Routes {
		if _, err := routing.ParseRouteID(string(r.ID)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate route %s", ErrInvalidScenario, r.ID)
		}
		seen[r.ID] = true
		if r.Line.Empty() {
			return fmt.Errorf("%w: route %s has no geometry", ErrInvalidScenario, r.ID)
		}
		if err := r.Line.Validate(); err != nil {
			return fmt.Errorf("%w: route %s: %v", ErrInvalidScenario, r.ID, err)
		}
	}
	switch s.VizType {
	case "", VizTimes, VizBars, VizRadar, VizHeatmap:
	default:
		return fmt.Errorf("%w: unknown viz type %q", ErrInvalidScenario, s.VizType)
	}
	if s.RecommendedRoute != "" && !seen[s.RecommendedRoute] {
		return fmt.Errorf("%w: recommended route %s is not part of the scenario", ErrInvalidScenario, s.RecommendedRoute)
	}
	return nil
}

var (
	unsafeChars = regexp.MustCompile(`[\\/:*?"<>|]+`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// SafeFileName turns a scenario name into a file name usable on every
// platform: reserved characters become dashes, whitespace becomes
// underscores, and the result is at most 80 characters
func SafeFileName(name string) string {
	base := strings.TrimSpace(name)
	if base == "" {
		base = "scenario"
	}
	cleaned := unsafeChars.ReplaceAllString(base, "-")
	cleaned = whitespace.ReplaceAllString(cleaned, "_")
	if r := []rune(cleaned); len(r) > 80 {
		cleaned = string(r[:80])
	}
	if cleaned == "" {
		return "scenario"
	}
	return cleaned
}
