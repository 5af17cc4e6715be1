// Package badge places the A/B/C route tags and the connector lines that tie
// each tag to its route.
package badge

import (
	"math"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/routing"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/viewport"
)

// Labels are the tag captions shown on the map
var Labels = map[routing.RouteID]string{
	routing.RouteA: "א",
	routing.RouteB: "ב",
	routing.RouteC: "ג",
}

// Badge is a draggable route tag
type Badge struct {
	RouteID routing.RouteID `json:"route_id"`
	Label   string          `json:"label"`
	Coord   geo.Point       `json:"coord"`
}

// Anchor is the route point a tag's connector starts from
type Anchor struct {
	RouteID routing.RouteID `json:"route_id"`
	Coord   geo.Point       `json:"coord"`
}

// Connector joins an anchor to the border of its badge
type Connector struct {
	RouteID routing.RouteID `json:"route_id"`
	From    geo.Point       `json:"from"` // Anchor
	To      geo.Point       `json:"to"`   // Point on the badge border
}

// Config holds the empirical placement constants
type Config struct {
	SideFraction      float64 `yaml:"side_fraction"`      // Perpendicular offset, fraction of the via offset
	AlongFraction     float64 `yaml:"along_fraction"`     // Along-axis offset, fraction of the via offset
	AlongBias         float64 `yaml:"along_bias"`         // A and B shift forward by this, C backward
	ThresholdFraction float64 `yaml:"threshold_fraction"` // Badges closer than this fraction of the via offset are nudged
	NudgeFraction     float64 `yaml:"nudge_fraction"`     // Nudge step, fraction of the side offset
	PlacePadding      float64 `yaml:"place_padding"`      // Inward bounds padding for auto placement
	DragPadding       float64 `yaml:"drag_padding"`       // Inward bounds padding while dragging
	TagScreenPx       float64 `yaml:"tag_screen_px"`      // On-screen tag square size
}

// DefaultConfig returns the lab UI's placement constants
func DefaultConfig() Config {
	return Config{
		SideFraction:      0.17,
		AlongFraction:     0.17,
		AlongBias:         0.8,
		ThresholdFraction: 0.45,
		NudgeFraction:     0.45,
		PlacePadding:      0.07,
		DragPadding:       0.06,
		TagScreenPx:       26,
	}
}

// Anchors returns the index midpoint of each route, in A, B, C order
func Anchors(routes routing.RouteSet) [3]Anchor {
	var out [3]Anchor
	for i, id := range routing.RouteIDs {
		out[i] = Anchor{RouteID: id, Coord: geo.MidpointByIndex(routes.Line(id))}
	}
	return out
}

// Place computes default badge positions around the anchors. A sits on the
// +U side, B on the -U side, both shifted forward along V; C sits on the +U
// side shifted backward. Pairs that end up too close are nudged along U, then
// every badge is clamped into bounds.
func Place(anchors [3]Anchor, axes routing.Axes, bounds geo.BoundingBox, cfg Config) [3]Badge {
	side := axes.BaseOffset * cfg.SideFraction
	along := axes.BaseOffset * cfg.AlongFraction

	place := func(anchor geo.Point, sign, alongK float64) geo.Point {
		p := geo.Point{
			Longitude: anchor.Longitude + axes.UX*side*sign + axes.VX*along*alongK,
			Latitude:  anchor.Latitude + axes.UY*side*sign + axes.VY*along*alongK,
		}
		return bounds.Clamp(p, cfg.PlacePadding)
	}
	nudge := func(p geo.Point, k float64) geo.Point {
		p.Longitude += axes.UX * side * cfg.NudgeFraction * k
		p.Latitude += axes.UY * side * cfg.NudgeFraction * k
		return bounds.Clamp(p, cfg.PlacePadding)
	}

	a := place(anchors[0].Coord, +1, cfg.AlongBias)
	b := place(anchors[1].Coord, -1, cfg.AlongBias)
	c := place(anchors[2].Coord, +1, -cfg.AlongBias)

	thresh := axes.BaseOffset * cfg.ThresholdFraction
	if degreeDistance(a, b) < thresh {
		b = nudge(b, -1)
	}
	if degreeDistance(a, c) < thresh {
		c = nudge(c, +1)
	}
	if degreeDistance(b, c) < thresh {
		c = nudge(c, +1.4)
	}

	return [3]Badge{
		{RouteID: routing.RouteA, Label: Labels[routing.RouteA], Coord: a},
		{RouteID: routing.RouteB, Label: Labels[routing.RouteB], Coord: b},
		{RouteID: routing.RouteC, Label: Labels[routing.RouteC], Coord: c},
	}
}

// Drag moves a badge to the requested coordinate, clamped into bounds
func Drag(b Badge, to geo.Point, bounds geo.BoundingBox, cfg Config) Badge {
	b.Coord = bounds.Clamp(to, cfg.DragPadding)
	return b
}

// BorderPoint returns where the screen-space segment from the badge center
// toward anchor leaves the badge square of side tagPx
func BorderPoint(view viewport.MapView, center, anchor geo.Point, tagPx float64) geo.Point {
	c := view.Project(center)
	a := view.Project(anchor)

	dx := a.X - c.X
	dy := a.Y - c.Y
	if dx == 0 && dy == 0 {
		return center
	}

	half := tagPx / 2
	tx, ty := math.Inf(1), math.Inf(1)
	if dx != 0 {
		tx = half / math.Abs(dx)
	}
	if dy != 0 {
		ty = half / math.Abs(dy)
	}
	t := math.Min(tx, ty)

	return view.Unproject(viewport.ScreenPoint{X: c.X + dx*t, Y: c.Y + dy*t})
}

// Connectors builds one connector per route from its anchor to its badge border
func Connectors(view viewport.MapView, anchors [3]Anchor, badges [3]Badge, cfg Config) [3]Connector {
	var out [3]Connector
	for i := range anchors {
		out[i] = Connector{
			RouteID: anchors[i].RouteID,
			From:    anchors[i].Coord,
			To:      BorderPoint(view, badges[i].Coord, anchors[i].Coord, cfg.TagScreenPx),
		}
	}
	return out
}

func degreeDistance(a, b geo.Point) float64 {
	return math.Hypot(a.Longitude-b.Longitude, a.Latitude-b.Latitude)
}
