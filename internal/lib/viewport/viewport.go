// Package viewport projects between geographic coordinates and screen pixels
// for a web-mercator map view.
package viewport

import (
	"errors"
	"fmt"
	"math"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
)

const (
	// TileSize is the world size in pixels at zoom 0
	TileSize = 512

	// MaxZoom is the deepest zoom level a view may report
	MaxZoom = 24

	// MaxLatitude is the web-mercator latitude limit
	MaxLatitude = 85.0511287798066
)

// ErrInvalidView is returned for view states that cannot be projected
var ErrInvalidView = errors.New("invalid map view")

// ScreenPoint is a position in CSS pixels, origin at the top-left corner
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MapView is the projection surface badge placement works against
type MapView interface {
	Project(p geo.Point) ScreenPoint
	Unproject(s ScreenPoint) geo.Point
	Bounds() geo.BoundingBox
}

// WebMercator is a map view state as reported by the client map
type WebMercator struct {
	Center geo.Point `json:"center" yaml:"center"`
	Zoom   float64   `json:"zoom" yaml:"zoom"`
	Width  float64   `json:"width" yaml:"width"`   // Pixels
	Height float64   `json:"height" yaml:"height"` // Pixels
}

// Validate checks the view can be projected
func (v WebMercator) Validate() error {
	if !v.Center.Valid() || math.Abs(v.Center.Latitude) > MaxLatitude {
		return fmt.Errorf("%w: center %v outside the projectable range", ErrInvalidView, v.Center)
	}
	if math.IsNaN(v.Zoom) || v.Zoom < 0 || v.Zoom > MaxZoom {
		return fmt.Errorf("%w: zoom %v must be within [0, %d]", ErrInvalidView, v.Zoom, MaxZoom)
	}
	if !(v.Width > 0) || !(v.Height > 0) {
		return fmt.Errorf("%w: size %vx%v must be positive", ErrInvalidView, v.Width, v.Height)
	}
	return nil
}

func worldSize(zoom float64) float64 {
	return TileSize * math.Pow(2, zoom)
}

// toWorld returns world pixel coordinates at zoom
func toWorld(p geo.Point, zoom float64) (float64, float64) {
	lat := math.Max(-MaxLatitude, math.Min(MaxLatitude, p.Latitude))
	sin := math.Sin(lat * math.Pi / 180)
	ws := worldSize(zoom)
	x := (p.Longitude + 180) / 360 * ws
	y := (0.5 - math.Log((1+sin)/(1-sin))/(4*math.Pi)) * ws
	return x, y
}

// fromWorld inverts toWorld
func fromWorld(x, y, zoom float64) geo.Point {
	ws := worldSize(zoom)
	m := 2 * math.Pi * (0.5 - y/ws)
	return geo.Point{
		Longitude: x/ws*360 - 180,
		Latitude:  math.Atan(math.Sinh(m)) * 180 / math.Pi,
	}
}

// Project converts a coordinate to screen pixels
func (v WebMercator) Project(p geo.Point) ScreenPoint {
	cx, cy := toWorld(v.Center, v.Zoom)
	x, y := toWorld(p, v.Zoom)
	return ScreenPoint{X: x - cx + v.Width/2, Y: y - cy + v.Height/2}
}

// Unproject converts screen pixels back to a coordinate
func (v WebMercator) Unproject(s ScreenPoint) geo.Point {
	cx, cy := toWorld(v.Center, v.Zoom)
	return fromWorld(s.X-v.Width/2+cx, s.Y-v.Height/2+cy, v.Zoom)
}

// Bounds returns the geographic extent of the view
func (v WebMercator) Bounds() geo.BoundingBox {
	nw := v.Unproject(ScreenPoint{X: 0, Y: 0})
	se := v.Unproject(ScreenPoint{X: v.Width, Y: v.Height})
	return geo.BoundingBox{West: nw.Longitude, North: nw.Latitude, East: se.Longitude, South: se.Latitude}
}

// Fit returns the view of the given pixel size that shows bounds with
// paddingPx on every side, capped at maxZoom
func Fit(bounds geo.BoundingBox, width, height, paddingPx, maxZoom float64) WebMercator {
	center := geo.Point{
		Longitude: (bounds.West + bounds.East) / 2,
		Latitude:  (bounds.South + bounds.North) / 2,
	}

	x1, y1 := toWorld(geo.Point{Longitude: bounds.West, Latitude: bounds.North}, 0)
	x2, y2 := toWorld(geo.Point{Longitude: bounds.East, Latitude: bounds.South}, 0)
	dx, dy := math.Abs(x2-x1), math.Abs(y2-y1)

	availW := math.Max(1, width-2*paddingPx)
	availH := math.Max(1, height-2*paddingPx)

	zoom := maxZoom
	if dx > 0 || dy > 0 {
		scale := math.Inf(1)
		if dx > 0 {
			scale = availW / dx
		}
		if dy > 0 {
			scale = math.Min(scale, availH/dy)
		}
		zoom = math.Min(maxZoom, math.Log2(scale))
	}
	zoom = math.Max(0, zoom)

	// Center on the world-space midpoint so the padding is symmetric
	mid := fromWorld((x1+x2)/2, (y1+y2)/2, 0)
	center.Latitude = mid.Latitude

	return WebMercator{Center: center, Zoom: zoom, Width: width, Height: height}
}
