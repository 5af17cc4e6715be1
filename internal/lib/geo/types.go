package geo

import "github.com/paulmach/orb"

// Point represents a geographic coordinate in degrees
type Point struct {
	Longitude float64 `json:"lng" yaml:"lng"`
	Latitude  float64 `json:"lat" yaml:"lat"`
}

// Polyline is an ordered path of points. Index 0 is the start, the last index is the end.
// Lines with fewer than 2 points are treated as empty by every algorithm in this module.
type Polyline []Point

// BoundingBox is a geographic rectangle in degrees
type BoundingBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Empty reports whether the line is too short to describe a path
func (l Polyline) Empty() bool {
	return len(l) < 2
}

// Clone returns a copy that does not share storage with l
func (l Polyline) Clone() Polyline {
	if l == nil {
		return nil
	}
	out := make(Polyline, len(l))
	copy(out, l)
	return out
}

// Start returns the first point, or the zero point for an empty line
func (l Polyline) Start() Point {
	if len(l) == 0 {
		return Point{}
	}
	return l[0]
}

// End returns the last point, or the zero point for an empty line
func (l Polyline) End() Point {
	if len(l) == 0 {
		return Point{}
	}
	return l[len(l)-1]
}

// Equal reports whether both lines hold exactly the same points
func (l Polyline) Equal(other Polyline) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i] != other[i] {
			return false
		}
	}
	return true
}

// OrbPoint converts to an orb point (lng, lat order)
func (p Point) OrbPoint() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// LineString converts the polyline to an orb line string
func (l Polyline) LineString() orb.LineString {
	ls := make(orb.LineString, len(l))
	for i, p := range l {
		ls[i] = p.OrbPoint()
	}
	return ls
}

// FromLineString converts an orb line string back to a polyline
func FromLineString(ls orb.LineString) Polyline {
	out := make(Polyline, len(ls))
	for i, p := range ls {
		out[i] = Point{Longitude: p[0], Latitude: p[1]}
	}
	return out
}

// Width returns the longitudinal extent in degrees
func (b BoundingBox) Width() float64 {
	if b.East > b.West {
		return b.East - b.West
	}
	return b.West - b.East
}

// Height returns the latitudinal extent in degrees
func (b BoundingBox) Height() float64 {
	if b.North > b.South {
		return b.North - b.South
	}
	return b.South - b.North
}

// Contains reports whether p lies inside the box (edges inclusive)
func (b BoundingBox) Contains(p Point) bool {
	return p.Longitude >= b.West && p.Longitude <= b.East &&
		p.Latitude >= b.South && p.Latitude <= b.North
}

// Expand grows the box by padRatio of its size on every side
func (b BoundingBox) Expand(padRatio float64) BoundingBox {
	w := b.East - b.West
	h := b.North - b.South
	return BoundingBox{
		West:  b.West - w*padRatio,
		East:  b.East + w*padRatio,
		South: b.South - h*padRatio,
		North: b.North + h*padRatio,
	}
}

// Clamp moves p inside the box shrunk inward by padRatio of its size
func (b BoundingBox) Clamp(p Point, padRatio float64) Point {
	padLng := (b.East - b.West) * padRatio
	padLat := (b.North - b.South) * padRatio
	lng := minf(b.East-padLng, maxf(b.West+padLng, p.Longitude))
	lat := minf(b.North-padLat, maxf(b.South+padLat, p.Latitude))
	return Point{Longitude: lng, Latitude: lat}
}

// BoundsOf returns the bounding box of all points in the given lines.
// The second result is false when there are no points at all.
func BoundsOf(lines ...Polyline) (BoundingBox, bool) {
	var all orb.MultiPoint
	for _, l := range lines {
		for _, p := range l {
			all = append(all, p.OrbPoint())
		}
	}
	if len(all) == 0 {
		return BoundingBox{}, false
	}
	bound := all.Bound()
	return BoundingBox{
		West:  bound.Min[0],
		South: bound.Min[1],
		East:  bound.Max[0],
		North: bound.Max[1],
	}, true
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
