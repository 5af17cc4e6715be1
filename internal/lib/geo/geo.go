package geo

import (
	"errors"
	"fmt"
	"math"
)

const (
	// EarthRadiusMeters is the sphere radius used for great-circle distances
	EarthRadiusMeters = 6371000

	// MetersPerDegreeLatitude is constant in the local equirectangular approximation
	MetersPerDegreeLatitude = 111132.92

	// metersPerDegreeLngEquator is scaled by cos(latitude) for longitude
	metersPerDegreeLngEquator = 111412.84
)

// Distance calculates great-circle distance between two points using Haversine formula
func Distance(p1, p2 Point) float64 {
	// If points are the same, distance is 0
	if p1 == p2 {
		return 0
	}

	lat1 := p1.Latitude * math.Pi / 180
	lon1 := p1.Longitude * math.Pi / 180
	lat2 := p2.Latitude * math.Pi / 180
	lon2 := p2.Longitude * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// CumulativeDistances returns cum where cum[0] = 0 and cum[i] is the arc length up to line[i]
func CumulativeDistances(line Polyline) []float64 {
	cum := make([]float64, len(line))
	for i := 1; i < len(line); i++ {
		cum[i] = cum[i-1] + Distance(line[i-1], line[i])
	}
	return cum
}

// LengthMeters returns the total arc length of the line
func LengthMeters(line Polyline) float64 {
	var sum float64
	for i := 1; i < len(line); i++ {
		sum += Distance(line[i-1], line[i])
	}
	return sum
}

// PointAtDistance returns the point at arc length dist along line, interpolating linearly
// between the bracketing vertices. dist is clamped to [0, total]. An empty line yields (0,0).
func PointAtDistance(line Polyline, cum []float64, dist float64) Point {
	n := len(line)
	if n == 0 {
		return Point{}
	}
	if dist <= 0 {
		return line[0]
	}
	total := cum[len(cum)-1]
	if dist >= total {
		return line[n-1]
	}

	i := 1
	for i < n && cum[i] < dist {
		i++
	}
	i0 := i - 1
	i1 := i
	if i1 > n-1 {
		i1 = n - 1
	}

	d0 := cum[i0]
	d1 := cum[i1]
	t := 0.0
	if d1 != d0 {
		t = (dist - d0) / (d1 - d0)
	}

	p0 := line[i0]
	p1 := line[i1]
	return Point{
		Longitude: p0.Longitude + (p1.Longitude-p0.Longitude)*t,
		Latitude:  p0.Latitude + (p1.Latitude-p0.Latitude)*t,
	}
}

// MetersPerDegreeLongitude returns the local east-west scale at the given latitude
func MetersPerDegreeLongitude(latitude float64) float64 {
	return metersPerDegreeLngEquator * math.Cos(latitude*math.Pi/180)
}

// TurnAngles returns, for every interior vertex, the angle in degrees between the incoming and
// outgoing direction (0 = straight, 180 = full reversal). Endpoints get 0.
func TurnAngles(line Polyline) []float64 {
	n := len(line)
	ang := make([]float64, n)

	for i := 1; i < n-1; i++ {
		a, b, c := line[i-1], line[i], line[i+1]

		mx := MetersPerDegreeLongitude(b.Latitude)
		my := MetersPerDegreeLatitude

		v1x := (b.Longitude - a.Longitude) * mx
		v1y := (b.Latitude - a.Latitude) * my
		v2x := (c.Longitude - b.Longitude) * mx
		v2y := (c.Latitude - b.Latitude) * my

		n1 := math.Hypot(v1x, v1y)
		if n1 == 0 {
			n1 = 1
		}
		n2 := math.Hypot(v2x, v2y)
		if n2 == 0 {
			n2 = 1
		}

		dot := (v1x/n1)*(v2x/n2) + (v1y/n1)*(v2y/n2)
		dot = math.Max(-1, math.Min(1, dot))
		ang[i] = math.Acos(dot) * 180 / math.Pi
	}
	return ang
}

// LocalDirUnitMeters returns the unit tangent from a to b in a local metric frame
// (x east, y north). Valid at city scale only.
func LocalDirUnitMeters(a, b Point) (ux, uy float64) {
	mx := MetersPerDegreeLongitude((a.Latitude + b.Latitude) / 2)
	my := MetersPerDegreeLatitude
	dx := (b.Longitude - a.Longitude) * mx
	dy := (b.Latitude - a.Latitude) * my
	length := math.Hypot(dx, dy)
	if length == 0 {
		length = 1
	}
	return dx / length, dy / length
}

// OffsetMeters moves p by dx meters east and dy meters north
func OffsetMeters(p Point, dxMeters, dyMeters float64) Point {
	dLat := dyMeters / MetersPerDegreeLatitude
	mx := MetersPerDegreeLongitude(p.Latitude)
	if mx == 0 {
		mx = 1
	}
	return Point{
		Longitude: p.Longitude + dxMeters/mx,
		Latitude:  p.Latitude + dLat,
	}
}

// MidpointByIndex returns the vertex at index n/2. It is an index midpoint, not an arc-length one.
func MidpointByIndex(line Polyline) Point {
	if len(line) == 0 {
		return Point{}
	}
	return line[len(line)/2]
}

// NearestInteriorIndex returns the interior index (1..n-2) whose cumulative distance is closest
// to target. Lines without interior vertices return 1.
func NearestInteriorIndex(cum []float64, target float64) int {
	best := 1
	bestErr := math.Inf(1)
	for i := 1; i < len(cum)-1; i++ {
		err := math.Abs(cum[i] - target)
		if err < bestErr {
			bestErr = err
			best = i
		}
	}
	return best
}

// Coordinate Conversion Utilities

// NewPoint creates a Point from longitude and latitude values with validation
func NewPoint(longitude, latitude float64) (Point, error) {
	point := Point{Longitude: longitude, Latitude: latitude}
	if !point.Valid() {
		return Point{}, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}
	return point, nil
}

// Valid reports whether latitude and longitude are within range and finite
func (p Point) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// Validate checks every point of the line
func (l Polyline) Validate() error {
	for i, p := range l {
		if !p.Valid() {
			return fmt.Errorf("invalid coordinates at index %d", i)
		}
	}
	return nil
}
