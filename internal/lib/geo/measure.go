package geo

import (
	"fmt"
	"math"
)

// SubLineBetween returns the part of line between arc lengths d0 and d1 (meters), with
// interpolated end points. Distances are clamped and may be given in either order.
func SubLineBetween(line Polyline, d0, d1 float64) Polyline {
	if len(line) < 2 {
		return line.Clone()
	}
	cum := CumulativeDistances(line)
	total := cum[len(cum)-1]

	a := math.Max(0, math.Min(total, math.Min(d0, d1)))
	b := math.Max(0, math.Min(total, math.Max(d0, d1)))

	pts := Polyline{PointAtDistance(line, cum, a)}
	for i := range cum {
		if cum[i] > a && cum[i] < b {
			pts = append(pts, line[i])
		}
	}
	return append(pts, PointAtDistance(line, cum, b))
}

// PointsEvery samples line every stepMeters starting at the first point
func PointsEvery(line Polyline, stepMeters float64) Polyline {
	if len(line) < 2 || stepMeters <= 0 {
		return nil
	}
	cum := CumulativeDistances(line)
	total := cum[len(cum)-1]
	if total <= 0 {
		return nil
	}

	var pts Polyline
	for d := 0.0; d <= total; d += stepMeters {
		pts = append(pts, PointAtDistance(line, cum, d))
	}
	return pts
}

// CircleRing approximates a circle of radiusMeters around center with steps+1 points (closed ring)
func CircleRing(center Point, radiusMeters float64, steps int) Polyline {
	if steps < 3 {
		steps = 64
	}
	mx := MetersPerDegreeLongitude(center.Latitude)
	if mx == 0 {
		mx = 1
	}
	my := MetersPerDegreeLatitude

	ring := make(Polyline, 0, steps+1)
	for i := 0; i <= steps; i++ {
		a := float64(i) / float64(steps) * math.Pi * 2
		ring = append(ring, Point{
			Longitude: center.Longitude + math.Cos(a)*radiusMeters/mx,
			Latitude:  center.Latitude + math.Sin(a)*radiusMeters/my,
		})
	}
	return ring
}

// PointToSegmentMeters returns the distance from p to segment ab using a local
// equirectangular frame centered on the three points
func PointToSegmentMeters(p, a, b Point) float64 {
	lat := (p.Latitude + a.Latitude + b.Latitude) / 3
	mx := MetersPerDegreeLongitude(lat)
	my := MetersPerDegreeLatitude

	bx := (b.Longitude - a.Longitude) * mx
	by := (b.Latitude - a.Latitude) * my
	px := (p.Longitude - a.Longitude) * mx
	py := (p.Latitude - a.Latitude) * my

	bb := bx*bx + by*by
	if bb <= 1e-9 {
		return math.Hypot(px, py)
	}

	t := math.Max(0, math.Min(1, (px*bx+py*by)/bb))
	return math.Hypot(px-t*bx, py-t*by)
}

// PointToPolylineMeters returns the minimum distance from p to any segment of line.
// Lines with fewer than 2 points are infinitely far away.
func PointToPolylineMeters(p Point, line Polyline) float64 {
	if len(line) < 2 {
		return math.Inf(1)
	}
	best := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		d := PointToSegmentMeters(p, line[i], line[i+1])
		if d < best {
			best = d
		}
		if best <= 0.5 {
			return best
		}
	}
	return best
}

// PointInRing tests p against a polygon ring by ray casting in degree space (small areas only)
func PointInRing(p Point, ring Polyline) bool {
	inside := false
	x, y := p.Longitude, p.Latitude
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		xi, yi := ring[i].Longitude, ring[i].Latitude
		xj, yj := ring[j].Longitude, ring[j].Latitude
		intersect := (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi+1e-12)+xi
		if intersect {
			inside = !inside
		}
	}
	return inside
}

// FormatDistance renders meters for display: "850 m" below a kilometre, "1.25 km" above
func FormatDistance(meters float64) string {
	if math.IsNaN(meters) || math.IsInf(meters, 0) {
		return "—"
	}
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.2f km", meters/1000)
}
