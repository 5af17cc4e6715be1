package geo

import "fmt"

// DefaultMaxRoutingPoints is the waypoint cap used when sending edited routes to the router
const DefaultMaxRoutingPoints = 10

// SimplifyForRouting reduces a waypoint list to at most maxPoints. It keeps the first point,
// then every point whose cumulative distance has advanced by total/(maxPoints-1) since the last
// kept one, and always the last point. Interior coordinates equal at 6 decimals are dropped after
// their first occurrence.
func SimplifyForRouting(line Polyline, maxPoints int) Polyline {
	if maxPoints < 2 {
		maxPoints = 2
	}
	if len(line) <= maxPoints {
		return dedupeRounded(line)
	}

	cum := CumulativeDistances(line)
	total := cum[len(cum)-1]
	if total <= 0 {
		return dedupeRounded(Polyline{line[0], line[len(line)-1]})
	}

	step := total / float64(maxPoints-1)
	keep := Polyline{line[0]}
	next := step

	for i := 1; i < len(line)-1; i++ {
		if len(keep) >= maxPoints-1 {
			break
		}
		if cum[i] >= next {
			keep = append(keep, line[i])
			next += step
		}
	}
	keep = append(keep, line[len(line)-1])

	return dedupeRounded(keep)
}

// dedupeRounded drops interior points equal at 6 decimals to an earlier
// point. The first and last points are always kept, so a round trip still
// ends where it started.
func dedupeRounded(line Polyline) Polyline {
	if len(line) < 2 {
		return line.Clone()
	}
	seen := make(map[string]struct{}, len(line))
	out := make(Polyline, 0, len(line))
	for _, p := range line[:len(line)-1] {
		key := fmt.Sprintf("%.6f,%.6f", p.Longitude, p.Latitude)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return append(out, line[len(line)-1])
}
