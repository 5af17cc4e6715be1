package segment

import (
	"math"
	"sort"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
)

// splitter implements the Splitter interface
type splitter struct {
	cfg Config
}

// NewSplitter creates a Splitter with the given tuning. Zero or out of range
// values fall back to DefaultConfig.
func NewSplitter(cfg Config) Splitter {
	def := DefaultConfig()
	if cfg.MinFraction <= 0 || cfg.MinFraction >= 1.0/3 {
		cfg.MinFraction = def.MinFraction
	}
	if cfg.MaxFraction <= 1.0/3 || cfg.MaxFraction >= 1 {
		cfg.MaxFraction = def.MaxFraction
	}
	if cfg.TurnThresholdDegrees <= 0 {
		cfg.TurnThresholdDegrees = def.TurnThresholdDegrees
	}
	if cfg.TopTurns <= 0 {
		cfg.TopTurns = def.TopTurns
	}
	if cfg.MaxCandidates < 2 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if cfg.ClosenessWeight <= 0 {
		cfg.ClosenessWeight = def.ClosenessWeight
	}
	if cfg.BalanceWeight <= 0 {
		cfg.BalanceWeight = def.BalanceWeight
	}
	if cfg.TickLengthMeters <= 0 {
		cfg.TickLengthMeters = def.TickLengthMeters
	}
	return &splitter{cfg: cfg}
}

var defaultSplitter = NewSplitter(DefaultConfig())

// SplitIntoThree splits line with the default tuning
func SplitIntoThree(line geo.Polyline) Split {
	return defaultSplitter.Split(line)
}

// SplitLine returns the three parts of line under the default tuning
func SplitLine(line geo.Polyline) [3]geo.Polyline {
	return defaultSplitter.Parts(line, defaultSplitter.Split(line))
}

// Split picks two split indices. Candidates are the sharpest turns plus the
// vertices nearest to the one-third and two-third distances; every candidate
// pair whose parts all fall inside the length band is scored and the first
// best pair wins.
func (s *splitter) Split(line geo.Polyline) Split {
	n := len(line)
	if n < 4 {
		return shortLineSplit(n)
	}

	cum := geo.CumulativeDistances(line)
	total := cum[n-1]
	if total <= 0 {
		total = 1
	}

	d1 := total / 3
	d2 := 2 * total / 3
	minLen := total * s.cfg.MinFraction
	maxLen := total * s.cfg.MaxFraction

	ang := geo.TurnAngles(line)
	near1 := geo.NearestInteriorIndex(cum, d1)
	near2 := geo.NearestInteriorIndex(cum, d2)
	pool := s.candidatePool(ang, near1, near2)

	score := func(i1, i2 int) (float64, bool) {
		l1 := cum[i1]
		l2 := cum[i2] - cum[i1]
		l3 := total - cum[i2]

		if l1 < minLen || l2 < minLen || l3 < minLen {
			return 0, false
		}
		if l1 > maxLen || l2 > maxLen || l3 > maxLen {
			return 0, false
		}

		turn := ang[i1] + ang[i2]
		closeness := (1 - math.Abs(cum[i1]-d1)/total) + (1 - math.Abs(cum[i2]-d2)/total)
		balance := 1 - (math.Max(l1, math.Max(l2, l3))-math.Min(l1, math.Min(l2, l3)))/total

		return turn + closeness*s.cfg.ClosenessWeight + balance*s.cfg.BalanceWeight, true
	}

	best := Split{}
	bestScore := math.Inf(-1)
	found := false

	for a := 0; a < len(pool); a++ {
		for b := a + 1; b < len(pool); b++ {
			i1, i2 := pool[a], pool[b]
			if i2 < i1 {
				i1, i2 = i2, i1
			}
			sc, ok := score(i1, i2)
			if !ok {
				continue
			}
			if !found || sc > bestScore {
				best = Split{I1: i1, I2: i2}
				bestScore = sc
				found = true
			}
		}
	}
	if found {
		return best
	}

	return nudgeSplit(cum, total, minLen, near1, near2)
}

// candidatePool returns the deduplicated candidate indices in priority order
func (s *splitter) candidatePool(ang []float64, near1, near2 int) []int {
	n := len(ang)

	var turning []int
	for i := 1; i < n-1; i++ {
		if ang[i] >= s.cfg.TurnThresholdDegrees {
			turning = append(turning, i)
		}
	}
	sort.SliceStable(turning, func(a, b int) bool {
		return ang[turning[a]] > ang[turning[b]]
	})
	if len(turning) > s.cfg.TopTurns {
		turning = turning[:s.cfg.TopTurns]
	}

	seen := make(map[int]bool, len(turning)+2)
	pool := make([]int, 0, len(turning)+2)
	for _, i := range append(turning, near1, near2) {
		if seen[i] || i < 1 || i > n-2 {
			continue
		}
		seen[i] = true
		pool = append(pool, i)
	}
	if len(pool) > s.cfg.MaxCandidates {
		pool = pool[:s.cfg.MaxCandidates]
	}
	return pool
}

// nudgeSplit moves the nearest-to-target indices until the outer parts reach
// the minimum length, keeping 0 < i1 < i2 < n-1
func nudgeSplit(cum []float64, total, minLen float64, i1, i2 int) Split {
	n := len(cum)
	if i2 <= i1 {
		i2 = min(n-2, i1+1)
	}

	forward := func(idx int, target float64) int {
		for idx < n-2 && cum[idx] < target {
			idx++
		}
		return min(n-2, idx)
	}
	backward := func(idx int, target float64) int {
		for idx > 1 && cum[idx] > target {
			idx--
		}
		return max(1, idx)
	}

	if cum[i1] < minLen {
		i1 = forward(i1, minLen)
	}
	if cum[i2]-cum[i1] < minLen {
		i2 = forward(i2, cum[i1]+minLen)
	}
	if total-cum[i2] < minLen {
		i2 = backward(i2, total-minLen)
	}

	if i2 <= i1 {
		if i1 < n-2 {
			i2 = i1 + 1
		} else {
			i1, i2 = n-3, n-2
		}
	}
	return Split{I1: i1, I2: i2}
}

// shortLineSplit handles lines with fewer than 4 points, which have no room
// for two distinct interior split vertices
func shortLineSplit(n int) Split {
	if n <= 1 {
		return Split{Degenerate: true}
	}
	i1 := min(max(1, n/3), n-1)
	i2 := min(max(i1+1, 2*n/3), n-1)
	return Split{I1: i1, I2: i2, Degenerate: true}
}

// usable reports whether split indexes real interior vertices of an n-point line
func usable(split Split, n int) bool {
	return !split.Degenerate && n >= 4 && split.I1 > 0 && split.I1 < split.I2 && split.I2 < n-1
}

// Display derives part midpoints and boundary ticks. Degenerate splits are
// drawn at the arc-length thirds.
func (s *splitter) Display(line geo.Polyline, split Split) Display {
	var out Display
	if line.Empty() {
		return out
	}

	cum := geo.CumulativeDistances(line)
	total := cum[len(cum)-1]
	half := s.cfg.TickLengthMeters / 2

	var d1, d2 float64
	if usable(split, len(line)) {
		d1, d2 = cum[split.I1], cum[split.I2]
		out.Ticks[0] = tickAt(line[split.I1], line[split.I1-1], line[split.I1+1], half)
		out.Ticks[1] = tickAt(line[split.I2], line[split.I2-1], line[split.I2+1], half)
	} else {
		d1, d2 = total/3, 2*total/3
		for k, d := range []float64{d1, d2} {
			prev, next := bracket(line, cum, d)
			out.Ticks[k] = tickAt(geo.PointAtDistance(line, cum, d), prev, next, half)
		}
	}

	out.Midpoints[0] = geo.PointAtDistance(line, cum, d1/2)
	out.Midpoints[1] = geo.PointAtDistance(line, cum, (d1+d2)/2)
	out.Midpoints[2] = geo.PointAtDistance(line, cum, (d2+total)/2)
	return out
}

// Parts returns the three sub-lines. Adjacent parts share their boundary point.
func (s *splitter) Parts(line geo.Polyline, split Split) [3]geo.Polyline {
	var parts [3]geo.Polyline
	if line.Empty() {
		return parts
	}

	if usable(split, len(line)) {
		parts[0] = line[:split.I1+1].Clone()
		parts[1] = line[split.I1 : split.I2+1].Clone()
		parts[2] = line[split.I2:].Clone()
		return parts
	}

	total := geo.LengthMeters(line)
	parts[0] = geo.SubLineBetween(line, 0, total/3)
	parts[1] = geo.SubLineBetween(line, total/3, 2*total/3)
	parts[2] = geo.SubLineBetween(line, 2*total/3, total)
	return parts
}

// tickAt builds a mark of length 2*half centered on p, perpendicular to prev->next
func tickAt(p, prev, next geo.Point, half float64) Tick {
	ux, uy := geo.LocalDirUnitMeters(prev, next)
	px, py := -uy, ux
	return Tick{
		geo.OffsetMeters(p, px*half, py*half),
		geo.OffsetMeters(p, -px*half, -py*half),
	}
}

// bracket returns the vertices of the edge containing arc length d
func bracket(line geo.Polyline, cum []float64, d float64) (geo.Point, geo.Point) {
	i := 1
	for i < len(line)-1 && cum[i] < d {
		i++
	}
	return line[i-1], line[i]
}
