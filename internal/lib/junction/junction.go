// Package junction selects the route vertices offered to the user as edit handles.
package junction

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
)

// Junction is an editable vertex of a route
type Junction struct {
	ID                string    `json:"id"`
	Coord             geo.Point `json:"coord"`
	Index             int       `json:"index"`       // Vertex index in the source line
	OrderIndex        int       `json:"order_index"` // 1-based display label, ascending along the route
	DistanceFromStart float64   `json:"distance_from_start"`
	TurnAngleDegrees  float64   `json:"turn_angle_degrees"`
	Locked            bool      `json:"locked"` // Route endpoints; never disabled
}

// Config controls junction density
type Config struct {
	TurnThresholdDegrees float64   `yaml:"turn_threshold_degrees" json:"turn_threshold_degrees"`
	MinSpacingFraction   float64   `yaml:"min_spacing_fraction" json:"min_spacing_fraction"` // Of total route length
	MinSpacingMeters     float64   `yaml:"min_spacing_meters" json:"min_spacing_meters"`     // Floor applied on top of the fraction
	MaxJunctions         int       `yaml:"max_junctions" json:"max_junctions"`               // Including both endpoints
	MinJunctions         int       `yaml:"min_junctions" json:"min_junctions"`               // Below this, backfill kicks in
	BackfillFractions    []float64 `yaml:"backfill_fractions" json:"backfill_fractions"`
}

// DefaultConfig returns the conservative tuning: 20 degree turns, 10% spacing, 14 junctions
func DefaultConfig() Config {
	return Config{
		TurnThresholdDegrees: 20,
		MinSpacingFraction:   0.10,
		MaxJunctions:         14,
		MinJunctions:         5,
		BackfillFractions:    []float64{0.25, 0.50, 0.75},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TurnThresholdDegrees <= 0 {
		c.TurnThresholdDegrees = def.TurnThresholdDegrees
	}
	if c.MinSpacingFraction < 0 || c.MinSpacingFraction >= 1 {
		c.MinSpacingFraction = def.MinSpacingFraction
	}
	if c.MinSpacingFraction == 0 && c.MinSpacingMeters <= 0 {
		c.MinSpacingFraction = def.MinSpacingFraction
	}
	if c.MaxJunctions < 2 {
		c.MaxJunctions = def.MaxJunctions
	}
	if c.MinJunctions <= 0 {
		c.MinJunctions = def.MinJunctions
	}
	if len(c.BackfillFractions) == 0 {
		c.BackfillFractions = def.BackfillFractions
	}
	return c
}

// Build selects junctions for line. Both endpoints are always present and
// locked. Interior vertices turning at least the threshold are taken sharpest
// first while keeping the minimum arc-length spacing to every accepted junction,
// up to the cap. Nearly straight routes are backfilled with the vertices nearest
// to fixed fractions of the length. Lines with fewer than 2 points have none.
func Build(line geo.Polyline, cfg Config) []Junction {
	n := len(line)
	if n < 2 {
		return nil
	}
	cfg = cfg.withDefaults()

	cum := geo.CumulativeDistances(line)
	total := cum[n-1]
	ang := geo.TurnAngles(line)
	spacing := math.Max(total*cfg.MinSpacingFraction, cfg.MinSpacingMeters)

	chosen := []int{0, n - 1}

	var candidates []int
	for i := 1; i < n-1; i++ {
		if ang[i] >= cfg.TurnThresholdDegrees {
			candidates = append(candidates, i)
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return ang[candidates[a]] > ang[candidates[b]]
	})

	for _, i := range candidates {
		if len(chosen) >= cfg.MaxJunctions {
			break
		}
		tooClose := false
		for _, j := range chosen {
			if math.Abs(cum[i]-cum[j]) < spacing {
				tooClose = true
				break
			}
		}
		if !tooClose {
			chosen = append(chosen, i)
		}
	}

	if len(chosen) < cfg.MinJunctions && n > 2 {
		for _, f := range cfg.BackfillFractions {
			if len(chosen) >= cfg.MaxJunctions {
				break
			}
			best := geo.NearestInteriorIndex(cum, total*f)
			if !slices.Contains(chosen, best) {
				chosen = append(chosen, best)
			}
		}
	}

	sort.Ints(chosen)

	out := make([]Junction, len(chosen))
	for k, i := range chosen {
		out[k] = Junction{
			ID:                fmt.Sprintf("J%d_%d", k+1, i),
			Coord:             line[i],
			Index:             i,
			OrderIndex:        k + 1,
			DistanceFromStart: cum[i],
			TurnAngleDegrees:  ang[i],
			Locked:            i == 0 || i == n-1,
		}
	}
	return out
}

// Find returns the junction with the given id
func Find(junctions []Junction, id string) (Junction, bool) {
	for _, j := range junctions {
		if j.ID == id {
			return j, true
		}
	}
	return Junction{}, false
}

// Waypoints returns the route start, every enabled unlocked junction, and the
// route end, in ascending distance order
func Waypoints(base geo.Polyline, junctions []Junction, disabled map[string]bool) geo.Polyline {
	if base.Empty() {
		return nil
	}
	pts := geo.Polyline{base.Start()}
	for _, j := range junctions {
		if j.Locked || disabled[j.ID] {
			continue
		}
		pts = append(pts, j.Coord)
	}
	return append(pts, base.End())
}
