package segment

import "github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"

// Config tunes the three-way split heuristic and its display data
type Config struct {
	MinFraction          float64 `yaml:"min_fraction" json:"min_fraction"`                     // Shortest allowed part, as a fraction of total length
	MaxFraction          float64 `yaml:"max_fraction" json:"max_fraction"`                     // Longest allowed part, as a fraction of total length
	TurnThresholdDegrees float64 `yaml:"turn_threshold_degrees" json:"turn_threshold_degrees"` // Vertices turning less than this are not turn candidates
	TopTurns             int     `yaml:"top_turns" json:"top_turns"`
	MaxCandidates        int     `yaml:"max_candidates" json:"max_candidates"`
	ClosenessWeight      float64 `yaml:"closeness_weight" json:"closeness_weight"`
	BalanceWeight        float64 `yaml:"balance_weight" json:"balance_weight"`
	TickLengthMeters     float64 `yaml:"tick_length_meters" json:"tick_length_meters"`
}

// DefaultConfig returns the tuning used by the lab UI
func DefaultConfig() Config {
	return Config{
		MinFraction:          0.18,
		MaxFraction:          0.48,
		TurnThresholdDegrees: 12,
		TopTurns:             24,
		MaxCandidates:        30,
		ClosenessWeight:      60,
		BalanceWeight:        80,
		TickLengthMeters:     40,
	}
}

// Split holds two vertex indices partitioning a line into three parts.
// For lines with at least 4 points 0 < I1 < I2 < n-1 holds. Shorter lines
// get clamped indices and Degenerate set; their display data and parts are
// then derived from arc-length thirds instead of the indices.
type Split struct {
	I1         int  `json:"i1"`
	I2         int  `json:"i2"`
	Degenerate bool `json:"degenerate,omitempty"`
}

// Tick is a short boundary mark drawn across the route at a split point
type Tick [2]geo.Point

// Display is the data a renderer needs to draw the three parts of a route
type Display struct {
	Midpoints [3]geo.Point `json:"midpoints"` // Arc-length midpoint of each part, labelled 1..3
	Ticks     [2]Tick      `json:"ticks"`     // Perpendicular marks at I1 and I2
}

// Splitter chooses and describes three-way route partitions
type Splitter interface {
	// Split picks the two split indices for line
	Split(line geo.Polyline) Split

	// Display derives part midpoints and boundary ticks for a split of line
	Display(line geo.Polyline, split Split) Display

	// Parts returns the three sub-lines of line, sharing their boundary points
	Parts(line geo.Polyline, split Split) [3]geo.Polyline
}

// NewSplitter is implemented in splitter.go
