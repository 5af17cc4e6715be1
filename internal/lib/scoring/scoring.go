// Package scoring rates each third of the three routes against the spatial
// categories placed on the map.
package scoring

import (
	"math"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/routing"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/segment"
)

// CommZone is a circular communication coverage area
type CommZone struct {
	Center       geo.Point `json:"center"`
	RadiusMeters float64   `json:"radius_m"`
}

// Ring returns the zone outline for rendering
func (z CommZone) Ring() geo.Polyline {
	return geo.CircleRing(z.Center, z.RadiusMeters, 64)
}

// Park is a scenic area drawn as an open ring
type Park struct {
	ID   string       `json:"id"`
	Ring geo.Polyline `json:"ring"`
}

// Categories are the synthetic spatial overlays routes are scored against
type Categories struct {
	Traffic   []geo.Polyline `json:"traffic"`
	Toll      []geo.Polyline `json:"toll"`
	CommZones []CommZone     `json:"comm_zones"`
	Parks     []Park         `json:"parks"`
}

// Config holds the sampling distances and speed model
type Config struct {
	SampleStepMeters float64 `yaml:"sample_step_meters"`
	NearLineMeters   float64 `yaml:"near_line_meters"`   // Traffic and toll proximity
	ParkBufferMeters float64 `yaml:"park_buffer_meters"` // Scenic proximity outside a park
	FreeSpeedKmh     float64 `yaml:"free_speed_kmh"`
	TrafficSpeedKmh  float64 `yaml:"traffic_speed_kmh"`
}

// DefaultConfig returns the lab's scoring model
func DefaultConfig() Config {
	return Config{
		SampleStepMeters: 60,
		NearLineMeters:   12,
		ParkBufferMeters: 20,
		FreeSpeedKmh:     30,
		TrafficSpeedKmh:  10,
	}
}

// SegmentScore rates one third of a route
type SegmentScore struct {
	Route        routing.RouteID `json:"route"`
	Segment      int             `json:"segment"` // 1..3
	LengthMeters float64         `json:"length_m"`
	TimeSeconds  float64         `json:"time_s"`
	Speed        float64         `json:"speed_score"`   // 100 free flowing .. 30 all traffic
	Economy      float64         `json:"economy_score"` // 100 toll free .. 0 all toll
	Scenic       float64         `json:"scenic_score"`  // 0 .. 100 all scenic
	Comm         float64         `json:"comm_score"`    // 30 no coverage .. 100 full coverage
	FracTraffic  float64         `json:"frac_traffic"`
	FracToll     float64         `json:"frac_toll"`
	FracScenic   float64         `json:"frac_scenic"`
	FracComm     float64         `json:"frac_comm"`
}

// RouteScore aggregates the three segment scores of a route
type RouteScore struct {
	Route             routing.RouteID `json:"route"`
	Segments          []SegmentScore  `json:"segments"`
	TotalLengthMeters float64         `json:"total_length_m"`
	TotalTimeSeconds  float64         `json:"total_time_s"`
}

// Compute scores every route in A, B, C order, partitioning each line with
// splitter so scores line up with the drawn segments. A nil splitter uses the
// default tuning. Routes with fewer than 2 points get no segments.
func Compute(routes routing.RouteSet, splitter segment.Splitter, cats Categories, cfg Config) []RouteScore {
	if cfg.SampleStepMeters <= 0 {
		cfg = DefaultConfig()
	}
	if splitter == nil {
		splitter = segment.NewSplitter(segment.DefaultConfig())
	}

	out := make([]RouteScore, 0, len(routing.RouteIDs))
	for _, id := range routing.RouteIDs {
		rs := RouteScore{Route: id, Segments: []SegmentScore{}}
		line := routes.Line(id)
		if line.Empty() {
			out = append(out, rs)
			continue
		}

		for i, part := range splitter.Parts(line, splitter.Split(line)) {
			s := ScoreSegment(id, i+1, part, cats, cfg)
			rs.Segments = append(rs.Segments, s)
			rs.TotalLengthMeters += s.LengthMeters
			rs.TotalTimeSeconds += s.TimeSeconds
		}
		out = append(out, rs)
	}
	return out
}

// ScoreSegment samples part every SampleStepMeters and classifies the midpoint
// of each sample interval
func ScoreSegment(id routing.RouteID, number int, part geo.Polyline, cats Categories, cfg Config) SegmentScore {
	samples := geo.PointsEvery(part, cfg.SampleStepMeters)
	if len(samples) > 0 && samples[len(samples)-1] != part.End() {
		samples = append(samples, part.End())
	}
	if len(samples) < 2 && len(part) > 0 {
		samples = geo.Polyline{part.Start(), part.End()}
	}

	var total, traffic, toll, comm, scenic float64
	for i := 0; i+1 < len(samples); i++ {
		a, b := samples[i], samples[i+1]
		mid := geo.Point{Longitude: (a.Longitude + b.Longitude) / 2, Latitude: (a.Latitude + b.Latitude) / 2}
		l := geo.Distance(a, b)
		total += l

		if nearAnyLine(mid, cats.Traffic, cfg.NearLineMeters) {
			traffic += l
		}
		if nearAnyLine(mid, cats.Toll, cfg.NearLineMeters) {
			toll += l
		}
		if insideAnyZone(mid, cats.CommZones) {
			comm += l
		}
		if nearAnyPark(mid, cats.Parks, cfg.ParkBufferMeters) {
			scenic += l
		}
	}

	length := total
	if length <= 0 {
		length = geo.LengthMeters(part)
	}

	s := SegmentScore{Route: id, Segment: number, LengthMeters: length}
	if total > 0 {
		s.FracTraffic = clamp01(traffic / total)
		s.FracToll = clamp01(toll / total)
		s.FracComm = clamp01(comm / total)
		s.FracScenic = clamp01(scenic / total)
	}

	trafficMeters := length * s.FracTraffic
	freeMeters := math.Max(0, length-trafficMeters)
	s.TimeSeconds = trafficMeters/kmhToMps(cfg.TrafficSpeedKmh) + freeMeters/kmhToMps(cfg.FreeSpeedKmh)

	s.Speed = 100 - 70*s.FracTraffic
	s.Economy = 100 * (1 - s.FracToll)
	s.Scenic = 100 * s.FracScenic
	s.Comm = 30 + 70*s.FracComm
	return s
}

func nearAnyLine(p geo.Point, lines []geo.Polyline, threshold float64) bool {
	for _, l := range lines {
		if geo.PointToPolylineMeters(p, l) <= threshold {
			return true
		}
	}
	return false
}

func insideAnyZone(p geo.Point, zones []CommZone) bool {
	for _, z := range zones {
		if geo.Distance(p, z.Center) <= z.RadiusMeters {
			return true
		}
	}
	return false
}

func nearAnyPark(p geo.Point, parks []Park, buffer float64) bool {
	for _, pk := range parks {
		if len(pk.Ring) < 3 {
			continue
		}
		if geo.PointInRing(p, pk.Ring) {
			return true
		}
		closed := append(pk.Ring.Clone(), pk.Ring[0])
		if geo.PointToPolylineMeters(p, closed) <= buffer {
			return true
		}
	}
	return false
}

func kmhToMps(kmh float64) float64 {
	if kmh <= 0 {
		return math.Inf(1)
	}
	return kmh * 1000 / 3600
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
