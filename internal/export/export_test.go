package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/badge"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/junction"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/routing"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/scoring"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/segment"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/viewport"
)

var (
	start = geo.Point{Longitude: 34.78, Latitude: 32.08}
	end   = geo.Point{Longitude: 34.80, Latitude: 32.10}
)

func testScenario() Scenario {
	s := Scenario{
		Version:   PayloadVersion,
		Name:      "Tel Aviv pilot",
		VizType:   VizBars,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		View:      viewport.WebMercator{Center: geo.Point{Longitude: 34.79, Latitude: 32.09}, Zoom: 13, Width: 1000, Height: 700},
		Start:     start,
		End:       end,
		Selected:  routing.RouteA,
		Styles:    DefaultStyles(),
		Categories: scoring.Categories{
			Traffic:   []geo.Polyline{{start, end}},
			CommZones: []scoring.CommZone{{Center: end, RadiusMeters: 250}},
			Parks:     []scoring.Park{{ID: "p1", Ring: geo.Polyline{start, {Longitude: 34.781, Latitude: 32.08}, {Longitude: 34.781, Latitude: 32.081}}}},
		},
	}

	for i, id := range routing.RouteIDs {
		line := geo.Polyline{start}
		for k := 1; k <= 6; k++ {
			line = append(line, geo.Point{
				Longitude: start.Longitude + float64(k)*0.003,
				Latitude:  start.Latitude + float64(k)*0.003 + float64(i)*0.001*float64(k%2),
			})
		}
		split := segment.SplitIntoThree(line)
		s.Routes = append(s.Routes, RouteData{
			ID:       id,
			Line:     line,
			Encoded:  geo.EncodePolyline(line),
			Status:   routing.StatusSnapped,
			Split:    split,
			Segments: segment.NewSplitter(segment.DefaultConfig()).Display(line, split),
			Length:   geo.LengthMeters(line),
			Badge:    badge.Badge{RouteID: id, Label: badge.Labels[id], Coord: line[3]},
			Anchor:   badge.Anchor{RouteID: id, Coord: line[3]},
			Link:     badge.Connector{RouteID: id, From: line[3], To: line[3]},
		})
	}
	s.Junctions = junction.Build(s.Routes[0].Line, junction.DefaultConfig())
	s.Disabled = []string{s.Junctions[1].ID}
	return s
}

func TestValidate(t *testing.T) {
	require.NoError(t, testScenario().Validate())

	tests := []struct {
		name   string
		mutate func(s *Scenario)
	}{
		{"no routes", func(s *Scenario) { s.Routes = nil }},
		{"bad view", func(s *Scenario) { s.View.Width = 0 }},
		{"unknown route", func(s *Scenario) { s.Routes[0].ID = "Z" }},
		{"duplicate route", func(s *Scenario) { s.Routes[1].ID = routing.RouteA }},
		{"empty line", func(s *Scenario) { s.Routes[2].Line = geo.Polyline{start} }},
		{"bad coordinates", func(s *Scenario) { s.Routes[2].Line[1].Latitude = 200 }},
		{"unknown viz", func(s *Scenario) { s.VizType = "pie" }},
		{"recommended route missing", func(s *Scenario) {
			s.Routes = s.Routes[:1]
			s.RecommendedRoute = routing.RouteC
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testScenario()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidScenario)
		})
	}
}

func TestScenarioJSON(t *testing.T) {
	data, err := json.Marshal(testScenario())
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "Tel Aviv pilot", raw["scenario_name"])
	assert.Equal(t, "bars", raw["viz_type"])
	assert.Contains(t, raw, "map_view")
	assert.Contains(t, raw, "colors")
	assert.Len(t, raw["routes"], 3)
}

func TestGeoJSON(t *testing.T) {
	s := testScenario()
	fc := GeoJSON(s)

	counts := map[string]int{}
	for _, f := range fc.Features {
		counts[f.Properties.MustString("layer")]++
	}

	assert.Equal(t, 1, counts["route-a"])
	assert.Equal(t, 1, counts["route-b"])
	assert.Equal(t, 1, counts["route-c"])
	assert.Equal(t, 3, counts[LayerBadges])
	assert.Equal(t, 3, counts[LayerConnectors])
	assert.Equal(t, 3, counts[LayerSegPoints], "segment points only for the selected route")
	assert.Equal(t, 2, counts[LayerSegTicks])
	assert.Equal(t, len(s.Junctions), counts[LayerJunctions])
	assert.Equal(t, 2, counts[LayerEndpoints])
	assert.Equal(t, 1, counts[LayerTraffic])
	assert.Equal(t, 1, counts[LayerComm])
	assert.Equal(t, 1, counts[LayerParks])

	disabled := 0
	for _, f := range fc.Features {
		if f.Properties.MustString("layer") == LayerJunctions && f.Properties.MustBool("disabled") {
			disabled++
		}
	}
	assert.Equal(t, 1, disabled)

	_, err := fc.MarshalJSON()
	require.NoError(t, err)
}

func TestWriteKML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteKML(&buf, testScenario()))

	out := buf.String()
	assert.Contains(t, out, "<kml")
	assert.Contains(t, out, "<name>Tel Aviv pilot</name>")
	assert.Contains(t, out, "<name>Route A</name>")
	assert.Contains(t, out, "<styleUrl>#route-selected</styleUrl>")
	assert.Contains(t, out, "<name>Split 2</name>")
	assert.Contains(t, out, "(disabled)")
	assert.Equal(t, 3+2+1, strings.Count(out, "<LineString>"), "three routes, two ticks, one traffic line")
}

func TestSafeFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "scenario"},
		{"   ", "scenario"},
		{"Tel Aviv pilot", "Tel_Aviv_pilot"},
		{`a/b\c:d*e?f"g<h>i|j`, "a-b-c-d-e-f-g-h-i-j"},
		{"route  A  //  final", "route_A_-_final"},
		{strings.Repeat("x", 100), strings.Repeat("x", 80)},
		{"תרחיש ניסוי", "תרחיש_ניסוי"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeFileName(tt.in), "input %q", tt.in)
	}
}

func TestParseHexColor(t *testing.T) {
	c := parseHexColor("#1E4ED8", 1)
	assert.Equal(t, uint8(0x1E), c.R)
	assert.Equal(t, uint8(0x4E), c.G)
	assert.Equal(t, uint8(0xD8), c.B)
	assert.Equal(t, uint8(255), c.A)

	assert.Equal(t, uint8(0), parseHexColor("nope", 1).R)
}
