package viewport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
)

var telAviv = WebMercator{
	Center: geo.Point{Longitude: 34.79, Latitude: 32.09},
	Zoom:   13,
	Width:  1200,
	Height: 800,
}

func TestProject(t *testing.T) {
	c := telAviv.Project(telAviv.Center)
	assert.InDelta(t, 600, c.X, 1e-6)
	assert.InDelta(t, 400, c.Y, 1e-6)

	world := WebMercator{Center: geo.Point{}, Zoom: 0, Width: 512, Height: 512}
	edge := world.Project(geo.Point{Longitude: -180, Latitude: 0})
	assert.InDelta(t, 0, edge.X, 1e-9)
	assert.InDelta(t, 256, edge.Y, 1e-9)

	// North is up
	north := telAviv.Project(geo.Point{Longitude: 34.79, Latitude: 32.10})
	assert.Less(t, north.Y, c.Y)
}

func TestUnprojectRoundTrip(t *testing.T) {
	points := []geo.Point{
		{Longitude: 34.78, Latitude: 32.08},
		{Longitude: 34.80, Latitude: 32.10},
		{Longitude: 34.7, Latitude: 32.2},
	}
	for _, p := range points {
		back := telAviv.Unproject(telAviv.Project(p))
		assert.InDelta(t, p.Longitude, back.Longitude, 1e-9)
		assert.InDelta(t, p.Latitude, back.Latitude, 1e-9)
	}
}

func TestBounds(t *testing.T) {
	b := telAviv.Bounds()

	assert.True(t, b.Contains(telAviv.Center))
	assert.Less(t, b.West, b.East)
	assert.Less(t, b.South, b.North)
	// 1200px at zoom 13 spans 1200 / (512 * 2^13) of 360 degrees
	assert.InDelta(t, 1200.0/(512*8192)*360, b.Width(), 1e-9)
}

func TestValidate(t *testing.T) {
	require.NoError(t, telAviv.Validate())

	tests := []struct {
		name string
		view WebMercator
	}{
		{"negative zoom", WebMercator{Center: telAviv.Center, Zoom: -1, Width: 10, Height: 10}},
		{"zoom too deep", WebMercator{Center: telAviv.Center, Zoom: 30, Width: 10, Height: 10}},
		{"zero width", WebMercator{Center: telAviv.Center, Zoom: 10, Width: 0, Height: 10}},
		{"polar center", WebMercator{Center: geo.Point{Latitude: 89}, Zoom: 10, Width: 10, Height: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.view.Validate(), ErrInvalidView)
		})
	}
}

func TestFit(t *testing.T) {
	bounds := geo.BoundingBox{West: 34.78, South: 32.08, East: 34.80, North: 32.10}

	view := Fit(bounds, 1000, 700, 40, 17)

	require.NoError(t, view.Validate())
	vb := view.Bounds()
	assert.True(t, vb.Contains(geo.Point{Longitude: bounds.West, Latitude: bounds.South}))
	assert.True(t, vb.Contains(geo.Point{Longitude: bounds.East, Latitude: bounds.North}))

	// The padded edge is tight on the limiting axis
	sw := view.Project(geo.Point{Longitude: bounds.West, Latitude: bounds.South})
	ne := view.Project(geo.Point{Longitude: bounds.East, Latitude: bounds.North})
	assert.InDelta(t, 620, sw.Y-ne.Y, 1e-6)

	point := Fit(geo.BoundingBox{West: 34.78, South: 32.08, East: 34.78, North: 32.08}, 1000, 700, 40, 15)
	assert.Equal(t, 15.0, point.Zoom)
}
