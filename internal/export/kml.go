package export

import (
	"fmt"
	"image/color"
	"io"
	"strconv"
	"strings"

	"github.com/twpayne/go-kml"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
)

// WriteKML writes the routes, split ticks, junctions and badges as a KML document
func WriteKML(w io.Writer, s Scenario) error {
	styles := s.Styles
	if len(styles) == 0 {
		styles = DefaultStyles()
	}

	doc := []kml.Element{
		kml.Name(s.Name),
		lineStyle("route", styles["route"]),
		lineStyle("route-selected", styles["route-selected"]),
		lineStyle("ticks", styles["ticks"]),
		lineStyle("traffic", styles["traffic"]),
		lineStyle("toll", styles["toll"]),
	}

	for _, r := range s.Routes {
		style := "#route"
		if r.ID == s.Selected {
			style = "#route-selected"
		}
		doc = append(doc, kml.Placemark(
			kml.Name(fmt.Sprintf("Route %s", r.ID)),
			kml.Description(fmt.Sprintf("%s, %s", geo.FormatDistance(r.Length), r.Status)),
			kml.StyleURL(style),
			kml.LineString(coordinates(r.Line)...),
		))
		doc = append(doc, kml.Placemark(
			kml.Name(r.Badge.Label),
			kml.Point(coordinates(geo.Polyline{r.Badge.Coord})...),
		))

		if r.ID != s.Selected {
			continue
		}
		for i, tick := range r.Segments.Ticks {
			doc = append(doc, kml.Placemark(
				kml.Name(fmt.Sprintf("Split %d", i+1)),
				kml.StyleURL("#ticks"),
				kml.LineString(coordinates(geo.Polyline{tick[0], tick[1]})...),
			))
		}
	}

	disabled := make(map[string]bool, len(s.Disabled))
	for _, id := range s.Disabled {
		disabled[id] = true
	}
	for _, j := range s.Junctions {
		name := strconv.Itoa(j.OrderIndex)
		if disabled[j.ID] {
			name += " (disabled)"
		}
		doc = append(doc, kml.Placemark(
			kml.Name(name),
			kml.Point(coordinates(geo.Polyline{j.Coord})...),
		))
	}

	for _, l := range s.Categories.Traffic {
		doc = append(doc, kml.Placemark(kml.StyleURL("#traffic"), kml.LineString(coordinates(l)...)))
	}
	for _, l := range s.Categories.Toll {
		doc = append(doc, kml.Placemark(kml.StyleURL("#toll"), kml.LineString(coordinates(l)...)))
	}

	return kml.KML(kml.Document(doc...)).WriteIndent(w, "", "  ")
}

func coordinates(line geo.Polyline) []kml.Element {
	coords := make([]kml.Coordinate, len(line))
	for i, p := range line {
		coords[i] = kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
	}
	return []kml.Element{kml.Coordinates(coords...)}
}

func lineStyle(id string, s LineStyle) kml.Element {
	return kml.SharedStyle(id, kml.LineStyle(
		kml.Color(parseHexColor(s.Color, s.Opacity)),
		kml.Width(s.Width),
	))
}

// parseHexColor reads "#RRGGBB"; anything else renders black
func parseHexColor(hex string, opacity float64) color.RGBA {
	c := color.RGBA{A: uint8(clampUnit(opacity) * 255)}
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return c
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return c
	}
	c.R = uint8(v >> 16)
	c.G = uint8(v >> 8)
	c.B = uint8(v)
	return c
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
