package export

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/routing"
)

// Layer names mirror the map sources of the lab UI
const (
	LayerRoutePrefix = "route-"
	LayerSegPoints   = "seg-points"
	LayerSegTicks    = "seg-ticks"
	LayerBadges      = "badges"
	LayerConnectors  = "connectors"
	LayerJunctions   = "junctions"
	LayerTraffic     = "traffic"
	LayerToll        = "toll"
	LayerComm        = "comm"
	LayerParks       = "parks"
	LayerEndpoints   = "endpoints"
)

// RouteLayer returns the layer name of a route, e.g. "route-a"
func RouteLayer(id routing.RouteID) string {
	switch id {
	case routing.RouteA:
		return LayerRoutePrefix + "a"
	case routing.RouteB:
		return LayerRoutePrefix + "b"
	default:
		return LayerRoutePrefix + "c"
	}
}

// GeoJSON flattens the scenario into one FeatureCollection. Every feature
// carries a "layer" property naming the map source it belongs to.
func GeoJSON(s Scenario) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	add := func(g orb.Geometry, layer string, props map[string]interface{}) {
		f := geojson.NewFeature(g)
		f.Properties["layer"] = layer
		for k, v := range props {
			f.Properties[k] = v
		}
		fc.Append(f)
	}

	add(s.Start.OrbPoint(), LayerEndpoints, map[string]interface{}{"kind": "start"})
	add(s.End.OrbPoint(), LayerEndpoints, map[string]interface{}{"kind": "end"})

	for _, r := range s.Routes {
		add(r.Line.LineString(), RouteLayer(r.ID), map[string]interface{}{
			"route":    string(r.ID),
			"status":   string(r.Status),
			"selected": r.ID == s.Selected,
			"length_m": r.Length,
		})
		add(r.Badge.Coord.OrbPoint(), LayerBadges, map[string]interface{}{
			"route": string(r.ID),
			"label": r.Badge.Label,
		})
		add(geo.Polyline{r.Link.From, r.Link.To}.LineString(), LayerConnectors, map[string]interface{}{
			"route": string(r.ID),
		})

		if r.ID != s.Selected {
			continue
		}
		for i, mid := range r.Segments.Midpoints {
			add(mid.OrbPoint(), LayerSegPoints, map[string]interface{}{
				"route": string(r.ID),
				"label": string(rune('1' + i)),
			})
		}
		for _, tick := range r.Segments.Ticks {
			add(geo.Polyline{tick[0], tick[1]}.LineString(), LayerSegTicks, map[string]interface{}{
				"route": string(r.ID),
			})
		}
	}

	disabled := make(map[string]bool, len(s.Disabled))
	for _, id := range s.Disabled {
		disabled[id] = true
	}
	for _, j := range s.Junctions {
		add(j.Coord.OrbPoint(), LayerJunctions, map[string]interface{}{
			"id":       j.ID,
			"label":    j.OrderIndex,
			"locked":   j.Locked,
			"disabled": disabled[j.ID],
		})
	}

	for _, l := range s.Categories.Traffic {
		add(l.LineString(), LayerTraffic, nil)
	}
	for _, l := range s.Categories.Toll {
		add(l.LineString(), LayerToll, nil)
	}
	for _, z := range s.Categories.CommZones {
		add(orb.Polygon{orb.Ring(z.Ring().LineString())}, LayerComm, map[string]interface{}{
			"radius_m": z.RadiusMeters,
		})
	}
	for _, p := range s.Categories.Parks {
		if len(p.Ring) < 3 {
			continue
		}
		ring := orb.Ring(append(p.Ring.Clone(), p.Ring[0]).LineString())
		add(orb.Polygon{ring}, LayerParks, map[string]interface{}{"id": p.ID})
	}

	return fc
}
