package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/clients/osrm"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/config"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/junction"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/routing"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/segment"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/viewport"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "split":
		handleSplit()
	case "junctions":
		handleJunctions()
	case "measure":
		handleMeasure()
	case "decode-polyline":
		handleDecodePolyline()
	case "plan":
		handlePlan()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// lineFlags are the input flags shared by the line commands
type lineFlags struct {
	geojsonPath *string
	polyline    *string
	configPath  *string
}

func newLineFlags(fs *flag.FlagSet) lineFlags {
	return lineFlags{
		geojsonPath: fs.String("geojson", "", "GeoJSON file holding a LineString"),
		polyline:    fs.String("polyline", "", "Encoded polyline string"),
		configPath:  fs.String("config", "", "Optional YAML config file"),
	}
}

func (f lineFlags) load(example string) (geo.Polyline, *config.Config) {
	cfg, err := config.Load(*f.configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	var line geo.Polyline
	switch {
	case *f.polyline != "":
		line, err = geo.DecodePolyline(*f.polyline)
	case *f.geojsonPath != "":
		line, err = readGeoJSONLine(*f.geojsonPath)
	default:
		fmt.Println("Example usage:")
		fmt.Println("  " + example)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("Error reading line: %v", err)
	}
	if err := line.Validate(); err != nil {
		log.Fatalf("Invalid line: %v", err)
	}
	return line, cfg
}

// readGeoJSONLine accepts a bare geometry, a Feature or a FeatureCollection
// and returns the first LineString found
func readGeoJSONLine(path string) (geo.Polyline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var geoms []orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse feature collection: %w", err)
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse feature: %w", err)
		}
		geoms = append(geoms, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse geometry: %w", err)
		}
		geoms = append(geoms, g.Geometry())
	}

	for _, g := range geoms {
		if ls, ok := g.(orb.LineString); ok {
			return geo.FromLineString(ls), nil
		}
	}
	return nil, errors.New("no LineString found")
}

func handleSplit() {
	fs := flag.NewFlagSet("split", flag.ExitOnError)
	in := newLineFlags(fs)
	fs.Parse(os.Args[2:])

	line, cfg := in.load("geovis split --geojson route.geojson")

	splitter := segment.NewSplitter(cfg.Segment)
	sp := splitter.Split(line)
	parts := splitter.Parts(line, sp)

	fmt.Printf("Route: %d points, %s\n", len(line), geo.FormatDistance(geo.LengthMeters(line)))
	fmt.Printf("Split indices: %d, %d", sp.I1, sp.I2)
	if sp.Degenerate {
		fmt.Print(" (degenerate)")
	}
	fmt.Println()
	for i, part := range parts {
		fmt.Printf("  Segment %d: %d points, %s\n", i+1, len(part), geo.FormatDistance(geo.LengthMeters(part)))
	}

	printJSON(struct {
		Split    segment.Split   `json:"split"`
		Segments segment.Display `json:"segments"`
		Parts    [3]geo.Polyline `json:"parts"`
	}{sp, splitter.Display(line, sp), parts})
}

func handleJunctions() {
	fs := flag.NewFlagSet("junctions", flag.ExitOnError)
	in := newLineFlags(fs)
	fs.Parse(os.Args[2:])

	line, cfg := in.load("geovis junctions --polyline '_p~iF~ps|U_ulLnnqC_mqNvxq`@'")

	junctions := junction.Build(line, cfg.Edit.Junction)
	fmt.Printf("Found %d junctions:\n", len(junctions))
	for _, j := range junctions {
		lock := ""
		if j.Locked {
			lock = " [locked]"
		}
		fmt.Printf("  %2d. %-8s (%.6f, %.6f) at %s, turn %.1f°%s\n",
			j.OrderIndex, j.ID, j.Coord.Latitude, j.Coord.Longitude,
			geo.FormatDistance(j.DistanceFromStart), j.TurnAngleDegrees, lock)
	}
}

func handleMeasure() {
	fs := flag.NewFlagSet("measure", flag.ExitOnError)
	in := newLineFlags(fs)
	fs.Parse(os.Args[2:])

	line, _ := in.load("geovis measure --geojson drawn.geojson")

	length := geo.LengthMeters(line)
	fmt.Printf("Length: %s (%.2f meters)\n", geo.FormatDistance(length), length)
}

func handleDecodePolyline() {
	fs := flag.NewFlagSet("decode-polyline", flag.ExitOnError)
	polylineStr := fs.String("polyline", "", "Encoded polyline string")
	fs.Parse(os.Args[2:])

	if *polylineStr == "" {
		fmt.Println("Example usage:")
		fmt.Println("  geovis decode-polyline --polyline '_p~iF~ps|U_ulLnnqC_mqNvxq`@'")
		os.Exit(1)
	}

	line, err := geo.DecodePolyline(*polylineStr)
	if err != nil {
		log.Fatalf("Error decoding polyline: %v", err)
	}

	fmt.Printf("Decoded %d points:\n", len(line))
	for i, p := range line {
		fmt.Printf("  %d: (%.6f, %.6f)\n", i, p.Latitude, p.Longitude)
	}
}

func handlePlan() {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	fromLat := fs.Float64("from-lat", 0, "Start latitude")
	fromLng := fs.Float64("from-lng", 0, "Start longitude")
	toLat := fs.Float64("to-lat", 0, "End latitude")
	toLng := fs.Float64("to-lng", 0, "End longitude")
	diversity := fs.Float64("diversity", 0.5, "Detour spread, 0 to 1")
	offline := fs.Bool("offline", false, "Skip the routing service and use straight lines")
	configPath := fs.String("config", "", "Optional YAML config file")
	timeout := fs.Duration("timeout", time.Minute, "Overall timeout")
	fs.Parse(os.Args[2:])

	if *fromLat == 0 && *fromLng == 0 && *toLat == 0 && *toLng == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  geovis plan --from-lat 32.0853 --from-lng 34.7818 --to-lat 32.1093 --to-lng 34.8555")
		fmt.Println("  (Tel Aviv center to Ramat Gan)")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	var router routing.Router = osrm.NewClient(cfg.OSRM)
	if *offline {
		router = routing.RouterFunc(func(ctx context.Context, waypoints geo.Polyline) (geo.Polyline, error) {
			return nil, routing.ErrNoRoute
		})
	}

	start := geo.Point{Latitude: *fromLat, Longitude: *fromLng}
	end := geo.Point{Latitude: *toLat, Longitude: *toLng}
	bounds, _ := geo.BoundsOf(geo.Polyline{start, end})
	view := viewport.Fit(bounds, 1280, 800, 60, 17)

	ctx, cancel := context.WithTimeout(logging.EnsureLogger(context.Background()), *timeout)
	defer cancel()

	result, err := routing.NewPlanner(router, cfg.Planner).ComputeTriple(ctx, start, end, *diversity, view.Bounds())
	if err != nil {
		log.Fatalf("Error computing routes: %v", err)
	}

	for _, id := range routing.RouteIDs {
		r := result.Routes[id]
		fmt.Printf("Route %s: %s, %d points (%s)\n", id, geo.FormatDistance(geo.LengthMeters(r.Line)), len(r.Line), r.Status)
	}
	printJSON(result)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Error encoding output: %v", err)
	}
}

func printUsage() {
	fmt.Println("GeoVis Lab geometry tool")
	fmt.Println()
	fmt.Println("Usage: geovis <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  split            Split a route into three segments")
	fmt.Println("  junctions        List the editable junctions of a route")
	fmt.Println("  measure          Measure a polyline")
	fmt.Println("  decode-polyline  Decode an encoded polyline")
	fmt.Println("  plan             Compute routes A, B and C between two points")
	fmt.Println("  help             Show this help message")
	fmt.Println()
	fmt.Println("Line input (split, junctions, measure): --geojson FILE or --polyline STRING")
}
