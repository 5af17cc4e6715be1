package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/dpup/prefab"
	"github.com/dpup/prefab/logging"
	"github.com/joho/godotenv"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/cache"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/clients/osrm"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/config"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/server"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/services"
)

func main() {
	// A .env file is optional; prefab reads PF__ variables from the environment
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	appConfig := loadConfig()
	ctx := logging.EnsureLogger(context.Background())

	// Route geometry cache shared by every session
	cacheInstance := cache.NewCache()
	cacheInstance.StartPeriodicCleanup(ctx, appConfig.Server.CacheCleanupInterval)

	osrmClient := osrm.NewClient(appConfig.OSRM)
	router := osrm.NewCachedRouter(osrmClient, cacheInstance, osrmClient.Profile(), appConfig.OSRM.CacheTTL)

	lab := services.NewLabService(router, appConfig)

	sweeper := services.NewSessionSweeper(lab)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	log.Printf("GeoVis Lab server starting")
	log.Printf("Routing backend: %s (profile %s)", appConfig.OSRM.BaseURL, osrmClient.Profile())
	log.Printf("Session limit: %d, idle TTL: %s", appConfig.Session.MaxSessions, appConfig.Session.IdleTTL)

	handler := server.NewHandler(lab, cacheInstance)

	// Server configuration (port, etc.) is loaded from prefab.yaml/env vars
	srv := prefab.New(
		prefab.WithGRPCReflection(),
		prefab.WithHTTPHandlerFunc(server.APIPrefix+"/", handler.Router().ServeHTTP),
		prefab.WithHTTPHandlerFunc("/", homepageHandler),
	)

	// Blocks until shutdown
	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// loadConfig starts from the defaults and overlays the "geovis" section of
// prefab's config (prefab.yaml and PF__GEOVIS__* environment variables)
func loadConfig() *config.Config {
	appConfig := config.DefaultConfig()

	if err := prefab.Config.Unmarshal("geovis", appConfig); err != nil {
		log.Fatalf("Failed to unmarshal geovis section: %v", err)
	}
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return appConfig
}

// homepageHandler serves a simple HTML homepage at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>GeoVis Lab</title>
    <style>
        body {
            font-family: 'Courier New', Consolas, monospace;
            background: #000;
            color: #0f0;
            padding: 20px;
            line-height: 1.4;
        }
        a { color: #0ff; text-decoration: none; }
        a:hover { text-decoration: underline; }
        pre { margin: 0; }
        .header { color: #ff0; }
    </style>
</head>
<body>
<pre>
<span class="header">GeoVis Lab</span>

Route segmentation and route editing engine for map-visualization studies.
Three alternative routes between two points, each split into three
segments, with junction-based editing and scenario export.

<span class="header">API Endpoints:</span>

Geometry:
  POST /api/v1/split                          - Split a line into three segments with junctions

Routing cache:
  GET    /api/v1/cache/stats                  - Entry, hit and staleness counts
  DELETE /api/v1/cache                        - Drop every cached route

Sessions:
  POST   /api/v1/sessions                     - Open a lab session
  GET    /api/v1/sessions/{id}                - Current session state
  DELETE /api/v1/sessions/{id}                - Close a session
  PUT    /api/v1/sessions/{id}/view           - Set the map viewport
  POST   /api/v1/sessions/{id}/compute        - Compute routes A, B and C
  POST   /api/v1/sessions/{id}/clear          - Drop the computed routes
  POST   /api/v1/sessions/{id}/select         - Select a route
  PUT    /api/v1/sessions/{id}/badges/{route} - Move a route badge
  POST   /api/v1/sessions/{id}/measure        - Measure a drawn polyline
  PUT    /api/v1/sessions/{id}/categories     - Set segment categories
  GET    /api/v1/sessions/{id}/scores         - Per-segment scores
  POST   /api/v1/sessions/{id}/export         - Export (?format=json|geojson|kml)

Editing:
  POST /api/v1/sessions/{id}/edit/enter       - Edit a route
  POST /api/v1/sessions/{id}/edit/toggle      - Enable or disable a junction
  POST /api/v1/sessions/{id}/edit/undo        - Undo
  POST /api/v1/sessions/{id}/edit/redo        - Redo
  POST /api/v1/sessions/{id}/edit/reset       - Restore the computed route
  POST /api/v1/sessions/{id}/edit/exit        - Leave edit mode

<span class="header">Data Sources:</span>
  • OSRM route service   - Road-snapped geometries

<span class="header">Example Usage:</span>
  curl -X POST <a href="/api/v1/sessions">/api/v1/sessions</a>
</pre>
</body>
</html>`

	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("Failed to write homepage HTML", "error", err)
	}
}
