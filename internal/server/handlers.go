// Package server exposes the lab service as JSON over HTTP
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dpup/prefab/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/itzikmeir/GeoVisLab-sub000/internal/cache"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/export"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/geo"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/junction"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/routing"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/scoring"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/segment"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/lib/viewport"
	"github.com/itzikmeir/GeoVisLab-sub000/internal/services"
)

// APIPrefix is where the handler is mounted
const APIPrefix = "/api/v1"

const maxBodyBytes = 1 << 20

// Handler serves the lab API
type Handler struct {
	lab      *services.LabService
	routes   *cache.Cache
	splitter segment.Splitter
}

// NewHandler creates a handler backed by lab. routes is the routing cache
// exposed under /cache; nil leaves those endpoints out.
func NewHandler(lab *services.LabService, routes *cache.Cache) *Handler {
	return &Handler{
		lab:      lab,
		routes:   routes,
		splitter: segment.NewSplitter(lab.Config().Segment),
	}
}

// Router returns the routes under APIPrefix
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(withLogger, middleware.RequestID, middleware.Recoverer)
	r.Use(cors(h.lab.Config().Server.CorsOrigins))
	r.Route(APIPrefix, func(r chi.Router) {
		r.Post("/split", h.split)

		if h.routes != nil {
			r.Get("/cache/stats", h.cacheStats)
			r.Delete("/cache", h.clearCache)
		}

		r.Post("/sessions", h.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.deleteSession)
			r.Put("/view", h.setView)
			r.Post("/compute", h.compute)
			r.Post("/clear", h.clear)
			r.Post("/select", h.selectRoute)
			r.Put("/badges/{route}", h.dragBadge)
			r.Post("/measure", h.measure)
			r.Put("/categories", h.setCategories)
			r.Get("/scores", h.scores)
			r.Post("/export", h.export)

			r.Post("/edit/enter", h.enterEdit)
			r.Post("/edit/toggle", h.toggleJunction)
			r.Post("/edit/undo", h.undo)
			r.Post("/edit/redo", h.redo)
			r.Post("/edit/reset", h.resetEdit)
			r.Post("/edit/exit", h.exitEdit)
		})
	})
	return r
}

// Request bodies

type lineRequest struct {
	Line    geo.Polyline `json:"line,omitempty"`
	Encoded string       `json:"encoded,omitempty"` // Google polyline, used when Line is empty
}

type routeRequest struct {
	Route routing.RouteID `json:"route"`
}

type pointRequest struct {
	Coord geo.Point `json:"coord"`
}

type toggleRequest struct {
	JunctionID string `json:"junction_id"`
}

type splitResponse struct {
	Split        segment.Split       `json:"split"`
	Segments     segment.Display     `json:"segments"`
	Parts        [3]geo.Polyline     `json:"parts"`
	Junctions    []junction.Junction `json:"junctions"`
	LengthMeters float64             `json:"length_m"`
}

func (h *Handler) split(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	line := req.Line
	if line.Empty() && req.Encoded != "" {
		decoded, err := geo.DecodePolyline(req.Encoded)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		line = decoded
	}
	if err := line.Validate(); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", routing.ErrInvalidInput, err))
		return
	}

	sp := h.splitter.Split(line)
	writeJSON(w, r, http.StatusOK, splitResponse{
		Split:        sp,
		Segments:     h.splitter.Display(line, sp),
		Parts:        h.splitter.Parts(line, sp),
		Junctions:    junction.Build(line, h.lab.Config().Edit.Junction),
		LengthMeters: geo.LengthMeters(line),
	})
}

func (h *Handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.routes.Stats())
}

func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	h.routes.Clear()
	logging.Infow(r.Context(), "Routing cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var view viewport.WebMercator
	if err := decodeOptionalJSON(r, &view); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := h.lab.CreateSession(r.Context(), view)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, snap)
}

// session resolves the {id} URL parameter
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*services.Session, bool) {
	sess, err := h.lab.GetSession(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.session(w, r); ok {
		writeJSON(w, r, http.StatusOK, sess.Snapshot())
	}
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.lab.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setView(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var view viewport.WebMercator
	if err := decodeJSON(r, &view); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, func() (any, error) { return sess.SetView(view) })
}

func (h *Handler) compute(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req services.ComputeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, func() (any, error) { return sess.Compute(r.Context(), req) })
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.session(w, r); ok {
		writeJSON(w, r, http.StatusOK, sess.Clear())
	}
}

func (h *Handler) selectRoute(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req routeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, func() (any, error) { return sess.Select(req.Route) })
}

func (h *Handler) dragBadge(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	id, err := routing.ParseRouteID(chi.URLParam(r, "route"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req pointRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, func() (any, error) { return sess.DragBadge(id, req.Coord) })
}

func (h *Handler) measure(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req lineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, func() (any, error) { return sess.Measure(req.Line) })
}

func (h *Handler) setCategories(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var cats scoring.Categories
	if err := decodeJSON(r, &cats); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess.SetCategories(cats))
}

func (h *Handler) scores(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.session(w, r); ok {
		respond(w, r, func() (any, error) { return sess.Scores() })
	}
}

// export renders the scenario as json (default), geojson or kml
func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req services.ExportRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	scenario, err := sess.Export(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	name := export.SafeFileName(scenario.Name)

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".json"))
		writeJSON(w, r, http.StatusOK, scenario)
	case "geojson":
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".geojson"))
		w.Header().Set("Content-Type", "application/geo+json")
		data, err := export.GeoJSON(scenario).MarshalJSON()
		if err != nil {
			writeError(w, r, fmt.Errorf("failed to encode geojson: %w", err))
			return
		}
		if _, err := w.Write(data); err != nil {
			logging.Warnw(r.Context(), "Failed to write response", "error", err)
		}
	case "kml":
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".kml"))
		w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
		if err := export.WriteKML(w, scenario); err != nil {
			logging.Warnw(r.Context(), "Failed to write KML", "error", err)
		}
	default:
		writeError(w, r, fmt.Errorf("%w: unknown export format %q", errBadRequest, format))
	}
}

func (h *Handler) enterEdit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req routeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, func() (any, error) { return sess.EnterEdit(req.Route) })
}

func (h *Handler) toggleJunction(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, func() (any, error) { return sess.ToggleJunction(r.Context(), req.JunctionID) })
}

func (h *Handler) undo(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.session(w, r); ok {
		respond(w, r, func() (any, error) { return sess.Undo(r.Context()) })
	}
}

func (h *Handler) redo(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.session(w, r); ok {
		respond(w, r, func() (any, error) { return sess.Redo(r.Context()) })
	}
}

func (h *Handler) resetEdit(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.session(w, r); ok {
		respond(w, r, func() (any, error) { return sess.ResetEdit() })
	}
}

func (h *Handler) exitEdit(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.session(w, r); ok {
		respond(w, r, func() (any, error) { return sess.ExitEdit() })
	}
}

// Helpers

// withLogger makes sure the request context carries a logger. Under prefab the
// request already has one.
func withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(logging.EnsureLogger(r.Context())))
	})
}

// cors allows browser clients from origins; "*" allows any origin
func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowed["*"] || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Add("Vary", "Origin")
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// respond writes the result of fn, or its error
func respond(w http.ResponseWriter, r *http.Request, fn func() (any, error)) {
	v, err := fn()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warnw(r.Context(), "Failed to encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// decodeOptionalJSON is decodeJSON that accepts an empty body
func decodeOptionalJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
}
