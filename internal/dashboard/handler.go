// Package dashboard serves the census choropleth page and its JSON API.
package dashboard

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/census-map/internal/dataset"
	"github.com/sells-group/census-map/internal/metrics"
	"github.com/sells-group/census-map/internal/render"
)

// Options configures the HTTP surface.
type Options struct {
	SiteTitle      string
	GithubURL      string
	SourceURL      string
	CORSOrigins    []string
	RequestTimeout time.Duration
	Render         render.Options
	CacheEntries   int
}

// Handler serves the page and API from an immutable data context.
type Handler struct {
	data       *dataset.Context
	opts       Options
	renderer   *render.Renderer
	figures    *render.Cache
	boundaries *render.Cache
	metrics    *metrics.Metrics
}

// NewHandler creates a Handler. A nil data context serves health checks
// only; every data route answers 503 until one is supplied.
func NewHandler(data *dataset.Context, opts Options, m *metrics.Metrics) *Handler {
	if opts.SiteTitle == "" {
		opts.SiteTitle = "US Census 2017"
	}
	h := &Handler{
		data:    data,
		opts:    opts,
		figures: render.NewCache(opts.CacheEntries),
		metrics: m,
	}
	if data != nil {
		h.renderer = render.NewRenderer(data.Schema, opts.Render)
		h.boundaries = render.NewCache(len(data.Catalog.StateNames()) + 1)
	}
	return h
}

// Router builds the chi router with middleware and all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if h.opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(h.opts.RequestTimeout))
	}
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyz)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Get("/", h.handleIndex)

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.corsOrigins(),
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Use(h.requireData)

		r.Get("/states", h.handleStates)
		r.Get("/variables", h.handleVariables)
		r.Get("/map", h.handleMap)
		r.Get("/boundaries", h.handleBoundaries)
	})

	return r
}

func (h *Handler) corsOrigins() []string {
	if len(h.opts.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return h.opts.CORSOrigins
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		h.metrics.ObserveHTTPRequest(r.Method, route, status, elapsed)

		zap.L().Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

func (h *Handler) requireData(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.data == nil {
			writeError(w, http.StatusServiceUnavailable, "not_ready", "data is still loading")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if h.data == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	resp := map[string]any{
		"status":       "ready",
		"loaded_at":    h.data.LoadedAt,
		"counties":     h.data.Table.Len(),
		"boundaries":   h.data.Boundaries.Len(),
		"render_cache": h.figures.Stats(),
	}
	if h.data.Snapshot != nil {
		resp["snapshot_id"] = h.data.Snapshot.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	})
}

// writeRaw writes an already encoded JSON document.
func writeRaw(w http.ResponseWriter, contentType string, cache string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	if cache != "" {
		w.Header().Set("X-Cache", cache)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
