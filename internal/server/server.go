// Package server exposes resolution, reports, and cache administration
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/medintel/internal/analysis"
	"github.com/sells-group/medintel/internal/cache"
	"github.com/sells-group/medintel/internal/model"
	"github.com/sells-group/medintel/internal/resilience"
	"github.com/sells-group/medintel/internal/simulate"
	"github.com/sells-group/medintel/internal/years"
)

// Resolver resolves one tuple.
type Resolver interface {
	Resolve(ctx context.Context, dt model.DatasetType, entityID string, year int, growthOverride *float64) (model.Result, error)
}

// Reporter produces analysis reports.
type Reporter interface {
	Run(ctx context.Context, req analysis.Request) (*analysis.Report, error)
}

// CacheAdmin exposes cache statistics and clearing.
type CacheAdmin interface {
	Stats() cache.Stats
	Clear()
}

// BreakerStates reports upstream circuit breaker states.
// *resilience.Breakers satisfies it.
type BreakerStates interface {
	States() map[string]resilience.BreakerState
}

// Deps are the engine components the handlers call.
type Deps struct {
	Years    *years.Config
	Resolver Resolver
	Reporter Reporter
	Cache    CacheAdmin
	Breakers BreakerStates
	// DefaultYears is used by the report endpoint when no years are given.
	DefaultYears []int
}

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins []string
	// RequestTimeout bounds each request; zero disables the limit.
	RequestTimeout time.Duration
}

// NewRouter builds the chi router with all routes mounted.
func NewRouter(d Deps, opts Options) http.Handler {
	h := &handlers{deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/years/{year}", h.classify)
		r.Get("/resolve/{datasetType}/{entityID}/{year}", h.resolve)
		r.Get("/report/{datasetType}", h.report)
		r.Get("/cache/stats", h.cacheStats)
		r.Post("/cache/clear", h.cacheClear)
		r.Get("/sources/breakers", h.breakers)
	})
	return r
}

type handlers struct {
	deps Deps
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) classify(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "year must be an integer")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":           year,
		"classification": h.deps.Years.Classify(year),
	})
}

func (h *handlers) resolve(w http.ResponseWriter, r *http.Request) {
	dt, err := model.ParseDatasetType(chi.URLParam(r, "datasetType"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "year must be an integer")
		return
	}
	growth, err := parseGrowth(r.URL.Query().Get("growth"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.deps.Resolver.Resolve(r.Context(), dt, chi.URLParam(r, "entityID"), year, growth)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) report(w http.ResponseWriter, r *http.Request) {
	dt, err := model.ParseDatasetType(chi.URLParam(r, "datasetType"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()

	yrs := h.deps.DefaultYears
	if s := q.Get("years"); s != "" {
		yrs, err = years.ParseList(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	var entities []string
	if s := q.Get("entities"); s != "" {
		entities = strings.Split(s, ",")
	}
	growth, err := parseGrowth(q.Get("growth"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, err := h.deps.Reporter.Run(r.Context(), analysis.Request{
		DatasetType: dt,
		Entities:    entities,
		Years:       yrs,
		Growth:      growth,
	})
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// parseGrowth reads the optional growth override. NaN and infinities parse
// as floats but cannot be projected.
func parseGrowth(g string) (*float64, error) {
	if g == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(g, 64)
	if err != nil {
		return nil, eris.New("growth must be a number")
	}
	if err := simulate.ValidateGrowth(v); err != nil {
		return nil, eris.New("growth must be a finite number")
	}
	return &v, nil
}

func (h *handlers) cacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Cache.Stats())
}

func (h *handlers) cacheClear(w http.ResponseWriter, _ *http.Request) {
	before := h.deps.Cache.Stats().Size
	h.deps.Cache.Clear()
	zap.L().Info("cache cleared", zap.Int("entries", before))
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared", "entries": before})
}

func (h *handlers) breakers(w http.ResponseWriter, _ *http.Request) {
	out := map[string]string{}
	if h.deps.Breakers != nil {
		for name, st := range h.deps.Breakers.States() {
			out[name] = st.String()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, eris.Cause(err).Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// ListenAndServe runs handler on addr until ctx is done, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- eris.Wrap(err, "server: listen")
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return <-errCh
}
