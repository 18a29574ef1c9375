// Package control exposes a local HTTP API to drive a host: open and close
// tabs, list menu entries, and simulate a menu click on an image.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/alphaprobe/host"
	"github.com/hazyhaar/alphaprobe/observability"
)

// Controller is the host surface the API drives. Both host bindings
// implement it.
type Controller interface {
	OpenTab(ctx context.Context, url string) (host.TabID, error)
	CloseTab(ctx context.Context, id host.TabID) error
	Tabs() []host.Tab
	Menus() []host.MenuEntry
	Click(ctx context.Context, ev host.ClickEvent) error
}

// MetricsReader reads back recorded metrics.
type MetricsReader interface {
	Query(ctx context.Context, f observability.Filter) ([]observability.Metric, error)
}

// Server serves the control API.
type Server struct {
	ctl     Controller
	metrics MetricsReader
	logger  *slog.Logger
	router  *chi.Mux
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts GET /v1/metrics over m.
func WithMetrics(m MetricsReader) Option {
	return func(s *Server) { s.metrics = m }
}

// New builds the router around ctl.
func New(ctl Controller, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{ctl: ctl, logger: logger}
	for _, o := range opts {
		o(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(middleware.GetHead)
	r.Use(apiHeaders)
	r.Use(middleware.RequestSize(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/menus", s.handleMenus)
		r.Get("/tabs", s.handleTabs)
		r.Post("/tabs", s.handleOpenTab)
		r.Delete("/tabs/{tabID}", s.handleCloseTab)
		r.Post("/tabs/{tabID}/menus/{menuItemID}/click", s.handleClick)
		if s.metrics != nil {
			r.Get("/metrics", s.handleMetrics)
		}
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control: %w", err)
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	}
}

func (s *Server) handleMenus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Menus())
}

func (s *Server) handleTabs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Tabs())
}

func (s *Server) handleOpenTab(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}
	id, err := s.ctl.OpenTab(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]host.TabID{"tab_id": id})
}

func (s *Server) handleCloseTab(w http.ResponseWriter, r *http.Request) {
	id := host.TabID(chi.URLParam(r, "tabID"))
	if err := s.ctl.CloseTab(r.Context(), id); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SrcURL string `json:"src_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.SrcURL == "" {
		writeError(w, http.StatusBadRequest, errors.New("src_url is required"))
		return
	}
	ev := host.ClickEvent{
		MenuItemID: chi.URLParam(r, "menuItemID"),
		SrcURL:     req.SrcURL,
		TabID:      host.TabID(chi.URLParam(r, "tabID")),
	}
	// The probe runs after the response; its result shows up as an alert in
	// the tab.
	if err := s.ctl.Click(context.WithoutCancel(r.Context()), ev); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, ev)
}

// handleMetrics serves stored datapoints. Query parameters: name, since (a
// Go duration looking back from now) and limit (default 100).
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := observability.Filter{Name: q.Get("name"), Limit: 100}
	if v := q.Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("since: want a positive duration, got %q", v))
			return
		}
		f.Since = time.Now().Add(-d)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit: want a positive integer, got %q", v))
			return
		}
		f.Limit = n
	}
	metrics, err := s.metrics.Query(r.Context(), f)
	if err != nil {
		s.logger.Error("control: query metrics", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("metrics unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("control: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, host.ErrUnknownTab), errors.Is(err, host.ErrUnknownMenu):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
