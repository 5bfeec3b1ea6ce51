package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"recorder-transcriber-service/internal/app"
	"recorder-transcriber-service/internal/observability/metrics"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	h := &handlers{app: application}
	ws := newWebSocketHandler(application)

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(accessLog(metrics.DefaultMetrics))

	r.Get("/health", h.health)
	r.Get("/status", h.status)
	r.Get("/recordings", h.recordings)

	r.Post("/start_recording", h.startRecording)
	r.Post("/stop_recording", h.stopRecording)
	r.Post("/transcribe", h.transcribe)
	r.Post("/enhance", h.enhance)

	r.Route("/listen", func(r chi.Router) {
		r.Get("/status", h.listenStatus)
		r.Get("/ws", ws.ServeHTTP)
	})

	return r
}

// accessLog logs every request with its route pattern and records metrics.
func accessLog(m *metrics.Metrics) func(http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.RecordRequest("http", r.Method+" "+route, http.StatusText(status), duration.Seconds())

		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("route", route).
			Str("requestId", middleware.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}
