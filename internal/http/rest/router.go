package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/potd_downloader/internal/telemetry"
)

// NewRouter wires the status API: health, metrics and the /api routes of pictures.
func NewRouter(tel *telemetry.Telemetry, pictures *PicturesHandler) http.Handler {
	r := chi.NewRouter()

	// logging runs inside the span so access records carry its trace_id
	r.Use(telemetry.RequestID)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)
	r.Use(telemetry.HTTPLogging)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})

	if tel != nil {
		r.Method(http.MethodGet, "/metrics", tel.Handler())
	}

	r.Mount("/api", pictures.Routes())

	return r
}
