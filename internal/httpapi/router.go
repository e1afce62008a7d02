package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"avatarsynth/internal/httpapi/handlers"
	"avatarsynth/internal/httpkit"
	"avatarsynth/internal/metrics"
	"avatarsynth/internal/pkg/logger"
	"avatarsynth/internal/pkg/middleware"
)

type Deps struct {
	Handlers       handlers.Deps
	AllowedOrigins []string
	Log            *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Accept", "Range"},
		ExposedHeaders: []string{"Content-Length", "Location", middleware.RequestIDHeader},
		MaxAgeSeconds:  600,
	}))

	h := handlers.New(d.Handlers)
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- PAGE ----
	r.Get("/", wrap(h.Index))

	// ---- HEALTH / METRICS ----
	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	// ---- SYNTHESIS ----
	r.Post("/synthesize", wrap(h.Synthesize))
	r.Get("/play_video", wrap(h.PlayVideo))
	r.Get("/syntheses", wrap(h.ListSyntheses))

	// ---- JOBS ----
	r.Post("/jobs", wrap(h.PostJob))
	r.Get("/jobs/{jobId}", wrap(h.GetJob))
	r.Delete("/jobs/{jobId}", wrap(h.DeleteJob))

	return r
}
