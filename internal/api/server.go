package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/sells-group/dataminer/internal/config"
	"github.com/sells-group/dataminer/internal/store"
)

// Server holds the HTTP handler state. All persistence goes through the
// Store interface so handlers are testable against a stub.
type Server struct {
	store store.Store
	cfg   config.ServerConfig
}

// New constructs a Server backed by the given store.
func New(st store.Store, cfg config.ServerConfig) *Server {
	return &Server{store: st, cfg: cfg}
}

// Router assembles the full middleware chain and route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(RequestLogger)
	if s.cfg.RateLimitRPS > 0 {
		r.Use(RateLimit(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sources", func(r chi.Router) {
			r.Get("/", s.handleListSources)
			r.Post("/", s.handleCreateSource)
			r.Get("/{sourceID}", s.handleGetSource)
			r.Put("/{sourceID}/config", s.handleUpdateSourceConfig)

			r.Get("/{sourceID}/profiles", s.handleListProfiles)
			r.Post("/{sourceID}/profiles", s.handleCreateProfile)

			r.Get("/{sourceID}/fields", s.handleListFields)
			r.Post("/{sourceID}/fields", s.handleCreateField)

			r.Get("/{sourceID}/rules", s.handleListRules)
			r.Post("/{sourceID}/rules", s.handleCreateRule)

			r.Get("/{sourceID}/templates", s.handleListTemplates)
			r.Post("/{sourceID}/templates", s.handleCreateTemplate)
		})

		r.Get("/profiles/{profileID}", s.handleGetProfile)

		r.Route("/fields/{fieldID}", func(r chi.Router) {
			r.Get("/", s.handleGetField)
			r.Put("/", s.handleUpdateField)
			r.Delete("/", s.handleDeleteField)
		})

		r.Route("/rules/{ruleID}", func(r chi.Router) {
			r.Get("/", s.handleGetRule)
			r.Delete("/", s.handleDeleteRule)
		})

		r.Route("/templates/{templateID}", func(r chi.Router) {
			r.Get("/", s.handleGetTemplate)
			r.Delete("/", s.handleDeleteTemplate)
		})
	})

	return r
}
