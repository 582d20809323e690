package server

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dukerupert/galactic-archives/internal/auth"
	"github.com/dukerupert/galactic-archives/internal/billing"
	"github.com/dukerupert/galactic-archives/internal/handler"
	"github.com/dukerupert/galactic-archives/internal/metrics"
	"github.com/dukerupert/galactic-archives/internal/middleware"
	"github.com/dukerupert/galactic-archives/internal/store"
	ws "github.com/dukerupert/galactic-archives/internal/websocket"
)

type Options struct {
	Version     string
	CORSOrigins []string
	// AuthRateLimit is the number of register/login requests allowed per
	// client IP per minute. Zero disables the limit.
	AuthRateLimit int
	// TrustedProxies lists the reverse proxies whose forwarding headers are
	// believed when resolving the client IP. Empty means the socket peer.
	TrustedProxies []netip.Prefix
	Argon2         auth.Argon2Params
	// Billing is nil when no provider credentials are configured.
	Billing billing.Provider
}

type Server struct {
	store       store.Store
	hub         *ws.Hub
	resolver    *auth.Resolver
	registry    *prometheus.Registry
	metrics     *metrics.Collector
	rateLimiter *middleware.RateLimiter
	authH       *handler.AuthHandler
	noteH       *handler.NoteHandler
	billingH    *handler.BillingHandler
	healthH     *handler.HealthHandler
	opts        Options
	logger      *slog.Logger
}

func New(st store.Store, tokens *auth.Tokens, opts Options, logger *slog.Logger) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewCollector(registry)

	hub := ws.NewHub(logger.With("component", "websocket"))

	var billingSvc *billing.Service
	if opts.Billing != nil {
		billingSvc = billing.NewService(opts.Billing, st.Users(), st.Products(), m, logger)
	}

	return &Server{
		store:       st,
		hub:         hub,
		resolver:    auth.NewResolver(tokens, st.Users()),
		registry:    registry,
		metrics:     m,
		rateLimiter: middleware.NewRateLimiter(),
		authH:       handler.NewAuthHandler(st.Users(), auth.NewPasswordHasher(opts.Argon2), tokens, logger.With("component", "auth")),
		noteH:       handler.NewNoteHandler(st.Notes(), hub, logger.With("component", "note")),
		billingH:    handler.NewBillingHandler(billingSvc, st.Products(), logger.With("component", "billing_handler")),
		healthH:     handler.NewHealthHandler(st, opts.Version, logger.With("component", "health")),
		opts:        opts,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the live event hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Shutdown closes live event streams. http.Server.Shutdown does not wait
// for hijacked connections.
func (s *Server) Shutdown() {
	s.hub.Shutdown()
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(s.logger.With("component", "http")))
	r.Use(middleware.Metrics(s.metrics))
	r.Use(middleware.CORS(s.opts.CORSOrigins))

	r.Get("/healthz", s.healthH.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(s.registry))

	authLogger := s.logger.With("component", "auth")
	requireAuth := middleware.RequireAuth(s.resolver, s.metrics, authLogger)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.OptionalAuth(s.resolver)).Get("/", s.healthH.Info)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if s.opts.AuthRateLimit > 0 {
					r.Use(middleware.RateLimit(s.rateLimiter, middleware.ClientIP(s.opts.TrustedProxies), s.opts.AuthRateLimit, time.Minute))
				}
				r.Post("/register", s.authH.Register)
				r.Post("/login", s.authH.Login)
			})
			r.With(requireAuth).Get("/me", s.authH.Me)
		})

		r.Route("/notes", func(r chi.Router) {
			r.With(middleware.RequireStreamAuth(s.resolver, s.metrics, authLogger)).
				Get("/stream", ws.HandleWebSocket(s.hub, s.opts.CORSOrigins, s.logger.With("component", "websocket")))

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", s.noteH.Create)
				r.Get("/", s.noteH.List)
				r.Get("/{id}", s.noteH.Get)
				r.Put("/{id}", s.noteH.Update)
				r.Delete("/{id}", s.noteH.Delete)
			})
		})

		r.Route("/billing", func(r chi.Router) {
			r.Get("/products", s.billingH.Products)
			r.Post("/webhook", s.billingH.Webhook)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/create-checkout-session", s.billingH.CreateCheckoutSession)
				r.Post("/create-portal-session", s.billingH.CreatePortalSession)
			})
		})
	})

	return r
}
