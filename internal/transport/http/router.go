// Package http wires the chi router: middleware stack, authentication, and
// the handler set. Handlers decode and validate, call a service, and write
// the standard JSON envelope; no business rules live here.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"passgate/internal/allocator"
	"passgate/internal/attendance"
	"passgate/internal/directory"
	"passgate/internal/identity"
	"passgate/internal/pass"
	"passgate/internal/payment"
	"passgate/internal/platform/metrics"
	"passgate/internal/platform/middleware"
)

// Server bundles the services the handlers dispatch to.
type Server struct {
	identity   *identity.Service
	verifier   middleware.TokenVerifier
	passes     *pass.Service
	allocator  *allocator.Service
	attendance *attendance.Service
	payment    *payment.Bridge
	events     directory.Store
	recounter  directory.Recounter
	health     []namedCheck
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// HealthChecker is anything whose availability gates readiness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

func NewServer(
	identitySvc *identity.Service,
	verifier middleware.TokenVerifier,
	passSvc *pass.Service,
	allocatorSvc *allocator.Service,
	attendanceSvc *attendance.Service,
	paymentBridge *payment.Bridge,
	events directory.Store,
	recounter directory.Recounter,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	return &Server{
		identity:   identitySvc,
		verifier:   verifier,
		passes:     passSvc,
		allocator:  allocatorSvc,
		attendance: attendanceSvc,
		payment:    paymentBridge,
		events:     events,
		recounter:  recounter,
		metrics:    m,
		logger:     logger,
	}
}

// AddHealthCheck registers a dependency whose failure flips /health to 503.
func (s *Server) AddHealthCheck(name string, check HealthChecker) {
	s.health = append(s.health, namedCheck{name: name, HealthChecker: check})
}

type namedCheck struct {
	HealthChecker
	name string
}

// Routes builds the full router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Latency(s.metrics))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(s.verifier, s.logger))

		r.Get("/scan/{passID}", s.handleScan)
		r.Get("/events", s.handleListEvents)

		r.Route("/passes", func(r chi.Router) {
			r.Get("/", s.handleListPasses)
			r.Post("/", s.handleCreatePass)
			r.Get("/{passID}", s.handleGetPass)
			r.Post("/{passID}/slots", s.handleAssignSlot)
			r.Delete("/{passID}/slots/{slotNo}", s.handleDeleteSlot)
			r.Post("/{passID}/attendance", s.handleAttendance)
			r.Post("/{passID}/mark-cash-paid", s.handleMarkCashPaid)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(s.logger, identity.RoleSuperAdmin))
			r.Post("/admin/reconcile-registrations", s.handleReconcile)
		})
	})

	return r
}
