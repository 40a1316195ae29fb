package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/vaidashi/marketplace-orders/internal/lifecycle"
	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/internal/service"
	"github.com/vaidashi/marketplace-orders/pkg/circuitbreaker"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

// OrderService is the order lifecycle the API exposes
type OrderService interface {
	CreateOrder(ctx context.Context, in service.NewOrderInput) (*models.Order, error)
	Transition(ctx context.Context, orderID, target, actorID, note string) (*models.OrderAggregate, error)
	GetOrder(ctx context.Context, id string) (*models.OrderAggregate, error)
	PayoutView(ctx context.Context, id string) (lifecycle.PayoutView, error)
	MarkPaid(ctx context.Context, id, reference string) (*models.Order, error)
	SellerPayoutSummary(ctx context.Context, sellerID string) (*service.PayoutSummary, error)
}

// ReviewService is the review workflow the API exposes
type ReviewService interface {
	CanReview(ctx context.Context, buyerID, productID, orderID string) (lifecycle.Eligibility, error)
	CreateReview(ctx context.Context, in service.ReviewInput) (*models.Review, error)
	UpdateReview(ctx context.Context, id, buyerID string, rating int, title, comment string) (*models.Review, error)
	DeleteReview(ctx context.Context, id, buyerID string) error
	RespondToReview(ctx context.Context, id, sellerID, response string) (*models.Review, error)
	ToggleHelpful(ctx context.Context, id, userID string) (service.HelpfulResult, error)
}

// OutboxAdmin inspects and requeues outbox messages
type OutboxAdmin interface {
	CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error)
	ListFailed(ctx context.Context, limit, offset int) ([]*models.OutboxMessage, error)
	Requeue(ctx context.Context, id int64) error
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators a Server routes requests to
type Dependencies struct {
	Orders  OrderService
	Reviews ReviewService
	Outbox  OutboxAdmin

	// Checks are pinged by the health endpoint, keyed by name
	Checks map[string]Pinger

	// Breaker guards the notification gateway; nil in dry-run mode
	Breaker *circuitbreaker.CircuitBreaker
}

type Server struct {
	logger     logger.Logger
	router     *mux.Router
	httpServer *http.Server
	validate   *validator.Validate

	orders  OrderService
	reviews ReviewService
	outbox  OutboxAdmin
	checks  map[string]Pinger
	breaker *circuitbreaker.CircuitBreaker

	// transitionRetries bounds retries of a transition that lost a race
	transitionRetries int
	version           string
}

// NewServer creates a new API server listening on port
func NewServer(port int, deps Dependencies, logger logger.Logger) *Server {
	r := mux.NewRouter()

	server := &Server{
		logger: logger,
		router: r,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		validate:          newValidator(),
		orders:            deps.Orders,
		reviews:           deps.Reviews,
		outbox:            deps.Outbox,
		checks:            deps.Checks,
		breaker:           deps.Breaker,
		transitionRetries: 2,
		version:           "1.0.0",
	}

	server.setupRoutes()

	return server
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)

	api.HandleFunc("/orders", s.createOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", s.getOrderHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/status", s.updateOrderStatusHandler).Methods(http.MethodPatch)
	api.HandleFunc("/orders/{id}/payment", s.markPaidHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/payout", s.getPayoutHandler).Methods(http.MethodGet)
	api.HandleFunc("/sellers/{id}/payouts", s.getSellerPayoutsHandler).Methods(http.MethodGet)

	api.HandleFunc("/reviews/eligibility", s.reviewEligibilityHandler).Methods(http.MethodGet)
	api.HandleFunc("/reviews", s.createReviewHandler).Methods(http.MethodPost)
	api.HandleFunc("/reviews/{id}", s.updateReviewHandler).Methods(http.MethodPut)
	api.HandleFunc("/reviews/{id}", s.deleteReviewHandler).Methods(http.MethodDelete)
	api.HandleFunc("/reviews/{id}/response", s.respondToReviewHandler).Methods(http.MethodPost)
	api.HandleFunc("/reviews/{id}/helpful", s.toggleHelpfulHandler).Methods(http.MethodPost)

	admin := s.router.PathPrefix("/api/v1/admin").Subrouter()
	admin.HandleFunc("/outbox/failed", s.getFailedMessagesHandler).Methods(http.MethodGet)
	admin.HandleFunc("/outbox/failed/{id}/retry", s.retryFailedMessageHandler).Methods(http.MethodPost)
	admin.HandleFunc("/notifier/circuit-breaker", s.getCircuitBreakerStatusHandler).Methods(http.MethodGet)
	admin.HandleFunc("/notifier/circuit-breaker/reset", s.resetCircuitBreakerHandler).Methods(http.MethodPost)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware for logging requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remoteAddr", r.RemoteAddr,
		)
	})
}
