// Package server exposes the fulfillment service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tournevent/fulfillment/internal/domain"
	"github.com/tournevent/fulfillment/internal/fulfillment"
	"github.com/tournevent/fulfillment/internal/zone"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Fulfillment is the order service behind the API.
type Fulfillment interface {
	Checkout(ctx context.Context, req *fulfillment.CheckoutRequest) (*fulfillment.CheckoutResult, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*fulfillment.OrderView, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*domain.Order, error)
	TrackByOrder(ctx context.Context, orderRef, trackingID string) (*fulfillment.OrderTracking, error)
	TrackByNumber(ctx context.Context, trackingID, carrierHint string) (*shipper.Tracking, error)
	TrackWith(ctx context.Context, carrier, trackingID string) (*shipper.Tracking, error)
	QuoteFee(ctx context.Context, carrier, city string, weightGrams int) (*shipper.Fee, error)
	QuoteAll(ctx context.Context, city string, weightGrams int) (*fulfillment.Quotes, error)
}

// ZoneResolver classifies origin/destination pairs.
type ZoneResolver interface {
	Resolve(ctx context.Context, origin, destination string) (*zone.Result, error)
}

// CityLister lists the reference cities sorted by name.
type CityLister interface {
	ListByName(ctx context.Context) ([]domain.City, error)
}

// Config holds server configuration.
type Config struct {
	Port        int
	ServiceName string
	// DebugPayloads adds raw carrier payloads and full error chains to
	// responses.
	DebugPayloads bool
}

// Deps are the services the routes call.
type Deps struct {
	Fulfillment Fulfillment
	Zones       ZoneResolver
	Cities      CityLister
	// Ping reports store health; nil means always healthy.
	Ping     func(ctx context.Context) error
	Gatherer prometheus.Gatherer
	Logger   *otelzap.Logger
}

// Server is the HTTP server for the fulfillment service.
type Server struct {
	cfg         Config
	fulfillment Fulfillment
	zones       ZoneResolver
	cities      CityLister
	ping        func(ctx context.Context) error
	gatherer    prometheus.Gatherer
	logger      *otelzap.Logger
	engine      *gin.Engine
}

// New creates a new server instance.
func New(cfg Config, deps Deps) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "storefront-fulfillment"
	}
	s := &Server{
		cfg:         cfg,
		fulfillment: deps.Fulfillment,
		zones:       deps.Zones,
		cities:      deps.Cities,
		ping:        deps.Ping,
		gatherer:    deps.Gatherer,
		logger:      deps.Logger,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.ping == nil {
		s.ping = func(context.Context) error { return nil }
	}
	s.engine = s.routes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(recovery(s.logger))
	r.Use(requestID())
	r.Use(otelgin.Middleware(s.cfg.ServiceName))
	r.Use(requestLogger(s.logger))

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	order := r.Group("/order")
	order.POST("/create", s.handleCreateOrder)
	order.GET("/:id", s.handleGetOrder)
	order.PUT("/:id/status", s.handleUpdateStatus)

	courier := r.Group("/courier")
	courier.GET("/orderTracking/:orderRef/:trackingId", s.handleTrackOrder)
	courier.GET("/status/:trackingId", s.handleTrackNumber)
	courier.GET("/tcs/track/:cn", s.handleTCSTrack)
	courier.POST("/tcs/fee", s.handleTCSFee)
	courier.GET("/tariff", s.handleTariff)
	courier.GET("/quotes", s.handleQuotes)

	cities := r.Group("/cities")
	cities.GET("", s.handleListCities)
	cities.GET("/resolve-zone/:origin/:destination", s.handleResolveZone)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, response{Success: false, Message: "route not found"})
	})
	return r
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.ping(c.Request.Context()); err != nil {
		s.logger.Ctx(c.Request.Context()).Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, response{Success: false, Message: "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, response{Success: true, Message: "ok"})
}
