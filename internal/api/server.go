package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tixgate/internal/auth"
	"tixgate/internal/cache"
	"tixgate/internal/config"
	"tixgate/internal/database"
	"tixgate/internal/external"
	"tixgate/internal/handlers"
	"tixgate/internal/identity"
	"tixgate/internal/logger"
	"tixgate/internal/messaging"
	"tixgate/internal/metrics"
	"tixgate/internal/middleware"
	"tixgate/internal/repository"
	"tixgate/internal/search"
	"tixgate/internal/service"
	"tixgate/internal/ticket"
	"tixgate/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const poolStatsInterval = 15 * time.Second

// Server is the HTTP API of the ticketing gate
type Server struct {
	router      *gin.Engine
	config      *config.Config
	db          *database.DB
	nats        *messaging.NATSClient
	valkey      *cache.ValkeyClient
	search      *search.ElasticsearchClient
	services    *service.Services
	verifier    *identity.Verifier
	stopMetrics context.CancelFunc
}

// NewServer connects the backing services and builds the router. The
// database, Valkey and both secrets are required; NATS and Elasticsearch
// are optional.
func NewServer(cfg *config.Config) (*Server, error) {
	gin.SetMode(cfg.GinMode)
	log := logger.Get()

	keyring, err := ticket.NewKeyring(cfg.Tickets.SigningKey, cfg.Tickets.PreviousKeys...)
	if err != nil {
		return nil, err
	}
	verifier, err := identity.NewVerifier(cfg.Identity.TokenSecret, cfg.Identity.Issuer, cfg.Identity.Audience)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Without Valkey revoked sessions cannot be recognised.
	valkey, err := cache.NewValkeyClient(cfg.Valkey)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Server{
		config:   cfg,
		db:       db,
		valkey:   valkey,
		verifier: verifier,
	}

	var publisher messaging.Publisher
	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		log.Warn("NATS unavailable, audit events go to the log only", "error", err)
		publisher = messaging.NewLogPublisher(log)
	} else {
		s.nats = natsClient
		publisher = natsClient
	}

	if cfg.Elasticsearch.Enabled {
		esClient, err := search.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			log.Warn("Elasticsearch unavailable, audit search disabled", "error", err)
		} else {
			s.search = esClient
		}
	}

	repos := repository.NewRepositories(db)
	s.services = service.NewServices(repos, keyring, service.TicketConfig{
		MaxAge:  cfg.Tickets.MaxAge,
		Legacy:  validation.LegacyPolicy{Until: cfg.Tickets.LegacyUntil},
		QRSize:  cfg.Tickets.QRSize,
		CheckIn: cfg.CheckIn,
	}, publisher, external.NewStubPaymentClient(cfg.Payment))

	if !cfg.Tickets.LegacyUntil.IsZero() {
		log.Warn("Unsigned legacy tickets are accepted", "until", cfg.Tickets.LegacyUntil)
	}

	metricsCtx, stop := context.WithCancel(context.Background())
	s.stopMetrics = stop
	go metrics.CollectPoolStats(metricsCtx, db.Stats, poolStatsInterval)

	s.router = gin.New()
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.Logger())
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	// A nil *ElasticsearchClient must not become a non-nil interface.
	var audit handlers.AuditSearcher
	if s.search != nil {
		audit = s.search
	}
	h := handlers.NewHandlers(s.services.Tickets, s.services.Bookings, s.valkey, audit)

	api := s.router.Group("/api")
	api.Use(middleware.Auth(s.verifier, s.valkey))
	{
		api.GET("/me", h.Me)
		api.POST("/logout", h.Logout)

		api.GET("/tickets/:bookingId", h.GetTicket)

		bookings := api.Group("/bookings")
		{
			bookings.GET("", h.ListBookings)
			bookings.POST("/:bookingId/confirm", h.ConfirmBooking)
		}

		checkin := api.Group("/checkin")
		checkin.Use(middleware.RequirePermission(auth.PermTicketsScan, auth.PermCheckInOverride))
		checkin.Use(middleware.ScanRateLimit(s.valkey))
		{
			checkin.POST("/validate", h.ValidateScan)
			checkin.POST("", h.CheckIn)
			checkin.POST("/override", h.OverrideCheckIn)
		}

		api.GET("/audit/bookings/:bookingId",
			middleware.RequirePermission(auth.PermBookingsManage), h.BookingAudit)
	}

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// healthCheck reports unhealthy when the check-in store or the session
// store is down; both are needed to admit anyone.
func (s *Server) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	dbHealth := s.db.HealthCheck(ctx)

	status := http.StatusOK
	body := gin.H{
		"status":   "ok",
		"service":  "tixgate-api",
		"database": dbHealth,
	}
	if dbHealth.Status != "healthy" {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	if err := s.valkey.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["valkey"] = err.Error()
	}
	if s.search != nil {
		if err := s.search.HealthCheck(ctx); err != nil {
			body["elasticsearch"] = err.Error()
		}
	}

	c.JSON(status, body)
}

// Handler returns the router, for http.Server and tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Cleanup closes connections
func (s *Server) Cleanup() error {
	log := logger.Get()
	if s.stopMetrics != nil {
		s.stopMetrics()
	}

	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			log.Error("Error closing NATS connection", "error", err)
		}
	}

	if s.valkey != nil {
		if err := s.valkey.Close(); err != nil {
			log.Error("Error closing Valkey connection", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
