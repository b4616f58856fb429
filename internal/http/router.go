package http

import (
	"log/slog"

	"github.com/geocoder89/medledger/internal/audit"
	"github.com/geocoder89/medledger/internal/auth"
	"github.com/geocoder89/medledger/internal/config"
	"github.com/geocoder89/medledger/internal/http/handlers"
	"github.com/geocoder89/medledger/internal/http/middlewares"
	"github.com/geocoder89/medledger/internal/observability"
	"github.com/geocoder89/medledger/internal/records"
	"github.com/geocoder89/medledger/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "medledger-api"

// Deps is everything the HTTP surface is wired to. Prom, Gatherer and
// Draining may be nil.
type Deps struct {
	Users    *users.Service
	Records  *records.Service
	Audit    *audit.Log
	Tokens   *auth.Manager
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	Checks   map[string]handlers.Check
	Draining func() bool
}

func NewRouter(log *slog.Logger, cfg config.Config, deps Deps) *gin.Engine {
	switch cfg.Env {
	case "dev":
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders(cfg.Env != "dev" && cfg.Env != "test"))
	r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))

	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}

	// ops
	health := handlers.NewHealthHandler(deps.Checks, deps.Draining)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(observability.MetricsHandler(deps.Gatherer)))
	}

	authMW := middlewares.NewAuthMiddleware(deps.Tokens, deps.Users)
	limiter := middlewares.NewRateLimiter(cfg.LoginRatePerMinute)

	var denials handlers.DenialRecorder
	if deps.Prom != nil {
		denials = deps.Prom
	}

	authHandler := handlers.NewAuthHandler(deps.Users)
	usersHandler := handlers.NewUsersHandler(deps.Users)
	recordsHandler := handlers.NewRecordsHandler(deps.Records)
	auditHandler := handlers.NewAuditHandler(deps.Audit, denials)

	api := r.Group("/")
	api.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))
	api.Use(middlewares.RequireJSON())

	// public
	public := api.Group("/")
	public.Use(limiter.RateLimiterMiddleware(middlewares.KeyByIP))
	public.POST("/login", authHandler.Login)
	public.POST("/users", usersHandler.Register)

	// everything else needs a bearer token
	private := api.Group("/")
	private.Use(authMW.RequireAuth())

	private.GET("/me", authHandler.Me)

	private.GET("/users", usersHandler.List)
	private.GET("/users/:id", usersHandler.Get)
	private.PUT("/users/:id", usersHandler.Update)
	private.DELETE("/users/:id", usersHandler.Delete)

	private.POST("/records", recordsHandler.Create)
	private.GET("/records", recordsHandler.ViewAll)
	private.GET("/records/:id", recordsHandler.Get)
	private.PUT("/records/:id", recordsHandler.Update)
	private.DELETE("/records/:id", recordsHandler.Delete)
	private.GET("/records/patient/:patientId", recordsHandler.ViewByPatient)
	private.GET("/records/doctor/:doctorId", recordsHandler.ViewByDoctor)

	private.GET("/audit/:patientId", auditHandler.History)
	private.GET("/audit/:patientId/verify", auditHandler.Verify)

	return r
}
