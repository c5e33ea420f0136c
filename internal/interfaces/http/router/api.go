package router

import (
	"time"

	partnerapp "github.com/erp/crm/internal/application/partner"
	"github.com/erp/crm/internal/infrastructure/config"
	"github.com/erp/crm/internal/infrastructure/logger"
	"github.com/erp/crm/internal/interfaces/http/handler"
	"github.com/erp/crm/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Deps is everything the HTTP surface needs
type Deps struct {
	Service *partnerapp.ConsistencyService
	DB      handler.Pinger
	Logger  *zap.Logger
	// Meter records HTTP metrics; nil disables them
	Meter   metric.Meter
	HTTP    config.HTTPConfig
	Tracing middleware.TracingConfig
	Version string
}

// NewEngine builds the gin engine with the middleware chain and every route
// mounted. Order matters:
//  1. RequestID, so every later log line and span can carry it
//  2. Recovery and the access logger
//  3. Tracing, then the span enrichers that read the route
//  4. Metrics
//  5. CORS, security headers, body limit and request deadline
func NewEngine(deps Deps) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(deps.HTTP.TrustedProxies); err != nil {
		log.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(deps.Tracing))
	engine.Use(middleware.SpanAttributes())
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(deps.Meter))

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = deps.HTTP.CORSAllowOrigins
	if len(deps.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = deps.HTTP.CORSAllowMethods
	}
	if len(deps.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = deps.HTTP.CORSAllowHeaders
	}
	cors.MaxAge = 12 * time.Hour
	engine.Use(middleware.CORSWithConfig(cors))
	engine.Use(middleware.Secure())

	maxBody := deps.HTTP.MaxBodySize
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	engine.Use(middleware.BodyLimit(maxBody))
	engine.Use(middleware.Timeout(deps.HTTP.RequestTimeout))

	systemHandler := handler.NewSystemHandler(deps.DB, deps.Version)
	engine.GET("/health", systemHandler.Health)

	r := NewRouter(engine, WithAPIVersion("v1"))
	for _, group := range CRMRoutes(deps.Service) {
		r.Register(group)
	}
	r.Register(NewDomainGroup("system", "/system").
		GET("/info", systemHandler.GetSystemInfo).
		GET("/health", systemHandler.Health))
	r.Setup()

	return engine
}

// CRMRoutes returns the route groups of the relational consistency API
func CRMRoutes(service *partnerapp.ConsistencyService) []*DomainGroup {
	clientHandler := handler.NewClientHandler(service)
	contactHandler := handler.NewContactHandler(service)
	linkHandler := handler.NewLinkHandler(service)
	tagHandler := handler.NewTagHandler(service)
	groupHandler := handler.NewGroupHandler(service)

	clients := NewDomainGroup("clients", "/clients").
		POST("", clientHandler.Create).
		GET("", clientHandler.List).
		GET("/:id", clientHandler.GetByID).
		PUT("/:id", clientHandler.Update).
		DELETE("/:id", clientHandler.Delete)

	contacts := NewDomainGroup("contacts", "/contacts").
		POST("", contactHandler.Create).
		GET("/:id", contactHandler.GetByID).
		PUT("/:id/links", contactHandler.UpdateLinks).
		DELETE("/:id", contactHandler.Delete)

	links := NewDomainGroup("links", "/links").
		POST("", linkHandler.Create).
		PUT("/:client_id/:contact_id", linkHandler.Update).
		DELETE("/:client_id/:contact_id", linkHandler.Delete).
		POST("/:client_id/:contact_id/principal", linkHandler.SetPrincipal)

	tags := NewDomainGroup("tags", "/tags").
		GET("", tagHandler.List).
		POST("", tagHandler.Create).
		PUT("/:name", tagHandler.Rename).
		DELETE("/:name", tagHandler.Delete)

	groups := NewDomainGroup("groups", "/groups").
		POST("/resolve", groupHandler.Resolve).
		GET("", groupHandler.List).
		GET("/:id", groupHandler.GetByID).
		PUT("/:id", groupHandler.Update).
		DELETE("/:id", groupHandler.Delete).
		GET("/:id/members", groupHandler.Members)

	return []*DomainGroup{clients, contacts, links, tags, groups}
}
