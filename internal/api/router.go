package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prasenjit/proxyboy/internal/audit"
	"github.com/prasenjit/proxyboy/internal/logging"
	"github.com/prasenjit/proxyboy/internal/mock"
	"github.com/prasenjit/proxyboy/internal/stats"
	"github.com/prasenjit/proxyboy/internal/storage"
	"github.com/sirupsen/logrus"
)

// Options wires the router to the rest of the server
type Options struct {
	Store      storage.RuleStore
	Stats      *stats.Collector
	Audit      *audit.Service
	Engine     *mock.Engine
	ConfigFile string      // Document re-imported by POST /_api/import
	BuilderFor BuilderFunc // Optional, rebuilds the response builder after an import
	Log        logrus.FieldLogger
}

// Router handles HTTP routing
type Router struct {
	engine       *gin.Engine
	auditService *audit.Service
	mockEngine   *mock.Engine
	handler      *Handler
	log          logrus.FieldLogger
}

// NewRouter creates a new router. Paths under /_api are the admin API;
// everything else is answered by the mock engine.
func NewRouter(opts Options) *Router {
	gin.SetMode(gin.ReleaseMode)

	if opts.Log == nil {
		opts.Log = logging.Nop()
	}

	r := &Router{
		engine:       gin.New(),
		auditService: opts.Audit,
		mockEngine:   opts.Engine,
		log:          opts.Log,
	}

	// Mock URLs are matched verbatim
	r.engine.RedirectTrailingSlash = false
	r.engine.RedirectFixedPath = false
	r.engine.HandleMethodNotAllowed = false

	r.handler = NewHandler(opts)

	r.engine.Use(gin.Recovery())
	r.engine.Use(requestLogger(opts.Log))

	r.setupRoutes()

	return r
}

// setupRoutes configures all routes
func (r *Router) setupRoutes() {
	api := r.engine.Group("/_api")
	api.Use(corsMiddleware())
	{
		// Preflight requests are answered by corsMiddleware
		api.OPTIONS("/*path", func(c *gin.Context) {})

		// Rules
		api.GET("/rules", r.handler.ListRules)
		api.GET("/rules/match", r.handler.MatchRule)
		api.POST("/import", r.handler.Import)

		// Statistics
		api.GET("/stats", r.handler.GetGlobalStats)
		api.GET("/stats/rules/:id", r.handler.GetRuleStats)
		api.POST("/stats/reset", r.handler.ResetStats)

		// Audit
		api.GET("/audit", r.handler.ListAudit)
		api.GET("/audit/stream", gin.WrapH(audit.NewWebSocketHandler(r.auditService)))
		api.GET("/audit/:id", r.handler.GetAudit)
		api.DELETE("/audit", r.handler.ClearAudit)

		// OpenAPI description of the rules
		api.GET("/openapi.json", r.handler.OpenAPIJSON)
		api.GET("/openapi.yaml", r.handler.OpenAPIYAML)

		// Health
		api.GET("/health", r.handler.HealthCheck)
	}

	r.engine.NoRoute(mockCORSMiddleware(), func(c *gin.Context) {
		r.mockEngine.ServeHTTP(c.Writer, c.Request)
	})
}

// Handler returns the http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

func setCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
	c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
	c.Header("Access-Control-Max-Age", "86400")
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		setCORSHeaders(c)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// mockCORSMiddleware allows any origin on mock routes. Only real preflights
// (OPTIONS with Access-Control-Request-Method) are answered here; a plain
// OPTIONS request still goes to the rules.
func mockCORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		setCORSHeaders(c)
		if h := c.GetHeader("Access-Control-Request-Headers"); h != "" {
			c.Header("Access-Control-Allow-Headers", h)
		}
		c.Header("Access-Control-Expose-Headers", "*")

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger logs every request once it has been answered
func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
			"client":   c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Warn("request completed with errors")
			return
		}
		entry.Debug("request completed")
	}
}
