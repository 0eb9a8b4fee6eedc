package api

import (
	"io"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"github.com/prasenjit/proxyboy/internal/audit"
	"github.com/prasenjit/proxyboy/internal/importer"
	"github.com/prasenjit/proxyboy/internal/logging"
	"github.com/prasenjit/proxyboy/internal/mock"
	"github.com/prasenjit/proxyboy/internal/mockerr"
	"github.com/prasenjit/proxyboy/internal/openapi"
	"github.com/prasenjit/proxyboy/internal/response"
	"github.com/prasenjit/proxyboy/internal/routing"
	"github.com/prasenjit/proxyboy/internal/stats"
	"github.com/prasenjit/proxyboy/internal/storage"
	"github.com/sirupsen/logrus"
)

const defaultAuditLimit = 100

// BuilderFunc returns the response builder to use after an import
type BuilderFunc func(settings importer.Settings) *response.Builder

// Handler handles API requests
type Handler struct {
	store          storage.RuleStore
	statsCollector *stats.Collector
	auditService   *audit.Service
	mockEngine     *mock.Engine
	matcher        *routing.Matcher
	importer       *importer.Importer
	configFile     string
	builderFor     BuilderFunc
	log            logrus.FieldLogger
}

// NewHandler creates a new API handler
func NewHandler(opts Options) *Handler {
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	return &Handler{
		store:          opts.Store,
		statsCollector: opts.Stats,
		auditService:   opts.Audit,
		mockEngine:     opts.Engine,
		matcher:        routing.NewMatcher(opts.Store),
		importer:       importer.New(opts.Store, opts.Log),
		configFile:     opts.ConfigFile,
		builderFor:     opts.BuilderFor,
		log:            opts.Log,
	}
}

// ListRules returns every rule in store order
func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.store.ListAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rules)
}

// MatchRule reports which rule would answer ?method=&path=
func (h *Handler) MatchRule(c *gin.Context) {
	method := c.DefaultQuery("method", http.MethodGet)
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	rule, err := h.matcher.Match(c.Request.Context(), method, path)
	if err != nil {
		status, msg := mockerr.HTTPStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rule": rule,
		"file": response.WithMode(rule.File, h.mockEngine.Builder().Mode()),
	})
}

// Import re-imports the configuration document. A JSON document in the
// request body is imported instead of the configured file.
func (h *Handler) Import(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var result *importer.Result
	source := h.configFile
	if len(body) > 0 {
		source = "request body"
		result, err = h.importer.ImportBytes(ctx, body, nil)
	} else {
		result, err = h.importer.ImportFile(ctx, h.configFile, nil)
	}
	if err != nil {
		c.JSON(importStatus(err), gin.H{"error": err.Error(), "kind": mockerr.KindOf(err).String()})
		return
	}

	if h.builderFor != nil {
		h.mockEngine.SetBuilder(h.builderFor(result.Settings))
	}

	builder := h.mockEngine.Builder()
	h.log.WithFields(logrus.Fields{
		"source": source,
		"rules":  len(result.Rules),
		"store":  builder.Root(),
		"mode":   builder.Mode(),
	}).Info("rules re-imported")

	c.JSON(http.StatusOK, gin.H{
		"source":    source,
		"imported":  len(result.Rules),
		"warnings":  result.Warnings,
		"storePath": builder.Root(),
		"mode":      builder.Mode(),
	})
}

func importStatus(err error) int {
	switch mockerr.KindOf(err) {
	case mockerr.ConfigParse:
		return http.StatusBadRequest
	case mockerr.ConfigRead:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// GetGlobalStats returns global statistics
func (h *Handler) GetGlobalStats(c *gin.Context) {
	rules, err := h.store.ListAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	enabled := 0
	for _, r := range rules {
		if r.Enabled {
			enabled++
		}
	}

	stats := h.statsCollector.GetGlobalStats(len(rules), enabled)
	c.JSON(http.StatusOK, stats)
}

// GetRuleStats returns statistics for a rule
func (h *Handler) GetRuleStats(c *gin.Context) {
	id := c.Param("id")

	stats := h.statsCollector.GetRuleStats(id)
	if stats == nil {
		c.JSON(http.StatusOK, gin.H{"message": "No statistics available"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ResetStats resets all statistics
func (h *Handler) ResetStats(c *gin.Context) {
	h.statsCollector.Reset()
	c.JSON(http.StatusOK, gin.H{"message": "Statistics reset"})
}

// ListAudit returns recent audit records, newest first. field and value
// select records whose JSON body has that gjson path (and value).
func (h *Handler) ListAudit(c *gin.Context) {
	filter, err := audit.ParseFilter(c.Request.URL.Query(), defaultAuditLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.auditService.List(filter))
}

// GetAudit returns a single audit record
func (h *Handler) GetAudit(c *gin.Context) {
	id := c.Param("id")

	rec := h.auditService.Get(id)
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Audit record not found"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// ClearAudit clears in-memory audit records
func (h *Handler) ClearAudit(c *gin.Context) {
	h.auditService.Clear()
	c.JSON(http.StatusOK, gin.H{"message": "Audit records cleared"})
}

// OpenAPIJSON describes the enabled rules as an OpenAPI JSON document
func (h *Handler) OpenAPIJSON(c *gin.Context) {
	h.renderOpenAPI(c, "application/json", openapi.ToJSON)
}

// OpenAPIYAML describes the enabled rules as an OpenAPI YAML document
func (h *Handler) OpenAPIYAML(c *gin.Context) {
	h.renderOpenAPI(c, "application/yaml", openapi.ToYAML)
}

func (h *Handler) renderOpenAPI(c *gin.Context, contentType string, render func(*openapi3.T) ([]byte, error)) {
	rules, err := h.store.ListAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	data, err := render(openapi.Export(rules, openapi.Info{}))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Data(http.StatusOK, contentType, data)
}

// HealthCheck returns health status
func (h *Handler) HealthCheck(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	}

	if _, err := h.store.ListEnabled(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["error"] = err.Error()
	}

	c.JSON(status, body)
}
