// Package mock serves canned responses for every request the admin API does
// not claim.
package mock

import (
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prasenjit/proxyboy/internal/audit"
	"github.com/prasenjit/proxyboy/internal/logging"
	"github.com/prasenjit/proxyboy/internal/mockerr"
	"github.com/prasenjit/proxyboy/internal/models"
	"github.com/prasenjit/proxyboy/internal/response"
	"github.com/prasenjit/proxyboy/internal/routing"
	"github.com/prasenjit/proxyboy/internal/stats"
	"github.com/sirupsen/logrus"
)

// StatusClientClosedRequest is recorded in the audit log for requests the
// client abandoned before a response was written
const StatusClientClosedRequest = 499

// Engine answers mock requests: audit, match, build, write
type Engine struct {
	matcher        *routing.Matcher
	builder        atomic.Pointer[response.Builder]
	statsCollector *stats.Collector
	auditService   *audit.Service
	log            logrus.FieldLogger
}

// NewEngine creates a new mock engine
func NewEngine(matcher *routing.Matcher, builder *response.Builder, statsCollector *stats.Collector, auditService *audit.Service, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	e := &Engine{
		matcher:        matcher,
		statsCollector: statsCollector,
		auditService:   auditService,
		log:            log,
	}
	e.builder.Store(builder)
	return e
}

// SetBuilder swaps the response builder, e.g. after a re-import changed the
// store path or mode. In-flight requests keep the old one.
func (e *Engine) SetBuilder(b *response.Builder) {
	e.builder.Store(b)
}

// Builder returns the active response builder
func (e *Engine) Builder() *response.Builder {
	return e.builder.Load()
}

// Handler returns an http.Handler for the mock engine
func (e *Engine) Handler() http.Handler {
	return http.HandlerFunc(e.ServeHTTP)
}

// ServeHTTP handles incoming requests
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var requestBody string
	if r.Body != nil {
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			e.log.WithError(err).Warn("failed to read request body")
		}
		requestBody = string(bodyBytes)
	}

	rec := &models.AuditRecord{
		Method:    r.Method,
		Host:      r.Host,
		Path:      r.URL.Path,
		Query:     r.URL.Query(),
		Headers:   r.Header.Clone(),
		Body:      requestBody,
		Timestamp: startTime,
	}
	e.auditService.Record(rec)

	rule, err := e.matcher.Match(r.Context(), r.Method, r.URL.Path)
	if err != nil {
		status := e.writeError(w, r, err)
		duration := time.Since(startTime)
		if mockerr.Is(err, mockerr.RouteNotFound) {
			e.statsCollector.RecordMiss(duration)
		}
		e.statsCollector.RecordError("", r.URL.Path, r.Method, status, err.Error())
		e.auditService.Complete(rec.ID, "", status, duration)
		return
	}

	desc, err := e.builder.Load().Build(r.Context(), rule)
	if err != nil && r.Context().Err() != nil {
		// Client went away during the delay; there is nobody to answer
		duration := time.Since(startTime)
		e.auditService.Complete(rec.ID, rule.ID, StatusClientClosedRequest, duration)
		e.log.WithFields(logrus.Fields{
			"rule":   rule.ID,
			"method": r.Method,
			"path":   r.URL.Path,
		}).Debug("client closed request before the response was sent")
		return
	}
	if err != nil {
		status := e.writeError(w, r, err)
		duration := time.Since(startTime)
		e.statsCollector.RecordRequest(rule, duration, true)
		e.statsCollector.RecordError(rule.ID, r.URL.Path, r.Method, status, err.Error())
		e.auditService.Complete(rec.ID, rule.ID, status, duration)
		return
	}

	w.Header().Set("Content-Type", desc.ContentType)
	w.WriteHeader(desc.StatusCode)
	if _, err := w.Write(desc.Body); err != nil {
		e.log.WithError(err).WithField("rule", rule.ID).Debug("failed to write response")
	}

	duration := time.Since(startTime)
	e.statsCollector.RecordRequest(rule, duration, desc.StatusCode >= 400)
	e.auditService.Complete(rec.ID, rule.ID, desc.StatusCode, duration)

	e.log.WithFields(logrus.Fields{
		"rule":     rule.ID,
		"method":   r.Method,
		"path":     r.URL.Path,
		"status":   desc.StatusCode,
		"duration": duration,
	}).Debug("mock response sent")
}

// writeError answers with the plain-text body mapped from err and returns
// the status used
func (e *Engine) writeError(w http.ResponseWriter, r *http.Request, err error) int {
	status, body := mockerr.HTTPStatus(err)

	entry := e.log.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("mock request failed")
	} else {
		entry.Info("no rule matched")
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body)
	return status
}
