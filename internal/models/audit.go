package models

import (
	"time"
)

// AuditRecord is a snapshot of an inbound request, taken whether or not a
// rule matched it
type AuditRecord struct {
	ID        string              `json:"id"`
	Method    string              `json:"method"`
	Host      string              `json:"host"`
	Path      string              `json:"path"`
	Query     map[string][]string `json:"query"`
	Headers   map[string][]string `json:"headers"`
	Body      string              `json:"body"`
	Timestamp time.Time           `json:"timestamp"`

	// Filled in once the request has been answered
	MatchedRuleID string `json:"matchedRuleId,omitempty"`
	StatusCode    int    `json:"statusCode,omitempty"`
	Duration      int64  `json:"duration,omitempty"` // Duration in nanoseconds
}

// AuditFilter represents filters for querying audit records
type AuditFilter struct {
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"` // Substring of the request path
	StatusCode int    `json:"statusCode,omitempty"`
	BodyField  string `json:"bodyField,omitempty"` // gjson path that must exist in the request body
	BodyValue  string `json:"bodyValue,omitempty"` // Required value at BodyField, if set
	Limit      int    `json:"limit,omitempty"`
}
