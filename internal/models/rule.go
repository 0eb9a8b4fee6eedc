package models

import "time"

// Wildcard is the method pattern that matches every HTTP method.
const Wildcard = "*"

// Default values applied to route declarations that omit them
const (
	DefaultStatusCode  = 200
	DefaultContentType = "application/json"
)

// MaxDelay is the longest response delay, in milliseconds (one day)
const MaxDelay = 24 * 60 * 60 * 1000

// Rule is a single mock route: which requests it answers and with what
type Rule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Method      string `json:"method"`      // Uppercase method token or "*"
	URL         string `json:"url"`         // Matched as a suffix of the request path
	File        string `json:"file"`        // Response file, relative to the store root
	StatusCode  int    `json:"statusCode"`  // 100-599
	Delay       int    `json:"delay"`       // Response delay in milliseconds
	ContentType string `json:"contentType"` // Response Content-Type
	Position    int    `json:"position"`    // Store order, lower first
}

// ValidStatus reports whether code is a usable HTTP status.
func ValidStatus(code int) bool {
	return code >= 100 && code <= 599
}

// EffectiveStatus returns the rule's status code, or 200 if it is not valid.
func (r *Rule) EffectiveStatus() int {
	if ValidStatus(r.StatusCode) {
		return r.StatusCode
	}
	return DefaultStatusCode
}

// EffectiveContentType returns the rule's content type or the JSON default.
func (r *Rule) EffectiveContentType() string {
	if r.ContentType == "" {
		return DefaultContentType
	}
	return r.ContentType
}

// DelayDuration returns the response delay, clamped to [0, MaxDelay]
func (r *Rule) DelayDuration() time.Duration {
	switch {
	case r.Delay <= 0:
		return 0
	case r.Delay > MaxDelay:
		return MaxDelay * time.Millisecond
	default:
		return time.Duration(r.Delay) * time.Millisecond
	}
}

// Clone returns a copy the caller may modify
func (r *Rule) Clone() *Rule {
	c := *r
	return &c
}
