package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/prasenjit/proxyboy/internal/models"
)

// RuleStore holds the ordered set of mock rules
type RuleStore interface {
	// ListEnabled returns enabled rules in store order
	ListEnabled(ctx context.Context) ([]*models.Rule, error)
	// ListAll returns every rule in store order
	ListAll(ctx context.Context) ([]*models.Rule, error)
	// ReplaceAll clears the store and inserts rules, atomically
	ReplaceAll(ctx context.Context, rules []*models.Rule) error
	// Insert appends a single rule
	Insert(ctx context.Context, rule *models.Rule) error
}

// AuditStore persists audit records. It is write-only.
type AuditStore interface {
	InsertAuditRecord(ctx context.Context, rec *models.AuditRecord) error
}

// Storage is a backend providing both stores
type Storage interface {
	RuleStore
	AuditStore

	// Utility
	Close() error
}

// validateRule checks the invariants every stored rule must hold
func validateRule(r *models.Rule) error {
	if r == nil {
		return fmt.Errorf("rule is nil")
	}
	if r.Method == "" {
		return fmt.Errorf("rule %q: method is empty", r.URL)
	}
	if strings.Contains(r.Method, ",") {
		return fmt.Errorf("rule %q: method %q is a list, expand it before storing", r.URL, r.Method)
	}
	if r.File == "" {
		return fmt.Errorf("rule %s %q: response file is empty", r.Method, r.URL)
	}
	if r.Delay < 0 {
		return fmt.Errorf("rule %s %q: negative delay %d", r.Method, r.URL, r.Delay)
	}
	return nil
}

// prepareRules validates rules, assigns missing IDs and numbers them from
// start in slice order. The returned slice holds copies.
func prepareRules(rules []*models.Rule, start int) ([]*models.Rule, error) {
	prepared := make([]*models.Rule, 0, len(rules))
	for i, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, err
		}
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.Position = start + i
		if !models.ValidStatus(r.StatusCode) {
			r.StatusCode = models.DefaultStatusCode
		}
		if r.ContentType == "" {
			r.ContentType = models.DefaultContentType
		}
		prepared = append(prepared, r.Clone())
	}
	return prepared, nil
}

// cloneRules copies a rule slice, optionally keeping only enabled rules
func cloneRules(rules []*models.Rule, enabledOnly bool) []*models.Rule {
	result := make([]*models.Rule, 0, len(rules))
	for _, r := range rules {
		if enabledOnly && !r.Enabled {
			continue
		}
		result = append(result, r.Clone())
	}
	return result
}
