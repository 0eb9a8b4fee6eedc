// Package routing selects the rule that answers a request.
package routing

import (
	"context"
	"strings"

	"github.com/prasenjit/proxyboy/internal/mockerr"
	"github.com/prasenjit/proxyboy/internal/models"
	"github.com/prasenjit/proxyboy/internal/storage"
)

// Matcher resolves requests against the enabled rules of a store
type Matcher struct {
	store storage.RuleStore
}

// NewMatcher creates a matcher reading from store
func NewMatcher(store storage.RuleStore) *Matcher {
	return &Matcher{store: store}
}

// Match returns the first enabled rule, in store order, that accepts method
// and path. The rule set is read on every call so imports are seen at once.
func (m *Matcher) Match(ctx context.Context, method, path string) (*models.Rule, error) {
	rules, err := m.store.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	rule := MatchRules(rules, method, path)
	if rule == nil {
		return nil, mockerr.NotFound(method, path)
	}
	return rule, nil
}

// MatchRules is the matching core: the first rule whose method and URL
// accept the request wins. Disabled rules are skipped.
func MatchRules(rules []*models.Rule, method, path string) *models.Rule {
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if MethodMatches(r.Method, method) && PathMatches(r.URL, path) {
			return r
		}
	}
	return nil
}

// MethodMatches reports whether a rule's method pattern accepts method
func MethodMatches(pattern, method string) bool {
	return pattern == models.Wildcard || strings.EqualFold(pattern, method)
}

// PathMatches reports whether path ends with the rule URL. Leading slashes
// are ignored on both sides, so "/api/users" matches the URL "users" and
// "/users", and an empty URL matches everything.
func PathMatches(url, path string) bool {
	return strings.HasSuffix(strings.TrimPrefix(path, "/"), strings.TrimPrefix(url, "/"))
}
