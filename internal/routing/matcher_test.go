package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/prasenjit/proxyboy/internal/mockerr"
	"github.com/prasenjit/proxyboy/internal/models"
	"github.com/prasenjit/proxyboy/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(id, method, url string) *models.Rule {
	return &models.Rule{ID: id, Enabled: true, Method: method, URL: url, File: "/" + id + ".json"}
}

func TestMatchRules(t *testing.T) {
	rules := []*models.Rule{
		rule("users-get", "GET", "/users"),
		rule("users-post", "POST", "/users"),
		rule("any-health", "*", "/health"),
		rule("orders", "GET", "orders/list"),
	}

	tests := []struct {
		name   string
		method string
		path   string
		want   string
	}{
		{"exact", "GET", "/users", "users-get"},
		{"second method", "POST", "/users", "users-post"},
		{"method case", "get", "/users", "users-get"},
		{"suffix", "GET", "/api/v1/users", "users-get"},
		{"wildcard method", "DELETE", "/health", "any-health"},
		{"url without slash", "GET", "/shop/orders/list", "orders"},
		{"wrong method", "PUT", "/users", ""},
		{"no suffix", "GET", "/users/1", ""},
		{"empty path", "GET", "/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchRules(rules, tt.method, tt.path)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestMatchRules_FirstWins(t *testing.T) {
	rules := []*models.Rule{
		rule("first", "*", "/users"),
		rule("second", "GET", "/users"),
	}
	got := MatchRules(rules, "GET", "/users")
	require.NotNil(t, got)
	assert.Equal(t, "first", got.ID)

	// A shorter suffix declared earlier shadows a longer one
	rules = []*models.Rule{
		rule("short", "GET", "/list"),
		rule("long", "GET", "/orders/list"),
	}
	got = MatchRules(rules, "GET", "/orders/list")
	require.NotNil(t, got)
	assert.Equal(t, "short", got.ID)
}

func TestMatchRules_SkipsDisabled(t *testing.T) {
	off := rule("off", "GET", "/users")
	off.Enabled = false
	rules := []*models.Rule{off, rule("on", "GET", "/users")}

	got := MatchRules(rules, "GET", "/users")
	require.NotNil(t, got)
	assert.Equal(t, "on", got.ID)
}

func TestPathMatches(t *testing.T) {
	assert.True(t, PathMatches("", "/anything"))
	assert.True(t, PathMatches("/", "/"))
	assert.True(t, PathMatches("users", "users"))
	assert.False(t, PathMatches("/users", "/user"))
}

func TestMatcher_Match(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	disabled := rule("b", "GET", "/b")
	disabled.Enabled = false
	require.NoError(t, store.ReplaceAll(ctx, []*models.Rule{rule("a", "GET", "/a"), disabled}))

	m := NewMatcher(store)

	got, err := m.Match(ctx, "GET", "/x/a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	_, err = m.Match(ctx, "GET", "/b")
	require.Error(t, err)
	assert.Equal(t, mockerr.RouteNotFound, mockerr.KindOf(err))

	// A replacement is visible on the next lookup
	require.NoError(t, store.ReplaceAll(ctx, []*models.Rule{rule("c", "GET", "/a")}))
	got, err = m.Match(ctx, "GET", "/a")
	require.NoError(t, err)
	assert.Equal(t, "c", got.ID)
}

type brokenStore struct {
	storage.RuleStore
}

func (brokenStore) ListEnabled(ctx context.Context) ([]*models.Rule, error) {
	return nil, errors.New("connection refused")
}

func TestMatcher_StoreError(t *testing.T) {
	_, err := NewMatcher(brokenStore{}).Match(context.Background(), "GET", "/a")
	require.Error(t, err)
	assert.Equal(t, mockerr.Other, mockerr.KindOf(err))
}
