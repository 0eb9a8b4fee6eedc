package models

import (
	"testing"
	"time"
)

func TestAtomicRuleStat_ToRuleStat(t *testing.T) {
	ars := &AtomicRuleStat{
		RuleID: "rule-1",
		Name:   "users",
		Method: "GET",
		URL:    "/users",
	}

	ars.TotalRequests.Store(100)
	ars.TotalErrors.Store(5)
	ars.TotalTimeNs.Store(1000000000) // 1 second = 1000ms
	ars.MinTimeNs.Store(5000000)      // 5ms
	ars.MaxTimeNs.Store(50000000)     // 50ms
	ars.LastRequestTime.Store(time.Now())

	stat := ars.ToRuleStat()

	if stat.RuleID != "rule-1" {
		t.Errorf("Expected rule ID 'rule-1', got %q", stat.RuleID)
	}
	if stat.Name != "users" {
		t.Errorf("Expected name 'users', got %q", stat.Name)
	}
	if stat.Method != "GET" || stat.URL != "/users" {
		t.Errorf("Expected GET /users, got %s %s", stat.Method, stat.URL)
	}
	if stat.TotalRequests != 100 {
		t.Errorf("Expected 100 requests, got %d", stat.TotalRequests)
	}
	if stat.TotalErrors != 5 {
		t.Errorf("Expected 5 errors, got %d", stat.TotalErrors)
	}
	// Avg should be 1000ms / 100 = 10ms
	if stat.AvgResponseTimeMs != 10.0 {
		t.Errorf("Expected avg 10ms, got %v", stat.AvgResponseTimeMs)
	}
	if stat.MinResponseTimeMs != 5.0 {
		t.Errorf("Expected min 5ms, got %v", stat.MinResponseTimeMs)
	}
	if stat.MaxResponseTimeMs != 50.0 {
		t.Errorf("Expected max 50ms, got %v", stat.MaxResponseTimeMs)
	}
	if stat.LastRequestTime == "" {
		t.Error("Expected non-empty last request time")
	}
}

func TestAtomicRuleStat_ZeroRequests(t *testing.T) {
	ars := &AtomicRuleStat{RuleID: "rule-1", Method: "GET", URL: "/users"}

	stat := ars.ToRuleStat()

	if stat.TotalRequests != 0 {
		t.Errorf("Expected 0 requests, got %d", stat.TotalRequests)
	}
	if stat.AvgResponseTimeMs != 0 {
		t.Errorf("Expected avg 0, got %v", stat.AvgResponseTimeMs)
	}
	if stat.LastRequestTime != "" {
		t.Errorf("Expected empty last request time, got %q", stat.LastRequestTime)
	}
}

func TestRule_EffectiveStatus(t *testing.T) {
	tests := []struct {
		code int
		want int
	}{
		{200, 200},
		{404, 404},
		{100, 100},
		{599, 599},
		{0, 200},
		{99, 200},
		{600, 200},
		{-1, 200},
	}

	for _, tt := range tests {
		r := &Rule{StatusCode: tt.code}
		if got := r.EffectiveStatus(); got != tt.want {
			t.Errorf("EffectiveStatus(%d) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestRule_EffectiveContentType(t *testing.T) {
	r := &Rule{}
	if got := r.EffectiveContentType(); got != DefaultContentType {
		t.Errorf("Expected default content type, got %q", got)
	}

	r.ContentType = "text/plain"
	if got := r.EffectiveContentType(); got != "text/plain" {
		t.Errorf("Expected 'text/plain', got %q", got)
	}
}

func TestRule_DelayDuration(t *testing.T) {
	tests := []struct {
		delay int
		want  time.Duration
	}{
		{0, 0},
		{-10, 0},
		{250, 250 * time.Millisecond},
		{MaxDelay, 24 * time.Hour},
		{9300000000000, 24 * time.Hour},
	}

	for _, tt := range tests {
		r := &Rule{Delay: tt.delay}
		if got := r.DelayDuration(); got != tt.want {
			t.Errorf("DelayDuration(%d) = %v, want %v", tt.delay, got, tt.want)
		}
	}
}

func TestRule_Clone(t *testing.T) {
	r := &Rule{ID: "a", Method: "GET"}
	c := r.Clone()
	c.Method = "POST"

	if r.Method != "GET" {
		t.Error("Clone shares state with the original")
	}
}
