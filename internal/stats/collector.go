package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/prasenjit/proxyboy/internal/models"
)

// Collector collects and aggregates statistics
type Collector struct {
	mu              sync.RWMutex
	startTime       time.Time
	rules           map[string]*models.AtomicRuleStat // ruleID -> stats
	unmatched       int64
	unmatchedTimeNs int64
	recentErrors    []models.ErrorStat
	hourlyStats     map[string]*hourlyCounter // "YYYY-MM-DD-HH" -> counter
	maxErrors       int
	maxHourlySlots  int
}

type hourlyCounter struct {
	Hour     string
	Requests int64
	Errors   int64
}

// NewCollector creates a new statistics collector
func NewCollector() *Collector {
	return &Collector{
		startTime:      time.Now(),
		rules:          make(map[string]*models.AtomicRuleStat),
		recentErrors:   make([]models.ErrorStat, 0),
		hourlyStats:    make(map[string]*hourlyCounter),
		maxErrors:      100,
		maxHourlySlots: 168, // 7 days
	}
}

// RecordRequest records a request answered by rule
func (c *Collector) RecordRequest(rule *models.Rule, duration time.Duration, isError bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ruleStats, ok := c.rules[rule.ID]
	if !ok {
		ruleStats = &models.AtomicRuleStat{
			RuleID: rule.ID,
			Name:   rule.Name,
			Method: rule.Method,
			URL:    rule.URL,
		}
		ruleStats.MinTimeNs.Store(duration.Nanoseconds())
		c.rules[rule.ID] = ruleStats
	}

	ruleStats.TotalRequests.Add(1)
	ruleStats.TotalTimeNs.Add(duration.Nanoseconds())
	ruleStats.LastRequestTime.Store(time.Now())

	durationNs := duration.Nanoseconds()
	for {
		currentMin := ruleStats.MinTimeNs.Load()
		if durationNs >= currentMin || ruleStats.MinTimeNs.CompareAndSwap(currentMin, durationNs) {
			break
		}
	}
	for {
		currentMax := ruleStats.MaxTimeNs.Load()
		if durationNs <= currentMax || ruleStats.MaxTimeNs.CompareAndSwap(currentMax, durationNs) {
			break
		}
	}

	if isError {
		ruleStats.TotalErrors.Add(1)
	}

	c.countHourLocked(isError)
}

// RecordMiss records a request no rule matched
func (c *Collector) RecordMiss(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unmatched++
	c.unmatchedTimeNs += duration.Nanoseconds()
	c.countHourLocked(true)
}

func (c *Collector) countHourLocked(isError bool) {
	hourKey := time.Now().Format("2006-01-02-15")
	hourly, ok := c.hourlyStats[hourKey]
	if !ok {
		hourly = &hourlyCounter{Hour: hourKey}
		c.hourlyStats[hourKey] = hourly
		c.cleanupOldHourlyStats()
	}
	hourly.Requests++
	if isError {
		hourly.Errors++
	}
}

// RecordError records an error. ruleID is empty for unmatched requests.
func (c *Collector) RecordError(ruleID, path, method string, statusCode int, err string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	errorStat := models.ErrorStat{
		Timestamp:  time.Now(),
		RuleID:     ruleID,
		Path:       path,
		Method:     method,
		StatusCode: statusCode,
		Error:      err,
	}

	c.recentErrors = append(c.recentErrors, errorStat)
	if len(c.recentErrors) > c.maxErrors {
		c.recentErrors = c.recentErrors[1:]
	}
}

// cleanupOldHourlyStats removes hourly stats older than maxHourlySlots
func (c *Collector) cleanupOldHourlyStats() {
	if len(c.hourlyStats) <= c.maxHourlySlots {
		return
	}

	keys := make([]string, 0, len(c.hourlyStats))
	for k := range c.hourlyStats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	toRemove := len(keys) - c.maxHourlySlots
	for i := 0; i < toRemove; i++ {
		delete(c.hourlyStats, keys[i])
	}
}

// GetGlobalStats returns global statistics. Unmatched requests count toward
// the request total and the average response time.
func (c *Collector) GetGlobalStats(totalRules, enabledRules int) *models.GlobalStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var totalRequests, totalErrors, totalTimeNs int64

	ruleStats := make([]models.RuleStat, 0, len(c.rules))
	for _, r := range c.rules {
		stat := r.ToRuleStat()
		ruleStats = append(ruleStats, stat)
		totalRequests += stat.TotalRequests
		totalErrors += stat.TotalErrors
		totalTimeNs += r.TotalTimeNs.Load()
	}
	totalRequests += c.unmatched
	totalTimeNs += c.unmatchedTimeNs

	// Most requested first, ties by rule ID for a stable order
	sort.Slice(ruleStats, func(i, j int) bool {
		if ruleStats[i].TotalRequests != ruleStats[j].TotalRequests {
			return ruleStats[i].TotalRequests > ruleStats[j].TotalRequests
		}
		return ruleStats[i].RuleID < ruleStats[j].RuleID
	})

	topRules := ruleStats
	if len(topRules) > 10 {
		topRules = topRules[:10]
	}

	var avgResponseTimeMs float64
	if totalRequests > 0 {
		avgResponseTimeMs = float64(totalTimeNs) / float64(totalRequests) / 1e6
	}

	uptime := time.Since(c.startTime).Seconds()
	var requestsPerSecond float64
	if uptime > 0 {
		requestsPerSecond = float64(totalRequests) / uptime
	}

	recentErrors := make([]models.ErrorStat, len(c.recentErrors))
	copy(recentErrors, c.recentErrors)

	return &models.GlobalStats{
		TotalRequests:     totalRequests,
		TotalErrors:       totalErrors,
		UnmatchedRequests: c.unmatched,
		TotalRules:        totalRules,
		EnabledRules:      enabledRules,
		AvgResponseTimeMs: avgResponseTimeMs,
		RequestsPerSecond: requestsPerSecond,
		StartTime:         c.startTime,
		Uptime:            formatDuration(time.Since(c.startTime)),
		TopRules:          topRules,
		RecentErrors:      recentErrors,
		RequestsByHour:    c.buildHourlyStats(),
	}
}

// GetRuleStats returns statistics for a specific rule
func (c *Collector) GetRuleStats(ruleID string) *models.RuleStat {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if r, ok := c.rules[ruleID]; ok {
		stat := r.ToRuleStat()
		return &stat
	}

	return nil
}

// buildHourlyStats builds the last 24 hours, oldest first
func (c *Collector) buildHourlyStats() []models.HourlyStat {
	now := time.Now()
	stats := make([]models.HourlyStat, 0, 24)

	for i := 23; i >= 0; i-- {
		hour := now.Add(-time.Duration(i) * time.Hour)
		hourKey := hour.Format("2006-01-02-15")

		stat := models.HourlyStat{
			Hour: hour.Format("15:00"),
		}

		if hourly, ok := c.hourlyStats[hourKey]; ok {
			stat.Requests = hourly.Requests
			stat.Errors = hourly.Errors
		}

		stats = append(stats, stat)
	}

	return stats
}

// Reset resets all statistics
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.rules = make(map[string]*models.AtomicRuleStat)
	c.unmatched = 0
	c.unmatchedTimeNs = 0
	c.recentErrors = make([]models.ErrorStat, 0)
	c.hourlyStats = make(map[string]*hourlyCounter)
}

// formatDuration formats a duration in a human-readable format
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return d.Round(time.Minute).String()
	case d >= time.Minute:
		return d.Round(time.Second).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}
