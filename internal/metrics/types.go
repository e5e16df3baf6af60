// Package metrics records per-request outcomes and derives statistics,
// reports and CSV exports from them. Live process counters are exposed
// through Prometheus instruments.
package metrics

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Method tells which path produced an answer.
type Method string

const (
	MethodFast       Method = "fast"
	MethodFastCached Method = "fast-cached"
	MethodFallback   Method = "fallback"
	MethodError      Method = "error"
)

// Methods lists every method in report order.
var Methods = []Method{MethodFast, MethodFastCached, MethodFallback, MethodError}

// MaxQueryLength bounds the stored query text.
const MaxQueryLength = 200

// MetricRecord is one request outcome. Records are never updated.
type MetricRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	Query            string    `json:"query"`
	Intent           string    `json:"intent"`
	Confidence       float64   `json:"confidence"`
	ProcessingTimeMs float64   `json:"processing_time_ms"`
	Method           Method    `json:"method"`
	Success          bool      `json:"success"`
	FromCache        bool      `json:"from_cache"`
	DataPointCount   int       `json:"data_point_count"`
	UserID           string    `json:"user_id,omitempty"`
	Cost             *float64  `json:"cost,omitempty"`
}

// SanitizeQuery collapses whitespace, drops control characters and
// truncates to MaxQueryLength runes.
func SanitizeQuery(q string) string {
	q = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, q)
	q = strings.Join(strings.Fields(q), " ")
	if utf8.RuneCountInString(q) <= MaxQueryLength {
		return q
	}
	return string([]rune(q)[:MaxQueryLength])
}

// Window is a lookback period for statistics.
type Window string

const (
	WindowHour  Window = "1h"
	WindowDay   Window = "24h"
	WindowWeek  Window = "7d"
	WindowMonth Window = "30d"
	WindowAll   Window = "all"
)

var windowDurations = map[Window]time.Duration{
	WindowHour:  time.Hour,
	WindowDay:   24 * time.Hour,
	WindowWeek:  7 * 24 * time.Hour,
	WindowMonth: 30 * 24 * time.Hour,
	WindowAll:   0,
}

// ParseWindow validates a window name. Empty means 24h.
func ParseWindow(s string) (Window, error) {
	if s == "" {
		return WindowDay, nil
	}
	w := Window(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := windowDurations[w]; !ok {
		return "", fmt.Errorf("invalid window %q (must be 1h, 24h, 7d, 30d, or all)", s)
	}
	return w, nil
}

// Cutoff returns the earliest timestamp inside the window. The zero time is
// returned for WindowAll.
func (w Window) Cutoff(now time.Time) time.Time {
	d := windowDurations[w]
	if d == 0 {
		return time.Time{}
	}
	return now.Add(-d)
}

// ResponseTimes summarises processing times in milliseconds.
type ResponseTimes struct {
	Avg    float64 `json:"avg"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// CacheStats describes cache effectiveness.
type CacheStats struct {
	Hits          int     `json:"hits"`
	HitRate       float64 `json:"hit_rate"`
	AvgTimeSaveMs float64 `json:"avg_time_saved_ms"`
}

// MethodStats aggregates one answering method.
type MethodStats struct {
	Method     Method  `json:"method"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	AvgTimeMs  float64 `json:"avg_time_ms"`
}

// IntentCount is one intent frequency entry.
type IntentCount struct {
	Intent string `json:"intent"`
	Count  int    `json:"count"`
}

// UserCount is one user frequency entry.
type UserCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// UserStats summarises per-user activity.
type UserStats struct {
	Unique   int            `json:"unique"`
	PerUser  map[string]int `json:"per_user"`
	TopUsers []UserCount    `json:"top_users"`
}

// CostStats aggregates cost per method.
type CostStats struct {
	Method Method  `json:"method"`
	Total  float64 `json:"total"`
	Avg    float64 `json:"avg"`
	Count  int     `json:"count"`
}

// Direction of a trend.
type Direction string

const (
	Improving  Direction = "improving"
	Degrading  Direction = "degrading"
	Increasing Direction = "increasing"
	Decreasing Direction = "decreasing"
	Stable     Direction = "stable"
)

// Trends compares the first and second halves of a window.
type Trends struct {
	ResponseTime Direction `json:"response_time"`
	CacheHitRate Direction `json:"cache_hit_rate"`
	Volume       Direction `json:"volume"`
}

// Stats is derived on demand and never persisted.
type Stats struct {
	Window        Window        `json:"window"`
	Total         int           `json:"total"`
	SuccessRate   float64       `json:"success_rate"`
	ResponseTimes ResponseTimes `json:"response_times"`
	Cache         CacheStats    `json:"cache"`
	Methods       []MethodStats `json:"methods"`
	TopIntents    []IntentCount `json:"top_intents"`
	Intents       []IntentCount `json:"intents"`
	Users         UserStats     `json:"users"`
	Costs         []CostStats   `json:"costs,omitempty"`
	Trends        Trends        `json:"trends"`
}
