package metrics

import (
	"math"
	"sort"
	"time"
)

// Trend thresholds. Relative changes apply to response time and volume,
// absolute percentage points to the cache hit rate.
const (
	trendRelative  = 0.10
	trendHitPoints = 5.0

	topIntentCount = 10
	topUserCount   = 5
)

// Compute derives Stats from records that already fall inside w.
func Compute(records []MetricRecord, w Window, now time.Time) Stats {
	s := Stats{Window: w, Total: len(records), Methods: []MethodStats{}, TopIntents: []IntentCount{}, Intents: []IntentCount{}}
	s.Users.PerUser = map[string]int{}
	s.Users.TopUsers = []UserCount{}
	s.Trends = Trends{ResponseTime: Stable, CacheHitRate: Stable, Volume: Stable}
	if len(records) == 0 {
		return s
	}

	times := make([]float64, 0, len(records))
	succeeded := 0
	for _, r := range records {
		times = append(times, r.ProcessingTimeMs)
		if r.Success {
			succeeded++
		}
	}
	s.SuccessRate = percent(succeeded, len(records))
	s.ResponseTimes = responseTimes(times)
	s.Cache = cacheStats(records)
	s.Methods = methodStats(records)
	s.Intents = intentRanking(records)
	s.TopIntents = s.Intents
	if len(s.TopIntents) > topIntentCount {
		s.TopIntents = s.TopIntents[:topIntentCount]
	}
	s.Users = userStats(records)
	s.Costs = costStats(records)
	s.Trends = trends(records, w, now)
	return s
}

func responseTimes(times []float64) ResponseTimes {
	sorted := append([]float64(nil), times...)
	sort.Float64s(sorted)

	n := len(sorted)
	var sum float64
	for _, t := range sorted {
		sum += t
	}
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return ResponseTimes{
		Avg:    round(sum/float64(n), 2),
		Median: round(median, 2),
		P95:    round(percentile(sorted, 95), 2),
		Min:    sorted[0],
		Max:    sorted[n-1],
	}
}

// percentile uses the nearest-rank method over sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func cacheStats(records []MetricRecord) CacheStats {
	var cs CacheStats
	var cachedSum, freshSum float64
	var fresh int
	for _, r := range records {
		switch {
		case r.FromCache:
			cs.Hits++
			cachedSum += r.ProcessingTimeMs
		case r.Method == MethodFast && r.Success:
			fresh++
			freshSum += r.ProcessingTimeMs
		}
	}
	cs.HitRate = percent(cs.Hits, len(records))
	if cs.Hits > 0 && fresh > 0 {
		saved := freshSum/float64(fresh) - cachedSum/float64(cs.Hits)
		cs.AvgTimeSaveMs = round(math.Max(saved, 0), 2)
	}
	return cs
}

func methodStats(records []MetricRecord) []MethodStats {
	counts := map[Method]int{}
	sums := map[Method]float64{}
	for _, r := range records {
		counts[r.Method]++
		sums[r.Method] += r.ProcessingTimeMs
	}
	out := []MethodStats{}
	for _, m := range Methods {
		n := counts[m]
		if n == 0 {
			continue
		}
		out = append(out, MethodStats{
			Method:     m,
			Count:      n,
			Percentage: percent(n, len(records)),
			AvgTimeMs:  round(sums[m]/float64(n), 2),
		})
	}
	return out
}

func intentRanking(records []MetricRecord) []IntentCount {
	counts := map[string]int{}
	for _, r := range records {
		if r.Intent != "" {
			counts[r.Intent]++
		}
	}
	out := make([]IntentCount, 0, len(counts))
	for intent, n := range counts {
		out = append(out, IntentCount{Intent: intent, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Intent < out[j].Intent
	})
	return out
}

func userStats(records []MetricRecord) UserStats {
	us := UserStats{PerUser: map[string]int{}, TopUsers: []UserCount{}}
	for _, r := range records {
		if r.UserID != "" {
			us.PerUser[r.UserID]++
		}
	}
	us.Unique = len(us.PerUser)
	for id, n := range us.PerUser {
		us.TopUsers = append(us.TopUsers, UserCount{UserID: id, Count: n})
	}
	sort.Slice(us.TopUsers, func(i, j int) bool {
		if us.TopUsers[i].Count != us.TopUsers[j].Count {
			return us.TopUsers[i].Count > us.TopUsers[j].Count
		}
		return us.TopUsers[i].UserID < us.TopUsers[j].UserID
	})
	if len(us.TopUsers) > topUserCount {
		us.TopUsers = us.TopUsers[:topUserCount]
	}
	return us
}

func costStats(records []MetricRecord) []CostStats {
	totals := map[Method]float64{}
	counts := map[Method]int{}
	for _, r := range records {
		if r.Cost == nil {
			continue
		}
		totals[r.Method] += *r.Cost
		counts[r.Method]++
	}
	if len(counts) == 0 {
		return nil
	}
	var out []CostStats
	for _, m := range Methods {
		if n := counts[m]; n > 0 {
			out = append(out, CostStats{Method: m, Total: round(totals[m], 6), Avg: round(totals[m]/float64(n), 6), Count: n})
		}
	}
	return out
}

// trends splits the window at its midpoint and compares the halves. For
// WindowAll the window starts at the oldest record.
func trends(records []MetricRecord, w Window, now time.Time) Trends {
	t := Trends{ResponseTime: Stable, CacheHitRate: Stable, Volume: Stable}

	start := w.Cutoff(now)
	if start.IsZero() {
		start = records[0].Timestamp
		for _, r := range records {
			if r.Timestamp.Before(start) {
				start = r.Timestamp
			}
		}
	}
	mid := start.Add(now.Sub(start) / 2)

	var first, second []MetricRecord
	for _, r := range records {
		if r.Timestamp.Before(mid) {
			first = append(first, r)
		} else {
			second = append(second, r)
		}
	}

	switch {
	case len(second) > int(float64(len(first))*(1+trendRelative)):
		t.Volume = Increasing
	case len(second) < int(math.Ceil(float64(len(first))*(1-trendRelative))):
		t.Volume = Decreasing
	}

	if len(first) == 0 || len(second) == 0 {
		return t
	}

	a, b := avgTime(first), avgTime(second)
	switch {
	case b < a*(1-trendRelative):
		t.ResponseTime = Improving
	case b > a*(1+trendRelative):
		t.ResponseTime = Degrading
	}

	ha, hb := cacheStats(first).HitRate, cacheStats(second).HitRate
	switch {
	case hb-ha > trendHitPoints:
		t.CacheHitRate = Improving
	case ha-hb > trendHitPoints:
		t.CacheHitRate = Degrading
	}
	return t
}

func avgTime(records []MetricRecord) float64 {
	var sum float64
	for _, r := range records {
		sum += r.ProcessingTimeMs
	}
	return sum / float64(len(records))
}

// percent returns n/total as a percentage rounded to one decimal.
func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round(float64(n)*100/float64(total), 1)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
