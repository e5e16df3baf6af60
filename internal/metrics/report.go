package metrics

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CSVHeader lists the export columns in order.
var CSVHeader = []string{
	"timestamp", "query", "intent", "confidence", "processing_time_ms",
	"method", "success", "from_cache", "data_point_count", "user_id",
}

// Report renders Stats over window as a plain-text report.
func (c *Collector) Report(ctx context.Context, w Window) string {
	return FormatReport(c.Stats(ctx, w), c.now())
}

// ExportCSV renders the records inside window as CSV.
func (c *Collector) ExportCSV(ctx context.Context, w Window) (string, error) {
	return FormatCSV(c.Records(ctx, w))
}

// FormatReport renders s as a plain-text report.
func FormatReport(s Stats, now time.Time) string {
	var sb strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&sb, format+"\n", args...)
	}

	line("Query performance report (window: %s, generated %s)", s.Window, now.UTC().Format(time.RFC3339))
	line("")
	if s.Total == 0 {
		line("No queries recorded in this window.")
		return strings.TrimRight(sb.String(), "\n")
	}

	line("Queries:      %d (success %.1f%%)", s.Total, s.SuccessRate)
	rt := s.ResponseTimes
	line("Response ms:  avg %.2f, median %.2f, p95 %.2f, min %.2f, max %.2f", rt.Avg, rt.Median, rt.P95, rt.Min, rt.Max)
	line("Cache:        %d hits (%.1f%%), avg time saved %.2f ms", s.Cache.Hits, s.Cache.HitRate, s.Cache.AvgTimeSaveMs)

	line("")
	line("Methods:")
	for _, m := range s.Methods {
		line("  %-12s %5d  %5.1f%%  avg %.2f ms", m.Method, m.Count, m.Percentage, m.AvgTimeMs)
	}

	if len(s.TopIntents) > 0 {
		line("")
		line("Top intents:")
		for i, ic := range s.TopIntents {
			line("  %2d. %-24s %d", i+1, ic.Intent, ic.Count)
		}
	}

	if s.Users.Unique > 0 {
		line("")
		line("Users: %d unique", s.Users.Unique)
		for _, u := range s.Users.TopUsers {
			line("  %-24s %d", u.UserID, u.Count)
		}
	}

	if len(s.Costs) > 0 {
		line("")
		line("Costs:")
		for _, cs := range s.Costs {
			line("  %-12s total %.4f, avg %.4f over %d", cs.Method, cs.Total, cs.Avg, cs.Count)
		}
	}

	line("")
	line("Trends: response time %s, cache hit rate %s, volume %s", s.Trends.ResponseTime, s.Trends.CacheHitRate, s.Trends.Volume)
	return strings.TrimRight(sb.String(), "\n")
}

// FormatCSV renders records with CSVHeader columns.
func FormatCSV(records []MetricRecord) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(CSVHeader); err != nil {
		return "", err
	}
	for _, r := range records {
		row := []string{
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			r.Query,
			r.Intent,
			strconv.FormatFloat(r.Confidence, 'f', -1, 64),
			strconv.FormatFloat(r.ProcessingTimeMs, 'f', -1, 64),
			string(r.Method),
			strconv.FormatBool(r.Success),
			strconv.FormatBool(r.FromCache),
			strconv.Itoa(r.DataPointCount),
			r.UserID,
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("writing csv: %w", err)
	}
	return sb.String(), nil
}
