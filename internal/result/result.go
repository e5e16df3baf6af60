// Package result defines the typed outcome of a data query.
//
// A QueryResult is a tagged union: Kind names the shape and exactly one of
// the variant pointers is set on success. Failed results carry no variant.
package result

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/ricesearch/quickquery/internal/pkg/errors"
)

// Kind discriminates the result shape.
type Kind string

const (
	KindCount    Kind = "count"
	KindList     Kind = "list"
	KindGrouped  Kind = "grouped"
	KindStatus   Kind = "status"
	KindAnalysis Kind = "analysis"
)

// Item is one entity in a count or list result.
type Item struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Value    float64    `json:"value,omitempty"`
	Unit     string     `json:"unit,omitempty"`
	Status   string     `json:"status,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
	Subtitle string     `json:"subtitle,omitempty"`
}

// Count is the result of a count or count-with-filter query.
type Count struct {
	Entity string `json:"entity"`
	Count  int    `json:"count"`

	// Total is the collection size before filtering. Equal to Count for
	// unfiltered counts.
	Total int `json:"total"`

	// Matches lists filtered items, when a filter was applied.
	Matches []Item `json:"matches,omitempty"`
}

// List is the result of a listing or time-window query.
type List struct {
	Entity string `json:"entity"`
	Items  []Item `json:"items"`
	Total  int    `json:"total"`
}

// Group is one bucket of a grouped result.
type Group struct {
	Key   string  `json:"key"`
	Count int     `json:"count"`
	Sum   float64 `json:"sum,omitempty"`
}

// Grouped is the result of a group-by query. Groups are ordered by Count,
// descending.
type Grouped struct {
	Entity  string  `json:"entity"`
	GroupBy string  `json:"group_by"`
	Groups  []Group `json:"groups"`
	Total   int     `json:"total"`
}

// StatusBucket is one status with its share of the total.
type StatusBucket struct {
	Status     string  `json:"status"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Status is the result of a status breakdown query.
type Status struct {
	Entity    string         `json:"entity"`
	Total     int            `json:"total"`
	Breakdown []StatusBucket `json:"breakdown"`
}

// Metric is a named figure in an analysis.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// Analysis is the result of an analytic query.
type Analysis struct {
	Topic   string   `json:"topic"`
	Metrics []Metric `json:"metrics"`
	Notes   []string `json:"notes,omitempty"`
}

// QueryResult is the outcome of executing one intent.
type QueryResult struct {
	Kind    Kind   `json:"kind,omitempty"`
	Intent  string `json:"intent"`
	Success bool   `json:"success"`

	Count    *Count    `json:"count,omitempty"`
	List     *List     `json:"list,omitempty"`
	Grouped  *Grouped  `json:"grouped,omitempty"`
	Status   *Status   `json:"status,omitempty"`
	Analysis *Analysis `json:"analysis,omitempty"`

	ErrorKind  apperrors.Kind `json:"error_kind,omitempty"`
	Error      string         `json:"error,omitempty"`
	RetryCount int            `json:"retry_count"`
	Warnings   []string       `json:"warnings,omitempty"`
}

// NewCount builds a successful count result.
func NewCount(intent string, c *Count) *QueryResult {
	return &QueryResult{Kind: KindCount, Intent: intent, Success: true, Count: c}
}

// NewList builds a successful list result.
func NewList(intent string, l *List) *QueryResult {
	return &QueryResult{Kind: KindList, Intent: intent, Success: true, List: l}
}

// NewGrouped builds a successful grouped result.
func NewGrouped(intent string, g *Grouped) *QueryResult {
	return &QueryResult{Kind: KindGrouped, Intent: intent, Success: true, Grouped: g}
}

// NewStatus builds a successful status breakdown result.
func NewStatus(intent string, s *Status) *QueryResult {
	return &QueryResult{Kind: KindStatus, Intent: intent, Success: true, Status: s}
}

// NewAnalysis builds a successful analysis result.
func NewAnalysis(intent string, a *Analysis) *QueryResult {
	return &QueryResult{Kind: KindAnalysis, Intent: intent, Success: true, Analysis: a}
}

// Failure builds a failed result.
func Failure(intent string, kind apperrors.Kind, message string, retries int) *QueryResult {
	return &QueryResult{
		Intent:     intent,
		Success:    false,
		ErrorKind:  kind,
		Error:      message,
		RetryCount: retries,
	}
}

// Warn appends a warning.
func (r *QueryResult) Warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// DataPoints returns the number of data points the result carries.
func (r *QueryResult) DataPoints() int {
	if r == nil || !r.Success {
		return 0
	}
	switch r.Kind {
	case KindCount:
		if len(r.Count.Matches) > 0 {
			return len(r.Count.Matches)
		}
		return 1
	case KindList:
		return len(r.List.Items)
	case KindGrouped:
		return len(r.Grouped.Groups)
	case KindStatus:
		return len(r.Status.Breakdown)
	case KindAnalysis:
		return len(r.Analysis.Metrics)
	}
	return 0
}

// Validate checks that a successful result carries exactly the variant its
// Kind names.
func (r *QueryResult) Validate() error {
	if r == nil {
		return fmt.Errorf("nil result")
	}
	if !r.Success {
		return nil
	}

	set := map[Kind]bool{
		KindCount:    r.Count != nil,
		KindList:     r.List != nil,
		KindGrouped:  r.Grouped != nil,
		KindStatus:   r.Status != nil,
		KindAnalysis: r.Analysis != nil,
	}
	n := 0
	for _, ok := range set {
		if ok {
			n++
		}
	}
	if n != 1 || !set[r.Kind] {
		return fmt.Errorf("result kind %q does not match its payload", r.Kind)
	}
	return nil
}

// Clone returns a deep copy.
func (r *QueryResult) Clone() *QueryResult {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		cp := *r
		return &cp
	}
	var out QueryResult
	if err := json.Unmarshal(data, &out); err != nil {
		cp := *r
		return &cp
	}
	return &out
}
