package render

import (
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/ricesearch/quickquery/internal/query"
	"github.com/ricesearch/quickquery/internal/result"
)

// Preview limits per list shape.
const (
	recipePreview    = 10
	inventoryPreview = 15
	defaultPreview   = 5
	groupPreview     = 10
	plannedPreview   = 10
)

// preview is a bounded slice of a list plus the number left out.
type preview[T any] struct {
	Shown []T
	More  int
}

func previewOf[T any](items []T, limit int) preview[T] {
	if len(items) <= limit {
		return preview[T]{Shown: items}
	}
	return preview[T]{Shown: items[:limit], More: len(items) - limit}
}

var funcs = template.FuncMap{
	"items": func(items []result.Item, limit int) preview[result.Item] {
		return previewOf(items, limit)
	},
	"groups": func(groups []result.Group, limit int) preview[result.Group] {
		return previewOf(groups, limit)
	},
	"num":    formatNumber,
	"date":   formatDate,
	"filter": describeFilters,
	"status": statusLabel,
	"topic":  topicLabel,
	"limit": func(name string) int {
		switch name {
		case "recipes":
			return recipePreview
		case "inventory":
			return inventoryPreview
		case "groups":
			return groupPreview
		case "planned":
			return plannedPreview
		}
		return defaultPreview
	},
}

// formatNumber prints up to two decimals with a decimal comma.
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return strings.Replace(s, ".", ",", 1)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "?"
	}
	return t.Format("2006-01-02")
}

func describeFilters(p query.ParameterSet) string {
	parts := make([]string, 0, len(p.Filters))
	for _, f := range p.Filters {
		s := string(f.Operator) + " " + formatNumber(f.OriginalValue)
		if f.Unit != "" {
			s += " " + f.Unit
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " i ")
}

var statusLabels = map[string]string{
	string(query.StatusPending):    "oczekujące",
	string(query.StatusInProgress): "w realizacji",
	string(query.StatusCompleted):  "zakończone",
	string(query.StatusCancelled):  "anulowane",
	string(query.StatusPlanned):    "zaplanowane",
}

func statusLabel(s string) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return s
}

var topicLabels = map[string]string{
	string(query.IntentTrendAnalysis):     "trendy",
	string(query.IntentForecast):          "prognoza",
	string(query.IntentOptimization):      "optymalizacja",
	string(query.IntentRecommendation):    "rekomendacje",
	string(query.IntentRiskAnalysis):      "ryzyko",
	string(query.IntentPlanning):          "planowanie",
	string(query.IntentFinancialAnalysis): "finanse",
	string(query.IntentGeneralOverview):   "przegląd",
}

func topicLabel(t string) string {
	if l, ok := topicLabels[t]; ok {
		return l
	}
	return t
}
