package render

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ricesearch/quickquery/internal/pkg/errors"
	"github.com/ricesearch/quickquery/internal/pkg/logger"
	"github.com/ricesearch/quickquery/internal/query"
	"github.com/ricesearch/quickquery/internal/result"
)

func newRenderer() *Renderer { return New(logger.Discard()) }

func TestRenderRecipeCount(t *testing.T) {
	res := result.NewCount(string(query.IntentRecipeCount), &result.Count{Entity: "recipes", Count: 42, Total: 42})
	out := newRenderer().Render(query.IntentRecipeCount, res, query.ParameterSet{})
	assert.Equal(t, "Liczba receptur w systemie: 42.", out)
}

func TestRenderWeightFilter(t *testing.T) {
	res := result.NewCount(string(query.IntentRecipeWeightFilter), &result.Count{
		Entity: "recipes", Count: 2, Total: 5,
		Matches: []result.Item{{ID: "1", Name: "Chleb", Value: 1200}, {ID: "2", Name: "Bułki", Value: 950.5}},
	})
	params := query.ParameterSet{Filters: []query.Filter{{Operator: query.OpGreater, Value: 900, OriginalValue: 900, Unit: "g"}}}

	out := newRenderer().Render(query.IntentRecipeWeightFilter, res, params)

	assert.Contains(t, out, "> 900 g: 2 z 5.")
	assert.Contains(t, out, "- Chleb (1200 g)")
	assert.Contains(t, out, "- Bułki (950,5 g)")
	assert.NotContains(t, out, "więcej")
}

func TestRenderPreviewTruncation(t *testing.T) {
	items := make([]result.Item, 13)
	for i := range items {
		items[i] = result.Item{ID: fmt.Sprint(i), Name: fmt.Sprintf("R%d", i)}
	}
	res := result.NewList(string(query.IntentRecipeList), &result.List{Entity: "recipes", Items: items, Total: 13})

	out := newRenderer().Render(query.IntentRecipeList, res, query.ParameterSet{})

	assert.Contains(t, out, "- R9")
	assert.NotContains(t, out, "- R10")
	assert.True(t, strings.HasSuffix(out, "...i 3 więcej"))
}

func TestRenderStatusBreakdown(t *testing.T) {
	res := result.NewStatus(string(query.IntentOrderStatus), &result.Status{
		Entity: "orders", Total: 4,
		Breakdown: []result.StatusBucket{{Status: "pending", Count: 3, Percentage: 75}, {Status: "completed", Count: 1, Percentage: 25}},
	})
	out := newRenderer().Render(query.IntentOrderStatus, res, query.ParameterSet{})
	assert.Equal(t, "Status zamówień (łącznie 4):\n- oczekujące: 3 (75%)\n- zakończone: 1 (25%)", out)
}

func TestRenderOrderCountWithStatus(t *testing.T) {
	res := result.NewCount(string(query.IntentOrderCount), &result.Count{Entity: "orders", Count: 3, Total: 10})
	out := newRenderer().Render(query.IntentOrderCount, res, query.ParameterSet{Status: query.StatusPending})
	assert.Equal(t, "Liczba zamówień (status: oczekujące): 3.", out)
}

func TestRenderPlannedProduction(t *testing.T) {
	day := time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)
	res := result.NewList(string(query.IntentProductionPlanned), &result.List{
		Entity: "productionTasks", Total: 1,
		Items: []result.Item{{ID: "t1", Name: "Chleb", Value: 10, Date: &day}},
	})
	out := newRenderer().Render(query.IntentProductionPlanned, res, query.ParameterSet{})
	assert.Contains(t, out, "- 2024-05-16 Chleb x10")

	empty := result.NewList(string(query.IntentProductionPlanned), &result.List{Entity: "productionTasks"})
	assert.Equal(t, "Brak zaplanowanej produkcji w tym okresie.", newRenderer().Render(query.IntentProductionPlanned, empty, query.ParameterSet{}))
}

func TestRenderAnalysis(t *testing.T) {
	res := result.NewAnalysis(string(query.IntentFinancialAnalysis), &result.Analysis{
		Topic:   string(query.IntentFinancialAnalysis),
		Metrics: []result.Metric{{Name: "Wartość zamówień", Value: 1234.5, Unit: "zł"}},
		Notes:   []string{"stan na 2024-05-15"},
	})
	out := newRenderer().Render(query.IntentFinancialAnalysis, res, query.ParameterSet{})
	assert.Equal(t, "Analiza (finanse):\n- Wartość zamówień: 1234,5 zł\nstan na 2024-05-15", out)
}

func TestRenderGenericForUnknownIntent(t *testing.T) {
	res := result.NewCount("something_new", &result.Count{Entity: "x", Count: 7})
	out := newRenderer().Render(query.Intent("something_new"), res, query.ParameterSet{})
	assert.Equal(t, "Wynik: 7.", out)
}

func TestRenderFailure(t *testing.T) {
	res := result.Failure(string(query.IntentRecipeCount), apperrors.KindNetwork, "timeout", 2)
	out := newRenderer().Render(query.IntentRecipeCount, res, query.ParameterSet{})
	assert.Equal(t, "Nie udało się przygotować odpowiedzi (błąd: network). Spróbuj ponownie później.", out)

	out = newRenderer().Render(query.IntentRecipeCount, nil, query.ParameterSet{})
	assert.True(t, strings.HasPrefix(out, "Nie udało się przygotować odpowiedzi"))
}

func TestRenderMalformedResult(t *testing.T) {
	res := &result.QueryResult{Kind: result.KindCount, Intent: "recipe_count", Success: true}
	out := newRenderer().Render(query.IntentRecipeCount, res, query.ParameterSet{})
	assert.Equal(t, RenderFailedMessage, out)
}

func TestRenderWarningsNote(t *testing.T) {
	res := result.NewCount(string(query.IntentRecipeCount), &result.Count{Entity: "recipes", Count: 1, Total: 1})
	res.Warn("unknown unit %q", "garść")
	out := newRenderer().Render(query.IntentRecipeCount, res, query.ParameterSet{})
	assert.Contains(t, out, "ostrzeżenia: 1")
}

func TestClarification(t *testing.T) {
	text := Clarification()
	require.NotEmpty(t, text)
	for _, q := range ExampleQuestions {
		assert.Contains(t, text, q)
	}
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "900", formatNumber(900))
	assert.Equal(t, "0,5", formatNumber(0.5))
	assert.Equal(t, "1,25", formatNumber(1.254))
}
