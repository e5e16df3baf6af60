package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricesearch/quickquery/internal/config"
	"github.com/ricesearch/quickquery/internal/docstore"
	apperrors "github.com/ricesearch/quickquery/internal/pkg/errors"
	"github.com/ricesearch/quickquery/internal/pkg/logger"
	"github.com/ricesearch/quickquery/internal/query"
	"github.com/ricesearch/quickquery/internal/result"
)

// Wednesday.
var fixedNow = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

func newTestExecutor(store docstore.Store, opts ...Option) *Executor {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(store, config.ExecutorConfig{MaxAttempts: 3, RetryDelay: time.Millisecond}, logger.Discard(), opts...)
}

func ingredient(name string, qty float64, unit string) map[string]any {
	return map[string]any{"name": name, "quantity": qty, "unit": unit}
}

func recipe(id string, ingredients ...map[string]any) docstore.Doc {
	list := make([]any, len(ingredients))
	for i, ing := range ingredients {
		list[i] = ing
	}
	return docstore.Doc{ID: id, Data: map[string]any{"name": "Receptura " + id, "ingredients": list}}
}

func seed(t *testing.T, m *docstore.Memory, collection string, docs ...docstore.Doc) {
	t.Helper()
	require.NoError(t, m.Insert(context.Background(), collection, docs...))
}

// scanOnly hides the Counter implementation so counts fall back to scans.
type scanOnly struct{ docstore.Store }

func TestExecute_RecipeCount(t *testing.T) {
	m := docstore.NewMemory()
	for i := 0; i < 42; i++ {
		seed(t, m, docstore.Recipes, recipe(fmt.Sprintf("r%d", i)))
	}

	for name, store := range map[string]docstore.Store{"counter": m, "scan": scanOnly{m}} {
		t.Run(name, func(t *testing.T) {
			res := newTestExecutor(store).Execute(context.Background(), query.IntentRecipeCount, query.ParameterSet{})

			require.True(t, res.Success)
			require.NoError(t, res.Validate())
			assert.Equal(t, result.KindCount, res.Kind)
			assert.Equal(t, 42, res.Count.Count)
			assert.Equal(t, 42, res.Count.Total)
			assert.Equal(t, "recipe_count", res.Intent)
			assert.Zero(t, res.RetryCount)
		})
	}
}

func TestExecute_RecipeWeightFilter(t *testing.T) {
	m := docstore.NewMemory()
	seed(t, m, docstore.Recipes,
		recipe("r1", ingredient("mąka", 1, "kg")),
		recipe("r2", ingredient("cukier", 500, "g"), ingredient("masło", 300, "g")),
		recipe("r3", ingredient("mąka", 0.5, "kg"), ingredient("orzechy", 50, "dag")),
		recipe("r4", ingredient("mleko", 950, "ml")),
		recipe("r5", ingredient("jajka", 10, "szt"), ingredient("mąka", 850, "g")),
		recipe("r6", ingredient("zioła", 5, "garść"), ingredient("mąka", 400, "g")),
	)

	params := query.ParameterSet{
		Numbers:  []float64{900},
		Operator: query.OpGreater,
		Unit:     "g",
		Filters:  []query.Filter{{Operator: query.OpGreater, Value: 900, OriginalValue: 900, Unit: "g"}},
	}
	res := newTestExecutor(m).Execute(context.Background(), query.IntentRecipeWeightFilter, params)

	require.True(t, res.Success)
	assert.Equal(t, 6, res.Count.Total)
	assert.Equal(t, 3, res.Count.Count)

	ids := make([]string, 0, len(res.Count.Matches))
	for _, item := range res.Count.Matches {
		assert.Greater(t, item.Value, 900.0)
		ids = append(ids, item.ID)
	}
	assert.ElementsMatch(t, []string{"r1", "r3", "r4"}, ids)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "garść")
}

func TestExecute_WeightFilterDefaultsToGreater(t *testing.T) {
	m := docstore.NewMemory()
	seed(t, m, docstore.Recipes,
		recipe("r1", ingredient("mąka", 2, "kg")),
		recipe("r2", ingredient("mąka", 1, "kg")),
	)

	res := newTestExecutor(m).Execute(context.Background(), query.IntentRecipeWeightFilter,
		query.ParameterSet{Numbers: []float64{1.5}, Unit: "kg"})

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Count.Count)
	assert.Equal(t, "r1", res.Count.Matches[0].ID)
}

func TestExecute_RetryOnTransientError(t *testing.T) {
	m := docstore.NewMemory()
	m.InjectFault(errors.New("rpc error: deadline exceeded (timeout)"), -1)

	var hooks atomic.Int32
	e := New(m, config.ExecutorConfig{MaxAttempts: 3, RetryDelay: 10 * time.Millisecond}, logger.Discard(),
		WithRetryHook(func(query.Intent, int, error) { hooks.Add(1) }))

	start := time.Now()
	res := e.Execute(context.Background(), query.IntentRecipeCount, query.ParameterSet{})
	elapsed := time.Since(start)

	assert.False(t, res.Success)
	assert.Equal(t, apperrors.KindNetwork, res.ErrorKind)
	assert.Equal(t, 2, res.RetryCount)
	assert.Equal(t, 3, m.Calls())
	assert.Contains(t, res.Error, "timeout")
	assert.Equal(t, int32(2), hooks.Load())
	// Backoff waits 10ms then 20ms.
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestExecute_NoRetryOnPermissionDenied(t *testing.T) {
	m := docstore.NewMemory()
	m.InjectFault(errors.New("PERMISSION_DENIED: permission denied"), -1)

	res := newTestExecutor(m).Execute(context.Background(), query.IntentRecipeCount, query.ParameterSet{})

	assert.False(t, res.Success)
	assert.Equal(t, apperrors.KindAuthorization, res.ErrorKind)
	assert.Equal(t, 0, res.RetryCount)
	assert.Equal(t, 1, m.Calls())
	assert.Nil(t, res.Count)
}

func TestExecute_RecoversAfterTransientFailures(t *testing.T) {
	m := docstore.NewMemory()
	seed(t, m, docstore.Suppliers, docstore.Doc{ID: "s1", Data: map[string]any{"name": "Młyn"}})
	m.InjectFault(errors.New("service unavailable"), 2)

	res := newTestExecutor(m).Execute(context.Background(), query.IntentSupplierCount, query.ParameterSet{})

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Count.Count)
	assert.Equal(t, 2, res.RetryCount)
	assert.Equal(t, 3, m.Calls())
}

func TestExecute_UnknownErrorNotRetried(t *testing.T) {
	m := docstore.NewMemory()
	m.InjectFault(errors.New("something odd"), -1)

	res := newTestExecutor(m).Execute(context.Background(), query.IntentCustomerCount, query.ParameterSet{})

	assert.False(t, res.Success)
	assert.Equal(t, apperrors.KindUnknown, res.ErrorKind)
	assert.Equal(t, 1, m.Calls())
}

func TestExecute_KeepsKindOfClassifiedStoreError(t *testing.T) {
	m := docstore.NewMemory()
	seed(t, m, docstore.Customers, docstore.Doc{ID: "c1", Data: map[string]any{"name": "Piekarnia"}})
	m.InjectFault(apperrors.DataStoreError(apperrors.KindQuota, errors.New("code 8")), 1)

	res := newTestExecutor(m).Execute(context.Background(), query.IntentCustomerCount, query.ParameterSet{})

	require.True(t, res.Success, "a quota kind is retried even when the message says nothing")
	assert.Equal(t, 1, res.RetryCount)
	assert.Equal(t, 2, m.Calls())
}

func TestExecute_FailureCarriesStoreMessage(t *testing.T) {
	m := docstore.NewMemory()
	m.InjectFault(errors.New("permission denied on collection recipes"), -1)

	res := newTestExecutor(m).Execute(context.Background(), query.IntentRecipeCount, query.ParameterSet{})

	assert.Equal(t, "permission denied on collection recipes", res.Error)
	assert.Equal(t, apperrors.KindAuthorization, res.ErrorKind)
}

func TestExecute_UnsupportedIntent(t *testing.T) {
	e := newTestExecutor(docstore.NewMemory())

	res := e.Execute(context.Background(), query.IntentUnknown, query.ParameterSet{})
	assert.False(t, res.Success)
	assert.Equal(t, apperrors.KindValidation, res.ErrorKind)
	assert.False(t, e.Supports(query.IntentUnknown))
	assert.True(t, e.Supports(query.IntentRecipeCount))
}

func TestExecute_StatusCount(t *testing.T) {
	m := docstore.NewMemory()
	seed(t, m, docstore.Orders,
		docstore.Doc{ID: "o1", Data: map[string]any{"status": "pending"}},
		docstore.Doc{ID: "o2", Data: map[string]any{"status": "completed"}},
		docstore.Doc{ID: "o3", Data: map[string]any{"status": "pending"}},
	)

	res := newTestExecutor(m).Execute(context.Background(), query.IntentOrderCount,
		query.ParameterSet{Status: query.StatusPending})

	require.True(t, res.Success)
	assert.Equal(t, 2, res.Count.Count)
	assert.Equal(t, 3, res.Count.Total)
}

func TestExecute_LowStock(t *testing.T) {
	m := docstore.NewMemory()
	seed(t, m, docstore.Inventory,
		docstore.Doc{ID: "i1", Data: map[string]any{"name": "Mąka", "quantity": 2, "unit": "kg", "minStockLevel": 5}},
		docstore.Doc{ID: "i2", Data: map[string]any{"name": "Cukier", "quantity": 10, "unit": "kg", "minStockLevel": 5}},
		docstore.Doc{ID: "i3", Data: map[string]any{"name": "Drożdże", "quantity": 300, "unit": "g", "minStockLevel": 500}},
		docstore.Doc{ID: "i4", Data: map[string]any{"name": "Sól", "quantity": 1, "unit": "kg"}},
	)
	e := newTestExecutor(m)

	res := e.Execute(context.Background(), query.IntentInventoryLowStock, query.ParameterSet{})
	require.True(t, res.Success)
	require.Equal(t, result.KindList, res.Kind)
	assert.Equal(t, 2, res.List.Total)
	assert.Equal(t, "Mąka", res.List.Items[0].Name)
	assert.Equal(t, "Drożdże", res.List.Items[1].Name)

	// Explicit threshold in grams compares normalized quantities.
	res = e.Execute(context.Background(), query.IntentInventoryLowStock, query.ParameterSet{
		Filters: []query.Filter{{Operator: query.OpLess, Value: 1500, OriginalValue: 1.5, Unit: "kg"}},
	})
	require.True(t, res.Success)
	names := []string{}
	for _, it := range res.List.Items {
		names = append(names, it.Name)
	}
	assert.ElementsMatch(t, []string{"Drożdże", "Sól"}, names)
}

func TestExecute_OrdersByCustomer(t *testing.T) {
	m := docstore.NewMemory()
	seed(t, m, docstore.Orders,
		docstore.Doc{ID: "o1", Data: map[string]any{"customerName": "Anna", "totalValue": 100.0}},
		docstore.Doc{ID: "o2", Data: map[string]any{"customerName": "Bartek", "totalValue": 50}},
		docstore.Doc{ID: "o3", Data: map[string]any{"customerName": "Anna", "totalValue": 25.5}},
		docstore.Doc{ID: "o4", Data: map[string]any{}},
	)

	res := newTestExecutor(m).Execute(context.Background(), query.IntentOrdersByCustomer, query.ParameterSet{})

	require.True(t, res.Success)
	require.Equal(t, result.KindGrouped, res.Kind)
	assert.Equal(t, 4, res.Grouped.Total)
	require.Len(t, res.Grouped.Groups, 3)
	assert.Equal(t, result.Group{Key: "Anna", Count: 2, Sum: 125.5}, res.Grouped.Groups[0])
	assert.Equal(t, "(brak klienta)", res.Grouped.Groups[1].Key)
	assert.Equal(t, "Bartek", res.Grouped.Groups[2].Key)
}

func TestExecute_StatusBreakdown(t *testing.T) {
	m := docstore.NewMemory()
	for i, s := range []string{"completed", "completed", "pending", "cancelled"} {
		seed(t, m, docstore.ProductionTasks, docstore.Doc{ID: fmt.Sprint(i), Data: map[string]any{"status": s}})
	}

	res := newTestExecutor(m).Execute(context.Background(), query.IntentProductionStatus, query.ParameterSet{})

	require.True(t, res.Success)
	require.Equal(t, result.KindStatus, res.Kind)
	assert.Equal(t, 4, res.Status.Total)
	assert.Equal(t, []result.StatusBucket{
		{Status: "completed", Count: 2, Percentage: 50},
		{Status: "cancelled", Count: 1, Percentage: 25},
		{Status: "pending", Count: 1, Percentage: 25},
	}, res.Status.Breakdown)
}

func TestExecute_PlannedProduction(t *testing.T) {
	m := docstore.NewMemory()
	tomorrow8 := time.Date(2024, 5, 16, 8, 0, 0, 0, time.UTC)
	seed(t, m, docstore.ProductionTasks,
		docstore.Doc{ID: "t1", Data: map[string]any{"name": "Chleb", "scheduledDate": tomorrow8}},
		docstore.Doc{ID: "t2", Data: map[string]any{"name": "Bułki", "scheduledDate": "2024-05-16"}},
		docstore.Doc{ID: "t3", Data: map[string]any{"name": "Rogale", "scheduledDate": time.Date(2024, 5, 17, 6, 0, 0, 0, time.UTC).UnixMilli()}},
		docstore.Doc{ID: "t4", Data: map[string]any{"name": "Sernik", "scheduledDate": map[string]any{"seconds": time.Date(2024, 5, 16, 12, 0, 0, 0, time.UTC).Unix(), "nanoseconds": 0}}},
		docstore.Doc{ID: "t5", Data: map[string]any{"name": "Zepsute", "scheduledDate": "not a date"}},
		docstore.Doc{ID: "t6", Data: map[string]any{"name": "Pączki", "scheduledDate": map[string]any{"_seconds": time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC).Unix()}}},
	)
	e := newTestExecutor(m)

	res := e.Execute(context.Background(), query.IntentProductionPlanned, query.ParameterSet{TimePeriod: query.PeriodTomorrow})
	require.True(t, res.Success)
	require.Len(t, res.List.Items, 3)
	assert.Equal(t, "t2", res.List.Items[0].ID)
	assert.Equal(t, "t1", res.List.Items[1].ID)
	assert.Equal(t, "t4", res.List.Items[2].ID)

	res = e.Execute(context.Background(), query.IntentProductionPlanned, query.ParameterSet{TimePeriod: query.PeriodThisWeek})
	require.True(t, res.Success)
	assert.Equal(t, 5, res.List.Total)
}

func TestExecute_Lists(t *testing.T) {
	m := docstore.NewMemory()
	seed(t, m, docstore.Recipes,
		recipe("b", ingredient("mąka", 1, "kg")),
		recipe("a", ingredient("mąka", 200, "g")),
	)

	res := newTestExecutor(m).Execute(context.Background(), query.IntentRecipeList, query.ParameterSet{})
	require.True(t, res.Success)
	require.Len(t, res.List.Items, 2)
	assert.Equal(t, "Receptura a", res.List.Items[0].Name)
	assert.Equal(t, 200.0, res.List.Items[0].Value)
}

func TestExecute_AnalysisAndOverview(t *testing.T) {
	m := docstore.NewMemory()
	seed(t, m, docstore.Orders,
		docstore.Doc{ID: "o1", Data: map[string]any{"customerName": "Anna", "status": "completed", "totalValue": 100, "orderDate": "2024-05-02"}},
		docstore.Doc{ID: "o2", Data: map[string]any{"customerName": "Anna", "status": "cancelled", "totalValue": 50, "orderDate": "2024-05-10"}},
		docstore.Doc{ID: "o3", Data: map[string]any{"customerName": "Ola", "status": "pending", "totalValue": 30, "orderDate": "2024-04-20"}},
	)
	seed(t, m, docstore.Recipes, recipe("r1"))
	e := newTestExecutor(m)

	intents := []query.Intent{
		query.IntentTrendAnalysis, query.IntentForecast, query.IntentOptimization,
		query.IntentRecommendation, query.IntentRiskAnalysis, query.IntentPlanning,
		query.IntentFinancialAnalysis, query.IntentGeneralOverview,
	}
	for _, intent := range intents {
		t.Run(string(intent), func(t *testing.T) {
			res := e.Execute(context.Background(), intent, query.ParameterSet{})
			require.True(t, res.Success)
			require.NoError(t, res.Validate())
			assert.Equal(t, result.KindAnalysis, res.Kind)
			assert.NotEmpty(t, res.Analysis.Metrics)
		})
	}

	res := e.Execute(context.Background(), query.IntentFinancialAnalysis, query.ParameterSet{})
	assert.Equal(t, 180.0, res.Analysis.Metrics[0].Value)
	assert.Equal(t, 100.0, res.Analysis.Metrics[1].Value)
	assert.Equal(t, 60.0, res.Analysis.Metrics[2].Value)

	res = e.Execute(context.Background(), query.IntentTrendAnalysis, query.ParameterSet{})
	assert.Equal(t, 2.0, res.Analysis.Metrics[0].Value)
	assert.Equal(t, 1.0, res.Analysis.Metrics[1].Value)
	assert.Equal(t, 100.0, res.Analysis.Metrics[2].Value)

	res = e.Execute(context.Background(), query.IntentGeneralOverview, query.ParameterSet{})
	assert.Len(t, res.Analysis.Metrics, len(docstore.Collections))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		msg  string
		want apperrors.Kind
	}{
		{"permission denied", apperrors.KindAuthorization},
		{"401 Unauthorized", apperrors.KindAuthorization},
		{"document not found", apperrors.KindNotFound},
		{"invalid argument: bad field", apperrors.KindValidation},
		{"already exists", apperrors.KindValidation},
		{"quota exceeded", apperrors.KindQuota},
		{"rate limit hit", apperrors.KindQuota},
		{"context deadline exceeded", apperrors.KindNetwork},
		{"connection reset by peer", apperrors.KindNetwork},
		{"service unavailable", apperrors.KindNetwork},
		{"internal error", apperrors.KindServer},
		{"permission denied after timeout", apperrors.KindAuthorization},
		{"boom", apperrors.KindUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyError(errors.New(tt.msg)), tt.msg)
	}
	assert.Equal(t, apperrors.KindNone, ClassifyError(nil))
	assert.Equal(t, apperrors.KindServer,
		ClassifyError(fmt.Errorf("find: %w", apperrors.DataStoreError(apperrors.KindServer, errors.New("permission denied")))),
		"a wrapped kind wins over the message")
	assert.True(t, IsRetryable(errors.New("timeout")))
	assert.False(t, IsRetryable(errors.New("forbidden")))
}
