package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricesearch/quickquery/internal/cache"
	"github.com/ricesearch/quickquery/internal/config"
	"github.com/ricesearch/quickquery/internal/docstore"
	"github.com/ricesearch/quickquery/internal/executor"
	"github.com/ricesearch/quickquery/internal/fallback"
	"github.com/ricesearch/quickquery/internal/feedback"
	"github.com/ricesearch/quickquery/internal/kvstore"
	"github.com/ricesearch/quickquery/internal/metrics"
	apperrors "github.com/ricesearch/quickquery/internal/pkg/errors"
	"github.com/ricesearch/quickquery/internal/pkg/logger"
	"github.com/ricesearch/quickquery/internal/query"
	"github.com/ricesearch/quickquery/internal/render"
	"github.com/ricesearch/quickquery/internal/result"
	"github.com/ricesearch/quickquery/internal/worker"
)

// recordingSink keeps every feedback event.
type recordingSink struct {
	mu     sync.Mutex
	low    []feedback.LowConfidence
	slow   []feedback.SlowResponse
	failed []feedback.BothPathsFailed
}

func (s *recordingSink) LowConfidence(_ context.Context, e feedback.LowConfidence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.low = append(s.low, e)
}

func (s *recordingSink) SlowResponse(_ context.Context, e feedback.SlowResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slow = append(s.slow, e)
}

func (s *recordingSink) BothPathsFailed(_ context.Context, e feedback.BothPathsFailed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, e)
}

// fixedClassifier returns the same parse for every text.
type fixedClassifier struct {
	intent     query.Intent
	confidence float64
}

func (c fixedClassifier) Classify(text string) *query.ParsedQuery {
	return &query.ParsedQuery{Raw: text, Normalized: text, Intent: c.intent, Confidence: c.confidence}
}

// countingExecutor wraps an executor and counts calls.
type countingExecutor struct {
	QueryExecutor
	mu     sync.Mutex
	calls  int
	before func()
}

func (e *countingExecutor) Execute(ctx context.Context, intent query.Intent, p query.ParameterSet) *result.QueryResult {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.before != nil {
		e.before()
	}
	return e.QueryExecutor.Execute(ctx, intent, p)
}

type fixture struct {
	store    *docstore.Memory
	kv       *kvstore.Memory
	exec     *countingExecutor
	cache    *cache.Cache
	metrics  *metrics.Collector
	sink     *recordingSink
	fallback *stubFallback
	mgr      *Manager
}

type stubFallback struct {
	mu     sync.Mutex
	answer string
	err    error
	calls  int
}

func (f *stubFallback) Answer(ctx context.Context, text string, history []fallback.Message, userID string, attachments []fallback.Attachment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.answer, f.err
}

func (f *stubFallback) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type option func(*Deps)

func withClassifier(c Classifier) option { return func(d *Deps) { d.Classifier = c } }
func withPool(p *worker.Pool) option     { return func(d *Deps) { d.Pool = p } }

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	log := logger.Discard()

	f := &fixture{
		store:    docstore.NewMemory(),
		kv:       kvstore.NewMemory(0),
		sink:     &recordingSink{},
		fallback: &stubFallback{answer: "Odpowiedź ogólna."},
	}
	f.exec = &countingExecutor{QueryExecutor: executor.New(f.store,
		config.ExecutorConfig{MaxAttempts: 3, RetryDelay: time.Millisecond}, log)}
	f.cache = cache.New(f.kv, config.CacheConfig{}, log)
	f.metrics = metrics.NewCollector(f.kv, config.MetricsConfig{}, nil, log)

	deps := Deps{
		Classifier: query.NewClassifier(config.ClassifierConfig{}, log),
		Executor:   f.exec,
		Renderer:   render.New(log),
		Cache:      f.cache,
		Metrics:    f.metrics,
		Feedback:   f.sink,
		Fallback:   f.fallback,
		KV:         f.kv,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.mgr = New(config.ManagerConfig{}, deps, log)
	return f
}

func (f *fixture) seedRecipes(t *testing.T, docs ...docstore.Doc) {
	t.Helper()
	require.NoError(t, f.store.Insert(context.Background(), docstore.Recipes, docs...))
}

func recipe(id string, ingredients ...map[string]any) docstore.Doc {
	list := make([]any, len(ingredients))
	for i, ing := range ingredients {
		list[i] = ing
	}
	return docstore.Doc{ID: id, Data: map[string]any{"name": "Receptura " + id, "ingredients": list}}
}

func ingredient(name string, qty float64, unit string) map[string]any {
	return map[string]any{"name": name, "quantity": qty, "unit": unit}
}

func (f *fixture) seedCount(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		f.seedRecipes(t, recipe(fmt.Sprintf("r%d", i)))
	}
}

func TestAnswer_RecipeCount(t *testing.T) {
	f := newFixture(t)
	f.seedCount(t, 42)

	ans := f.mgr.Answer(context.Background(), "Ile jest receptur w systemie?", Options{UserID: "u1"})

	require.True(t, ans.Success)
	assert.Equal(t, metrics.MethodFast, ans.Method)
	assert.Equal(t, "recipe_count", ans.Intent)
	require.NotNil(t, ans.Result)
	assert.Equal(t, 42, ans.Result.Count.Count)
	assert.Contains(t, ans.Answer, "42")
	assert.False(t, ans.FromCache)
}

func TestAnswer_RecipeWeightFilter(t *testing.T) {
	f := newFixture(t)
	f.seedRecipes(t,
		recipe("r1", ingredient("mąka", 1, "kg")),
		recipe("r2", ingredient("cukier", 500, "g"), ingredient("masło", 300, "g")),
		recipe("r3", ingredient("mąka", 0.5, "kg"), ingredient("orzechy", 50, "dag")),
		recipe("r4", ingredient("mąka", 950, "g")),
	)

	ans := f.mgr.Answer(context.Background(), "Ile receptur ma sumę składników ponad 900g?", Options{})

	require.True(t, ans.Success)
	assert.Equal(t, "recipe_weight_filter", ans.Intent)
	c := ans.Result.Count
	require.NotNil(t, c)
	assert.Equal(t, 4, c.Total)
	assert.Equal(t, 3, c.Count)
	for _, m := range c.Matches {
		assert.Greater(t, m.Value, 900.0)
	}
}

func TestAnswer_SimilarQuestionHitsCache(t *testing.T) {
	f := newFixture(t)
	f.seedCount(t, 7)
	ctx := context.Background()

	first := f.mgr.Answer(ctx, "ile jest receptur", Options{})
	require.True(t, first.Success)
	calls := f.store.Calls()

	second := f.mgr.Answer(ctx, "ile receptur mamy", Options{})
	require.True(t, second.Success)
	assert.True(t, second.FromCache)
	assert.Equal(t, metrics.MethodFastCached, second.Method)
	assert.GreaterOrEqual(t, second.Similarity, 0.75)
	assert.Equal(t, "ile jest receptur", second.MatchedQuery)
	assert.Equal(t, 7, second.Result.Count.Count)
	assert.Equal(t, calls, f.store.Calls(), "cache hit must not query the store")

	// Both requests are recorded.
	recs := f.metrics.Records(ctx, metrics.WindowAll)
	require.Len(t, recs, 2)
	assert.True(t, recs[1].FromCache)
}

func TestAnswer_BypassCache(t *testing.T) {
	f := newFixture(t)
	f.seedCount(t, 3)
	ctx := context.Background()

	f.mgr.Answer(ctx, "ile jest receptur", Options{})
	ans := f.mgr.Answer(ctx, "ile jest receptur", Options{BypassCache: true})

	assert.False(t, ans.FromCache)
	assert.Equal(t, 2, f.exec.calls)
}

func TestAnswer_LowConfidenceClarifies(t *testing.T) {
	f := newFixture(t, withClassifier(fixedClassifier{intent: query.IntentRecipeCount, confidence: 0.2}))
	f.seedCount(t, 5)

	ans := f.mgr.Answer(context.Background(), "coś niejasnego", Options{UserID: "u7"})

	assert.False(t, ans.Success)
	assert.True(t, ans.Clarification)
	assert.Equal(t, render.Clarification(), ans.Answer)
	assert.Equal(t, apperrors.KindLowConfidence, ans.ErrorKind)
	assert.Zero(t, f.exec.calls)
	assert.Zero(t, f.store.Calls())

	require.Len(t, f.sink.low, 1)
	assert.Equal(t, "u7", f.sink.low[0].UserID)
	assert.InDelta(t, 0.2, f.sink.low[0].Confidence, 1e-9)
}

func TestAnswer_RejectedInput(t *testing.T) {
	f := newFixture(t)

	ans := f.mgr.Answer(context.Background(), "<script>alert(1)</script>", Options{})

	assert.False(t, ans.Success)
	assert.True(t, ans.Clarification)
	assert.Equal(t, apperrors.KindInputRejected, ans.ErrorKind)
	assert.Zero(t, f.exec.calls)
}

func TestAnswer_OverlongInputSkipsCache(t *testing.T) {
	f := newFixture(t)
	f.seedCount(t, 4)
	ctx := context.Background()

	require.True(t, f.mgr.Answer(ctx, "ile jest receptur", Options{}).Success)
	calls := f.exec.calls

	long := "ile jest receptur" + strings.Repeat(" receptur", 120)
	require.Greater(t, len(long), 1000)

	for _, ans := range []*AnswerResult{
		f.mgr.Answer(ctx, long, Options{}),
		f.mgr.ProcessQuery(ctx, long, Options{}),
	} {
		assert.False(t, ans.Success)
		assert.False(t, ans.FromCache)
		assert.True(t, ans.Clarification)
		assert.Equal(t, apperrors.KindInputRejected, ans.ErrorKind)
		assert.Zero(t, ans.Confidence)
	}
	assert.Equal(t, calls, f.exec.calls)
	assert.Zero(t, f.fallback.Calls())
	assert.Equal(t, int64(0), f.cache.Stats(ctx).Hits)
}

func TestAnswer_PermissionDeniedIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.seedCount(t, 2)
	f.store.InjectFault(errors.New("permission denied"), -1)

	ans := f.mgr.Answer(context.Background(), "Ile jest receptur w systemie?", Options{})

	assert.False(t, ans.Success)
	assert.Equal(t, apperrors.KindAuthorization, ans.ErrorKind)
	require.NotNil(t, ans.Result)
	assert.Zero(t, ans.Result.RetryCount)
	assert.Equal(t, 1, f.store.Calls())
	assert.Zero(t, f.cache.Stats(context.Background()).Entries, "failures are not cached")
}

func TestAnswer_RecordsMetric(t *testing.T) {
	f := newFixture(t)
	f.seedCount(t, 4)
	ctx := context.Background()

	f.mgr.Answer(ctx, "Ile jest receptur w systemie?", Options{UserID: "u2"})

	recs := f.metrics.Records(ctx, metrics.WindowAll)
	require.Len(t, recs, 1)
	assert.Equal(t, metrics.MethodFast, recs[0].Method)
	assert.Equal(t, "recipe_count", recs[0].Intent)
	assert.Equal(t, "u2", recs[0].UserID)
	assert.True(t, recs[0].Success)
	assert.Equal(t, 1, recs[0].DataPointCount)
}

func TestAnswer_SlowResponseEmitsEvent(t *testing.T) {
	now := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
	f := newFixture(t)
	f.seedCount(t, 1)
	f.mgr.SetClock(func() time.Time { return now })
	f.exec.before = func() { now = now.Add(11 * time.Second) }

	ans := f.mgr.Answer(context.Background(), "Ile jest receptur w systemie?", Options{UserID: "u3"})

	require.True(t, ans.Success)
	assert.InDelta(t, 11000, ans.ProcessingTimeMs, 1e-6)
	require.Len(t, f.sink.slow, 1)
	assert.Equal(t, "fast", f.sink.slow[0].Method)
	assert.Equal(t, "u3", f.sink.slow[0].UserID)
}

func TestAnswer_BackgroundPool(t *testing.T) {
	pool := worker.New(worker.Config{Workers: 2}, logger.Discard())
	f := newFixture(t, withPool(pool))
	f.seedCount(t, 3)
	ctx := context.Background()

	ans := f.mgr.Answer(ctx, "ile jest receptur", Options{})
	require.True(t, ans.Success)
	pool.Wait()

	assert.Equal(t, 1, f.cache.Stats(ctx).Entries)
	assert.Len(t, f.metrics.Records(ctx, metrics.WindowAll), 1)
	require.NoError(t, pool.Close(ctx))
}

func TestCanHandle(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		pq   *query.ParsedQuery
		want bool
	}{
		{"allowed and confident", &query.ParsedQuery{Intent: query.IntentRecipeCount, Confidence: 0.8}, true},
		{"at threshold", &query.ParsedQuery{Intent: query.IntentOrderStatus, Confidence: 0.5}, true},
		{"below threshold", &query.ParsedQuery{Intent: query.IntentRecipeCount, Confidence: 0.49}, false},
		{"analytic not allowed", &query.ParsedQuery{Intent: query.IntentForecast, Confidence: 1}, false},
		{"overview not allowed", &query.ParsedQuery{Intent: query.IntentGeneralOverview, Confidence: 1}, false},
		{"rejected", &query.ParsedQuery{Intent: query.IntentUnknown, Confidence: 0}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.mgr.CanHandle(tt.pq))
		})
	}
}

func TestCanHandle_ConfiguredAllowList(t *testing.T) {
	m := New(config.ManagerConfig{AllowedIntents: []string{"forecast"}}, Deps{
		Classifier: fixedClassifier{},
		Executor:   &countingExecutor{},
	}, logger.Discard())

	assert.True(t, m.CanHandle(&query.ParsedQuery{Intent: query.IntentForecast, Confidence: 0.9}))
	assert.False(t, m.CanHandle(&query.ParsedQuery{Intent: query.IntentRecipeCount, Confidence: 0.9}))
}

func TestProcessQuery_FastPath(t *testing.T) {
	f := newFixture(t)
	f.seedCount(t, 12)

	ans := f.mgr.ProcessQuery(context.Background(), "Ile jest receptur w systemie?", Options{})

	require.True(t, ans.Success)
	assert.Equal(t, metrics.MethodFast, ans.Method)
	assert.Equal(t, SpeedExcellent, ans.Speed)
	assert.Zero(t, f.fallback.Calls())
}

func TestProcessQuery_IneligibleUsesFallback(t *testing.T) {
	f := newFixture(t, withClassifier(fixedClassifier{intent: query.IntentForecast, confidence: 0.9}))

	ans := f.mgr.ProcessQuery(context.Background(), "jaka będzie prognoza sprzedaży", Options{})

	require.True(t, ans.Success)
	assert.Equal(t, metrics.MethodFallback, ans.Method)
	assert.Equal(t, "Odpowiedź ogólna.", ans.Answer)
	assert.Zero(t, f.exec.calls)
	assert.Equal(t, 1, f.fallback.Calls())
}

func TestProcessQuery_FastFailureUsesFallback(t *testing.T) {
	f := newFixture(t)
	f.store.InjectFault(errors.New("permission denied"), -1)

	ans := f.mgr.ProcessQuery(context.Background(), "Ile jest receptur w systemie?", Options{})

	require.True(t, ans.Success)
	assert.Equal(t, metrics.MethodFallback, ans.Method)
	assert.Contains(t, ans.FastError, "permission denied")
	assert.Equal(t, 1, f.fallback.Calls())
}

func TestProcessQuery_BothPathsFail(t *testing.T) {
	f := newFixture(t)
	f.store.InjectFault(errors.New("permission denied"), -1)
	f.fallback.err = errors.New("upstream down")

	ans := f.mgr.ProcessQuery(context.Background(), "Ile jest receptur w systemie?", Options{UserID: "u9"})

	assert.False(t, ans.Success)
	assert.Equal(t, BothFailedMessage, ans.Answer)
	assert.Equal(t, metrics.MethodError, ans.Method)
	assert.Equal(t, apperrors.KindFallback, ans.ErrorKind)
	assert.Equal(t, "recipe_count", ans.Intent)
	assert.Contains(t, ans.FallbackError, "upstream down")
	assert.Contains(t, ans.FastError, "permission denied")

	require.Len(t, f.sink.failed, 1)
	assert.Equal(t, "u9", f.sink.failed[0].UserID)
}

func TestProcessQuery_RejectedInputNeverForwarded(t *testing.T) {
	f := newFixture(t)

	ans := f.mgr.ProcessQuery(context.Background(), "ab", Options{})

	assert.False(t, ans.Success)
	assert.True(t, ans.Clarification)
	assert.Zero(t, f.fallback.Calls())
}

func TestCompareVersions_FastOnly(t *testing.T) {
	f := newFixture(t)
	f.seedCount(t, 5)

	cmp := f.mgr.CompareVersions(context.Background(), "Ile jest receptur w systemie?", Options{})

	require.True(t, cmp.Fast.Success)
	assert.Nil(t, cmp.Fallback)
	assert.Nil(t, cmp.Summary)
	assert.Zero(t, f.fallback.Calls())
}

func TestCompareVersions_FastFailed(t *testing.T) {
	f := newFixture(t)
	f.store.InjectFault(errors.New("permission denied"), -1)

	cmp := f.mgr.CompareVersions(context.Background(), "Ile jest receptur w systemie?", Options{})

	assert.False(t, cmp.Fast.Success)
	require.NotNil(t, cmp.Fallback)
	assert.True(t, cmp.Fallback.Success)
	assert.Nil(t, cmp.Summary)
}

func TestCompareVersions_RejectedInputNeverForwarded(t *testing.T) {
	f := newFixture(t)

	for _, force := range []bool{false, true} {
		cmp := f.mgr.CompareVersions(context.Background(), "<script>alert(1)</script>", Options{ForceComparison: force})

		assert.False(t, cmp.Fast.Success)
		assert.Equal(t, apperrors.KindInputRejected, cmp.Fast.ErrorKind)
		assert.Nil(t, cmp.Fallback)
		assert.False(t, cmp.Forced)
		assert.Nil(t, cmp.Summary)
	}
	assert.Zero(t, f.fallback.Calls())
}

func TestCompareVersions_Forced(t *testing.T) {
	f := newFixture(t)
	f.seedCount(t, 5)

	cmp := f.mgr.CompareVersions(context.Background(), "Ile jest receptur w systemie?", Options{ForceComparison: true})

	require.True(t, cmp.Fast.Success)
	require.NotNil(t, cmp.Fallback)
	require.True(t, cmp.Fallback.Success)
	assert.True(t, cmp.Forced)
	require.NotNil(t, cmp.Summary)
	assert.NotEmpty(t, cmp.Summary.Recommendation)
	assert.NotEmpty(t, cmp.Summary.Accuracy)
	assert.Len(t, f.metrics.Records(context.Background(), metrics.WindowAll), 2)
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		fastMs   float64
		fbMs     float64
		fastText string
		fbText   string
		delta    float64
		rec      Recommendation
		acc      Accuracy
	}{
		{"fast wins", 100, 1000, "abcd", "abcdef", 90, PreferFast, AccuracySimilar},
		{"fallback wins", 2000, 1000, "abcd", "abcd", -100, PreferFallback, AccuracySimilar},
		{"comparable", 950, 1000, "ab", "abcdefghij", 5, Comparable, AccuracyLessDetail},
		{"more detail", 100, 1000, "abcdefghij", "ab", 90, PreferFast, AccuracyMoreDetail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := summarize(
				&AnswerResult{ProcessingTimeMs: tt.fastMs, Answer: tt.fastText},
				&AnswerResult{ProcessingTimeMs: tt.fbMs, Answer: tt.fbText},
			)
			assert.InDelta(t, tt.delta, s.SpeedDeltaPercent, 1e-9)
			assert.Equal(t, tt.rec, s.Recommendation)
			assert.Equal(t, tt.acc, s.Accuracy)
		})
	}
}

func TestRateSpeed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want Speed
	}{
		{100 * time.Millisecond, SpeedExcellent},
		{499 * time.Millisecond, SpeedExcellent},
		{500 * time.Millisecond, SpeedGood},
		{1999 * time.Millisecond, SpeedGood},
		{2 * time.Second, SpeedAcceptable},
		{5 * time.Second, SpeedSlow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RateSpeed(tt.d), tt.d.String())
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.seedCount(t, 1)
	ctx := context.Background()

	h, err := f.mgr.Health(ctx)
	require.NoError(t, err)
	assert.True(t, h.Healthy)
	assert.Equal(t, "healthy", h.Status)
	for _, name := range []string{"classifier", "executor", "renderer", "kvstore"} {
		assert.True(t, h.Components[name].OK, name)
	}
	assert.Empty(t, f.metrics.Records(ctx, metrics.WindowAll))
	assert.Zero(t, f.cache.Stats(ctx).Entries)
}

func TestHealth_StoreDown(t *testing.T) {
	f := newFixture(t)
	f.store.InjectFault(errors.New("permission denied"), -1)

	h, err := f.mgr.Health(context.Background())
	require.Error(t, err)
	assert.False(t, h.Healthy)
	assert.Equal(t, "unhealthy", h.Status)
	assert.True(t, h.Components["classifier"].OK)
	assert.False(t, h.Components["executor"].OK)
	assert.Contains(t, h.Components["executor"].Message, "authorization")
}
