// Package manager arbitrates between the fast path (classify, execute,
// render) and the fallback answerer, and owns the side effects around an
// answer: caching, metrics and diagnostic feedback.
package manager

import (
	"context"
	"time"

	"github.com/ricesearch/quickquery/internal/cache"
	"github.com/ricesearch/quickquery/internal/config"
	"github.com/ricesearch/quickquery/internal/fallback"
	"github.com/ricesearch/quickquery/internal/feedback"
	"github.com/ricesearch/quickquery/internal/kvstore"
	"github.com/ricesearch/quickquery/internal/metrics"
	apperrors "github.com/ricesearch/quickquery/internal/pkg/errors"
	"github.com/ricesearch/quickquery/internal/pkg/logger"
	"github.com/ricesearch/quickquery/internal/pkg/security"
	"github.com/ricesearch/quickquery/internal/query"
	"github.com/ricesearch/quickquery/internal/render"
	"github.com/ricesearch/quickquery/internal/result"
	"github.com/ricesearch/quickquery/internal/worker"
)

// Defaults for ManagerConfig fields left zero.
const (
	DefaultClarifyBelow  = 0.3
	DefaultMinConfidence = 0.5
	DefaultSlowResponse  = 10 * time.Second
)

// Classifier turns text into a parsed query.
type Classifier interface {
	Classify(text string) *query.ParsedQuery
}

// QueryExecutor runs the data query behind an intent.
type QueryExecutor interface {
	Execute(ctx context.Context, intent query.Intent, params query.ParameterSet) *result.QueryResult
	Supports(intent query.Intent) bool
}

// Deps are the collaborators of a Manager. Cache, Metrics, Pool and KV are
// optional.
type Deps struct {
	Classifier Classifier
	Executor   QueryExecutor
	Renderer   *render.Renderer
	Cache      *cache.Cache
	Metrics    *metrics.Collector
	Feedback   feedback.Sink
	Fallback   fallback.Answerer
	Pool       *worker.Pool

	// Instruments receives live cache lookup counts.
	Instruments *metrics.Instruments

	// KV is probed by Health when set.
	KV kvstore.Store
}

// Options tune a single request.
type Options struct {
	UserID          string                `json:"user_id,omitempty"`
	BypassCache     bool                  `json:"bypass_cache,omitempty"`
	ForceComparison bool                  `json:"force_comparison,omitempty"`
	History         []fallback.Message    `json:"history,omitempty"`
	Attachments     []fallback.Attachment `json:"attachments,omitempty"`
}

// AnswerResult is the outcome of one request. Failures carry Success=false,
// a user-facing Answer and enough detail to decide whether to retry.
type AnswerResult struct {
	Success    bool           `json:"success"`
	Answer     string         `json:"answer"`
	Method     metrics.Method `json:"method"`
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`

	FromCache    bool    `json:"from_cache"`
	Similarity   float64 `json:"similarity,omitempty"`
	MatchedQuery string  `json:"matched_query,omitempty"`

	// Clarification is set when the question was not understood and the
	// answer lists example questions instead.
	Clarification bool `json:"clarification,omitempty"`

	Result           *result.QueryResult `json:"result,omitempty"`
	ProcessingTimeMs float64             `json:"processing_time_ms"`
	Speed            Speed               `json:"speed,omitempty"`

	ErrorKind     apperrors.Kind `json:"error_kind,omitempty"`
	Error         string         `json:"error,omitempty"`
	FastError     string         `json:"fast_error,omitempty"`
	FallbackError string         `json:"fallback_error,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
}

// Manager routes questions through the fast path or the fallback.
type Manager struct {
	classifier Classifier
	executor   QueryExecutor
	renderer   *render.Renderer
	cache      *cache.Cache
	metrics    *metrics.Collector
	feedback   feedback.Sink
	fallback   fallback.Answerer
	pool       *worker.Pool
	inst       *metrics.Instruments
	kv         kvstore.Store

	clarifyBelow  float64
	minConfidence float64
	slowResponse  time.Duration
	allowed       map[query.Intent]bool

	now func() time.Time
	log *logger.Logger
}

// New creates a manager. An empty allow-list admits every intent the
// executor supports except the analytic ones and the general overview.
func New(cfg config.ManagerConfig, deps Deps, log *logger.Logger) *Manager {
	log = logger.OrDefault(log)

	m := &Manager{
		classifier:    deps.Classifier,
		executor:      deps.Executor,
		renderer:      deps.Renderer,
		cache:         deps.Cache,
		metrics:       deps.Metrics,
		feedback:      deps.Feedback,
		fallback:      deps.Fallback,
		pool:          deps.Pool,
		inst:          deps.Instruments,
		kv:            deps.KV,
		clarifyBelow:  cfg.ClarifyBelow,
		minConfidence: cfg.MinConfidence,
		slowResponse:  cfg.SlowResponse,
		now:           time.Now,
		log:           log.WithComponent("manager"),
	}
	if m.renderer == nil {
		m.renderer = render.New(log)
	}
	if m.feedback == nil {
		m.feedback = feedback.Nop{}
	}
	if m.fallback == nil {
		m.fallback = fallback.Unavailable
	}
	if m.clarifyBelow <= 0 {
		m.clarifyBelow = DefaultClarifyBelow
	}
	if m.minConfidence <= 0 {
		m.minConfidence = DefaultMinConfidence
	}
	if m.slowResponse <= 0 {
		m.slowResponse = DefaultSlowResponse
	}
	m.allowed = m.allowList(cfg.AllowedIntents)
	return m
}

func (m *Manager) allowList(names []string) map[query.Intent]bool {
	allowed := make(map[query.Intent]bool)
	if len(names) > 0 {
		for _, n := range names {
			allowed[query.Intent(n)] = true
		}
		return allowed
	}
	for _, intent := range query.Intents {
		if intent.IsAnalytic() || intent == query.IntentGeneralOverview {
			continue
		}
		if m.executor != nil && m.executor.Supports(intent) {
			allowed[intent] = true
		}
	}
	return allowed
}

// SetClock overrides the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Answer runs the fast path for text. A cache hit returns immediately; a
// question below the clarification threshold gets the fixed clarification
// without touching the data store.
func (m *Manager) Answer(ctx context.Context, text string, opts Options) *AnswerResult {
	start := m.now()

	ans := m.lookup(ctx, text, opts)
	if ans == nil {
		pq := m.classifier.Classify(text)
		if clar := m.clarify(ctx, pq, opts); clar != nil {
			ans = clar
		} else {
			ans = m.fast(ctx, text, pq, opts)
		}
	}

	m.finish(ctx, text, ans, start, opts)
	return ans
}

// lookup returns the cached answer for text, or nil on a miss. Input the
// validator rejects never reaches the cache, so it cannot be answered from a
// similar cached question.
func (m *Manager) lookup(ctx context.Context, text string, opts Options) *AnswerResult {
	if m.cache == nil || opts.BypassCache {
		return nil
	}
	if err := security.ValidateQueryText(text); err != nil {
		return nil
	}

	res, hit := m.cache.Get(ctx, text)
	m.inst.ObserveCacheLookup(hit.Hit)
	if !hit.Hit || res == nil {
		return nil
	}

	// The cached result belongs to the matched question, so render it with
	// that question's parameters.
	matched := m.classifier.Classify(hit.MatchedQuery)
	intent := query.Intent(res.Intent)

	return &AnswerResult{
		Success:      true,
		Answer:       m.renderer.Render(intent, res, matched.Parameters),
		Method:       metrics.MethodFastCached,
		Intent:       res.Intent,
		Confidence:   matched.Confidence,
		FromCache:    true,
		Similarity:   hit.Similarity,
		MatchedQuery: hit.MatchedQuery,
		Result:       res,
		Warnings:     res.Warnings,
	}
}

// clarify returns the clarification answer when pq is too uncertain to
// answer, or nil.
func (m *Manager) clarify(ctx context.Context, pq *query.ParsedQuery, opts Options) *AnswerResult {
	if pq.Confidence >= m.clarifyBelow {
		return nil
	}

	kind := apperrors.KindLowConfidence
	if pq.Rejected() {
		kind = apperrors.KindInputRejected
	}

	m.submit(ctx, "feedback.low_confidence", func(ctx context.Context) {
		m.feedback.LowConfidence(ctx, feedback.LowConfidence{
			Query:      metrics.SanitizeQuery(pq.Raw),
			Intent:     string(pq.Intent),
			Confidence: pq.Confidence,
			Warnings:   pq.Warnings,
			UserID:     opts.UserID,
		})
	})

	return &AnswerResult{
		Success:       false,
		Answer:        render.Clarification(),
		Method:        metrics.MethodError,
		Intent:        string(pq.Intent),
		Confidence:    pq.Confidence,
		Clarification: true,
		ErrorKind:     kind,
		Error:         "question not understood",
		Warnings:      pq.Warnings,
	}
}

// fast executes and renders pq and schedules the cache write.
func (m *Manager) fast(ctx context.Context, text string, pq *query.ParsedQuery, opts Options) *AnswerResult {
	res := m.executor.Execute(ctx, pq.Intent, pq.Parameters)

	ans := &AnswerResult{
		Success:    res.Success,
		Answer:     m.renderer.Render(pq.Intent, res, pq.Parameters),
		Method:     metrics.MethodFast,
		Intent:     string(pq.Intent),
		Confidence: pq.Confidence,
		Result:     res,
		Warnings:   append(append([]string(nil), pq.Warnings...), res.Warnings...),
	}
	if !res.Success {
		ans.Method = metrics.MethodError
		ans.ErrorKind = res.ErrorKind
		ans.Error = res.Error
		return ans
	}

	if m.cache != nil && !opts.BypassCache {
		cached := res.Clone()
		m.submit(ctx, "cache.set", func(ctx context.Context) {
			m.cache.Set(ctx, text, cached)
		})
	}
	return ans
}

// finish stamps the processing time and schedules the metric record and
// the slow-response event.
func (m *Manager) finish(ctx context.Context, text string, ans *AnswerResult, start time.Time, opts Options) {
	elapsed := m.now().Sub(start)
	ans.ProcessingTimeMs = millis(elapsed)

	m.record(ctx, text, ans, opts)

	if elapsed > m.slowResponse {
		m.log.WithContext(ctx).Warn("Slow response",
			"intent", ans.Intent,
			"method", ans.Method,
			"duration_ms", ans.ProcessingTimeMs,
		)
		ev := feedback.SlowResponse{
			Query:      metrics.SanitizeQuery(text),
			Intent:     ans.Intent,
			Method:     string(ans.Method),
			DurationMs: ans.ProcessingTimeMs,
			UserID:     opts.UserID,
		}
		m.submit(ctx, "feedback.slow_response", func(ctx context.Context) {
			m.feedback.SlowResponse(ctx, ev)
		})
	}
}

func (m *Manager) record(ctx context.Context, text string, ans *AnswerResult, opts Options) {
	if m.metrics == nil {
		return
	}
	rec := metrics.MetricRecord{
		Query:            text,
		Intent:           ans.Intent,
		Confidence:       ans.Confidence,
		ProcessingTimeMs: ans.ProcessingTimeMs,
		Method:           ans.Method,
		Success:          ans.Success,
		FromCache:        ans.FromCache,
		DataPointCount:   ans.Result.DataPoints(),
		UserID:           opts.UserID,
	}
	m.submit(ctx, "metrics.record", func(ctx context.Context) {
		m.metrics.Record(ctx, rec)
	})
}

// submit runs fn in the background pool, or inline when there is none.
// The request ID travels with the task; the request's cancellation does not.
func (m *Manager) submit(ctx context.Context, name string, fn worker.Task) {
	reqID := logger.RequestID(ctx)
	task := func(bg context.Context) {
		if reqID != "" {
			bg = logger.ContextWithRequestID(bg, reqID)
		}
		fn(bg)
	}

	if m.pool == nil {
		task(context.WithoutCancel(ctx))
		return
	}
	if !m.pool.Submit(name, task) {
		m.log.WithContext(ctx).Debug("Background task dropped", "task", name)
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func sanitize(text string) string {
	return security.SanitizeForLog(text, 100)
}
