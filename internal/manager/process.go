package manager

import (
	"context"
	"errors"
	"time"

	"github.com/ricesearch/quickquery/internal/fallback"
	"github.com/ricesearch/quickquery/internal/feedback"
	"github.com/ricesearch/quickquery/internal/metrics"
	apperrors "github.com/ricesearch/quickquery/internal/pkg/errors"
	"github.com/ricesearch/quickquery/internal/query"
)

// Speed is a qualitative rating of a fast-path processing time.
type Speed string

const (
	SpeedExcellent  Speed = "excellent"
	SpeedGood       Speed = "good"
	SpeedAcceptable Speed = "acceptable"
	SpeedSlow       Speed = "slow"
)

// Speed thresholds.
const (
	excellentBelow  = 500 * time.Millisecond
	goodBelow       = 2000 * time.Millisecond
	acceptableBelow = 5000 * time.Millisecond
)

// BothFailedMessage is the answer when neither path produced one.
const BothFailedMessage = "Nie udało się odpowiedzieć na pytanie. Spróbuj ponownie później lub zadaj je inaczej."

// RateSpeed rates a processing time.
func RateSpeed(d time.Duration) Speed {
	switch {
	case d < excellentBelow:
		return SpeedExcellent
	case d < goodBelow:
		return SpeedGood
	case d < acceptableBelow:
		return SpeedAcceptable
	default:
		return SpeedSlow
	}
}

// CanHandle reports whether pq is eligible for the fast path: its intent
// is allow-listed and its confidence reaches the minimum.
func (m *Manager) CanHandle(pq *query.ParsedQuery) bool {
	if pq == nil || pq.Rejected() {
		return false
	}
	return m.allowed[pq.Intent] && pq.Confidence >= m.minConfidence
}

// ProcessQuery answers text in single-answer mode. Eligible questions take
// the fast path; ineligible ones and fast-path failures go to the fallback.
// Rejected input is never forwarded.
func (m *Manager) ProcessQuery(ctx context.Context, text string, opts Options) *AnswerResult {
	start := m.now()
	log := m.log.WithContext(ctx)

	if ans := m.lookup(ctx, text, opts); ans != nil {
		m.finish(ctx, text, ans, start, opts)
		ans.Speed = RateSpeed(m.now().Sub(start))
		return ans
	}

	pq := m.classifier.Classify(text)
	if pq.Rejected() {
		ans := m.clarify(ctx, pq, opts)
		m.finish(ctx, text, ans, start, opts)
		return ans
	}

	var fast *AnswerResult
	if m.CanHandle(pq) {
		fast = m.fast(ctx, text, pq, opts)
		if fast.Success {
			m.finish(ctx, text, fast, start, opts)
			fast.Speed = RateSpeed(m.now().Sub(start))
			return fast
		}
		log.Warn("Fast path failed, using fallback",
			"intent", pq.Intent,
			"kind", fast.ErrorKind,
			"query", sanitize(text),
		)
	} else {
		log.Debug("Question not eligible for fast path",
			"intent", pq.Intent,
			"confidence", pq.Confidence,
		)
	}

	ans, err := m.answerFallback(ctx, text, pq, opts)
	if err == nil {
		if fast != nil {
			ans.FastError = fast.Error
		}
		m.finish(ctx, text, ans, start, opts)
		return ans
	}

	failed := m.bothFailed(ctx, text, pq, fast, err, opts)
	m.finish(ctx, text, failed, start, opts)
	return failed
}

// answerFallback asks the fallback answerer. The returned answer is
// successful; failures come back as a FallbackError.
func (m *Manager) answerFallback(ctx context.Context, text string, pq *query.ParsedQuery, opts Options) (*AnswerResult, error) {
	out, err := m.fallback.Answer(ctx, text, opts.History, opts.UserID, opts.Attachments)
	if err == nil && out == "" {
		err = errors.New("empty answer")
	}
	if err != nil {
		if !errors.Is(err, fallback.ErrNotConfigured) {
			m.log.WithContext(ctx).WithError(err).Warn("Fallback answer failed", "query", sanitize(text))
		}
		return nil, apperrors.FallbackError(err)
	}

	return &AnswerResult{
		Success:    true,
		Answer:     out,
		Method:     metrics.MethodFallback,
		Intent:     string(pq.Intent),
		Confidence: pq.Confidence,
	}, nil
}

// bothFailed builds the terminal failure and reports it.
func (m *Manager) bothFailed(ctx context.Context, text string, pq *query.ParsedQuery, fast *AnswerResult, fbErr error, opts Options) *AnswerResult {
	ans := &AnswerResult{
		Success:       false,
		Answer:        BothFailedMessage,
		Method:        metrics.MethodError,
		Intent:        string(pq.Intent),
		Confidence:    pq.Confidence,
		ErrorKind:     apperrors.KindFallback,
		Error:         fbErr.Error(),
		FallbackError: fbErr.Error(),
	}
	if fast != nil {
		ans.FastError = fast.Error
		ans.Result = fast.Result
	}

	m.log.WithContext(ctx).Error("Both answering paths failed",
		"intent", pq.Intent,
		"fast_error", ans.FastError,
		"fallback_error", ans.FallbackError,
	)

	ev := feedback.BothPathsFailed{
		Query:         metrics.SanitizeQuery(text),
		Intent:        ans.Intent,
		FastError:     ans.FastError,
		FallbackError: ans.FallbackError,
		UserID:        opts.UserID,
	}
	m.submit(ctx, "feedback.both_paths_failed", func(ctx context.Context) {
		m.feedback.BothPathsFailed(ctx, ev)
	})
	return ans
}
