package manager

import (
	"context"
	"math"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/quickquery/internal/metrics"
	apperrors "github.com/ricesearch/quickquery/internal/pkg/errors"
	"github.com/ricesearch/quickquery/internal/pkg/security"
)

// Recommendation is the verdict of a comparison.
type Recommendation string

const (
	PreferFast     Recommendation = "prefer_fast"
	PreferFallback Recommendation = "prefer_fallback"
	Comparable     Recommendation = "comparable"
)

// Accuracy compares the fast answer's length to the fallback's.
type Accuracy string

const (
	AccuracySimilar    Accuracy = "similar"
	AccuracyLessDetail Accuracy = "fast_less_detailed"
	AccuracyMoreDetail Accuracy = "fast_more_detailed"
)

// Speed deltas within the band count as comparable.
const comparableSpeedBand = 20.0

// Length ratios outside [lessDetailRatio, moreDetailRatio] count as a
// difference in detail.
const (
	lessDetailRatio = 0.5
	moreDetailRatio = 2.0
)

// Comparison is the outcome of running both paths for one question.
type Comparison struct {
	Query    string        `json:"query"`
	Fast     *AnswerResult `json:"fast"`
	Fallback *AnswerResult `json:"fallback,omitempty"`

	// Forced is set when the fallback ran although the fast path succeeded.
	Forced  bool     `json:"forced"`
	Summary *Summary `json:"summary,omitempty"`
}

// Summary is computed when both paths succeeded.
type Summary struct {
	FastMs     float64 `json:"fast_ms"`
	FallbackMs float64 `json:"fallback_ms"`

	// SpeedDeltaPercent is how much faster the fast path was, relative to
	// the fallback. Negative when it was slower.
	SpeedDeltaPercent float64        `json:"speed_delta_percent"`
	Recommendation    Recommendation `json:"recommendation"`
	LengthRatio       float64        `json:"length_ratio"`
	Accuracy          Accuracy       `json:"accuracy"`
}

// CompareVersions runs the fast path and, when it failed or opts forces
// it, the fallback. Forced comparisons run both paths concurrently. Input
// the validator rejects is never sent to the fallback.
func (m *Manager) CompareVersions(ctx context.Context, text string, opts Options) *Comparison {
	rejected := security.ValidateQueryText(text) != nil
	cmp := &Comparison{Query: text, Forced: opts.ForceComparison && !rejected}
	opts.BypassCache = true

	if cmp.Forced {
		var g errgroup.Group
		g.Go(func() error {
			cmp.Fast = m.Answer(ctx, text, opts)
			return nil
		})
		g.Go(func() error {
			cmp.Fallback = m.timedFallback(ctx, text, opts)
			return nil
		})
		_ = g.Wait()
	} else {
		cmp.Fast = m.Answer(ctx, text, opts)
		if !cmp.Fast.Success && cmp.Fast.ErrorKind != apperrors.KindInputRejected {
			cmp.Fallback = m.timedFallback(ctx, text, opts)
		}
	}

	if cmp.Fast.Success && cmp.Fallback != nil && cmp.Fallback.Success {
		cmp.Summary = summarize(cmp.Fast, cmp.Fallback)
	}
	return cmp
}

// timedFallback runs the fallback answerer and records its metric.
func (m *Manager) timedFallback(ctx context.Context, text string, opts Options) *AnswerResult {
	start := m.now()
	pq := m.classifier.Classify(text)

	ans, err := m.answerFallback(ctx, text, pq, opts)
	if err != nil {
		ans = &AnswerResult{
			Method:        metrics.MethodError,
			Intent:        string(pq.Intent),
			Confidence:    pq.Confidence,
			ErrorKind:     apperrors.KindFallback,
			Error:         err.Error(),
			FallbackError: err.Error(),
		}
	}
	m.finish(ctx, text, ans, start, opts)
	return ans
}

func summarize(fast, fb *AnswerResult) *Summary {
	s := &Summary{
		FastMs:     fast.ProcessingTimeMs,
		FallbackMs: fb.ProcessingTimeMs,
	}

	if fb.ProcessingTimeMs > 0 {
		s.SpeedDeltaPercent = round1((fb.ProcessingTimeMs - fast.ProcessingTimeMs) / fb.ProcessingTimeMs * 100)
	}
	switch {
	case s.SpeedDeltaPercent > comparableSpeedBand:
		s.Recommendation = PreferFast
	case s.SpeedDeltaPercent < -comparableSpeedBand:
		s.Recommendation = PreferFallback
	default:
		s.Recommendation = Comparable
	}

	fastLen := utf8.RuneCountInString(fast.Answer)
	fbLen := utf8.RuneCountInString(fb.Answer)
	ratio := moreDetailRatio + 1
	if fbLen > 0 {
		ratio = float64(fastLen) / float64(fbLen)
		s.LengthRatio = round1(ratio)
	}
	switch {
	case ratio < lessDetailRatio:
		s.Accuracy = AccuracyLessDetail
	case ratio > moreDetailRatio:
		s.Accuracy = AccuracyMoreDetail
	default:
		s.Accuracy = AccuracySimilar
	}
	return s
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
