package query

import (
	"fmt"
	"math"

	"github.com/ricesearch/quickquery/internal/config"
	"github.com/ricesearch/quickquery/internal/pkg/logger"
	"github.com/ricesearch/quickquery/internal/pkg/security"
)

// Confidence increments.
const (
	baseConfidence     = 0.5
	specificIntentBump = 0.3
	parametersBump     = 0.2
	numbersBump        = 0.1
	operatorBump       = 0.1

	// DefaultWeightIntentCap caps weight intents that carry no unit or filter.
	DefaultWeightIntentCap = 0.6
)

// Classifier implements rule-based intent recognition.
type Classifier struct {
	rules     []rule
	weightCap float64
	log       *logger.Logger
}

// NewClassifier creates a classifier with the built-in rule table.
func NewClassifier(cfg config.ClassifierConfig, log *logger.Logger) *Classifier {
	weightCap := cfg.WeightIntentCap
	if weightCap <= 0 {
		weightCap = DefaultWeightIntentCap
	}
	return &Classifier{
		rules:     defaultRules(),
		weightCap: weightCap,
		log:       logger.OrDefault(log).WithComponent("classifier"),
	}
}

// Classify turns free text into a ParsedQuery. It never fails: rejected
// input and internal faults yield intent unknown with confidence 0.
func (c *Classifier) Classify(text string) (pq *ParsedQuery) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Classification panicked", "panic", r)
			pq = rejected(text, fmt.Sprintf("classification failed: %v", r))
		}
	}()

	if err := security.ValidateQueryText(text); err != nil {
		c.log.Debug("Query rejected", "reason", err.Error(), "query", security.SanitizeForLog(text, 100))
		return rejected(text, err.Error())
	}

	norm := Normalize(text)
	fold := Fold(norm)

	intent, ruleName := matchIntent(c.rules, norm, fold)
	params := extractParameters(norm, fold)

	pq = &ParsedQuery{
		Raw:        text,
		Normalized: norm,
		Folded:     fold,
		Intent:     intent,
		Parameters: params,
		Confidence: score(intent, params),
	}
	ValidateParsed(pq, c.weightCap)

	c.log.Debug("Classified query",
		"intent", pq.Intent,
		"rule", ruleName,
		"confidence", pq.Confidence,
		"numbers", len(params.Numbers),
		"filters", len(pq.Parameters.Filters),
	)

	return pq
}

func rejected(text, reason string) *ParsedQuery {
	return &ParsedQuery{
		Raw:        text,
		Intent:     IntentUnknown,
		Confidence: 0,
		Warnings:   []string{reason},
	}
}

// score computes the additive confidence for an intent and its parameters.
func score(intent Intent, p ParameterSet) float64 {
	conf := baseConfidence
	if intent != IntentGeneralOverview && intent != IntentUnknown {
		conf += specificIntentBump
	}
	if !p.Empty() {
		conf += parametersBump
	}
	if len(p.Numbers) > 0 {
		conf += numbersBump
	}
	if p.Operator != OpNone {
		conf += operatorBump
	}
	return round2(math.Min(conf, 1.0))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ValidateParsed strips parameters that fail sanity checks and clamps
// confidence for weight intents that lack a unit or filter. Each correction
// appends a warning.
func ValidateParsed(pq *ParsedQuery, weightCap float64) {
	p := &pq.Parameters

	numbers := p.Numbers[:0:0]
	for _, n := range p.Numbers {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			pq.Warnings = append(pq.Warnings, fmt.Sprintf("dropped non-finite number %v", n))
			continue
		}
		numbers = append(numbers, n)
	}
	p.Numbers = numbers

	if !p.Operator.Valid() {
		pq.Warnings = append(pq.Warnings, fmt.Sprintf("dropped unknown operator %q", p.Operator))
		p.Operator = OpNone
	}
	if p.Status != "" && !validStatuses[p.Status] {
		pq.Warnings = append(pq.Warnings, fmt.Sprintf("dropped unknown status %q", p.Status))
		p.Status = ""
	}
	if p.TimePeriod != "" && !validPeriods[p.TimePeriod] {
		pq.Warnings = append(pq.Warnings, fmt.Sprintf("dropped unknown time period %q", p.TimePeriod))
		p.TimePeriod = ""
	}
	if p.Comparison != "" && !validComparisons[p.Comparison] {
		pq.Warnings = append(pq.Warnings, fmt.Sprintf("dropped unknown comparison %q", p.Comparison))
		p.Comparison = ""
	}

	filters := p.Filters[:0:0]
	for _, f := range p.Filters {
		if f.Operator == OpNone || !f.Operator.Valid() ||
			math.IsNaN(f.Value) || math.IsInf(f.Value, 0) || f.Value < 0 {
			pq.Warnings = append(pq.Warnings, fmt.Sprintf("dropped malformed filter %s %v", f.Operator, f.Value))
			continue
		}
		filters = append(filters, f)
	}
	p.Filters = filters

	if pq.Intent == IntentRecipeWeightFilter && p.Unit == "" && len(p.Filters) == 0 && pq.Confidence > weightCap {
		pq.Confidence = weightCap
		pq.Warnings = append(pq.Warnings, "weight question without unit or threshold")
	}
}
