package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ricesearch/quickquery/internal/units"
)

var (
	numberPattern     = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	unitNumberPattern = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(kilogram\p{L}*|dekagram\p{L}*|miligram\p{L}*|gram\p{L}*|kg|dag|dkg|mg|g)(?:[^\p{L}]|$)`)
	unitWordPattern   = regexp.MustCompile(lb + `(kilogram\p{L}*|dekagram\p{L}*|miligram\p{L}*|gram\p{L}*|kg|dag|dkg|mg)` + rb)
)

type statusCue struct {
	status Status
	cue    cue
}

type periodCue struct {
	period TimePeriod
	cue    cue
}

type comparisonCue struct {
	comparison Comparison
	cue        cue
}

// Vocabularies, checked in order.
var (
	statusCues = []statusCue{
		{StatusCancelled, prefixCue(`anulowan|odwołan|cancel`)},
		{StatusCompleted, prefixCue(`zakończon|ukończon|zrealizowan|gotow|wykonan|completed|finished|done`)},
		{StatusInProgress, prefixCue(`w trakcie|w realizacji|w toku|realizowan|in progress|in_progress|ongoing`)},
		{StatusPending, prefixCue(`oczekując|nowe|nowych|pending|waiting`)},
		{StatusPlanned, prefixCue(`zaplanowan|planowan|planned|scheduled`)},
	}

	periodCues = []periodCue{
		{PeriodToday, prefixCue(`dziś|dzisiaj|dzisiejsz|today`)},
		{PeriodTomorrow, prefixCue(`jutr|tomorrow`)},
		{PeriodNextWeek, prefixCue(`(?:przyszł|następn)\p{L}* (?:tydz|tygodni)|next week`)},
		{PeriodThisWeek, prefixCue(`(?:ten|tym|tego|bieżąc\p{L}*) (?:tydz|tygodni)|this week`)},
		{PeriodLastMonth, prefixCue(`(?:poprzedni|zeszł|ostatni)\p{L}* miesi|last month|previous month`)},
		{PeriodThisMonth, prefixCue(`(?:ten|tym|tego|bieżąc\p{L}*) miesi|this month`)},
	}

	comparisonCues = []comparisonCue{
		{CompareYearOverYear, prefixCue(`rok do roku|r/r|rdr|year over year|year-over-year|yoy`)},
		{ComparePreviousPeriod, prefixCue(`poprzedni\p{L}* okres|w porównaniu|porównaj|previous period|compared to|vs`)},
	}
)

// extractParameters pulls numbers, operator, unit, enums and filters out of
// the normalized text, consulting the folded variant for cue words.
func extractParameters(norm, fold string) ParameterSet {
	var p ParameterSet

	for _, m := range numberPattern.FindAllString(norm, -1) {
		if n, ok := parseNumber(m); ok {
			p.Numbers = append(p.Numbers, n)
		}
	}

	hit := func(c cue) bool { return c.in(normalized, norm) || c.in(folded, fold) }

	switch {
	case hit(cueGreater):
		p.Operator = OpGreater
	case hit(cueLess):
		p.Operator = OpLess
	case hit(cueEqual):
		p.Operator = OpEqual
	}

	if m := unitNumberPattern.FindStringSubmatch(norm); m != nil {
		p.Unit = units.Short(m[2])
	} else if m := unitWordPattern.FindStringSubmatch(norm); m != nil {
		p.Unit = units.Short(m[1])
	}

	for _, sc := range statusCues {
		if hit(sc.cue) {
			p.Status = sc.status
			break
		}
	}
	for _, pc := range periodCues {
		if hit(pc.cue) {
			p.TimePeriod = pc.period
			break
		}
	}
	for _, cc := range comparisonCues {
		if hit(cc.cue) {
			p.Comparison = cc.comparison
			break
		}
	}

	if len(p.Numbers) > 0 && p.Operator != OpNone {
		for _, n := range p.Numbers {
			value := n
			if p.Unit != "" {
				if grams, ok := units.ToGrams(n, p.Unit); ok {
					value = grams
				}
			}
			p.Filters = append(p.Filters, Filter{
				Operator:      p.Operator,
				Value:         value,
				OriginalValue: n,
				Unit:          p.Unit,
			})
		}
	}

	return p
}

func parseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	return n, err == nil
}
