package query

import "regexp"

// Word boundaries. RE2's \b is ASCII-only, which breaks on Polish letters.
const (
	lb = `(?:^|[^\p{L}\p{N}])`
	rb = `(?:[^\p{L}\p{N}]|$)`
)

// variant selects which rendering of the text a cue is matched against.
type variant int

const (
	normalized variant = iota
	folded
)

// cue is a keyword group compiled for both the accented and the folded text.
type cue [2]*regexp.Regexp

func newCue(pattern string) cue {
	return cue{regexp.MustCompile(pattern), regexp.MustCompile(Fold(pattern))}
}

func prefixCue(alts string) cue { return newCue(lb + `(?:` + alts + `)`) }
func wordCue(alts string) cue   { return newCue(lb + `(?:` + alts + `)` + rb) }

func (c cue) in(v variant, s string) bool {
	return c[v].MatchString(s)
}

// Keyword groups.
var (
	cueCount  = wordCue(`ile|ilu|ilość|ilości|liczb\p{L}*|policz\p{L}*|count|how many|number of`)
	cueWeight = newCue(lb + `(?:składnik|ingredient|wag[aięą]|waż|sum[aęy]|gram|kilogram|weigh)|\d\s*(?:kg|dag|dkg|mg|g)(?:[^\p{L}]|$)`)

	cueRecipe     = prefixCue(`receptur|przepis|recipe`)
	cueInventory  = prefixCue(`magazyn|zapas|inwentarz|surowc|surowiec|stock|inventory`)
	cueOrder      = prefixCue(`zamówi|order`)
	cueProduction = prefixCue(`produkc|zadań|zadani|partii|partie|production|task|batch`)
	cueSupplier   = prefixCue(`dostawc|supplier|vendor`)
	cueCustomer   = prefixCue(`klient|odbiorc|customer|client`)

	cueLowStock = prefixCue(`nisk|mało|brak|kończ|wyczerp|niedobor|low|running out|shortage`)
	cueGreater  = newCue(lb + `(?:więcej|ponad|powyżej|większ\p{L}*|przekracz\p{L}*|more|greater|over|above|exceed\p{L}*)` + rb + `|>`)
	cueLess     = newCue(lb + `(?:mniej|poniżej|mniejsz\p{L}*|less|fewer|under|below)` + rb + `|<`)
	cueEqual    = newCue(lb + `(?:równ\p{L}*|dokładnie|exactly|equal\p{L}*)` + rb + `|=`)

	cueStatus = prefixCue(`status|stan|oczekując|w realizacji|w trakcie|w toku|zrealizowan|zakończon|ukończon|anulowan|gotow|pending|completed|cancel|in progress`)
	cueTime   = prefixCue(`dziś|dzisiaj|dzisiejsz|jutr|tydzie|tygodni|miesi|zaplanowan|planowan|today|tomorrow|week|month|planned|scheduled|upcoming`)

	cueTrend          = prefixCue(`trend|tendencj|zmian\p{L}* w czasie|dynamik|over time`)
	cueForecast       = prefixCue(`prognoz|przewid|forecast|predict|projection`)
	cueOptimization   = prefixCue(`optymaliz|zoptymaliz|usprawn|wydajnoś|optimi|efficien`)
	cueRecommendation = prefixCue(`rekomend|poleć|zaleć|sugest|suger|doradź|recommend|suggest|advice|advise`)
	cueRisk           = prefixCue(`ryzyk|zagroż|risk|threat`)
	cuePlanning       = prefixCue(`zaplanuj|planowa|plan|harmonogram|schedul`)
	cueFinancial      = prefixCue(`koszt|przych|zysk|finans|marż|budżet|rentown|revenue|cost|profit|financ|margin|budget`)
)

// predicate reports whether a text variant satisfies a rule.
type predicate func(v variant, s string) bool

func allOf(cues ...cue) predicate {
	return func(v variant, s string) bool {
		for _, c := range cues {
			if !c.in(v, s) {
				return false
			}
		}
		return true
	}
}

func anyOf(cues ...cue) predicate {
	return func(v variant, s string) bool {
		for _, c := range cues {
			if c.in(v, s) {
				return true
			}
		}
		return false
	}
}

func both(a, b predicate) predicate {
	return func(v variant, s string) bool { return a(v, s) && b(v, s) }
}

// rule maps a predicate to an intent.
type rule struct {
	name   string
	match  predicate
	intent Intent
}

// defaultRules is the ordered rule table. First match wins; the analytic
// group is only reached when no basic rule matched.
func defaultRules() []rule {
	return []rule{
		// Count + entity.
		{"recipe weight count", allOf(cueRecipe, cueCount, cueWeight), IntentRecipeWeightFilter},
		{"recipe count", allOf(cueRecipe, cueCount), IntentRecipeCount},
		{"inventory count", allOf(cueInventory, cueCount), IntentInventoryCount},
		{"order count", allOf(cueOrder, cueCount), IntentOrderCount},
		{"production count", allOf(cueProduction, cueCount), IntentProductionCount},
		{"supplier count", allOf(cueSupplier, cueCount), IntentSupplierCount},
		{"customer count", allOf(cueCustomer, cueCount), IntentCustomerCount},

		// Quantity + entity.
		{"low stock", both(allOf(cueInventory), anyOf(cueLowStock, cueGreater, cueLess)), IntentInventoryLowStock},

		// Grouped and status.
		{"orders by customer", allOf(cueOrder, cueCustomer), IntentOrdersByCustomer},
		{"order status", allOf(cueOrder, cueStatus), IntentOrderStatus},
		{"planned production", allOf(cueProduction, cueTime), IntentProductionPlanned},
		{"production status", allOf(cueProduction, cueStatus), IntentProductionStatus},

		// Bare entity.
		{"recipe list", allOf(cueRecipe), IntentRecipeList},
		{"inventory list", allOf(cueInventory), IntentInventoryList},

		// Analytic.
		{"trend", allOf(cueTrend), IntentTrendAnalysis},
		{"forecast", allOf(cueForecast), IntentForecast},
		{"optimization", allOf(cueOptimization), IntentOptimization},
		{"recommendation", allOf(cueRecommendation), IntentRecommendation},
		{"risk", allOf(cueRisk), IntentRiskAnalysis},
		{"planning", allOf(cuePlanning), IntentPlanning},
		{"financial", allOf(cueFinancial), IntentFinancialAnalysis},
	}
}

// matchIntent returns the first rule matching the normalized text or, failing
// that, its folded variant.
func matchIntent(rules []rule, norm, fold string) (Intent, string) {
	for _, r := range rules {
		if r.match(normalized, norm) || r.match(folded, fold) {
			return r.intent, r.name
		}
	}
	return IntentGeneralOverview, "default"
}

// Category names used by Categories.
const (
	CategoryRecipes    = "recipes"
	CategoryInventory  = "inventory"
	CategoryOrders     = "orders"
	CategoryProduction = "production"
	CategorySuppliers  = "suppliers"
	CategoryCustomers  = "customers"
)

// AllCategories lists every business category in a fixed order.
var AllCategories = []string{
	CategoryRecipes, CategoryInventory, CategoryOrders,
	CategoryProduction, CategorySuppliers, CategoryCustomers,
}

var categoryCues = map[string]cue{
	CategoryRecipes:    cueRecipe,
	CategoryInventory:  cueInventory,
	CategoryOrders:     cueOrder,
	CategoryProduction: cueProduction,
	CategorySuppliers:  cueSupplier,
	CategoryCustomers:  cueCustomer,
}

// Categories reports, for every business category, whether the normalized
// text mentions it.
func Categories(text string) map[string]bool {
	fold := Fold(text)
	out := make(map[string]bool, len(AllCategories))
	for _, name := range AllCategories {
		c := categoryCues[name]
		out[name] = c.in(normalized, text) || c.in(folded, fold)
	}
	return out
}

// ComparisonCues reports which comparison-operator cues the normalized text
// contains.
func ComparisonCues(text string) (greater, less, equal bool) {
	fold := Fold(text)
	hit := func(c cue) bool { return c.in(normalized, text) || c.in(folded, fold) }
	return hit(cueGreater), hit(cueLess), hit(cueEqual)
}
