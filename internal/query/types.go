// Package query classifies free-text business questions into intents with
// extracted parameters and a confidence score.
package query

import "math"

// Intent names a class of question the fast path knows how to answer.
type Intent string

const (
	// Count + entity.
	IntentRecipeWeightFilter Intent = "recipe_weight_filter"
	IntentRecipeCount        Intent = "recipe_count"
	IntentInventoryCount     Intent = "inventory_count"
	IntentOrderCount         Intent = "order_count"
	IntentProductionCount    Intent = "production_count"
	IntentSupplierCount      Intent = "supplier_count"
	IntentCustomerCount      Intent = "customer_count"

	// Quantity + entity.
	IntentInventoryLowStock Intent = "inventory_low_stock"

	// Grouped and status.
	IntentOrdersByCustomer  Intent = "orders_by_customer"
	IntentOrderStatus       Intent = "order_status"
	IntentProductionPlanned Intent = "production_planned"
	IntentProductionStatus  Intent = "production_status"

	// Bare entity.
	IntentRecipeList    Intent = "recipe_list"
	IntentInventoryList Intent = "inventory_list"

	// Analytic.
	IntentTrendAnalysis     Intent = "trend_analysis"
	IntentForecast          Intent = "forecast"
	IntentOptimization      Intent = "optimization"
	IntentRecommendation    Intent = "recommendation"
	IntentRiskAnalysis      Intent = "risk_analysis"
	IntentPlanning          Intent = "planning"
	IntentFinancialAnalysis Intent = "financial_analysis"

	// IntentGeneralOverview is the default when no rule matches.
	IntentGeneralOverview Intent = "general_overview"

	// IntentUnknown marks rejected input.
	IntentUnknown Intent = "unknown"
)

// Intents lists every answerable intent in rule order.
var Intents = []Intent{
	IntentRecipeWeightFilter, IntentRecipeCount, IntentInventoryCount, IntentOrderCount,
	IntentProductionCount, IntentSupplierCount, IntentCustomerCount,
	IntentInventoryLowStock,
	IntentOrdersByCustomer, IntentOrderStatus, IntentProductionPlanned, IntentProductionStatus,
	IntentRecipeList, IntentInventoryList,
	IntentTrendAnalysis, IntentForecast, IntentOptimization, IntentRecommendation,
	IntentRiskAnalysis, IntentPlanning, IntentFinancialAnalysis,
	IntentGeneralOverview,
}

// IsAnalytic reports whether the intent belongs to the advanced group.
func (i Intent) IsAnalytic() bool {
	switch i {
	case IntentTrendAnalysis, IntentForecast, IntentOptimization, IntentRecommendation,
		IntentRiskAnalysis, IntentPlanning, IntentFinancialAnalysis:
		return true
	}
	return false
}

// Operator is a comparison operator.
type Operator string

const (
	OpNone    Operator = ""
	OpGreater Operator = ">"
	OpLess    Operator = "<"
	OpEqual   Operator = "="
)

// Valid reports whether op is one of the known operators.
func (op Operator) Valid() bool {
	switch op {
	case OpNone, OpGreater, OpLess, OpEqual:
		return true
	}
	return false
}

// Compare applies op to a and b. OpNone always matches.
func (op Operator) Compare(a, b float64) bool {
	switch op {
	case OpGreater:
		return a > b
	case OpLess:
		return a < b
	case OpEqual:
		return math.Abs(a-b) < 1e-9
	}
	return true
}

// Status of an order or production task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusPlanned    Status = "planned"
)

// TimePeriod is a relative time window.
type TimePeriod string

const (
	PeriodToday     TimePeriod = "today"
	PeriodTomorrow  TimePeriod = "tomorrow"
	PeriodThisWeek  TimePeriod = "this_week"
	PeriodNextWeek  TimePeriod = "next_week"
	PeriodThisMonth TimePeriod = "this_month"
	PeriodLastMonth TimePeriod = "last_month"
)

// Comparison is a requested period-over-period comparison.
type Comparison string

const (
	ComparePreviousPeriod Comparison = "previous_period"
	CompareYearOverYear   Comparison = "year_over_year"
)

var (
	validStatuses    = map[Status]bool{StatusPending: true, StatusInProgress: true, StatusCompleted: true, StatusCancelled: true, StatusPlanned: true}
	validPeriods     = map[TimePeriod]bool{PeriodToday: true, PeriodTomorrow: true, PeriodThisWeek: true, PeriodNextWeek: true, PeriodThisMonth: true, PeriodLastMonth: true}
	validComparisons = map[Comparison]bool{ComparePreviousPeriod: true, CompareYearOverYear: true}
)

// Filter is a numeric predicate extracted from the text.
type Filter struct {
	Operator Operator `json:"operator"`

	// Value is normalized to grams when Unit is a weight unit.
	Value float64 `json:"value"`

	OriginalValue float64 `json:"original_value"`
	Unit          string  `json:"unit,omitempty"`
}

// ParameterSet holds everything extracted from the text besides the intent.
type ParameterSet struct {
	Numbers    []float64  `json:"numbers,omitempty"`
	Operator   Operator   `json:"operator,omitempty"`
	Filters    []Filter   `json:"filters,omitempty"`
	Unit       string     `json:"unit,omitempty"`
	Status     Status     `json:"status,omitempty"`
	TimePeriod TimePeriod `json:"time_period,omitempty"`
	Comparison Comparison `json:"comparison,omitempty"`
}

// Empty reports whether nothing was extracted.
func (p ParameterSet) Empty() bool {
	return len(p.Numbers) == 0 && p.Operator == OpNone && len(p.Filters) == 0 &&
		p.Unit == "" && p.Status == "" && p.TimePeriod == "" && p.Comparison == ""
}

// ParsedQuery is the classifier's view of one question.
type ParsedQuery struct {
	Raw        string       `json:"raw"`
	Normalized string       `json:"normalized"`
	Folded     string       `json:"folded"`
	Intent     Intent       `json:"intent"`
	Parameters ParameterSet `json:"parameters"`
	Confidence float64      `json:"confidence"`
	Warnings   []string     `json:"warnings,omitempty"`
}

// Rejected reports whether the input failed validation or classification.
func (q *ParsedQuery) Rejected() bool {
	return q.Intent == IntentUnknown
}
