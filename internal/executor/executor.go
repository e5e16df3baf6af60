// Package executor runs the data query behind each intent against the
// document store, retrying transient failures.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/ricesearch/quickquery/internal/config"
	"github.com/ricesearch/quickquery/internal/docstore"
	apperrors "github.com/ricesearch/quickquery/internal/pkg/errors"
	"github.com/ricesearch/quickquery/internal/pkg/logger"
	"github.com/ricesearch/quickquery/internal/query"
	"github.com/ricesearch/quickquery/internal/result"
)

// Defaults.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

// handler executes one intent once.
type handler func(ctx context.Context, p query.ParameterSet) (*result.QueryResult, error)

// RetryHook observes every failed attempt that will be retried.
type RetryHook func(intent query.Intent, attempt int, err error)

// Option customizes an Executor.
type Option func(*Executor)

// WithClock overrides the time source used for date windows.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithRetryHook registers a retry observer.
func WithRetryHook(h RetryHook) Option {
	return func(e *Executor) { e.onRetry = h }
}

// Executor maps intents to document-store queries.
type Executor struct {
	store    docstore.Store
	attempts int
	delay    time.Duration
	now      func() time.Time
	onRetry  RetryHook
	handlers map[query.Intent]handler
	log      *logger.Logger
}

// New creates an executor reading from store.
func New(store docstore.Store, cfg config.ExecutorConfig, log *logger.Logger, opts ...Option) *Executor {
	e := &Executor{
		store:    store,
		attempts: cfg.MaxAttempts,
		delay:    cfg.RetryDelay,
		now:      time.Now,
		log:      logger.OrDefault(log).WithComponent("executor"),
	}
	if e.attempts <= 0 {
		e.attempts = DefaultMaxAttempts
	}
	if e.delay <= 0 {
		e.delay = DefaultRetryDelay
	}
	for _, opt := range opts {
		opt(e)
	}
	e.handlers = e.routes()
	return e
}

// Supports reports whether an intent has a handler.
func (e *Executor) Supports(intent query.Intent) bool {
	_, ok := e.handlers[intent]
	return ok
}

// Execute runs the handler for intent. It never returns an error: failures
// become results with Success=false, the classified kind and the number of
// retries used. Retryable failures are retried with exponential backoff.
func (e *Executor) Execute(ctx context.Context, intent query.Intent, params query.ParameterSet) *result.QueryResult {
	log := e.log.WithContext(ctx)

	h, ok := e.handlers[intent]
	if !ok {
		return result.Failure(string(intent), apperrors.KindValidation,
			fmt.Sprintf("no query handler for intent %q", intent), 0)
	}

	var (
		res      *result.QueryResult
		attempts int
	)

	err := retry.Do(
		func() error {
			attempts++
			r, err := e.executeOnce(ctx, h, params)
			if err != nil {
				return classified(err)
			}
			res = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(e.attempts)),
		retry.Delay(e.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			if int(n)+1 >= e.attempts {
				return
			}
			log.Warn("Data query failed, retrying",
				"intent", intent,
				"attempt", n+1,
				"kind", ClassifyError(err),
				"error", err,
			)
			if e.onRetry != nil {
				e.onRetry(intent, int(n)+1, err)
			}
		}),
	)

	retries := attempts - 1
	if err != nil {
		kind := ClassifyError(err)
		log.Error("Data query failed",
			"intent", intent,
			"kind", kind,
			"retries", retries,
			"error", err,
		)
		return result.Failure(string(intent), kind, cause(err), retries)
	}

	res.Intent = string(intent)
	res.RetryCount = retries
	return res
}

// executeOnce runs a handler a single time, turning panics into errors.
func (e *Executor) executeOnce(ctx context.Context, h handler, p query.ParameterSet) (res *result.QueryResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal: query handler panicked: %v", r)
		}
	}()
	return h(ctx, p)
}

func (e *Executor) routes() map[query.Intent]handler {
	return map[query.Intent]handler{
		query.IntentRecipeWeightFilter: e.recipeWeightFilter,
		query.IntentRecipeCount:        e.countOf(docstore.Recipes, ""),
		query.IntentInventoryCount:     e.inventoryCount,
		query.IntentOrderCount:         e.countOf(docstore.Orders, "status"),
		query.IntentProductionCount:    e.countOf(docstore.ProductionTasks, "status"),
		query.IntentSupplierCount:      e.countOf(docstore.Suppliers, ""),
		query.IntentCustomerCount:      e.countOf(docstore.Customers, ""),

		query.IntentInventoryLowStock: e.lowStock,

		query.IntentOrdersByCustomer:  e.ordersByCustomer,
		query.IntentOrderStatus:       e.statusBreakdown(docstore.Orders),
		query.IntentProductionPlanned: e.plannedProduction,
		query.IntentProductionStatus:  e.statusBreakdown(docstore.ProductionTasks),

		query.IntentRecipeList:    e.listOf(docstore.Recipes),
		query.IntentInventoryList: e.listOf(docstore.Inventory),

		query.IntentTrendAnalysis:     e.analyze(query.IntentTrendAnalysis),
		query.IntentForecast:          e.analyze(query.IntentForecast),
		query.IntentOptimization:      e.analyze(query.IntentOptimization),
		query.IntentRecommendation:    e.analyze(query.IntentRecommendation),
		query.IntentRiskAnalysis:      e.analyze(query.IntentRiskAnalysis),
		query.IntentPlanning:          e.analyze(query.IntentPlanning),
		query.IntentFinancialAnalysis: e.analyze(query.IntentFinancialAnalysis),
		query.IntentGeneralOverview:   e.overview,
	}
}
