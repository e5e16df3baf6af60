// Package app builds the answering pipeline from configuration. The HTTP
// server and the command line share it.
package app

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/ricesearch/quickquery/internal/bus"
	"github.com/ricesearch/quickquery/internal/cache"
	"github.com/ricesearch/quickquery/internal/config"
	"github.com/ricesearch/quickquery/internal/docstore"
	"github.com/ricesearch/quickquery/internal/executor"
	"github.com/ricesearch/quickquery/internal/fallback"
	"github.com/ricesearch/quickquery/internal/feedback"
	"github.com/ricesearch/quickquery/internal/kvstore"
	"github.com/ricesearch/quickquery/internal/manager"
	"github.com/ricesearch/quickquery/internal/metrics"
	"github.com/ricesearch/quickquery/internal/pkg/logger"
	"github.com/ricesearch/quickquery/internal/query"
	"github.com/ricesearch/quickquery/internal/render"
	"github.com/ricesearch/quickquery/internal/worker"
)

// App holds every long-lived component.
type App struct {
	Config *config.Config

	KV          kvstore.Store
	Docs        docstore.Store
	Bus         bus.Bus
	Instruments *metrics.Instruments
	Metrics     *metrics.Collector
	Cache       *cache.Cache
	Pool        *worker.Pool
	Manager     *manager.Manager

	log *logger.Logger
}

// New opens the stores and the bus and assembles the manager. On error,
// everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (a *App, err error) {
	log = logger.OrDefault(log)
	a = &App{Config: cfg, log: log.WithComponent("app")}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
			a = nil
		}
	}()

	if cfg.Metrics.Prometheus {
		a.Instruments = metrics.NewInstruments()
	}

	a.KV, err = kvstore.New(cfg.KV)
	if err != nil {
		return a, fmt.Errorf("opening kv store: %w", err)
	}

	a.Docs, err = docstore.New(ctx, cfg.DocStore)
	if err != nil {
		return a, fmt.Errorf("opening doc store: %w", err)
	}

	var rec bus.Recorder
	if a.Instruments != nil {
		rec = a.Instruments
	}
	a.Bus, err = bus.NewBus(cfg.Bus, rec, log)
	if err != nil {
		return a, fmt.Errorf("creating event bus: %w", err)
	}

	a.Metrics = metrics.NewCollector(a.KV, cfg.Metrics, a.Instruments, log)
	if cfg.Cache.Enabled {
		a.Cache = cache.New(a.KV, cfg.Cache, log)
	}
	a.Pool = worker.New(worker.Config{Workers: cfg.Manager.BackgroundWorkers}, log)

	inst := a.Instruments
	exec := executor.New(a.Docs, cfg.Executor, log,
		executor.WithRetryHook(func(intent query.Intent, _ int, _ error) {
			inst.ObserveRetry(string(intent))
		}),
	)

	a.Manager = manager.New(cfg.Manager, manager.Deps{
		Classifier:  query.NewClassifier(cfg.Classifier, log),
		Executor:    exec,
		Renderer:    render.New(log),
		Cache:       a.Cache,
		Metrics:     a.Metrics,
		Feedback:    feedback.NewBusSink(a.Bus, log),
		Fallback:    fallback.New(cfg.Fallback),
		Pool:        a.Pool,
		Instruments: a.Instruments,
		KV:          a.KV,
	}, log)

	a.log.Info("Pipeline ready",
		"kv", cfg.KV.Type,
		"docstore", cfg.DocStore.Type,
		"bus", cfg.Bus.Type,
		"cache", cfg.Cache.Enabled,
		"fallback", cfg.Fallback.URL != "",
	)
	return a, nil
}

// WatchFeedback consumes the feedback topics of the bus and counts every
// event into the Prometheus instruments.
func (a *App) WatchFeedback(ctx context.Context) error {
	inst := a.Instruments
	log := a.log
	return feedback.Subscribe(ctx, a.Bus, func(ctx context.Context, e bus.Event) error {
		inst.ObserveFeedback(e.Type)
		log.WithContext(ctx).Debug("Feedback event received",
			"topic", e.Type,
			"event_id", e.ID,
			"correlation_id", e.CorrelationID,
		)
		return nil
	})
}

// Close drains background work and releases every component, reporting
// all failures.
func (a *App) Close(ctx context.Context) error {
	var result *multierror.Error

	if a.Pool != nil {
		if err := a.Pool.Close(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("draining background tasks: %w", err))
		}
	}
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing bus: %w", err))
		}
	}
	if a.Docs != nil {
		if err := a.Docs.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing doc store: %w", err))
		}
	}
	if a.KV != nil {
		if err := a.KV.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing kv store: %w", err))
		}
	}

	return result.ErrorOrNil()
}
