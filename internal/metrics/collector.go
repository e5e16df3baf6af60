package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ricesearch/quickquery/internal/config"
	"github.com/ricesearch/quickquery/internal/kvstore"
	"github.com/ricesearch/quickquery/internal/pkg/logger"
)

// RecordsKey is the durable key holding the record ring buffer.
const RecordsKey = "metrics:records"

// DefaultMaxRecords bounds the ring buffer when the config leaves it unset.
const DefaultMaxRecords = 1000

// Collector appends MetricRecords to a bounded ring buffer in a durable
// store and derives statistics from it. Record never fails the caller.
type Collector struct {
	kv   kvstore.Store
	max  int
	inst *Instruments
	log  *logger.Logger
	now  func() time.Time

	mu sync.Mutex
}

// NewCollector creates a collector. inst may be nil.
func NewCollector(kv kvstore.Store, cfg config.MetricsConfig, inst *Instruments, log *logger.Logger) *Collector {
	limit := cfg.MaxRecords
	if limit <= 0 {
		limit = DefaultMaxRecords
	}
	return &Collector{
		kv:   kv,
		max:  limit,
		inst: inst,
		log:  logger.OrDefault(log).WithComponent("metrics"),
		now:  time.Now,
	}
}

// SetClock replaces the time source.
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

// Record appends rec, pruning the oldest records beyond the buffer size.
// When the store reports it is full, the oldest half is dropped and the
// write retried once. Failures are logged and discarded.
func (c *Collector) Record(ctx context.Context, rec MetricRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = c.now()
	}
	rec.Query = SanitizeQuery(rec.Query)
	c.inst.ObserveAnswer(rec)

	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load(ctx)
	if err != nil {
		// Writing now would replace the stored buffer with this one record.
		c.log.WithError(err).Warn("Skipping metric record, stored records unreadable")
		return
	}
	records = append(records, rec)
	if len(records) > c.max {
		records = records[len(records)-c.max:]
	}

	err = c.write(ctx, records)
	if kvstore.IsCapacityExceeded(err) {
		keep := len(records) / 2
		c.log.Warn("Metrics storage full, pruning", "records", len(records), "keep", keep)
		err = c.write(ctx, records[len(records)-keep:])
	}
	if err != nil {
		c.log.WithError(err).Warn("Failed to record metric")
	}
}

// Records returns the records inside window, oldest first.
func (c *Collector) Records(ctx context.Context, w Window) []MetricRecord {
	c.mu.Lock()
	records, err := c.load(ctx)
	c.mu.Unlock()
	if err != nil {
		c.log.WithError(err).Warn("Failed to load metrics")
		return nil
	}

	cutoff := w.Cutoff(c.now())
	if cutoff.IsZero() {
		return records
	}
	out := make([]MetricRecord, 0, len(records))
	for _, r := range records {
		if !r.Timestamp.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// Stats computes aggregates over window.
func (c *Collector) Stats(ctx context.Context, w Window) Stats {
	return Compute(c.Records(ctx, w), w, c.now())
}

// Clear drops every stored record.
func (c *Collector) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.kv.Delete(ctx, RecordsKey); err != nil {
		c.log.WithError(err).Warn("Failed to clear metrics")
	}
}

// load returns the stored records. A missing key is an empty buffer; a
// corrupt one is discarded. Any other store error is returned.
func (c *Collector) load(ctx context.Context) ([]MetricRecord, error) {
	data, err := c.kv.Load(ctx, RecordsKey)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var records []MetricRecord
	if err := json.Unmarshal(data, &records); err != nil {
		c.log.WithError(err).Warn("Discarding corrupt metrics")
		return nil, nil
	}
	return records, nil
}

func (c *Collector) write(ctx context.Context, records []MetricRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return c.kv.Save(ctx, RecordsKey, data)
}
