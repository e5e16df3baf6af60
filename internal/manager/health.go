package manager

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ricesearch/quickquery/internal/render"
)

// HealthQuery is the canned question run by Health.
const HealthQuery = "Ile jest receptur w systemie?"

const healthProbeKey = "health:probe"

// Health is the outcome of a readiness check.
type Health struct {
	Status     string               `json:"status"` // healthy, unhealthy
	Healthy    bool                 `json:"healthy"`
	Timestamp  time.Time            `json:"timestamp"`
	LatencyMs  float64              `json:"latency_ms"`
	Components map[string]Component `json:"components"`
}

// Component is the health of one stage.
type Component struct {
	OK        bool    `json:"ok"`
	Message   string  `json:"message,omitempty"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
}

// Health runs HealthQuery through the fast path without touching the
// cache or the metrics, and probes the key/value store when configured.
// The returned error lists every failing component.
func (m *Manager) Health(ctx context.Context) (*Health, error) {
	start := m.now()
	h := &Health{
		Timestamp:  start,
		Components: make(map[string]Component),
	}
	var errs *multierror.Error
	check := func(name string, began time.Time, err error) {
		c := Component{OK: err == nil, LatencyMs: millis(m.now().Sub(began))}
		if err != nil {
			c.Message = err.Error()
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
		h.Components[name] = c
	}

	began := m.now()
	pq := m.classifier.Classify(HealthQuery)
	var err error
	if !m.CanHandle(pq) {
		err = fmt.Errorf("canned query classified as %s with confidence %.2f", pq.Intent, pq.Confidence)
	}
	check("classifier", began, err)

	began = m.now()
	res := m.executor.Execute(ctx, pq.Intent, pq.Parameters)
	err = nil
	if !res.Success {
		err = fmt.Errorf("%s: %s", res.ErrorKind, res.Error)
	}
	check("executor", began, err)

	began = m.now()
	out := m.renderer.Render(pq.Intent, res, pq.Parameters)
	err = nil
	if res.Success && (strings.TrimSpace(out) == "" || out == render.RenderFailedMessage) {
		err = fmt.Errorf("template produced no answer")
	}
	check("renderer", began, err)

	if m.kv != nil {
		began = m.now()
		check("kvstore", began, m.probeKV(ctx))
	}

	h.LatencyMs = millis(m.now().Sub(start))
	h.Healthy = errs == nil
	h.Status = "healthy"
	if !h.Healthy {
		h.Status = "unhealthy"
		m.log.WithContext(ctx).Warn("Health check failed", "error", errs.Error())
	}
	return h, errs.ErrorOrNil()
}

func (m *Manager) probeKV(ctx context.Context) error {
	want := []byte(m.now().UTC().Format(time.RFC3339Nano))
	if err := m.kv.Save(ctx, healthProbeKey, want); err != nil {
		return err
	}
	got, err := m.kv.Load(ctx, healthProbeKey)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("probe value mismatch")
	}
	return m.kv.Delete(ctx, healthProbeKey)
}
