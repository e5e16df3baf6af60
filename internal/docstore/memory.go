package docstore

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Memory is an in-process Store. It supports fault injection for tests.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]Doc

	faultMu    sync.Mutex
	fault      error
	faultTimes int

	calls atomic.Int64
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]Doc)}
}

// Insert implements Inserter. Documents with an existing ID replace it.
func (m *Memory) Insert(ctx context.Context, collection string, docs ...Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.data[collection]
	index := make(map[string]int, len(existing))
	for i, d := range existing {
		index[d.ID] = i
	}

	for _, d := range docs {
		if i, ok := index[d.ID]; ok && d.ID != "" {
			existing[i] = d
			continue
		}
		index[d.ID] = len(existing)
		existing = append(existing, d)
	}
	m.data[collection] = existing
	return nil
}

// InjectFault makes the next times calls fail with err. times < 0 fails
// every call until ClearFault.
func (m *Memory) InjectFault(err error, times int) {
	m.faultMu.Lock()
	defer m.faultMu.Unlock()
	m.fault = err
	m.faultTimes = times
}

// ClearFault removes any injected fault.
func (m *Memory) ClearFault() {
	m.InjectFault(nil, 0)
}

// Calls returns the number of Find and Count calls made.
func (m *Memory) Calls() int {
	return int(m.calls.Load())
}

func (m *Memory) nextFault() error {
	m.calls.Add(1)

	m.faultMu.Lock()
	defer m.faultMu.Unlock()

	if m.fault == nil || m.faultTimes == 0 {
		return nil
	}
	if m.faultTimes > 0 {
		m.faultTimes--
	}
	return m.fault
}

// Find implements Store.
func (m *Memory) Find(ctx context.Context, collection string, q Query) ([]Doc, error) {
	if err := m.nextFault(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validate(q); err != nil {
		return nil, err
	}

	m.mu.RLock()
	docs := m.data[collection]
	out := make([]Doc, 0, len(docs))
	for _, d := range docs {
		if matchesAll(d, q.Where) {
			out = append(out, d)
		}
	}
	m.mu.RUnlock()

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c, _ := compareValues(out[i].Get(q.OrderBy), out[j].Get(q.OrderBy))
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Count implements Counter.
func (m *Memory) Count(ctx context.Context, collection string, where ...Predicate) (int, error) {
	if err := m.nextFault(); err != nil {
		return 0, err
	}
	if err := validate(Query{Where: where}); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, d := range m.data[collection] {
		if matchesAll(d, where) {
			n++
		}
	}
	return n, nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}

func matchesAll(d Doc, where []Predicate) bool {
	for _, p := range where {
		if !p.Matches(d) {
			return false
		}
	}
	return true
}
