// Package docstore is the narrow document-store contract the executor reads
// business data through, with in-memory and SQLite implementations.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ricesearch/quickquery/internal/config"
)

// Collection names.
const (
	Recipes         = "recipes"
	Inventory       = "inventory"
	Orders          = "orders"
	ProductionTasks = "productionTasks"
	Suppliers       = "suppliers"
	Customers       = "customers"
)

// Collections lists every known collection.
var Collections = []string{Recipes, Inventory, Orders, ProductionTasks, Suppliers, Customers}

// Doc is one stored document.
type Doc struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// Get returns a top-level field.
func (d Doc) Get(field string) any {
	return d.Data[field]
}

// String returns a field as a string, or "" when absent or not a string.
func (d Doc) String(field string) string {
	s, _ := d.Data[field].(string)
	return s
}

// Float returns a numeric field.
func (d Doc) Float(field string) (float64, bool) {
	return ToFloat(d.Data[field])
}

// Op is a predicate operator.
type Op string

const (
	Eq  Op = "=="
	Ne  Op = "!="
	Lt  Op = "<"
	Lte Op = "<="
	Gt  Op = ">"
	Gte Op = ">="
)

func (op Op) valid() bool {
	switch op {
	case Eq, Ne, Lt, Lte, Gt, Gte:
		return true
	}
	return false
}

// Predicate filters documents by a field.
type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Where is shorthand for building a Predicate.
func Where(field string, op Op, value any) Predicate {
	return Predicate{Field: field, Op: op, Value: value}
}

// Query selects documents from a collection.
type Query struct {
	Where   []Predicate
	OrderBy string
	Desc    bool
	Limit   int // 0 = no limit
}

// Store reads documents.
type Store interface {
	Find(ctx context.Context, collection string, q Query) ([]Doc, error)
	Close() error
}

// Counter is implemented by stores that count server-side.
type Counter interface {
	Count(ctx context.Context, collection string, where ...Predicate) (int, error)
}

// Inserter is implemented by stores that can be seeded.
type Inserter interface {
	Insert(ctx context.Context, collection string, docs ...Doc) error
}

// New creates the store selected by cfg and seeds it from the configured
// fixture, if any.
func New(ctx context.Context, cfg config.DocStoreConfig) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Type {
	case "memory", "":
		store = NewMemory()
	case "sqlite":
		store, err = NewSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown doc store type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Fixture != "" {
		fx, err := LoadFixture(cfg.Fixture)
		if err != nil {
			store.Close()
			return nil, err
		}
		if _, err := Seed(ctx, store.(Inserter), fx); err != nil {
			store.Close()
			return nil, err
		}
	}

	return store, nil
}

// ToFloat converts any numeric value to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// compareValues orders a against b. ok is false when the values are not
// comparable.
func compareValues(a, b any) (c int, ok bool) {
	if fa, okA := ToFloat(a); okA {
		if fb, okB := ToFloat(b); okB {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), true
		}
	}
	return 0, false
}

// Matches reports whether doc satisfies p.
func (p Predicate) Matches(doc Doc) bool {
	v, present := doc.Data[p.Field]
	if !present {
		return p.Op == Ne
	}

	c, ok := compareValues(v, p.Value)
	if !ok {
		equal := reflect.DeepEqual(v, p.Value)
		switch p.Op {
		case Eq:
			return equal
		case Ne:
			return !equal
		}
		return false
	}

	switch p.Op {
	case Eq:
		return c == 0
	case Ne:
		return c != 0
	case Lt:
		return c < 0
	case Lte:
		return c <= 0
	case Gt:
		return c > 0
	case Gte:
		return c >= 0
	}
	return false
}

func validate(q Query) error {
	for _, p := range q.Where {
		if !p.Op.valid() {
			return fmt.Errorf("invalid argument: unsupported operator %q", p.Op)
		}
		if !fieldPattern.MatchString(p.Field) {
			return fmt.Errorf("invalid argument: bad field name %q", p.Field)
		}
	}
	if q.OrderBy != "" && !fieldPattern.MatchString(q.OrderBy) {
		return fmt.Errorf("invalid argument: bad order field %q", q.OrderBy)
	}
	if q.Limit < 0 {
		return fmt.Errorf("invalid argument: negative limit %d", q.Limit)
	}
	return nil
}
