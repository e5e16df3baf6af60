package docstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricesearch/quickquery/internal/config"
)

const testFixture = `
orders:
  - id: o1
    customerName: Anna
    status: pending
    totalValue: 120.5
  - id: o2
    customerName: Bartek
    status: completed
    totalValue: 80
  - id: o3
    customerName: Anna
    status: completed
    totalValue: 42
recipes:
  - name: Sernik
    ingredients:
      - {name: twaróg, quantity: 1, unit: kg}
`

type storeFactory func(t *testing.T) interface {
	Store
	Counter
	Inserter
}

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) interface {
			Store
			Counter
			Inserter
		} {
			return NewMemory()
		},
		"sqlite": func(t *testing.T) interface {
			Store
			Counter
			Inserter
		} {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "docs.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestBackends(t *testing.T) {
	ctx := context.Background()

	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			fx, err := ParseFixture([]byte(testFixture))
			require.NoError(t, err)
			n, err := Seed(ctx, s, fx)
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			all, err := s.Find(ctx, Orders, Query{})
			require.NoError(t, err)
			assert.Len(t, all, 3)

			anna, err := s.Find(ctx, Orders, Query{Where: []Predicate{Where("customerName", Eq, "Anna")}})
			require.NoError(t, err)
			assert.Len(t, anna, 2)

			big, err := s.Find(ctx, Orders, Query{
				Where:   []Predicate{Where("totalValue", Gte, 50)},
				OrderBy: "totalValue",
				Desc:    true,
			})
			require.NoError(t, err)
			require.Len(t, big, 2)
			assert.Equal(t, "o1", big[0].ID)
			assert.Equal(t, "o2", big[1].ID)

			limited, err := s.Find(ctx, Orders, Query{OrderBy: "totalValue", Limit: 1})
			require.NoError(t, err)
			require.Len(t, limited, 1)
			assert.Equal(t, "o3", limited[0].ID)

			notDone, err := s.Count(ctx, Orders, Where("status", Ne, "completed"))
			require.NoError(t, err)
			assert.Equal(t, 1, notDone)

			recipes, err := s.Find(ctx, Recipes, Query{})
			require.NoError(t, err)
			require.Len(t, recipes, 1)
			assert.Equal(t, "recipes-1", recipes[0].ID)
			assert.Equal(t, "Sernik", recipes[0].String("name"))
			ingredients, ok := recipes[0].Get("ingredients").([]any)
			require.True(t, ok)
			assert.Len(t, ingredients, 1)

			_, err = s.Find(ctx, Orders, Query{Where: []Predicate{{Field: "status", Op: "~", Value: 1}}})
			assert.ErrorContains(t, err, "invalid argument")

			_, err = s.Find(ctx, Orders, Query{OrderBy: "x; DROP TABLE documents"})
			assert.ErrorContains(t, err, "invalid argument")
		})
	}
}

func TestMemory_FaultInjection(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("deadline exceeded")

	m.InjectFault(boom, 2)
	_, err := m.Find(ctx, Recipes, Query{})
	assert.ErrorIs(t, err, boom)
	_, err = m.Count(ctx, Recipes)
	assert.ErrorIs(t, err, boom)
	_, err = m.Find(ctx, Recipes, Query{})
	assert.NoError(t, err)
	assert.Equal(t, 3, m.Calls())

	m.InjectFault(boom, -1)
	for i := 0; i < 5; i++ {
		_, err = m.Find(ctx, Recipes, Query{})
		assert.ErrorIs(t, err, boom)
	}
	m.ClearFault()
	_, err = m.Find(ctx, Recipes, Query{})
	assert.NoError(t, err)
}

func TestMemory_InsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Insert(ctx, Customers, Doc{ID: "c1", Data: map[string]any{"name": "A"}}))
	require.NoError(t, m.Insert(ctx, Customers, Doc{ID: "c1", Data: map[string]any{"name": "B"}}))

	docs, err := m.Find(ctx, Customers, Query{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "B", docs[0].String("name"))
}

func TestPredicateMatches(t *testing.T) {
	doc := Doc{ID: "x", Data: map[string]any{"n": 5, "s": "b", "flag": true}}

	tests := []struct {
		p    Predicate
		want bool
	}{
		{Where("n", Eq, 5.0), true},
		{Where("n", Gt, 4), true},
		{Where("n", Lt, 5), false},
		{Where("n", Lte, 5), true},
		{Where("s", Gte, "a"), true},
		{Where("s", Eq, 5), false},
		{Where("flag", Eq, true), true},
		{Where("flag", Ne, true), false},
		{Where("missing", Ne, 1), true},
		{Where("missing", Eq, 1), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.p.Matches(doc), "%+v", tt.p)
	}
}

func TestNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testFixture), 0644))

	s, err := New(context.Background(), config.DocStoreConfig{Type: "memory", Fixture: path})
	require.NoError(t, err)
	defer s.Close()

	docs, err := s.Find(context.Background(), Orders, Query{})
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	_, err = New(context.Background(), config.DocStoreConfig{Type: "mongo"})
	assert.Error(t, err)
}

func TestParseFixture_JSON(t *testing.T) {
	fx, err := ParseFixture([]byte(`{"suppliers": [{"id": "s1", "name": "Młyn"}]}`))
	require.NoError(t, err)
	require.Len(t, fx[Suppliers], 1)
	assert.Equal(t, "Młyn", fx[Suppliers][0]["name"])
}
