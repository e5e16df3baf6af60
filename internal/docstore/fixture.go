package docstore

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Fixture maps collection names to raw documents. A document's "id" field,
// when present, becomes its ID.
type Fixture map[string][]map[string]any

// LoadFixture reads a YAML or JSON fixture file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes fixture bytes. JSON is accepted as a subset of YAML.
func ParseFixture(data []byte) (Fixture, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}
	return fx, nil
}

// Seed inserts every fixture document and returns the number inserted.
// Collections are seeded in name order.
func Seed(ctx context.Context, dst Inserter, fx Fixture) (int, error) {
	names := make([]string, 0, len(fx))
	for name := range fx {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0
	for _, name := range names {
		raw := fx[name]
		docs := make([]Doc, 0, len(raw))
		for i, fields := range raw {
			id := fmt.Sprintf("%s-%d", name, i+1)
			data := make(map[string]any, len(fields))
			for k, v := range fields {
				if k == "id" {
					id = fmt.Sprint(v)
					continue
				}
				data[k] = v
			}
			docs = append(docs, Doc{ID: id, Data: data})
		}
		if err := dst.Insert(ctx, name, docs...); err != nil {
			return total, fmt.Errorf("seeding %s: %w", name, err)
		}
		total += len(docs)
	}
	return total, nil
}
