package executor

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/ricesearch/quickquery/internal/docstore"
	"github.com/ricesearch/quickquery/internal/query"
	"github.com/ricesearch/quickquery/internal/result"
	"github.com/ricesearch/quickquery/internal/units"
)

// count uses server-side counting when the store supports it.
func (e *Executor) count(ctx context.Context, collection string, where ...docstore.Predicate) (int, error) {
	if c, ok := e.store.(docstore.Counter); ok {
		return c.Count(ctx, collection, where...)
	}
	docs, err := e.store.Find(ctx, collection, docstore.Query{Where: where})
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// countOf counts a collection, narrowed by status when statusField is set and
// the question named a status.
func (e *Executor) countOf(collection, statusField string) handler {
	return func(ctx context.Context, p query.ParameterSet) (*result.QueryResult, error) {
		var where []docstore.Predicate
		if statusField != "" && p.Status != "" {
			where = append(where, docstore.Where(statusField, docstore.Eq, string(p.Status)))
		}

		n, err := e.count(ctx, collection, where...)
		if err != nil {
			return nil, err
		}

		total := n
		if len(where) > 0 {
			if total, err = e.count(ctx, collection); err != nil {
				return nil, err
			}
		}
		return result.NewCount("", &result.Count{Entity: collection, Count: n, Total: total}), nil
	}
}

// recipeWeight sums a recipe's ingredient weights in grams and returns the
// unknown units it skipped.
func recipeWeight(doc docstore.Doc) (grams float64, unknown []string) {
	list, _ := doc.Get("ingredients").([]any)
	for _, raw := range list {
		ing, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		qty, ok := numeric(ing["quantity"])
		if !ok {
			continue
		}
		unit, _ := ing["unit"].(string)
		g, known := units.ToGrams(qty, unit)
		if !known {
			unknown = append(unknown, unit)
			continue
		}
		grams += g
	}
	return grams, unknown
}

// numeric accepts numbers and numeric strings with a decimal comma.
func numeric(v any) (float64, bool) {
	if f, ok := docstore.ToFloat(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		f, err := parseFloat(s)
		return f, err == nil
	}
	return 0, false
}

// weightFilters returns the filters to apply to a weight, falling back to
// "greater than the first number" when the question had a number but no
// operator.
func weightFilters(p query.ParameterSet) []query.Filter {
	if len(p.Filters) > 0 || len(p.Numbers) == 0 {
		return p.Filters
	}
	value := p.Numbers[0]
	if p.Unit != "" {
		if g, ok := units.ToGrams(value, p.Unit); ok {
			value = g
		}
	}
	return []query.Filter{{Operator: query.OpGreater, Value: value, OriginalValue: p.Numbers[0], Unit: p.Unit}}
}

func matchesFilters(v float64, filters []query.Filter) bool {
	for _, f := range filters {
		if !f.Operator.Compare(v, f.Value) {
			return false
		}
	}
	return true
}

func (e *Executor) recipeWeightFilter(ctx context.Context, p query.ParameterSet) (*result.QueryResult, error) {
	docs, err := e.store.Find(ctx, docstore.Recipes, docstore.Query{})
	if err != nil {
		return nil, err
	}

	filters := weightFilters(p)
	c := &result.Count{Entity: docstore.Recipes, Total: len(docs)}
	var warnings []string

	for _, doc := range docs {
		grams, unknown := recipeWeight(doc)
		for _, u := range unknown {
			e.log.Warn("Unknown ingredient unit counted as zero weight", "recipe_id", doc.ID, "unit", u)
			warnings = append(warnings, "unknown unit \""+u+"\" in recipe "+displayName(doc)+" counted as 0 g")
		}
		if !matchesFilters(grams, filters) {
			continue
		}
		c.Matches = append(c.Matches, result.Item{
			ID:    doc.ID,
			Name:  displayName(doc),
			Value: math.Round(grams*100) / 100,
			Unit:  "g",
		})
	}

	sort.SliceStable(c.Matches, func(i, j int) bool { return c.Matches[i].Value > c.Matches[j].Value })
	c.Count = len(c.Matches)

	res := result.NewCount("", c)
	res.Warnings = warnings
	return res, nil
}

// quantityFor converts an inventory quantity to the filter's scale: grams
// when both sides carry weight units, raw otherwise.
func quantityFor(doc docstore.Doc, filterUnit string) (float64, bool) {
	qty, ok := numeric(doc.Get("quantity"))
	if !ok {
		return 0, false
	}
	unit := doc.String("unit")
	if filterUnit != "" && units.IsWeight(unit) && units.IsWeight(filterUnit) {
		g, _ := units.ToGrams(qty, unit)
		return g, true
	}
	return qty, true
}

func (e *Executor) inventoryCount(ctx context.Context, p query.ParameterSet) (*result.QueryResult, error) {
	if len(p.Filters) == 0 {
		return e.countOf(docstore.Inventory, "")(ctx, p)
	}

	docs, err := e.store.Find(ctx, docstore.Inventory, docstore.Query{})
	if err != nil {
		return nil, err
	}

	c := &result.Count{Entity: docstore.Inventory, Total: len(docs)}
	for _, doc := range docs {
		qty, ok := quantityFor(doc, p.Filters[0].Unit)
		if ok && matchesFilters(qty, p.Filters) {
			c.Matches = append(c.Matches, inventoryItem(doc))
		}
	}
	c.Count = len(c.Matches)
	return result.NewCount("", c), nil
}

func (e *Executor) lowStock(ctx context.Context, p query.ParameterSet) (*result.QueryResult, error) {
	docs, err := e.store.Find(ctx, docstore.Inventory, docstore.Query{OrderBy: "quantity"})
	if err != nil {
		return nil, err
	}

	l := &result.List{Entity: docstore.Inventory, Items: []result.Item{}}
	for _, doc := range docs {
		if len(p.Filters) > 0 {
			qty, ok := quantityFor(doc, p.Filters[0].Unit)
			if !ok || !matchesFilters(qty, p.Filters) {
				continue
			}
		} else {
			qty, okQty := numeric(doc.Get("quantity"))
			minLevel, okMin := numeric(doc.Get("minStockLevel"))
			if !okQty || !okMin || qty >= minLevel {
				continue
			}
		}
		l.Items = append(l.Items, inventoryItem(doc))
	}
	l.Total = len(l.Items)
	return result.NewList("", l), nil
}

func inventoryItem(doc docstore.Doc) result.Item {
	qty, _ := numeric(doc.Get("quantity"))
	item := result.Item{ID: doc.ID, Name: displayName(doc), Value: qty, Unit: doc.String("unit")}
	if minLevel, ok := numeric(doc.Get("minStockLevel")); ok {
		item.Subtitle = "min " + formatFloat(minLevel)
	}
	return item
}

func (e *Executor) ordersByCustomer(ctx context.Context, p query.ParameterSet) (*result.QueryResult, error) {
	q := docstore.Query{}
	if p.Status != "" {
		q.Where = append(q.Where, docstore.Where("status", docstore.Eq, string(p.Status)))
	}
	docs, err := e.store.Find(ctx, docstore.Orders, q)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*result.Group)
	for _, doc := range docs {
		key := strings.TrimSpace(doc.String("customerName"))
		if key == "" {
			key = "(brak klienta)"
		}
		g, ok := groups[key]
		if !ok {
			g = &result.Group{Key: key}
			groups[key] = g
		}
		g.Count++
		if v, ok := numeric(doc.Get("totalValue")); ok {
			g.Sum += v
		}
	}

	out := &result.Grouped{Entity: docstore.Orders, GroupBy: "customerName", Total: len(docs), Groups: []result.Group{}}
	for _, g := range groups {
		g.Sum = math.Round(g.Sum*100) / 100
		out.Groups = append(out.Groups, *g)
	}
	sort.Slice(out.Groups, func(i, j int) bool {
		if out.Groups[i].Count != out.Groups[j].Count {
			return out.Groups[i].Count > out.Groups[j].Count
		}
		return out.Groups[i].Key < out.Groups[j].Key
	})
	return result.NewGrouped("", out), nil
}

func (e *Executor) statusBreakdown(collection string) handler {
	return func(ctx context.Context, p query.ParameterSet) (*result.QueryResult, error) {
		docs, err := e.store.Find(ctx, collection, docstore.Query{})
		if err != nil {
			return nil, err
		}
		return result.NewStatus("", breakdown(collection, docs)), nil
	}
}

func breakdown(collection string, docs []docstore.Doc) *result.Status {
	counts := make(map[string]int)
	for _, doc := range docs {
		status := doc.String("status")
		if status == "" {
			status = "unknown"
		}
		counts[status]++
	}

	s := &result.Status{Entity: collection, Total: len(docs), Breakdown: []result.StatusBucket{}}
	for status, n := range counts {
		s.Breakdown = append(s.Breakdown, result.StatusBucket{
			Status:     status,
			Count:      n,
			Percentage: math.Round(float64(n)/float64(len(docs))*1000) / 10,
		})
	}
	sort.Slice(s.Breakdown, func(i, j int) bool {
		if s.Breakdown[i].Count != s.Breakdown[j].Count {
			return s.Breakdown[i].Count > s.Breakdown[j].Count
		}
		return s.Breakdown[i].Status < s.Breakdown[j].Status
	})
	return s
}

func (e *Executor) plannedProduction(ctx context.Context, p query.ParameterSet) (*result.QueryResult, error) {
	q := docstore.Query{}
	if p.Status != "" && p.Status != query.StatusPlanned {
		q.Where = append(q.Where, docstore.Where("status", docstore.Eq, string(p.Status)))
	}
	docs, err := e.store.Find(ctx, docstore.ProductionTasks, q)
	if err != nil {
		return nil, err
	}

	start, end := periodWindow(p.TimePeriod, e.now())
	l := &result.List{Entity: docstore.ProductionTasks, Items: []result.Item{}}

	for _, doc := range docs {
		raw := doc.Get("scheduledDate")
		when, ok := parseDate(raw)
		if !ok {
			e.log.Warn("Skipping production task with unparsable date", "task_id", doc.ID, "value", raw)
			continue
		}
		if !inWindow(when, start, end) {
			continue
		}
		qty, _ := numeric(doc.Get("quantity"))
		l.Items = append(l.Items, result.Item{
			ID:       doc.ID,
			Name:     displayName(doc),
			Value:    qty,
			Status:   doc.String("status"),
			Date:     &when,
			Subtitle: doc.String("recipeName"),
		})
	}

	sort.SliceStable(l.Items, func(i, j int) bool { return l.Items[i].Date.Before(*l.Items[j].Date) })
	l.Total = len(l.Items)
	return result.NewList("", l), nil
}

func (e *Executor) listOf(collection string) handler {
	return func(ctx context.Context, p query.ParameterSet) (*result.QueryResult, error) {
		docs, err := e.store.Find(ctx, collection, docstore.Query{OrderBy: "name"})
		if err != nil {
			return nil, err
		}

		l := &result.List{Entity: collection, Items: make([]result.Item, 0, len(docs)), Total: len(docs)}
		for _, doc := range docs {
			item := result.Item{ID: doc.ID, Name: displayName(doc)}
			switch collection {
			case docstore.Recipes:
				grams, _ := recipeWeight(doc)
				item.Value = math.Round(grams*100) / 100
				item.Unit = "g"
			case docstore.Inventory:
				item = inventoryItem(doc)
			}
			l.Items = append(l.Items, item)
		}
		return result.NewList("", l), nil
	}
}

func displayName(doc docstore.Doc) string {
	for _, field := range []string{"name", "title", "customerName"} {
		if s := strings.TrimSpace(doc.String(field)); s != "" {
			return s
		}
	}
	return doc.ID
}
