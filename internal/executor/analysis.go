package executor

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/ricesearch/quickquery/internal/docstore"
	"github.com/ricesearch/quickquery/internal/query"
	"github.com/ricesearch/quickquery/internal/result"
)

// snapshot holds the figures every analysis draws from.
type snapshot struct {
	counts map[string]int

	lowStock int

	ordersThisMonth  int
	ordersLastMonth  int
	ordersLast4Weeks int
	orderValue       float64
	completedValue   float64
	cancelledOrders  int
	totalOrders      int
	topCustomer      string
	topCustomerCount int

	plannedNextWeek   int
	pendingProduction int
	activeProduction  int
}

func (e *Executor) takeSnapshot(ctx context.Context) (*snapshot, error) {
	s := &snapshot{counts: make(map[string]int)}
	for _, c := range []string{docstore.Recipes, docstore.Suppliers, docstore.Customers} {
		n, err := e.count(ctx, c)
		if err != nil {
			return nil, err
		}
		s.counts[c] = n
	}

	now := e.now()

	inventory, err := e.store.Find(ctx, docstore.Inventory, docstore.Query{})
	if err != nil {
		return nil, err
	}
	s.counts[docstore.Inventory] = len(inventory)
	for _, doc := range inventory {
		qty, okQty := numeric(doc.Get("quantity"))
		minLevel, okMin := numeric(doc.Get("minStockLevel"))
		if okQty && okMin && qty < minLevel {
			s.lowStock++
		}
	}

	orders, err := e.store.Find(ctx, docstore.Orders, docstore.Query{})
	if err != nil {
		return nil, err
	}
	s.counts[docstore.Orders] = len(orders)
	s.totalOrders = len(orders)

	thisStart, thisEnd := periodWindow(query.PeriodThisMonth, now)
	lastStart, lastEnd := periodWindow(query.PeriodLastMonth, now)
	fourWeeksAgo := startOfDay(now).AddDate(0, 0, -28)
	perCustomer := make(map[string]int)

	for _, doc := range orders {
		value, _ := numeric(doc.Get("totalValue"))
		s.orderValue += value

		switch strings.ToLower(doc.String("status")) {
		case string(query.StatusCompleted):
			s.completedValue += value
		case string(query.StatusCancelled):
			s.cancelledOrders++
		}

		if name := doc.String("customerName"); name != "" {
			perCustomer[name]++
			n := perCustomer[name]
			if n > s.topCustomerCount || (n == s.topCustomerCount && name < s.topCustomer) {
				s.topCustomer, s.topCustomerCount = name, n
			}
		}

		when, ok := parseDate(doc.Get("orderDate"))
		if !ok {
			continue
		}
		if inWindow(when, thisStart, thisEnd) {
			s.ordersThisMonth++
		}
		if inWindow(when, lastStart, lastEnd) {
			s.ordersLastMonth++
		}
		if !when.Before(fourWeeksAgo) && !when.After(now) {
			s.ordersLast4Weeks++
		}
	}

	tasks, err := e.store.Find(ctx, docstore.ProductionTasks, docstore.Query{})
	if err != nil {
		return nil, err
	}
	s.counts[docstore.ProductionTasks] = len(tasks)
	weekStart, weekEnd := periodWindow("", now)
	for _, doc := range tasks {
		switch doc.String("status") {
		case string(query.StatusPending):
			s.pendingProduction++
		case string(query.StatusInProgress):
			s.activeProduction++
		}
		if when, ok := parseDate(doc.Get("scheduledDate")); ok && inWindow(when, weekStart, weekEnd) {
			s.plannedNextWeek++
		}
	}

	return s, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func percentChange(from, to float64) float64 {
	if from == 0 {
		if to == 0 {
			return 0
		}
		return 100
	}
	return round2((to - from) / from * 100)
}

// analyze builds the analytic answer for one advanced intent.
func (e *Executor) analyze(topic query.Intent) handler {
	return func(ctx context.Context, p query.ParameterSet) (*result.QueryResult, error) {
		s, err := e.takeSnapshot(ctx)
		if err != nil {
			return nil, err
		}

		a := &result.Analysis{Topic: string(topic)}
		add := func(name string, v float64, unit string) {
			a.Metrics = append(a.Metrics, result.Metric{Name: name, Value: round2(v), Unit: unit})
		}

		switch topic {
		case query.IntentTrendAnalysis:
			add("zamówienia w tym miesiącu", float64(s.ordersThisMonth), "")
			add("zamówienia w poprzednim miesiącu", float64(s.ordersLastMonth), "")
			change := percentChange(float64(s.ordersLastMonth), float64(s.ordersThisMonth))
			add("zmiana", change, "%")
			a.Notes = append(a.Notes, trendNote(change))

		case query.IntentForecast:
			weekly := float64(s.ordersLast4Weeks) / 4
			add("średnio zamówień tygodniowo (4 tyg.)", weekly, "")
			add("prognoza zamówień na przyszły tydzień", math.Round(weekly), "")
			a.Notes = append(a.Notes, "prognoza zakłada utrzymanie średniej z ostatnich 4 tygodni")

		case query.IntentOptimization:
			add("pozycje poniżej stanu minimalnego", float64(s.lowStock), "")
			add("zadania produkcyjne oczekujące", float64(s.pendingProduction), "")
			add("zadania produkcyjne w toku", float64(s.activeProduction), "")
			if s.pendingProduction > s.activeProduction {
				a.Notes = append(a.Notes, "więcej zadań czeka niż jest realizowanych")
			}

		case query.IntentRecommendation:
			add("pozycje do zamówienia", float64(s.lowStock), "")
			add("zamówienia najaktywniejszego klienta", float64(s.topCustomerCount), "")
			if s.lowStock > 0 {
				a.Notes = append(a.Notes, "uzupełnij pozycje poniżej stanu minimalnego")
			}
			if s.topCustomer != "" {
				a.Notes = append(a.Notes, "najaktywniejszy klient: "+s.topCustomer)
			}

		case query.IntentRiskAnalysis:
			add("pozycje poniżej stanu minimalnego", float64(s.lowStock), "")
			share := 0.0
			if s.totalOrders > 0 {
				share = float64(s.cancelledOrders) / float64(s.totalOrders) * 100
			}
			add("udział anulowanych zamówień", share, "%")
			if s.lowStock > 0 || share > 10 {
				a.Notes = append(a.Notes, "podwyższone ryzyko operacyjne")
			}

		case query.IntentPlanning:
			add("zadania zaplanowane na 7 dni", float64(s.plannedNextWeek), "")
			add("zadania oczekujące", float64(s.pendingProduction), "")
			add("receptury", float64(s.counts[docstore.Recipes]), "")

		case query.IntentFinancialAnalysis:
			add("wartość zamówień", s.orderValue, "zł")
			add("wartość zrealizowanych zamówień", s.completedValue, "zł")
			avg := 0.0
			if s.totalOrders > 0 {
				avg = s.orderValue / float64(s.totalOrders)
			}
			add("średnia wartość zamówienia", avg, "zł")
		}

		if p.Comparison != "" {
			a.Notes = append(a.Notes, "porównanie okresów: "+string(p.Comparison))
		}
		return result.NewAnalysis("", a), nil
	}
}

func trendNote(change float64) string {
	switch {
	case change > 5:
		return "trend wzrostowy"
	case change < -5:
		return "trend spadkowy"
	}
	return "trend stabilny"
}

// overview counts every collection.
func (e *Executor) overview(ctx context.Context, p query.ParameterSet) (*result.QueryResult, error) {
	a := &result.Analysis{Topic: string(query.IntentGeneralOverview)}
	for _, c := range docstore.Collections {
		n, err := e.count(ctx, c)
		if err != nil {
			return nil, err
		}
		a.Metrics = append(a.Metrics, result.Metric{Name: c, Value: float64(n)})
	}
	a.Notes = append(a.Notes, "stan na "+e.now().Format(time.DateOnly))
	return result.NewAnalysis("", a), nil
}
