// Package render turns query results into answer text.
package render

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/ricesearch/quickquery/internal/pkg/logger"
	"github.com/ricesearch/quickquery/internal/query"
	"github.com/ricesearch/quickquery/internal/result"
)

// Fixed messages.
const (
	// RenderFailedMessage is returned when a template fails.
	RenderFailedMessage = "Wystąpił błąd podczas przygotowywania odpowiedzi."

	errorTemplate = "error"
	genericName   = "generic"
)

// ExampleQuestions are offered when a question was not understood.
var ExampleQuestions = []string{
	"Ile jest receptur w systemie?",
	"Ile receptur ma sumę składników ponad 900g?",
	"Które produkty w magazynie mają niski stan?",
	"Jaki jest status zamówień?",
	"Jaka produkcja jest zaplanowana na jutro?",
}

// Clarification is the fixed answer for questions below the confidence
// threshold.
func Clarification() string {
	var sb strings.Builder
	sb.WriteString("Nie jestem pewien, o co pytasz. Spróbuj zadać pytanie inaczej, na przykład:\n")
	for _, q := range ExampleQuestions {
		sb.WriteString("- ")
		sb.WriteString(q)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// view is the data handed to templates.
type view struct {
	R *result.QueryResult
	P query.ParameterSet
}

// Renderer holds the parsed templates.
type Renderer struct {
	tmpl *template.Template
	log  *logger.Logger
}

// New parses the built-in templates.
func New(log *logger.Logger) *Renderer {
	t := template.Must(template.New("root").Funcs(funcs).Parse(templates))
	return &Renderer{tmpl: t, log: logger.OrDefault(log).WithComponent("render")}
}

// Render produces the answer for res. It never fails: unknown intents use
// the generic template, failed results the error template, and template
// faults yield RenderFailedMessage.
func (r *Renderer) Render(intent query.Intent, res *result.QueryResult, params query.ParameterSet) (out string) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Render panicked", "intent", intent, "panic", p)
			out = RenderFailedMessage
		}
	}()

	name := string(intent)
	switch {
	case res == nil || !res.Success:
		name = errorTemplate
		if res == nil {
			res = result.Failure(string(intent), "", "no result", 0)
		}
	case intent.IsAnalytic() || intent == query.IntentGeneralOverview:
		name = "analysis"
	case r.tmpl.Lookup(name) == nil:
		name = genericName
	}

	if err := res.Validate(); err != nil {
		r.log.Warn("Rendering malformed result", "intent", intent, "error", err)
		return RenderFailedMessage
	}

	var sb strings.Builder
	if err := r.tmpl.ExecuteTemplate(&sb, name, view{R: res, P: params}); err != nil {
		r.log.Error("Render failed", "intent", intent, "template", name, "error", err)
		return RenderFailedMessage
	}

	text := strings.TrimSpace(sb.String())
	if res.Success && len(res.Warnings) > 0 {
		text += fmt.Sprintf("\nUwaga: część danych pominięto (ostrzeżenia: %d).", len(res.Warnings))
	}
	return text
}
