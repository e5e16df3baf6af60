package render

// templates holds one named template per intent plus the shared ones.
const templates = `
{{define "more"}}{{if .More}}
...i {{.More}} więcej{{end}}{{end}}

{{define "status_suffix"}}{{if .P.Status}} (status: {{status (print .P.Status)}}){{end}}{{end}}

{{define "recipe_count"}}Liczba receptur w systemie: {{.R.Count.Count}}.{{end}}

{{define "recipe_weight_filter"}}{{with .R.Count}}Receptury o łącznej wadze składników {{if $.P.Filters}}{{filter $.P}}{{else}}spełniającej warunek{{end}}: {{.Count}} z {{.Total}}.{{with items .Matches (limit "recipes")}}{{range .Shown}}
- {{.Name}} ({{num .Value}} g){{end}}{{template "more" .}}{{end}}{{end}}{{end}}

{{define "inventory_count"}}{{with .R.Count}}{{if .Matches}}Pozycje w magazynie spełniające warunek {{filter $.P}}: {{.Count}} z {{.Total}}.{{with items .Matches (limit "inventory")}}{{range .Shown}}
- {{.Name}}: {{num .Value}} {{.Unit}}{{end}}{{template "more" .}}{{end}}{{else}}Liczba pozycji w magazynie: {{.Count}}.{{end}}{{end}}{{end}}

{{define "order_count"}}Liczba zamówień{{template "status_suffix" .}}: {{.R.Count.Count}}.{{end}}

{{define "production_count"}}Liczba zadań produkcyjnych{{template "status_suffix" .}}: {{.R.Count.Count}}.{{end}}

{{define "supplier_count"}}Liczba dostawców: {{.R.Count.Count}}.{{end}}

{{define "customer_count"}}Liczba klientów: {{.R.Count.Count}}.{{end}}

{{define "inventory_low_stock"}}{{with .R.List}}{{if .Items}}Pozycje z niskim stanem magazynowym: {{.Total}}.{{with items .Items (limit "inventory")}}{{range .Shown}}
- {{.Name}}: {{num .Value}} {{.Unit}}{{if .Subtitle}} ({{.Subtitle}}){{end}}{{end}}{{template "more" .}}{{end}}{{else}}Brak pozycji z niskim stanem magazynowym.{{end}}{{end}}{{end}}

{{define "orders_by_customer"}}{{with .R.Grouped}}Zamówienia według klientów (łącznie {{.Total}}):{{with groups .Groups (limit "groups")}}{{range .Shown}}
- {{.Key}}: {{.Count}} zam.{{if .Sum}}, wartość {{num .Sum}} zł{{end}}{{end}}{{template "more" .}}{{end}}{{end}}{{end}}

{{define "breakdown"}}{{range .Breakdown}}
- {{status .Status}}: {{.Count}} ({{num .Percentage}}%){{end}}{{end}}

{{define "order_status"}}{{with .R.Status}}Status zamówień (łącznie {{.Total}}):{{template "breakdown" .}}{{end}}{{end}}

{{define "production_status"}}{{with .R.Status}}Status produkcji (łącznie {{.Total}}):{{template "breakdown" .}}{{end}}{{end}}

{{define "production_planned"}}{{with .R.List}}{{if .Items}}Zaplanowana produkcja: {{.Total}} zadań.{{with items .Items (limit "planned")}}{{range .Shown}}
- {{date .Date}} {{.Name}}{{if .Subtitle}} ({{.Subtitle}}){{end}}{{if .Value}} x{{num .Value}}{{end}}{{end}}{{template "more" .}}{{end}}{{else}}Brak zaplanowanej produkcji w tym okresie.{{end}}{{end}}{{end}}

{{define "recipe_list"}}{{with .R.List}}Receptury w systemie: {{.Total}}.{{with items .Items (limit "recipes")}}{{range .Shown}}
- {{.Name}}{{if .Value}} ({{num .Value}} g){{end}}{{end}}{{template "more" .}}{{end}}{{end}}{{end}}

{{define "inventory_list"}}{{with .R.List}}Pozycje w magazynie: {{.Total}}.{{with items .Items (limit "inventory")}}{{range .Shown}}
- {{.Name}}: {{num .Value}} {{.Unit}}{{end}}{{template "more" .}}{{end}}{{end}}{{end}}

{{define "analysis"}}{{with .R.Analysis}}Analiza ({{topic .Topic}}):{{range .Metrics}}
- {{.Name}}: {{num .Value}}{{if .Unit}} {{.Unit}}{{end}}{{end}}{{range .Notes}}
{{.}}{{end}}{{end}}{{end}}

{{define "generic"}}{{with .R}}{{if .Count}}Wynik: {{.Count.Count}}.{{else if .List}}Znaleziono {{.List.Total}} pozycji.{{with items .List.Items (limit "")}}{{range .Shown}}
- {{.Name}}{{end}}{{template "more" .}}{{end}}{{else if .Grouped}}Grupy: {{len .Grouped.Groups}}.{{else if .Status}}Łącznie: {{.Status.Total}}.{{template "breakdown" .Status}}{{else if .Analysis}}{{template "analysis" $}}{{end}}{{end}}{{end}}

{{define "error"}}Nie udało się przygotować odpowiedzi{{if .R.ErrorKind}} (błąd: {{.R.ErrorKind}}){{end}}. Spróbuj ponownie później.{{end}}
`
