// Package units converts ingredient and filter quantities to grams.
package units

import "strings"

// gramsPer maps a unit spelling to its weight in grams. Liquids are
// treated as water (1 ml = 1 g).
var gramsPer = map[string]float64{
	"g": 1, "gr": 1, "gram": 1, "gramy": 1, "gramów": 1, "gramow": 1, "grams": 1,
	"kg": 1000, "kilogram": 1000, "kilogramy": 1000, "kilogramów": 1000, "kilogramow": 1000, "kilograms": 1000,
	"mg": 0.001, "miligram": 0.001, "miligramy": 0.001, "miligramów": 0.001, "miligramow": 0.001,
	"dag": 10, "dkg": 10, "dekagram": 10, "dekagramy": 10, "dekagramów": 10, "dekagramow": 10,
	"ml": 1, "mililitr": 1, "mililitry": 1, "mililitrów": 1, "mililitrow": 1,
	"l": 1000, "litr": 1000, "litry": 1000, "litrów": 1000, "litrow": 1000, "liter": 1000, "liters": 1000,
}

// countUnits name discrete items that carry no weight.
var countUnits = map[string]bool{
	"szt": true, "szt.": true, "sztuk": true, "sztuki": true, "sztuka": true,
	"pcs": true, "pc": true, "piece": true, "pieces": true,
	"kapsułki": true, "kapsułka": true, "kapsułek": true, "kapsulki": true, "caps": true, "capsules": true,
	"tabletki": true, "tabletka": true, "tabletek": true, "tabs": true, "tablets": true,
	"opak": true, "opakowanie": true, "opakowania": true,
}

// Canonical returns the trimmed, lowercased unit spelling.
func Canonical(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}

// Known reports whether unit is a weight/volume unit or a count unit.
func Known(unit string) bool {
	u := Canonical(unit)
	_, ok := gramsPer[u]
	return ok || countUnits[u]
}

// IsCount reports whether unit counts discrete items.
func IsCount(unit string) bool {
	return countUnits[Canonical(unit)]
}

// IsWeight reports whether unit converts to grams.
func IsWeight(unit string) bool {
	_, ok := gramsPer[Canonical(unit)]
	return ok
}

// ToGrams converts quantity to grams. Count units and unknown units yield
// 0; ok is false only for unknown units.
func ToGrams(quantity float64, unit string) (grams float64, ok bool) {
	u := Canonical(unit)
	if countUnits[u] {
		return 0, true
	}
	factor, found := gramsPer[u]
	if !found {
		return 0, false
	}
	return quantity * factor, true
}

// Short returns the short symbol for a weight unit (kg, g, mg, dag), or
// the canonical spelling when there is none.
func Short(unit string) string {
	u := Canonical(unit)
	switch gramsPer[u] {
	case 1000:
		if strings.HasPrefix(u, "l") {
			return "l"
		}
		return "kg"
	case 10:
		return "dag"
	case 0.001:
		return "mg"
	case 1:
		if strings.HasPrefix(u, "m") {
			return "ml"
		}
		return "g"
	}
	return u
}
