package cache

import (
	"regexp"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/ricesearch/quickquery/internal/query"
)

// MaxKeywords bounds the keyword set of a signature.
const MaxKeywords = 15

// Similarity weights.
const (
	keywordWeight    = 0.6
	categoryWeight   = 0.2
	numberWeight     = 0.1
	comparisonWeight = 0.1
)

var integerPattern = regexp.MustCompile(`\d+`)

// ComparisonFlags records which operator cues a query contains.
type ComparisonFlags struct {
	Greater bool `json:"greater"`
	Less    bool `json:"less"`
	Equal   bool `json:"equal"`
}

// Signature is the feature set two queries are compared by.
type Signature struct {
	Keywords   []string        `json:"keywords"`
	Numbers    []int           `json:"numbers"`
	Comparison ComparisonFlags `json:"comparison"`
	Categories map[string]bool `json:"categories"`
	TextLength int             `json:"text_length"`
}

// NewSignature derives the signature of raw query text.
func NewSignature(text string) Signature {
	norm := query.Normalize(text)

	seen := make(map[int]bool)
	numbers := []int{}
	for _, m := range integerPattern.FindAllString(norm, -1) {
		n, err := strconv.Atoi(m)
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	greater, less, equal := query.ComparisonCues(norm)

	return Signature{
		Keywords:   query.Keywords(norm, MaxKeywords),
		Numbers:    numbers,
		Comparison: ComparisonFlags{Greater: greater, Less: less, Equal: equal},
		Categories: query.Categories(norm),
		TextLength: utf8.RuneCountInString(norm),
	}
}

// Similarity scores two signatures in [0, 1]. It is symmetric.
func Similarity(a, b Signature) float64 {
	kw := jaccard(a.Keywords, b.Keywords)

	// Both sides without numbers agree fully.
	num := 1.0
	if len(a.Numbers) > 0 || len(b.Numbers) > 0 {
		num = jaccard(a.Numbers, b.Numbers)
	}

	cat := 0
	for _, name := range query.AllCategories {
		if a.Categories[name] == b.Categories[name] {
			cat++
		}
	}

	cmp := 0
	if a.Comparison.Greater == b.Comparison.Greater {
		cmp++
	}
	if a.Comparison.Less == b.Comparison.Less {
		cmp++
	}
	if a.Comparison.Equal == b.Comparison.Equal {
		cmp++
	}

	return keywordWeight*kw +
		categoryWeight*float64(cat)/float64(len(query.AllCategories)) +
		numberWeight*num +
		comparisonWeight*float64(cmp)/3
}

// jaccard is |A∩B| / |A∪B|, 0 when both are empty.
func jaccard[T comparable](a, b []T) float64 {
	set := make(map[T]bool, len(a))
	for _, v := range a {
		set[v] = true
	}

	union := len(set)
	inter := 0
	counted := make(map[T]bool, len(b))
	for _, v := range b {
		if counted[v] {
			continue
		}
		counted[v] = true
		if set[v] {
			inter++
		} else {
			union++
		}
	}

	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
