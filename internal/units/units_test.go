package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToGrams(t *testing.T) {
	tests := []struct {
		qty    float64
		unit   string
		want   float64
		wantOK bool
	}{
		{1, "kg", 1000, true},
		{1, "g", 1, true},
		{250, "mg", 0.25, true},
		{3, "dag", 30, true},
		{2, "l", 2000, true},
		{500, "ml", 500, true},
		{1.5, " KG ", 1500, true},
		{2, "kilogramy", 2000, true},
		{10, "szt", 0, true},
		{60, "kapsułki", 0, true},
		{30, "tabletki", 0, true},
		{5, "łyżki", 0, false},
		{5, "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.unit, func(t *testing.T) {
			got, ok := ToGrams(tt.qty, tt.unit)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestShort(t *testing.T) {
	assert.Equal(t, "kg", Short("kilogramów"))
	assert.Equal(t, "g", Short("gram"))
	assert.Equal(t, "dag", Short("dkg"))
	assert.Equal(t, "mg", Short("miligram"))
	assert.Equal(t, "l", Short("litr"))
	assert.Equal(t, "ml", Short("ml"))
	assert.Equal(t, "szt", Short("szt"))
}

func TestClassification(t *testing.T) {
	assert.True(t, IsCount("pcs"))
	assert.False(t, IsCount("kg"))
	assert.True(t, IsWeight("dag"))
	assert.False(t, IsWeight("szt"))
	assert.True(t, Known("tabletki"))
	assert.False(t, Known("garść"))
}
