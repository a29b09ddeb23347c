package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		id     string
		want   string
	}{
		{"diacritics and punctuation dropped", "Green Leaf Café!", "123", "green-leaf-caf-123"},
		{"plain name", "Loving Hut", "456", "loving-hut-456"},
		{"runs of whitespace collapse", "The   Garden    Table", "9", "the-garden-table-9"},
		{"existing hyphens collapse", "Vege--licious", "77", "vege-licious-77"},
		{"leading and trailing junk trimmed", "  ***Sprouts***  ", "8", "sprouts-8"},
		{"empty name keeps the id", "", "42", "-42"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, GenerateSlug(tc.input, tc.id))
		})
	}
}

func TestPriceRangeText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "$", PriceRangeText(1))
	require.Equal(t, "$$", PriceRangeText(2))
	require.Equal(t, "$$$", PriceRangeText(3))
	require.Equal(t, "$$$$", PriceRangeText(4))
	// Out-of-range tiers fall back to the cheapest display.
	require.Equal(t, "$", PriceRangeText(0))
	require.Equal(t, "$", PriceRangeText(10))
	require.Equal(t, "$", PriceRangeText(-3))
}
