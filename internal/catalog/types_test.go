package catalog

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func bracketFixture() []Item {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return []Item{
		{ID: "a", Name: "Chew Toy", Brand: "Acme", Price: price("59.99"), IsActive: true, CreatedAt: base},
		{ID: "b", Name: "Dog Bed", Brand: "Comfy", Price: price("129.99"), IsActive: true, CreatedAt: base.Add(time.Hour)},
		{ID: "c", Name: "Crate", Brand: "Acme", Price: price("199.99"), IsActive: true, CreatedAt: base.Add(2 * time.Hour)},
	}
}

func ids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestFilter_PriceBrackets(t *testing.T) {
	items := bracketFixture()

	assert.Equal(t, []string{"a"}, ids(Filter{Bracket: BracketUnder100}.Apply(items)))
	assert.Equal(t, []string{"c", "b"}, ids(Filter{Bracket: Bracket100To200}.Apply(items)))
	assert.Equal(t, []string{}, ids(Filter{Bracket: BracketOver200}.Apply(items)))

	items[2].Price = price("229.99")
	assert.Equal(t, []string{"c"}, ids(Filter{Bracket: BracketOver200}.Apply(items)))
	assert.Equal(t, []string{"b"}, ids(Filter{Bracket: Bracket100To200}.Apply(items)))
}

func TestBracket_Boundaries(t *testing.T) {
	assert.False(t, BracketUnder100.Contains(price("100")))
	assert.True(t, BracketUnder100.Contains(price("99.99")))
	assert.True(t, Bracket100To200.Contains(price("100")))
	assert.True(t, Bracket100To200.Contains(price("200")))
	assert.False(t, BracketOver200.Contains(price("200")))
	assert.True(t, BracketOver200.Contains(price("200.01")))
	assert.True(t, BracketAny.Contains(price("0.01")))
}

func TestParseBracket(t *testing.T) {
	for _, s := range []string{"", "under-100", "100-200", "over-200"} {
		b, err := ParseBracket(s)
		require.NoError(t, err, s)
		assert.Equal(t, Bracket(s), b)
	}
	_, err := ParseBracket("cheap")
	assert.Error(t, err)
}

func TestFilter_TextAndBrand(t *testing.T) {
	items := bracketFixture()

	assert.Equal(t, []string{"c", "a"}, ids(Filter{Query: "acme"}.Apply(items)), "matches brand substring")
	assert.Equal(t, []string{"b"}, ids(Filter{Query: "BED"}.Apply(items)), "case-insensitive name match")
	assert.Equal(t, []string{"b"}, ids(Filter{Brand: "comfy"}.Apply(items)))
	assert.Equal(t, []string{"a"}, ids(Filter{Brand: "Acme", Bracket: BracketUnder100}.Apply(items)))
	assert.Empty(t, Filter{Query: "cat"}.Apply(items))
}

func TestFilter_SkipsInactive(t *testing.T) {
	items := bracketFixture()
	items[0].IsActive = false

	assert.Equal(t, []string{"c", "b"}, ids(Filter{}.Apply(items)))
}

func TestSortNewestFirst_StableOnTies(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	items := []Item{
		{ID: "z", CreatedAt: at},
		{ID: "m", CreatedAt: at.Add(time.Minute)},
		{ID: "a", CreatedAt: at},
	}
	SortNewestFirst(items)
	assert.Equal(t, []string{"m", "a", "z"}, ids(items))
}

func TestItem_HasVariant(t *testing.T) {
	sized := Item{Variants: []string{"S", "M"}}
	assert.True(t, sized.HasVariant("M"))
	assert.False(t, sized.HasVariant(""))
	assert.False(t, sized.HasVariant("XL"))

	plain := Item{}
	assert.True(t, plain.HasVariant(""))
	assert.False(t, plain.HasVariant("S"))
}

func TestItem_Validate(t *testing.T) {
	ok := Item{Name: "Leash", Price: price("12.50")}
	require.NoError(t, ok.Validate())

	noName := ok
	noName.Name = "  "
	assert.ErrorIs(t, noName.Validate(), ErrInvalidItem)

	free := ok
	free.Price = decimal.Zero
	assert.ErrorIs(t, free.Validate(), ErrInvalidItem)

	negative := ok
	negative.StockQuantity = -1
	assert.ErrorIs(t, negative.Validate(), ErrInvalidItem)

	sized := ok
	sized.Variants = []string{"S", "M"}
	require.NoError(t, sized.Validate())

	for _, v := range []string{"S/M", "M#2", ""} {
		bad := ok
		bad.Variants = []string{"S", v}
		assert.ErrorIs(t, bad.Validate(), ErrInvalidItem, "variant %q", v)
	}
}

func TestPatch_Apply(t *testing.T) {
	it := Item{Name: "Leash", Price: price("12.50"), Variants: []string{"S"}}
	newPrice := price("15.00")
	variants := []string{"S", "M"}

	got := Patch{Price: &newPrice, Variants: &variants}.Apply(it)
	assert.True(t, got.Price.Equal(newPrice))
	assert.Equal(t, "Leash", got.Name)
	assert.Equal(t, []string{"S", "M"}, got.Variants)

	variants[0] = "XS"
	assert.Equal(t, "S", got.Variants[0], "patch variants are copied")
	assert.True(t, it.Price.Equal(price("12.50")), "original untouched")
}
