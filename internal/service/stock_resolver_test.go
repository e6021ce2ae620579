package service

import (
	"context"
	"testing"

	"pos-checkout/internal/cart"
	"pos-checkout/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordIDs(records []models.InventoryRecord) []int64 {
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	return ids
}

func TestResolveGoverning(t *testing.T) {
	twoTracked := nutrisari()
	twoTracked.Groups[1].TrackStock = true
	twoTracked.Inventory = append(twoTracked.Inventory,
		models.InventoryRecord{ID: 221, ItemID: nutrisariID, VariantOptionID: int64Ptr(hot), Quantity: 1})

	noOptionRecords := nutrisari()
	noOptionRecords.Inventory = noOptionRecords.Inventory[:1]

	noItemLevel := simpleItem(5, "Kopi", 8000, 500, 4)
	noItemLevel.Inventory[0].VariantOptionID = int64Ptr(99)
	noItemLevel.Inventory = append(noItemLevel.Inventory, models.InventoryRecord{ID: 501, ItemID: 5, VariantOptionID: int64Ptr(98), Quantity: 9})

	tests := []struct {
		name      string
		detail    *models.ItemDetail
		sel       cart.Selection
		want      []int64
		available int
	}{
		{
			name:      "no variant groups uses item-level record",
			detail:    simpleItem(esTehID, "Es Teh", 5000, esTehRecord, 10),
			want:      []int64{esTehRecord},
			available: 10,
		},
		{
			name:      "tracked option record governs",
			detail:    nutrisari(),
			sel:       cart.Selection{flavorGroup: watermelon, spiceGroup: cold},
			want:      []int64{watermelonRec},
			available: 2,
		},
		{
			name:      "several tracked groups take the minimum",
			detail:    twoTracked,
			sel:       cart.Selection{flavorGroup: orange, spiceGroup: hot},
			want:      []int64{orangeRec, 221},
			available: 1,
		},
		{
			name:      "tracked group without option record falls back to item level",
			detail:    noOptionRecords,
			sel:       cart.Selection{flavorGroup: orange, spiceGroup: hot},
			want:      []int64{nutrisariRecord},
			available: 50,
		},
		{
			name:      "no item-level record falls back to first record",
			detail:    noItemLevel,
			want:      []int64{500},
			available: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			governing, err := ResolveGoverning(tt.detail, tt.sel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, recordIDs(governing))

			available, err := AvailableQuantity(tt.detail, tt.sel)
			require.NoError(t, err)
			assert.Equal(t, tt.available, available)
		})
	}
}

func TestResolveGoverningWithoutRecords(t *testing.T) {
	detail := simpleItem(9, "Roti", 3000, 900, 1)
	detail.Inventory = nil

	_, err := ResolveGoverning(detail, nil)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestNegativeQuantityReadsAsZero(t *testing.T) {
	detail := simpleItem(9, "Roti", 3000, 900, -2)
	available, err := AvailableQuantity(detail, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, available)
}

func TestValidateSelection(t *testing.T) {
	detail := nutrisari()

	err := ValidateSelection(detail, cart.Selection{flavorGroup: watermelon})
	require.ErrorIs(t, err, ErrIncompleteSelection)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []string{"Spice"}, vErr.Missing)

	err = ValidateSelection(detail, cart.Selection{flavorGroup: hot, spiceGroup: cold})
	assert.ErrorIs(t, err, ErrInvalidOption)

	err = ValidateSelection(detail, cart.Selection{flavorGroup: watermelon, spiceGroup: cold, 99: 1})
	assert.ErrorIs(t, err, ErrInvalidOption)

	err = ValidateSelection(simpleItem(esTehID, "Es Teh", 5000, esTehRecord, 1), cart.Selection{flavorGroup: watermelon})
	assert.ErrorIs(t, err, ErrInvalidOption)

	assert.NoError(t, ValidateSelection(detail, cart.Selection{flavorGroup: orange, spiceGroup: hot}))
}

func TestLineName(t *testing.T) {
	detail := nutrisari()
	assert.Equal(t, "Nutrisari (Watermelon, Hot)", LineName(detail, cart.Selection{spiceGroup: hot, flavorGroup: watermelon}))
	assert.Equal(t, "Nutrisari", LineName(detail, nil))
}

func TestStockResolverUnknownItem(t *testing.T) {
	f := newFixture()

	_, err := f.resolver.Resolve(context.Background(), 404, nil)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "item", nf.Resource)

	available, err := f.resolver.AvailableQuantity(context.Background(), nutrisariID, cart.Selection{flavorGroup: orange, spiceGroup: cold})
	require.NoError(t, err)
	assert.Equal(t, 5, available)
}
