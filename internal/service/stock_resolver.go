package service

import (
	"context"
	"errors"
	"strings"

	"pos-checkout/internal/cart"
	"pos-checkout/internal/models"
	"pos-checkout/internal/store"
	"pos-checkout/internal/util"

	"go.uber.org/zap"
)

// ValidateSelection checks that sel holds exactly one valid option for every
// variant group of the item and nothing else
func ValidateSelection(detail *models.ItemDetail, sel cart.Selection) error {
	if !detail.RequiresSelection() {
		if len(sel) > 0 {
			return ErrInvalidOption
		}
		return nil
	}

	var missing []string
	for i := range detail.Groups {
		group := &detail.Groups[i]
		optionID, ok := sel[group.ID]
		if !ok {
			missing = append(missing, group.Name)
			continue
		}
		if _, ok := group.Option(optionID); !ok {
			return ErrInvalidOption
		}
	}
	if len(missing) > 0 {
		return incompleteSelection(missing)
	}
	if len(sel) != len(detail.Groups) {
		return ErrInvalidOption
	}
	return nil
}

// ResolveGoverning returns the inventory records that limit how many units of
// the item with the given selection can be sold. Each stock-tracking group
// contributes the record of its selected option. When none does, the
// item-level record governs, and failing that the first record of the item.
func ResolveGoverning(detail *models.ItemDetail, sel cart.Selection) ([]models.InventoryRecord, error) {
	if err := ValidateSelection(detail, sel); err != nil {
		return nil, err
	}

	var governing []models.InventoryRecord
	for _, group := range detail.Groups {
		if !group.TrackStock {
			continue
		}
		if rec, ok := optionRecord(detail.Inventory, sel[group.ID]); ok {
			governing = append(governing, rec)
		}
	}
	if len(governing) > 0 {
		return governing, nil
	}

	if rec, ok := itemLevelRecord(detail.Inventory); ok {
		return []models.InventoryRecord{rec}, nil
	}
	if len(detail.Inventory) > 0 {
		return []models.InventoryRecord{detail.Inventory[0]}, nil
	}
	return nil, notFound("inventory record for item", detail.Item.ID)
}

// AvailableQuantity is the minimum quantity across the governing records
func AvailableQuantity(detail *models.ItemDetail, sel cart.Selection) (int, error) {
	governing, err := ResolveGoverning(detail, sel)
	if err != nil {
		return 0, err
	}
	return minQuantity(governing), nil
}

// LineName renders the item name with its selected options in group order,
// e.g. "Nutrisari (Watermelon, Hot)"
func LineName(detail *models.ItemDetail, sel cart.Selection) string {
	var names []string
	for i := range detail.Groups {
		if opt, ok := detail.Groups[i].Option(sel[detail.Groups[i].ID]); ok {
			names = append(names, opt.Name)
		}
	}
	if len(names) == 0 {
		return detail.Item.Name
	}
	return detail.Item.Name + " (" + strings.Join(names, ", ") + ")"
}

func optionRecord(records []models.InventoryRecord, optionID int64) (models.InventoryRecord, bool) {
	for _, rec := range records {
		if rec.VariantOptionID != nil && *rec.VariantOptionID == optionID {
			return rec, true
		}
	}
	return models.InventoryRecord{}, false
}

func itemLevelRecord(records []models.InventoryRecord) (models.InventoryRecord, bool) {
	for _, rec := range records {
		if rec.VariantOptionID == nil {
			return rec, true
		}
	}
	return models.InventoryRecord{}, false
}

func minQuantity(records []models.InventoryRecord) int {
	if len(records) == 0 {
		return 0
	}
	minQty := records[0].Quantity
	for _, rec := range records[1:] {
		if rec.Quantity < minQty {
			minQty = rec.Quantity
		}
	}
	if minQty < 0 {
		return 0
	}
	return minQty
}

// Resolution is the outcome of resolving one item and selection against live stock
type Resolution struct {
	Detail    *models.ItemDetail
	Governing []models.InventoryRecord
	Available int
}

// StockResolver loads live item data and resolves governing records
type StockResolver struct {
	catalog CatalogRepository
	logger  *zap.Logger
}

// NewStockResolver creates a new stock resolver
func NewStockResolver(catalog CatalogRepository) *StockResolver {
	return &StockResolver{
		catalog: catalog,
		logger:  util.GetLogger(),
	}
}

// ItemDetail loads an item with its variant groups and inventory
func (r *StockResolver) ItemDetail(ctx context.Context, itemID int64) (*models.ItemDetail, error) {
	detail, err := r.catalog.GetItemDetail(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("item", itemID)
		}
		return nil, err
	}
	return detail, nil
}

// Resolve loads the item and resolves the records governing sel
func (r *StockResolver) Resolve(ctx context.Context, itemID int64, sel cart.Selection) (*Resolution, error) {
	ctx, span := util.StartSpan(ctx, "StockResolver.Resolve")
	defer span.End()

	detail, err := r.ItemDetail(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return r.resolveDetail(detail, sel)
}

func (r *StockResolver) resolveDetail(detail *models.ItemDetail, sel cart.Selection) (*Resolution, error) {
	governing, err := ResolveGoverning(detail, sel)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			r.logger.Warn("No inventory record for item",
				zap.Int64("item_id", detail.Item.ID))
		}
		return nil, err
	}
	return &Resolution{
		Detail:    detail,
		Governing: governing,
		Available: minQuantity(governing),
	}, nil
}

// AvailableQuantity returns how many units of the item with sel are in stock
func (r *StockResolver) AvailableQuantity(ctx context.Context, itemID int64, sel cart.Selection) (int, error) {
	res, err := r.Resolve(ctx, itemID, sel)
	if err != nil {
		return 0, err
	}
	return res.Available, nil
}
