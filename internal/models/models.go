package models

import "time"

// Item statuses
const (
	ItemStatusActive   = "active"
	ItemStatusInactive = "inactive"
)

// Item represents a sellable catalog item
type Item struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Category  string    `db:"category" json:"category"`
	Price     int64     `db:"price" json:"price"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the item can be sold
func (i *Item) IsActive() bool {
	return i.Status == ItemStatusActive
}

// VariantGroup is a customization axis such as flavor or spice level
type VariantGroup struct {
	ID         int64           `db:"id" json:"id"`
	Name       string          `db:"name" json:"name"`
	TrackStock bool            `db:"track_stock" json:"track_stock"`
	Options    []VariantOption `db:"-" json:"options"`
}

// Option returns the option with the given id if it belongs to the group
func (g *VariantGroup) Option(optionID int64) (VariantOption, bool) {
	for _, opt := range g.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return VariantOption{}, false
}

// VariantOption is one concrete choice within a variant group
type VariantOption struct {
	ID             int64  `db:"id" json:"id"`
	VariantGroupID int64  `db:"variant_group_id" json:"variant_group_id"`
	Name           string `db:"name" json:"name"`
}

// InventoryRecord holds stock for an item, or for one variant option of an item
// when VariantOptionID is set
type InventoryRecord struct {
	ID              int64     `db:"id" json:"id"`
	ItemID          int64     `db:"item_id" json:"item_id"`
	VariantOptionID *int64    `db:"variant_option_id" json:"variant_option_id,omitempty"`
	Quantity        int       `db:"quantity" json:"quantity"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ItemDetail bundles an item with its variant groups and inventory records
type ItemDetail struct {
	Item      Item              `json:"item"`
	Groups    []VariantGroup    `json:"groups"`
	Inventory []InventoryRecord `json:"inventory"`
}

// RequiresSelection reports whether a variant option must be chosen per group
func (d *ItemDetail) RequiresSelection() bool {
	return len(d.Groups) > 0
}

// CatalogItem is the cashier-facing view of an active item with its total stock
type CatalogItem struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Category string `db:"category" json:"category"`
	Price    int64  `db:"price" json:"price"`
	Stock    int    `db:"stock" json:"stock"`
}

// Customer represents an entry of the customer directory
type Customer struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Phone string `db:"phone" json:"phone,omitempty"`
	Email string `db:"email" json:"email,omitempty"`
}

// PaymentMethod is a payment label such as cash or QRIS
type PaymentMethod struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	IsActive bool   `db:"is_active" json:"is_active"`
}

// Sale represents a committed checkout
type Sale struct {
	ID              int64     `db:"id" json:"id"`
	CustomerID      *int64    `db:"customer_id" json:"customer_id,omitempty"`
	PaymentMethodID int64     `db:"payment_method_id" json:"payment_method_id"`
	Total           int64     `db:"total" json:"total"`
	PaidAmount      int64     `db:"paid_amount" json:"paid_amount"`
	Discount        int64     `db:"discount" json:"discount"`
	IdempotencyKey  string    `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Change returns the amount handed back to the customer
func (s *Sale) Change() int64 {
	if s.PaidAmount > s.Total {
		return s.PaidAmount - s.Total
	}
	return 0
}

// SaleLine represents one line of a committed sale
type SaleLine struct {
	ID       int64  `db:"id" json:"id"`
	SaleID   int64  `db:"sale_id" json:"sale_id"`
	ItemID   int64  `db:"item_id" json:"item_id"`
	ItemName string `db:"item_name" json:"item_name"`
	Quantity int    `db:"quantity" json:"quantity"`
	Price    int64  `db:"price" json:"price"`
}

// StockDecrement is a conditional decrement of one inventory record
type StockDecrement struct {
	RecordID int64 `json:"record_id"`
	ItemID   int64 `json:"item_id"`
	Quantity int   `json:"quantity"`
}

// StockLevel is the quantity left on a record after a decrement
type StockLevel struct {
	RecordID int64 `db:"id" json:"record_id"`
	ItemID   int64 `db:"item_id" json:"item_id"`
	Quantity int   `db:"quantity" json:"quantity"`
}
