package service

import (
	"context"
	"time"

	"pos-checkout/internal/cart"
	"pos-checkout/internal/models"
)

// CatalogRepository reads the catalog, customer and payment-method directories
type CatalogRepository interface {
	GetItemDetail(ctx context.Context, itemID int64) (*models.ItemDetail, error)
	ListActiveItems(ctx context.Context) ([]models.CatalogItem, error)
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	SearchCustomers(ctx context.Context, term string) ([]models.Customer, error)
	GetPaymentMethod(ctx context.Context, id int64) (*models.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error)
}

// SaleRepository persists sales and is the only writer of stock quantities
type SaleRepository interface {
	CommitSale(ctx context.Context, sale *models.Sale, lines []models.SaleLine, decrements []models.StockDecrement) ([]models.StockLevel, error)
	GetSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error)
	GetSaleByID(ctx context.Context, id int64) (*models.Sale, error)
	GetSaleLines(ctx context.Context, saleID int64) ([]models.SaleLine, error)
}

// HeldOrderStore keeps the per-session list of parked carts. Both writes
// change the list and the stored session cart together or not at all.
type HeldOrderStore interface {
	// HoldOrder appends order and stores active as the session cart
	HoldOrder(ctx context.Context, sessionID string, order cart.HeldOrder, active *cart.Cart) error
	ListHeldOrders(ctx context.Context, sessionID string) ([]cart.HeldOrder, error)
	// RestoreHeldOrder removes the entry at index and stores it as the
	// session cart; nil when absent
	RestoreHeldOrder(ctx context.Context, sessionID string, index int) (*cart.HeldOrder, error)
}

// CatalogCache caches the cashier catalog view
type CatalogCache interface {
	GetCatalog(ctx context.Context) ([]models.CatalogItem, bool, error)
	SetCatalog(ctx context.Context, items []models.CatalogItem, ttl time.Duration) error
	InvalidateCatalog(ctx context.Context) error
}

// EventPublisher publishes sale events
type EventPublisher interface {
	PublishSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error
	PublishStockDepleted(ctx context.Context, event *models.StockDepletedEvent) error
}
