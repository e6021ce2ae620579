package models

import "time"

// Event types
const (
	EventTypeSaleCompleted = "SALE_COMPLETED"
	EventTypeStockDepleted = "STOCK_DEPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleCompletedEvent published when a checkout commits
type SaleCompletedEvent struct {
	BaseEvent
	SaleID          int64          `json:"sale_id"`
	CustomerID      *int64         `json:"customer_id,omitempty"`
	PaymentMethodID int64          `json:"payment_method_id"`
	Total           int64          `json:"total"`
	Discount        int64          `json:"discount"`
	Lines           []SaleLineData `json:"lines"`
	StockLevels     []StockLevel   `json:"stock_levels"`
}

// StockDepletedEvent published when a checkout drops a record to zero
type StockDepletedEvent struct {
	BaseEvent
	SaleID   int64 `json:"sale_id"`
	RecordID int64 `json:"record_id"`
	ItemID   int64 `json:"item_id"`
}

// SaleLineData represents line data in events
type SaleLineData struct {
	ItemID   int64  `json:"item_id"`
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}
