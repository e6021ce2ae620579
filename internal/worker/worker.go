package worker

import (
	"context"

	"pos-checkout/internal/broker"
	"pos-checkout/internal/models"
	"pos-checkout/internal/util"

	"go.uber.org/zap"
)

// CatalogInvalidator drops the catalog snapshot held by this instance
type CatalogInvalidator interface {
	InvalidateLocal()
}

// CatalogWorker drops the local catalog snapshot of this instance when any
// instance commits a sale
type CatalogWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	catalog      CatalogInvalidator
	logger       *zap.Logger
}

// NewCatalogWorker creates a new catalog worker
func NewCatalogWorker(consumer *broker.Consumer, catalog CatalogInvalidator) *CatalogWorker {
	w := &CatalogWorker{
		consumer: consumer,
		catalog:  catalog,
		logger:   util.GetLogger(),
	}

	w.eventHandler = broker.NewEventHandler()
	w.eventHandler.OnSaleCompleted(w.HandleSaleCompleted)
	w.eventHandler.OnStockDepleted(w.HandleStockDepleted)
	return w
}

// Start starts the worker
func (w *CatalogWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting catalog worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CatalogWorker) Stop() error {
	w.logger.Info("Stopping catalog worker")
	return w.consumer.Close()
}

// HandleSaleCompleted drops the local catalog so new stock figures are read
func (w *CatalogWorker) HandleSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error {
	w.logger.Debug("Sale completed, refreshing catalog",
		zap.Int64("sale_id", event.SaleID),
		zap.Int("lines", len(event.Lines)))
	w.catalog.InvalidateLocal()
	return nil
}

// HandleStockDepleted reports a sold-out inventory record
func (w *CatalogWorker) HandleStockDepleted(ctx context.Context, event *models.StockDepletedEvent) error {
	w.logger.Warn("Inventory record sold out",
		zap.Int64("record_id", event.RecordID),
		zap.Int64("item_id", event.ItemID),
		zap.Int64("sale_id", event.SaleID))
	w.catalog.InvalidateLocal()
	return nil
}
