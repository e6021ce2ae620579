package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"pos-checkout/internal/cart"
	"pos-checkout/internal/models"
	"pos-checkout/internal/store"
	"pos-checkout/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutService turns a finalized cart into a committed sale
type CheckoutService struct {
	resolver  *StockResolver
	sales     SaleRepository
	catalog   *CatalogService
	publisher EventPublisher
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	resolver *StockResolver,
	sales SaleRepository,
	catalog *CatalogService,
	publisher EventPublisher,
) *CheckoutService {
	return &CheckoutService{
		resolver:  resolver,
		sales:     sales,
		catalog:   catalog,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// CheckoutResult represents the committed sale
type CheckoutResult struct {
	Sale     *models.Sale      `json:"sale"`
	Lines    []models.SaleLine `json:"lines"`
	Change   int64             `json:"change"`
	Replayed bool              `json:"replayed,omitempty"`
}

// ValidateCheckout checks the checkout preconditions in order
func ValidateCheckout(c *cart.Cart) error {
	if c.IsEmpty() {
		return ErrEmptyCart
	}
	if c.PaymentMethodID == nil {
		return ErrMissingPaymentMethod
	}
	if c.PaidAmount < c.Total() {
		return ErrInsufficientPayment
	}
	return nil
}

// CartSaver persists a session cart
type CartSaver func(ctx context.Context, c *cart.Cart) error

// Checkout commits the cart as one sale. Sale, sale lines and every stock
// decrement are written in a single transaction; on any failure nothing is
// persisted and the cart is left as it was. On success the cart is reset.
func (s *CheckoutService) Checkout(ctx context.Context, c *cart.Cart, idempotencyKey string) (*CheckoutResult, error) {
	return s.CheckoutSession(ctx, c, idempotencyKey, nil)
}

// CheckoutSession is Checkout for a stored session cart. An empty
// idempotencyKey falls back to the key already reserved on the cart. Right
// before the commit the cart is stamped with its key and passed to save, so
// the stored cart stays tied to its sale even if the caller never manages to
// store the reset cart.
func (s *CheckoutService) CheckoutSession(ctx context.Context, c *cart.Cart, idempotencyKey string, save CartSaver) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if idempotencyKey == "" {
		idempotencyKey = c.CheckoutKey
	}

	// a retried request finds its sale before the reset cart is validated
	if idempotencyKey != "" {
		result, err := s.replay(ctx, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if result != nil {
			if !c.IsEmpty() && c.CheckoutKey != idempotencyKey {
				util.CheckoutFailedTotal.WithLabelValues(CodeIdempotencyKeyReused).Inc()
				return nil, ErrIdempotencyKeyReused
			}
			c.Reset()
			return result, nil
		}
	} else {
		idempotencyKey = uuid.New().String()
	}

	if err := ValidateCheckout(c); err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			util.CheckoutFailedTotal.WithLabelValues(vErr.Code).Inc()
		}
		return nil, err
	}

	lines, decrements, err := s.prepare(ctx, c)
	if err != nil {
		return nil, err
	}

	if err := reserveKey(ctx, c, idempotencyKey, save); err != nil {
		return nil, err
	}

	sale := &models.Sale{
		CustomerID:      c.CustomerID,
		PaymentMethodID: *c.PaymentMethodID,
		Total:           c.Total(),
		PaidAmount:      c.PaidAmount,
		Discount:        c.Discount,
		IdempotencyKey:  idempotencyKey,
	}

	levels, err := s.sales.CommitSale(ctx, sale, lines, decrements)
	if err != nil {
		util.RecordSpanError(ctx, err)
		return nil, s.commitFailed(err, lines)
	}

	util.SalesCompletedTotal.Inc()
	s.logger.Info("Sale committed",
		zap.Int64("sale_id", sale.ID),
		zap.Int64("total", sale.Total),
		zap.Int("lines", len(lines)))

	s.afterCommit(ctx, sale, lines, levels)

	result := &CheckoutResult{
		Sale:   sale,
		Lines:  lines,
		Change: sale.Change(),
	}
	c.Reset()
	return result, nil
}

// GetSale retrieves a sale and its lines
func (s *CheckoutService) GetSale(ctx context.Context, saleID int64) (*models.Sale, []models.SaleLine, error) {
	sale, err := s.sales.GetSaleByID(ctx, saleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, notFound("sale", saleID)
		}
		return nil, nil, err
	}

	lines, err := s.sales.GetSaleLines(ctx, saleID)
	if err != nil {
		return nil, nil, err
	}
	return sale, lines, nil
}

// Reconcile resets a cart whose reserved checkout key already committed a
// sale and reports whether it did
func (s *CheckoutService) Reconcile(ctx context.Context, c *cart.Cart) (bool, error) {
	if c.CheckoutKey == "" {
		return false, nil
	}

	sale, err := s.sales.GetSaleByIdempotencyKey(ctx, c.CheckoutKey)
	if err != nil {
		return false, fmt.Errorf("failed to check checkout key: %w", err)
	}
	if sale == nil {
		return false, nil
	}

	s.logger.Warn("Cart already sold, resetting",
		zap.String("idempotency_key", c.CheckoutKey),
		zap.Int64("sale_id", sale.ID))
	c.Reset()
	return true, nil
}

func reserveKey(ctx context.Context, c *cart.Cart, key string, save CartSaver) error {
	if c.CheckoutKey == key {
		return nil
	}

	prev := c.CheckoutKey
	c.CheckoutKey = key
	if save == nil {
		return nil
	}
	if err := save(ctx, c); err != nil {
		c.CheckoutKey = prev
		return fmt.Errorf("failed to reserve checkout key: %w", err)
	}
	return nil
}

func (s *CheckoutService) replay(ctx context.Context, key string) (*CheckoutResult, error) {
	existing, err := s.sales.GetSaleByIdempotencyKey(ctx, key)
	if err != nil {
		s.logger.Error("Failed to check checkout idempotency", zap.Error(err))
		return nil, &TransactionError{Err: fmt.Errorf("failed to check idempotency: %w", err)}
	}
	if existing == nil {
		return nil, nil
	}

	lines, err := s.sales.GetSaleLines(ctx, existing.ID)
	if err != nil {
		return nil, &TransactionError{Err: fmt.Errorf("failed to get sale lines: %w", err)}
	}

	s.logger.Info("Duplicate checkout detected",
		zap.String("idempotency_key", key),
		zap.Int64("sale_id", existing.ID))

	return &CheckoutResult{
		Sale:     existing,
		Lines:    lines,
		Change:   existing.Change(),
		Replayed: true,
	}, nil
}

// prepare re-resolves every line against live stock and builds the sale lines
// and the aggregated decrements, ordered by record id so concurrent
// checkouts lock rows in the same order
func (s *CheckoutService) prepare(ctx context.Context, c *cart.Cart) ([]models.SaleLine, []models.StockDecrement, error) {
	details := make(map[int64]*models.ItemDetail)
	records := make(map[int64]models.InventoryRecord)
	byRecord := make(map[int64]*models.StockDecrement)
	names := make(map[int64]string)

	lines := make([]models.SaleLine, 0, len(c.Lines))
	for _, line := range c.Lines {
		detail, ok := details[line.ItemID]
		if !ok {
			var err error
			detail, err = s.resolver.ItemDetail(ctx, line.ItemID)
			if err != nil {
				var nf *NotFoundError
				if errors.As(err, &nf) {
					return nil, nil, err
				}
				return nil, nil, &TransactionError{Err: err}
			}
			details[line.ItemID] = detail
		}

		res, err := s.resolver.resolveDetail(detail, line.Selection)
		if err != nil {
			return nil, nil, err
		}

		for _, rec := range res.Governing {
			records[rec.ID] = rec
			names[rec.ID] = line.Name
			dec, ok := byRecord[rec.ID]
			if !ok {
				dec = &models.StockDecrement{RecordID: rec.ID, ItemID: rec.ItemID}
				byRecord[rec.ID] = dec
			}
			dec.Quantity += line.Quantity
		}

		lines = append(lines, models.SaleLine{
			ItemID:   line.ItemID,
			ItemName: line.Name,
			Quantity: line.Quantity,
			Price:    line.Price,
		})
	}

	decrements := make([]models.StockDecrement, 0, len(byRecord))
	for _, dec := range byRecord {
		if rec := records[dec.RecordID]; dec.Quantity > rec.Quantity {
			util.CheckoutFailedTotal.WithLabelValues("stock_conflict").Inc()
			return nil, nil, &StockError{
				ItemID:    dec.ItemID,
				ItemName:  names[dec.RecordID],
				Available: max(rec.Quantity, 0),
				Conflict:  true,
			}
		}
		decrements = append(decrements, *dec)
	}
	sort.Slice(decrements, func(i, j int) bool {
		return decrements[i].RecordID < decrements[j].RecordID
	})

	return lines, decrements, nil
}

func (s *CheckoutService) commitFailed(err error, lines []models.SaleLine) error {
	var conflict *store.StockConflictError
	if errors.As(err, &conflict) {
		util.CheckoutFailedTotal.WithLabelValues("stock_conflict").Inc()
		s.logger.Warn("Checkout aborted: stock conflict",
			zap.Int64("record_id", conflict.RecordID),
			zap.Int("requested", conflict.Requested),
			zap.Int("available", conflict.Available))

		name := ""
		for _, line := range lines {
			if line.ItemID == conflict.ItemID {
				name = line.ItemName
				break
			}
		}
		return &StockError{
			ItemID:    conflict.ItemID,
			ItemName:  name,
			Available: conflict.Available,
			Conflict:  true,
		}
	}

	util.CheckoutFailedTotal.WithLabelValues("transaction").Inc()
	s.logger.Error("Checkout transaction failed", zap.Error(err))
	return &TransactionError{Err: err}
}

// afterCommit clears the shared catalog view, then publishes sale events so
// other instances drop their local view after the shared one is gone.
// Failures here are logged only: the sale is already durable.
func (s *CheckoutService) afterCommit(ctx context.Context, sale *models.Sale, lines []models.SaleLine, levels []models.StockLevel) {
	s.catalog.Invalidate(ctx)

	lineData := make([]models.SaleLineData, 0, len(lines))
	for _, line := range lines {
		lineData = append(lineData, models.SaleLineData{
			ItemID:   line.ItemID,
			ItemName: line.ItemName,
			Quantity: line.Quantity,
			Price:    line.Price,
		})
	}

	event := &models.SaleCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleCompleted,
			Timestamp: time.Now(),
		},
		SaleID:          sale.ID,
		CustomerID:      sale.CustomerID,
		PaymentMethodID: sale.PaymentMethodID,
		Total:           sale.Total,
		Discount:        sale.Discount,
		Lines:           lineData,
		StockLevels:     levels,
	}
	if err := s.publisher.PublishSaleCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish SaleCompleted event", zap.Error(err))
	}

	for _, level := range levels {
		if level.Quantity > 0 {
			continue
		}
		util.StockDepletedTotal.Inc()
		depleted := &models.StockDepletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeStockDepleted,
				Timestamp: time.Now(),
			},
			SaleID:   sale.ID,
			RecordID: level.RecordID,
			ItemID:   level.ItemID,
		}
		if err := s.publisher.PublishStockDepleted(ctx, depleted); err != nil {
			s.logger.Error("Failed to publish StockDepleted event", zap.Error(err))
		}
	}
}
