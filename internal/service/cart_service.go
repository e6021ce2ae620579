package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"pos-checkout/internal/cart"
	"pos-checkout/internal/models"
	"pos-checkout/internal/store"
	"pos-checkout/internal/util"

	"go.uber.org/zap"
)

// CartService applies cashier operations to a session cart, checking live
// stock through the resolver before every quantity increase
type CartService struct {
	resolver *StockResolver
	catalog  CatalogRepository
	logger   *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(resolver *StockResolver, catalog CatalogRepository) *CartService {
	return &CartService{
		resolver: resolver,
		catalog:  catalog,
		logger:   util.GetLogger(),
	}
}

// AddResult is the outcome of AddToCart: either a line or a pending selection
type AddResult struct {
	Line    *cart.Line             `json:"line,omitempty"`
	Pending *cart.PendingSelection `json:"pending,omitempty"`
}

// QuantityAdjustment reports the quantity applied by UpdateQuantity
type QuantityAdjustment struct {
	Requested int    `json:"requested"`
	Applied   int    `json:"applied"`
	Clamped   bool   `json:"clamped"`
	Warning   string `json:"warning,omitempty"`
}

// CartView is the cart with its derived totals
type CartView struct {
	Lines           []cart.Line            `json:"lines"`
	Subtotal        int64                  `json:"subtotal"`
	Discount        int64                  `json:"discount"`
	Total           int64                  `json:"total"`
	PaidAmount      int64                  `json:"paid_amount"`
	Change          int64                  `json:"change"`
	CustomerID      *int64                 `json:"customer_id,omitempty"`
	PaymentMethodID *int64                 `json:"payment_method_id,omitempty"`
	Pending         *cart.PendingSelection `json:"pending,omitempty"`
}

// NewCartView computes the totals of c
func NewCartView(c *cart.Cart) *CartView {
	return &CartView{
		Lines:           c.Lines,
		Subtotal:        c.Subtotal(),
		Discount:        c.Discount,
		Total:           c.Total(),
		PaidAmount:      c.PaidAmount,
		Change:          c.Change(),
		CustomerID:      c.CustomerID,
		PaymentMethodID: c.PaymentMethodID,
		Pending:         c.Pending,
	}
}

// AddToCart adds one unit of an item. Items with variant groups are not
// added directly: the cart enters a pending selection instead.
func (s *CartService) AddToCart(ctx context.Context, c *cart.Cart, itemID int64) (*AddResult, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddToCart")
	defer span.End()

	detail, err := s.resolver.ItemDetail(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !detail.Item.IsActive() {
		return nil, notFound("item", itemID)
	}

	if detail.RequiresSelection() {
		c.Pending = &cart.PendingSelection{
			ItemID:    detail.Item.ID,
			ItemName:  detail.Item.Name,
			Selection: cart.Selection{},
		}
		return &AddResult{Pending: c.Pending}, nil
	}

	line, err := s.addLine(c, detail, nil)
	if err != nil {
		return nil, err
	}
	return &AddResult{Line: line}, nil
}

// SelectVariantOption records the option chosen for one group of the pending item
func (s *CartService) SelectVariantOption(ctx context.Context, c *cart.Cart, groupID, optionID int64) (*cart.PendingSelection, error) {
	if c.Pending == nil {
		return nil, ErrNoPendingSelection
	}

	detail, err := s.resolver.ItemDetail(ctx, c.Pending.ItemID)
	if err != nil {
		return nil, err
	}

	valid := false
	for i := range detail.Groups {
		if detail.Groups[i].ID != groupID {
			continue
		}
		_, valid = detail.Groups[i].Option(optionID)
		break
	}
	if !valid {
		return nil, ErrInvalidOption
	}

	if c.Pending.Selection == nil {
		c.Pending.Selection = cart.Selection{}
	}
	c.Pending.Selection[groupID] = optionID
	return c.Pending, nil
}

// ConfirmVariantSelection turns the pending selection into a cart line. On
// failure the selection stays pending so another option can be picked.
func (s *CartService) ConfirmVariantSelection(ctx context.Context, c *cart.Cart) (*cart.Line, error) {
	ctx, span := util.StartSpan(ctx, "CartService.ConfirmVariantSelection")
	defer span.End()

	if c.Pending == nil {
		return nil, ErrNoPendingSelection
	}

	detail, err := s.resolver.ItemDetail(ctx, c.Pending.ItemID)
	if err != nil {
		return nil, err
	}

	line, err := s.addLine(c, detail, c.Pending.Selection)
	if err != nil {
		return nil, err
	}
	c.Pending = nil
	return line, nil
}

// CancelVariantSelection drops the pending selection
func (s *CartService) CancelVariantSelection(c *cart.Cart) {
	c.Pending = nil
}

// IncrementQuantity adds one unit to a line if stock allows
func (s *CartService) IncrementQuantity(ctx context.Context, c *cart.Cart, key cart.LineKey) (*cart.Line, error) {
	ctx, span := util.StartSpan(ctx, "CartService.IncrementQuantity")
	defer span.End()

	line, ok := c.Line(key)
	if !ok {
		return nil, notFound("cart line", key)
	}

	res, err := s.resolver.Resolve(ctx, line.ItemID, line.Selection)
	if err != nil {
		return nil, err
	}

	remaining := s.remaining(c, res, "")
	if remaining < 1 {
		return nil, s.reject(res, line.Name, remaining)
	}

	c.SetQuantity(key, line.Quantity+1)
	line, _ = c.Line(key)
	return &line, nil
}

// DecrementQuantity removes one unit; the line disappears at zero
func (s *CartService) DecrementQuantity(c *cart.Cart, key cart.LineKey) error {
	line, ok := c.Line(key)
	if !ok {
		return notFound("cart line", key)
	}
	c.SetQuantity(key, line.Quantity-1)
	return nil
}

// UpdateQuantity sets a line quantity clamped to [1, available]
func (s *CartService) UpdateQuantity(ctx context.Context, c *cart.Cart, key cart.LineKey, target int) (*QuantityAdjustment, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateQuantity")
	defer span.End()

	line, ok := c.Line(key)
	if !ok {
		return nil, notFound("cart line", key)
	}

	res, err := s.resolver.Resolve(ctx, line.ItemID, line.Selection)
	if err != nil {
		return nil, err
	}

	limit := s.remaining(c, res, key)
	if limit < 1 {
		return nil, s.reject(res, line.Name, limit)
	}

	adj := &QuantityAdjustment{Requested: target, Applied: target}
	switch {
	case target < 1:
		adj.Applied = 1
		adj.Warning = "quantity must be at least 1"
	case target > limit:
		adj.Applied = limit
		adj.Warning = fmt.Sprintf("cannot add more, only %d in stock", limit)
		util.CartRejectionsTotal.WithLabelValues("quantity_clamped").Inc()
	}
	adj.Clamped = adj.Applied != target

	c.SetQuantity(key, adj.Applied)
	return adj, nil
}

// RemoveLine drops a line from the cart
func (s *CartService) RemoveLine(c *cart.Cart, key cart.LineKey) error {
	if !c.Remove(key) {
		return notFound("cart line", key)
	}
	return nil
}

// ClearCart empties the cart and resets discount and paid amount
func (s *CartService) ClearCart(c *cart.Cart) {
	c.Clear()
}

// SetDiscount stores a flat discount
func (s *CartService) SetDiscount(c *cart.Cart, amount int64) {
	c.SetDiscount(amount)
}

// SetPaidAmount stores the tendered amount
func (s *CartService) SetPaidAmount(c *cart.Cart, amount int64) {
	c.SetPaidAmount(amount)
}

// SetCustomer attaches a customer to the cart; nil detaches
func (s *CartService) SetCustomer(ctx context.Context, c *cart.Cart, customerID *int64) error {
	if customerID == nil {
		c.CustomerID = nil
		return nil
	}
	if _, err := s.catalog.GetCustomer(ctx, *customerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("customer", *customerID)
		}
		return fmt.Errorf("failed to get customer: %w", err)
	}
	id := *customerID
	c.CustomerID = &id
	return nil
}

// SetPaymentMethod selects an active payment method; nil deselects
func (s *CartService) SetPaymentMethod(ctx context.Context, c *cart.Cart, methodID *int64) error {
	if methodID == nil {
		c.PaymentMethodID = nil
		return nil
	}
	method, err := s.catalog.GetPaymentMethod(ctx, *methodID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("payment method", *methodID)
		}
		return fmt.Errorf("failed to get payment method: %w", err)
	}
	if !method.IsActive {
		return ErrInactivePayment
	}
	id := *methodID
	c.PaymentMethodID = &id
	return nil
}

func (s *CartService) addLine(c *cart.Cart, detail *models.ItemDetail, sel cart.Selection) (*cart.Line, error) {
	res, err := s.resolver.resolveDetail(detail, sel)
	if err != nil {
		if errors.Is(err, ErrIncompleteSelection) {
			util.CartRejectionsTotal.WithLabelValues("incomplete_selection").Inc()
		}
		return nil, err
	}

	name := LineName(detail, sel)
	remaining := s.remaining(c, res, "")
	if remaining < 1 {
		return nil, s.reject(res, name, remaining)
	}

	if len(sel) == 0 {
		sel = nil
	}
	key := cart.NewLineKey(detail.Item.ID, sel)
	c.Add(cart.Line{
		Key:       key,
		ItemID:    detail.Item.ID,
		Selection: sel,
		Name:      name,
		Price:     detail.Item.Price,
		Quantity:  1,
	})

	line, _ := c.Line(key)
	return &line, nil
}

// remaining returns how many more units the governing records allow, given
// what other lines of the same item already consume from them. Lines whose
// key equals exclude are not counted.
func (s *CartService) remaining(c *cart.Cart, res *Resolution, exclude cart.LineKey) int {
	used := make(map[int64]int)
	for _, line := range c.Lines {
		if line.ItemID != res.Detail.Item.ID || line.Key == exclude {
			continue
		}
		governing, err := ResolveGoverning(res.Detail, line.Selection)
		if err != nil {
			continue
		}
		for _, rec := range governing {
			used[rec.ID] += line.Quantity
		}
	}

	remaining := math.MaxInt
	for _, rec := range res.Governing {
		if left := rec.Quantity - used[rec.ID]; left < remaining {
			remaining = left
		}
	}
	if remaining < 0 || remaining == math.MaxInt {
		return 0
	}
	return remaining
}

func (s *CartService) reject(res *Resolution, name string, remaining int) error {
	util.CartRejectionsTotal.WithLabelValues("insufficient_stock").Inc()
	s.logger.Warn("Cart mutation rejected: insufficient stock",
		zap.Int64("item_id", res.Detail.Item.ID),
		zap.Int("available", res.Available),
		zap.Int("remaining", remaining))

	if remaining < 0 {
		remaining = 0
	}
	return &StockError{
		ItemID:    res.Detail.Item.ID,
		ItemName:  name,
		Available: res.Available,
		Remaining: remaining,
	}
}
