// Package cart holds the in-progress order of one cashier session.
//
// A Cart carries no I/O: stock checks happen in the service layer before
// any mutation reaches it. Amounts are in the smallest currency unit.
package cart

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Selection maps a variant group id to the chosen option id
type Selection map[int64]int64

// OptionIDs returns the selected option ids in ascending order
func (s Selection) OptionIDs() []int64 {
	ids := make([]int64, 0, len(s))
	for _, optionID := range s {
		ids = append(ids, optionID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clone returns an independent copy
func (s Selection) Clone() Selection {
	out := make(Selection, len(s))
	for groupID, optionID := range s {
		out[groupID] = optionID
	}
	return out
}

// LineKey identifies a distinct sellable configuration: the item plus its
// sorted option ids, e.g. "12" or "12:31,40"
type LineKey string

// NewLineKey builds the key for an item and selection
func NewLineKey(itemID int64, sel Selection) LineKey {
	ids := sel.OptionIDs()
	if len(ids) == 0 {
		return LineKey(strconv.FormatInt(itemID, 10))
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return LineKey(fmt.Sprintf("%d:%s", itemID, strings.Join(parts, ",")))
}

// Line is one cart line. Name and Price are snapshots taken when the line
// was first added.
type Line struct {
	Key       LineKey   `json:"key"`
	ItemID    int64     `json:"item_id"`
	Selection Selection `json:"selection,omitempty"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Quantity  int       `json:"quantity"`
}

// Amount is price times quantity
func (l Line) Amount() int64 {
	return l.Price * int64(l.Quantity)
}

func (l Line) clone() Line {
	if l.Selection != nil {
		l.Selection = l.Selection.Clone()
	}
	return l
}

// PendingSelection is an item waiting for one option per variant group
// before it becomes a line
type PendingSelection struct {
	ItemID    int64     `json:"item_id"`
	ItemName  string    `json:"item_name"`
	Selection Selection `json:"selection"`
}

// Cart is the active order of a cashier session. CheckoutKey is the
// idempotency key a checkout of these lines commits under, once reserved.
type Cart struct {
	Lines           []Line            `json:"lines"`
	Discount        int64             `json:"discount"`
	PaidAmount      int64             `json:"paid_amount"`
	CustomerID      *int64            `json:"customer_id,omitempty"`
	PaymentMethodID *int64            `json:"payment_method_id,omitempty"`
	Pending         *PendingSelection `json:"pending,omitempty"`
	CheckoutKey     string            `json:"checkout_key,omitempty"`
}

// New returns an empty cart
func New() *Cart {
	return &Cart{Lines: []Line{}}
}

// IsEmpty reports whether the cart has no lines
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Line returns the line stored under key
func (c *Cart) Line(key LineKey) (Line, bool) {
	if i := c.indexOf(key); i >= 0 {
		return c.Lines[i], true
	}
	return Line{}, false
}

// QuantityFor returns the quantity held under key, zero when absent
func (c *Cart) QuantityFor(key LineKey) int {
	if line, ok := c.Line(key); ok {
		return line.Quantity
	}
	return 0
}

// Add appends line, or raises the quantity of an existing line with the
// same key while keeping its original snapshots
func (c *Cart) Add(line Line) {
	if line.Key == "" {
		line.Key = NewLineKey(line.ItemID, line.Selection)
	}
	if i := c.indexOf(line.Key); i >= 0 {
		c.Lines[i].Quantity += line.Quantity
		return
	}
	c.Lines = append(c.Lines, line.clone())
}

// SetQuantity replaces the quantity of a line; zero or less removes it
func (c *Cart) SetQuantity(key LineKey, qty int) bool {
	i := c.indexOf(key)
	if i < 0 {
		return false
	}
	if qty <= 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		return true
	}
	c.Lines[i].Quantity = qty
	return true
}

// Remove drops a line
func (c *Cart) Remove(key LineKey) bool {
	return c.SetQuantity(key, 0)
}

// Clear empties the lines and resets discount, paid amount and the
// reserved checkout key
func (c *Cart) Clear() {
	c.Lines = []Line{}
	c.Discount = 0
	c.PaidAmount = 0
	c.Pending = nil
	c.CheckoutKey = ""
}

// Reset clears the cart and forgets the customer and payment method
func (c *Cart) Reset() {
	c.Clear()
	c.CustomerID = nil
	c.PaymentMethodID = nil
}

// SetDiscount stores a flat discount, never negative
func (c *Cart) SetDiscount(amount int64) {
	c.Discount = nonNegative(amount)
}

// SetPaidAmount stores the tendered amount, never negative
func (c *Cart) SetPaidAmount(amount int64) {
	c.PaidAmount = nonNegative(amount)
}

// Subtotal is the sum of all line amounts
func (c *Cart) Subtotal() int64 {
	var subtotal int64
	for _, line := range c.Lines {
		subtotal += line.Amount()
	}
	return subtotal
}

// Total is the subtotal minus discount, clamped at zero
func (c *Cart) Total() int64 {
	return nonNegative(c.Subtotal() - c.Discount)
}

// Change is the paid amount minus total, clamped at zero
func (c *Cart) Change() int64 {
	return nonNegative(c.PaidAmount - c.Total())
}

func (c *Cart) indexOf(key LineKey) int {
	for i := range c.Lines {
		if c.Lines[i].Key == key {
			return i
		}
	}
	return -1
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
