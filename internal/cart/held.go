package cart

import "time"

// HeldOrder is a parked cart snapshot
type HeldOrder struct {
	HeldAt     time.Time `json:"held_at"`
	CustomerID *int64    `json:"customer_id,omitempty"`
	Lines      []Line    `json:"lines"`
	Discount   int64     `json:"discount"`
	Total      int64     `json:"total"`
}

// Snapshot captures the lines, customer, discount and total of the cart
func (c *Cart) Snapshot(at time.Time) HeldOrder {
	lines := make([]Line, len(c.Lines))
	for i, line := range c.Lines {
		lines[i] = line.clone()
	}
	return HeldOrder{
		HeldAt:     at,
		CustomerID: copyID(c.CustomerID),
		Lines:      lines,
		Discount:   c.Discount,
		Total:      c.Total(),
	}
}

// Load replaces the cart contents with a held snapshot
func (c *Cart) Load(order HeldOrder) {
	c.Reset()
	for _, line := range order.Lines {
		c.Lines = append(c.Lines, line.clone())
	}
	c.CustomerID = copyID(order.CustomerID)
	c.Discount = order.Discount
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
