package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pos-checkout/internal/models"

	"github.com/jmoiron/sqlx"
)

// CommitSale writes the sale, its lines and every stock decrement in one
// transaction. Each decrement only applies while the record holds enough
// quantity; the UPDATE takes the row lock, so two terminals selling the last
// unit cannot both succeed. A failed decrement rolls everything back and
// returns a *StockConflictError.
func (s *Store) CommitSale(ctx context.Context, sale *models.Sale, lines []models.SaleLine, decrements []models.StockDecrement) ([]models.StockLevel, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	levels := make([]models.StockLevel, 0, len(decrements))
	for _, dec := range decrements {
		level, err := decrementStock(ctx, tx, dec)
		if err != nil {
			return nil, err
		}
		levels = append(levels, *level)
	}

	err = tx.GetContext(ctx, sale, `
		INSERT INTO sales (customer_id, payment_method_id, total, paid_amount, discount, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		sale.CustomerID, sale.PaymentMethodID, sale.Total, sale.PaidAmount, sale.Discount, sale.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create sale: %w", err)
	}

	for i := range lines {
		lines[i].SaleID = sale.ID
		err = tx.GetContext(ctx, &lines[i].ID, `
			INSERT INTO sale_lines (sale_id, item_id, item_name, quantity, price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			lines[i].SaleID, lines[i].ItemID, lines[i].ItemName, lines[i].Quantity, lines[i].Price)
		if err != nil {
			return nil, fmt.Errorf("failed to create sale line: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit sale: %w", err)
	}
	return levels, nil
}

func decrementStock(ctx context.Context, tx *sqlx.Tx, dec models.StockDecrement) (*models.StockLevel, error) {
	var level models.StockLevel
	err := tx.GetContext(ctx, &level, `
		UPDATE inventories SET quantity = quantity - $1, updated_at = NOW()
		WHERE id = $2 AND quantity >= $1
		RETURNING id, item_id, quantity`,
		dec.Quantity, dec.RecordID)
	if err == nil {
		return &level, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to decrement stock: %w", err)
	}

	var available int
	err = tx.GetContext(ctx, &available, "SELECT quantity FROM inventories WHERE id = $1", dec.RecordID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("inventory record %d: %w", dec.RecordID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stock: %w", err)
	}

	return nil, &StockConflictError{
		RecordID:  dec.RecordID,
		ItemID:    dec.ItemID,
		Requested: dec.Quantity,
		Available: available,
	}
}

// GetSaleByID retrieves a sale by ID
func (s *Store) GetSaleByID(ctx context.Context, id int64) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.GetContext(ctx, &sale, `
		SELECT id, customer_id, payment_method_id, total, paid_amount, discount, idempotency_key, created_at
		FROM sales WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sale %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetSaleByIdempotencyKey retrieves a sale by idempotency key
func (s *Store) GetSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.GetContext(ctx, &sale, `
		SELECT id, customer_id, payment_method_id, total, paid_amount, discount, idempotency_key, created_at
		FROM sales WHERE idempotency_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetSaleLines retrieves all lines of a sale
func (s *Store) GetSaleLines(ctx context.Context, saleID int64) ([]models.SaleLine, error) {
	lines := []models.SaleLine{}
	err := s.db.SelectContext(ctx, &lines,
		"SELECT id, sale_id, item_id, item_name, quantity, price FROM sale_lines WHERE sale_id = $1 ORDER BY id", saleID)
	return lines, err
}
