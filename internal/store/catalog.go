package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"pos-checkout/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetItemDetail retrieves an item with its variant groups, their options and
// its inventory records
func (s *Store) GetItemDetail(ctx context.Context, itemID int64) (*models.ItemDetail, error) {
	var detail models.ItemDetail

	err := s.db.GetContext(ctx, &detail.Item,
		"SELECT id, name, category, price, status, created_at, updated_at FROM items WHERE id = $1", itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &detail.Groups, `
		SELECT g.id, g.name, g.track_stock
		FROM variant_groups g
		JOIN item_variant_group ivg ON ivg.variant_group_id = g.id
		WHERE ivg.item_id = $1
		ORDER BY g.id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get variant groups: %w", err)
	}

	if len(detail.Groups) > 0 {
		if err := s.attachOptions(ctx, detail.Groups); err != nil {
			return nil, err
		}
	}

	err = s.db.SelectContext(ctx, &detail.Inventory,
		"SELECT id, item_id, variant_option_id, quantity, updated_at FROM inventories WHERE item_id = $1 ORDER BY id", itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory: %w", err)
	}

	return &detail, nil
}

func (s *Store) attachOptions(ctx context.Context, groups []models.VariantGroup) error {
	groupIDs := make([]int64, len(groups))
	for i, g := range groups {
		groupIDs[i] = g.ID
	}

	query, args, err := sqlx.In(
		"SELECT id, variant_group_id, name FROM variant_options WHERE variant_group_id IN (?) ORDER BY id", groupIDs)
	if err != nil {
		return err
	}
	query = s.db.Rebind(query)

	var options []models.VariantOption
	if err := s.db.SelectContext(ctx, &options, query, args...); err != nil {
		return fmt.Errorf("failed to get variant options: %w", err)
	}

	for i := range groups {
		for _, opt := range options {
			if opt.VariantGroupID == groups[i].ID {
				groups[i].Options = append(groups[i].Options, opt)
			}
		}
	}
	return nil
}

// ListActiveItems retrieves active items that still have stock, newest first
func (s *Store) ListActiveItems(ctx context.Context) ([]models.CatalogItem, error) {
	items := []models.CatalogItem{}
	err := s.db.SelectContext(ctx, &items, `
		SELECT i.id, i.name, i.category, i.price, COALESCE(SUM(inv.quantity), 0) AS stock
		FROM items i
		JOIN inventories inv ON inv.item_id = i.id
		WHERE i.status = 'active'
		GROUP BY i.id
		HAVING SUM(inv.quantity) > 0
		ORDER BY i.created_at DESC`)
	return items, err
}

// GetCustomer retrieves a customer by ID
func (s *Store) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.GetContext(ctx, &customer,
		"SELECT id, name, COALESCE(phone, '') AS phone, COALESCE(email, '') AS email FROM customers WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching term literally
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

// SearchCustomers retrieves customers whose name, phone or email contains term
func (s *Store) SearchCustomers(ctx context.Context, term string) ([]models.Customer, error) {
	customers := []models.Customer{}
	err := s.db.SelectContext(ctx, &customers, `
		SELECT id, name, COALESCE(phone, '') AS phone, COALESCE(email, '') AS email
		FROM customers
		WHERE $1 = ''
			OR name ILIKE $2 ESCAPE '\'
			OR phone ILIKE $2 ESCAPE '\'
			OR email ILIKE $2 ESCAPE '\'
		ORDER BY name`, term, containsPattern(term))
	return customers, err
}

// GetPaymentMethod retrieves a payment method by ID
func (s *Store) GetPaymentMethod(ctx context.Context, id int64) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	err := s.db.GetContext(ctx, &method,
		"SELECT id, name, is_active FROM payment_methods WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment method %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &method, nil
}

// ListPaymentMethods retrieves active payment methods
func (s *Store) ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	methods := []models.PaymentMethod{}
	err := s.db.SelectContext(ctx, &methods,
		"SELECT id, name, is_active FROM payment_methods WHERE is_active ORDER BY name")
	return methods, err
}
