package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pos-checkout/internal/models"
	"pos-checkout/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const catalogFlightKey = "catalog"

// CatalogService serves the cashier catalog view and directory lookups.
// The view is kept in a process-local snapshot in front of the shared cache.
type CatalogService struct {
	catalog CatalogRepository
	cache   CatalogCache
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu         sync.RWMutex
	local      []models.CatalogItem
	localUntil time.Time
	generation uint64
	rebuild    singleflight.Group
}

// NewCatalogService creates a new catalog service. ttl bounds both the
// shared cache entry and the local snapshot.
func NewCatalogService(catalog CatalogRepository, cache CatalogCache, ttl time.Duration) *CatalogService {
	return &CatalogService{
		catalog: catalog,
		cache:   cache,
		ttl:     ttl,
		logger:  util.GetLogger(),
		now:     time.Now,
	}
}

// ListItems returns active items with stock, filtered by a case-insensitive
// substring of name or category
func (s *CatalogService) ListItems(ctx context.Context, search string) ([]models.CatalogItem, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListItems")
	defer span.End()

	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return items, nil
	}

	filtered := make([]models.CatalogItem, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Name), search) ||
			strings.Contains(strings.ToLower(item.Category), search) {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

// Invalidate drops the shared and local catalog so the next read sees fresh
// stock
func (s *CatalogService) Invalidate(ctx context.Context) {
	s.InvalidateLocal()
	if err := s.cache.InvalidateCatalog(ctx); err != nil {
		s.logger.Warn("Failed to invalidate catalog cache", zap.Error(err))
		return
	}
	util.CatalogInvalidationsTotal.Inc()
}

// InvalidateLocal drops only the local snapshot. Sales committed by other
// instances already cleared the shared cache.
func (s *CatalogService) InvalidateLocal() {
	s.mu.Lock()
	s.local = nil
	s.localUntil = time.Time{}
	s.generation++
	s.mu.Unlock()
}

// SearchCustomers finds customers by name, phone or email substring
func (s *CatalogService) SearchCustomers(ctx context.Context, term string) ([]models.Customer, error) {
	customers, err := s.catalog.SearchCustomers(ctx, strings.TrimSpace(term))
	if err != nil {
		return nil, fmt.Errorf("failed to search customers: %w", err)
	}
	return customers, nil
}

// ListPaymentMethods returns the active payment methods
func (s *CatalogService) ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	methods, err := s.catalog.ListPaymentMethods(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	return methods, nil
}

func (s *CatalogService) load(ctx context.Context) ([]models.CatalogItem, error) {
	s.mu.RLock()
	items, until := s.local, s.localUntil
	s.mu.RUnlock()
	if items != nil && s.now().Before(until) {
		return items, nil
	}

	result := s.rebuild.DoChan(catalogFlightKey, func() (interface{}, error) {
		return s.loadShared(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.CatalogItem), nil
	}
}

// loadShared reads the shared cache, falling back to the database, and
// refreshes the local snapshot unless it was invalidated meanwhile
func (s *CatalogService) loadShared(ctx context.Context) ([]models.CatalogItem, error) {
	s.mu.RLock()
	generation := s.generation
	s.mu.RUnlock()

	items, ok, err := s.cache.GetCatalog(ctx)
	if err != nil {
		s.logger.Warn("Catalog cache read failed, falling back to DB", zap.Error(err))
	}
	if err != nil || !ok {
		items, err = s.catalog.ListActiveItems(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list items: %w", err)
		}
		if err := s.cache.SetCatalog(ctx, items, s.ttl); err != nil {
			s.logger.Warn("Failed to cache catalog", zap.Error(err))
		}
	}
	if items == nil {
		items = []models.CatalogItem{}
	}

	s.mu.Lock()
	if s.generation == generation {
		s.local = items
		s.localUntil = s.now().Add(s.ttl)
	}
	s.mu.Unlock()
	return items, nil
}
