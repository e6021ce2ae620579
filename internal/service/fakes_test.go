package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pos-checkout/internal/cart"
	"pos-checkout/internal/models"
	"pos-checkout/internal/store"
)

// memoryStore is an in-memory catalog and sale repository. CommitSale applies
// the same conditional decrement as the Postgres store.
type memoryStore struct {
	mu        sync.Mutex
	details   map[int64]*models.ItemDetail
	customers map[int64]models.Customer
	methods   map[int64]models.PaymentMethod
	sales     []models.Sale
	lines     map[int64][]models.SaleLine

	// beforeCommit runs inside CommitSale before stock is checked
	beforeCommit func(s *memoryStore)
	commitErr    error
	listCalls    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		details:   make(map[int64]*models.ItemDetail),
		customers: make(map[int64]models.Customer),
		methods: map[int64]models.PaymentMethod{
			1: {ID: 1, Name: "Cash", IsActive: true},
			2: {ID: 2, Name: "QRIS", IsActive: true},
			3: {ID: 3, Name: "Voucher", IsActive: false},
		},
		lines: make(map[int64][]models.SaleLine),
	}
}

func (s *memoryStore) put(detail *models.ItemDetail) {
	s.details[detail.Item.ID] = detail
}

// setStock overwrites the quantity of an inventory record
func (s *memoryStore) setStock(recordID int64, qty int) {
	for _, detail := range s.details {
		for i := range detail.Inventory {
			if detail.Inventory[i].ID == recordID {
				detail.Inventory[i].Quantity = qty
			}
		}
	}
}

func (s *memoryStore) stock(recordID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(recordID)
	if rec == nil {
		return -1
	}
	return rec.Quantity
}

func (s *memoryStore) record(recordID int64) *models.InventoryRecord {
	for _, detail := range s.details {
		for i := range detail.Inventory {
			if detail.Inventory[i].ID == recordID {
				return &detail.Inventory[i]
			}
		}
	}
	return nil
}

func (s *memoryStore) GetItemDetail(ctx context.Context, itemID int64) (*models.ItemDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	detail, ok := s.details[itemID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *detail
	cp.Groups = append([]models.VariantGroup(nil), detail.Groups...)
	cp.Inventory = append([]models.InventoryRecord(nil), detail.Inventory...)
	return &cp, nil
}

func (s *memoryStore) ListActiveItems(ctx context.Context) ([]models.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++

	items := []models.CatalogItem{}
	for _, detail := range s.details {
		if !detail.Item.IsActive() {
			continue
		}
		stock := 0
		for _, rec := range detail.Inventory {
			stock += rec.Quantity
		}
		if stock == 0 {
			continue
		}
		items = append(items, models.CatalogItem{
			ID:       detail.Item.ID,
			Name:     detail.Item.Name,
			Category: detail.Item.Category,
			Price:    detail.Item.Price,
			Stock:    stock,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *memoryStore) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *memoryStore) SearchCustomers(ctx context.Context, term string) ([]models.Customer, error) {
	var out []models.Customer
	for _, c := range s.customers {
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(term)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memoryStore) GetPaymentMethod(ctx context.Context, id int64) (*models.PaymentMethod, error) {
	m, ok := s.methods[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *memoryStore) ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	var out []models.PaymentMethod
	for _, m := range s.methods {
		if m.IsActive {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) CommitSale(ctx context.Context, sale *models.Sale, lines []models.SaleLine, decrements []models.StockDecrement) ([]models.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.beforeCommit != nil {
		s.beforeCommit(s)
	}
	if s.commitErr != nil {
		return nil, s.commitErr
	}
	for _, existing := range s.sales {
		if existing.IdempotencyKey == sale.IdempotencyKey {
			return nil, fmt.Errorf("duplicate idempotency key %q", sale.IdempotencyKey)
		}
	}

	for _, dec := range decrements {
		rec := s.record(dec.RecordID)
		if rec == nil || rec.Quantity < dec.Quantity {
			available := 0
			if rec != nil {
				available = rec.Quantity
			}
			return nil, &store.StockConflictError{
				RecordID:  dec.RecordID,
				ItemID:    dec.ItemID,
				Requested: dec.Quantity,
				Available: available,
			}
		}
	}

	levels := make([]models.StockLevel, 0, len(decrements))
	for _, dec := range decrements {
		rec := s.record(dec.RecordID)
		rec.Quantity -= dec.Quantity
		levels = append(levels, models.StockLevel{RecordID: rec.ID, ItemID: rec.ItemID, Quantity: rec.Quantity})
	}

	sale.ID = int64(len(s.sales) + 1)
	sale.CreatedAt = time.Now()
	s.sales = append(s.sales, *sale)
	for i := range lines {
		lines[i].ID = int64(i + 1)
		lines[i].SaleID = sale.ID
	}
	s.lines[sale.ID] = append([]models.SaleLine(nil), lines...)
	return levels, nil
}

func (s *memoryStore) GetSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sale := range s.sales {
		if sale.IdempotencyKey == key {
			found := sale
			return &found, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) GetSaleByID(ctx context.Context, id int64) (*models.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sale := range s.sales {
		if sale.ID == id {
			found := sale
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memoryStore) GetSaleLines(ctx context.Context, saleID int64) ([]models.SaleLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines[saleID], nil
}

// memoryHeldStore keeps held orders and the session cart they swap with
type memoryHeldStore struct {
	orders map[string][]cart.HeldOrder
	active map[string]*cart.Cart
	err    error
}

func newMemoryHeldStore() *memoryHeldStore {
	return &memoryHeldStore{
		orders: make(map[string][]cart.HeldOrder),
		active: make(map[string]*cart.Cart),
	}
}

func (m *memoryHeldStore) HoldOrder(ctx context.Context, sessionID string, order cart.HeldOrder, active *cart.Cart) error {
	if m.err != nil {
		return m.err
	}
	m.orders[sessionID] = append(m.orders[sessionID], order)
	m.active[sessionID] = active
	return nil
}

func (m *memoryHeldStore) ListHeldOrders(ctx context.Context, sessionID string) ([]cart.HeldOrder, error) {
	return m.orders[sessionID], nil
}

func (m *memoryHeldStore) RestoreHeldOrder(ctx context.Context, sessionID string, index int) (*cart.HeldOrder, error) {
	if m.err != nil {
		return nil, m.err
	}
	list := m.orders[sessionID]
	if index < 0 || index >= len(list) {
		return nil, nil
	}
	order := list[index]
	m.orders[sessionID] = append(list[:index:index], list[index+1:]...)
	active := cart.New()
	active.Load(order)
	m.active[sessionID] = active
	return &order, nil
}

type memoryCache struct {
	items         []models.CatalogItem
	cached        bool
	getErr        error
	gets          int
	invalidations int
}

func (m *memoryCache) GetCatalog(ctx context.Context) ([]models.CatalogItem, bool, error) {
	m.gets++
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	return m.items, m.cached, nil
}

func (m *memoryCache) SetCatalog(ctx context.Context, items []models.CatalogItem, ttl time.Duration) error {
	m.items = items
	m.cached = true
	return nil
}

func (m *memoryCache) InvalidateCatalog(ctx context.Context) error {
	m.items = nil
	m.cached = false
	m.invalidations++
	return nil
}

type recordingPublisher struct {
	completed []*models.SaleCompletedEvent
	depleted  []*models.StockDepletedEvent
	err       error
}

func (p *recordingPublisher) PublishSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error {
	p.completed = append(p.completed, event)
	return p.err
}

func (p *recordingPublisher) PublishStockDepleted(ctx context.Context, event *models.StockDepletedEvent) error {
	p.depleted = append(p.depleted, event)
	return p.err
}

func int64Ptr(v int64) *int64 { return &v }

// Fixture ids
const (
	esTehID     = int64(1)
	nutrisariID = int64(2)

	esTehRecord     = int64(100)
	nutrisariRecord = int64(200)
	watermelonRec   = int64(211)
	orangeRec       = int64(212)

	flavorGroup = int64(10)
	watermelon  = int64(11)
	orange      = int64(12)
	spiceGroup  = int64(20)
	hot         = int64(21)
	cold        = int64(22)
)

// simpleItem has no variant groups and a single item-level record
func simpleItem(id int64, name string, price int64, recordID int64, stock int) *models.ItemDetail {
	return &models.ItemDetail{
		Item: models.Item{ID: id, Name: name, Category: "Minuman", Price: price, Status: models.ItemStatusActive},
		Inventory: []models.InventoryRecord{
			{ID: recordID, ItemID: id, Quantity: stock},
		},
	}
}

// nutrisari has a stock-tracking flavor group and a non-tracking spice group
func nutrisari() *models.ItemDetail {
	return &models.ItemDetail{
		Item: models.Item{ID: nutrisariID, Name: "Nutrisari", Category: "Minuman", Price: 7000, Status: models.ItemStatusActive},
		Groups: []models.VariantGroup{
			{ID: flavorGroup, Name: "Flavor", TrackStock: true, Options: []models.VariantOption{
				{ID: watermelon, VariantGroupID: flavorGroup, Name: "Watermelon"},
				{ID: orange, VariantGroupID: flavorGroup, Name: "Orange"},
			}},
			{ID: spiceGroup, Name: "Spice", Options: []models.VariantOption{
				{ID: hot, VariantGroupID: spiceGroup, Name: "Hot"},
				{ID: cold, VariantGroupID: spiceGroup, Name: "Cold"},
			}},
		},
		Inventory: []models.InventoryRecord{
			{ID: nutrisariRecord, ItemID: nutrisariID, Quantity: 50},
			{ID: watermelonRec, ItemID: nutrisariID, VariantOptionID: int64Ptr(watermelon), Quantity: 2},
			{ID: orangeRec, ItemID: nutrisariID, VariantOptionID: int64Ptr(orange), Quantity: 5},
		},
	}
}

type fixture struct {
	store     *memoryStore
	held      *memoryHeldStore
	cache     *memoryCache
	publisher *recordingPublisher
	resolver  *StockResolver
	carts     *CartService
	queue     *HeldOrderQueue
	catalog   *CatalogService
	checkout  *CheckoutService
}

func newFixture() *fixture {
	f := &fixture{
		store:     newMemoryStore(),
		held:      newMemoryHeldStore(),
		cache:     &memoryCache{},
		publisher: &recordingPublisher{},
	}
	f.store.put(simpleItem(esTehID, "Es Teh", 5000, esTehRecord, 10))
	f.store.put(nutrisari())
	f.store.customers[7] = models.Customer{ID: 7, Name: "Budi"}

	f.resolver = NewStockResolver(f.store)
	f.carts = NewCartService(f.resolver, f.store)
	f.queue = NewHeldOrderQueue(f.held, true)
	f.catalog = NewCatalogService(f.store, f.cache, time.Minute)
	f.checkout = NewCheckoutService(f.resolver, f.store, f.catalog, f.publisher)
	return f
}
