package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
)

// fakeStore is an in-memory stand-in for *store.Store with the same
// conditional-update semantics, so the concurrency-sensitive paths behave
// like the real thing.
type fakeStore struct {
	mu            sync.Mutex
	products      map[int64]*models.Product
	orders        map[int64]*models.Order
	items         map[int64][]models.OrderItem
	activity      []models.ActivityLog
	tokens        map[int64]string
	nextProductID int64
	nextOrderID   int64

	failGetOrder     map[int64]error
	failRestoreLines bool
	reserveCalls     int
	transitionHook   func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products:     make(map[int64]*models.Product),
		orders:       make(map[int64]*models.Order),
		items:        make(map[int64][]models.OrderItem),
		tokens:       make(map[int64]string),
		failGetOrder: make(map[int64]error),
	}
}

func (f *fakeStore) addProduct(title string, price int64, stock int) *models.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextProductID++
	p := &models.Product{
		ID:         f.nextProductID,
		Title:      title,
		Price:      price,
		TotalStock: stock,
	}
	f.products[p.ID] = p
	return p
}

func (f *fakeStore) stockOf(productID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[productID].TotalStock
}

func (f *fakeStore) CreateProduct(ctx context.Context, product *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextProductID++
	product.ID = f.nextProductID
	cp := *product
	f.products[product.ID] = &cp
	return nil
}

func (f *fakeStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ListProducts(ctx context.Context, includeArchived bool) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Product
	for _, p := range f.products {
		if !includeArchived && p.IsArchived {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeStore) SetProductArchived(ctx context.Context, id int64, archived bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	p.IsArchived = archived
	return nil
}

func (f *fakeStore) ReserveStock(ctx context.Context, productID int64, qty int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserveCalls++
	p, ok := f.products[productID]
	if !ok || p.IsArchived {
		return 0, fmt.Errorf("product %d: %w", productID, models.ErrNotFound)
	}
	if p.TotalStock < qty {
		return 0, fmt.Errorf("product %d: %w", productID, models.ErrInsufficientStock)
	}
	p.TotalStock -= qty
	return p.TotalStock, nil
}

func (f *fakeStore) RestoreStock(ctx context.Context, productID int64, qty int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return 0, fmt.Errorf("product %d: %w", productID, models.ErrNotFound)
	}
	p.TotalStock += qty
	return p.TotalStock, nil
}

func (f *fakeStore) RestoreStockLines(ctx context.Context, lines []models.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRestoreLines {
		return fmt.Errorf("transaction failed")
	}
	for _, line := range lines {
		if _, ok := f.products[line.ProductID]; !ok {
			return fmt.Errorf("product %d: %w", line.ProductID, models.ErrNotFound)
		}
	}
	for _, line := range lines {
		f.products[line.ProductID].TotalStock += line.Quantity
	}
	return nil
}

func (f *fakeStore) AcquireProductLock(ctx context.Context, productID int64, holderID, holderName string, now, expiry time.Time) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", productID, models.ErrNotFound)
	}

	free := !p.IsLocked ||
		(p.LockExpiry != nil && p.LockExpiry.Before(now)) ||
		(p.LockedBy != nil && *p.LockedBy == holderID)
	if !free {
		conflict := &models.LockConflictError{ProductID: productID}
		if p.LockedBy != nil {
			conflict.HolderID = *p.LockedBy
		}
		if p.LockedByName != nil {
			conflict.HolderName = *p.LockedByName
		}
		if p.LockExpiry != nil {
			conflict.Expiry = *p.LockExpiry
		}
		return nil, conflict
	}

	p.IsLocked = true
	p.LockedBy = &holderID
	p.LockedByName = &holderName
	p.LockedAt = &now
	p.LockExpiry = &expiry
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ReleaseProductLock(ctx context.Context, productID int64, holderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return fmt.Errorf("product %d: %w", productID, models.ErrNotFound)
	}
	if !p.IsLocked {
		return fmt.Errorf("product %d: %w", productID, models.ErrNotLocked)
	}
	if p.LockedBy == nil || *p.LockedBy != holderID {
		return fmt.Errorf("product %d: %w", productID, models.ErrNotLockHolder)
	}
	p.IsLocked = false
	p.LockedBy = nil
	p.LockedByName = nil
	p.LockedAt = nil
	p.LockExpiry = nil
	return nil
}

func (f *fakeStore) UpdateProductLocked(ctx context.Context, product *models.Product, holderID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[product.ID]
	if !ok {
		return fmt.Errorf("product %d: %w", product.ID, models.ErrNotFound)
	}
	if !p.IsLocked || (p.LockExpiry != nil && p.LockExpiry.Before(now)) {
		return fmt.Errorf("product %d: %w", product.ID, models.ErrNotLocked)
	}
	if p.LockedBy == nil || *p.LockedBy != holderID {
		return fmt.Errorf("product %d: %w", product.ID, models.ErrNotLockHolder)
	}
	p.Title = product.Title
	p.Description = product.Description
	p.Price = product.Price
	p.TotalStock = product.TotalStock
	p.IsLocked = false
	p.LockedBy = nil
	p.LockedByName = nil
	p.LockedAt = nil
	p.LockExpiry = nil
	return nil
}

func (f *fakeStore) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextOrderID++
	order.ID = f.nextOrderID
	order.OrderDate = time.Now()
	order.OrderUpdateDate = order.OrderDate
	cp := *order
	f.orders[order.ID] = &cp
	stored := make([]models.OrderItem, len(items))
	copy(stored, items)
	for i := range stored {
		stored[i].OrderID = order.ID
		stored[i].ID = int64(i + 1)
	}
	f.items[order.ID] = stored
	return nil
}

func (f *fakeStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failGetOrder[id]; ok {
		return nil, err
	}
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.OrderItem, len(f.items[orderID]))
	copy(out, f.items[orderID])
	return out, nil
}

func (f *fakeStore) ListOrdersByUser(ctx context.Context, userID int64, archived bool) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.UserID == userID && o.IsArchived == archived {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) ListOrders(ctx context.Context, archived bool) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.IsArchived == archived {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) TransitionStatus(ctx context.Context, orderID int64, from, to models.OrderStatus, now time.Time, confirmation, deadline *time.Time, markPaid bool) (bool, error) {
	if f.transitionHook != nil {
		hook := f.transitionHook
		f.transitionHook = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.OrderStatus != from {
		return false, nil
	}
	o.OrderStatus = to
	o.OrderUpdateDate = now
	if confirmation != nil {
		o.ConfirmationDate = confirmation
	}
	if deadline != nil {
		o.PaymentDeadline = deadline
	}
	if markPaid {
		o.PaymentStatus = models.PaymentPaid
	}
	return true, nil
}

func (f *fakeStore) CancelOrder(ctx context.Context, orderID int64, from models.OrderStatus, reason *string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.OrderStatus != from {
		return false, nil
	}
	o.OrderStatus = models.StatusCancelled
	o.CancellationReason = reason
	o.OrderUpdateDate = now
	return true, nil
}

func (f *fakeStore) UncancelOrder(ctx context.Context, orderID int64, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.OrderStatus != models.StatusCancelled {
		return false, nil
	}
	o.OrderStatus = models.StatusPending
	o.CancellationReason = nil
	o.ConfirmationDate = nil
	o.PaymentDeadline = nil
	o.OrderUpdateDate = now
	return true, nil
}

func (f *fakeStore) SetPaymentProof(ctx context.Context, orderID int64, proof string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	o.PaymentProof = &proof
	o.OrderUpdateDate = now
	return nil
}

func (f *fakeStore) SetOrderArchived(ctx context.Context, orderID int64, archived bool, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	o.IsArchived = archived
	o.OrderUpdateDate = now
	return nil
}

func (f *fakeStore) DeleteOrder(ctx context.Context, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[orderID]; !ok {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	delete(f.orders, orderID)
	delete(f.items, orderID)
	return nil
}

func (f *fakeStore) FindExpiredUnpaid(ctx context.Context, now time.Time) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.PaymentDeadline == nil || !o.PaymentDeadline.Before(now) {
			continue
		}
		if o.PaymentStatus != models.PaymentPending || o.PaymentProof != nil {
			continue
		}
		if o.OrderStatus == models.StatusCancelled || o.IsArchived {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeStore) SalesReport(ctx context.Context, from, to time.Time) (*models.SalesReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	report := &models.SalesReport{From: from, To: to, OrdersByStatus: make(map[string]int)}
	for _, o := range f.orders {
		if o.OrderDate.Before(from) || !o.OrderDate.Before(to) {
			continue
		}
		report.TotalOrders++
		report.OrdersByStatus[string(o.OrderStatus)]++
		if o.PaymentStatus == models.PaymentPaid {
			report.TotalRevenue += o.TotalAmount
		}
		if o.CancellationReason != nil {
			report.CancelledByDeadline++
		}
	}
	return report, nil
}

func (f *fakeStore) InsertActivityLog(ctx context.Context, entry *models.ActivityLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = int64(len(f.activity) + 1)
	f.activity = append(f.activity, *entry)
	return nil
}

func (f *fakeStore) GetCalendarToken(ctx context.Context, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[userID], nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu            sync.Mutex
	orderEvents   []models.OrderEvent
	productEvents []models.ProductEvent
}

func (f *fakePublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderEvents = append(f.orderEvents, *event)
	return nil
}

func (f *fakePublisher) PublishProductEvent(ctx context.Context, event *models.ProductEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.productEvents = append(f.productEvents, *event)
	return nil
}

func (f *fakePublisher) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.orderEvents))
	for _, e := range f.orderEvents {
		out = append(out, e.Action)
	}
	return out
}

// fakeNotifier records deadline sync calls.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []int64
}

func (f *fakeNotifier) SyncDeadline(ctx context.Context, userID int64, order *models.Order) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, order.ID)
	return true
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeCache is an in-memory StockCache with the same unknown/insufficient/
// reserved trichotomy as the redis scripts.
type fakeCache struct {
	mu     sync.Mutex
	levels map[int64]int
}

func newFakeCache() *fakeCache {
	return &fakeCache{levels: make(map[int64]int)}
}

func (f *fakeCache) ReserveStock(ctx context.Context, productID int64, qty int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	level, ok := f.levels[productID]
	if !ok {
		return redisclient.StockUnknown, nil
	}
	if level < qty {
		return redisclient.StockInsufficient, nil
	}
	f.levels[productID] = level - qty
	return redisclient.StockReserved, nil
}

func (f *fakeCache) RestoreStock(ctx context.Context, productID int64, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if level, ok := f.levels[productID]; ok {
		f.levels[productID] = level + qty
	}
	return nil
}

func (f *fakeCache) PrimeStock(ctx context.Context, productID int64, stock int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[productID] = stock
	return nil
}

// fakeRemoteCalendar is an in-memory RemoteCalendar.
type fakeRemoteCalendar struct {
	mu      sync.Mutex
	events  map[int64]string
	created int
	fail    bool
}

func newFakeRemoteCalendar() *fakeRemoteCalendar {
	return &fakeRemoteCalendar{events: make(map[int64]string)}
}

func (f *fakeRemoteCalendar) FindEventByOrderID(ctx context.Context, token string, orderID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("remote unavailable")
	}
	return f.events[orderID], nil
}

func (f *fakeRemoteCalendar) CreateEvent(ctx context.Context, token string, event CalendarEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("remote unavailable")
	}
	f.created++
	id := fmt.Sprintf("evt-%d", event.OrderID)
	f.events[event.OrderID] = id
	return id, nil
}

func newTestOrderService(store *fakeStore, publisher *fakePublisher, notifier DeadlineNotifier) *OrderService {
	svc := NewOrderService(store, store, NewLedger(store, nil), publisher, notifier, store, 72*time.Hour)
	return svc
}
