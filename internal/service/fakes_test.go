package service_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"jazzcash-gateway/internal/config"
	"jazzcash-gateway/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// memOrders is an in-memory OrderRepo. Transactions are ignored; sqlmock
// checks that services open and close them.
type memOrders struct {
	mu     sync.Mutex
	orders map[int64]*domain.Order
	saves  int
}

func newMemOrders(orders ...*domain.Order) *memOrders {
	m := &memOrders{orders: make(map[int64]*domain.Order)}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memOrders) get(id int64) domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.orders[id]
}

func (m *memOrders) FindById(ctx context.Context, id int64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (m *memOrders) FindByTransactionRef(ctx context.Context, ref string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.TransactionRef != nil && *o.TransactionRef == ref {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memOrders) LockByTransactionRef(ctx context.Context, tx *sql.Tx, ref string) (*domain.Order, error) {
	return m.FindByTransactionRef(ctx, ref)
}

func (m *memOrders) SaveTransactionFields(ctx context.Context, tx *sql.Tx, id int64, ref, mobile string, cnic *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[id]
	o.TransactionRef = &ref
	o.MobileNumber = &mobile
	if cnic != nil {
		o.CNIC = cnic
	}
	m.saves++
	return nil
}

func (m *memOrders) UpdatePaymentStatus(ctx context.Context, tx *sql.Tx, order *domain.Order, from domain.PaymentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[order.ID]
	if o.PaymentStatus != from {
		return false, nil
	}
	o.PaymentStatus = order.PaymentStatus
	o.UpdatedAt = order.UpdatedAt
	return true, nil
}

func (m *memOrders) CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order.ID = int64(len(m.orders) + 1)
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memOrders) FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	cutoff := time.Now().Add(-olderThan)
	for _, o := range m.orders {
		if o.PaymentStatus == domain.PaymentPending && o.TransactionRef != nil && o.UpdatedAt.Before(cutoff) {
			out = append(out, *o)
		}
	}
	return out, nil
}

type memNotes struct {
	mu    sync.Mutex
	notes []domain.OrderNote
}

func (m *memNotes) AddNote(ctx context.Context, tx *sql.Tx, orderId int64, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, domain.OrderNote{ID: int64(len(m.notes) + 1), OrderID: orderId, Note: note, CreatedAt: time.Now()})
	return nil
}

func (m *memNotes) ListNotes(ctx context.Context, orderId int64) ([]domain.OrderNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OrderNote
	for _, n := range m.notes {
		if n.OrderID == orderId {
			out = append(out, n)
		}
	}
	return out, nil
}

type memCallbacks struct {
	mu      sync.Mutex
	entries []domain.CallbackLog
}

func (m *memCallbacks) Record(ctx context.Context, entry *domain.CallbackLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memCallbacks) FindByOutcomeSince(ctx context.Context, outcome domain.CallbackOutcome, since time.Time, limit int) ([]domain.CallbackLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CallbackLog
	for _, e := range m.entries {
		if e.Outcome == outcome && !e.ReceivedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

type memEvents struct {
	mu     sync.Mutex
	events []domain.PaymentEvent
}

func (m *memEvents) Publish(ctx context.Context, event domain.PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func testGateway() config.Gateway {
	return config.Gateway{
		Enabled:        true,
		MerchantID:     "MC12345",
		Password:       config.Secret("s3cret"),
		TestMode:       true,
		SandboxURL:     config.SandboxURL,
		ProductionURL:  config.ProductionURL,
		ReturnURL:      "https://pay.shop.example/jazzcash/callback",
		BillReference:  "billRef",
		TxnDescription: "Order Payment",
		Location:       time.UTC,
		PendingExpiry:  30 * time.Minute,
	}
}

func testStore() config.Store {
	return config.Store{
		BaseURL:     "https://shop.example",
		SuccessPath: "/checkout/order-received/%d",
		FailurePath: "/checkout/order-failed/%d",
		CartPath:    "/cart",
	}
}

func strPtr(s string) *string { return &s }
