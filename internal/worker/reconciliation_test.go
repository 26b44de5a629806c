package worker

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"jazzcash-gateway/internal/domain"
	"jazzcash-gateway/internal/infrastructure/payment"
	"jazzcash-gateway/internal/lock"
	"jazzcash-gateway/internal/repo"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	orderCols    = []string{"id", "total", "payment_method", "transaction_ref", "mobile_number", "cnic", "payment_status", "created_at", "updated_at"}
	callbackCols = []string{"id", "transaction_ref", "response_code", "order_id", "outcome", "payload", "received_at"}
)

type recordedEvents struct {
	mu     sync.Mutex
	events []domain.PaymentEvent
}

func (r *recordedEvents) Publish(ctx context.Context, event domain.PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// statusTable answers status inquiries from a fixed table.
type statusTable struct {
	codes map[string]string
	err   error
	asked []string
}

func (s *statusTable) CheckStatus(ctx context.Context, txnRef string) (string, error) {
	s.asked = append(s.asked, txnRef)
	if s.err != nil {
		return "", s.err
	}
	code, ok := s.codes[txnRef]
	if !ok {
		return "", payment.ErrUnknownPayment
	}
	return code, nil
}

func newTestWorker(t *testing.T, gateway payment.StatusChecker) (*ReconciliationWorker, sqlmock.Sqlmock, *recordedEvents, *observer.ObservedLogs) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	core, logs := observer.New(zapcore.InfoLevel)
	events := &recordedEvents{}
	rw := NewReconciliationWorker(
		db,
		repo.NewOrderRepo(db),
		repo.NewNoteRepo(db),
		repo.NewCallbackRepo(db),
		lock.NewLocal(),
		gateway,
		events,
		30*time.Minute,
		time.Minute,
		zap.New(core),
	)
	return rw, mock, events, logs
}

func expectStale(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE payment_status = $1 AND transaction_ref IS NOT NULL AND updated_at < $2`)).
		WithArgs(domain.PaymentPending, sqlmock.AnyArg(), batchSize).
		WillReturnRows(rows)
}

func expectNothingForReview(mock sqlmock.Sqlmock) {
	for _, outcome := range []domain.CallbackOutcome{domain.CallbackUnmatched, domain.CallbackConflict} {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM jazzcash_callbacks`)).
			WithArgs(outcome, sqlmock.AnyArg(), batchSize).
			WillReturnRows(sqlmock.NewRows(callbackCols))
	}
}

// expectSettle expects order 7 to be locked while pending and moved to status with note.
func expectSettle(mock sqlmock.Sqlmock, old time.Time, status domain.PaymentStatus, note string) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("TXN_7_1700000000").
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow(7, "99.00", "jazzcash", "TXN_7_1700000000", "03001234567", nil, "pending", old, old))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE orders SET payment_status = $1`)).
		WithArgs(status, sqlmock.AnyArg(), int64(7), domain.PaymentPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO order_notes`)).
		WithArgs(int64(7), note).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func staleOrder7(old time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(orderCols).
		AddRow(7, "99.00", "jazzcash", "TXN_7_1700000000", "03001234567", nil, "pending", old, old)
}

func TestProcess_ExpiresStalePendingOrder(t *testing.T) {
	rw, mock, events, _ := newTestWorker(t, nil)
	old := time.Now().Add(-time.Hour)

	expectStale(mock, staleOrder7(old))
	expectSettle(mock, old, domain.PaymentFailed, expiredNote)
	expectNothingForReview(mock)

	require.NoError(t, rw.Process(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, events.events, 1)
	assert.Equal(t, domain.EventPaymentFailed, events.events[0].Type)
	assert.Equal(t, int64(7), events.events[0].OrderID)
}

func TestProcess_UnknownToProcessorExpires(t *testing.T) {
	gateway := &statusTable{codes: map[string]string{}}
	rw, mock, _, _ := newTestWorker(t, gateway)
	old := time.Now().Add(-time.Hour)

	expectStale(mock, staleOrder7(old))
	expectSettle(mock, old, domain.PaymentFailed, expiredNote)
	expectNothingForReview(mock)

	require.NoError(t, rw.Process(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{"TXN_7_1700000000"}, gateway.asked)
}

func TestProcess_PaidAtProcessorCompletesOrder(t *testing.T) {
	gateway := &statusTable{codes: map[string]string{"TXN_7_1700000000": "000"}}
	rw, mock, events, _ := newTestWorker(t, gateway)
	old := time.Now().Add(-time.Hour)

	expectStale(mock, staleOrder7(old))
	expectSettle(mock, old, domain.PaymentComplete,
		"JazzCash payment confirmed by status inquiry. Transaction Reference: TXN_7_1700000000")
	expectNothingForReview(mock)

	require.NoError(t, rw.Process(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, events.events, 1)
	assert.Equal(t, domain.EventPaymentCompleted, events.events[0].Type)
	assert.Equal(t, "000", events.events[0].ResponseCode)
}

func TestProcess_DeclinedAtProcessorKeepsCode(t *testing.T) {
	gateway := &statusTable{codes: map[string]string{"TXN_7_1700000000": "124"}}
	rw, mock, events, _ := newTestWorker(t, gateway)
	old := time.Now().Add(-time.Hour)

	expectStale(mock, staleOrder7(old))
	expectSettle(mock, old, domain.PaymentFailed, "JazzCash payment failed. Response Code: 124")
	expectNothingForReview(mock)

	require.NoError(t, rw.Process(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, events.events, 1)
	assert.Equal(t, domain.EventPaymentFailed, events.events[0].Type)
}

func TestProcess_InquiryErrorLeavesOrderPending(t *testing.T) {
	gateway := &statusTable{err: errors.New("inquiry timed out")}
	rw, mock, events, _ := newTestWorker(t, gateway)

	expectStale(mock, staleOrder7(time.Now().Add(-time.Hour)))
	expectNothingForReview(mock)

	require.NoError(t, rw.Process(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, events.events)
}

func TestProcess_CallbackWonTheRace(t *testing.T) {
	rw, mock, events, _ := newTestWorker(t, nil)
	old := time.Now().Add(-time.Hour)

	expectStale(mock, sqlmock.NewRows(orderCols).
		AddRow(7, "99.00", "jazzcash", "TXN_7_1700000000", "03001234567", nil, "pending", old, old))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("TXN_7_1700000000").
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow(7, "99.00", "jazzcash", "TXN_7_1700000000", "03001234567", nil, "complete", old, time.Now()))
	mock.ExpectRollback()
	expectNothingForReview(mock)

	require.NoError(t, rw.Process(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, events.events)
}

func TestProcess_ReportsCallbacksForReview(t *testing.T) {
	rw, mock, _, logs := newTestWorker(t, nil)

	expectStale(mock, sqlmock.NewRows(orderCols))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM jazzcash_callbacks`)).
		WithArgs(domain.CallbackUnmatched, sqlmock.AnyArg(), batchSize).
		WillReturnRows(sqlmock.NewRows(callbackCols).
			AddRow(uuid.NewString(), "TXN_404_1700000000", "000", nil, "unmatched", []byte(`{"pp_TxnRefNo":"TXN_404_1700000000"}`), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM jazzcash_callbacks`)).
		WithArgs(domain.CallbackConflict, sqlmock.AnyArg(), batchSize).
		WillReturnRows(sqlmock.NewRows(callbackCols).
			AddRow(uuid.NewString(), "TXN_42_1700000000", "000", 42, "conflict", []byte(`{"pp_TxnRefNo":"TXN_42_1700000000"}`), time.Now()))

	require.NoError(t, rw.Process(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	entries := logs.FilterMessage("jazzcash callback awaiting manual reconciliation").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "unmatched", entries[0].ContextMap()["outcome"])
	assert.Equal(t, "TXN_404_1700000000", entries[0].ContextMap()["transaction_ref"])
	assert.Equal(t, "conflict", entries[1].ContextMap()["outcome"])
	assert.EqualValues(t, 42, entries[1].ContextMap()["order_id"])
}

func TestProcess_AdvancesReviewWindow(t *testing.T) {
	rw, mock, _, _ := newTestWorker(t, nil)
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rw.now = func() time.Time { return fixed }

	expectStale(mock, sqlmock.NewRows(orderCols))
	expectNothingForReview(mock)
	require.NoError(t, rw.Process(context.Background()))
	assert.Equal(t, fixed, rw.lastRun)

	expectStale(mock, sqlmock.NewRows(orderCols))
	for _, outcome := range []domain.CallbackOutcome{domain.CallbackUnmatched, domain.CallbackConflict} {
		mock.ExpectQuery(regexp.QuoteMeta(`FROM jazzcash_callbacks`)).
			WithArgs(outcome, fixed, batchSize).
			WillReturnRows(sqlmock.NewRows(callbackCols))
	}
	require.NoError(t, rw.Process(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcess_StaleQueryError(t *testing.T) {
	rw, mock, _, _ := newTestWorker(t, nil)
	before := rw.lastRun

	mock.ExpectQuery(regexp.QuoteMeta(`FROM orders`)).WillReturnError(sql.ErrConnDone)

	err := rw.Process(context.Background())
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Equal(t, before, rw.lastRun)
}
