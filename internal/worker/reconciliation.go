package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jazzcash-gateway/internal/domain"
	"jazzcash-gateway/internal/infrastructure/payment"
	"jazzcash-gateway/internal/lock"
	"jazzcash-gateway/internal/repo"
	"jazzcash-gateway/internal/service"

	"go.uber.org/zap"
)

const (
	batchSize   = 100
	expiredNote = "JazzCash payment expired without callback."
)

// reviewOutcomes are the callback outcomes that need a human to settle them.
var reviewOutcomes = []domain.CallbackOutcome{domain.CallbackUnmatched, domain.CallbackConflict}

// ReconciliationWorker settles orders whose JazzCash callback never arrived
// and reports callbacks that need manual reconciliation.
type ReconciliationWorker struct {
	db           *sql.DB
	orderRepo    repo.OrderRepo
	noteRepo     repo.NoteRepo
	callbackRepo repo.CallbackRepo
	locker       lock.Locker
	gateway      payment.StatusChecker
	events       service.EventPublisher
	expiry       time.Duration
	interval     time.Duration
	log          *zap.Logger

	now     func() time.Time
	lastRun time.Time
}

// NewReconciliationWorker builds the worker. gateway may be nil when no
// status inquiry is available; stale orders are then expired unasked.
func NewReconciliationWorker(
	db *sql.DB,
	orderRepo repo.OrderRepo,
	noteRepo repo.NoteRepo,
	callbackRepo repo.CallbackRepo,
	locker lock.Locker,
	gateway payment.StatusChecker,
	events service.EventPublisher,
	expiry time.Duration,
	interval time.Duration,
	log *zap.Logger,
) *ReconciliationWorker {
	return &ReconciliationWorker{
		db:           db,
		orderRepo:    orderRepo,
		noteRepo:     noteRepo,
		callbackRepo: callbackRepo,
		locker:       locker,
		gateway:      gateway,
		events:       events,
		expiry:       expiry,
		interval:     interval,
		log:          log,
		now:          time.Now,
		lastRun:      time.Now(),
	}
}

func (rw *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	rw.log.Info("reconciliation worker started",
		zap.Duration("interval", rw.interval),
		zap.Duration("pending_expiry", rw.expiry),
		zap.Bool("status_inquiry", rw.gateway != nil),
	)

	for {
		select {
		case <-ctx.Done():
			rw.log.Info("reconciliation worker stopped")
			return
		case <-ticker.C:
			if err := rw.Process(ctx); err != nil && !errors.Is(err, context.Canceled) {
				rw.log.Error("reconciliation failed", zap.Error(err))
			}
		}
	}
}

// Process runs one reconciliation pass.
func (rw *ReconciliationWorker) Process(ctx context.Context) error {
	started := rw.now()

	if err := rw.settleStale(ctx); err != nil {
		return err
	}
	if err := rw.reportForReview(ctx, rw.lastRun); err != nil {
		return err
	}
	rw.lastRun = started
	return nil
}

func (rw *ReconciliationWorker) settleStale(ctx context.Context) error {
	stale, err := rw.orderRepo.FindStalePending(ctx, rw.expiry, batchSize)
	if err != nil {
		return fmt.Errorf("find stale pending orders: %w", err)
	}

	settled := map[domain.PaymentStatus]int{}
	for _, order := range stale {
		status, err := rw.settle(ctx, *order.TransactionRef)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Left pending; the next pass retries.
			rw.log.Error("settle stale order", zap.Int64("order_id", order.ID), zap.Error(err))
			continue
		}
		if status != "" {
			settled[status]++
		}
	}
	if len(settled) > 0 {
		rw.log.Info("settled stale jazzcash payments",
			zap.Int("complete", settled[domain.PaymentComplete]),
			zap.Int("failed", settled[domain.PaymentFailed]),
		)
	}
	return nil
}

// inquire returns the processor's response code for ref, or "" when the
// processor cannot be asked or never saw the transaction.
func (rw *ReconciliationWorker) inquire(ctx context.Context, ref string) (string, error) {
	if rw.gateway == nil {
		return "", nil
	}
	code, err := rw.gateway.CheckStatus(ctx, ref)
	if errors.Is(err, payment.ErrUnknownPayment) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("check status of %s: %w", ref, err)
	}
	return code, nil
}

// settle moves the order holding ref out of pending: to the processor's
// verdict when it has one, otherwise to Failed as expired. It returns the new
// status, or "" when the order was no longer pending and stale once locked.
func (rw *ReconciliationWorker) settle(ctx context.Context, ref string) (domain.PaymentStatus, error) {
	code, err := rw.inquire(ctx, ref)
	if err != nil {
		return "", err
	}

	unlock, err := rw.locker.Lock(ctx, ref)
	if err != nil {
		return "", err
	}
	defer unlock()

	tx, err := rw.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	order, err := rw.orderRepo.LockByTransactionRef(ctx, tx, ref)
	if err != nil {
		return "", err
	}
	now := rw.now()
	if order == nil || order.PaymentStatus != domain.PaymentPending || order.UpdatedAt.After(now.Add(-rw.expiry)) {
		return "", nil
	}

	result := domain.CallbackResult{TransactionRef: ref, ResponseCode: code}
	note := expiredNote
	order.PaymentStatus = domain.PaymentFailed
	switch {
	case result.Succeeded():
		note = "JazzCash payment confirmed by status inquiry. Transaction Reference: " + ref
		order.PaymentStatus = domain.PaymentComplete
	case code != "":
		note = "JazzCash payment failed. Response Code: " + code
	}
	order.UpdatedAt = now

	moved, err := rw.orderRepo.UpdatePaymentStatus(ctx, tx, order, domain.PaymentPending)
	if err != nil || !moved {
		return "", err
	}
	if err := rw.noteRepo.AddNote(ctx, tx, order.ID, note); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	rw.log.Warn("jazzcash payment settled without callback",
		zap.Int64("order_id", order.ID),
		zap.String("transaction_ref", ref),
		zap.String("response_code", code),
		zap.String("payment_status", string(order.PaymentStatus)),
	)

	event := domain.PaymentEvent{
		Type:           domain.EventPaymentFailed,
		OrderID:        order.ID,
		TransactionRef: ref,
		ResponseCode:   code,
		Timestamp:      now.UTC(),
	}
	if order.PaymentStatus == domain.PaymentComplete {
		event.Type = domain.EventPaymentCompleted
	}
	if err := rw.events.Publish(ctx, event); err != nil {
		rw.log.Error("publish payment event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
	return order.PaymentStatus, nil
}

func (rw *ReconciliationWorker) reportForReview(ctx context.Context, since time.Time) error {
	for _, outcome := range reviewOutcomes {
		entries, err := rw.callbackRepo.FindByOutcomeSince(ctx, outcome, since, batchSize)
		if err != nil {
			return fmt.Errorf("find %s callbacks: %w", outcome, err)
		}
		for _, e := range entries {
			fields := []zap.Field{
				zap.String("callback_id", e.ID.String()),
				zap.String("outcome", string(e.Outcome)),
				zap.String("transaction_ref", e.TransactionRef),
				zap.String("response_code", e.ResponseCode),
				zap.Time("received_at", e.ReceivedAt),
			}
			if e.OrderID != nil {
				fields = append(fields, zap.Int64("order_id", *e.OrderID))
			}
			rw.log.Warn("jazzcash callback awaiting manual reconciliation", fields...)
		}
	}
	return nil
}
