package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jazzcash-gateway/internal/config"
	"jazzcash-gateway/internal/domain"
	"jazzcash-gateway/internal/jazzcash"
	"jazzcash-gateway/internal/lock"
	"jazzcash-gateway/internal/repo"
	"jazzcash-gateway/internal/storefront"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	FieldTxnRefNo     = "pp_TxnRefNo"
	FieldResponseCode = "pp_ResponseCode"
)

var errMissingFields = errors.New("callback missing pp_TxnRefNo or pp_ResponseCode")

// CallbackFields are the raw form values posted by JazzCash.
type CallbackFields map[string]string

// RedirectTarget is where the shopper's browser goes after a callback.
// Err carries the reason behind a rejected, unmatched or failed payment.
type RedirectTarget struct {
	URL     string
	Outcome domain.CallbackOutcome
	OrderID int64
	Err     error
}

type CallbackService interface {
	// HandleCallback never fails: every path resolves to a redirect.
	HandleCallback(ctx context.Context, fields CallbackFields) RedirectTarget
}

type callbackService struct {
	db           *sql.DB
	orderRepo    repo.OrderRepo
	noteRepo     repo.NoteRepo
	callbackRepo repo.CallbackRepo
	locker       lock.Locker
	urls         *storefront.URLs
	events       EventPublisher
	gw           config.Gateway
	log          *zap.Logger
}

func NewCallbackService(
	db *sql.DB,
	orderRepo repo.OrderRepo,
	noteRepo repo.NoteRepo,
	callbackRepo repo.CallbackRepo,
	locker lock.Locker,
	urls *storefront.URLs,
	events EventPublisher,
	gw config.Gateway,
	log *zap.Logger,
) CallbackService {
	return &callbackService{
		db:           db,
		orderRepo:    orderRepo,
		noteRepo:     noteRepo,
		callbackRepo: callbackRepo,
		locker:       locker,
		urls:         urls,
		events:       events,
		gw:           gw,
		log:          log,
	}
}

func (s *callbackService) HandleCallback(ctx context.Context, fields CallbackFields) RedirectTarget {
	rawRef, hasRef := fields[FieldTxnRefNo]
	rawCode, hasCode := fields[FieldResponseCode]
	result := domain.CallbackResult{
		TransactionRef: jazzcash.Sanitize(rawRef),
		ResponseCode:   jazzcash.Sanitize(rawCode),
	}

	var target RedirectTarget
	switch {
	case !hasRef || !hasCode || result.TransactionRef == "":
		target = s.reject(errMissingFields)
	default:
		if err := s.verify(fields); err != nil {
			target = s.reject(err)
		} else {
			target = s.reconcile(ctx, result)
		}
	}

	s.record(ctx, result, fields, target)
	s.logOutcome(result, target)
	return target
}

func (s *callbackService) verify(fields CallbackFields) error {
	if _, signed := fields["pp_SecureHash"]; !signed && !s.gw.RequireCallbackHash {
		return nil
	}
	if !jazzcash.VerifyResponseHash(s.gw.Password.Reveal(), fields) {
		return domain.ErrHashMismatch
	}
	return nil
}

func (s *callbackService) reconcile(ctx context.Context, result domain.CallbackResult) RedirectTarget {
	unlock, err := s.locker.Lock(ctx, result.TransactionRef)
	if err != nil {
		return s.reject(fmt.Errorf("lock %s: %w", result.TransactionRef, err))
	}
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.reject(err)
	}
	defer tx.Rollback()

	order, err := s.orderRepo.LockByTransactionRef(ctx, tx, result.TransactionRef)
	if err != nil {
		return s.reject(fmt.Errorf("find order by transaction ref: %w", err))
	}
	if order == nil {
		return RedirectTarget{
			URL:     s.urls.CartURL(),
			Outcome: domain.CallbackUnmatched,
			Err:     &domain.LookupError{TransactionRef: result.TransactionRef},
		}
	}

	// A repeated or late callback for a settled order changes nothing. One
	// that disagrees with the stored state is kept apart for manual review.
	if order.PaymentStatus.Terminal() {
		target := s.targetFor(order, result)
		target.Outcome = domain.CallbackDuplicate
		if (order.PaymentStatus == domain.PaymentComplete) != result.Succeeded() {
			target.Outcome = domain.CallbackConflict
			target.Err = fmt.Errorf("%w: order %d is %s, callback code %q",
				domain.ErrSettlementConflict, order.ID, order.PaymentStatus, result.ResponseCode)
		}
		return target
	}

	note := "JazzCash payment successful. Transaction Reference: " + result.TransactionRef
	order.PaymentStatus = domain.PaymentComplete
	if !result.Succeeded() {
		note = "JazzCash payment failed. Response Code: " + result.ResponseCode
		order.PaymentStatus = domain.PaymentFailed
	}
	order.UpdatedAt = time.Now()

	moved, err := s.orderRepo.UpdatePaymentStatus(ctx, tx, order, domain.PaymentPending)
	if err != nil {
		return s.reject(fmt.Errorf("update order %d: %w", order.ID, err))
	}
	if !moved {
		return s.reject(fmt.Errorf("order %d left pending state concurrently", order.ID))
	}
	if err := s.noteRepo.AddNote(ctx, tx, order.ID, note); err != nil {
		return s.reject(fmt.Errorf("add note to order %d: %w", order.ID, err))
	}
	if err := tx.Commit(); err != nil {
		return s.reject(err)
	}

	s.publish(ctx, order, result)
	return s.targetFor(order, result)
}

func (s *callbackService) targetFor(order *domain.Order, result domain.CallbackResult) RedirectTarget {
	if order.PaymentStatus == domain.PaymentComplete {
		return RedirectTarget{URL: s.urls.ReturnURL(order.ID), Outcome: domain.CallbackCompleted, OrderID: order.ID}
	}
	return RedirectTarget{
		URL:     s.urls.FailureURL(order.ID),
		Outcome: domain.CallbackFailed,
		OrderID: order.ID,
		Err:     &domain.ProcessorFailure{TransactionRef: result.TransactionRef, ResponseCode: result.ResponseCode},
	}
}

func (s *callbackService) reject(err error) RedirectTarget {
	return RedirectTarget{URL: s.urls.CartURL(), Outcome: domain.CallbackRejected, Err: err}
}

func (s *callbackService) publish(ctx context.Context, order *domain.Order, result domain.CallbackResult) {
	event := domain.PaymentEvent{
		Type:           domain.EventPaymentCompleted,
		OrderID:        order.ID,
		TransactionRef: result.TransactionRef,
		ResponseCode:   result.ResponseCode,
		Timestamp:      order.UpdatedAt.UTC(),
	}
	if order.PaymentStatus == domain.PaymentFailed {
		event.Type = domain.EventPaymentFailed
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Error("publish payment event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func (s *callbackService) record(ctx context.Context, result domain.CallbackResult, fields CallbackFields, target RedirectTarget) {
	payload := make(map[string]string, len(fields))
	for k, v := range fields {
		payload[jazzcash.Sanitize(k)] = jazzcash.Sanitize(v)
	}

	entry := &domain.CallbackLog{
		ID:             uuid.New(),
		TransactionRef: result.TransactionRef,
		ResponseCode:   result.ResponseCode,
		Outcome:        target.Outcome,
		Payload:        payload,
		ReceivedAt:     time.Now(),
	}
	if target.OrderID != 0 {
		id := target.OrderID
		entry.OrderID = &id
	}
	if err := s.callbackRepo.Record(ctx, entry); err != nil {
		s.log.Error("record jazzcash callback", zap.String("transaction_ref", result.TransactionRef), zap.Error(err))
	}
}

func (s *callbackService) logOutcome(result domain.CallbackResult, target RedirectTarget) {
	fields := []zap.Field{
		zap.String("transaction_ref", result.TransactionRef),
		zap.String("response_code", result.ResponseCode),
		zap.String("outcome", string(target.Outcome)),
		zap.Int64("order_id", target.OrderID),
	}
	switch target.Outcome {
	case domain.CallbackCompleted, domain.CallbackDuplicate:
		s.log.Info("jazzcash callback handled", fields...)
	case domain.CallbackFailed:
		s.log.Info("jazzcash payment declined", fields...)
	case domain.CallbackUnmatched, domain.CallbackConflict:
		s.log.Warn("jazzcash callback needs manual reconciliation", append(fields, zap.Error(target.Err))...)
	default:
		s.log.Warn("jazzcash callback rejected", append(fields, zap.Error(target.Err))...)
	}
}
