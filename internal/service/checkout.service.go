package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jazzcash-gateway/internal/config"
	"jazzcash-gateway/internal/domain"
	"jazzcash-gateway/internal/jazzcash"
	"jazzcash-gateway/internal/repo"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CheckoutInput struct {
	OrderID      int64
	MobileNumber string
	CNIC         string
}

type CheckoutService interface {
	// InitiatePayment signs a JazzCash request for a pending order and stores
	// the transaction reference on it. Invalid input leaves the order untouched.
	InitiatePayment(ctx context.Context, in CheckoutInput) (*domain.PaymentRequest, error)
	CreateOrder(ctx context.Context, total decimal.Decimal) (*domain.Order, error)
}

type checkoutService struct {
	db        *sql.DB
	orderRepo repo.OrderRepo
	signer    *jazzcash.Signer
	gw        config.Gateway
	log       *zap.Logger
}

func NewCheckoutService(
	db *sql.DB,
	orderRepo repo.OrderRepo,
	signer *jazzcash.Signer,
	gw config.Gateway,
	log *zap.Logger,
) CheckoutService {
	return &checkoutService{
		db:        db,
		orderRepo: orderRepo,
		signer:    signer,
		gw:        gw,
		log:       log,
	}
}

func (s *checkoutService) InitiatePayment(ctx context.Context, in CheckoutInput) (*domain.PaymentRequest, error) {
	if !s.gw.Enabled {
		return nil, domain.ErrGatewayDisabled
	}

	order, err := s.orderRepo.FindById(ctx, in.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", in.OrderID, err)
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if order.PaymentMethod != domain.PaymentMethodJazzCash {
		return nil, domain.ErrWrongPaymentMethod
	}
	if order.PaymentStatus != domain.PaymentPending {
		return nil, domain.ErrOrderNotPayable
	}

	req, err := s.signer.BuildPaymentRequest(jazzcash.Checkout{
		OrderID:      order.ID,
		Total:        order.Total,
		MobileNumber: in.MobileNumber,
		CNIC:         in.CNIC,
	})
	if err != nil {
		return nil, err
	}

	mobile := jazzcash.Sanitize(req.MobileNumber)
	var cnic *string
	if v := jazzcash.Sanitize(req.CNIC); v != "" {
		cnic = &v
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.orderRepo.SaveTransactionFields(ctx, tx, order.ID, req.TransactionRef, mobile, cnic); err != nil {
		return nil, fmt.Errorf("save transaction fields: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.log.Info("jazzcash payment initiated",
		zap.Int64("order_id", order.ID),
		zap.String("transaction_ref", req.TransactionRef),
		zap.Int64("amount_minor_units", req.AmountMinorUnits),
		zap.Bool("test_mode", s.gw.TestMode),
	)
	return req, nil
}

func (s *checkoutService) CreateOrder(ctx context.Context, total decimal.Decimal) (*domain.Order, error) {
	now := time.Now()
	order := &domain.Order{
		Total:         total,
		PaymentMethod: domain.PaymentMethodJazzCash,
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}
