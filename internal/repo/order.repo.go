package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"jazzcash-gateway/internal/domain"
)

type OrderRepo interface {
	FindById(ctx context.Context, id int64) (*domain.Order, error)
	// FindByTransactionRef returns nil when no order carries ref.
	FindByTransactionRef(ctx context.Context, ref string) (*domain.Order, error)
	// LockByTransactionRef is FindByTransactionRef holding a row lock until tx ends.
	LockByTransactionRef(ctx context.Context, tx *sql.Tx, ref string) (*domain.Order, error)
	SaveTransactionFields(ctx context.Context, tx *sql.Tx, orderId int64, ref, mobile string, cnic *string) error
	// UpdatePaymentStatus moves order to order.PaymentStatus only if it is still in from.
	UpdatePaymentStatus(ctx context.Context, tx *sql.Tx, order *domain.Order, from domain.PaymentStatus) (bool, error)
	CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error
	FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error)
}

const orderColumns = `id, total, payment_method, transaction_ref, mobile_number, cnic, payment_status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	err := row.Scan(
		&order.ID,
		&order.Total,
		&order.PaymentMethod,
		&order.TransactionRef,
		&order.MobileNumber,
		&order.CNIC,
		&order.PaymentStatus,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err // system error
	}
	return &order, nil
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

func (r *orderRepo) FindById(ctx context.Context, id int64) (*domain.Order, error) {
	return scanOrder(r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
}

func (r *orderRepo) FindByTransactionRef(ctx context.Context, ref string) (*domain.Order, error) {
	return scanOrder(r.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE transaction_ref = $1 ORDER BY id LIMIT 1", ref))
}

func (r *orderRepo) LockByTransactionRef(ctx context.Context, tx *sql.Tx, ref string) (*domain.Order, error) {
	return scanOrder(tx.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE transaction_ref = $1 ORDER BY id LIMIT 1 FOR UPDATE", ref))
}

func (r *orderRepo) SaveTransactionFields(ctx context.Context, tx *sql.Tx, orderId int64, ref, mobile string, cnic *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET transaction_ref = $2,
		    mobile_number = $3,
		    cnic = COALESCE($4, cnic),
		    updated_at = now()
		WHERE id = $1
	`, orderId, ref, mobile, cnic)
	return err
}

func (r *orderRepo) UpdatePaymentStatus(ctx context.Context, tx *sql.Tx, order *domain.Order, from domain.PaymentStatus) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = $2 WHERE id = $3 AND payment_status = $4",
		order.PaymentStatus, order.UpdatedAt, order.ID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	return tx.QueryRowContext(ctx,
		"INSERT INTO orders (total, payment_method, payment_status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		order.Total, order.PaymentMethod, order.PaymentStatus, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
}

func (r *orderRepo) FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE payment_status = $1 AND transaction_ref IS NOT NULL AND updated_at < $2 ORDER BY id LIMIT $3",
		domain.PaymentPending, time.Now().Add(-olderThan), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}
