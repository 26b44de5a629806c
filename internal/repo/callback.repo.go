package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"jazzcash-gateway/internal/domain"
)

// CallbackRepo keeps every JazzCash callback delivery for manual reconciliation.
type CallbackRepo interface {
	Record(ctx context.Context, entry *domain.CallbackLog) error
	FindByOutcomeSince(ctx context.Context, outcome domain.CallbackOutcome, since time.Time, limit int) ([]domain.CallbackLog, error)
}

type callbackRepo struct {
	db *sql.DB
}

func NewCallbackRepo(db *sql.DB) CallbackRepo {
	return &callbackRepo{db: db}
}

func (r *callbackRepo) Record(ctx context.Context, entry *domain.CallbackLog) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO jazzcash_callbacks (id, transaction_ref, response_code, order_id, outcome, payload, received_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.TransactionRef, entry.ResponseCode, entry.OrderID, entry.Outcome, string(payload), entry.ReceivedAt,
	)
	return err
}

func (r *callbackRepo) FindByOutcomeSince(ctx context.Context, outcome domain.CallbackOutcome, since time.Time, limit int) ([]domain.CallbackLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, transaction_ref, response_code, order_id, outcome, payload, received_at
		FROM jazzcash_callbacks
		WHERE outcome = $1
		AND received_at >= $2
		ORDER BY received_at
		LIMIT $3
	`, outcome, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.CallbackLog
	for rows.Next() {
		var (
			e       domain.CallbackLog
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.TransactionRef, &e.ResponseCode, &e.OrderID, &e.Outcome, &payload, &e.ReceivedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
