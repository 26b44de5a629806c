package repo

import (
	"context"
	"database/sql"

	"jazzcash-gateway/internal/domain"
)

// NoteRepo stores the audit trail attached to an order.
type NoteRepo interface {
	AddNote(ctx context.Context, tx *sql.Tx, orderId int64, note string) error
	ListNotes(ctx context.Context, orderId int64) ([]domain.OrderNote, error)
}

type noteRepo struct {
	db *sql.DB
}

func NewNoteRepo(db *sql.DB) NoteRepo {
	return &noteRepo{db: db}
}

func (r *noteRepo) AddNote(ctx context.Context, tx *sql.Tx, orderId int64, note string) error {
	_, err := tx.ExecContext(ctx, "INSERT INTO order_notes (order_id, note) VALUES ($1, $2)", orderId, note)
	return err
}

func (r *noteRepo) ListNotes(ctx context.Context, orderId int64) ([]domain.OrderNote, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, order_id, note, created_at FROM order_notes WHERE order_id = $1 ORDER BY id", orderId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []domain.OrderNote
	for rows.Next() {
		var n domain.OrderNote
		if err := rows.Scan(&n.ID, &n.OrderID, &n.Note, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
