package repo_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"jazzcash-gateway/internal/repo"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddNote(t *testing.T) {
	db, mock := setupMockDB(t)
	r := repo.NewNoteRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO order_notes (order_id, note) VALUES ($1, $2)`)).
		WithArgs(int64(42), "JazzCash payment failed. Response Code: 124").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, r.AddNote(context.Background(), tx, 42, "JazzCash payment failed. Response Code: 124"))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNotes(t *testing.T) {
	db, mock := setupMockDB(t)
	r := repo.NewNoteRepo(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM order_notes WHERE order_id = $1 ORDER BY id`)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "note", "created_at"}).
			AddRow(1, 42, "JazzCash payment successful. Transaction Reference: TXN_42_1700000000", now))

	notes, err := r.ListNotes(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, int64(42), notes[0].OrderID)
	assert.Equal(t, "JazzCash payment successful. Transaction Reference: TXN_42_1700000000", notes[0].Note)
}
