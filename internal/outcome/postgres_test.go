package outcome

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	store := NewPostgresStore(mock)
	store.now = func() time.Time { return now }
	return store, mock, now
}

func TestUpdateStatusWritesDeliveryAndReply(t *testing.T) {
	store, mock, now := newMockStore(t)
	note := "Cliente informou que não estará em casa"

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE deliveries").
		WithArgs("manual_reschedule", &note, now, "evt-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO delivery_replies").
		WithArgs(pgxmock.AnyArg(), "evt-1", "manual_reschedule", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), (*string)(nil), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.UpdateStatus(context.Background(), "evt-1", Update{
		Status:      StatusManualReschedule,
		Note:        note,
		Category:    "Problem",
		Summary:     "ausente",
		InboundText: "não vou estar em casa",
		MessageID:   "wamid-1",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusRecordNotFound(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE deliveries").
		WithArgs("confirmed", (*string)(nil), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := store.UpdateStatus(context.Background(), "missing", Update{Status: StatusConfirmed})
	assert.ErrorIs(t, err, ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())

	err = store.UpdateStatus(context.Background(), "  ", Update{Status: StatusConfirmed})
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestUpdateStatusStoreUnavailable(t *testing.T) {
	store, mock, _ := newMockStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))
	err := store.UpdateStatus(context.Background(), "evt-1", Update{Status: StatusNeedsAttention})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE deliveries").WillReturnError(errors.New("timeout"))
	mock.ExpectRollback()
	err = store.UpdateStatus(context.Background(), "evt-1", Update{Status: StatusNeedsAttention})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}
