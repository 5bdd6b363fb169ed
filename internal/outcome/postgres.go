package outcome

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore updates deliveries and appends to delivery_replies in one
// transaction.
type PostgresStore struct {
	db  db
	now func() time.Time
}

func NewPostgresStore(db db) *PostgresStore {
	if db == nil {
		panic("outcome: db cannot be nil")
	}
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, recordID string, u Update) error {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return fmt.Errorf("%w: empty record id", ErrRecordNotFound)
	}
	now := s.now().UTC()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE deliveries
		SET customer_status = $1, customer_note = $2, customer_replied_at = $3
		WHERE id = $4`,
		string(u.Status), nullIfEmpty(u.Note), now, recordID,
	)
	if err != nil {
		return fmt.Errorf("%w: update delivery: %w", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO delivery_replies (id, delivery_id, status, category, summary, inbound_text, message_id, audio_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New(), recordID, string(u.Status), nullIfEmpty(u.Category), nullIfEmpty(u.Summary),
		nullIfEmpty(u.InboundText), nullIfEmpty(u.MessageID), nullIfEmpty(u.AudioKey), now,
	)
	if err != nil {
		return fmt.Errorf("%w: insert reply: %w", ErrStoreUnavailable, classifyPgError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("foreign key %s: %w", pgErr.ConstraintName, err)
	}
	return err
}

func nullIfEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
