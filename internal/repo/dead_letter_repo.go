package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Processa/internal/mq"
)

// DeadLetterRepo — постоянный журнал сообщений, для которых
// кончилась лестница ретраев. Реализует mq.DeadLetterSink.
type DeadLetterRepo struct {
	pool *pgxpool.Pool
}

// NewDeadLetterRepo создаёт новый DeadLetterRepo.
func NewDeadLetterRepo(pool *pgxpool.Pool) *DeadLetterRepo {
	return &DeadLetterRepo{pool: pool}
}

// RecordDeadLetter реализует mq.DeadLetterSink.
func (r *DeadLetterRepo) RecordDeadLetter(ctx context.Context, dl mq.DeadLetter) error {
	query := `
		INSERT INTO dead_letters (id, queue, message_id, body, retry_iterator, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		uuid.New(),
		dl.Queue,
		nullString(dl.MessageID),
		dl.Body,
		dl.RetryIterator,
		nullString(dl.Error),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}
