package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Processa/internal/domain"
)

// ErrorLogRepo — журнал ошибок обхода, по workflow id.
type ErrorLogRepo struct {
	pool *pgxpool.Pool
}

// NewErrorLogRepo создаёт новый ErrorLogRepo.
func NewErrorLogRepo(pool *pgxpool.Pool) *ErrorLogRepo {
	return &ErrorLogRepo{pool: pool}
}

// Create пишет ошибку вместе с вызвавшим её сообщением.
func (r *ErrorLogRepo) Create(ctx context.Context, e *domain.ErrorLogEntry) error {
	// Сообщение пишется как jsonb, если это JSON, иначе как строка
	var message []byte
	if len(e.Message) > 0 {
		if json.Valid(e.Message) {
			message = e.Message
		} else {
			quoted, err := json.Marshal(string(e.Message))
			if err != nil {
				return fmt.Errorf("marshal message: %w", err)
			}
			message = quoted
		}
	}

	query := `
		INSERT INTO workflow_errors (id, workflow_id, error, message, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
	`
	_, err := r.pool.Exec(ctx, query, e.ID, e.WorkflowID, e.Error, message, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert workflow error: %w", err)
	}
	return nil
}

// ListByWorkflow возвращает ошибки процесса, новые первыми.
func (r *ErrorLogRepo) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]domain.ErrorLogEntry, error) {
	query := `
		SELECT id, workflow_id, error, message, created_at
		FROM workflow_errors
		WHERE workflow_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list workflow errors: %w", err)
	}
	defer rows.Close()

	var entries []domain.ErrorLogEntry
	for rows.Next() {
		var e domain.ErrorLogEntry
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.Error, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow error: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
