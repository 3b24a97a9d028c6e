package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Processa/internal/domain"
)

// ExternalStatusRepo — статусы асинхронных обращений во внешние сервисы.
type ExternalStatusRepo struct {
	pool *pgxpool.Pool
}

// NewExternalStatusRepo создаёт новый ExternalStatusRepo.
func NewExternalStatusRepo(pool *pgxpool.Pool) *ExternalStatusRepo {
	return &ExternalStatusRepo{pool: pool}
}

const externalColumns = `id, workflow_id, node_id, service, external_id, state, details, created_at, updated_at`

// Create сохраняет новый статус.
func (r *ExternalStatusRepo) Create(ctx context.Context, s *domain.ExternalServiceStatus) error {
	details, err := marshalDetails(s.Details)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO external_service_statuses (` + externalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.WorkflowID,
		s.NodeID,
		s.Service,
		nullString(s.ExternalID),
		s.State,
		details,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert external status: %w", err)
	}
	return nil
}

// ListOpen возвращает статусы в Pending и Received, старые первыми.
func (r *ExternalStatusRepo) ListOpen(ctx context.Context, limit int) ([]domain.ExternalServiceStatus, error) {
	query := `
		SELECT ` + externalColumns + `
		FROM external_service_statuses
		WHERE state IN ('Pending', 'Received')
		ORDER BY updated_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list open external statuses: %w", err)
	}
	defer rows.Close()

	var out []domain.ExternalServiceStatus
	for rows.Next() {
		s, err := scanExternal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// UpdateState сохраняет переход статуса.
//
// Запись меняется, только если в БД всё ещё состояние from:
// конкурирующий переход не перезаписывается (ErrInvalidState).
func (r *ExternalStatusRepo) UpdateState(ctx context.Context, s *domain.ExternalServiceStatus, from domain.ExternalState) error {
	details, err := marshalDetails(s.Details)
	if err != nil {
		return err
	}

	query := `
		UPDATE external_service_statuses
		SET state = $2, details = $3, updated_at = $4
		WHERE id = $1 AND state = $5
	`
	result, err := r.pool.Exec(ctx, query, s.ID, s.State, details, s.UpdatedAt, from)
	if err != nil {
		return fmt.Errorf("update external status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: external status %s is no longer %s", ErrInvalidState, s.ID, from)
	}
	return nil
}

func marshalDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal details: %w", err)
	}
	return b, nil
}

func scanExternal(row scanner) (*domain.ExternalServiceStatus, error) {
	var s domain.ExternalServiceStatus
	var externalID *string
	var details []byte

	err := row.Scan(
		&s.ID,
		&s.WorkflowID,
		&s.NodeID,
		&s.Service,
		&externalID,
		&s.State,
		&details,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan external status: %w", err)
	}

	s.ExternalID = deref(externalID)
	if details != nil {
		if err := json.Unmarshal(details, &s.Details); err != nil {
			return nil, fmt.Errorf("unmarshal details: %w", err)
		}
	}
	return &s, nil
}
