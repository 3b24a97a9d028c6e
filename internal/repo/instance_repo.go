package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Processa/internal/domain"
)

// InstanceRepo — репозиторий экземпляров процессов.
//
// История меняется только через дополнение массива в одном UPDATE
// (history = history || ...), без чтения и перезаписи документа:
// параллельные ветки одного процесса не теряют записи друг друга.
type InstanceRepo struct {
	pool *pgxpool.Pool
}

// NewInstanceRepo создаёт новый InstanceRepo.
func NewInstanceRepo(pool *pgxpool.Pool) *InstanceRepo {
	return &InstanceRepo{pool: pool}
}

const instanceColumns = `id, template_id, user_id, is_final, has_unresolved_errors, payload, history, published_claims, created_at`

// Create создаёт экземпляр процесса.
func (r *InstanceRepo) Create(ctx context.Context, w *domain.WorkflowInstance) error {
	payloadJSON, err := json.Marshal(orEmptyMap(w.Payload))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	history := w.History
	if history == nil {
		history = []domain.HistoryMessage{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	query := `
		INSERT INTO workflow_instances (` + instanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		w.ID,
		w.TemplateID,
		nullString(w.UserID),
		w.IsFinal,
		w.HasUnresolvedErrors,
		payloadJSON,
		historyJSON,
		orEmptySlice(w.PublishedClaims),
		w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}
	return nil
}

// GetByID возвращает экземпляр процесса.
func (r *InstanceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = $1`
	return scanInstance(r.pool.QueryRow(ctx, query, id))
}

// AppendHistory атомарно дописывает сообщение в историю и возвращает
// экземпляр в состоянии сразу после записи.
func (r *InstanceRepo) AppendHistory(ctx context.Context, id uuid.UUID, msg domain.HistoryMessage) (*domain.WorkflowInstance, error) {
	entry, err := json.Marshal([]domain.HistoryMessage{msg})
	if err != nil {
		return nil, fmt.Errorf("marshal history message: %w", err)
	}

	query := `
		UPDATE workflow_instances
		SET history = history || $2::jsonb
		WHERE id = $1
		RETURNING ` + instanceColumns
	return scanInstance(r.pool.QueryRow(ctx, query, id, entry))
}

// AppendOutboundOnce дописывает исходящее сообщение, только если в истории
// ещё нет исходящего сообщения с ребром claimFlowID.
//
// Так переход за join параллельного шлюза выполняется один раз, даже
// если уведомление о последней ветке пришло повторно.
// Возвращает false, если переход уже был записан.
func (r *InstanceRepo) AppendOutboundOnce(ctx context.Context, id uuid.UUID, msg domain.HistoryMessage, claimFlowID string) (bool, error) {
	entry, err := json.Marshal([]domain.HistoryMessage{msg})
	if err != nil {
		return false, fmt.Errorf("marshal history message: %w", err)
	}
	claim, err := json.Marshal([]map[string]any{{
		"direction":    domain.DirectionOut,
		"matchedEdges": []map[string]string{{"id": claimFlowID}},
	}})
	if err != nil {
		return false, fmt.Errorf("marshal claim: %w", err)
	}

	query := `
		UPDATE workflow_instances
		SET history = history || $2::jsonb
		WHERE id = $1 AND NOT (history @> $3::jsonb)
	`
	result, err := r.pool.Exec(ctx, query, id, entry, claim)
	if err != nil {
		return false, fmt.Errorf("append outbound: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// MarkClaimPublished добавляет ребро выхода из join в published_claims.
// Повторная отметка ничего не меняет.
func (r *InstanceRepo) MarkClaimPublished(ctx context.Context, id uuid.UUID, claimFlowID string) error {
	query := `
		UPDATE workflow_instances
		SET published_claims = array_append(published_claims, $2)
		WHERE id = $1 AND NOT ($2 = ANY (published_claims))
	`
	if _, err := r.pool.Exec(ctx, query, id, claimFlowID); err != nil {
		return fmt.Errorf("mark claim published: %w", err)
	}
	return nil
}

// MarkFinal помечает процесс завершённым. Флаг не сбрасывается.
func (r *InstanceRepo) MarkFinal(ctx context.Context, id uuid.UUID) error {
	return r.setFlag(ctx, id, "is_final")
}

// FlagErrors помечает процесс как имеющий неразобранные ошибки.
func (r *InstanceRepo) FlagErrors(ctx context.Context, id uuid.UUID) error {
	return r.setFlag(ctx, id, "has_unresolved_errors")
}

func (r *InstanceRepo) setFlag(ctx context.Context, id uuid.UUID, column string) error {
	query := `UPDATE workflow_instances SET ` + column + ` = true WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MergePayload дописывает ключи в данные процесса (payload || patch).
func (r *InstanceRepo) MergePayload(ctx context.Context, id uuid.UUID, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal payload patch: %w", err)
	}

	query := `UPDATE workflow_instances SET payload = payload || $2::jsonb WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id, patchJSON)
	if err != nil {
		return fmt.Errorf("merge payload: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInstance(row scanner) (*domain.WorkflowInstance, error) {
	var w domain.WorkflowInstance
	var userID *string
	var payloadJSON, historyJSON []byte

	err := row.Scan(
		&w.ID,
		&w.TemplateID,
		&userID,
		&w.IsFinal,
		&w.HasUnresolvedErrors,
		&payloadJSON,
		&historyJSON,
		&w.PublishedClaims,
		&w.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan instance: %w", err)
	}

	w.UserID = deref(userID)
	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &w.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if historyJSON != nil {
		if err := json.Unmarshal(historyJSON, &w.History); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	return &w, nil
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
