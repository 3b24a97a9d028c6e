package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Processa/internal/domain"
)

// TemplateRepo — репозиторий шаблонов процессов.
type TemplateRepo struct {
	pool *pgxpool.Pool
}

// NewTemplateRepo создаёт новый TemplateRepo.
func NewTemplateRepo(pool *pgxpool.Pool) *TemplateRepo {
	return &TemplateRepo{pool: pool}
}

// Create сохраняет шаблон.
func (r *TemplateRepo) Create(ctx context.Context, t *domain.WorkflowTemplate) error {
	query := `
		INSERT INTO workflow_templates (id, name, xml, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, t.ID, t.Name, t.XML, t.IsActive, t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// GetByID возвращает шаблон по ID.
func (r *TemplateRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowTemplate, error) {
	query := `
		SELECT id, name, xml, is_active, updated_at
		FROM workflow_templates
		WHERE id = $1
	`
	t, err := scanTemplate(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListActive возвращает все активные шаблоны (для Schema Cache).
func (r *TemplateRepo) ListActive(ctx context.Context) ([]domain.WorkflowTemplate, error) {
	return r.list(ctx, true)
}

// List возвращает все шаблоны.
func (r *TemplateRepo) List(ctx context.Context) ([]domain.WorkflowTemplate, error) {
	return r.list(ctx, false)
}

func (r *TemplateRepo) list(ctx context.Context, activeOnly bool) ([]domain.WorkflowTemplate, error) {
	query := `
		SELECT id, name, xml, is_active, updated_at
		FROM workflow_templates
		WHERE ($1 = false OR is_active = true)
		ORDER BY name ASC
	`
	rows, err := r.pool.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.WorkflowTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// SetActive включает или выключает шаблон.
func (r *TemplateRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `
		UPDATE workflow_templates
		SET is_active = $2, updated_at = now()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTemplate(row scanner) (*domain.WorkflowTemplate, error) {
	var t domain.WorkflowTemplate
	if err := row.Scan(&t.ID, &t.Name, &t.XML, &t.IsActive, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}
	return &t, nil
}
