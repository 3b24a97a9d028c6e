package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Processa/internal/domain"
)

// DocumentRepo — файлы процессов.
type DocumentRepo struct {
	pool *pgxpool.Pool
}

// NewDocumentRepo создаёт новый DocumentRepo.
func NewDocumentRepo(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

// SaveDocument сохраняет документ.
func (r *DocumentRepo) SaveDocument(ctx context.Context, d *domain.Document) error {
	query := `
		INSERT INTO documents (id, workflow_id, name, content_type, content, signature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		d.ID,
		d.WorkflowID,
		d.Name,
		nullString(d.ContentType),
		d.Content,
		d.Signature,
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument возвращает документ с содержимым.
func (r *DocumentRepo) GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	query := `
		SELECT id, workflow_id, name, content_type, content, signature, created_at
		FROM documents
		WHERE id = $1
	`
	var d domain.Document
	var contentType *string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID,
		&d.WorkflowID,
		&d.Name,
		&contentType,
		&d.Content,
		&d.Signature,
		&d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	d.ContentType = deref(contentType)
	return &d, nil
}

// AttachSignature сохраняет подпись документа на месте.
func (r *DocumentRepo) AttachSignature(ctx context.Context, id uuid.UUID, signature []byte) error {
	query := `UPDATE documents SET signature = $2 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id, signature)
	if err != nil {
		return fmt.Errorf("attach signature: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
