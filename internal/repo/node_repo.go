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

// NodeRepo — репозиторий записей узлов (task / gateway / event).
type NodeRepo struct {
	pool *pgxpool.Pool
}

// NewNodeRepo создаёт новый NodeRepo.
func NewNodeRepo(pool *pgxpool.Pool) *NodeRepo {
	return &NodeRepo{pool: pool}
}

const nodeColumns = `id, workflow_id, kind, template_node_id, result_sequences, status, outputs, error, created_at`

// Create создаёт запись узла.
func (r *NodeRepo) Create(ctx context.Context, n *domain.NodeRecord) error {
	seqJSON, outputsJSON, err := marshalNode(n)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_nodes (` + nodeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		n.ID,
		n.WorkflowID,
		n.Kind,
		n.TemplateNodeID,
		seqJSON,
		n.Status,
		outputsJSON,
		nullString(n.Error),
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert node: %w", err)
	}
	return nil
}

// GetByID возвращает запись узла.
func (r *NodeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.NodeRecord, error) {
	query := `SELECT ` + nodeColumns + ` FROM workflow_nodes WHERE id = $1`
	return scanNode(r.pool.QueryRow(ctx, query, id))
}

// ListByWorkflow возвращает узлы процесса в порядке создания.
func (r *NodeRepo) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]domain.NodeRecord, error) {
	query := `SELECT ` + nodeColumns + ` FROM workflow_nodes WHERE workflow_id = $1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.NodeRecord
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}

// Update сохраняет статус, результат и выбранные рёбра.
func (r *NodeRepo) Update(ctx context.Context, n *domain.NodeRecord) error {
	seqJSON, outputsJSON, err := marshalNode(n)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_nodes
		SET result_sequences = $2, status = $3, outputs = $4, error = $5
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, n.ID, seqJSON, n.Status, outputsJSON, nullString(n.Error))
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalNode(n *domain.NodeRecord) ([]byte, []byte, error) {
	seq := n.ResultSequences
	if seq == nil {
		seq = []string{}
	}
	seqJSON, err := json.Marshal(seq)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result sequences: %w", err)
	}

	var outputsJSON []byte
	if n.Outputs != nil {
		if outputsJSON, err = json.Marshal(n.Outputs); err != nil {
			return nil, nil, fmt.Errorf("marshal outputs: %w", err)
		}
	}
	return seqJSON, outputsJSON, nil
}

func scanNode(row scanner) (*domain.NodeRecord, error) {
	var n domain.NodeRecord
	var seqJSON, outputsJSON []byte
	var nodeErr *string

	err := row.Scan(
		&n.ID,
		&n.WorkflowID,
		&n.Kind,
		&n.TemplateNodeID,
		&seqJSON,
		&n.Status,
		&outputsJSON,
		&nodeErr,
		&n.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan node: %w", err)
	}

	if seqJSON != nil {
		if err := json.Unmarshal(seqJSON, &n.ResultSequences); err != nil {
			return nil, fmt.Errorf("unmarshal result sequences: %w", err)
		}
	}
	if outputsJSON != nil {
		if err := json.Unmarshal(outputsJSON, &n.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}
	}
	n.Error = deref(nodeErr)
	return &n, nil
}
