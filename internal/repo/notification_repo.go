package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Processa/internal/domain"
)

// NotificationRepo — подписчики шаблонов и их уведомления.
type NotificationRepo struct {
	pool *pgxpool.Pool
}

// NewNotificationRepo создаёт новый NotificationRepo.
func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

// Subscribers возвращает пользователей, подписанных на шаблон.
func (r *NotificationRepo) Subscribers(ctx context.Context, templateID uuid.UUID) ([]string, error) {
	query := `
		SELECT user_id
		FROM workflow_template_subscribers
		WHERE template_id = $1
		ORDER BY user_id
	`
	rows, err := r.pool.Query(ctx, query, templateID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Create сохраняет уведомление.
func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, workflow_id, title, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, n.ID, n.UserID, n.WorkflowID, n.Title, n.Message, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
