package domain

import (
	"time"

	"github.com/google/uuid"
)

// Document — файл, связанный с процессом (ответ внешнего сервиса,
// загруженный пользователем документ).
type Document struct {
	ID          uuid.UUID `json:"id"`
	WorkflowID  uuid.UUID `json:"workflowId"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType,omitempty"`
	Content     []byte    `json:"-"`

	// Signature — подпись (p7s), проставляется провайдером signer.
	Signature []byte `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// IsSigned сообщает, подписан ли документ.
func (d *Document) IsSigned() bool {
	return len(d.Signature) > 0
}

// Notification — уведомление подписчику шаблона процесса.
type Notification struct {
	ID         uuid.UUID `json:"id"`
	UserID     string    `json:"userId"`
	WorkflowID uuid.UUID `json:"workflowId"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}
