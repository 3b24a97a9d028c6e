package worker

import (
	"context"
	"fmt"
	"time"
)

// AttrDelay — задержка промежуточного события-таймера ("30s", "5m").
const AttrDelay = "delay"

// maxEventDelay — дольше сообщение держать в обработке нельзя:
// длинные ожидания делаются через внешние сервисы и poller.
const maxEventDelay = 10 * time.Minute

// EventExecutor отмечает событие выполненным.
//
// Событие с атрибутом delay ждёт указанное время. Ожидание
// прерывается отменой ctx.
type EventExecutor struct{}

// Execute выполняет событие.
func (e *EventExecutor) Execute(ctx context.Context, job *Job) (*Outcome, error) {
	outputs := map[string]any{"eventType": job.Node.Type}

	raw := job.Node.Attr(AttrDelay, "")
	if raw == "" {
		return &Outcome{Outputs: outputs}, nil
	}

	delay, err := time.ParseDuration(raw)
	if err != nil || delay < 0 || delay > maxEventDelay {
		return nil, fmt.Errorf("%w: event %s delay %q", ErrBadAttribute, job.Node.ID, raw)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		outputs["delayed"] = delay.String()
		return &Outcome{Outputs: outputs}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
