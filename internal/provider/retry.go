package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shaiso/Processa/internal/domain"
)

// withRetry выполняет fn один раз и затем по разу после каждой
// задержки из delays. Бизнес-ошибки (ProviderFault) и ошибки
// конфигурации не повторяются.
func withRetry(ctx context.Context, delays []time.Duration, logger *slog.Logger, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !shouldRetry(err) || attempt >= len(delays) {
			return err
		}

		logger.Warn("provider call failed, retrying",
			"attempt", attempt+1,
			"delay", delays[attempt],
			"error", err,
		)

		timer := time.NewTimer(delays[attempt])
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

func shouldRetry(err error) bool {
	switch {
	case errors.Is(err, domain.ErrProviderFault),
		errors.Is(err, ErrMisconfigured),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}
