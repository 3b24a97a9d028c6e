package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel переводит LOG_LEVEL в slog.Level.
// Неизвестное или пустое значение даёт INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger настраивает логгер сервиса и делает его глобальным.
//
// LOG_LEVEL: DEBUG | INFO | WARN | ERROR.
// LOG_FORMAT: json (по умолчанию) | text.
func SetupLogger(service string) *slog.Logger {
	logger := NewLogger(os.Stdout, ParseLevel(os.Getenv("LOG_LEVEL")), os.Getenv("LOG_FORMAT")).
		With("service", service)
	slog.SetDefault(logger)
	return logger
}

// NewLogger создаёт логгер. На уровне DEBUG в записи попадает source.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

type ctxKey string

// CtxLogger — ключ логгера запроса в context.Context.
const CtxLogger ctxKey = "logger"

// WithLogger кладёт логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext достаёт логгер из контекста, иначе slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// Атрибуты, по которым ищут записи одного процесса или сообщения.

func WithWorkflowID(l *slog.Logger, id string) *slog.Logger { return l.With("workflow_id", id) }

func WithTemplateID(l *slog.Logger, id string) *slog.Logger { return l.With("template_id", id) }

func WithNodeID(l *slog.Logger, id string) *slog.Logger { return l.With("node_id", id) }

// WithMessageID добавляет amqp message id.
func WithMessageID(l *slog.Logger, id string) *slog.Logger { return l.With("message_id", id) }
