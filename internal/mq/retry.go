package mq

import (
	"encoding/json"
	"fmt"
	"time"
)

// Tier — ступень лестницы ретраев.
type Tier struct {
	// Suffix — суффикс имени очереди: <reading>-errors-<Suffix>.
	Suffix string

	// TTL — сколько сообщение лежит в очереди ступени.
	TTL time.Duration
}

// DefaultTiers — 10 минут, 1 час, 2 часа, 8 часов, 1 сутки.
var DefaultTiers = []Tier{
	{Suffix: "10m", TTL: 10 * time.Minute},
	{Suffix: "1h", TTL: time.Hour},
	{Suffix: "2h", TTL: 2 * time.Hour},
	{Suffix: "8h", TTL: 8 * time.Hour},
	{Suffix: "1d", TTL: 24 * time.Hour},
}

// RetryLadder выбирает очередь задержки для упавшего сообщения.
//
// retryIterator в конверте — количество уже пройденных ступеней.
// Сообщение с retryIterator=k уходит на ступень k с retryIterator=k+1.
// Когда ступени кончились, сообщение уходит в постоянный журнал ошибок.
type RetryLadder struct {
	tiers []Tier
}

// NewRetryLadder создаёт лестницу. Без аргументов — DefaultTiers.
func NewRetryLadder(tiers ...Tier) *RetryLadder {
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	return &RetryLadder{tiers: tiers}
}

// Tiers возвращает ступени.
func (l *RetryLadder) Tiers() []Tier {
	return l.tiers
}

// TierFor возвращает ступень для сообщения с данным retryIterator.
func (l *RetryLadder) TierFor(retryIterator int) (Tier, bool) {
	if retryIterator < 0 {
		retryIterator = 0
	}
	if retryIterator >= len(l.tiers) {
		return Tier{}, false
	}
	return l.tiers[retryIterator], true
}

// QueueFor возвращает имя очереди задержки для очереди чтения.
func (l *RetryLadder) QueueFor(reading string, retryIterator int) (string, bool) {
	tier, ok := l.TierFor(retryIterator)
	if !ok {
		return "", false
	}
	return ErrorQueueName(reading, tier), true
}

// ErrorQueueName — <reading>-errors-<suffix>.
func ErrorQueueName(reading string, tier Tier) string {
	return reading + "-errors-" + tier.Suffix
}

// envelopeHeader — служебные поля конверта.
type envelopeHeader struct {
	AMQPMessageID string `json:"amqpMessageId"`
	RetryIterator int    `json:"retryIterator"`
}

// readHeader извлекает служебные поля конверта.
func readHeader(body []byte) (envelopeHeader, error) {
	var h envelopeHeader
	if err := json.Unmarshal(body, &h); err != nil {
		return h, fmt.Errorf("%w: %v", ErrNotJSONObject, err)
	}
	return h, nil
}

// SetRetryIterator переписывает поле retryIterator конверта.
func SetRetryIterator(body []byte, n int) ([]byte, error) {
	return setField(body, "retryIterator", n)
}

// setField переписывает одно поле верхнего уровня JSON объекта,
// остальные поля сохраняются байт в байт.
func setField(body []byte, key string, value any) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSONObject, err)
	}
	if fields == nil {
		return nil, ErrNotJSONObject
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", key, err)
	}
	fields[key] = raw

	return json.Marshal(fields)
}
