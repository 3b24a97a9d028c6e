package mq

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Processa/internal/config"
)

// RoleQueues — очереди одной роли.
type RoleQueues struct {
	Role    string
	Reading string
	Writing []string
}

// Topology — полный набор очередей развёртывания.
type Topology struct {
	Roles []RoleQueues

	// ReplyPrefix — префикс очередей ответов standard-rmq сервисов.
	// Каждый task worker объявляет свою очередь (DeclareReplyQueue),
	// поэтому в общий список они не входят.
	ReplyPrefix string

	Ladder *RetryLadder
}

// QueueDeclaration — одна объявляемая очередь.
type QueueDeclaration struct {
	Name string
	Args amqp.Table
}

// QueueDeclarer — то, что умеет объявлять очереди (*amqp.Channel).
type QueueDeclarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

// TopologyFor строит топологию из конфигурации.
//
// Manager читает свою очередь и пишет в очереди task/gateway/event;
// воркеры читают свою очередь и пишут в очередь manager.
func TopologyFor(cfg *config.Config) Topology {
	q := cfg.Queues
	return Topology{
		Roles: []RoleQueues{
			{Role: config.RoleManager, Reading: q.Manager, Writing: []string{q.Task, q.Gateway, q.Event}},
			{Role: config.RoleTask, Reading: q.Task, Writing: []string{q.Manager, q.Requests}},
			{Role: config.RoleGateway, Reading: q.Gateway, Writing: []string{q.Manager}},
			{Role: config.RoleEvent, Reading: q.Event, Writing: []string{q.Manager}},
		},
		ReplyPrefix: q.Replies,
		Ladder:      NewRetryLadder(),
	}
}

// Declarations возвращает очереди в порядке объявления без повторов:
// очереди чтения и записи, затем для каждой очереди чтения ступени
// лестницы с x-message-ttl и dead-letter обратно в очередь чтения.
func (t Topology) Declarations() []QueueDeclaration {
	seen := make(map[string]bool)
	var out []QueueDeclaration

	add := func(name string, args amqp.Table) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, QueueDeclaration{Name: name, Args: args})
	}

	// 1. Основные очереди
	for _, r := range t.Roles {
		add(r.Reading, nil)
		for _, w := range r.Writing {
			add(w, nil)
		}
	}

	// 2. Лестница ретраев для каждой очереди чтения
	ladder := t.Ladder
	if ladder == nil {
		ladder = NewRetryLadder()
	}
	for _, r := range t.Roles {
		if r.Reading == "" {
			continue
		}
		for _, tier := range ladder.Tiers() {
			add(ErrorQueueName(r.Reading, tier), amqp.Table{
				"x-message-ttl":             tier.TTL.Milliseconds(),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": r.Reading,
			})
		}
	}

	return out
}

// Declare объявляет все очереди. Повторный вызов с теми же аргументами
// безопасен, поэтому функция используется и как SetupFunc при reconnect.
func (t Topology) Declare(ch QueueDeclarer) error {
	for _, d := range t.Declarations() {
		_, err := ch.QueueDeclare(
			d.Name, // name
			true,   // durable
			false,  // delete when unused
			false,  // exclusive
			false,  // no-wait
			d.Args, // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", d.Name, err)
		}
	}
	return nil
}

// SetupTopology объявляет топологию и регистрирует её повторное
// объявление после каждого переподключения.
func SetupTopology(ctx context.Context, conn *Connection, t Topology) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return conn.OnConnect(func(ch *amqp.Channel) error {
		return t.Declare(ch)
	})
}

// Describe возвращает описание топологии для CLI и логов.
func (t Topology) Describe() string {
	var b strings.Builder
	b.WriteString("Processa RabbitMQ topology (default exchange):\n")
	for _, r := range t.Roles {
		fmt.Fprintf(&b, "\n  %s\n    reads:  %s\n    writes: %s\n", r.Role, r.Reading, strings.Join(r.Writing, ", "))
	}
	if t.ReplyPrefix != "" {
		fmt.Fprintf(&b, "\n  replies: %s.<worker id> (exclusive, one per task worker)\n", t.ReplyPrefix)
	}
	b.WriteString("\n  retry queues:\n")
	for _, d := range t.Declarations() {
		if d.Args == nil {
			continue
		}
		fmt.Fprintf(&b, "    %s  ttl=%vms  -> %s\n", d.Name, d.Args["x-message-ttl"], d.Args["x-dead-letter-routing-key"])
	}
	return b.String()
}

// ReplyQueueName возвращает имя очереди ответов одного процесса.
func ReplyQueueName(prefix string) string {
	return prefix + "." + uuid.NewString()
}

// DeclareReplyQueue объявляет очередь ответов процесса и повторяет
// объявление после каждого переподключения.
//
// Очередь exclusive и auto-delete: она принадлежит соединению и
// удаляется брокером вместе с ним, так что ответ на запрос приходит
// только в тот процесс, который этот запрос отправил.
func DeclareReplyQueue(conn *Connection, name string) error {
	return conn.OnConnect(func(ch *amqp.Channel) error {
		return declareReplyQueue(ch, name)
	})
}

func declareReplyQueue(ch QueueDeclarer, name string) error {
	_, err := ch.QueueDeclare(
		name,  // name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare reply queue %s: %w", name, err)
	}
	return nil
}
