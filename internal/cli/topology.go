package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"

	"github.com/shaiso/Processa/internal/config"
	"github.com/shaiso/Processa/internal/mq"
)

// NewTopologyCmd создаёт группу команд для очередей RabbitMQ.
//
// Имена очередей берутся из той же конфигурации (env / .env),
// что и у сервисов.
func NewTopologyCmd(configFn func() (*config.Config, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Show or declare RabbitMQ queues",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print queues and retry ladder for the current configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := configFn()
				if err != nil {
					return err
				}
				out := outputFn()

				t := mq.TopologyFor(cfg)
				if out.asJSON {
					out.JSON(t.Declarations())
					return nil
				}
				out.Text(t.Describe())
				return nil
			},
		},
		newTopologyDeclareCmd(configFn, outputFn),
	)

	return cmd
}

func newTopologyDeclareCmd(configFn func() (*config.Config, error), outputFn func() *Output) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "declare",
		Short: "Declare all queues on the broker (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFn()
			if err != nil {
				return err
			}
			out := outputFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			conn, err := mq.NewConnection(mq.ConnectionConfig{
				URL:            cfg.RabbitMQURL,
				ReconnectDelay: cfg.ReconnectDelay,
				Logger:         slog.New(slog.DiscardHandler),
			})
			if err != nil {
				return fmt.Errorf("connect to rabbitmq: %w", err)
			}
			defer conn.Close()

			t := mq.TopologyFor(cfg)
			err = conn.WithChannel(ctx, "topology", func(ch *amqp.Channel) error {
				return t.Declare(ch)
			})
			if err != nil {
				return err
			}

			out.Notice("Declared %d queues", len(t.Declarations()))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Declare timeout")

	return cmd
}
