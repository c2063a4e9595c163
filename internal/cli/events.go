package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/streadway/amqp"

	"products/internal/events"
	"products/pkg/rabbitmq"
)

func newEventsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect and emit broker events",
	}
	cmd.AddCommand(
		newEventsTailCommand(e),
		newEventsQueueInfoCommand(e),
		newEventsEmitCommand(e),
	)
	return cmd
}

// broker connects to RabbitMQ with the product and marketplace exchanges
// declared.
func (e *env) broker() (*rabbitmq.Client, error) {
	if !e.cfg.BrokerEnabled() {
		return nil, errors.New("RABBITMQ_URL is not set")
	}
	return rabbitmq.NewClient(rabbitmq.Config{
		URL:       e.cfg.RabbitMQURL,
		Exchanges: events.Exchanges(),
	}, e.log)
}

func newEventsTailCommand(e *env) *cobra.Command {
	var queue, exchange, binding string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print events routed to a queue until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := e.broker()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.BindQueue(queue, exchange, binding); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			return client.Consume(ctx, queue, func(msg amqp.Delivery) error {
				var envelope events.Envelope
				if err := json.Unmarshal(msg.Body, &envelope); err != nil {
					return errors.Wrap(err, "malformed event")
				}
				_, err := fmt.Fprintf(out, "%s %s %s\n", msg.RoutingKey, envelope.Timestamp.Format(time.RFC3339), msg.Body)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&queue, "queue", "products-cli.tail", "queue to declare and consume")
	cmd.Flags().StringVar(&exchange, "exchange", events.ProductExchange, "exchange to bind to")
	cmd.Flags().StringVar(&binding, "binding", "product.#", "binding key")
	return cmd
}

func newEventsQueueInfoCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "queue-info <queue>",
		Short: "Show message and consumer counts of a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := e.broker()
			if err != nil {
				return err
			}
			defer client.Close()

			info, err := client.QueueInfo(args[0])
			if err != nil {
				return err
			}
			b, _ := json.MarshalIndent(info, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
}

func newEventsEmitCommand(e *env) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "emit <eventType>",
		Short: "Publish a marketplace event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload interface{}
			if err := json.Unmarshal([]byte(data), &payload); err != nil {
				return errors.Wrap(err, "--data must be valid JSON")
			}

			client, err := e.broker()
			if err != nil {
				return err
			}
			defer client.Close()

			notifier := events.NewNotifier(client, e.log)
			if err := notifier.Emit(args[0], payload); err != nil {
				return err
			}
			_, routingKey := events.Route(events.TopicMarketplace, args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "published %s to %s\n", routingKey, events.MarketplaceExchange)
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "{}", "event payload as JSON")
	return cmd
}
