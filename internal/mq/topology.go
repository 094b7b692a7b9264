package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

const (
	// ExchangeEvents — обменник событий workflow.
	ExchangeEvents Exchange = "engagement.events"

	// QueueRunsFinished — очередь завершённых runs (для дашбордов и алертов).
	QueueRunsFinished Queue = "engagement.runs.finished"

	// RoutingKeyRunFinished — ключ события о завершении run.
	RoutingKeyRunFinished RoutingKey = "run.finished"
)

// SetupTopology объявляет exchange, очередь и привязку. Операция идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			string(ExchangeEvents), // name
			"topic",                // type
			true,                   // durable
			false,                  // auto-deleted
			false,                  // internal
			false,                  // no-wait
			nil,                    // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
		}

		_, err = ch.QueueDeclare(
			string(QueueRunsFinished), // name
			true,                      // durable
			false,                     // delete when unused
			false,                     // exclusive
			false,                     // no-wait
			nil,                       // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueRunsFinished, err)
		}

		err = ch.QueueBind(
			string(QueueRunsFinished),     // queue name
			string(RoutingKeyRunFinished), // routing key
			string(ExchangeEvents),        // exchange
			false,                         // no-wait
			nil,                           // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", QueueRunsFinished, ExchangeEvents, err)
		}
		return nil
	})
}
