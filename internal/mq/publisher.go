package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/engagement-workflow/internal/domain"
)

// MessageType — тип сообщения.
type MessageType string

// MessageTypeRunFinished — run завершился.
const MessageTypeRunFinished MessageType = "run.finished"

// Message — конверт события.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// RunFinishedPayload — итог run.
type RunFinishedPayload struct {
	RunID             uuid.UUID        `json:"run_id"`
	Status            domain.RunStatus `json:"status"`
	Timestamp         string           `json:"timestamp"`
	DurationSec       float64          `json:"duration_sec"`
	OutputPath        string           `json:"output_path,omitempty"`
	ShareLink         string           `json:"share_link,omitempty"`
	ArtifactDelivered bool             `json:"artifact_delivered"`
	NotificationSent  bool             `json:"notification_sent"`
	Error             string           `json:"error,omitempty"`
}

// Publisher публикует события в RabbitMQ.
type Publisher struct {
	conn           *Connection
	logger         *slog.Logger
	confirmTimeout time.Duration
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:           conn,
		logger:         logger,
		confirmTimeout: 5 * time.Second,
	}
}

// Publish публикует сообщение и ждёт подтверждения брокера.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		confirm, err := ch.PublishWithDeferredConfirmWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		waitCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
		defer cancel()
		acked, err := confirm.WaitContext(waitCtx)
		if err != nil {
			return fmt.Errorf("wait confirm: %w", err)
		}
		if !acked {
			return fmt.Errorf("publish to %s/%s: nacked by broker", exchange, routingKey)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishRunFinished публикует событие о завершении run.
func (p *Publisher) PublishRunFinished(ctx context.Context, run *domain.Run) error {
	return p.Publish(ctx, ExchangeEvents, RoutingKeyRunFinished, NewRunFinishedMessage(run, time.Now()))
}

// NewRunFinishedMessage строит событие run.finished.
func NewRunFinishedMessage(run *domain.Run, now time.Time) *Message {
	return &Message{
		ID:   uuid.New().String(),
		Type: MessageTypeRunFinished,
		Payload: RunFinishedPayload{
			RunID:             run.ID,
			Status:            run.Status,
			Timestamp:         run.Timestamp,
			DurationSec:       run.Duration().Seconds(),
			OutputPath:        run.Outcome.OutputPath,
			ShareLink:         run.Outcome.ShareLink,
			ArtifactDelivered: run.Outcome.ArtifactDelivered,
			NotificationSent:  run.Outcome.NotificationSent,
			Error:             run.Error,
		},
		Timestamp: now,
	}
}
