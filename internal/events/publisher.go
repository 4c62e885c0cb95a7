// Package events publishes security-relevant OAuth lifecycle events to a
// RabbitMQ queue so the audit pipeline can consume them out of band.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Event types emitted by the authorization server.
const (
	TypeTokenIssued    = "oauth.token.issued"
	TypeTokenRevoked   = "oauth.token.revoked"
	TypeTokenRotated   = "oauth.token.rotated"
	TypeCodeReplayed   = "oauth.code.replayed"
	TypeDeviceApproved = "oauth.device.approved"
	TypeDeviceDenied   = "oauth.device.denied"
)

// Event is an audit record. It never carries token or code material, only
// identifiers.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ClientID  string    `json:"client_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	GrantType string    `json:"grant_type,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers audit events. Implementations must not block request
// handling on broker trouble; dropping an event is preferable.
type Publisher interface {
	Publish(ctx context.Context, event Event)
	Close() error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
func (NopPublisher) Close() error                   { return nil }

// AMQPPublisher writes events to a durable queue.
type AMQPPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewPublisherFromEnv connects to AMQP_URL if set, otherwise returns a
// NopPublisher.
func NewPublisherFromEnv() (Publisher, error) {
	amqpURL := os.Getenv("AMQP_URL")
	if amqpURL == "" {
		return NopPublisher{}, nil
	}

	queue := os.Getenv("TASKHIVE_AUDIT_QUEUE")
	if queue == "" {
		queue = "taskhive.oauth.events"
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return &AMQPPublisher{conn: conn, ch: ch, queue: queue}, nil
}

// Publish sends one event. Failures are logged and swallowed; audit
// delivery is best effort and must never fail a token request.
func (p *AMQPPublisher) Publish(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("events: marshal %s: %v", event.Type, err)
		return
	}

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.ID,
		Timestamp:   event.At,
		Body:        body,
	})
	if err != nil {
		log.Printf("events: publish %s: %v", event.Type, err)
	}
}

// Close shuts down the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
