// Package mq publishes hook events to RabbitMQ. Events land on a topic
// exchange with the event type as routing key, so consumers bind to
// "booking.*", "presence.timeout", or "#" as they need.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/booking-engine/internal/application"
	"github.com/example/booking-engine/internal/persistence"
)

const publishTimeout = 5 * time.Second

// eventMessage is the wire shape of a published hook event.
type eventMessage struct {
	Type           string               `json:"type"`
	OrganizationID string               `json:"organizationId,omitempty"`
	OccurredAt     time.Time            `json:"occurredAt"`
	BookingUID     string               `json:"bookingId,omitempty"`
	Booking        *persistence.Booking `json:"booking,omitempty"`
	PreviousStatus string               `json:"previousStatus,omitempty"`
	Reason         *string              `json:"reason,omitempty"`
	ResourceID     string               `json:"resourceId,omitempty"`
	UserID         string               `json:"userId,omitempty"`
	Slot           *time.Time           `json:"slot,omitempty"`
}

// Publisher is the "amqp" hook handler: it publishes each event as a JSON
// message on a topic exchange. Safe for concurrent use; hook dispatch runs
// one goroutine per delivery.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewPublisher dials the broker and declares the durable topic exchange.
func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("mq: failed to connect to broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mq: failed to open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("mq: failed to declare exchange %q: %w", exchange, err)
	}
	return &Publisher{conn: conn, channel: channel, exchange: exchange}, nil
}

// Name implements application.HookHandler.
func (p *Publisher) Name() string { return "amqp" }

// Handle implements application.HookHandler. The routing key is the event
// type.
func (p *Publisher) Handle(ctx context.Context, event application.HookEvent) error {
	message := eventMessage{
		Type:           event.Type,
		OrganizationID: event.OrganizationID,
		OccurredAt:     event.OccurredAt,
		BookingUID:     event.BookingUID,
		Booking:        event.Booking,
		PreviousStatus: event.PreviousStatus,
		Reason:         event.Reason,
		ResourceID:     event.ResourceID,
		UserID:         event.UserID,
	}
	if !event.Slot.IsZero() {
		slot := event.Slot
		message.Slot = &slot
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("mq: failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	// amqp channels are not safe for concurrent publishes.
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		event.Type,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   event.OccurredAt,
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("mq: failed to publish %s: %w", event.Type, err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}
