package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/booking-engine/internal/application"
	"github.com/example/booking-engine/internal/logging"
)

const commandTimeout = 5 * time.Second

// Worker consumes booking commands from a durable queue and replies on the
// delivery's reply-to queue, correlated by id. Replies are skipped for
// fire-and-forget deliveries without a reply-to.
type Worker struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	queue        string
	bookings     *application.BookingService
	presence     *application.PresenceService
	availability *application.AvailabilityService
	logger       *slog.Logger
	done         chan struct{}
}

// NewWorker dials the broker and declares the durable command queue.
func NewWorker(url, queue string, bookings *application.BookingService, presence *application.PresenceService, availability *application.AvailabilityService, logger *slog.Logger) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("mq: failed to connect to broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mq: failed to open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("mq: failed to declare queue %q: %w", queue, err)
	}
	return &Worker{
		conn:         conn,
		channel:      channel,
		queue:        queue,
		bookings:     bookings,
		presence:     presence,
		availability: availability,
		logger:       logger,
		done:         make(chan struct{}),
	}, nil
}

// Run consumes deliveries until the context is cancelled or the channel
// closes. Messages are acked after handling; a reply failure never blocks
// the ack.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.channel.Consume(
		w.queue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("mq: failed to register consumer: %w", err)
	}
	defer close(w.done)

	w.logger.Info("command worker listening", "queue", w.queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.handle(ctx, delivery)
		}
	}
}

// Close releases the channel and connection after Run has returned.
func (w *Worker) Close() error {
	<-w.done
	if err := w.channel.Close(); err != nil {
		_ = w.conn.Close()
		return err
	}
	return w.conn.Close()
}

func (w *Worker) handle(parent context.Context, delivery amqp.Delivery) {
	defer func() {
		if err := delivery.Ack(false); err != nil {
			w.logger.Error("failed to ack delivery", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()
	if delivery.CorrelationId != "" {
		ctx = logging.ContextWithLogger(ctx, w.logger.With("correlationId", delivery.CorrelationId))
	}

	var envelope CommandEnvelope
	if err := json.Unmarshal(delivery.Body, &envelope); err != nil {
		w.reply(ctx, delivery, errorResponse("Error", fmt.Errorf("invalid command envelope: %w", err)))
		return
	}

	response := w.dispatch(ctx, envelope)
	w.reply(ctx, delivery, response)
}

func (w *Worker) dispatch(ctx context.Context, envelope CommandEnvelope) Response {
	responseType := string(envelope.Type) + "Response"
	switch envelope.Type {
	case CommandDayView:
		var req DayViewPayload
		if err := json.Unmarshal(envelope.Payload, &req); err != nil {
			return errorResponse(responseType, fmt.Errorf("invalid payload: %w", err))
		}
		view, err := w.availability.DayView(ctx, req.ResourceID, req.Date)
		if err != nil {
			return errorResponse(responseType, err)
		}
		return okResponse(responseType, view)

	case CommandHeartbeat:
		var req HeartbeatPayload
		if err := json.Unmarshal(envelope.Payload, &req); err != nil {
			return errorResponse(responseType, fmt.Errorf("invalid payload: %w", err))
		}
		err := w.presence.Heartbeat(ctx, application.HeartbeatParams{
			ResourceID: req.ResourceID,
			UserID:     req.UserID,
			Slots:      req.Slots,
			Payload:    req.Payload,
		})
		if err != nil {
			return errorResponse(responseType, err)
		}
		return okResponse(responseType, nil)

	case CommandLeave:
		var req LeavePayload
		if err := json.Unmarshal(envelope.Payload, &req); err != nil {
			return errorResponse(responseType, fmt.Errorf("invalid payload: %w", err))
		}
		if err := w.presence.Leave(ctx, req.ResourceID, req.UserID, req.Slots); err != nil {
			return errorResponse(responseType, err)
		}
		return okResponse(responseType, nil)

	case CommandCreateBooking:
		var req CreateBookingPayload
		if err := json.Unmarshal(envelope.Payload, &req); err != nil {
			return errorResponse(responseType, fmt.Errorf("invalid payload: %w", err))
		}
		booking, err := w.bookings.Create(ctx, application.BookingInput{
			ResourceID:     req.ResourceID,
			EventTypeID:    req.EventTypeID,
			OrganizationID: req.OrganizationID,
			Start:          req.Start,
			End:            req.End,
			Timezone:       req.Timezone,
			BookerName:     req.BookerName,
			BookerEmail:    req.BookerEmail,
			Title:          req.Title,
			Description:    req.Description,
			AutoConfirm:    req.AutoConfirm,
		})
		if err != nil {
			return errorResponse(responseType, err)
		}
		return okResponse(responseType, booking)

	case CommandTransitionBooking:
		var req TransitionBookingPayload
		if err := json.Unmarshal(envelope.Payload, &req); err != nil {
			return errorResponse(responseType, fmt.Errorf("invalid payload: %w", err))
		}
		booking, err := w.bookings.Transition(ctx, application.TransitionParams{
			UID:    req.UID,
			To:     req.To,
			Actor:  req.Actor,
			Reason: req.Reason,
		})
		if err != nil {
			return errorResponse(responseType, err)
		}
		return okResponse(responseType, booking)

	case CommandGetBooking:
		var req GetBookingPayload
		if err := json.Unmarshal(envelope.Payload, &req); err != nil {
			return errorResponse(responseType, fmt.Errorf("invalid payload: %w", err))
		}
		booking, err := w.bookings.Get(ctx, req.UID)
		if err != nil {
			return errorResponse(responseType, err)
		}
		return okResponse(responseType, booking)

	default:
		return errorResponse("Error", fmt.Errorf("unknown command type %q", envelope.Type))
	}
}

func (w *Worker) reply(ctx context.Context, delivery amqp.Delivery, response Response) {
	if delivery.ReplyTo == "" {
		return
	}
	body, err := json.Marshal(response)
	if err != nil {
		w.logger.Error("failed to marshal response", "error", err)
		return
	}
	err = w.channel.PublishWithContext(
		ctx,
		"",
		delivery.ReplyTo,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: delivery.CorrelationId,
			Body:          body,
		},
	)
	if err != nil {
		w.logger.Error("failed to publish response", "error", err)
	}
}

func okResponse(responseType string, payload any) Response {
	response := Response{OK: true, Type: responseType}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return errorResponse(responseType, fmt.Errorf("failed to marshal payload: %w", err))
		}
		response.Payload = body
	}
	return response
}

func errorResponse(responseType string, err error) Response {
	return Response{
		OK:    false,
		Error: err.Error(),
		Kind:  application.ErrorKind(err),
		Type:  responseType,
	}
}
