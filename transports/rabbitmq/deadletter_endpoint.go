// Package rabbitmq provides RabbitMQ-backed endpoints for the error-handling pipeline.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bmvisioli/routeflow/exchange"
)

// Channel abstracts the AMQP channel operations the endpoint uses, so tests
// can substitute a mock for a live broker channel.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

// DeadLetterEndpoint is a processor that publishes a failed exchange's payload
// and failure metadata to a RabbitMQ queue. It is meant to serve as the
// dead-letter processor of an errorhandler.DeadLetterChannel.
type DeadLetterEndpoint struct {
	channel Channel
	queue   string
	logger  *slog.Logger
}

// EndpointOption configures a dead letter endpoint
type EndpointOption func(*DeadLetterEndpoint)

// WithEndpointLogger sets the logger
func WithEndpointLogger(logger *slog.Logger) EndpointOption {
	return func(e *DeadLetterEndpoint) {
		e.logger = logger
	}
}

// NewDeadLetterEndpoint creates an endpoint publishing to queue, declaring it
// durable if it does not exist yet.
func NewDeadLetterEndpoint(channel Channel, queue string, opts ...EndpointOption) (*DeadLetterEndpoint, error) {
	if channel == nil {
		return nil, fmt.Errorf("dead letter endpoint: channel is required")
	}
	if queue == "" {
		return nil, fmt.Errorf("dead letter endpoint: queue name is required")
	}

	e := &DeadLetterEndpoint{
		channel: channel,
		queue:   queue,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare dead letter queue %s: %w", queue, err)
	}

	return e, nil
}

// Process implements processor.Processor
func (e *DeadLetterEndpoint) Process(ctx context.Context, ex *exchange.Exchange) error {
	body, contentType, err := encodeBody(ex.In().Body())
	if err != nil {
		return fmt.Errorf("failed to encode dead letter body: %w", err)
	}

	failure := exchange.CapturedException(ex)
	if failure == nil {
		failure = ex.Exception()
	}

	headers := amqp.Table{
		"x-original-route":    ex.RouteID(),
		"x-redelivery-count":  int32(exchange.RedeliveryCount(ex)),
	}
	if failure != nil {
		headers["x-last-error"] = failure.Error()
	}

	err = e.channel.PublishWithContext(ctx, "", e.queue, false, false, amqp.Publishing{
		MessageId:    ex.ID(),
		Timestamp:    time.Now().UTC(),
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish dead letter for exchange %s: %w", ex.ID(), err)
	}

	e.logger.Info("exchange dead lettered",
		"exchangeId", ex.ID(),
		"queue", e.queue,
		"redeliveryCount", exchange.RedeliveryCount(ex),
	)

	return nil
}

// encodeBody turns a message body into bytes; raw bytes and strings pass
// through, everything else is JSON encoded.
func encodeBody(body interface{}) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "application/octet-stream", nil
	case []byte:
		return b, "application/octet-stream", nil
	case string:
		return []byte(b), "text/plain", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	}
}
