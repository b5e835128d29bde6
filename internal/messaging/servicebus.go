package messaging

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/CzarCx/qr-brain/config"
	"github.com/CzarCx/qr-brain/internal/metrics"
	"github.com/CzarCx/qr-brain/internal/models"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrNotConfigured is returned when no connection string is set
var ErrNotConfigured = errors.New("azure service bus connection string is empty")

const (
	receiveBatchSize = 10
	maxBackoff       = 30 * time.Second
)

// backoffBase is the first retry delay; it doubles per attempt
var backoffBase = time.Second

// ChangeHandler processes one change event received from the queue
type ChangeHandler func(ctx context.Context, event models.ChangeEvent) error

// ServiceBus publishes and consumes programmed production change events
type ServiceBus struct {
	client     *azservicebus.Client
	sender     *azservicebus.Sender
	queueName  string
	maxRetries int
	metrics    *metrics.Metrics
}

// NewServiceBus connects to the configured queue
func NewServiceBus(cfg config.AzureConfig, collector *metrics.Metrics) (*ServiceBus, error) {
	if cfg.QueueConnStr == "" {
		return nil, ErrNotConfigured
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		client.Close(context.Background())
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}

	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 1
	}

	return &ServiceBus{
		client:     client,
		sender:     sender,
		queueName:  cfg.QueueName,
		maxRetries: retries,
		metrics:    collector,
	}, nil
}

// Publish sends event to the queue, retrying on disconnection
func (b *ServiceBus) Publish(ctx context.Context, event models.ChangeEvent) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}

	start := time.Now()
	err = RetryWithBackoff(ctx, func() error {
		return b.sender.SendMessage(ctx, msg, nil)
	}, b.maxRetries)
	b.metrics.RecordTimer("servicebus:send", time.Since(start))
	b.metrics.RecordResult("servicebus:send", err)

	if err != nil {
		return errors.Wrap(err, "failed to send change event")
	}
	return nil
}

// Consume receives events until ctx is done. Messages whose handler fails
// are abandoned so the queue redelivers them.
func (b *ServiceBus) Consume(ctx context.Context, handle ChangeHandler) error {
	receiver, err := b.client.NewReceiverForQueue(b.queueName, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create Service Bus receiver")
	}
	defer receiver.Close(context.Background())

	log.Info().Str("queue", b.queueName).Msg("Consuming change events")

	for {
		messages, err := receiver.ReceiveMessages(ctx, receiveBatchSize, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("queue", b.queueName).Msg("Error receiving messages")
			select {
			case <-time.After(backoffBase):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		for _, message := range messages {
			b.settle(ctx, receiver, message, handle)
		}
	}
}

func (b *ServiceBus) settle(ctx context.Context, receiver *azservicebus.Receiver, message *azservicebus.ReceivedMessage, handle ChangeHandler) {
	event, err := DecodeEvent(message.Body)
	if err == nil {
		err = handle(ctx, event)
	}
	b.metrics.RecordResult("servicebus:process", err)

	if err != nil {
		log.Error().Err(err).Str("message_id", message.MessageID).Msg("Error processing change event")
		if err := receiver.AbandonMessage(context.Background(), message, nil); err != nil {
			log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to abandon message")
		}
		return
	}

	if err := receiver.CompleteMessage(context.Background(), message, nil); err != nil {
		log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to complete message")
	}
}

// Close closes the sender and the client
func (b *ServiceBus) Close() error {
	if b.sender != nil {
		if err := b.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if b.client != nil {
		return b.client.Close(context.Background())
	}
	return nil
}

func encodeEvent(event models.ChangeEvent) (*azservicebus.Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal change event")
	}

	msg := &azservicebus.Message{
		Body: body,
		ApplicationProperties: map[string]interface{}{
			"table": event.Table,
			"op":    event.Op,
			"time":  event.At.UTC().Format(time.RFC3339),
		},
	}
	if event.ID != "" {
		msg.MessageID = &event.ID
	}
	return msg, nil
}

// DecodeEvent parses a message body
func DecodeEvent(body []byte) (models.ChangeEvent, error) {
	var event models.ChangeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return event, errors.Wrap(err, "failed to unmarshal change event")
	}
	if event.Op == "" {
		return event, errors.New("change event without op")
	}
	return event, nil
}

// IsDisconnectionError reports whether err is a dropped link worth retrying
func IsDisconnectionError(err error) bool {
	if err == nil {
		return false
	}

	var sbErr *azservicebus.Error
	if errors.As(err, &sbErr) && sbErr.Code == azservicebus.CodeConnectionLost {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "amqp: link detached") ||
		strings.Contains(msg, "awaiting send: context deadline exceeded")
}

// RetryWithBackoff retries fn with exponential backoff while it fails with a disconnection error
func RetryWithBackoff(ctx context.Context, fn func() error, maxRetries int) error {
	var err error

	for retry := 0; retry < maxRetries; retry++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsDisconnectionError(err) {
			return err
		}
		if retry == maxRetries-1 {
			break
		}

		backoff := backoffBase << uint(retry)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return err
}
