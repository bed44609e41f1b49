package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/affinity/internal/config"
	"github.com/temcen/affinity/internal/validation"
	"github.com/temcen/affinity/pkg/models"
)

const (
	RatingEventsDLQSuffix = "-dlq"
	ConsumerGroup         = "rating-processors"
)

type RatingProducer struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

type RatingConsumer struct {
	reader *kafka.Reader
	logger *logrus.Logger
}

// MessageBus moves rating submissions through Kafka: producers publish
// rating events, consumers validate them against the rating-event schema and
// hand valid events to the store. Malformed or repeatedly failing events go
// to the DLQ topic.
type MessageBus struct {
	producer  *RatingProducer
	consumer  *RatingConsumer
	dlqWriter *kafka.Writer
	validator *validation.SchemaValidator
	logger    *logrus.Logger
	topic     string
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	topic := cfg.Kafka.Topics.RatingEvents

	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to build schema validator: %w", err)
	}

	producer := &RatingProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // Key by agent so one agent's events stay ordered
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		logger: logger,
	}

	consumer := &RatingConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          topic,
			GroupID:        ConsumerGroup,
			MinBytes:       10e3, // 10KB
			MaxBytes:       10e6, // 10MB
			CommitInterval: time.Second,
			StartOffset:    kafka.LastOffset,
		}),
		logger: logger,
	}

	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        topic + RatingEventsDLQSuffix,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &MessageBus{
		producer:  producer,
		consumer:  consumer,
		dlqWriter: dlqWriter,
		validator: validator,
		logger:    logger,
		topic:     topic,
	}, nil
}

func (mb *MessageBus) PublishRating(event models.RatingEvent) error {
	messageBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal rating event: %w", err)
	}

	kafkaMessage := kafka.Message{
		Key:   []byte(event.AgentID.String()),
		Value: messageBytes,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID.String())},
			{Key: "agent_id", Value: []byte(event.AgentID.String())},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mb.producer.writer.WriteMessages(ctx, kafkaMessage); err != nil {
		mb.logger.WithError(err).WithField("event_id", event.EventID).Error("Failed to publish rating event")
		return fmt.Errorf("failed to write rating event to Kafka: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"event_id": event.EventID,
		"agent_id": event.AgentID,
		"topic":    mb.topic,
	}).Debug("Rating event published")

	return nil
}

// ConsumeRatings reads rating events until ctx is cancelled. Payloads that
// fail schema validation or JSON decoding never reach the handler; they go
// straight to the DLQ.
func (mb *MessageBus) ConsumeRatings(ctx context.Context, handler func(models.RatingEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := mb.consumer.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				mb.logger.WithError(err).Error("Failed to read message from Kafka")
				continue
			}

			if result := mb.validator.ValidateRatingEvent(message.Value); !result.Valid {
				mb.sendToDLQ(ctx, message.Value, fmt.Errorf("schema validation failed: %s",
					strings.Join(result.Errors, "; ")))
				continue
			}

			var event models.RatingEvent
			if err := json.Unmarshal(message.Value, &event); err != nil {
				mb.sendToDLQ(ctx, message.Value, fmt.Errorf("failed to unmarshal rating event: %w", err))
				continue
			}

			if err := mb.processWithRetry(ctx, event, handler); err != nil {
				mb.logger.WithError(err).WithField("event_id", event.EventID).
					Error("Failed to process rating event after retries")
				mb.sendToDLQ(ctx, message.Value, err)
			}
		}
	}
}

func (mb *MessageBus) processWithRetry(ctx context.Context, event models.RatingEvent, handler func(models.RatingEvent) error) error {
	maxRetries := 3
	baseDelay := time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			mb.logger.WithFields(logrus.Fields{
				"event_id": event.EventID,
				"attempt":  attempt,
				"delay":    delay,
			}).Info("Retrying rating event")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := handler(event); err != nil {
			mb.logger.WithError(err).WithFields(logrus.Fields{
				"event_id": event.EventID,
				"attempt":  attempt,
			}).Warn("Rating event processing failed")

			if attempt == maxRetries {
				return fmt.Errorf("max retries exceeded: %w", err)
			}
			continue
		}

		return nil
	}

	return fmt.Errorf("unexpected retry loop exit")
}

func (mb *MessageBus) sendToDLQ(ctx context.Context, original []byte, originalError error) {
	dlqMessage := map[string]interface{}{
		"original_payload": json.RawMessage(original),
		"error":            originalError.Error(),
		"dlq_timestamp":    time.Now(),
	}

	dlqBytes, err := json.Marshal(dlqMessage)
	if err != nil {
		mb.logger.WithError(err).Error("Failed to marshal DLQ message")
		return
	}

	kafkaMessage := kafka.Message{
		Value: dlqBytes,
		Headers: []kafka.Header{
			{Key: "original_topic", Value: []byte(mb.topic)},
			{Key: "error", Value: []byte(originalError.Error())},
		},
	}

	if err := mb.dlqWriter.WriteMessages(ctx, kafkaMessage); err != nil {
		mb.logger.WithError(err).Error("Failed to write message to DLQ")
		return
	}

	mb.logger.WithField("error", originalError.Error()).Warn("Rating event sent to DLQ")
}

func (mb *MessageBus) Close() error {
	var errors []error

	if err := mb.producer.writer.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close producer: %w", err))
	}

	if err := mb.consumer.reader.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close consumer: %w", err))
	}

	if err := mb.dlqWriter.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close DLQ writer: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errors)
	}
	return nil
}
