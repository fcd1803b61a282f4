package debezium

import (
	"context"
	"fmt"
	"log/slog"

	"discoveryservice/src/infra/kafka"
)

// CDCBatchEventHandler is the function signature for handling batches of CDC events
type CDCBatchEventHandler func(ctx context.Context, events []*CDCEvent) error

// MessageConsumer é o lado consumidor de kafka.KafkaClient.
type MessageConsumer interface {
	Consumer(ctx context.Context, handler kafka.Handler, topic string) error
	Close() error
}

// CDCClient implements CDC event consumption using Kafka
type CDCClient struct {
	logger      *slog.Logger
	kafkaClient MessageConsumer
	serializer  *CDCSerializer
	topic       string
}

// NewCDCClient creates a new CDC client
func NewCDCClient(logger *slog.Logger, topic string, kafkaClient MessageConsumer, tables []string) *CDCClient {
	serializer := &CDCSerializer{
		IncludeTables: tables,
	}

	return &CDCClient{
		logger:      logger,
		kafkaClient: kafkaClient,
		serializer:  serializer,
		topic:       topic,
	}
}

// ConsumeCDCEventsBatch starts consuming CDC events and calls handler for batches of valid events
func (c *CDCClient) ConsumeCDCEventsBatch(ctx context.Context, handler CDCBatchEventHandler) error {
	c.logger.Info("Starting CDC batch event consumption", "topic", c.topic)

	kafkaHandler := func(ctx context.Context, messages []kafka.Message) error {
		return c.processCDCMessagesBatch(ctx, messages, handler)
	}

	return c.kafkaClient.Consumer(ctx, kafkaHandler, c.topic)
}

// HandleBatch é o handler Kafka usado por ConsumeCDCEventsBatch, exposto para testes.
func (c *CDCClient) HandleBatch(ctx context.Context, messages []kafka.Message, handler CDCBatchEventHandler) error {
	return c.processCDCMessagesBatch(ctx, messages, handler)
}

// processCDCMessagesBatch processes a batch of Kafka messages and calls handler with all valid CDC events at once.
// Mensagens que não parseiam nunca vão parsear: são logadas e descartadas.
func (c *CDCClient) processCDCMessagesBatch(ctx context.Context, messages []kafka.Message, handler CDCBatchEventHandler) error {
	if len(messages) == 0 {
		return nil
	}

	c.logger.Debug("Processing CDC messages batch", "count", len(messages))

	var validEvents []*CDCEvent
	skippedCount := 0
	errorCount := 0

	for _, msg := range messages {
		// Parse CDC event
		cdcEvent, err := c.serializer.ParseCDCEvent(msg.Value)
		if err != nil {
			c.logger.Error("Failed to parse CDC message",
				"error", err,
				"key", msg.Key,
				"value_length", len(msg.Value))
			errorCount++
			continue
		}

		// Check if event should be processed
		if !c.serializer.ShouldProcessEvent(cdcEvent) {
			c.logger.Debug("Skipping CDC event",
				"table", cdcEvent.Source.Table,
				"operation", cdcEvent.Operation,
				"snapshot", cdcEvent.Source.Snapshot)
			skippedCount++
			continue
		}

		validEvents = append(validEvents, cdcEvent)
	}

	// Handle all valid events as a batch
	if len(validEvents) > 0 {
		if err := handler(ctx, validEvents); err != nil {
			c.logger.Error("CDC batch event handler failed",
				"error", err,
				"valid_events", len(validEvents))
			return fmt.Errorf("failed to handle CDC events batch: %w", err)
		}

		c.logger.Debug("Successfully processed CDC events batch",
			"processed", len(validEvents))
	}

	c.logger.Info("Completed CDC messages batch processing",
		"total", len(messages),
		"processed", len(validEvents),
		"skipped", skippedCount,
		"errors", errorCount)

	return nil
}

// Close closes the CDC client
func (c *CDCClient) Close() error {
	c.logger.Info("Closing CDC client")
	return c.kafkaClient.Close()
}
