package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"discoveryservice/src/domain"
	"discoveryservice/src/infra/kafka"
)

// MessageProducer é o lado produtor de kafka.KafkaClient.
type MessageProducer interface {
	Producer(ctx context.Context, messages []kafka.Message, topic string) error
}

type DomainEventPublisher struct {
	logger   *slog.Logger
	producer MessageProducer
	topic    string
}

func NewDomainEventPublisher(
	logger *slog.Logger,
	producer MessageProducer,
	topic string,
) *DomainEventPublisher {
	return &DomainEventPublisher{
		logger:   logger,
		producer: producer,
		topic:    topic,
	}
}

// DomainEventWithMetadata wraps a domain event with metadata needed for headers
type DomainEventWithMetadata struct {
	domain.DomainEvent
	EventID   string
	EventType string
}

// PublishDomainEvents publishes a batch of domain events to Kafka
func (p *DomainEventPublisher) PublishDomainEvents(ctx context.Context, events []DomainEventWithMetadata) error {
	if len(events) == 0 {
		return nil
	}

	kafkaMessages := make([]kafka.Message, 0, len(events))

	for _, eventWithMetadata := range events {
		// Serializa só o evento de domínio; os metadados vão nos headers
		eventBytes, err := json.Marshal(eventWithMetadata.DomainEvent)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to marshal domain event",
				"error", err,
				"event_id", eventWithMetadata.EventID,
				"entity_reference", eventWithMetadata.Data.Reference)
			continue
		}

		kafkaMessages = append(kafkaMessages, kafka.Message{
			Key:     eventWithMetadata.Data.Reference, // Partition by entity for ordering
			Value:   eventBytes,
			Headers: p.createEventHeaders(eventWithMetadata),
		})
	}

	if err := p.producer.Producer(ctx, kafkaMessages, p.topic); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish domain events to Kafka",
			"error", err,
			"topic", p.topic,
			"events_count", len(kafkaMessages))
		return fmt.Errorf("DomainEventPublisher.PublishDomainEvents - failed to publish to topic %s: %w", p.topic, err)
	}

	p.logger.InfoContext(ctx, "Successfully published domain events",
		"topic", p.topic,
		"events_count", len(kafkaMessages))

	return nil
}

// createEventHeaders creates Kafka headers for event filtering (SNS-like)
func (p *DomainEventPublisher) createEventHeaders(eventWithMetadata DomainEventWithMetadata) map[string]string {
	headers := map[string]string{
		"event_type":     eventWithMetadata.EventType,
		"source_service": "discovery-service",
		"schema_version": "v1",
		"event_id":       eventWithMetadata.EventID,
	}

	if eventWithMetadata.Data.Type != "" {
		headers["entity_type"] = eventWithMetadata.Data.Type
	}

	fieldsChanged := make([]string, 0, len(eventWithMetadata.Data.Properties))
	for field := range eventWithMetadata.Data.Properties {
		fieldsChanged = append(fieldsChanged, field)
	}
	if len(fieldsChanged) > 0 {
		slices.Sort(fieldsChanged)
		headers["fields_changed"] = strings.Join(fieldsChanged, ",")
	}

	// relation_type: o valor novo, ou o antigo quando a aresta foi removida
	if strings.HasPrefix(eventWithMetadata.EventType, "relationship.") {
		if relationType, exists := eventWithMetadata.Data.Properties["relationship_type"]; exists {
			if relationType.New != nil {
				headers["relation_type"] = fmt.Sprintf("%v", relationType.New)
			} else if relationType.Old != nil {
				headers["relation_type"] = fmt.Sprintf("%v", relationType.Old)
			}
		}
	}

	return headers
}
