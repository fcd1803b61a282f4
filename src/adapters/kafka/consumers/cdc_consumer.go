package consumers

import (
	"context"
	"fmt"
	"log/slog"

	"discoveryservice/src/infra/debezium"
	"discoveryservice/src/services/events"
)

type CDCConsumer struct {
	logger         *slog.Logger
	cdcClient      *debezium.CDCClient
	transformer    *events.CDCTransformer
	eventPublisher *events.DomainEventPublisher
}

func NewCDCConsumer(
	logger *slog.Logger,
	cdcClient *debezium.CDCClient,
	transformer *events.CDCTransformer,
	eventPublisher *events.DomainEventPublisher,
) *CDCConsumer {
	return &CDCConsumer{
		logger:         logger,
		cdcClient:      cdcClient,
		transformer:    transformer,
		eventPublisher: eventPublisher,
	}
}

func (c *CDCConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting CDC consumer")
	return c.cdcClient.ConsumeCDCEventsBatch(ctx, c.HandleCDCEventsBatch)
}

// HandleCDCEventsBatch transforma o lote e publica todos os eventos de domínio
// de uma vez. Falha na publicação rejeita o lote para reentrega.
func (c *CDCConsumer) HandleCDCEventsBatch(ctx context.Context, cdcEvents []*debezium.CDCEvent) error {
	if len(cdcEvents) == 0 {
		return nil
	}

	c.logger.Debug("Processing CDC events batch", "count", len(cdcEvents))

	domainEvents, err := c.transformer.TransformCDCEvents(ctx, cdcEvents)
	if err != nil {
		return fmt.Errorf("CDCConsumer.HandleCDCEventsBatch - failed to transform batch: %w", err)
	}

	if len(domainEvents) == 0 {
		return nil
	}

	if err := c.eventPublisher.PublishDomainEvents(ctx, domainEvents); err != nil {
		return fmt.Errorf("CDCConsumer.HandleCDCEventsBatch - failed to publish domain events batch: %w", err)
	}

	c.logger.Info("Successfully published domain events batch",
		"cdc_events_processed", len(cdcEvents),
		"domain_events_published", len(domainEvents))

	return nil
}

func (c *CDCConsumer) Close() error {
	c.logger.Info("Closing CDC consumer")
	return c.cdcClient.Close()
}
