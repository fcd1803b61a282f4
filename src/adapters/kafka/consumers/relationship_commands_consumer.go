package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"
	"discoveryservice/src/infra/kafka"
	"discoveryservice/src/services/graph"
	"discoveryservice/src/validation"
)

// RelationshipCommand representa o schema da mensagem Kafka
type RelationshipCommand struct {
	Action string         `json:"action"`
	From   CommandNodeRef `json:"from"`
	To     CommandNodeRef `json:"to"`
}

type CommandNodeRef struct {
	Kind string `json:"kind"`
	Key  string `json:"key"`
}

const (
	ActionSetFriendship   = "set_friendship"
	ActionClearFriendship = "clear_friendship"
	ActionSetFamilyship   = "set_familyship"
	ActionClearFamilyship = "clear_familyship"
	ActionSetOwnership    = "set_ownership"
	ActionClearOwnership  = "clear_ownership"
)

// BatchConsumer é o lado consumidor de kafka.KafkaClient.
type BatchConsumer interface {
	Consumer(ctx context.Context, handler kafka.Handler, topic string) error
}

type relationshipAction func(ctx context.Context, from, to entities.Entity) error

type RelationshipCommandsConsumer struct {
	logger        *slog.Logger
	registries    map[entities.Kind]*graph.NodeRegistry
	relationships *graph.RelationshipManager
	actions       map[string]relationshipAction
}

func NewRelationshipCommandsConsumer(
	logger *slog.Logger,
	accounts *graph.NodeRegistry,
	items *graph.NodeRegistry,
	relationships *graph.RelationshipManager,
) *RelationshipCommandsConsumer {
	return &RelationshipCommandsConsumer{
		logger: logger,
		registries: map[entities.Kind]*graph.NodeRegistry{
			accounts.Kind(): accounts,
			items.Kind():    items,
		},
		relationships: relationships,
		actions: map[string]relationshipAction{
			ActionSetFriendship:   relationships.SetFriendship,
			ActionClearFriendship: relationships.ClearFriendship,
			ActionSetFamilyship:   relationships.SetFamilyship,
			ActionClearFamilyship: relationships.ClearFamilyship,
			ActionSetOwnership:    relationships.SetOwnership,
			ActionClearOwnership:  relationships.ClearOwnership,
		},
	}
}

func (c *RelationshipCommandsConsumer) Start(ctx context.Context, consumer BatchConsumer, topic string) error {
	c.logger.Info("Starting relationship commands consumer", "topic", topic)
	return consumer.Consumer(ctx, c.HandleMessages, topic)
}

// HandleMessages aplica os comandos na ordem em que chegaram. Comandos
// malformados são descartados; falhas de storage rejeitam o lote inteiro.
func (c *RelationshipCommandsConsumer) HandleMessages(ctx context.Context, messages []kafka.Message) error {
	if len(messages) == 0 {
		return nil
	}

	c.logger.Info("Processing messages batch", "count", len(messages))

	applied, skipped := 0, 0
	for _, msg := range messages {
		var command RelationshipCommand
		if err := json.Unmarshal(msg.Value, &command); err != nil {
			c.logger.Warn("Skipping message: invalid JSON",
				"error", err,
				"key", msg.Key)
			skipped++
			continue
		}

		err := c.apply(ctx, command)
		switch {
		case err == nil:
			applied++
		case isRejected(err):
			c.logger.Warn("Skipping rejected command",
				"key", msg.Key,
				"action", command.Action,
				"from", command.From.Kind+":"+command.From.Key,
				"to", command.To.Kind+":"+command.To.Key,
				"error", err)
			skipped++
		default:
			c.logger.Error("Failed to apply command",
				"error", err,
				"key", msg.Key,
				"action", command.Action)
			return fmt.Errorf("RelationshipCommandsConsumer.HandleMessages - failed to apply %s: %w", command.Action, err)
		}
	}

	c.logger.Info("Successfully processed messages batch",
		"count", len(messages),
		"applied", applied,
		"skipped", skipped)

	return nil
}

func (c *RelationshipCommandsConsumer) apply(ctx context.Context, command RelationshipCommand) error {
	action, ok := c.actions[command.Action]
	if !ok {
		return fmt.Errorf("%w: unknown action '%s'", domain.ErrInvalidField, command.Action)
	}

	from, err := c.resolve(ctx, command.From)
	if err != nil {
		return err
	}

	to, err := c.resolve(ctx, command.To)
	if err != nil {
		return err
	}

	return action(ctx, from, to)
}

func (c *RelationshipCommandsConsumer) resolve(ctx context.Context, ref CommandNodeRef) (entities.Entity, error) {
	kind, ok := entities.ParseKind(ref.Kind)
	if !ok {
		return entities.Entity{}, fmt.Errorf("%w: unknown kind '%s'", domain.ErrInvalidField, ref.Kind)
	}

	if err := validation.ValidateKey(kind, ref.Key); err != nil {
		return entities.Entity{}, err
	}

	registry, ok := c.registries[kind]
	if !ok {
		return entities.Entity{}, fmt.Errorf("%w: no registry for kind '%s'", domain.ErrInvalidField, kind)
	}

	return registry.Get(ctx, ref.Key)
}

// isRejected separa os erros do comando (reentregar não resolve) das falhas de storage.
func isRejected(err error) bool {
	return errors.Is(err, domain.ErrMissingField) ||
		errors.Is(err, domain.ErrInvalidField) ||
		errors.Is(err, domain.ErrInvalidRelationship) ||
		errors.Is(err, domain.ErrEntityNotFound)
}
