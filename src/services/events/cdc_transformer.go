package events

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"discoveryservice/src/domain"
	"discoveryservice/src/infra/debezium"

	"github.com/google/uuid"
)

type CDCTransformer struct {
	logger *slog.Logger
}

func NewCDCTransformer(logger *slog.Logger) *CDCTransformer {
	return &CDCTransformer{
		logger: logger,
	}
}

// TransformCDCEvents transforma um lote preservando a ordem de chegada.
func (t *CDCTransformer) TransformCDCEvents(ctx context.Context, cdcEvents []*debezium.CDCEvent) ([]DomainEventWithMetadata, error) {
	result := make([]DomainEventWithMetadata, 0, len(cdcEvents))
	for _, cdcEvent := range cdcEvents {
		events, err := t.TransformCDCEvent(ctx, cdcEvent)
		if err != nil {
			// evento malformado não volta a ser válido; segue o lote
			t.logger.WarnContext(ctx, "Skipping malformed CDC event",
				"table", cdcEvent.Source.Table,
				"operation", cdcEvent.Operation,
				"error", err)
			continue
		}
		result = append(result, events...)
	}
	return result, nil
}

// TransformCDCEvent converts a CDC event to one or more domain events
func (t *CDCTransformer) TransformCDCEvent(ctx context.Context, cdcEvent *debezium.CDCEvent) ([]DomainEventWithMetadata, error) {
	tableName := cdcEvent.Source.Table

	t.logger.DebugContext(ctx, "Processing CDC event",
		"table", tableName,
		"operation", cdcEvent.Operation,
		"ts_ms", cdcEvent.TsMs)

	switch tableName {
	case domain.TableEntities:
		return t.transformEntityEvent(ctx, cdcEvent)
	case domain.TableEdges:
		return t.transformEdgeEvent(ctx, cdcEvent)
	default:
		t.logger.DebugContext(ctx, "Ignoring CDC event from unknown table", "table", tableName)
		return nil, nil
	}
}

// transformEntityEvent converts entity table CDC events to domain events
func (t *CDCTransformer) transformEntityEvent(ctx context.Context, cdcEvent *debezium.CDCEvent) ([]DomainEventWithMetadata, error) {
	operation := debezium.MapCDCOperation(cdcEvent.Operation)
	eventType := t.mapToEventType(operation, cdcEvent.Source.Table)
	eventTimestamp := time.UnixMilli(cdcEvent.TsMs).UTC()

	var entityRef, entityType string
	var oldProperties, newProperties map[string]interface{}

	if cdcEvent.After != nil {
		entityRef, _ = cdcEvent.After["reference"].(string)
		entityType, _ = cdcEvent.After["type"].(string)
		newProperties = t.decodeProperties(cdcEvent.After["properties"])
	}

	if cdcEvent.Before != nil {
		if entityRef == "" {
			entityRef, _ = cdcEvent.Before["reference"].(string)
		}
		if entityType == "" {
			entityType, _ = cdcEvent.Before["type"].(string)
		}
		oldProperties = t.decodeProperties(cdcEvent.Before["properties"])
	}

	// DELETE de uma linha gravada antes do REPLICA IDENTITY FULL traz só a PK;
	// o evento sai com a mesma referência por id usada nas arestas.
	if entityRef == "" && operation == domain.OperationDelete && cdcEvent.Before != nil {
		if id := toInt64(cdcEvent.Before["id"]); id != 0 {
			entityRef = entityReference(id)
			t.logger.WarnContext(ctx, "DELETE event carries only the primary key",
				"entity_ref", entityRef)
		}
		if entityRef != "" {
			return t.entityDeletedByID(entityRef, eventType, time.UnixMilli(cdcEvent.TsMs).UTC()), nil
		}
	}

	if entityRef == "" || entityType == "" {
		return nil, fmt.Errorf("CDCTransformer.transformEntityEvent - missing entity reference or type in CDC event")
	}

	properties := make(map[string]domain.PropertyPair)

	switch operation {
	case domain.OperationInsert:
		for field, value := range newProperties {
			properties[field] = domain.PropertyPair{Old: nil, New: value}
		}

	case domain.OperationUpdate:
		if len(oldProperties) == 0 {
			t.logger.WarnContext(ctx, "UPDATE event missing 'before' data, treating as insert-like",
				"entity_ref", entityRef,
				"entity_type", entityType)
			for field, value := range newProperties {
				properties[field] = domain.PropertyPair{Old: nil, New: value}
			}
		} else {
			for _, field := range t.findChangedFields(oldProperties, newProperties) {
				properties[field] = domain.PropertyPair{
					Old: oldProperties[field],
					New: newProperties[field],
				}
			}
		}

	case domain.OperationDelete:
		for field, value := range oldProperties {
			properties[field] = domain.PropertyPair{Old: value, New: nil}
		}
	}

	// UPDATE que só mexeu em updated_at não vira evento
	if operation == domain.OperationUpdate && len(properties) == 0 {
		return nil, nil
	}

	event := DomainEventWithMetadata{
		DomainEvent: domain.DomainEvent{
			IdempotencyKey: t.generateIdempotencyKey("entity", entityRef, entityType+":"+operation, eventTimestamp),
			EventTimestamp: eventTimestamp,
			Data: domain.DomainEventData{
				Type:       entityType,
				Reference:  entityRef,
				Properties: properties,
			},
		},
		EventID:   uuid.New().String(),
		EventType: eventType,
	}

	t.logger.DebugContext(ctx, "Transformed entity CDC event",
		"entity_reference", entityRef,
		"entity_type", entityType,
		"event_type", eventType,
		"properties_changed", len(properties))

	return []DomainEventWithMetadata{event}, nil
}

func (t *CDCTransformer) entityDeletedByID(entityRef, eventType string, eventTimestamp time.Time) []DomainEventWithMetadata {
	return []DomainEventWithMetadata{{
		DomainEvent: domain.DomainEvent{
			IdempotencyKey: t.generateIdempotencyKey("entity", entityRef, domain.OperationDelete, eventTimestamp),
			EventTimestamp: eventTimestamp,
			Data: domain.DomainEventData{
				Reference:  entityRef,
				Properties: map[string]domain.PropertyPair{},
			},
		},
		EventID:   uuid.New().String(),
		EventType: eventType,
	}}
}

// transformEdgeEvent converts edge table CDC events to domain events. As
// pontas chegam como ids internos; a referência publicada é "entity-<id>".
func (t *CDCTransformer) transformEdgeEvent(ctx context.Context, cdcEvent *debezium.CDCEvent) ([]DomainEventWithMetadata, error) {
	operation := debezium.MapCDCOperation(cdcEvent.Operation)
	eventType := t.mapToEventType(operation, cdcEvent.Source.Table)
	eventTimestamp := time.UnixMilli(cdcEvent.TsMs).UTC()

	var leftEntityID, rightEntityID int64
	var oldRelationshipType, newRelationshipType string

	if cdcEvent.After != nil {
		leftEntityID = toInt64(cdcEvent.After["left_entity_id"])
		rightEntityID = toInt64(cdcEvent.After["right_entity_id"])
		newRelationshipType, _ = cdcEvent.After["relationship_type"].(string)
	}

	if cdcEvent.Before != nil {
		if leftEntityID == 0 {
			leftEntityID = toInt64(cdcEvent.Before["left_entity_id"])
		}
		if rightEntityID == 0 {
			rightEntityID = toInt64(cdcEvent.Before["right_entity_id"])
		}
		oldRelationshipType, _ = cdcEvent.Before["relationship_type"].(string)
	}

	if leftEntityID == 0 || rightEntityID == 0 {
		// sem as pontas não há como referenciar a aresta; exige REPLICA IDENTITY FULL em edges
		return nil, fmt.Errorf("CDCTransformer.transformEdgeEvent - missing edge endpoints in CDC event")
	}

	properties := make(map[string]domain.PropertyPair)

	switch operation {
	case domain.OperationInsert:
		properties["relationship_type"] = domain.PropertyPair{Old: nil, New: newRelationshipType}

	case domain.OperationUpdate:
		if cdcEvent.Before == nil {
			t.logger.WarnContext(ctx, "UPDATE relationship event missing 'before' data, treating as insert-like",
				"left_entity_id", leftEntityID,
				"right_entity_id", rightEntityID)
			properties["relationship_type"] = domain.PropertyPair{Old: nil, New: newRelationshipType}
		} else if oldRelationshipType != newRelationshipType {
			properties["relationship_type"] = domain.PropertyPair{Old: oldRelationshipType, New: newRelationshipType}
		}

	case domain.OperationDelete:
		properties["relationship_type"] = domain.PropertyPair{Old: oldRelationshipType, New: nil}
	}

	if operation == domain.OperationUpdate && len(properties) == 0 {
		return nil, nil
	}

	relationshipType := newRelationshipType
	if relationshipType == "" {
		relationshipType = oldRelationshipType
	}

	sourceReference := entityReference(leftEntityID)
	targetReference := entityReference(rightEntityID)

	event := DomainEventWithMetadata{
		DomainEvent: domain.DomainEvent{
			IdempotencyKey: t.generateIdempotencyKey(
				"relationship", sourceReference, targetReference+":"+relationshipType+":"+operation, eventTimestamp,
			),
			EventTimestamp: eventTimestamp,
			Data: domain.DomainEventData{
				Reference:             sourceReference,
				TargetEntityReference: &targetReference,
				Properties:            properties,
			},
		},
		EventID:   uuid.New().String(),
		EventType: eventType,
	}

	t.logger.DebugContext(ctx, "Transformed edge CDC event",
		"left_entity_id", leftEntityID,
		"right_entity_id", rightEntityID,
		"relationship_type", relationshipType,
		"event_type", eventType)

	return []DomainEventWithMetadata{event}, nil
}

// mapToEventType converts CDC operation + table to domain event type
func (t *CDCTransformer) mapToEventType(operation, tableName string) string {
	switch tableName {
	case domain.TableEntities:
		switch operation {
		case domain.OperationInsert:
			return domain.EventTypeEntityCreated
		case domain.OperationUpdate:
			return domain.EventTypeEntityPropertiesUpdated
		case domain.OperationDelete:
			return domain.EventTypeEntityDeleted
		}
	case domain.TableEdges:
		switch operation {
		case domain.OperationInsert:
			return domain.EventTypeRelationshipCreated
		case domain.OperationUpdate:
			return domain.EventTypeRelationshipUpdated
		case domain.OperationDelete:
			return domain.EventTypeRelationshipDeleted
		}
	}
	return "unknown_event_type"
}

// decodeProperties aceita o JSONB como string (formato padrão do Debezium) ou já decodificado.
func (t *CDCTransformer) decodeProperties(raw interface{}) map[string]interface{} {
	switch props := raw.(type) {
	case string:
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(props), &decoded); err != nil {
			t.logger.Warn("Failed to decode properties JSON", "error", err)
			return nil
		}
		return decoded
	case map[string]interface{}:
		return props
	}
	return nil
}

func (t *CDCTransformer) findChangedFields(oldProps, newProps map[string]interface{}) []string {
	var changed []string

	for field, newVal := range newProps {
		if oldVal, exists := oldProps[field]; !exists || !t.compareValues(oldVal, newVal) {
			changed = append(changed, field)
		}
	}

	for field := range oldProps {
		if _, exists := newProps[field]; !exists {
			changed = append(changed, field)
		}
	}

	return changed
}

func (t *CDCTransformer) compareValues(a, b interface{}) bool {
	aJSON, _ := json.Marshal(a)
	bJSON, _ := json.Marshal(b)
	return string(aJSON) == string(bJSON)
}

func (t *CDCTransformer) generateIdempotencyKey(prefix, entityRef, discriminator string, timestamp time.Time) string {
	baseKey := fmt.Sprintf("%s-%s:%s-%d", prefix, entityRef, discriminator, timestamp.UnixMilli())
	hash := md5.Sum([]byte(baseKey))
	return hex.EncodeToString(hash[:])
}

func entityReference(id int64) string {
	return fmt.Sprintf("entity-%d", id)
}

// toInt64 lida com BIGINT vindo do Debezium como número JSON ou string.
func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}
