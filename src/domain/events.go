package domain

import "time"

// Tabelas monitoradas pelo CDC.
const (
	TableEntities = "entities"
	TableEdges    = "edges"
)

const (
	OperationInsert = "INSERT"
	OperationUpdate = "UPDATE"
	OperationDelete = "DELETE"
)

const (
	EventTypeEntityCreated           = "entity.created"
	EventTypeEntityPropertiesUpdated = "entity.properties_updated"
	EventTypeEntityDeleted           = "entity.deleted"
	EventTypeRelationshipCreated     = "relationship.created"
	EventTypeRelationshipUpdated     = "relationship.updated"
	EventTypeRelationshipDeleted     = "relationship.deleted"
)

// PropertyPair carrega o valor antigo e o novo de um campo alterado.
type PropertyPair struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

type DomainEventData struct {
	Type                  string                  `json:"type,omitempty"`
	Reference             string                  `json:"reference"`
	TargetEntityReference *string                 `json:"target_entity_reference,omitempty"`
	Properties            map[string]PropertyPair `json:"properties"`
}

// DomainEvent é o payload publicado no tópico de eventos de domínio.
type DomainEvent struct {
	IdempotencyKey string          `json:"idempotency_key"`
	EventTimestamp time.Time       `json:"event_timestamp"`
	Data           DomainEventData `json:"data"`
}
