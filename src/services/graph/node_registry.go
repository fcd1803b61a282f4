package graph

import (
	"context"
	"fmt"

	"discoveryservice/src/domain/entities"
	"discoveryservice/src/repositories"
)

// NodeRegistry é o ciclo de vida dos nós de um único tipo.
type NodeRegistry struct {
	store repositories.GraphStore
	kind  entities.Kind
}

func NewNodeRegistry(store repositories.GraphStore, kind entities.Kind) *NodeRegistry {
	return &NodeRegistry{store: store, kind: kind}
}

func NewAccountRegistry(store repositories.GraphStore) *NodeRegistry {
	return NewNodeRegistry(store, entities.KindAccount)
}

func NewItemRegistry(store repositories.GraphStore) *NodeRegistry {
	return NewNodeRegistry(store, entities.KindItem)
}

func (nr *NodeRegistry) Kind() entities.Kind {
	return nr.kind
}

// EnsureConstraint registra a unicidade da chave do tipo. Chamado no start do
// processo; "já existe" não é erro.
func (nr *NodeRegistry) EnsureConstraint(ctx context.Context) (bool, error) {
	created, err := nr.store.EnsureUniqueConstraint(ctx, nr.kind)
	if err != nil {
		return false, fmt.Errorf("NodeRegistry.EnsureConstraint - failed to register %s constraint: %w", nr.kind, err)
	}
	return created, nil
}

func (nr *NodeRegistry) ref(key string) entities.NodeRef {
	return entities.NodeRef{Kind: nr.kind, Key: key}
}
