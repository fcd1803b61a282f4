package graph

import (
	"context"
	"fmt"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"
)

// Delete remove o nó e todas as arestas incidentes, de todos os tipos e nas
// duas direções, numa única transação.
func (nr *NodeRegistry) Delete(ctx context.Context, entity entities.Entity) error {
	if entity.Kind != nr.kind {
		return fmt.Errorf("NodeRegistry.Delete - entity kind %s does not belong to %s registry: %w", entity.Kind, nr.kind, domain.ErrInvalidField)
	}

	if err := nr.store.DeleteNode(ctx, entity.Ref()); err != nil {
		return fmt.Errorf("NodeRegistry.Delete - failed to delete %s '%s': %w", nr.kind, entity.Key, err)
	}
	return nil
}

// DeleteAll remove todos os nós do tipo e devolve quantos foram removidos.
func (nr *NodeRegistry) DeleteAll(ctx context.Context) (int64, error) {
	deleted, err := nr.store.DeleteAllNodes(ctx, nr.kind)
	if err != nil {
		return 0, fmt.Errorf("NodeRegistry.DeleteAll - failed to delete every %s: %w", nr.kind, err)
	}
	return deleted, nil
}
