package graph

import (
	"context"
	"fmt"
	"iter"

	"discoveryservice/src/domain/entities"
)

func (nr *NodeRegistry) Get(ctx context.Context, key string) (entities.Entity, error) {
	entity, err := nr.store.FindNode(ctx, nr.ref(key))
	if err != nil {
		return entities.Entity{}, fmt.Errorf("NodeRegistry.Get - failed to find %s '%s': %w", nr.kind, key, err)
	}
	return entity, nil
}

// GetAll devolve todos os nós do tipo ordenados pela chave. A sequência é
// preguiçosa e só pode ser percorrida uma vez; a segunda iteração entrega
// domain.ErrCursorConsumed.
func (nr *NodeRegistry) GetAll(ctx context.Context) iter.Seq2[entities.Entity, error] {
	return nr.store.ListNodes(ctx, nr.kind)
}
