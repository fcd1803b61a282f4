package graph

import (
	"context"
	"fmt"

	"discoveryservice/src/domain/entities"
	"discoveryservice/src/validation"
)

// Create valida todos os campos (obrigatórios inclusive) e insere o nó.
func (nr *NodeRegistry) Create(ctx context.Context, props map[string]any) (entities.Entity, error) {
	safe, err := validation.Validate(nr.kind, props, true)
	if err != nil {
		return entities.Entity{}, err
	}

	entity, err := nr.store.InsertNode(ctx, nr.kind, safe)
	if err != nil {
		return entities.Entity{}, fmt.Errorf("NodeRegistry.Create - failed to insert %s: %w", nr.kind, err)
	}

	return entity, nil
}
