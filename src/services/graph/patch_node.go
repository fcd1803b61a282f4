package graph

import (
	"context"
	"fmt"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"
	"discoveryservice/src/validation"
)

// Patch valida apenas os campos enviados e faz merge com os existentes.
// Enviar o campo chave troca a chave. Em caso de sucesso *entity é
// substituída pela versão persistida.
func (nr *NodeRegistry) Patch(ctx context.Context, entity *entities.Entity, props map[string]any) error {
	if entity == nil {
		return fmt.Errorf("NodeRegistry.Patch - nil entity: %w", domain.ErrInvalidField)
	}
	if entity.Kind != nr.kind {
		return fmt.Errorf("NodeRegistry.Patch - entity kind %s does not belong to %s registry: %w", entity.Kind, nr.kind, domain.ErrInvalidField)
	}

	safe, err := validation.Validate(nr.kind, props, false)
	if err != nil {
		return err
	}

	updated, err := nr.store.MergeNodeProperties(ctx, entity.Ref(), safe)
	if err != nil {
		return fmt.Errorf("NodeRegistry.Patch - failed to merge %s '%s': %w", nr.kind, entity.Key, err)
	}

	*entity = updated
	return nil
}
