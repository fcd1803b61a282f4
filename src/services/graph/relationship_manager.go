package graph

import (
	"context"
	"fmt"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"
	"discoveryservice/src/repositories"
)

// RelationshipManager mantém as arestas dirigidas entre nós. friendship e
// familyship são mutuamente exclusivas por par ordenado: ligar uma remove a
// outra na mesma transação.
type RelationshipManager struct {
	store repositories.GraphStore
}

func NewRelationshipManager(store repositories.GraphStore) *RelationshipManager {
	return &RelationshipManager{store: store}
}

func (rm *RelationshipManager) SetFriendship(ctx context.Context, from, to entities.Entity) error {
	return rm.apply(ctx, "SetFriendship", entities.EdgeFriendship, from, to, entities.EdgeChange{
		Remove: entities.EdgeFamilyship,
		Merge:  entities.EdgeFriendship,
	})
}

func (rm *RelationshipManager) SetFamilyship(ctx context.Context, from, to entities.Entity) error {
	return rm.apply(ctx, "SetFamilyship", entities.EdgeFamilyship, from, to, entities.EdgeChange{
		Remove: entities.EdgeFriendship,
		Merge:  entities.EdgeFamilyship,
	})
}

func (rm *RelationshipManager) ClearFriendship(ctx context.Context, from, to entities.Entity) error {
	return rm.apply(ctx, "ClearFriendship", entities.EdgeFriendship, from, to, entities.EdgeChange{
		Remove: entities.EdgeFriendship,
	})
}

func (rm *RelationshipManager) ClearFamilyship(ctx context.Context, from, to entities.Entity) error {
	return rm.apply(ctx, "ClearFamilyship", entities.EdgeFamilyship, from, to, entities.EdgeChange{
		Remove: entities.EdgeFamilyship,
	})
}

func (rm *RelationshipManager) SetOwnership(ctx context.Context, account, item entities.Entity) error {
	return rm.apply(ctx, "SetOwnership", entities.EdgeOwnership, account, item, entities.EdgeChange{
		Merge: entities.EdgeOwnership,
	})
}

func (rm *RelationshipManager) ClearOwnership(ctx context.Context, account, item entities.Entity) error {
	return rm.apply(ctx, "ClearOwnership", entities.EdgeOwnership, account, item, entities.EdgeChange{
		Remove: entities.EdgeOwnership,
	})
}

// Ownerships lista os gs1codes dos itens da conta, ordenados.
func (rm *RelationshipManager) Ownerships(ctx context.Context, account entities.Entity) ([]string, error) {
	if account.Kind != entities.KindAccount {
		return nil, fmt.Errorf("RelationshipManager.Ownerships - %s cannot own items: %w", account.Kind, domain.ErrInvalidRelationship)
	}

	owned, err := rm.store.ListOwned(ctx, account.Ref())
	if err != nil {
		return nil, fmt.Errorf("RelationshipManager.Ownerships - failed to list items of '%s': %w", account.Key, err)
	}
	return owned, nil
}

// apply checa os papéis antes de qualquer acesso ao store.
func (rm *RelationshipManager) apply(ctx context.Context, op string, kind entities.EdgeKind, from, to entities.Entity, change entities.EdgeChange) error {
	if !kind.Allows(from.Kind, to.Kind) {
		return fmt.Errorf("RelationshipManager.%s - %s cannot link %s to %s: %w", op, kind, from.Kind, to.Kind, domain.ErrInvalidRelationship)
	}

	change.From = from.Ref()
	change.To = to.Ref()
	if err := rm.store.ApplyEdgeChange(ctx, change); err != nil {
		return fmt.Errorf("RelationshipManager.%s - failed to apply %s -> %s: %w", op, change.From, change.To, err)
	}
	return nil
}
