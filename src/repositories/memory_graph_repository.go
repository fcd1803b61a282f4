package repositories

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"
)

// MemoryGraphRepository guarda o grafo em memória. Usado em desenvolvimento
// local (STORE_BACKEND=memory) e nos testes dos serviços.
type MemoryGraphRepository struct {
	mu          sync.RWMutex
	nextID      int64
	nodes       map[entities.NodeRef]*entities.Entity
	edges       map[entities.Edge]struct{}
	constraints map[entities.Kind]bool
	now         func() time.Time
}

func NewMemoryGraphRepository() *MemoryGraphRepository {
	return &MemoryGraphRepository{
		nodes:       make(map[entities.NodeRef]*entities.Entity),
		edges:       make(map[entities.Edge]struct{}),
		constraints: make(map[entities.Kind]bool),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryGraphRepository) EnsureUniqueConstraint(_ context.Context, kind entities.Kind) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.constraints[kind] {
		return false, nil
	}
	r.constraints[kind] = true
	return true, nil
}

func (r *MemoryGraphRepository) InsertNode(_ context.Context, kind entities.Kind, props map[string]string) (entities.Entity, error) {
	key := props[kind.KeyField()]
	if key == "" {
		return entities.Entity{}, fmt.Errorf("%w: %s", domain.ErrMissingField, kind.KeyField())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ref := entities.NodeRef{Kind: kind, Key: key}
	if _, exists := r.nodes[ref]; exists {
		return entities.Entity{}, domain.DuplicateKeyError(kind.KeyField(), key)
	}

	r.nextID++
	now := r.now()
	node := &entities.Entity{
		ID:         r.nextID,
		Kind:       kind,
		Key:        key,
		Properties: maps.Clone(props),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.nodes[ref] = node

	return cloneEntity(node), nil
}

func (r *MemoryGraphRepository) FindNode(_ context.Context, ref entities.NodeRef) (entities.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[ref]
	if !ok {
		return entities.Entity{}, notFound(ref)
	}
	return cloneEntity(node), nil
}

func (r *MemoryGraphRepository) ListNodes(_ context.Context, kind entities.Kind) iter.Seq2[entities.Entity, error] {
	return onceSeq(func(yield func(entities.Entity, error) bool) {
		// snapshot tirado no início da iteração
		r.mu.RLock()
		snapshot := make([]entities.Entity, 0)
		for ref, node := range r.nodes {
			if ref.Kind == kind {
				snapshot = append(snapshot, cloneEntity(node))
			}
		}
		r.mu.RUnlock()

		slices.SortFunc(snapshot, func(a, b entities.Entity) int {
			return strings.Compare(a.Key, b.Key)
		})

		for _, e := range snapshot {
			if !yield(e, nil) {
				return
			}
		}
	})
}

func (r *MemoryGraphRepository) MergeNodeProperties(_ context.Context, ref entities.NodeRef, props map[string]string) (entities.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[ref]
	if !ok {
		return entities.Entity{}, notFound(ref)
	}

	newKey, rekey := props[ref.Kind.KeyField()]
	rekey = rekey && newKey != ref.Key
	newRef := entities.NodeRef{Kind: ref.Kind, Key: newKey}
	if rekey {
		if _, taken := r.nodes[newRef]; taken {
			return entities.Entity{}, domain.DuplicateKeyError(ref.Kind.KeyField(), newKey)
		}
	}

	if node.Properties == nil {
		node.Properties = make(map[string]string, len(props))
	}
	maps.Copy(node.Properties, props)
	node.UpdatedAt = r.now()

	if rekey {
		node.Key = newKey
		delete(r.nodes, ref)
		r.nodes[newRef] = node

		for edge := range r.edges {
			if edge.From != ref && edge.To != ref {
				continue
			}
			delete(r.edges, edge)
			if edge.From == ref {
				edge.From = newRef
			}
			if edge.To == ref {
				edge.To = newRef
			}
			r.edges[edge] = struct{}{}
		}
	}

	return cloneEntity(node), nil
}

func (r *MemoryGraphRepository) DeleteNode(_ context.Context, ref entities.NodeRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[ref]; !ok {
		return notFound(ref)
	}
	r.detach(ref)
	delete(r.nodes, ref)
	return nil
}

func (r *MemoryGraphRepository) DeleteAllNodes(_ context.Context, kind entities.Kind) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for ref := range r.nodes {
		if ref.Kind != kind {
			continue
		}
		r.detach(ref)
		delete(r.nodes, ref)
		deleted++
	}
	return deleted, nil
}

func (r *MemoryGraphRepository) ApplyEdgeChange(_ context.Context, change entities.EdgeChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[change.From]; !ok {
		return notFound(change.From)
	}
	if _, ok := r.nodes[change.To]; !ok {
		return notFound(change.To)
	}

	if change.Remove != "" {
		delete(r.edges, entities.Edge{From: change.From, To: change.To, Kind: change.Remove})
	}
	if change.Merge != "" {
		r.edges[entities.Edge{From: change.From, To: change.To, Kind: change.Merge}] = struct{}{}
	}
	return nil
}

func (r *MemoryGraphRepository) ClassifyCandidates(_ context.Context, subject entities.NodeRef, candidates entities.Kind) ([]domain.CandidateRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.nodes[subject]; !ok {
		return nil, notFound(subject)
	}

	rows := make([]domain.CandidateRow, 0)
	for ref := range r.nodes {
		if ref.Kind != candidates || ref == subject {
			continue
		}
		rows = append(rows, domain.CandidateRow{
			Key:        ref.Key,
			Friendship: r.hasEdge(subject, ref, entities.EdgeFriendship),
			Familyship: r.hasEdge(subject, ref, entities.EdgeFamilyship),
			Owner:      r.hasEdge(ref, subject, entities.EdgeOwnership),
		})
	}

	slices.SortFunc(rows, func(a, b domain.CandidateRow) int {
		return strings.Compare(a.Key, b.Key)
	})
	return rows, nil
}

func (r *MemoryGraphRepository) ListOwned(_ context.Context, owner entities.NodeRef) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.nodes[owner]; !ok {
		return nil, notFound(owner)
	}

	owned := make([]string, 0)
	for edge := range r.edges {
		if edge.From == owner && edge.Kind == entities.EdgeOwnership && edge.To.Kind == entities.KindItem {
			owned = append(owned, edge.To.Key)
		}
	}
	slices.Sort(owned)
	return owned, nil
}

// detach remove todas as arestas incidentes em ref. Requer r.mu travado.
func (r *MemoryGraphRepository) detach(ref entities.NodeRef) {
	for edge := range r.edges {
		if edge.From == ref || edge.To == ref {
			delete(r.edges, edge)
		}
	}
}

func (r *MemoryGraphRepository) hasEdge(from, to entities.NodeRef, kind entities.EdgeKind) bool {
	_, ok := r.edges[entities.Edge{From: from, To: to, Kind: kind}]
	return ok
}

func cloneEntity(e *entities.Entity) entities.Entity {
	out := *e
	out.Properties = maps.Clone(e.Properties)
	return out
}
