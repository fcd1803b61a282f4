package repositories

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"
)

// GraphStore é a interface de armazenamento consumida pelos serviços do grafo.
// Implementações: Postgres, Neo4j e memória; decoradores: cache Redis e métricas.
//
// Todas as implementações traduzem a violação de unicidade para
// domain.ErrDuplicateKey, ausência de nó para domain.ErrEntityNotFound e
// qualquer outra falha para domain.ErrStorage.
type GraphStore interface {
	// EnsureUniqueConstraint registra a unicidade da chave do tipo. created é
	// false quando a constraint já existia.
	EnsureUniqueConstraint(ctx context.Context, kind entities.Kind) (created bool, err error)

	InsertNode(ctx context.Context, kind entities.Kind, props map[string]string) (entities.Entity, error)
	FindNode(ctx context.Context, ref entities.NodeRef) (entities.Entity, error)
	// ListNodes é preguiçoso: a consulta roda quando a iteração começa e o
	// iterador só pode ser percorrido uma vez.
	ListNodes(ctx context.Context, kind entities.Kind) iter.Seq2[entities.Entity, error]
	MergeNodeProperties(ctx context.Context, ref entities.NodeRef, props map[string]string) (entities.Entity, error)
	// DeleteNode remove o nó e todas as arestas incidentes numa única operação.
	DeleteNode(ctx context.Context, ref entities.NodeRef) error
	DeleteAllNodes(ctx context.Context, kind entities.Kind) (int64, error)

	// ApplyEdgeChange executa remoção e merge como uma unidade atômica.
	ApplyEdgeChange(ctx context.Context, change entities.EdgeChange) error

	// ClassifyCandidates devolve, para cada nó do tipo candidates diferente
	// do sujeito, quais arestas existem entre eles.
	ClassifyCandidates(ctx context.Context, subject entities.NodeRef, candidates entities.Kind) ([]domain.CandidateRow, error)
	ListOwned(ctx context.Context, owner entities.NodeRef) ([]string, error)
}

// onceSeq garante que o iterador seja consumido uma única vez.
func onceSeq(run func(yield func(entities.Entity, error) bool)) iter.Seq2[entities.Entity, error] {
	var consumed atomic.Bool

	return func(yield func(entities.Entity, error) bool) {
		if consumed.Swap(true) {
			yield(entities.Entity{}, domain.ErrCursorConsumed)
			return
		}
		run(yield)
	}
}

func errSeq(err error) iter.Seq2[entities.Entity, error] {
	return onceSeq(func(yield func(entities.Entity, error) bool) {
		yield(entities.Entity{}, err)
	})
}

func notFound(ref entities.NodeRef) error {
	return fmt.Errorf("%w: %s", domain.ErrEntityNotFound, ref)
}
