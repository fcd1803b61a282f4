package repositories

import (
	"context"
	"errors"
	"iter"
	"time"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"

	"github.com/prometheus/client_golang/prometheus"
)

type StoreMetrics struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

func NewStoreMetrics(registerer prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "discoveryservice",
			Subsystem: "graph_store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of graph store operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discoveryservice",
			Subsystem: "graph_store",
			Name:      "operation_errors_total",
			Help:      "Graph store operations that failed, by error class",
		}, []string{"operation", "class"}),
	}
	registerer.MustRegister(m.duration, m.errors)
	return m
}

// InstrumentedGraphRepository mede latência e erros de cada operação do store.
type InstrumentedGraphRepository struct {
	next    GraphStore
	metrics *StoreMetrics
}

func NewInstrumentedGraphRepository(next GraphStore, metrics *StoreMetrics) *InstrumentedGraphRepository {
	return &InstrumentedGraphRepository{next: next, metrics: metrics}
}

func (r *InstrumentedGraphRepository) observe(operation string, start time.Time, err error) {
	r.metrics.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		r.metrics.errors.WithLabelValues(operation, errorClass(err)).Inc()
	}
}

// errorClass reduz o erro a um rótulo de baixa cardinalidade.
func errorClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrDuplicateKey):
		return "duplicate_key"
	case errors.Is(err, domain.ErrEntityNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrMissingField), errors.Is(err, domain.ErrInvalidField):
		return "validation"
	case errors.Is(err, domain.ErrCursorConsumed):
		return "cursor_consumed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "storage"
}

func (r *InstrumentedGraphRepository) EnsureUniqueConstraint(ctx context.Context, kind entities.Kind) (created bool, err error) {
	defer func(start time.Time) { r.observe("ensure_unique_constraint", start, err) }(time.Now())
	return r.next.EnsureUniqueConstraint(ctx, kind)
}

func (r *InstrumentedGraphRepository) InsertNode(ctx context.Context, kind entities.Kind, props map[string]string) (entity entities.Entity, err error) {
	defer func(start time.Time) { r.observe("insert_node", start, err) }(time.Now())
	return r.next.InsertNode(ctx, kind, props)
}

func (r *InstrumentedGraphRepository) FindNode(ctx context.Context, ref entities.NodeRef) (entity entities.Entity, err error) {
	defer func(start time.Time) { r.observe("find_node", start, err) }(time.Now())
	return r.next.FindNode(ctx, ref)
}

// ListNodes mede da primeira até a última linha entregue.
func (r *InstrumentedGraphRepository) ListNodes(ctx context.Context, kind entities.Kind) iter.Seq2[entities.Entity, error] {
	seq := r.next.ListNodes(ctx, kind)
	return func(yield func(entities.Entity, error) bool) {
		start := time.Now()
		var failure error
		for entity, err := range seq {
			if err != nil {
				failure = err
			}
			if !yield(entity, err) {
				break
			}
		}
		r.observe("list_nodes", start, failure)
	}
}

func (r *InstrumentedGraphRepository) MergeNodeProperties(ctx context.Context, ref entities.NodeRef, props map[string]string) (entity entities.Entity, err error) {
	defer func(start time.Time) { r.observe("merge_node_properties", start, err) }(time.Now())
	return r.next.MergeNodeProperties(ctx, ref, props)
}

func (r *InstrumentedGraphRepository) DeleteNode(ctx context.Context, ref entities.NodeRef) (err error) {
	defer func(start time.Time) { r.observe("delete_node", start, err) }(time.Now())
	return r.next.DeleteNode(ctx, ref)
}

func (r *InstrumentedGraphRepository) DeleteAllNodes(ctx context.Context, kind entities.Kind) (deleted int64, err error) {
	defer func(start time.Time) { r.observe("delete_all_nodes", start, err) }(time.Now())
	return r.next.DeleteAllNodes(ctx, kind)
}

func (r *InstrumentedGraphRepository) ApplyEdgeChange(ctx context.Context, change entities.EdgeChange) (err error) {
	defer func(start time.Time) { r.observe("apply_edge_change", start, err) }(time.Now())
	return r.next.ApplyEdgeChange(ctx, change)
}

func (r *InstrumentedGraphRepository) ClassifyCandidates(ctx context.Context, subject entities.NodeRef, candidates entities.Kind) (rows []domain.CandidateRow, err error) {
	defer func(start time.Time) { r.observe("classify_candidates", start, err) }(time.Now())
	return r.next.ClassifyCandidates(ctx, subject, candidates)
}

func (r *InstrumentedGraphRepository) ListOwned(ctx context.Context, owner entities.NodeRef) (owned []string, err error) {
	defer func(start time.Time) { r.observe("list_owned", start, err) }(time.Now())
	return r.next.ListOwned(ctx, owner)
}
