package repositories

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"
	neo4jinfra "discoveryservice/src/infra/neo4j"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Propriedades de controle gravadas em todo nó; ficam fora de Entity.Properties.
const (
	neo4jCreatedAt = "created_at"
	neo4jUpdatedAt = "updated_at"
)

// Neo4jGraphRepository guarda contas e itens como nós rotulados (Account,
// Item) e as arestas como relacionamentos dirigidos homônimos ao EdgeKind.
// Toda escrita roda numa transação explícita, sem retry automático.
type Neo4jGraphRepository struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewNeo4jGraphRepository(driver neo4j.DriverWithContext, database string) *Neo4jGraphRepository {
	return &Neo4jGraphRepository{driver: driver, database: database}
}

func (r *Neo4jGraphRepository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

// write executa fn numa transação explícita e faz commit se fn não falhar.
func (r *Neo4jGraphRepository) write(ctx context.Context, fn func(tx neo4j.ExplicitTransaction) error) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	defer tx.Close(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// match devolve o padrão de nó para ref, ligando a chave ao parâmetro param.
func match(variable string, kind entities.Kind, param string) string {
	return fmt.Sprintf("(%s:%s {%s: $%s})", variable, kind.Label(), kind.KeyField(), param)
}

func (r *Neo4jGraphRepository) EnsureUniqueConstraint(ctx context.Context, kind entities.Kind) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidField, kind)
	}

	query := fmt.Sprintf(
		"CREATE CONSTRAINT %s_%s_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		kind, kind.KeyField(), kind.Label(), kind.KeyField(),
	)

	var created bool
	err := r.write(ctx, func(tx neo4j.ExplicitTransaction) error {
		result, err := tx.Run(ctx, query, nil)
		if err != nil {
			return err
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return err
		}
		created = summary.Counters().ConstraintsAdded() > 0
		return nil
	})
	if err != nil {
		return false, domain.StorageError("Neo4jGraphRepository.EnsureUniqueConstraint", err)
	}

	return created, nil
}

func (r *Neo4jGraphRepository) InsertNode(ctx context.Context, kind entities.Kind, props map[string]string) (entities.Entity, error) {
	key := props[kind.KeyField()]
	if key == "" {
		return entities.Entity{}, fmt.Errorf("%w: %s", domain.ErrMissingField, kind.KeyField())
	}

	query := fmt.Sprintf(
		"CREATE (n:%s) SET n = $props, n.%s = datetime(), n.%s = datetime() RETURN n",
		kind.Label(), neo4jCreatedAt, neo4jUpdatedAt,
	)

	var entity entities.Entity
	err := r.write(ctx, func(tx neo4j.ExplicitTransaction) error {
		var err error
		entity, err = singleNode(ctx, tx, kind, query, map[string]any{"props": toParams(props)})
		return err
	})
	if err != nil {
		if neo4jinfra.IsConstraintViolation(err) {
			return entities.Entity{}, domain.DuplicateKeyError(kind.KeyField(), key)
		}
		return entities.Entity{}, domain.StorageError("Neo4jGraphRepository.InsertNode", err)
	}

	return entity, nil
}

func (r *Neo4jGraphRepository) FindNode(ctx context.Context, ref entities.NodeRef) (entities.Entity, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, "MATCH "+match("n", ref.Kind, "key")+" RETURN n", map[string]any{"key": ref.Key})
	if err != nil {
		return entities.Entity{}, domain.StorageError("Neo4jGraphRepository.FindNode", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return entities.Entity{}, domain.StorageError("Neo4jGraphRepository.FindNode", err)
		}
		return entities.Entity{}, notFound(ref)
	}

	return recordToEntity(ref.Kind, result.Record())
}

func (r *Neo4jGraphRepository) ListNodes(ctx context.Context, kind entities.Kind) iter.Seq2[entities.Entity, error] {
	return onceSeq(func(yield func(entities.Entity, error) bool) {
		session := r.session(ctx, neo4j.AccessModeRead)
		defer session.Close(ctx)

		query := fmt.Sprintf("MATCH (n:%s) RETURN n ORDER BY n.%s", kind.Label(), kind.KeyField())
		result, err := session.Run(ctx, query, nil)
		if err != nil {
			yield(entities.Entity{}, domain.StorageError("Neo4jGraphRepository.ListNodes", err))
			return
		}

		for result.Next(ctx) {
			entity, err := recordToEntity(kind, result.Record())
			if !yield(entity, err) || err != nil {
				return
			}
		}
		if err := result.Err(); err != nil {
			yield(entities.Entity{}, domain.StorageError("Neo4jGraphRepository.ListNodes", err))
		}
	})
}

func (r *Neo4jGraphRepository) MergeNodeProperties(ctx context.Context, ref entities.NodeRef, props map[string]string) (entities.Entity, error) {
	query := fmt.Sprintf(
		"MATCH %s SET n += $props, n.%s = datetime() RETURN n",
		match("n", ref.Kind, "key"), neo4jUpdatedAt,
	)

	var entity entities.Entity
	err := r.write(ctx, func(tx neo4j.ExplicitTransaction) error {
		var err error
		entity, err = singleNode(ctx, tx, ref.Kind, query, map[string]any{"key": ref.Key, "props": toParams(props)})
		return err
	})
	if err != nil {
		if neo4jinfra.IsConstraintViolation(err) {
			return entities.Entity{}, domain.DuplicateKeyError(ref.Kind.KeyField(), props[ref.Kind.KeyField()])
		}
		if errors.Is(err, errNoNode) {
			return entities.Entity{}, notFound(ref)
		}
		return entities.Entity{}, domain.StorageError("Neo4jGraphRepository.MergeNodeProperties", err)
	}

	return entity, nil
}

func (r *Neo4jGraphRepository) DeleteNode(ctx context.Context, ref entities.NodeRef) error {
	query := "MATCH " + match("n", ref.Kind, "key") + " DETACH DELETE n RETURN count(*) AS deleted"

	deleted, err := r.deleteCount(ctx, query, map[string]any{"key": ref.Key})
	if err != nil {
		return domain.StorageError("Neo4jGraphRepository.DeleteNode", err)
	}
	if deleted == 0 {
		return notFound(ref)
	}
	return nil
}

func (r *Neo4jGraphRepository) DeleteAllNodes(ctx context.Context, kind entities.Kind) (int64, error) {
	query := fmt.Sprintf("MATCH (n:%s) DETACH DELETE n RETURN count(*) AS deleted", kind.Label())

	deleted, err := r.deleteCount(ctx, query, nil)
	if err != nil {
		return 0, domain.StorageError("Neo4jGraphRepository.DeleteAllNodes", err)
	}
	return deleted, nil
}

func (r *Neo4jGraphRepository) deleteCount(ctx context.Context, query string, params map[string]any) (int64, error) {
	var deleted int64
	err := r.write(ctx, func(tx neo4j.ExplicitTransaction) error {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return err
		}
		count, _ := record.Get("deleted")
		deleted, _ = count.(int64)
		return nil
	})
	return deleted, err
}

type lockTarget struct {
	ref   entities.NodeRef
	param string
}

func (r *Neo4jGraphRepository) ApplyEdgeChange(ctx context.Context, change entities.EdgeChange) error {
	params := map[string]any{"fromKey": change.From.Key, "toKey": change.To.Key}
	pair := "MATCH " + match("a", change.From.Kind, "fromKey") + " MATCH " + match("b", change.To.Kind, "toKey")

	// Trava as pontas sempre na mesma ordem para que (A,B) e (B,A)
	// concorrentes não entrem em deadlock.
	targets := []lockTarget{{change.From, "fromKey"}, {change.To, "toKey"}}
	slices.SortFunc(targets, func(x, y lockTarget) int {
		return strings.Compare(x.ref.String(), y.ref.String())
	})

	err := r.write(ctx, func(tx neo4j.ExplicitTransaction) error {
		for _, target := range targets {
			lock := "MATCH " + match("n", target.ref.Kind, target.param) +
				" SET n._lock = true REMOVE n._lock RETURN count(n) AS locked"
			result, err := tx.Run(ctx, lock, params)
			if err != nil {
				return err
			}
			record, err := result.Single(ctx)
			if err != nil {
				return err
			}
			if locked, _ := record.Get("locked"); locked == int64(0) {
				return notFound(target.ref)
			}
		}

		if change.Remove != "" {
			query := fmt.Sprintf("%s MATCH (a)-[rel:%s]->(b) DELETE rel", pair, change.Remove)
			if _, err := runConsume(ctx, tx, query, params); err != nil {
				return err
			}
		}
		if change.Merge != "" {
			query := fmt.Sprintf("%s MERGE (a)-[:%s]->(b)", pair, change.Merge)
			if _, err := runConsume(ctx, tx, query, params); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, domain.ErrEntityNotFound) {
		return err
	}
	if err != nil {
		return domain.StorageError("Neo4jGraphRepository.ApplyEdgeChange", err)
	}
	return nil
}

func (r *Neo4jGraphRepository) ClassifyCandidates(ctx context.Context, subject entities.NodeRef, candidates entities.Kind) ([]domain.CandidateRow, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH %s
		OPTIONAL MATCH (c:%s) WHERE c <> s
		OPTIONAL MATCH (s)-[f:%s]->(c)
		OPTIONAL MATCH (s)-[m:%s]->(c)
		OPTIONAL MATCH (c)-[o:%s]->(s)
		RETURN c.%s AS key, count(f) > 0 AS friendship, count(m) > 0 AS familyship, count(o) > 0 AS owner
		ORDER BY key`,
		match("s", subject.Kind, "key"), candidates.Label(),
		entities.EdgeFriendship, entities.EdgeFamilyship, entities.EdgeOwnership,
		candidates.KeyField(),
	)

	result, err := session.Run(ctx, query, map[string]any{"key": subject.Key})
	if err != nil {
		return nil, domain.StorageError("Neo4jGraphRepository.ClassifyCandidates", err)
	}

	var (
		found bool
		rows  = make([]domain.CandidateRow, 0)
	)
	for result.Next(ctx) {
		found = true
		record := result.Record()

		key, _ := record.Get("key")
		keyStr, ok := key.(string)
		if !ok {
			continue
		}

		row := domain.CandidateRow{Key: keyStr}
		row.Friendship = recordBool(record, "friendship")
		row.Familyship = recordBool(record, "familyship")
		row.Owner = recordBool(record, "owner")
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, domain.StorageError("Neo4jGraphRepository.ClassifyCandidates", err)
	}

	if !found {
		return nil, notFound(subject)
	}
	return rows, nil
}

func (r *Neo4jGraphRepository) ListOwned(ctx context.Context, owner entities.NodeRef) ([]string, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH %s
		OPTIONAL MATCH (a)-[:%s]->(i:%s)
		RETURN i.%s AS code
		ORDER BY code`,
		match("a", owner.Kind, "key"), entities.EdgeOwnership, entities.KindItem.Label(), entities.KindItem.KeyField(),
	)

	result, err := session.Run(ctx, query, map[string]any{"key": owner.Key})
	if err != nil {
		return nil, domain.StorageError("Neo4jGraphRepository.ListOwned", err)
	}

	var (
		found bool
		owned = make([]string, 0)
	)
	for result.Next(ctx) {
		found = true
		if code, ok := result.Record().Values[0].(string); ok {
			owned = append(owned, code)
		}
	}
	if err := result.Err(); err != nil {
		return nil, domain.StorageError("Neo4jGraphRepository.ListOwned", err)
	}

	if !found {
		return nil, notFound(owner)
	}
	return owned, nil
}

var errNoNode = fmt.Errorf("%w: no node returned", domain.ErrEntityNotFound)

func singleNode(ctx context.Context, tx neo4j.ExplicitTransaction, kind entities.Kind, query string, params map[string]any) (entities.Entity, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return entities.Entity{}, err
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return entities.Entity{}, err
		}
		return entities.Entity{}, errNoNode
	}
	return recordToEntity(kind, result.Record())
}

func runConsume(ctx context.Context, tx neo4j.ExplicitTransaction, query string, params map[string]any) (neo4j.ResultSummary, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return result.Consume(ctx)
}

func recordToEntity(kind entities.Kind, record *neo4j.Record) (entities.Entity, error) {
	value, ok := record.Get("n")
	if !ok {
		return entities.Entity{}, fmt.Errorf("%w: record without node", domain.ErrStorage)
	}
	node, ok := value.(neo4j.Node)
	if !ok {
		return entities.Entity{}, fmt.Errorf("%w: unexpected value %T", domain.ErrStorage, value)
	}

	entity := entities.Entity{
		Kind:       kind,
		Properties: make(map[string]string, len(node.Props)),
	}
	for name, prop := range node.Props {
		switch name {
		case neo4jCreatedAt:
			entity.CreatedAt, _ = prop.(time.Time)
		case neo4jUpdatedAt:
			entity.UpdatedAt, _ = prop.(time.Time)
		default:
			if s, ok := prop.(string); ok {
				entity.Properties[name] = s
			}
		}
	}
	entity.Key = entity.Properties[kind.KeyField()]
	entity.CreatedAt = entity.CreatedAt.UTC()
	entity.UpdatedAt = entity.UpdatedAt.UTC()

	return entity, nil
}

func recordBool(record *neo4j.Record, key string) bool {
	value, _ := record.Get(key)
	b, _ := value.(bool)
	return b
}

func toParams(props map[string]string) map[string]any {
	params := make(map[string]any, len(props))
	for k, v := range props {
		params[k] = v
	}
	return params
}
