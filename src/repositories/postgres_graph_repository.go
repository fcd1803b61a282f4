package repositories

import (
	"context"
	"fmt"
	"iter"
	"time"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"
	"discoveryservice/src/infra/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const entityColumns = `id, type, reference, properties, created_at, updated_at`

// PostgresGraphRepository persiste o grafo nas tabelas entities e edges.
// Leituras usam readPool e escritas writePool; com réplicas, leituras logo
// após uma escrita podem não enxergá-la.
type PostgresGraphRepository struct {
	readPool  postgres.DBPool
	writePool postgres.DBPool
}

func NewPostgresGraphRepository(readPool postgres.DBPool, writePool postgres.DBPool) *PostgresGraphRepository {
	return &PostgresGraphRepository{readPool: readPool, writePool: writePool}
}

func uniqueIndexName(kind entities.Kind) string {
	return fmt.Sprintf("entities_uniq_%s_%s", kind, kind.KeyField())
}

func (r *PostgresGraphRepository) EnsureUniqueConstraint(ctx context.Context, kind entities.Kind) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidField, kind)
	}
	indexName := uniqueIndexName(kind)

	var exists bool
	err := r.writePool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE schemaname = current_schema() AND indexname = $1)`,
		indexName,
	).Scan(&exists)
	if err != nil {
		return false, domain.StorageError("PostgresGraphRepository.EnsureUniqueConstraint", err)
	}
	if exists {
		return false, nil
	}

	// kind já foi validado; o literal não vem de entrada externa.
	ddl := fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS %s ON entities (reference) WHERE type = '%s'`,
		pgx.Identifier{indexName}.Sanitize(), kind,
	)
	if _, err := r.writePool.Exec(ctx, ddl); err != nil {
		if postgres.IsDuplicateObject(err) {
			return false, nil
		}
		return false, domain.StorageError("PostgresGraphRepository.EnsureUniqueConstraint", err)
	}

	return true, nil
}

func (r *PostgresGraphRepository) InsertNode(ctx context.Context, kind entities.Kind, props map[string]string) (entities.Entity, error) {
	key := props[kind.KeyField()]
	if key == "" {
		return entities.Entity{}, fmt.Errorf("%w: %s", domain.ErrMissingField, kind.KeyField())
	}

	query := `
		INSERT INTO entities (type, reference, properties)
		VALUES ($1, $2, $3)
		RETURNING ` + entityColumns

	entity, err := scanEntity(r.writePool.QueryRow(ctx, query, string(kind), key, props))
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return entities.Entity{}, domain.DuplicateKeyError(kind.KeyField(), key)
		}
		return entities.Entity{}, domain.StorageError("PostgresGraphRepository.InsertNode", err)
	}

	return entity, nil
}

func (r *PostgresGraphRepository) FindNode(ctx context.Context, ref entities.NodeRef) (entities.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE type = $1 AND reference = $2`

	entity, err := scanEntity(r.readPool.QueryRow(ctx, query, string(ref.Kind), ref.Key))
	if err != nil {
		if postgres.IsNoRows(err) {
			return entities.Entity{}, notFound(ref)
		}
		return entities.Entity{}, domain.StorageError("PostgresGraphRepository.FindNode", err)
	}

	return entity, nil
}

func (r *PostgresGraphRepository) ListNodes(ctx context.Context, kind entities.Kind) iter.Seq2[entities.Entity, error] {
	return onceSeq(func(yield func(entities.Entity, error) bool) {
		query := `SELECT ` + entityColumns + ` FROM entities WHERE type = $1 ORDER BY reference`

		rows, err := r.readPool.Query(ctx, query, string(kind))
		if err != nil {
			yield(entities.Entity{}, domain.StorageError("PostgresGraphRepository.ListNodes", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			entity, err := scanEntity(rows)
			if err != nil {
				yield(entities.Entity{}, domain.StorageError("PostgresGraphRepository.ListNodes", err))
				return
			}
			if !yield(entity, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(entities.Entity{}, domain.StorageError("PostgresGraphRepository.ListNodes", err))
		}
	})
}

func (r *PostgresGraphRepository) MergeNodeProperties(ctx context.Context, ref entities.NodeRef, props map[string]string) (entities.Entity, error) {
	// O merge JSONB preserva as chaves não enviadas; se o campo chave vier no
	// patch, a reference acompanha.
	query := `
		UPDATE entities
		SET
			properties = properties || $3::jsonb,
			reference  = COALESCE($3::jsonb ->> $4::text, reference),
			updated_at = NOW()
		WHERE type = $1 AND reference = $2
		RETURNING ` + entityColumns

	entity, err := scanEntity(r.writePool.QueryRow(ctx, query, string(ref.Kind), ref.Key, props, ref.Kind.KeyField()))
	if err != nil {
		if postgres.IsNoRows(err) {
			return entities.Entity{}, notFound(ref)
		}
		if postgres.IsUniqueViolation(err) {
			return entities.Entity{}, domain.DuplicateKeyError(ref.Kind.KeyField(), props[ref.Kind.KeyField()])
		}
		return entities.Entity{}, domain.StorageError("PostgresGraphRepository.MergeNodeProperties", err)
	}

	return entity, nil
}

func (r *PostgresGraphRepository) DeleteNode(ctx context.Context, ref entities.NodeRef) error {
	tx, err := r.writePool.Begin(ctx)
	if err != nil {
		return domain.StorageError("PostgresGraphRepository.DeleteNode - failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	// 1. Trava o nó para que nenhuma aresta nova apareça durante a remoção.
	var id int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM entities WHERE type = $1 AND reference = $2 FOR UPDATE`,
		string(ref.Kind), ref.Key,
	).Scan(&id)
	if err != nil {
		if postgres.IsNoRows(err) {
			return notFound(ref)
		}
		return domain.StorageError("PostgresGraphRepository.DeleteNode", err)
	}

	// 2. Remove todas as arestas incidentes, de qualquer tipo e direção.
	if _, err := tx.Exec(ctx, `DELETE FROM edges WHERE left_entity_id = $1 OR right_entity_id = $1`, id); err != nil {
		return domain.StorageError("PostgresGraphRepository.DeleteNode - failed to delete edges", err)
	}

	// 3. Remove o nó.
	if _, err := tx.Exec(ctx, `DELETE FROM entities WHERE id = $1`, id); err != nil {
		return domain.StorageError("PostgresGraphRepository.DeleteNode - failed to delete entity", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.StorageError("PostgresGraphRepository.DeleteNode - failed to commit", err)
	}
	return nil
}

func (r *PostgresGraphRepository) DeleteAllNodes(ctx context.Context, kind entities.Kind) (int64, error) {
	tx, err := r.writePool.Begin(ctx)
	if err != nil {
		return 0, domain.StorageError("PostgresGraphRepository.DeleteAllNodes - failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM edges
		WHERE left_entity_id IN (SELECT id FROM entities WHERE type = $1)
		   OR right_entity_id IN (SELECT id FROM entities WHERE type = $1)`,
		string(kind),
	)
	if err != nil {
		return 0, domain.StorageError("PostgresGraphRepository.DeleteAllNodes - failed to delete edges", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM entities WHERE type = $1`, string(kind))
	if err != nil {
		return 0, domain.StorageError("PostgresGraphRepository.DeleteAllNodes - failed to delete entities", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, domain.StorageError("PostgresGraphRepository.DeleteAllNodes - failed to commit", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresGraphRepository) ApplyEdgeChange(ctx context.Context, change entities.EdgeChange) error {
	tx, err := r.writePool.Begin(ctx)
	if err != nil {
		return domain.StorageError("PostgresGraphRepository.ApplyEdgeChange - failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	// 1. Trava as duas pontas em ordem de id; transições concorrentes sobre o
	// mesmo par ficam serializadas e não há deadlock entre (A,B) e (B,A).
	rows, err := tx.Query(ctx, `
		SELECT id, type, reference
		FROM entities
		WHERE (type = $1 AND reference = $2) OR (type = $3 AND reference = $4)
		ORDER BY id
		FOR NO KEY UPDATE`,
		string(change.From.Kind), change.From.Key, string(change.To.Kind), change.To.Key,
	)
	if err != nil {
		return domain.StorageError("PostgresGraphRepository.ApplyEdgeChange - failed to lock endpoints", err)
	}

	ids := make(map[entities.NodeRef]int64, 2)
	for rows.Next() {
		var (
			id        int64
			kind, key string
		)
		if err := rows.Scan(&id, &kind, &key); err != nil {
			rows.Close()
			return domain.StorageError("PostgresGraphRepository.ApplyEdgeChange - failed to scan endpoint", err)
		}
		ids[entities.NodeRef{Kind: entities.Kind(kind), Key: key}] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.StorageError("PostgresGraphRepository.ApplyEdgeChange - failed to lock endpoints", err)
	}

	fromID, ok := ids[change.From]
	if !ok {
		return notFound(change.From)
	}
	toID, ok := ids[change.To]
	if !ok {
		return notFound(change.To)
	}

	// 2. Remove a aresta concorrente.
	if change.Remove != "" {
		_, err := tx.Exec(ctx,
			`DELETE FROM edges WHERE left_entity_id = $1 AND right_entity_id = $2 AND relationship_type = $3`,
			fromID, toID, string(change.Remove),
		)
		if err != nil {
			return domain.StorageError("PostgresGraphRepository.ApplyEdgeChange - failed to remove edge", err)
		}
	}

	// 3. Garante a nova aresta (idempotente).
	if change.Merge != "" {
		_, err := tx.Exec(ctx, `
			INSERT INTO edges (left_entity_id, right_entity_id, relationship_type)
			VALUES ($1, $2, $3)
			ON CONFLICT (left_entity_id, right_entity_id, relationship_type) DO NOTHING`,
			fromID, toID, string(change.Merge),
		)
		if err != nil {
			return domain.StorageError("PostgresGraphRepository.ApplyEdgeChange - failed to merge edge", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.StorageError("PostgresGraphRepository.ApplyEdgeChange - failed to commit", err)
	}
	return nil
}

func (r *PostgresGraphRepository) ClassifyCandidates(ctx context.Context, subject entities.NodeRef, candidates entities.Kind) ([]domain.CandidateRow, error) {
	// Uma linha por candidato. Sem candidatos, o LEFT JOIN devolve uma única
	// linha com reference nula; sem sujeito, nenhuma linha.
	query := `
		WITH subject AS (
			SELECT id FROM entities WHERE type = $1 AND reference = $2
		)
		SELECT
			c.reference,
			EXISTS (
				SELECT 1 FROM edges e
				WHERE e.left_entity_id = s.id AND e.right_entity_id = c.id AND e.relationship_type = $4
			) AS friendship,
			EXISTS (
				SELECT 1 FROM edges e
				WHERE e.left_entity_id = s.id AND e.right_entity_id = c.id AND e.relationship_type = $5
			) AS familyship,
			EXISTS (
				SELECT 1 FROM edges e
				WHERE e.left_entity_id = c.id AND e.right_entity_id = s.id AND e.relationship_type = $6
			) AS owner
		FROM subject s
		LEFT JOIN entities c ON c.type = $3 AND c.id <> s.id
		ORDER BY c.reference`

	rows, err := r.readPool.Query(ctx, query,
		string(subject.Kind), subject.Key, string(candidates),
		string(entities.EdgeFriendship), string(entities.EdgeFamilyship), string(entities.EdgeOwnership),
	)
	if err != nil {
		return nil, domain.StorageError("PostgresGraphRepository.ClassifyCandidates", err)
	}
	defer rows.Close()

	var (
		found  bool
		result = make([]domain.CandidateRow, 0)
	)
	for rows.Next() {
		found = true

		var (
			key pgtype.Text
			row domain.CandidateRow
		)
		if err := rows.Scan(&key, &row.Friendship, &row.Familyship, &row.Owner); err != nil {
			return nil, domain.StorageError("PostgresGraphRepository.ClassifyCandidates - failed to scan row", err)
		}
		if !key.Valid {
			continue
		}
		row.Key = key.String
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("PostgresGraphRepository.ClassifyCandidates", err)
	}

	if !found {
		return nil, notFound(subject)
	}
	return result, nil
}

func (r *PostgresGraphRepository) ListOwned(ctx context.Context, owner entities.NodeRef) ([]string, error) {
	query := `
		SELECT i.reference
		FROM entities a
		LEFT JOIN (
			edges e JOIN entities i ON i.id = e.right_entity_id AND i.type = $4
		) ON e.left_entity_id = a.id AND e.relationship_type = $3
		WHERE a.type = $1 AND a.reference = $2
		ORDER BY i.reference`

	rows, err := r.readPool.Query(ctx, query,
		string(owner.Kind), owner.Key, string(entities.EdgeOwnership), string(entities.KindItem),
	)
	if err != nil {
		return nil, domain.StorageError("PostgresGraphRepository.ListOwned", err)
	}
	defer rows.Close()

	var (
		found bool
		owned = make([]string, 0)
	)
	for rows.Next() {
		found = true

		var code pgtype.Text
		if err := rows.Scan(&code); err != nil {
			return nil, domain.StorageError("PostgresGraphRepository.ListOwned - failed to scan row", err)
		}
		if code.Valid {
			owned = append(owned, code.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("PostgresGraphRepository.ListOwned", err)
	}

	if !found {
		return nil, notFound(owner)
	}
	return owned, nil
}

func scanEntity(row pgx.Row) (entities.Entity, error) {
	var (
		entity     entities.Entity
		kind       string
		properties map[string]string
		createdAt  time.Time
		updatedAt  time.Time
	)
	if err := row.Scan(&entity.ID, &kind, &entity.Key, &properties, &createdAt, &updatedAt); err != nil {
		return entities.Entity{}, err
	}

	entity.Kind = entities.Kind(kind)
	entity.Properties = properties
	entity.CreatedAt = createdAt.UTC()
	entity.UpdatedAt = updatedAt.UTC()
	return entity, nil
}
