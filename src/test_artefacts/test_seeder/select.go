package test_seeder

import (
	"context"

	"discoveryservice/src/domain/entities"
)

// CountEdgesTouching conta as arestas (de qualquer tipo) que tocam o nó.
func (ts TestSeeder) CountEdgesTouching(ctx context.Context, ref entities.NodeRef) (int, error) {
	query := `SELECT COUNT(*)
			  FROM edges e
			  JOIN entities ent ON e.left_entity_id = ent.id OR e.right_entity_id = ent.id
			  WHERE ent.type = $1 AND ent.reference = $2`

	var count int
	err := ts.pool.QueryRow(ctx, query, string(ref.Kind), ref.Key).Scan(&count)
	return count, err
}

func (ts TestSeeder) SelectEdgeKinds(ctx context.Context, from, to entities.NodeRef) ([]entities.EdgeKind, error) {
	query := `SELECT e.relationship_type
			  FROM edges e
			  JOIN entities l ON l.id = e.left_entity_id
			  JOIN entities r ON r.id = e.right_entity_id
			  WHERE l.type = $1 AND l.reference = $2 AND r.type = $3 AND r.reference = $4
			  ORDER BY e.relationship_type`

	rows, err := ts.pool.Query(ctx, query, string(from.Kind), from.Key, string(to.Kind), to.Key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kinds []entities.EdgeKind
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return nil, err
		}
		kinds = append(kinds, entities.EdgeKind(kind))
	}

	return kinds, rows.Err()
}
