package test_seeder

import (
	"context"
	"fmt"

	"discoveryservice/src/domain/entities"
)

// InsertEntity insere o nó direto na tabela, sem passar pela validação.
func (ts TestSeeder) InsertEntity(ctx context.Context, kind entities.Kind, properties map[string]string) int64 {
	query := `
		INSERT INTO entities (type, reference, properties)
		VALUES ($1, $2, $3) RETURNING id`

	var id int64
	err := ts.pool.QueryRow(ctx, query,
		string(kind),
		properties[kind.KeyField()],
		properties,
	).Scan(&id)

	if err != nil {
		panic(fmt.Sprintf("Seeder.InsertEntity failed: %v", err))
	}
	return id
}

// InsertEdge insere uma aresta entre dois ids já existentes.
func (ts TestSeeder) InsertEdge(ctx context.Context, leftID, rightID int64, kind entities.EdgeKind) {
	query := `
		INSERT INTO edges (left_entity_id, right_entity_id, relationship_type)
		VALUES ($1, $2, $3)`

	if _, err := ts.pool.Exec(ctx, query, leftID, rightID, string(kind)); err != nil {
		panic(fmt.Sprintf("Seeder.InsertEdge failed: %v", err))
	}
}
