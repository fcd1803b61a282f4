package postgres

import (
	"context"
	"fmt"
)

// Schema cria as tabelas do grafo. A unicidade da chave por tipo não faz
// parte do schema: é registrada por tipo via EnsureUniqueConstraint.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
	id          BIGSERIAL PRIMARY KEY,
	type        TEXT        NOT NULL,
	reference   TEXT        NOT NULL,
	properties  JSONB       NOT NULL DEFAULT '{}'::jsonb,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS entities_type_reference_idx ON entities (type, reference);

CREATE TABLE IF NOT EXISTS edges (
	id                 BIGSERIAL PRIMARY KEY,
	left_entity_id     BIGINT      NOT NULL REFERENCES entities (id) ON DELETE CASCADE,
	right_entity_id    BIGINT      NOT NULL REFERENCES entities (id) ON DELETE CASCADE,
	relationship_type  TEXT        NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (left_entity_id, right_entity_id, relationship_type)
);

CREATE INDEX IF NOT EXISTS edges_right_entity_idx ON edges (right_entity_id, relationship_type);

-- o Debezium só recebe a linha inteira no 'before' de UPDATE/DELETE com FULL
ALTER TABLE entities REPLICA IDENTITY FULL;
ALTER TABLE edges REPLICA IDENTITY FULL;
`

// EnsureSchema é idempotente.
func EnsureSchema(ctx context.Context, pool DBPool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply graph schema: %w", err)
	}
	return nil
}
