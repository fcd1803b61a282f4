package test_seeder

import (
	"context"
	"fmt"

	"discoveryservice/src/infra/postgres"
)

type TestSeeder struct {
	pool postgres.DBPool
}

func New(pool postgres.DBPool) TestSeeder {
	return TestSeeder{pool: pool}
}

func (ts TestSeeder) TruncateTables(ctx context.Context) {
	tables := []string{
		"edges",
		"entities",
	}

	for _, table := range tables {
		_, err := ts.pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table))
		if err != nil {
			panic(fmt.Sprintf("Failed to truncate %s: %v", table, err))
		}
	}
}
