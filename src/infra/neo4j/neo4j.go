package neo4j

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
)

// Códigos do servidor para violação de constraint de unicidade.
const (
	codeConstraintValidationFailed = "Neo.ClientError.Schema.ConstraintValidationFailed"
	codeConstraintViolation        = "Neo.ClientError.Schema.ConstraintViolation"
)

func NewNeo4jClient(ctx context.Context, uri string, username string, password string, maxConnections int) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
		func(c *config.Config) {
			c.MaxConnectionPoolSize = maxConnections
			c.MaxConnectionLifetime = 30 * time.Minute
			c.ConnectionAcquisitionTimeout = 10 * time.Second
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect neo4j: %w", err)
	}

	return driver, nil
}

func IsConstraintViolation(err error) bool {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return neoErr.Code == codeConstraintValidationFailed || neoErr.Code == codeConstraintViolation
	}

	return false
}
