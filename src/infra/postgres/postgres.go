package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Códigos SQLSTATE tratados explicitamente.
const (
	codeUniqueViolation = "23505"
	codeDuplicateTable  = "42P07"
)

// DBPool é o subconjunto de *pgxpool.Pool usado pelos repositórios.
type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DBPool = (*pgxpool.Pool)(nil)

func NewPostgresClient(host string, port string, dbname string, username string, password string, maxConnections int) (*pgxpool.Pool, error) {
	dbConfig := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", username, password, host, port, dbname)

	config, err := pgxpool.ParseConfig(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	config.MaxConns = int32(maxConnections) //nolint:all
	config.MinConns = 1

	// Idle timeout - economiza recursos
	config.MaxConnIdleTime = 5 * time.Minute

	// Lifetime das conexões - evita problemas de timeout do PostgreSQL
	config.MaxConnLifetime = 30 * time.Minute

	config.HealthCheckPeriod = 1 * time.Minute

	config.ConnConfig.RuntimeParams = map[string]string{
		"timezone":                            "UTC",
		"statement_timeout":                   "30s",
		"lock_timeout":                        "10s",
		"idle_in_transaction_session_timeout": "60s",
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	return pool, nil
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeUniqueViolation
	}

	return false
}

// IsDuplicateObject cobre o CREATE INDEX concorrente: quem perde a corrida
// recebe 42P07 ou, durante a construção do índice, 23505 no catálogo.
func IsDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeDuplicateTable || pgErr.Code == codeUniqueViolation
	}

	return false
}

func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
