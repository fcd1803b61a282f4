package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	httpadapter "discoveryservice/src/adapters/http"
	"discoveryservice/src/helper/env"
	"discoveryservice/src/infra/metrics"
	neo4jinfra "discoveryservice/src/infra/neo4j"
	"discoveryservice/src/infra/postgres"
	"discoveryservice/src/infra/redis"
	"discoveryservice/src/repositories"
	"discoveryservice/src/services/graph"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// registries agrupa os dois Node Registries para o fx.
type registries struct {
	fx.Out

	Accounts *graph.NodeRegistry `name:"accounts"`
	Items    *graph.NodeRegistry `name:"items"`
}

func main() {
	log.SetOutput(os.Stdout)
	log.Println("Starting API server with Uber Fx...")

	app := fx.New(
		// Providers
		fx.Provide(
			newLogger,
			metrics.NewRegistry,
			newGraphStore,
			newRegistries,
			graph.NewRelationshipManager,
			graph.NewClassificationEngine,
			newServer,
		),

		// Invocations
		fx.Invoke(ensureConstraints, registerServerHooks),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	<-app.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		log.Printf("Failed to stop application gracefully: %v", err)
	}
}

func newLogger() *slog.Logger {
	logLevel := env.GetString("LOG_LEVEL", "info")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// newGraphStore monta o backend escolhido em STORE_BACKEND, instrumentado e,
// se CACHE_ENABLED, com o cache de classificação por cima.
func newGraphStore(lc fx.Lifecycle, logger *slog.Logger, registry *prometheus.Registry) (repositories.GraphStore, error) {
	var store repositories.GraphStore

	backend := env.GetString("STORE_BACKEND", "postgres")
	switch backend {
	case "postgres":
		readWriteClient, err := newReadWriteClient()
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			readWriteClient.Close()
			return nil
		}})

		if err := postgres.EnsureSchema(context.Background(), readWriteClient.GetWritePool()); err != nil {
			return nil, err
		}
		store = repositories.NewPostgresGraphRepository(readWriteClient.GetReadPool(), readWriteClient.GetWritePool())

	case "neo4j":
		driver, err := neo4jinfra.NewNeo4jClient(context.Background(),
			env.MustGetString("NEO4J_URI"),
			env.GetString("NEO4J_USER", "neo4j"),
			env.MustGetString("NEO4J_PASSWORD"),
			env.GetInt("NEO4J_MAX_POOL_CONNECTIONS", 50),
		)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: driver.Close})
		store = repositories.NewNeo4jGraphRepository(driver, env.GetString("NEO4J_DATABASE", "neo4j"))

	case "memory":
		store = repositories.NewMemoryGraphRepository()

	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", backend)
	}

	store = repositories.NewInstrumentedGraphRepository(store, repositories.NewStoreMetrics(registry))

	if env.GetBool("CACHE_ENABLED", false) {
		redisClient := newRedisClient()
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return redisClient.Close() }})
		store = repositories.NewCachedGraphRepository(store, redisClient, logger)
	}

	logger.Info("Graph store configured", "backend", backend, "cache", env.GetBool("CACHE_ENABLED", false))
	return store, nil
}

func newReadWriteClient() (*postgres.ReadWriteClient, error) {
	dbWriteHost := env.MustGetString("DB_WRITE_HOST")
	dbReadHost := env.GetString("DB_READ_HOST", dbWriteHost)
	dbReadPort := env.GetString("DB_READ_PORT", "5432")
	dbWritePort := env.GetString("DB_WRITE_PORT", "5432")
	dbname := env.MustGetString("DB_NAME")
	dbUser := env.MustGetString("DB_USER")
	dbPassword := env.MustGetString("DB_PASSWORD")
	maxConnections := env.GetInt("DB_MAX_POOL_CONNECTIONS", 25)

	return postgres.NewReadWriteClient(dbReadHost, dbWriteHost, dbReadPort, dbWritePort, dbname, dbUser, dbPassword, maxConnections)
}

func newRedisClient() *redis.RedisClient {
	redisHosts := env.MustGetString("REDIS_HOSTS")
	redisPoolSize := env.GetInt("REDIS_POOL_SIZE", 50)
	redisDefaultTTL := env.GetSeconds("REDIS_DEFAULT_TTL_SECONDS", 120)

	return redis.NewRedisClient(redisHosts, redisPoolSize, redisDefaultTTL)
}

func newRegistries(store repositories.GraphStore) registries {
	return registries{
		Accounts: graph.NewAccountRegistry(store),
		Items:    graph.NewItemRegistry(store),
	}
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Registry       *prometheus.Registry
	Accounts       *graph.NodeRegistry `name:"accounts"`
	Items          *graph.NodeRegistry `name:"items"`
	Relationships  *graph.RelationshipManager
	Classification *graph.ClassificationEngine
}

func newServer(p serverParams) *httpadapter.Server {
	addr := env.GetString("SERVER_ADDR", ":8888")
	return httpadapter.NewServer(p.Logger, addr, p.Accounts, p.Items, p.Relationships, p.Classification, metrics.Handler(p.Registry))
}

type constraintParams struct {
	fx.In

	Logger   *slog.Logger
	Accounts *graph.NodeRegistry `name:"accounts"`
	Items    *graph.NodeRegistry `name:"items"`
}

// ensureConstraints sobe as constraints de unicidade antes de aceitar tráfego.
func ensureConstraints(p constraintParams) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, registry := range []*graph.NodeRegistry{p.Accounts, p.Items} {
		created, err := registry.EnsureConstraint(ctx)
		if err != nil {
			return fmt.Errorf("ensure constraint for %s: %w", registry.Kind(), err)
		}
		p.Logger.Info("Unique constraint ready", "kind", registry.Kind(), "created", created)
	}
	return nil
}

// registerServerHooks registers lifecycle hooks for the HTTP server
func registerServerHooks(lc fx.Lifecycle, logger *slog.Logger, srv *httpadapter.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("Server failed", "error", err)
					shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			logger.Info("Shutting down server...")
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server forced to shutdown", "error", err)
				return err
			}
			logger.Info("Server exited gracefully")
			return nil
		},
	})
}
