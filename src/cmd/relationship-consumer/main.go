package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"discoveryservice/src/adapters/kafka/consumers"
	"discoveryservice/src/helper/env"
	"discoveryservice/src/infra/kafka"
	neo4jinfra "discoveryservice/src/infra/neo4j"
	"discoveryservice/src/infra/postgres"
	"discoveryservice/src/infra/redis"
	"discoveryservice/src/repositories"
	"discoveryservice/src/services/graph"

	"go.uber.org/fx"
)

func main() {
	log.SetOutput(os.Stdout)
	log.Println("Starting Relationship Commands Consumer with Uber Fx...")

	app := fx.New(
		// Providers
		fx.Provide(
			newLogger,
			newGraphStore,
			newKafkaClient,
			graph.NewRelationshipManager,
			newRelationshipCommandsConsumer,
		),

		// Invocations
		fx.Invoke(startConsumer),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start consumer application: %v", err)
	}

	// Wait for interrupt signal to gracefully shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("Shutting down relationship commands consumer...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()

	if err := app.Stop(stopCtx); err != nil {
		log.Printf("Failed to stop application gracefully: %v", err)
	}

	log.Println("Relationship commands consumer shutdown complete")
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

// newGraphStore aceita só backends persistentes: o consumer roda em outro
// processo e não enxergaria um store em memória.
func newGraphStore(lc fx.Lifecycle, logger *slog.Logger) (repositories.GraphStore, error) {
	var store repositories.GraphStore

	backend := env.GetString("STORE_BACKEND", "postgres")
	switch backend {
	case "postgres":
		dbWriteHost := env.MustGetString("DB_WRITE_HOST")
		readWriteClient, err := postgres.NewReadWriteClient(
			env.GetString("DB_READ_HOST", dbWriteHost),
			dbWriteHost,
			env.GetString("DB_READ_PORT", "5432"),
			env.GetString("DB_WRITE_PORT", "5432"),
			env.MustGetString("DB_NAME"),
			env.MustGetString("DB_USER"),
			env.MustGetString("DB_PASSWORD"),
			env.GetInt("DB_MAX_POOL_CONNECTIONS", 25),
		)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			readWriteClient.Close()
			return nil
		}})
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

	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q for the consumer", backend)
	}

	// o consumer também invalida o cache usado pela API
	if env.GetBool("CACHE_ENABLED", false) {
		redisClient := redis.NewRedisClient(
			env.MustGetString("REDIS_HOSTS"),
			env.GetInt("REDIS_POOL_SIZE", 50),
			env.GetSeconds("REDIS_DEFAULT_TTL_SECONDS", 120),
		)
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return redisClient.Close() }})
		store = repositories.NewCachedGraphRepository(store, redisClient, logger)
	}

	return store, nil
}

func newKafkaClient(logger *slog.Logger) (*kafka.KafkaClient, error) {
	brokers := env.MustGetString("KAFKA_BROKERS")
	groupID := env.MustGetString("KAFKA_RELATIONSHIP_COMMANDS_GROUP_ID")
	batchSize := env.GetInt("KAFKA_BATCH_SIZE", 100)

	return kafka.NewKafkaClient(logger, brokers, groupID, batchSize)
}

func newRelationshipCommandsConsumer(
	logger *slog.Logger,
	store repositories.GraphStore,
	relationships *graph.RelationshipManager,
) *consumers.RelationshipCommandsConsumer {
	return consumers.NewRelationshipCommandsConsumer(
		logger,
		graph.NewAccountRegistry(store),
		graph.NewItemRegistry(store),
		relationships,
	)
}

func startConsumer(
	lc fx.Lifecycle,
	logger *slog.Logger,
	kafkaClient *kafka.KafkaClient,
	commandsConsumer *consumers.RelationshipCommandsConsumer,
) {
	consumeCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			topic := env.MustGetString("KAFKA_RELATIONSHIP_COMMANDS_TOPIC")

			// Start consumer in background
			go func() {
				if err := commandsConsumer.Start(consumeCtx, kafkaClient, topic); err != nil {
					logger.Error("Consumer failed", "error", err)
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			logger.Info("Shutting down Kafka client...")
			if err := kafkaClient.Close(); err != nil {
				logger.Error("Failed to close Kafka client", "error", err)
				return err
			}
			logger.Info("Kafka client shut down gracefully")
			return nil
		},
	})
}
