//go:build datagen_relationship_commands
// +build datagen_relationship_commands

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"discoveryservice/src/adapters/kafka/consumers"
	"discoveryservice/src/domain/entities"
	"discoveryservice/src/infra/kafka"

	"github.com/go-faker/faker/v4"
)

var accountActions = []string{
	consumers.ActionSetFriendship,
	consumers.ActionClearFriendship,
	consumers.ActionSetFamilyship,
	consumers.ActionClearFamilyship,
}

var ownershipActions = []string{
	consumers.ActionSetOwnership,
	consumers.ActionClearOwnership,
}

// Mesmo formato de chave do datagen_graph.
func accountRef(i int) consumers.CommandNodeRef {
	return consumers.CommandNodeRef{Kind: string(entities.KindAccount), Key: fmt.Sprintf("user_%06d", i)}
}

func itemRef(i int) consumers.CommandNodeRef {
	return consumers.CommandNodeRef{Kind: string(entities.KindItem), Key: fmt.Sprintf("%013d", 7890000000000+int64(i))}
}

// generateCommand sorteia um comando; uma parte aponta para nós inexistentes
// para exercitar o descarte no consumer.
func generateCommand(totalAccounts, totalItems int) consumers.RelationshipCommand {
	from := accountRef(rand.Intn(totalAccounts))

	if rand.Float32() < 0.05 {
		ghost := consumers.CommandNodeRef{Kind: string(entities.KindAccount), Key: "ghost_" + faker.Username()}
		return consumers.RelationshipCommand{Action: consumers.ActionSetFriendship, From: from, To: ghost}
	}

	if totalItems > 0 && rand.Float32() < 0.2 {
		return consumers.RelationshipCommand{
			Action: ownershipActions[rand.Intn(len(ownershipActions))],
			From:   from,
			To:     itemRef(rand.Intn(totalItems)),
		}
	}

	return consumers.RelationshipCommand{
		Action: accountActions[rand.Intn(len(accountActions))],
		From:   from,
		To:     accountRef(rand.Intn(totalAccounts)),
	}
}

func main() {
	totalMessages := flag.Int("count", 1000, "Total number of commands to generate. Use -1 for infinite.")
	batchSize := flag.Int("batch-size", 100, "Number of commands per batch")
	totalAccounts := flag.Int("accounts", 1000, "Number of seeded accounts to reference")
	totalItems := flag.Int("items", 200, "Number of seeded items to reference")
	topic := flag.String("topic", "", "Kafka topic to send commands to (required)")
	brokers := flag.String("brokers", "", "Kafka brokers (comma-separated) (required)")
	groupID := flag.String("group-id", "datagen-relationship-commands", "Kafka group ID")
	delayMs := flag.Int("delay-ms", 100, "Delay in milliseconds between batches")
	flag.Parse()

	if *topic == "" {
		log.Fatal("The 'topic' flag is required")
	}
	if *brokers == "" {
		log.Fatal("The 'brokers' flag is required")
	}

	isInfinite := *totalMessages == -1
	if isInfinite {
		log.Printf("Starting Kafka datagen in INFINITE mode with batches of %d", *batchSize)
	} else {
		log.Printf("Starting Kafka datagen with %d commands in batches of %d", *totalMessages, *batchSize)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	kafkaClient, err := kafka.NewKafkaClient(logger, *brokers, *groupID, *batchSize)
	if err != nil {
		log.Fatalf("Failed to create Kafka client: %v", err)
	}
	defer kafkaClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal, stopping...")
		cancel()
	}()

	messagesSent := 0
	startTime := time.Now()

	for isInfinite || messagesSent < *totalMessages {
		select {
		case <-ctx.Done():
			log.Println("Shutdown requested, stopping command generation")
			return
		default:
		}

		currentBatchSize := *batchSize
		if !isInfinite {
			currentBatchSize = min(currentBatchSize, *totalMessages-messagesSent)
		}

		kafkaMessages := make([]kafka.Message, 0, currentBatchSize)
		for i := 0; i < currentBatchSize; i++ {
			command := generateCommand(*totalAccounts, *totalItems)
			msgBytes, err := json.Marshal(command)
			if err != nil {
				log.Printf("Failed to marshal command: %v", err)
				continue
			}

			// chave pela origem: comandos de uma mesma conta ficam na mesma partição
			kafkaMessages = append(kafkaMessages, kafka.Message{
				Key:   command.From.Kind + ":" + command.From.Key,
				Value: msgBytes,
			})
		}

		if err := kafkaClient.Producer(ctx, kafkaMessages, *topic); err != nil {
			log.Printf("Failed to send batch: %v", err)
			continue
		}

		messagesSent += len(kafkaMessages)

		if messagesSent%500 == 0 || (!isInfinite && messagesSent == *totalMessages) {
			rate := float64(messagesSent) / time.Since(startTime).Seconds()
			log.Printf("Sent %d commands (%.1f msg/sec)", messagesSent, rate)
		}

		if *delayMs > 0 && (isInfinite || messagesSent < *totalMessages) {
			time.Sleep(time.Duration(*delayMs) * time.Millisecond)
		}
	}

	elapsed := time.Since(startTime)
	log.Printf("✅ Completed! Sent %d commands in %v (%.1f msg/sec)", messagesSent, elapsed, float64(messagesSent)/elapsed.Seconds())
}
