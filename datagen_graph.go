//go:build datagen_graph
// +build datagen_graph

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"discoveryservice/src/domain"
	"discoveryservice/src/helper/env"
	"discoveryservice/src/infra/postgres"
	"discoveryservice/src/repositories"
	"discoveryservice/src/services/graph"

	"github.com/go-faker/faker/v4"
)

// seedUsername e seedGS1Code são determinísticos para que o gerador de
// comandos consiga apontar para nós já semeados.
func seedUsername(i int) string {
	return fmt.Sprintf("user_%06d", i)
}

func seedGS1Code(i int) string {
	return fmt.Sprintf("%013d", 7890000000000+int64(i))
}

func generateAccount(i int) map[string]any {
	return map[string]any{
		"username":     seedUsername(i),
		"display_name": faker.FirstName() + " " + faker.LastName(),
		"email":        faker.Email(),
	}
}

func generateItem(i int) map[string]any {
	return map[string]any{
		"gs1code": seedGS1Code(i),
		"name":    faker.Word() + " " + faker.Word(),
		"brand":   faker.LastName(),
	}
}

type seeder struct {
	accounts      *graph.NodeRegistry
	items         *graph.NodeRegistry
	relationships *graph.RelationshipManager

	created atomic.Int64
	edges   atomic.Int64
}

// createAll cria os nós em paralelo; chaves já existentes são reaproveitadas.
func (s *seeder) createAll(ctx context.Context, registry *graph.NodeRegistry, total, workers int, generate func(int) map[string]any) error {
	jobs := make(chan int)
	errs := make(chan error, workers)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				_, err := registry.Create(ctx, generate(i))
				if err != nil && !errors.Is(err, domain.ErrDuplicateKey) {
					errs <- fmt.Errorf("create %s %d: %w", registry.Kind(), i, err)
					return
				}
				s.created.Add(1)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := 0; i < total; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(errs)
	return <-errs
}

// linkAccount escolhe amigos, família e itens aleatórios para uma conta.
func (s *seeder) linkAccount(ctx context.Context, i, totalAccounts, totalItems, maxLinks int) error {
	account, err := s.accounts.Get(ctx, seedUsername(i))
	if err != nil {
		return err
	}

	for n := rand.Intn(maxLinks + 1); n > 0; n-- {
		j := rand.Intn(totalAccounts)
		if j == i {
			continue
		}
		other, err := s.accounts.Get(ctx, seedUsername(j))
		if err != nil {
			return err
		}

		// 70% amizade, 30% família; a última escrita vence
		if rand.Float32() < 0.7 {
			err = s.relationships.SetFriendship(ctx, account, other)
		} else {
			err = s.relationships.SetFamilyship(ctx, account, other)
		}
		if err != nil {
			return err
		}
		s.edges.Add(1)
	}

	if totalItems == 0 {
		return nil
	}
	for n := rand.Intn(3); n > 0; n-- {
		item, err := s.items.Get(ctx, seedGS1Code(rand.Intn(totalItems)))
		if err != nil {
			return err
		}
		if err := s.relationships.SetOwnership(ctx, account, item); err != nil {
			return err
		}
		s.edges.Add(1)
	}
	return nil
}

func main() {
	totalAccounts := flag.Int("accounts", 1000, "Number of accounts to seed")
	totalItems := flag.Int("items", 200, "Number of items to seed")
	maxLinks := flag.Int("max-links", 8, "Maximum friendship/familyship links per account")
	workers := flag.Int("workers", 8, "Number of concurrent workers")
	truncate := flag.Bool("truncate", false, "Delete every account and item before seeding")
	flag.Parse()

	if *totalAccounts < 2 {
		log.Fatal("The 'accounts' flag must be at least 2")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal, stopping...")
		cancel()
	}()

	dbWriteHost := env.MustGetString("DB_WRITE_HOST")
	readWriteClient, err := postgres.NewReadWriteClient(
		env.GetString("DB_READ_HOST", dbWriteHost),
		dbWriteHost,
		env.GetString("DB_READ_PORT", "5432"),
		env.GetString("DB_WRITE_PORT", "5432"),
		env.MustGetString("DB_NAME"),
		env.MustGetString("DB_USER"),
		env.MustGetString("DB_PASSWORD"),
		*workers*2,
	)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer readWriteClient.Close()

	if err := postgres.EnsureSchema(ctx, readWriteClient.GetWritePool()); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	// leituras no primário: a réplica pode não ter os nós recém criados
	store := repositories.NewPostgresGraphRepository(readWriteClient.GetWritePool(), readWriteClient.GetWritePool())
	s := &seeder{
		accounts:      graph.NewAccountRegistry(store),
		items:         graph.NewItemRegistry(store),
		relationships: graph.NewRelationshipManager(store),
	}

	for _, registry := range []*graph.NodeRegistry{s.accounts, s.items} {
		if _, err := registry.EnsureConstraint(ctx); err != nil {
			log.Fatalf("Failed to ensure constraint for %s: %v", registry.Kind(), err)
		}
		if *truncate {
			deleted, err := registry.DeleteAll(ctx)
			if err != nil {
				log.Fatalf("Failed to truncate %s: %v", registry.Kind(), err)
			}
			log.Printf("Deleted %d %s nodes", deleted, registry.Kind())
		}
	}

	startTime := time.Now()
	log.Printf("Seeding %d accounts and %d items with %d workers", *totalAccounts, *totalItems, *workers)

	if err := s.createAll(ctx, s.accounts, *totalAccounts, *workers, generateAccount); err != nil {
		log.Fatalf("Failed to seed accounts: %v", err)
	}
	if err := s.createAll(ctx, s.items, *totalItems, *workers, generateItem); err != nil {
		log.Fatalf("Failed to seed items: %v", err)
	}
	log.Printf("Created %d nodes in %v", s.created.Load(), time.Since(startTime))

	for i := 0; i < *totalAccounts; i++ {
		if ctx.Err() != nil {
			log.Println("Shutdown requested, stopping edge generation")
			break
		}
		if err := s.linkAccount(ctx, i, *totalAccounts, *totalItems, *maxLinks); err != nil {
			log.Fatalf("Failed to link %s: %v", seedUsername(i), err)
		}
		if (i+1)%500 == 0 {
			log.Printf("Linked %d/%d accounts (%d edges)", i+1, *totalAccounts, s.edges.Load())
		}
	}

	log.Printf("✅ Completed! %d nodes and %d edges in %v", s.created.Load(), s.edges.Load(), time.Since(startTime))
}
