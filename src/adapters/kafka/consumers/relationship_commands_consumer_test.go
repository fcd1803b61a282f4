package consumers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"discoveryservice/src/adapters/kafka/consumers"
	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"
	"discoveryservice/src/infra/kafka"
	"discoveryservice/src/repositories"
	"discoveryservice/src/services/graph"
	"discoveryservice/src/test_artefacts/stubs"
)

// failingStore falha toda mudança de aresta como se o backend estivesse fora.
type failingStore struct {
	repositories.GraphStore
}

func (failingStore) ApplyEdgeChange(context.Context, entities.EdgeChange) error {
	return domain.StorageError("apply edge change", errors.New("connection refused"))
}

func command(action string, from, to entities.NodeRef) kafka.Message {
	value, err := json.Marshal(consumers.RelationshipCommand{
		Action: action,
		From:   consumers.CommandNodeRef{Kind: string(from.Kind), Key: from.Key},
		To:     consumers.CommandNodeRef{Kind: string(to.Kind), Key: to.Key},
	})
	Expect(err).NotTo(HaveOccurred())
	return kafka.Message{Key: from.Key, Value: value}
}

var _ = Describe("RelationshipCommandsConsumer", func() {
	var (
		ctx      context.Context
		store    repositories.GraphStore
		accounts *graph.NodeRegistry
		items    *graph.NodeRegistry
		engine   *graph.ClassificationEngine
		alice    entities.Entity
		bob      entities.Entity
		item     entities.Entity
	)

	newConsumer := func(s repositories.GraphStore) *consumers.RelationshipCommandsConsumer {
		return consumers.NewRelationshipCommandsConsumer(
			slog.New(slog.NewTextHandler(io.Discard, nil)),
			graph.NewAccountRegistry(s),
			graph.NewItemRegistry(s),
			graph.NewRelationshipManager(s),
		)
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		store = repositories.NewMemoryGraphRepository()
		accounts = graph.NewAccountRegistry(store)
		items = graph.NewItemRegistry(store)
		engine = graph.NewClassificationEngine(store)

		alice, err = accounts.Create(ctx, stubs.NewAccountStub().WithUsername("alice").Props())
		Expect(err).NotTo(HaveOccurred())
		bob, err = accounts.Create(ctx, stubs.NewAccountStub().WithUsername("bob").Props())
		Expect(err).NotTo(HaveOccurred())
		item, err = items.Create(ctx, stubs.NewItemStub().WithGS1Code("0001").Props())
		Expect(err).NotTo(HaveOccurred())
	})

	Context("when the batch only has valid commands", func() {
		It("applies them in order", func() {
			// ARRANGE
			batch := []kafka.Message{
				command(consumers.ActionSetFriendship, alice.Ref(), bob.Ref()),
				command(consumers.ActionSetFamilyship, alice.Ref(), bob.Ref()),
				command(consumers.ActionSetOwnership, bob.Ref(), item.Ref()),
			}

			// ACT
			err := newConsumer(store).HandleMessages(ctx, batch)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			classification, err := engine.Classify(ctx, alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(classification.Family).To(Equal([]string{"bob"}))
			Expect(classification.Friends).To(BeEmpty())

			itemClassification, err := engine.Classify(ctx, item)
			Expect(err).NotTo(HaveOccurred())
			Expect(itemClassification.Owners).To(Equal([]string{"bob"}))
		})
	})

	Context("when the batch has malformed commands", func() {
		It("skips them and applies the rest", func() {
			batch := []kafka.Message{
				{Key: "broken", Value: []byte("{not json")},
				command("set_enemyship", alice.Ref(), bob.Ref()),
				command(consumers.ActionSetFriendship, alice.Ref(), entities.NodeRef{Kind: entities.KindAccount, Key: "ghost"}),
				command(consumers.ActionSetFriendship, alice.Ref(), entities.NodeRef{Kind: entities.KindAccount, Key: "x"}),
				command(consumers.ActionSetOwnership, item.Ref(), alice.Ref()),
				command(consumers.ActionSetFriendship, alice.Ref(), entities.NodeRef{Kind: "planet", Key: "earth"}),
				command(consumers.ActionSetFriendship, alice.Ref(), bob.Ref()),
			}

			err := newConsumer(store).HandleMessages(ctx, batch)

			Expect(err).NotTo(HaveOccurred())
			classification, err := engine.Classify(ctx, alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(classification.Friends).To(Equal([]string{"bob"}))
		})
	})

	Context("when the store fails", func() {
		It("rejects the batch so Kafka redelivers it", func() {
			batch := []kafka.Message{command(consumers.ActionSetFriendship, alice.Ref(), bob.Ref())}

			err := newConsumer(failingStore{GraphStore: store}).HandleMessages(ctx, batch)

			Expect(err).To(MatchError(domain.ErrStorage))
		})
	})
})
