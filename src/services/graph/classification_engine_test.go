package graph_test

import (
	"context"
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"
	"discoveryservice/src/repositories"
	"discoveryservice/src/services/graph"
	"discoveryservice/src/test_artefacts/comparer"
	"discoveryservice/src/test_artefacts/stubs"
)

var _ = Describe("ClassificationEngine", func() {
	var (
		ctx       context.Context
		accounts  *graph.NodeRegistry
		items     *graph.NodeRegistry
		relations *graph.RelationshipManager
		engine    *graph.ClassificationEngine
	)

	BeforeEach(func() {
		ctx = context.Background()
		store := repositories.NewMemoryGraphRepository()
		accounts = graph.NewAccountRegistry(store)
		items = graph.NewItemRegistry(store)
		relations = graph.NewRelationshipManager(store)
		engine = graph.NewClassificationEngine(store)
	})

	create := func(registry *graph.NodeRegistry, props map[string]any) entities.Entity {
		entity, err := registry.Create(ctx, props)
		Expect(err).NotTo(HaveOccurred())
		return entity
	}

	Context("when alice befriends and then adopts bob as family", func() {
		It("moves bob from friends to family", func() {
			// ARRANGE
			alice := create(accounts, stubs.NewAccountStub().WithUsername("alice").Props())
			bob := create(accounts, stubs.NewAccountStub().WithUsername("bob").Props())
			Expect(relations.SetFriendship(ctx, alice, bob)).To(Succeed())

			// ACT
			classification, err := engine.Classify(ctx, alice)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(classification).To(Equal(domain.Classification{
				Friends: []string{"bob"},
				Family:  []string{},
				Others:  []string{},
				Owners:  []string{},
			}))

			Expect(relations.SetFamilyship(ctx, alice, bob)).To(Succeed())
			classification, err = engine.Classify(ctx, alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(classification.Friends).To(BeEmpty())
			Expect(classification.Family).To(Equal([]string{"bob"}))
		})
	})

	Context("when the subject is an item", func() {
		It("excludes the owner from the three buckets", func() {
			alice := create(accounts, stubs.NewAccountStub().WithUsername("alice").Props())
			bob := create(accounts, stubs.NewAccountStub().WithUsername("bob").Props())
			create(accounts, stubs.NewAccountStub().WithUsername("carol").Props())
			item := create(items, stubs.NewItemStub().Props())
			Expect(relations.SetOwnership(ctx, alice, item)).To(Succeed())
			Expect(relations.SetFriendship(ctx, item, alice)).To(Succeed())
			Expect(relations.SetFriendship(ctx, item, bob)).To(Succeed())

			classification, err := engine.Classify(ctx, item)

			Expect(err).NotTo(HaveOccurred())
			Expect(classification.Owners).To(Equal([]string{"alice"}))
			Expect(classification.Friends).To(Equal([]string{"bob"}))
			Expect(classification.Others).To(Equal([]string{"carol"}))
		})
	})

	Context("when many accounts exist", func() {
		It("puts every other account in exactly one bucket", func() {
			// ARRANGE
			subject := create(accounts, stubs.NewAccountStub().Props())
			var all []string
			for i := range 12 {
				other := create(accounts, stubs.NewAccountStub().Props())
				all = append(all, other.Key)
				switch i % 3 {
				case 0:
					Expect(relations.SetFriendship(ctx, subject, other)).To(Succeed())
				case 1:
					Expect(relations.SetFamilyship(ctx, subject, other)).To(Succeed())
				}
			}

			// ACT
			classification, err := engine.Classify(ctx, subject)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(classification.Total()).To(Equal(len(all)))
			union := slices.Concat(classification.Friends, classification.Family, classification.Others)
			Expect(union).To(BeComparableTo(all, comparer.UnorderedStrings()))
			Expect(union).NotTo(ContainElement(subject.Key))
		})
	})

	Context("when the subject does not exist", func() {
		It("fails with NotFound", func() {
			_, err := engine.Classify(ctx, entities.Entity{Kind: entities.KindAccount, Key: "ghost"})

			Expect(err).To(MatchError(domain.ErrEntityNotFound))
		})
	})

	Describe("Partition", func() {
		It("prefers friendship over familyship and ignores ownership for account subjects", func() {
			rows := []domain.CandidateRow{
				{Key: "c", Friendship: true, Familyship: true},
				{Key: "b", Owner: true},
				{Key: "a", Familyship: true},
			}

			classification := graph.Partition(entities.KindAccount, rows)

			Expect(classification.Friends).To(Equal([]string{"c"}))
			Expect(classification.Family).To(Equal([]string{"a"}))
			Expect(classification.Others).To(Equal([]string{"b"}))
			Expect(classification.Owners).To(BeEmpty())
		})
	})
})
