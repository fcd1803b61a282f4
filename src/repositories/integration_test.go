package repositories_test

import (
	"context"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"
	"discoveryservice/src/helper/env"
	neo4jinfra "discoveryservice/src/infra/neo4j"
	"discoveryservice/src/infra/postgres"
	"discoveryservice/src/repositories"
	"discoveryservice/src/test_artefacts/stubs"
	"discoveryservice/src/test_artefacts/test_seeder"
)

// graphStoreContract roda o mesmo comportamento contra um backend real.
func graphStoreContract(store func() repositories.GraphStore) {
	var (
		ctx   context.Context
		alice entities.NodeRef
		bob   entities.NodeRef
		item  entities.NodeRef
	)

	BeforeEach(func() {
		ctx = context.Background()
		for _, kind := range entities.Kinds {
			_, err := store().EnsureUniqueConstraint(ctx, kind)
			Expect(err).NotTo(HaveOccurred())
		}

		aliceStub := stubs.NewAccountStub().WithUsername("alice")
		bobStub := stubs.NewAccountStub().WithUsername("bob")
		itemStub := stubs.NewItemStub().WithGS1Code("004012345678")
		alice, bob, item = aliceStub.Ref(), bobStub.Ref(), itemStub.Ref()

		_, err := store().InsertNode(ctx, entities.KindAccount, aliceStub.Properties())
		Expect(err).NotTo(HaveOccurred())
		_, err = store().InsertNode(ctx, entities.KindAccount, bobStub.Properties())
		Expect(err).NotTo(HaveOccurred())
		_, err = store().InsertNode(ctx, entities.KindItem, itemStub.Properties())
		Expect(err).NotTo(HaveOccurred())
	})

	It("accepts exactly one of two concurrent inserts with the same key", func() {
		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = store().InsertNode(ctx, entities.KindAccount, map[string]string{"username": "carol"})
			}()
		}
		wg.Wait()

		Expect(errs).To(ContainElement(BeNil()))
		Expect(errs).To(ContainElement(MatchError(domain.ErrDuplicateKey)))
	})

	It("keeps friendship and familyship mutually exclusive", func() {
		Expect(store().ApplyEdgeChange(ctx, entities.EdgeChange{From: alice, To: bob, Remove: entities.EdgeFamilyship, Merge: entities.EdgeFriendship})).To(Succeed())
		Expect(store().ApplyEdgeChange(ctx, entities.EdgeChange{From: alice, To: bob, Remove: entities.EdgeFriendship, Merge: entities.EdgeFamilyship})).To(Succeed())

		rows, err := store().ClassifyCandidates(ctx, alice, entities.KindAccount)

		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(Equal([]domain.CandidateRow{{Key: "bob", Familyship: true}}))
	})

	It("serializes racing transitions on the same pair in both directions", func() {
		changes := []entities.EdgeChange{
			{From: alice, To: bob, Remove: entities.EdgeFamilyship, Merge: entities.EdgeFriendship},
			{From: alice, To: bob, Remove: entities.EdgeFriendship, Merge: entities.EdgeFamilyship},
			{From: bob, To: alice, Remove: entities.EdgeFamilyship, Merge: entities.EdgeFriendship},
			{From: bob, To: alice, Remove: entities.EdgeFriendship, Merge: entities.EdgeFamilyship},
		}

		var wg sync.WaitGroup
		errs := make([]error, 24)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = store().ApplyEdgeChange(ctx, changes[i%len(changes)])
			}()
		}
		wg.Wait()

		Expect(errs).To(HaveEach(BeNil()))
		for _, pair := range [][2]entities.NodeRef{{alice, bob}, {bob, alice}} {
			rows, err := store().ClassifyCandidates(ctx, pair[0], entities.KindAccount)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].Key).To(Equal(pair[1].Key))
			Expect(rows[0].Friendship).NotTo(Equal(rows[0].Familyship), "exactly one of the two kinds must remain")
		}
	})

	It("reports the owner of an item", func() {
		Expect(store().ApplyEdgeChange(ctx, entities.EdgeChange{From: alice, To: item, Merge: entities.EdgeOwnership})).To(Succeed())

		rows, err := store().ClassifyCandidates(ctx, item, entities.KindAccount)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(Equal([]domain.CandidateRow{{Key: "alice", Owner: true}, {Key: "bob"}}))

		owned, err := store().ListOwned(ctx, alice)
		Expect(err).NotTo(HaveOccurred())
		Expect(owned).To(Equal([]string{"004012345678"}))
	})

	It("cascades the delete over every incident edge", func() {
		Expect(store().ApplyEdgeChange(ctx, entities.EdgeChange{From: alice, To: bob, Merge: entities.EdgeFriendship})).To(Succeed())
		Expect(store().ApplyEdgeChange(ctx, entities.EdgeChange{From: bob, To: alice, Merge: entities.EdgeFamilyship})).To(Succeed())
		Expect(store().ApplyEdgeChange(ctx, entities.EdgeChange{From: alice, To: item, Merge: entities.EdgeOwnership})).To(Succeed())

		Expect(store().DeleteNode(ctx, alice)).To(Succeed())

		_, err := store().FindNode(ctx, alice)
		Expect(err).To(MatchError(domain.ErrEntityNotFound))
		rows, err := store().ClassifyCandidates(ctx, bob, entities.KindAccount)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(BeEmpty())
		rows, err = store().ClassifyCandidates(ctx, item, entities.KindAccount)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(Equal([]domain.CandidateRow{{Key: "bob"}}))
	})

	It("merges properties and follows a key change", func() {
		merged, err := store().MergeNodeProperties(ctx, bob, map[string]string{"username": "robert", "display_name": "Robert"})

		Expect(err).NotTo(HaveOccurred())
		Expect(merged.Key).To(Equal("robert"))
		Expect(merged.Properties).To(HaveKeyWithValue("display_name", "Robert"))
		Expect(merged.Properties).To(HaveKey("email"))
		_, err = store().FindNode(ctx, bob)
		Expect(err).To(MatchError(domain.ErrEntityNotFound))
	})

	It("fails an edge change towards a missing node", func() {
		ghost := entities.NodeRef{Kind: entities.KindAccount, Key: "ghost"}

		err := store().ApplyEdgeChange(ctx, entities.EdgeChange{From: alice, To: ghost, Merge: entities.EdgeFriendship})

		Expect(err).To(MatchError(domain.ErrEntityNotFound))
	})
}

var _ = Describe("MemoryGraphRepository contract", func() {
	var repository *repositories.MemoryGraphRepository

	BeforeEach(func() {
		repository = repositories.NewMemoryGraphRepository()
	})

	graphStoreContract(func() repositories.GraphStore { return repository })
})

var _ = Describe("PostgresGraphRepository integration", func() {
	var (
		readWriteClient *postgres.ReadWriteClient
		repository      *repositories.PostgresGraphRepository
	)

	BeforeEach(func() {
		dbWriteHost := env.GetString("TEST_DB_WRITE_HOST", "")
		if dbWriteHost == "" {
			Skip("TEST_DB_WRITE_HOST not set")
		}

		var err error
		readWriteClient, err = postgres.NewReadWriteClient(
			env.GetString("TEST_DB_READ_HOST", dbWriteHost),
			dbWriteHost,
			env.GetString("TEST_DB_READ_PORT", "5432"),
			env.GetString("TEST_DB_WRITE_PORT", "5432"),
			env.MustGetString("TEST_DB_NAME"),
			env.MustGetString("TEST_DB_USER"),
			env.MustGetString("TEST_DB_PASSWORD"),
			env.GetInt("TEST_DB_MAX_POOL_CONNECTIONS", 25),
		)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(readWriteClient.Close)

		ctx := context.Background()
		Expect(postgres.EnsureSchema(ctx, readWriteClient.GetWritePool())).To(Succeed())
		test_seeder.New(readWriteClient.GetWritePool()).TruncateTables(ctx)

		// réplica com atraso quebraria as leituras logo após a escrita
		repository = repositories.NewPostgresGraphRepository(readWriteClient.GetWritePool(), readWriteClient.GetWritePool())
	})

	graphStoreContract(func() repositories.GraphStore { return repository })

	It("keeps full row images for CDC", func() {
		rows, err := readWriteClient.GetWritePool().Query(context.Background(),
			`SELECT relname, relreplident::text FROM pg_class WHERE relname IN ('entities', 'edges') ORDER BY relname`)
		Expect(err).NotTo(HaveOccurred())
		defer rows.Close()

		identities := map[string]string{}
		for rows.Next() {
			var table, identity string
			Expect(rows.Scan(&table, &identity)).To(Succeed())
			identities[table] = identity
		}
		Expect(rows.Err()).NotTo(HaveOccurred())
		Expect(identities).To(Equal(map[string]string{"edges": "f", "entities": "f"}))
	})

	It("leaves no edge row behind after a delete", func() {
		ctx := context.Background()
		seeder := test_seeder.New(readWriteClient.GetWritePool())
		carol := stubs.NewAccountStub().WithUsername("carol")
		dave := stubs.NewAccountStub().WithUsername("dave")
		carolID := seeder.InsertEntity(ctx, entities.KindAccount, carol.Properties())
		daveID := seeder.InsertEntity(ctx, entities.KindAccount, dave.Properties())
		seeder.InsertEdge(ctx, carolID, daveID, entities.EdgeFriendship)
		seeder.InsertEdge(ctx, daveID, carolID, entities.EdgeFamilyship)

		Expect(repository.DeleteNode(ctx, carol.Ref())).To(Succeed())

		count, err := seeder.CountEdgesTouching(ctx, dave.Ref())
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(BeZero())
	})

	It("leaves a single edge row per direction after racing swaps", func() {
		ctx := context.Background()
		seeder := test_seeder.New(readWriteClient.GetWritePool())
		alice := stubs.NewAccountStub().WithUsername("alice").Ref()
		bob := stubs.NewAccountStub().WithUsername("bob").Ref()

		var wg sync.WaitGroup
		for i := range 16 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				from, to := alice, bob
				if i%2 == 1 {
					from, to = bob, alice
				}
				change := entities.EdgeChange{From: from, To: to, Remove: entities.EdgeFamilyship, Merge: entities.EdgeFriendship}
				if i%4 >= 2 {
					change.Remove, change.Merge = entities.EdgeFriendship, entities.EdgeFamilyship
				}
				Expect(repository.ApplyEdgeChange(ctx, change)).To(Succeed())
			}()
		}
		wg.Wait()

		for _, pair := range [][2]entities.NodeRef{{alice, bob}, {bob, alice}} {
			kinds, err := seeder.SelectEdgeKinds(ctx, pair[0], pair[1])
			Expect(err).NotTo(HaveOccurred())
			Expect(kinds).To(HaveLen(1))
		}
	})

	It("stores a single edge row per kind", func() {
		ctx := context.Background()
		seeder := test_seeder.New(readWriteClient.GetWritePool())
		alice := stubs.NewAccountStub().WithUsername("alice").Ref()
		bob := stubs.NewAccountStub().WithUsername("bob").Ref()

		for range 3 {
			Expect(repository.ApplyEdgeChange(ctx, entities.EdgeChange{From: alice, To: bob, Remove: entities.EdgeFamilyship, Merge: entities.EdgeFriendship})).To(Succeed())
		}

		kinds, err := seeder.SelectEdgeKinds(ctx, alice, bob)
		Expect(err).NotTo(HaveOccurred())
		Expect(kinds).To(Equal([]entities.EdgeKind{entities.EdgeFriendship}))
	})
})

var _ = Describe("Neo4jGraphRepository integration", func() {
	var repository *repositories.Neo4jGraphRepository

	BeforeEach(func() {
		uri := env.GetString("TEST_NEO4J_URI", "")
		if uri == "" {
			Skip("TEST_NEO4J_URI not set")
		}

		ctx := context.Background()
		driver, err := neo4jinfra.NewNeo4jClient(ctx, uri,
			env.GetString("TEST_NEO4J_USER", "neo4j"),
			env.GetString("TEST_NEO4J_PASSWORD", "neo4j"),
			env.GetInt("TEST_NEO4J_MAX_POOL_CONNECTIONS", 10),
		)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { driver.Close(context.Background()) })

		database := env.GetString("TEST_NEO4J_DATABASE", "neo4j")
		_, err = neo4j.ExecuteQuery(ctx, driver, "MATCH (n) DETACH DELETE n", nil,
			neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(database))
		Expect(err).NotTo(HaveOccurred())

		repository = repositories.NewNeo4jGraphRepository(driver, database)
	})

	graphStoreContract(func() repositories.GraphStore { return repository })
})
