package repositories_test

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock/v2"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"
	"discoveryservice/src/repositories"
)

var entityColumns = []string{"id", "type", "reference", "properties", "created_at", "updated_at"}

// sql casa qualquer consulta que contenha o fragmento.
func sql(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

var _ = Describe("PostgresGraphRepository", func() {
	var (
		ctx        context.Context
		mockPool   pgxmock.PgxPoolIface
		repository *repositories.PostgresGraphRepository
		now        time.Time
		alice      entities.NodeRef
		bob        entities.NodeRef
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		mockPool, err = pgxmock.NewPool()
		Expect(err).NotTo(HaveOccurred())
		repository = repositories.NewPostgresGraphRepository(mockPool, mockPool)
		now = time.Now().UTC().Truncate(time.Millisecond)
		alice = entities.NodeRef{Kind: entities.KindAccount, Key: "alice"}
		bob = entities.NodeRef{Kind: entities.KindAccount, Key: "bob"}
	})

	AfterEach(func() {
		Expect(mockPool.ExpectationsWereMet()).To(Succeed())
		mockPool.Close()
	})

	Context("when ensuring the unique constraint", func() {
		It("creates the partial index when it does not exist", func() {
			// ARRANGE
			mockPool.ExpectQuery(sql("FROM pg_indexes")).
				WithArgs("entities_uniq_account_username").
				WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
			mockPool.ExpectExec(sql(`CREATE UNIQUE INDEX IF NOT EXISTS "entities_uniq_account_username" ON entities (reference) WHERE type = 'account'`)).
				WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))

			// ACT
			created, err := repository.EnsureUniqueConstraint(ctx, entities.KindAccount)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeTrue())
		})

		It("reports false when the index is already there", func() {
			mockPool.ExpectQuery(sql("FROM pg_indexes")).
				WithArgs("entities_uniq_item_gs1code").
				WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

			created, err := repository.EnsureUniqueConstraint(ctx, entities.KindItem)

			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeFalse())
		})

		It("rejects an unknown kind without touching the database", func() {
			_, err := repository.EnsureUniqueConstraint(ctx, entities.Kind("planet"))

			Expect(err).To(MatchError(domain.ErrInvalidField))
		})
	})

	Context("when inserting a node", func() {
		props := map[string]string{"username": "alice", "email": "alice@mail.com"}

		It("returns the stored entity", func() {
			mockPool.ExpectQuery(sql("INSERT INTO entities (type, reference, properties)")).
				WithArgs("account", "alice", props).
				WillReturnRows(pgxmock.NewRows(entityColumns).AddRow(int64(7), "account", "alice", props, now, now))

			entity, err := repository.InsertNode(ctx, entities.KindAccount, props)

			Expect(err).NotTo(HaveOccurred())
			Expect(entity).To(Equal(entities.Entity{
				ID:         7,
				Kind:       entities.KindAccount,
				Key:        "alice",
				Properties: props,
				CreatedAt:  now,
				UpdatedAt:  now,
			}))
		})

		It("translates the unique violation into DuplicateKey", func() {
			mockPool.ExpectQuery(sql("INSERT INTO entities")).
				WithArgs("account", "alice", props).
				WillReturnError(&pgconn.PgError{Code: "23505"})

			_, err := repository.InsertNode(ctx, entities.KindAccount, props)

			Expect(err).To(MatchError(domain.ErrDuplicateKey))
			Expect(err.Error()).To(ContainSubstring("the username 'alice' is taken"))
		})

		It("wraps any other failure as a storage error keeping the cause", func() {
			cause := errors.New("connection reset")
			mockPool.ExpectQuery(sql("INSERT INTO entities")).
				WithArgs("account", "alice", props).
				WillReturnError(cause)

			_, err := repository.InsertNode(ctx, entities.KindAccount, props)

			Expect(err).To(MatchError(domain.ErrStorage))
			Expect(err).To(MatchError(cause))
		})
	})

	Context("when finding a node", func() {
		It("fails with NotFound when there is no row", func() {
			mockPool.ExpectQuery(sql("FROM entities WHERE type = $1 AND reference = $2")).
				WithArgs("account", "ghost").
				WillReturnRows(pgxmock.NewRows(entityColumns))

			_, err := repository.FindNode(ctx, entities.NodeRef{Kind: entities.KindAccount, Key: "ghost"})

			Expect(err).To(MatchError(domain.ErrEntityNotFound))
		})
	})

	Context("when listing nodes", func() {
		It("yields the rows in order and refuses a second pass", func() {
			mockPool.ExpectQuery(sql("ORDER BY reference")).
				WithArgs("item").
				WillReturnRows(pgxmock.NewRows(entityColumns).
					AddRow(int64(1), "item", "0001", map[string]string{"gs1code": "0001"}, now, now).
					AddRow(int64(2), "item", "0002", map[string]string{"gs1code": "0002"}, now, now))

			seq := repository.ListNodes(ctx, entities.KindItem)
			var keys []string
			for entity, err := range seq {
				Expect(err).NotTo(HaveOccurred())
				keys = append(keys, entity.Key)
			}

			Expect(keys).To(Equal([]string{"0001", "0002"}))
			for _, err := range seq {
				Expect(err).To(MatchError(domain.ErrCursorConsumed))
			}
		})
	})

	Context("when merging properties", func() {
		It("sends the patch as JSONB together with the key field", func() {
			patch := map[string]string{"display_name": "Alice"}
			merged := map[string]string{"username": "alice", "display_name": "Alice"}
			mockPool.ExpectQuery(sql("properties = properties || $3::jsonb")).
				WithArgs("account", "alice", patch, "username").
				WillReturnRows(pgxmock.NewRows(entityColumns).AddRow(int64(1), "account", "alice", merged, now, now))

			entity, err := repository.MergeNodeProperties(ctx, alice, patch)

			Expect(err).NotTo(HaveOccurred())
			Expect(entity.Properties).To(Equal(merged))
		})
	})

	Context("when deleting a node", func() {
		It("removes the incident edges and the node in one transaction", func() {
			mockPool.ExpectBegin()
			mockPool.ExpectQuery(sql("FOR UPDATE")).
				WithArgs("account", "alice").
				WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
			mockPool.ExpectExec(sql("DELETE FROM edges WHERE left_entity_id = $1 OR right_entity_id = $1")).
				WithArgs(int64(3)).
				WillReturnResult(pgxmock.NewResult("DELETE", 4))
			mockPool.ExpectExec(sql("DELETE FROM entities WHERE id = $1")).
				WithArgs(int64(3)).
				WillReturnResult(pgxmock.NewResult("DELETE", 1))
			mockPool.ExpectCommit()

			Expect(repository.DeleteNode(ctx, alice)).To(Succeed())
		})

		It("rolls back and fails with NotFound for a missing node", func() {
			mockPool.ExpectBegin()
			mockPool.ExpectQuery(sql("FOR UPDATE")).
				WithArgs("account", "alice").
				WillReturnRows(pgxmock.NewRows([]string{"id"}))
			mockPool.ExpectRollback()

			Expect(repository.DeleteNode(ctx, alice)).To(MatchError(domain.ErrEntityNotFound))
		})

		It("returns how many nodes of the kind were removed", func() {
			mockPool.ExpectBegin()
			mockPool.ExpectExec(sql("DELETE FROM edges")).
				WithArgs("item").
				WillReturnResult(pgxmock.NewResult("DELETE", 2))
			mockPool.ExpectExec(sql("DELETE FROM entities WHERE type = $1")).
				WithArgs("item").
				WillReturnResult(pgxmock.NewResult("DELETE", 5))
			mockPool.ExpectCommit()

			deleted, err := repository.DeleteAllNodes(ctx, entities.KindItem)

			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(Equal(int64(5)))
		})
	})

	Context("when applying an edge change", func() {
		lockColumns := []string{"id", "type", "reference"}

		It("locks both endpoints, removes the rival edge and merges the new one", func() {
			// ARRANGE
			mockPool.ExpectBegin()
			mockPool.ExpectQuery(sql("FOR NO KEY UPDATE")).
				WithArgs("account", "alice", "account", "bob").
				WillReturnRows(pgxmock.NewRows(lockColumns).
					AddRow(int64(1), "account", "alice").
					AddRow(int64(2), "account", "bob"))
			mockPool.ExpectExec(sql("DELETE FROM edges WHERE left_entity_id = $1 AND right_entity_id = $2 AND relationship_type = $3")).
				WithArgs(int64(1), int64(2), "familyship").
				WillReturnResult(pgxmock.NewResult("DELETE", 1))
			mockPool.ExpectExec(sql("ON CONFLICT (left_entity_id, right_entity_id, relationship_type) DO NOTHING")).
				WithArgs(int64(1), int64(2), "friendship").
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
			mockPool.ExpectCommit()

			// ACT
			err := repository.ApplyEdgeChange(ctx, entities.EdgeChange{
				From:   alice,
				To:     bob,
				Remove: entities.EdgeFamilyship,
				Merge:  entities.EdgeFriendship,
			})

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
		})

		It("rolls back when an endpoint is missing", func() {
			mockPool.ExpectBegin()
			mockPool.ExpectQuery(sql("FOR NO KEY UPDATE")).
				WithArgs("account", "alice", "account", "bob").
				WillReturnRows(pgxmock.NewRows(lockColumns).AddRow(int64(1), "account", "alice"))
			mockPool.ExpectRollback()

			err := repository.ApplyEdgeChange(ctx, entities.EdgeChange{From: alice, To: bob, Merge: entities.EdgeFriendship})

			Expect(err).To(MatchError(domain.ErrEntityNotFound))
			Expect(err.Error()).To(ContainSubstring("account:bob"))
		})
	})

	Context("when classifying candidates", func() {
		classifyColumns := []string{"reference", "friendship", "familyship", "owner"}

		It("returns one row per candidate", func() {
			mockPool.ExpectQuery(sql("WITH subject AS")).
				WithArgs("account", "alice", "account", "friendship", "familyship", "ownership").
				WillReturnRows(pgxmock.NewRows(classifyColumns).
					AddRow(pgtype.Text{String: "bob", Valid: true}, true, false, false).
					AddRow(pgtype.Text{String: "carol", Valid: true}, false, true, false))

			rows, err := repository.ClassifyCandidates(ctx, alice, entities.KindAccount)

			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(Equal([]domain.CandidateRow{
				{Key: "bob", Friendship: true},
				{Key: "carol", Familyship: true},
			}))
		})

		It("returns an empty list when the subject has no candidates", func() {
			mockPool.ExpectQuery(sql("WITH subject AS")).
				WithArgs("account", "alice", "account", "friendship", "familyship", "ownership").
				WillReturnRows(pgxmock.NewRows(classifyColumns).AddRow(pgtype.Text{}, false, false, false))

			rows, err := repository.ClassifyCandidates(ctx, alice, entities.KindAccount)

			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(BeEmpty())
			Expect(rows).NotTo(BeNil())
		})

		It("fails with NotFound when the subject does not exist", func() {
			mockPool.ExpectQuery(sql("WITH subject AS")).
				WithArgs("account", "alice", "account", "friendship", "familyship", "ownership").
				WillReturnRows(pgxmock.NewRows(classifyColumns))

			_, err := repository.ClassifyCandidates(ctx, alice, entities.KindAccount)

			Expect(err).To(MatchError(domain.ErrEntityNotFound))
		})
	})

	Context("when listing owned items", func() {
		It("skips the null row of an account without items", func() {
			mockPool.ExpectQuery(sql("SELECT i.reference")).
				WithArgs("account", "alice", "ownership", "item").
				WillReturnRows(pgxmock.NewRows([]string{"reference"}).AddRow(pgtype.Text{}))

			owned, err := repository.ListOwned(ctx, alice)

			Expect(err).NotTo(HaveOccurred())
			Expect(owned).To(BeEmpty())
		})
	})
})
