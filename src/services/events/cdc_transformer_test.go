package events_test

import (
	"context"
	"io"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"discoveryservice/src/domain"
	"discoveryservice/src/infra/debezium"
	"discoveryservice/src/services/events"
)

var _ = Describe("CDCTransformer", func() {
	var (
		transformer *events.CDCTransformer
		ctx         context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		transformer = events.NewCDCTransformer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	entitySource := debezium.CDCSource{Table: domain.TableEntities}
	edgeSource := debezium.CDCSource{Table: domain.TableEdges}

	Context("when the change comes from the entities table", func() {
		It("emits entity.created with every property as new", func() {
			// ARRANGE
			cdcEvent := &debezium.CDCEvent{
				Operation: "c",
				TsMs:      1700000000000,
				Source:    entitySource,
				After: map[string]interface{}{
					"id":         float64(1),
					"type":       "account",
					"reference":  "alice",
					"properties": `{"username":"alice","email":"alice@mail.com"}`,
				},
			}

			// ACT
			result, err := transformer.TransformCDCEvent(ctx, cdcEvent)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(1))
			Expect(result[0].EventType).To(Equal(domain.EventTypeEntityCreated))
			Expect(result[0].EventID).NotTo(BeEmpty())
			Expect(result[0].IdempotencyKey).To(HaveLen(32))
			Expect(result[0].Data.Type).To(Equal("account"))
			Expect(result[0].Data.Reference).To(Equal("alice"))
			Expect(result[0].Data.Properties).To(Equal(map[string]domain.PropertyPair{
				"username": {Old: nil, New: "alice"},
				"email":    {Old: nil, New: "alice@mail.com"},
			}))
		})

		It("emits only the changed fields on update", func() {
			cdcEvent := &debezium.CDCEvent{
				Operation: "u",
				TsMs:      1700000000000,
				Source:    entitySource,
				Before: map[string]interface{}{
					"type": "account", "reference": "alice",
					"properties": `{"username":"alice","display_name":"Alice"}`,
				},
				After: map[string]interface{}{
					"type": "account", "reference": "alice",
					"properties": `{"username":"alice","display_name":"Alice L."}`,
				},
			}

			result, err := transformer.TransformCDCEvent(ctx, cdcEvent)

			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(1))
			Expect(result[0].EventType).To(Equal(domain.EventTypeEntityPropertiesUpdated))
			Expect(result[0].Data.Properties).To(Equal(map[string]domain.PropertyPair{
				"display_name": {Old: "Alice", New: "Alice L."},
			}))
		})

		It("drops updates that did not touch the properties", func() {
			props := `{"username":"alice"}`
			cdcEvent := &debezium.CDCEvent{
				Operation: "u",
				Source:    entitySource,
				Before:    map[string]interface{}{"type": "account", "reference": "alice", "properties": props},
				After:     map[string]interface{}{"type": "account", "reference": "alice", "properties": props},
			}

			result, err := transformer.TransformCDCEvent(ctx, cdcEvent)

			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeEmpty())
		})

		It("emits entity.deleted with the old values", func() {
			cdcEvent := &debezium.CDCEvent{
				Operation: "d",
				Source:    entitySource,
				Before: map[string]interface{}{
					"type": "item", "reference": "0001",
					"properties": map[string]interface{}{"gs1code": "0001"},
				},
			}

			result, err := transformer.TransformCDCEvent(ctx, cdcEvent)

			Expect(err).NotTo(HaveOccurred())
			Expect(result[0].EventType).To(Equal(domain.EventTypeEntityDeleted))
			Expect(result[0].Data.Properties).To(Equal(map[string]domain.PropertyPair{
				"gs1code": {Old: "0001", New: nil},
			}))
		})

		It("emits entity.deleted by id when the before row carries only the primary key", func() {
			// ARRANGE
			cdcEvent := &debezium.CDCEvent{
				Operation: "d",
				TsMs:      1700000000000,
				Source:    entitySource,
				Before:    map[string]interface{}{"id": float64(7)},
			}

			// ACT
			result, err := transformer.TransformCDCEvent(ctx, cdcEvent)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(1))
			Expect(result[0].EventType).To(Equal(domain.EventTypeEntityDeleted))
			Expect(result[0].Data.Reference).To(Equal("entity-7"))
			Expect(result[0].Data.Type).To(BeEmpty())
			Expect(result[0].Data.Properties).To(BeEmpty())
			Expect(result[0].IdempotencyKey).To(HaveLen(32))
		})

		It("fails when the reference is missing", func() {
			cdcEvent := &debezium.CDCEvent{
				Operation: "c",
				Source:    entitySource,
				After:     map[string]interface{}{"type": "account"},
			}

			_, err := transformer.TransformCDCEvent(ctx, cdcEvent)

			Expect(err).To(HaveOccurred())
		})
	})

	Context("when the change comes from the edges table", func() {
		It("emits relationship.created referencing both endpoints", func() {
			cdcEvent := &debezium.CDCEvent{
				Operation: "c",
				Source:    edgeSource,
				After: map[string]interface{}{
					"left_entity_id":    float64(1),
					"right_entity_id":   "2",
					"relationship_type": "friendship",
				},
			}

			result, err := transformer.TransformCDCEvent(ctx, cdcEvent)

			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(1))
			Expect(result[0].EventType).To(Equal(domain.EventTypeRelationshipCreated))
			Expect(result[0].Data.Reference).To(Equal("entity-1"))
			Expect(result[0].Data.TargetEntityReference).To(HaveValue(Equal("entity-2")))
			Expect(result[0].Data.Properties["relationship_type"]).To(Equal(domain.PropertyPair{New: "friendship"}))
		})

		It("emits relationship.deleted with the old type", func() {
			cdcEvent := &debezium.CDCEvent{
				Operation: "d",
				Source:    edgeSource,
				Before: map[string]interface{}{
					"left_entity_id":    float64(1),
					"right_entity_id":   float64(2),
					"relationship_type": "familyship",
				},
			}

			result, err := transformer.TransformCDCEvent(ctx, cdcEvent)

			Expect(err).NotTo(HaveOccurred())
			Expect(result[0].EventType).To(Equal(domain.EventTypeRelationshipDeleted))
			Expect(result[0].Data.Properties["relationship_type"]).To(Equal(domain.PropertyPair{Old: "familyship"}))
		})
	})

	Context("when a swap removes one edge and inserts the other", func() {
		It("emits the deletion and the creation in order", func() {
			// ARRANGE
			batch := []*debezium.CDCEvent{
				{
					Operation: "d",
					TsMs:      1700000000000,
					Source:    edgeSource,
					Before: map[string]interface{}{
						"id": float64(10), "left_entity_id": float64(1), "right_entity_id": float64(2),
						"relationship_type": "familyship",
					},
				},
				{
					Operation: "c",
					TsMs:      1700000000000,
					Source:    edgeSource,
					After: map[string]interface{}{
						"id": float64(11), "left_entity_id": float64(1), "right_entity_id": float64(2),
						"relationship_type": "friendship",
					},
				},
			}

			// ACT
			result, err := transformer.TransformCDCEvents(ctx, batch)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(2))
			Expect(result[0].EventType).To(Equal(domain.EventTypeRelationshipDeleted))
			Expect(result[0].Data.Properties["relationship_type"]).To(Equal(domain.PropertyPair{Old: "familyship"}))
			Expect(result[1].EventType).To(Equal(domain.EventTypeRelationshipCreated))
			Expect(result[0].IdempotencyKey).NotTo(Equal(result[1].IdempotencyKey))
		})
	})

	Context("when transforming a batch", func() {
		It("skips malformed events and keeps the order of the rest", func() {
			batch := []*debezium.CDCEvent{
				{Operation: "c", Source: entitySource, After: map[string]interface{}{"type": "account", "reference": "a1"}},
				{Operation: "c", Source: entitySource, After: map[string]interface{}{"type": "account"}},
				{Operation: "c", Source: entitySource, After: map[string]interface{}{"type": "account", "reference": "a2"}},
				{Operation: "c", Source: debezium.CDCSource{Table: "other"}, After: map[string]interface{}{}},
			}

			result, err := transformer.TransformCDCEvents(ctx, batch)

			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(2))
			Expect(result[0].Data.Reference).To(Equal("a1"))
			Expect(result[1].Data.Reference).To(Equal("a2"))
		})
	})
})
