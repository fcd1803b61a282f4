package graph

import (
	"context"
	"fmt"
	"slices"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"
	"discoveryservice/src/repositories"
)

// ClassificationEngine particiona todas as contas (exceto o próprio sujeito)
// em amigos, família e outros em relação ao sujeito.
type ClassificationEngine struct {
	store repositories.GraphStore
}

func NewClassificationEngine(store repositories.GraphStore) *ClassificationEngine {
	return &ClassificationEngine{store: store}
}

func (ce *ClassificationEngine) Classify(ctx context.Context, subject entities.Entity) (domain.Classification, error) {
	rows, err := ce.store.ClassifyCandidates(ctx, subject.Ref(), entities.KindAccount)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("ClassificationEngine.Classify - failed to classify '%s': %w", subject.Ref(), err)
	}
	return Partition(subject.Kind, rows), nil
}

// Partition distribui cada candidato em exatamente um balde, por prioridade:
// dono do item (só para sujeito item) > friendship > familyship > others.
func Partition(subjectKind entities.Kind, rows []domain.CandidateRow) domain.Classification {
	result := domain.Classification{
		Friends: make([]string, 0),
		Family:  make([]string, 0),
		Others:  make([]string, 0),
		Owners:  make([]string, 0),
	}

	for _, row := range rows {
		switch {
		case subjectKind == entities.KindItem && row.Owner:
			result.Owners = append(result.Owners, row.Key)
		case row.Friendship:
			result.Friends = append(result.Friends, row.Key)
		case row.Familyship:
			result.Family = append(result.Family, row.Key)
		default:
			result.Others = append(result.Others, row.Key)
		}
	}

	slices.Sort(result.Friends)
	slices.Sort(result.Family)
	slices.Sort(result.Others)
	slices.Sort(result.Owners)
	return result
}
