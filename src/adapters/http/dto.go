package http

import (
	"time"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"
)

type EntityDTO struct {
	Kind       string            `json:"kind"`
	Key        string            `json:"key"`
	Properties map[string]string `json:"properties"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// LinkRequest é o corpo dos POSTs de relacionamento. username aponta para a
// conta de destino; gs1code para o item em ownership.
type LinkRequest struct {
	Username string `json:"username"`
	GS1Code  string `json:"gs1code"`
}

type OthershipDTO struct {
	Friendships []string `json:"friendships"`
	Familyships []string `json:"familyships"`
	Others      []string `json:"others"`
	Owners      []string `json:"owners,omitempty"`
}

type OwnershipDTO struct {
	Username string   `json:"username"`
	Items    []string `json:"items"`
}

type DeleteAllDTO struct {
	Deleted int64 `json:"deleted"`
}

type ErrorDTO struct {
	Error string `json:"error"`
}

func MapEntityToResponse(entity entities.Entity) EntityDTO {
	properties := entity.Properties
	if properties == nil {
		properties = map[string]string{}
	}

	return EntityDTO{
		Kind:       string(entity.Kind),
		Key:        entity.Key,
		Properties: properties,
		CreatedAt:  entity.CreatedAt,
		UpdatedAt:  entity.UpdatedAt,
	}
}

func MapClassificationToResponse(subjectKind entities.Kind, classification domain.Classification) OthershipDTO {
	dto := OthershipDTO{
		Friendships: classification.Friends,
		Familyships: classification.Family,
		Others:      classification.Others,
	}
	if subjectKind == entities.KindItem {
		dto.Owners = classification.Owners
	}
	return dto
}
