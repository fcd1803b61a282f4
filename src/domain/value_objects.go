package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField = errors.New("missing field")
	ErrInvalidField = errors.New("invalid field")
	ErrDuplicateKey = errors.New("duplicate key")

	ErrEntityNotFound = errors.New("entity not found")

	// ErrStorage envolve qualquer falha do backend; a causa original continua acessível via errors.Is/As.
	ErrStorage = errors.New("storage failure")

	ErrInvalidRelationship = errors.New("invalid relationship")
	ErrCursorConsumed      = errors.New("cursor already consumed")

	ErrUnavailableServer = errors.New("Oops, something unexpected happened. Please try again later.")
)

// Motivos reportados em ValidationError.
const (
	ReasonRequired = "required"
	ReasonTooShort = "too short"
	ReasonTooLong  = "too long"
	ReasonFormat   = "format"
)

// ValidationError descreve a primeira violação encontrada ao validar um campo.
type ValidationError struct {
	Field        string
	Reason       string
	Requirements string
}

func (e *ValidationError) Error() string {
	if e.Reason == ReasonRequired {
		return fmt.Sprintf("Missing %s (required).", e.Field)
	}
	return fmt.Sprintf("Invalid %s (%s). Requirements: %s", e.Field, e.Reason, e.Requirements)
}

func (e *ValidationError) Unwrap() error {
	if e.Reason == ReasonRequired {
		return ErrMissingField
	}
	return ErrInvalidField
}

// StorageError marca err como falha de backend preservando a causa.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// DuplicateKeyError traduz a violação de unicidade para o erro de domínio.
func DuplicateKeyError(field string, key string) error {
	return fmt.Errorf("%w: the %s '%s' is taken", ErrDuplicateKey, field, key)
}

// ############################################################
// ############ PROCESSO DE CLASSIFICAÇÃO DO GRAFO ############
// ############################################################

// CandidateRow é uma linha da consulta de classificação: um candidato e
// quais arestas existem entre ele e o sujeito.
type CandidateRow struct {
	Key        string `json:"key"`
	Friendship bool   `json:"friendship"`
	Familyship bool   `json:"familyship"`
	// Owner indica que o candidato possui o sujeito (ownership candidato -> sujeito).
	Owner bool `json:"owner"`
}

// Classification particiona os candidatos em relação a um sujeito.
type Classification struct {
	Friends []string `json:"friends"`
	Family  []string `json:"family"`
	Others  []string `json:"others"`
	// Owners são os candidatos excluídos dos três baldes (apenas quando o sujeito é um item).
	Owners []string `json:"owners"`
}

// Total devolve a quantidade de candidatos considerados.
func (c Classification) Total() int {
	return len(c.Friends) + len(c.Family) + len(c.Others) + len(c.Owners)
}
