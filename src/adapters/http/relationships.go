package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"discoveryservice/src/domain"
	"discoveryservice/src/domain/entities"
	"discoveryservice/src/services/graph"
)

type relationshipAction func(ctx context.Context, from, to entities.Entity) error

// link resolve o sujeito pela rota e a conta de destino pelo corpo, e aplica a ação.
func (s *Server) link(subjects *graph.NodeRegistry, action relationshipAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue(subjects.Kind().KeyField())

		var body LinkRequest
		if !s.decodeBody(w, r, &body) {
			return
		}
		if body.Username == "" {
			s.writeError(w, r, &domain.ValidationError{Field: "username", Reason: domain.ReasonRequired})
			return
		}

		subject, err := subjects.Get(r.Context(), key)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		target, err := s.accounts.Get(r.Context(), body.Username)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := action(r.Context(), subject, target); err != nil {
			s.writeError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) ListOwnership(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	account, err := s.accounts.Get(r.Context(), username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	owned, err := s.relationships.Ownerships(r.Context(), account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, OwnershipDTO{Username: account.Key, Items: owned})
}

// AddOwnership cria o item quando ele ainda não existe.
func (s *Server) AddOwnership(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	var body LinkRequest
	if !s.decodeBody(w, r, &body) {
		return
	}

	account, err := s.accounts.Get(r.Context(), username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	item, err := s.findOrCreateItem(r.Context(), body.GS1Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.relationships.SetOwnership(r.Context(), account, item); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) RemoveOwnership(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	gs1code := r.PathValue("gs1code")

	account, err := s.accounts.Get(r.Context(), username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	item, err := s.items.Get(r.Context(), gs1code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.relationships.ClearOwnership(r.Context(), account, item); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) findOrCreateItem(ctx context.Context, gs1code string) (entities.Entity, error) {
	item, err := s.items.Get(ctx, gs1code)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, domain.ErrEntityNotFound) {
		return entities.Entity{}, err
	}

	item, err = s.items.Create(ctx, map[string]any{entities.KindItem.KeyField(): gs1code})
	if errors.Is(err, domain.ErrDuplicateKey) {
		// criado por outra requisição entre o Get e o Create
		return s.items.Get(ctx, gs1code)
	}
	if err != nil {
		return entities.Entity{}, fmt.Errorf("Server.findOrCreateItem - %w", err)
	}
	return item, nil
}
