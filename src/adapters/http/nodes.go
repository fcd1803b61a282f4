package http

import (
	"net/http"

	"discoveryservice/src/services/graph"
)

// Os handlers de nó são compartilhados entre contas e itens; a chave vem do
// parâmetro de rota com o nome do campo chave do tipo (username / gs1code).
func (s *Server) createNode(registry *graph.NodeRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if !s.decodeBody(w, r, &body) {
			return
		}

		entity, err := registry.Create(r.Context(), body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.logger.InfoContext(r.Context(), "Node created", "kind", entity.Kind, "key", entity.Key)
		s.writeJSON(w, http.StatusCreated, MapEntityToResponse(entity))
	}
}

func (s *Server) listNodes(registry *graph.NodeRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := make([]EntityDTO, 0)
		for entity, err := range registry.GetAll(r.Context()) {
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			response = append(response, MapEntityToResponse(entity))
		}

		s.writeJSON(w, http.StatusOK, response)
	}
}

func (s *Server) getNode(registry *graph.NodeRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue(registry.Kind().KeyField())

		entity, err := registry.Get(r.Context(), key)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, MapEntityToResponse(entity))
	}
}

func (s *Server) patchNode(registry *graph.NodeRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue(registry.Kind().KeyField())

		var body map[string]any
		if !s.decodeBody(w, r, &body) {
			return
		}

		entity, err := registry.Get(r.Context(), key)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := registry.Patch(r.Context(), &entity, body); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, MapEntityToResponse(entity))
	}
}

func (s *Server) deleteNode(registry *graph.NodeRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue(registry.Kind().KeyField())

		entity, err := registry.Get(r.Context(), key)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := registry.Delete(r.Context(), entity); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.logger.InfoContext(r.Context(), "Node deleted", "kind", entity.Kind, "key", entity.Key)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) DeleteAllItems(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.items.DeleteAll(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.InfoContext(r.Context(), "All items deleted", "deleted", deleted)
	s.writeJSON(w, http.StatusOK, DeleteAllDTO{Deleted: deleted})
}
