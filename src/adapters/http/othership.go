package http

import (
	"net/http"

	"discoveryservice/src/services/graph"
)

func (s *Server) othership(subjects *graph.NodeRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue(subjects.Kind().KeyField())

		subject, err := subjects.Get(r.Context(), key)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		classification, err := s.classification.Classify(r.Context(), subject)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, MapClassificationToResponse(subject.Kind, classification))
	}
}
