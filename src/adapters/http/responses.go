package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"discoveryservice/src/domain"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to write JSON response", "error", err)
	}
}

// writeError traduz os erros de domínio para status HTTP.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *domain.ValidationError

	switch {
	case errors.As(err, &validationErr):
		s.writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: validationErr.Error()})
	case errors.Is(err, domain.ErrMissingField),
		errors.Is(err, domain.ErrInvalidField),
		errors.Is(err, domain.ErrInvalidRelationship):
		s.writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: err.Error()})
	case errors.Is(err, domain.ErrEntityNotFound):
		s.writeJSON(w, http.StatusNotFound, ErrorDTO{Error: err.Error()})
	case errors.Is(err, domain.ErrDuplicateKey):
		s.writeJSON(w, http.StatusConflict, ErrorDTO{Error: err.Error()})
	default:
		s.logger.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		s.writeJSON(w, http.StatusInternalServerError, ErrorDTO{Error: domain.ErrUnavailableServer.Error()})
	}
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "Invalid request body: " + err.Error()})
		return false
	}
	return true
}
