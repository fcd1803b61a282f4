package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"discoveryservice/src/services/graph"
)

// Server representa o servidor HTTP da API
type Server struct {
	logger         *slog.Logger
	server         *http.Server
	mux            *http.ServeMux
	addr           string
	accounts       *graph.NodeRegistry
	items          *graph.NodeRegistry
	relationships  *graph.RelationshipManager
	classification *graph.ClassificationEngine
}

// NewServer cria uma nova instância do servidor. metricsHandler pode ser nil.
func NewServer(
	logger *slog.Logger,
	addr string,
	accounts *graph.NodeRegistry,
	items *graph.NodeRegistry,
	relationships *graph.RelationshipManager,
	classification *graph.ClassificationEngine,
	metricsHandler http.Handler,
) *Server {
	server := &Server{
		mux:            http.NewServeMux(),
		addr:           addr,
		logger:         logger,
		accounts:       accounts,
		items:          items,
		relationships:  relationships,
		classification: classification,
	}

	server.server = &http.Server{
		Addr:         addr,
		Handler:      server.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Contas
	server.mux.HandleFunc("POST /v1/accounts", server.createNode(accounts))
	server.mux.HandleFunc("GET /v1/accounts", server.listNodes(accounts))
	server.mux.HandleFunc("GET /v1/accounts/{username}", server.getNode(accounts))
	server.mux.HandleFunc("PATCH /v1/accounts/{username}", server.patchNode(accounts))
	server.mux.HandleFunc("DELETE /v1/accounts/{username}", server.deleteNode(accounts))

	server.mux.HandleFunc("POST /v1/accounts/{username}/friendship", server.link(accounts, server.relationships.SetFriendship))
	server.mux.HandleFunc("POST /v1/accounts/{username}/unfriendship", server.link(accounts, server.relationships.ClearFriendship))
	server.mux.HandleFunc("POST /v1/accounts/{username}/familyship", server.link(accounts, server.relationships.SetFamilyship))
	server.mux.HandleFunc("POST /v1/accounts/{username}/unfamilyship", server.link(accounts, server.relationships.ClearFamilyship))
	server.mux.HandleFunc("GET /v1/accounts/{username}/othership", server.othership(accounts))

	server.mux.HandleFunc("GET /v1/accounts/{username}/ownership", server.ListOwnership)
	server.mux.HandleFunc("POST /v1/accounts/{username}/ownership", server.AddOwnership)
	server.mux.HandleFunc("DELETE /v1/accounts/{username}/ownership/{gs1code}", server.RemoveOwnership)

	// Itens
	server.mux.HandleFunc("POST /v1/items", server.createNode(items))
	server.mux.HandleFunc("GET /v1/items", server.listNodes(items))
	server.mux.HandleFunc("DELETE /v1/items", server.DeleteAllItems)
	server.mux.HandleFunc("GET /v1/items/{gs1code}", server.getNode(items))
	server.mux.HandleFunc("PATCH /v1/items/{gs1code}", server.patchNode(items))
	server.mux.HandleFunc("DELETE /v1/items/{gs1code}", server.deleteNode(items))

	server.mux.HandleFunc("POST /v1/items/{gs1code}/friendship", server.link(items, server.relationships.SetFriendship))
	server.mux.HandleFunc("POST /v1/items/{gs1code}/unfriendship", server.link(items, server.relationships.ClearFriendship))
	server.mux.HandleFunc("POST /v1/items/{gs1code}/familyship", server.link(items, server.relationships.SetFamilyship))
	server.mux.HandleFunc("POST /v1/items/{gs1code}/unfamilyship", server.link(items, server.relationships.ClearFamilyship))
	server.mux.HandleFunc("GET /v1/items/{gs1code}/othership", server.othership(items))

	// Operacional
	server.mux.HandleFunc("GET /healthz", server.Health)
	if metricsHandler != nil {
		server.mux.Handle("GET /metrics", metricsHandler)
	}

	return server
}

// Handler expõe o roteador (usado pelos testes com httptest).
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start inicia o servidor HTTP e bloqueia até o Shutdown.
func (s *Server) Start() error {
	s.logger.Info("Server started", "addr", s.addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown encerra o servidor HTTP de forma graciosa
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
