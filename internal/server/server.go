// Package server exposes the engine over HTTP and WebSocket under /api/v1.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hivemind-db/hivemind/internal/channels"
	"github.com/hivemind-db/hivemind/internal/engine"
)

// Server wraps the engine with the HTTP surface.
type Server struct {
	engine     *engine.Engine
	hub        *channels.Hub
	httpServer *http.Server
	listener   net.Listener
	addr       string
	log        *slog.Logger
	mu         sync.RWMutex
}

// New creates a server bound to addr once Start is called.
func New(eng *engine.Engine, addr string, log *slog.Logger) *Server {
	return &Server{
		engine: eng,
		hub:    eng.Hub(),
		addr:   addr,
		log:    log.With("component", "server"),
	}
}

// Start listens and serves until the context is cancelled, then shuts down
// gracefully. A bind failure is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info("http server listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once listening, or the configured address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("POST /api/v1/memories", s.handleAddMemory)
	mux.HandleFunc("GET /api/v1/memories", s.handleListMemories)
	mux.HandleFunc("GET /api/v1/memories/{id}", s.handleGetMemory)
	mux.HandleFunc("PUT /api/v1/memories/{id}", s.handleUpdateMemory)
	mux.HandleFunc("DELETE /api/v1/memories/{id}", s.handleInvalidateMemory)
	mux.HandleFunc("GET /api/v1/memories/{id}/history", s.handleMemoryHistory)

	mux.HandleFunc("POST /api/v1/search", s.handleSearch)
	mux.HandleFunc("POST /api/v1/extract", s.handleExtract)

	mux.HandleFunc("POST /api/v1/entities", s.handleAddEntity)
	mux.HandleFunc("POST /api/v1/entities/find", s.handleFindEntity)
	mux.HandleFunc("GET /api/v1/entities/{id}", s.handleGetEntity)
	mux.HandleFunc("GET /api/v1/entities/{id}/relationships", s.handleEntityRelationships)
	mux.HandleFunc("POST /api/v1/relationships", s.handleAddRelationship)
	mux.HandleFunc("POST /api/v1/graph/traverse", s.handleTraverse)

	mux.HandleFunc("POST /api/v1/channels", s.handleCreateChannel)
	mux.HandleFunc("GET /api/v1/channels", s.handleListChannels)
	mux.HandleFunc("POST /api/v1/channels/{id}/share", s.handleShareToChannel)

	mux.HandleFunc("POST /api/v1/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /api/v1/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/v1/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("GET /api/v1/tasks/{id}/events", s.handleTaskEvents)
	mux.HandleFunc("POST /api/v1/tasks/{id}/claim", s.handleClaimTask)
	mux.HandleFunc("POST /api/v1/tasks/{id}/start", s.handleStartTask)
	mux.HandleFunc("POST /api/v1/tasks/{id}/complete", s.handleCompleteTask)
	mux.HandleFunc("POST /api/v1/tasks/{id}/fail", s.handleFailTask)
	mux.HandleFunc("POST /api/v1/tasks/{id}/cancel", s.handleCancelTask)

	mux.HandleFunc("POST /api/v1/agents/register", s.handleRegisterAgent)
	mux.HandleFunc("GET /api/v1/agents", s.handleListAgents)
	mux.HandleFunc("POST /api/v1/agents/{agent_id}/heartbeat", s.handleHeartbeat)

	mux.HandleFunc("POST /api/v1/episodes", s.handleAddEpisode)
	mux.HandleFunc("GET /api/v1/episodes", s.handleListEpisodes)

	mux.HandleFunc("GET /api/v1/status", s.handleStatus)

	return mux
}
