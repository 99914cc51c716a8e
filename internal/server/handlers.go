package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hivemind-db/hivemind/internal/engine"
	"github.com/hivemind-db/hivemind/internal/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine sentinel errors onto status codes. Anything not
// recognized is treated as a caller mistake.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrWrongState), errors.Is(err, engine.ErrNotOwner):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrProviderUnavailable):
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeJSON parses the request body into v, answering 400 on malformed
// input. The caller should return immediately when it reports false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

// pathID parses the {id} path segment, answering 400 on garbage.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

// Memories

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var req types.AddMemoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mem, err := s.engine.AddMemory(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mem)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	mem, err := s.engine.GetMemory(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req types.UpdateMemoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mem, err := s.engine.UpdateMemory(id, req, "api")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

func (s *Server) handleInvalidateMemory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req types.InvalidateMemoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	changedBy := req.ChangedBy
	if changedBy == "" {
		changedBy = "api"
	}
	mem, err := s.engine.InvalidateMemory(id, req.Reason, changedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

func (s *Server) handleMemoryHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	history, err := s.engine.GetMemoryHistory(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeInvalidated, _ := strconv.ParseBool(q.Get("include_invalidated"))
	memories := s.engine.ListMemories(q.Get("agent_id"), q.Get("user_id"), includeInvalidated)
	writeJSON(w, http.StatusOK, memories)
}

// Search and extraction

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req types.SearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	results, err := s.engine.SearchMemories(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req types.ExtractRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.engine.ExtractAndStore(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Knowledge graph

func (s *Server) handleAddEntity(w http.ResponseWriter, r *http.Request) {
	var req types.AddEntityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ent, err := s.engine.AddEntity(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ent)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ent, err := s.engine.GetEntity(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (s *Server) handleFindEntity(w http.ResponseWriter, r *http.Request) {
	var req types.FindEntityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ent, err := s.engine.FindEntityByName(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (s *Server) handleAddRelationship(w http.ResponseWriter, r *http.Request) {
	var req types.AddRelationshipRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rel, err := s.engine.AddRelationship(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

func (s *Server) handleEntityRelationships(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.engine.GetEntity(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.GetEntityRelationships(id))
}

func (s *Server) handleTraverse(w http.ResponseWriter, r *http.Request) {
	var req types.TraverseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	depth := req.Depth
	if depth <= 0 {
		depth = 2
	}
	writeJSON(w, http.StatusOK, s.engine.TraverseGraph(req.EntityID, depth))
}

// Channels

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req types.CreateChannelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ch, created, err := s.engine.CreateChannel(req)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, ch)
}

func (s *Server) handleListChannels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.List())
}

func (s *Server) handleShareToChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req types.ShareToChannelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.ShareMemory(id, req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "shared"})
}

// Tasks

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req types.CreateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := s.engine.CreateTask(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tasks := s.engine.ListTasks(types.TaskStatus(q.Get("status")), q.Get("agent_id"))
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := s.engine.GetTask(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	events, err := s.engine.GetTaskEvents(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleClaimTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req types.ClaimTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := s.engine.ClaimTask(id, req.AgentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req types.StartTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := s.engine.StartTask(id, req.AgentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req types.CompleteTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := s.engine.CompleteTask(id, req.AgentID, req.Result)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleFailTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req types.FailTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := s.engine.FailTask(id, req.AgentID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req types.CancelTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := s.engine.CancelTask(id, req.CancelledBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Agents and episodes

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterAgentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	agent, err := s.engine.RegisterAgent(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ListAgents())
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	agent, err := s.engine.HeartbeatAgent(r.PathValue("agent_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleAddEpisode(w http.ResponseWriter, r *http.Request) {
	var ep types.Episode
	if !decodeJSON(w, r, &ep) {
		return
	}
	writeJSON(w, http.StatusCreated, s.engine.AddEpisode(ep))
}

func (s *Server) handleListEpisodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ListEpisodes(r.URL.Query().Get("session_id")))
}
