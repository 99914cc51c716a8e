package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/hivemind-db/hivemind/internal/types"
)

// RegisterAgent registers an agent, or refreshes an existing registration.
// Re-registration updates the descriptive fields and marks the agent
// online; its memory count survives.
func (e *Engine) RegisterAgent(req types.RegisterAgentRequest) (types.Agent, error) {
	if req.AgentID == "" {
		return types.Agent{}, fmt.Errorf("agent_id cannot be empty")
	}

	var registered types.Agent
	e.agents.Update(req.AgentID, func(agent types.Agent, exists bool) (types.Agent, bool) {
		if !exists {
			agent = types.Agent{AgentID: req.AgentID}
		}
		agent.Name = req.Name
		agent.AgentType = req.AgentType
		agent.Capabilities = append([]string(nil), req.Capabilities...)
		agent.Status = types.AgentOnline
		agent.LastSeen = time.Now().UTC()
		if req.Metadata != nil {
			agent.Metadata = req.Metadata
		}
		registered = agent.Clone()

		e.emit(types.ReplicationEvent{Type: types.EventAgentRegistered, Agent: &agent})
		return agent, true
	})
	return registered, nil
}

// GetAgent returns a copy of the agent, or ErrNotFound.
func (e *Engine) GetAgent(agentID string) (types.Agent, error) {
	agent, ok := e.agents.Get(agentID)
	if !ok {
		return types.Agent{}, fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	return agent.Clone(), nil
}

// ListAgents returns all registered agents sorted by id.
func (e *Engine) ListAgents() []types.Agent {
	out := e.agents.Values()
	for i := range out {
		out[i] = out[i].Clone()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// HeartbeatAgent bumps last_seen and marks the agent online.
func (e *Engine) HeartbeatAgent(agentID string) (types.Agent, error) {
	var beat types.Agent
	found := false
	e.agents.Update(agentID, func(agent types.Agent, exists bool) (types.Agent, bool) {
		if !exists {
			return agent, false
		}
		found = true
		agent.Status = types.AgentOnline
		agent.LastSeen = time.Now().UTC()
		beat = agent.Clone()
		return agent, true
	})
	if !found {
		return types.Agent{}, fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	return beat, nil
}

// AddEpisode stores a session summary.
func (e *Engine) AddEpisode(ep types.Episode) types.Episode {
	ep.ID = e.nextEpisodeID.Add(1)
	e.episodes.Set(ep.ID, ep)
	return ep.Clone()
}

// ListEpisodes returns episodes, optionally filtered by session, sorted by
// id.
func (e *Engine) ListEpisodes(sessionID string) []types.Episode {
	out := make([]types.Episode, 0)
	e.episodes.Range(func(_ int64, ep types.Episode) bool {
		if sessionID != "" && ep.SessionID != sessionID {
			return true
		}
		out = append(out, ep.Clone())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
