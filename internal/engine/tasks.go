package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/hivemind-db/hivemind/internal/types"
)

// CreateTask enqueues a task in pending state and logs its created event.
func (e *Engine) CreateTask(req types.CreateTaskRequest) (types.Task, error) {
	if req.Title == "" {
		return types.Task{}, fmt.Errorf("task title cannot be empty")
	}
	now := time.Now().UTC()
	task := types.Task{
		ID:                   e.nextTaskID.Add(1),
		Title:                req.Title,
		Description:          req.Description,
		Status:               types.TaskPending,
		Priority:             req.Priority,
		RequiredCapabilities: append([]string(nil), req.RequiredCapabilities...),
		CreatedBy:            req.CreatedBy,
		Dependencies:         append([]int64(nil), req.Dependencies...),
		CreatedAt:            now,
		UpdatedAt:            now,
		Deadline:             req.Deadline,
		Metadata:             req.Metadata,
	}

	e.tasks.Update(task.ID, func(_ types.Task, _ bool) (types.Task, bool) {
		e.appendTaskEvent(task.ID, types.TaskEventCreated, req.CreatedBy,
			"Task created: "+task.Title)
		e.emit(types.ReplicationEvent{Type: types.EventTaskCreated, Task: &task})
		e.publishTask(types.WsServerTaskCreated, &task)
		return task, true
	})
	return task.Clone(), nil
}

// GetTask returns a copy of the task, or ErrNotFound.
func (e *Engine) GetTask(id int64) (types.Task, error) {
	task, ok := e.tasks.Get(id)
	if !ok {
		return types.Task{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return task.Clone(), nil
}

// ListTasks filters by status and/or assigned agent. Results are sorted by
// id.
func (e *Engine) ListTasks(status types.TaskStatus, agentID string) []types.Task {
	out := make([]types.Task, 0)
	e.tasks.Range(func(_ int64, task types.Task) bool {
		if status != "" && task.Status != status {
			return true
		}
		if agentID != "" && task.AssignedAgent != agentID {
			return true
		}
		out = append(out, task.Clone())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClaimTask moves a pending task to claimed for the agent.
func (e *Engine) ClaimTask(id int64, agentID string) (types.Task, error) {
	return e.transition(id, func(task *types.Task) error {
		if task.Status != types.TaskPending {
			return fmt.Errorf("task %d: %w: status is %s, expected %s",
				id, ErrWrongState, task.Status, types.TaskPending)
		}
		task.Status = types.TaskClaimed
		task.AssignedAgent = agentID
		return nil
	}, taskEffect{
		eventType: types.TaskEventClaimed,
		agentID:   agentID,
		details:   "Task claimed by agent " + agentID,
		replType:  types.EventTaskClaimed,
		wsType:    types.WsServerTaskClaimed,
	})
}

// StartTask moves a claimed task to in_progress. Only the claiming agent
// may start it.
func (e *Engine) StartTask(id int64, agentID string) (types.Task, error) {
	return e.transition(id, func(task *types.Task) error {
		if task.Status != types.TaskClaimed {
			return fmt.Errorf("task %d: %w: status is %s, expected %s",
				id, ErrWrongState, task.Status, types.TaskClaimed)
		}
		if task.AssignedAgent != agentID {
			return fmt.Errorf("task %d: %w: assigned to %s, not %s",
				id, ErrNotOwner, task.AssignedAgent, agentID)
		}
		task.Status = types.TaskInProgress
		return nil
	}, taskEffect{
		eventType: types.TaskEventStarted,
		agentID:   agentID,
		details:   "Task started by agent " + agentID,
		wsType:    types.WsServerTaskUpdated,
	})
}

// CompleteTask finishes an in-progress task. Only the assigned agent may
// complete it.
func (e *Engine) CompleteTask(id int64, agentID, result string) (types.Task, error) {
	return e.transition(id, func(task *types.Task) error {
		if task.Status != types.TaskInProgress {
			return fmt.Errorf("task %d: %w: status is %s, expected %s",
				id, ErrWrongState, task.Status, types.TaskInProgress)
		}
		if task.AssignedAgent != agentID {
			return fmt.Errorf("task %d: %w: assigned to %s, not %s",
				id, ErrNotOwner, task.AssignedAgent, agentID)
		}
		task.Status = types.TaskCompleted
		task.Result = result
		return nil
	}, taskEffect{
		eventType: types.TaskEventCompleted,
		agentID:   agentID,
		details:   "Task completed: " + truncate(result, 100),
		replType:  types.EventTaskCompleted,
		wsType:    types.WsServerTaskCompleted,
	})
}

// FailTask marks a claimed or in-progress task as failed. Any agent may
// report the failure.
func (e *Engine) FailTask(id int64, agentID, reason string) (types.Task, error) {
	return e.transition(id, func(task *types.Task) error {
		if task.Status != types.TaskClaimed && task.Status != types.TaskInProgress {
			return fmt.Errorf("task %d: %w: status is %s, expected %s or %s",
				id, ErrWrongState, task.Status, types.TaskClaimed, types.TaskInProgress)
		}
		task.Status = types.TaskFailed
		task.Result = reason
		return nil
	}, taskEffect{
		eventType: types.TaskEventFailed,
		agentID:   agentID,
		details:   "Task failed: " + truncate(reason, 100),
		replType:  types.EventTaskFailed,
		wsType:    types.WsServerTaskFailed,
	})
}

// CancelTask terminates a task that has not reached a terminal state.
func (e *Engine) CancelTask(id int64, cancelledBy string) (types.Task, error) {
	return e.transition(id, func(task *types.Task) error {
		if task.Status.IsTerminal() {
			return fmt.Errorf("task %d: %w: status %s is terminal",
				id, ErrWrongState, task.Status)
		}
		task.Status = types.TaskCancelled
		return nil
	}, taskEffect{
		eventType: types.TaskEventCancelled,
		agentID:   cancelledBy,
		details:   "Task cancelled by " + cancelledBy,
		wsType:    types.WsServerTaskUpdated,
	})
}

// GetTaskEvents returns the task's append-only event log in order.
func (e *Engine) GetTaskEvents(id int64) ([]types.TaskEvent, error) {
	if _, ok := e.tasks.Get(id); !ok {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	events, _ := e.taskEvents.Get(id)
	return append([]types.TaskEvent(nil), events...), nil
}

// taskEffect describes the event log entry, replication event, and channel
// publish attached to a successful transition.
type taskEffect struct {
	eventType types.TaskEventType
	agentID   string
	details   string
	replType  string
	wsType    string
}

// transition applies a guarded state change atomically: the record
// rewrite, event append, replication emit, and publish happen as a unit
// under the task's shard lock, or not at all when the guard rejects.
func (e *Engine) transition(id int64, guard func(*types.Task) error, effect taskEffect) (types.Task, error) {
	var result types.Task
	var guardErr error
	found := false

	e.tasks.Update(id, func(task types.Task, ok bool) (types.Task, bool) {
		if !ok {
			return task, false
		}
		found = true
		if err := guard(&task); err != nil {
			guardErr = err
			return task, false
		}
		task.UpdatedAt = time.Now().UTC()

		e.appendTaskEvent(id, effect.eventType, effect.agentID, effect.details)
		if effect.replType != "" {
			e.emit(types.ReplicationEvent{Type: effect.replType, Task: &task})
		}
		e.publishTask(effect.wsType, &task)

		result = task.Clone()
		return task, true
	})

	if !found {
		return types.Task{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if guardErr != nil {
		return types.Task{}, guardErr
	}
	return result, nil
}

func (e *Engine) appendTaskEvent(taskID int64, eventType types.TaskEventType, agentID, details string) {
	event := types.TaskEvent{
		ID:        e.nextTaskEventID.Add(1),
		TaskID:    taskID,
		EventType: eventType,
		AgentID:   agentID,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
	e.taskEvents.Update(taskID, func(events []types.TaskEvent, _ bool) ([]types.TaskEvent, bool) {
		return append(events, event), true
	})
}

func (e *Engine) publishTask(wsType string, task *types.Task) {
	e.hub.Publish(types.ChannelNameTasks, types.WsServerMessage{
		Type:    wsType,
		Channel: types.ChannelNameTasks,
		Task:    task,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
