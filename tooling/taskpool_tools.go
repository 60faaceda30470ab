package tooling

import (
	"encoding/json"
	"fmt"

	"github.com/chrysochos/society-agent-sub001/apperr"
	"github.com/chrysochos/society-agent-sub001/event"
	"github.com/chrysochos/society-agent-sub001/taskpool"
)

// TaskPoolTools wraps a taskpool.Pool as the tool-call surface described
// in spec section 4.6: claim_task/get_my_task/complete_task/fail_task
// for every worker, plus create_task/list_tasks/spawn_worker/reset_tasks/
// propose_new_agent for supervisors (catalog membership, not this type,
// enforces that split).
type TaskPoolTools struct {
	pool    *taskpool.Pool
	self    string
	sink    event.Sink
	spawner func(count int) ([]string, error)
}

// NewTaskPoolTools builds the tool surface for self's view of pool.
// spawner implements spawn_worker's actual worker-process creation; it
// is supplied by the worker package so tooling stays decoupled from
// process lifecycle.
func NewTaskPoolTools(pool *taskpool.Pool, self string, sink event.Sink, spawner func(count int) ([]string, error)) *TaskPoolTools {
	if sink == nil {
		sink = event.NopSink{}
	}
	return &TaskPoolTools{pool: pool, self: self, sink: sink, spawner: spawner}
}

type createTaskArgs struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    int             `json:"priority"`
	Context     taskpool.Context `json:"context"`
}

// CreateTask implements create_task.
func (t *TaskPoolTools) CreateTask(argsJSON json.RawMessage) (string, error) {
	var args createTaskArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "create_task arguments", err)
	}
	priority := args.Priority
	if priority == 0 {
		priority = 5
	}
	task, err := t.pool.CreateTask(t.self, args.Title, args.Description, args.Context, priority)
	if err != nil {
		return "", err
	}
	t.sink.Publish(event.New(event.KindTaskCreated, t.self, map[string]any{"taskId": task.ID, "title": task.Title}))
	return "created task " + task.ID, nil
}

// ClaimTask implements claim_task: claims the highest-priority available
// task for self.
func (t *TaskPoolTools) ClaimTask(json.RawMessage) (string, error) {
	task, ok, err := t.pool.ClaimNext(t.self)
	if err != nil {
		return "", err
	}
	if !ok {
		return "no task available", nil
	}
	t.sink.Publish(event.New(event.KindTaskClaimed, t.self, map[string]any{"taskId": task.ID}))
	return formatTask(task), nil
}

// GetMyTask implements get_my_task: the task self currently holds, if any.
func (t *TaskPoolTools) GetMyTask(json.RawMessage) (string, error) {
	tasks, err := t.pool.List()
	if err != nil {
		return "", err
	}
	for _, task := range tasks {
		if task.ClaimedBy == t.self && (task.Status == taskpool.StatusClaimed || task.Status == taskpool.StatusInProgress) {
			return formatTask(task), nil
		}
	}
	return "no active task", nil
}

type taskIDArgs struct {
	TaskID string `json:"task_id"`
}

type completeTaskArgs struct {
	TaskID  string           `json:"task_id"`
	Result  taskpool.Result  `json:"result"`
}

// CompleteTask implements complete_task.
func (t *TaskPoolTools) CompleteTask(argsJSON json.RawMessage) (string, error) {
	var args completeTaskArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "complete_task arguments", err)
	}
	task, err := t.pool.Complete(args.TaskID, args.Result)
	if err != nil {
		return "", err
	}
	t.sink.Publish(event.New(event.KindTaskCompleted, t.self, map[string]any{"taskId": task.ID}))
	return "completed " + task.ID, nil
}

type failTaskArgs struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason"`
}

// FailTask implements fail_task.
func (t *TaskPoolTools) FailTask(argsJSON json.RawMessage) (string, error) {
	var args failTaskArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "fail_task arguments", err)
	}
	task, err := t.pool.Fail(args.TaskID, args.Reason)
	if err != nil {
		return "", err
	}
	t.sink.Publish(event.New(event.KindTaskFailed, t.self, map[string]any{"taskId": task.ID, "reason": args.Reason}))
	return "failed " + task.ID + ", returned to pool", nil
}

// ListTasks implements list_tasks.
func (t *TaskPoolTools) ListTasks(json.RawMessage) (string, error) {
	tasks, err := t.pool.List()
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "(no tasks)", nil
	}
	var out string
	for _, task := range tasks {
		out += formatTask(task) + "\n"
	}
	return out, nil
}

func formatTask(task taskpool.Task) string {
	return fmt.Sprintf("%s [%s] priority=%d claimedBy=%s title=%q", task.ID, task.Status, task.Priority, task.ClaimedBy, task.Title)
}

type spawnWorkerArgs struct {
	Count int `json:"count"`
}

// SpawnWorker implements spawn_worker(count).
func (t *TaskPoolTools) SpawnWorker(argsJSON json.RawMessage) (string, error) {
	var args spawnWorkerArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "spawn_worker arguments", err)
	}
	if t.spawner == nil {
		return "", apperr.New(apperr.KindBlocked, "spawn_worker is not available in this catalog")
	}
	ids, err := t.spawner(args.Count)
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		t.sink.Publish(event.New(event.KindWorkerSpawned, t.self, map[string]any{"workerId": id}))
	}
	return fmt.Sprintf("spawned %d worker(s): %v", len(ids), ids), nil
}

type resetTasksArgs struct {
	MaxAgeMinutes  int  `json:"max_age_minutes,omitempty"`
	CleanupWorkers bool `json:"cleanup_workers,omitempty"`
}

// ResetTasks implements reset_tasks(max_age_minutes?, cleanup_workers?).
// cleanup_workers is accepted but ignored: no ephemeral workers are
// removed.
func (t *TaskPoolTools) ResetTasks(argsJSON json.RawMessage) (string, error) {
	var args resetTasksArgs
	_ = json.Unmarshal(argsJSON, &args)
	maxAge := taskpool.DefaultStaleAfter
	if args.MaxAgeMinutes > 0 {
		maxAge = minutesToDuration(args.MaxAgeMinutes)
	}
	n, err := t.pool.ResetStale(maxAge, t.self)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("reset %d stale task(s)", n), nil
}

type proposeNewAgentArgs struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Purpose   string `json:"purpose"`
	ReportsTo string `json:"reports_to,omitempty"`
}

// ProposeNewAgent implements propose_new_agent: it emits a structured
// system event for a human or supervisor to act on; it does not create
// the agent itself.
func (t *TaskPoolTools) ProposeNewAgent(argsJSON json.RawMessage) (string, error) {
	var args proposeNewAgentArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "propose_new_agent arguments", err)
	}
	t.sink.Publish(event.New(event.KindSystemEvent, t.self, map[string]any{
		"proposal": "new_agent", "name": args.Name, "role": args.Role, "purpose": args.Purpose, "reportsTo": args.ReportsTo,
	}))
	return fmt.Sprintf("proposed new agent %q (role=%s)", args.Name, args.Role), nil
}
