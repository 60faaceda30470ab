package taskpool

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/chrysochos/society-agent-sub001/apperr"
	"github.com/chrysochos/society-agent-sub001/store"
	"github.com/google/uuid"
)

// Pool serializes all task operations for one project behind a single
// in-process lock; cross-process safety comes from the underlying
// snapshot's atomic rename (spec section 4.5).
type Pool struct {
	projectID string
	snapshot  *store.Snapshot
	mu        sync.Mutex
}

// New opens the task pool for a project, backed by a snapshot file at
// {sharedDir}/tasks-{projectID}.json.
func New(sharedDir, projectID string) *Pool {
	return &Pool{
		projectID: projectID,
		snapshot:  store.NewSnapshot(filepath.Join(sharedDir, "tasks-"+projectID+".json")),
	}
}

func (p *Pool) readAllLocked() (map[string]Task, error) {
	records := make(map[string]json.RawMessage)
	if err := p.snapshot.Read(records); err != nil {
		return nil, err
	}
	tasks := make(map[string]Task, len(records))
	for id, raw := range records {
		var t Task
		if err := json.Unmarshal(raw, &t); err != nil {
			continue
		}
		tasks[id] = t
	}
	return tasks, nil
}

func (p *Pool) writeLocked(t Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return apperr.Wrap(apperr.KindIO, "encode task", err)
	}
	return p.snapshot.Update(t.ID, data)
}

// CreateTask appends a new task with status=available.
func (p *Pool) CreateTask(by, title, desc string, ctx Context, priority int) (Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := Task{
		ID:          uuid.New().String(),
		Title:       title,
		Description: desc,
		Priority:    priority,
		Status:      StatusAvailable,
		CreatedBy:   by,
		CreatedAt:   time.Now(),
		Context:     ctx,
	}
	if err := p.writeLocked(t); err != nil {
		return Task{}, err
	}
	return t, nil
}

// ClaimNext selects the highest-priority available task (tiebreak by
// creation order) and atomically claims it for by. Returns ok=false if
// the pool has no available task, and an AlreadyHasTask error if by
// already holds an active one.
func (p *Pool) ClaimNext(by string) (Task, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tasks, err := p.readAllLocked()
	if err != nil {
		return Task{}, false, err
	}
	if err := p.assertNoActiveTaskLocked(tasks, by); err != nil {
		return Task{}, false, err
	}

	var candidates []Task
	for _, t := range tasks {
		if t.Status == StatusAvailable {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return Task{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	t := candidates[0]
	now := time.Now()
	t.Status = StatusClaimed
	t.ClaimedBy = by
	t.ClaimedAt = &now
	if err := p.writeLocked(t); err != nil {
		return Task{}, false, err
	}
	return t, true, nil
}

// Claim targets a specific task id; fails if it is not available.
func (p *Pool) Claim(taskID, by string) (Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tasks, err := p.readAllLocked()
	if err != nil {
		return Task{}, err
	}
	if err := p.assertNoActiveTaskLocked(tasks, by); err != nil {
		return Task{}, err
	}
	t, ok := tasks[taskID]
	if !ok {
		return Task{}, apperr.New(apperr.KindNotFound, "task not found: "+taskID)
	}
	if t.Status != StatusAvailable {
		return Task{}, apperr.New(apperr.KindInvalidState, "task not available: "+string(t.Status))
	}
	now := time.Now()
	t.Status = StatusClaimed
	t.ClaimedBy = by
	t.ClaimedAt = &now
	if err := p.writeLocked(t); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (p *Pool) assertNoActiveTaskLocked(tasks map[string]Task, by string) error {
	for _, t := range tasks {
		if t.ClaimedBy == by && (t.Status == StatusClaimed || t.Status == StatusInProgress) {
			return apperr.New(apperr.KindAlreadyHasTask, "agent already holds an active task: "+by)
		}
	}
	return nil
}

// Start transitions claimed -> in-progress for the same claimant only.
func (p *Pool) Start(taskID, by string) (Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.getLocked(taskID)
	if err != nil {
		return Task{}, err
	}
	if t.Status != StatusClaimed || t.ClaimedBy != by {
		return Task{}, apperr.New(apperr.KindInvalidState, "task not claimed by "+by)
	}
	t.Status = StatusInProgress
	if err := p.writeLocked(t); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Complete transitions {claimed|in-progress} -> completed, recording result.
func (p *Pool) Complete(taskID string, result Result) (Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.getLocked(taskID)
	if err != nil {
		return Task{}, err
	}
	if t.Status != StatusClaimed && t.Status != StatusInProgress {
		return Task{}, apperr.New(apperr.KindInvalidState, "task not active: "+string(t.Status))
	}
	t.Status = StatusCompleted
	t.Result = &result
	if err := p.writeLocked(t); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Fail transitions {claimed|in-progress} -> available, recording
// failureReason and clearing the claimant so the task returns to the
// pool for retry.
func (p *Pool) Fail(taskID, reason string) (Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.getLocked(taskID)
	if err != nil {
		return Task{}, err
	}
	if t.Status != StatusClaimed && t.Status != StatusInProgress {
		return Task{}, apperr.New(apperr.KindInvalidState, "task not active: "+string(t.Status))
	}
	t.Status = StatusAvailable
	t.FailureReason = reason
	t.ClaimedBy = ""
	t.ClaimedAt = nil
	if err := p.writeLocked(t); err != nil {
		return Task{}, err
	}
	return t, nil
}

// ResetStale reclaims any claimed/in-progress task whose claimedAt is
// older than maxAge back to available. If byScope is non-empty, only
// tasks whose claimant scope matches are reclaimed.
func (p *Pool) ResetStale(maxAge time.Duration, byScope string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tasks, err := p.readAllLocked()
	if err != nil {
		return 0, err
	}
	now := time.Now()
	var reset int
	for _, t := range tasks {
		if !t.IsStale(now, maxAge) {
			continue
		}
		if byScope != "" && t.ClaimantScope != byScope {
			continue
		}
		t.Status = StatusAvailable
		t.ClaimedBy = ""
		t.ClaimedAt = nil
		if err := p.writeLocked(t); err != nil {
			return reset, err
		}
		reset++
	}
	return reset, nil
}

// List returns every task in the pool.
func (p *Pool) List() ([]Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tasks, err := p.readAllLocked()
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (p *Pool) getLocked(taskID string) (Task, error) {
	tasks, err := p.readAllLocked()
	if err != nil {
		return Task{}, err
	}
	t, ok := tasks[taskID]
	if !ok {
		return Task{}, apperr.New(apperr.KindNotFound, "task not found: "+taskID)
	}
	return t, nil
}
