// Package taskpool implements the project-scoped priority task queue:
// create, claim, start, complete, fail, and stale-reset, all serialized
// through a single atomic snapshot per project (spec section 4.5).
package taskpool

import "time"

// Status is a task's position in the claim/complete/fail lifecycle.
type Status string

const (
	StatusAvailable  Status = "available"
	StatusClaimed    Status = "claimed"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DefaultStaleAfter is how long a claimed/in-progress task may go
// after being claimed before resetStale reclaims it.
const DefaultStaleAfter = 5 * time.Minute

// Context carries the working details a worker needs to act on a task.
type Context struct {
	WorkingDirectory string   `json:"workingDirectory"`
	RelevantFiles    []string `json:"relevantFiles,omitempty"`
	OutputPaths      []string `json:"outputPaths,omitempty"`
	Conventions      string   `json:"conventions,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

// Result is recorded on successful completion.
type Result struct {
	FilesCreated  []string `json:"filesCreated,omitempty"`
	FilesModified []string `json:"filesModified,omitempty"`
	Summary       string   `json:"summary"`
}

// Task is one unit of work in a project's pool.
type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Priority      int        `json:"priority"` // 1-10
	Status        Status     `json:"status"`
	CreatedBy     string     `json:"createdBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	ClaimedBy     string     `json:"claimedBy,omitempty"`
	ClaimedAt     *time.Time `json:"claimedAt,omitempty"`
	Context       Context    `json:"context"`
	Result        *Result    `json:"result,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`

	// ClaimantScope identifies the scope (typically the spawning supervisor's
	// agent id) that created the claimant, if the claimant is an
	// ephemeral worker. Used by ResetStale scoping.
	ClaimantScope string `json:"claimantScope,omitempty"`
}

// IsStale reports whether t is claimed/in-progress and has sat past
// maxAge since it was claimed.
func (t Task) IsStale(now time.Time, maxAge time.Duration) bool {
	if t.Status != StatusClaimed && t.Status != StatusInProgress {
		return false
	}
	if t.ClaimedAt == nil {
		return false
	}
	return now.Sub(*t.ClaimedAt) > maxAge
}
