package tooling

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chrysochos/society-agent-sub001/apperr"
	"github.com/chrysochos/society-agent-sub001/bus"
	"github.com/chrysochos/society-agent-sub001/event"
)

const responseTruncateLimit = 1500

// LoopInvoker runs the target agent's full agentic loop with message as
// the new user turn and returns its final textual response. Supplied by
// the loop package at wiring time so tooling never imports it directly
// (the loop package is itself a consumer of this package's catalog).
type LoopInvoker func(ctx context.Context, agentID, message string) (string, error)

// DesiredStateTemplate is the header written into a delegate's
// DESIRED_STATE.md before the delegation message is sent.
const desiredStateTemplate = `# Desired State

## Task
%s

## Desired State
%s

## Acceptance Criteria
%s

## Constraints
%s

---
## Progress Log
- %s: delegated by %s

## Communication Log
`

// InterAgent exposes ask_agent, send_message, delegate_task, read_inbox,
// and report_to_supervisor (spec section 4.6).
type InterAgent struct {
	self       string
	homeFolder string
	b          *bus.Bus
	invoke     LoopInvoker
	sink       event.Sink
}

// NewInterAgent wires the inter-agent tool surface for self.
func NewInterAgent(self, homeFolder string, b *bus.Bus, invoke LoopInvoker, sink event.Sink) *InterAgent {
	if sink == nil {
		sink = event.NopSink{}
	}
	return &InterAgent{self: self, homeFolder: homeFolder, b: b, invoke: invoke, sink: sink}
}

type askAgentArgs struct {
	AgentID  string `json:"agent_id"`
	Question string `json:"question"`
}

// AskAgent implements ask_agent by running the target's agentic loop
// through the wired LoopInvoker, the same path send_message takes with
// wait_for_response. It does not make a one-shot completion in a fresh
// context.
func (ia *InterAgent) AskAgent(ctx context.Context, argsJSON json.RawMessage) (string, error) {
	var args askAgentArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "ask_agent arguments", err)
	}
	if ia.invoke == nil {
		return "", apperr.New(apperr.KindBlocked, "ask_agent is not wired to a loop invoker")
	}
	answer, err := ia.invoke(ctx, args.AgentID, args.Question)
	if err != nil {
		return "", err
	}
	return truncate(answer, responseTruncateLimit), nil
}

type sendMessageArgs struct {
	AgentID         string `json:"agent_id"`
	Message         string `json:"message"`
	Priority        int    `json:"priority,omitempty"`
	WaitForResponse bool   `json:"wait_for_response,omitempty"`
}

// SendMessage implements send_message. When wait_for_response is set it
// invokes the recipient's full agentic loop and returns its final
// response (truncated); otherwise it only confirms delivery.
func (ia *InterAgent) SendMessage(ctx context.Context, argsJSON json.RawMessage) (string, error) {
	var args sendMessageArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "send_message arguments", err)
	}

	if args.WaitForResponse {
		if ia.invoke == nil {
			return "", apperr.New(apperr.KindBlocked, "send_message cannot wait: no loop invoker wired")
		}
		answer, err := ia.invoke(ctx, args.AgentID, args.Message)
		if err != nil {
			return "", err
		}
		return truncate(answer, responseTruncateLimit), nil
	}

	if _, err := ia.b.Send(ctx, args.AgentID, bus.TypeMessage, args.Message, nil); err != nil {
		return "", err
	}
	ia.sink.Publish(event.New(event.KindAgentMessage, ia.self, map[string]any{"to": args.AgentID}))
	return "delivered to " + args.AgentID, nil
}

type delegateTaskArgs struct {
	AgentID            string   `json:"agent_id"`
	Task               string   `json:"task"`
	DesiredState       string   `json:"desired_state"`
	AcceptanceCriteria string   `json:"acceptance_criteria"`
	Constraints        string   `json:"constraints,omitempty"`
	Context            string   `json:"context,omitempty"`
	Priority           int      `json:"priority,omitempty"`
	FilesCreated       []string `json:"-"`
}

// DelegateTask implements delegate_task: writes DESIRED_STATE.md into
// the target's home folder, then runs the target's agentic loop with a
// composed delegation message.
func (ia *InterAgent) DelegateTask(ctx context.Context, targetHomeFolder string, argsJSON json.RawMessage) (string, error) {
	var args delegateTaskArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "delegate_task arguments", err)
	}
	if ia.invoke == nil {
		return "", apperr.New(apperr.KindBlocked, "delegate_task is not wired to a loop invoker")
	}

	content := fmt.Sprintf(desiredStateTemplate,
		args.Task, args.DesiredState, args.AcceptanceCriteria, args.Constraints,
		time.Now().Format(time.RFC3339), ia.self)

	path := filepath.Join(targetHomeFolder, "DESIRED_STATE.md")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", apperr.Wrap(apperr.KindIO, "write DESIRED_STATE.md", err)
	}

	message := fmt.Sprintf("You have been delegated a task by %s: %s\n\nContext: %s", ia.self, args.Task, args.Context)
	response, err := ia.invoke(ctx, args.AgentID, message)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("delegated to %s\nresponse: %s", args.AgentID, truncate(response, responseTruncateLimit)), nil
}

type readInboxArgs struct {
	MarkRead bool `json:"mark_read,omitempty"`
}

// ReadInbox implements read_inbox(mark_read?). It returns the caller's
// own pending messages without dispatching them through the handler;
// callers typically invoke this when they want to inspect messages
// without triggering loop re-entry.
func (ia *InterAgent) ReadInbox(argsJSON json.RawMessage) (string, error) {
	var args readInboxArgs
	_ = json.Unmarshal(argsJSON, &args)

	pending, err := ia.b.PeekInbox()
	if err != nil {
		return "", err
	}
	if len(pending) == 0 {
		return "(inbox empty)", nil
	}

	var b strings.Builder
	ids := make([]string, 0, len(pending))
	for _, m := range pending {
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.Format(time.Kitchen), m.From, m.Content)
		ids = append(ids, m.ID)
	}

	if args.MarkRead {
		if err := ia.b.MarkDelivered(ids); err != nil {
			return "", err
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

type reportToSupervisorArgs struct {
	Status               string   `json:"status"`
	Summary              string   `json:"summary"`
	Details              string   `json:"details,omitempty"`
	CompletionPercentage int      `json:"completion_percentage,omitempty"`
	Blockers             []string `json:"blockers,omitempty"`
	Questions            []string `json:"questions,omitempty"`
}

// ReportToSupervisor implements report_to_supervisor: emits a structured
// event and appends to the reporter's own DESIRED_STATE.md communication
// log.
func (ia *InterAgent) ReportToSupervisor(argsJSON json.RawMessage) (string, error) {
	var args reportToSupervisorArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "report_to_supervisor arguments", err)
	}

	ia.sink.Publish(event.New(event.KindAgentReport, ia.self, map[string]any{
		"status": args.Status, "summary": args.Summary, "completionPercentage": args.CompletionPercentage,
		"blockers": args.Blockers, "questions": args.Questions,
	}))

	path := filepath.Join(ia.homeFolder, "DESIRED_STATE.md")
	entry := fmt.Sprintf("- %s: [%s] %s\n", time.Now().Format(time.RFC3339), args.Status, args.Summary)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, "append to DESIRED_STATE.md", err)
	}
	defer f.Close()
	if _, err := f.WriteString(entry); err != nil {
		return "", apperr.Wrap(apperr.KindIO, "append to DESIRED_STATE.md", err)
	}
	return "reported", nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...[truncated]"
}
