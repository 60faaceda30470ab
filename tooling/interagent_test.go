package tooling

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysochos/society-agent-sub001/apperr"
	"github.com/chrysochos/society-agent-sub001/bus"
	"github.com/chrysochos/society-agent-sub001/event"
)

func newTestBusForInterAgent(t *testing.T, selfID string) (*bus.Bus, string) {
	t.Helper()
	dir := t.TempDir()
	b := bus.New(bus.Config{SelfID: selfID, SharedDir: dir})
	return b, dir
}

func TestAskAgentRequiresInvoker(t *testing.T) {
	b, dir := newTestBusForInterAgent(t, "agent-a")
	ia := NewInterAgent("agent-a", dir, b, nil, nil)

	_, err := ia.AskAgent(context.Background(), []byte(`{"agent_id":"agent-b","question":"status?"}`))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindBlocked))
}

func TestAskAgentInvokesLoopAndTruncates(t *testing.T) {
	b, dir := newTestBusForInterAgent(t, "agent-a")
	invoked := false
	invoker := func(ctx context.Context, agentID, message string) (string, error) {
		invoked = true
		assert.Equal(t, "agent-b", agentID)
		return "all good", nil
	}
	ia := NewInterAgent("agent-a", dir, b, invoker, nil)

	out, err := ia.AskAgent(context.Background(), []byte(`{"agent_id":"agent-b","question":"status?"}`))
	require.NoError(t, err)
	assert.True(t, invoked)
	assert.Equal(t, "all good", out)
}

func TestSendMessageWithoutWaitDeliversAndPublishesEvent(t *testing.T) {
	selfDir := t.TempDir()
	shared := t.TempDir()
	sender := bus.New(bus.Config{SelfID: "agent-a", SharedDir: shared})
	recipient := bus.New(bus.Config{SelfID: "agent-b", SharedDir: shared})

	sink := &recordingSink{}
	ia := NewInterAgent("agent-a", selfDir, sender, nil, sink)

	out, err := ia.SendMessage(context.Background(), []byte(`{"agent_id":"agent-b","message":"hello"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "delivered to agent-b")
	require.Len(t, sink.events, 1)
	assert.Equal(t, event.KindAgentMessage, sink.events[0].Kind)

	pending, err := recipient.PeekInbox()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "hello", pending[0].Content)
}

func TestSendMessageWithWaitRequiresInvoker(t *testing.T) {
	b, dir := newTestBusForInterAgent(t, "agent-a")
	ia := NewInterAgent("agent-a", dir, b, nil, nil)

	_, err := ia.SendMessage(context.Background(), []byte(`{"agent_id":"agent-b","message":"hi","wait_for_response":true}`))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindBlocked))
}

func TestDelegateTaskWritesDesiredStateAndInvokes(t *testing.T) {
	b, dir := newTestBusForInterAgent(t, "agent-a")
	targetHome := t.TempDir()
	invoker := func(ctx context.Context, agentID, message string) (string, error) {
		return "accepted", nil
	}
	ia := NewInterAgent("agent-a", dir, b, invoker, nil)

	out, err := ia.DelegateTask(context.Background(), targetHome, []byte(`{"agent_id":"agent-b","task":"write tests","desired_state":"tests pass","acceptance_criteria":"CI green"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "delegated to agent-b")
	assert.Contains(t, out, "accepted")

	data, err := os.ReadFile(filepath.Join(targetHome, "DESIRED_STATE.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "write tests")
	assert.Contains(t, string(data), "tests pass")
}

func TestReadInboxPeeksThenOptionallyMarksRead(t *testing.T) {
	shared := t.TempDir()
	sender := bus.New(bus.Config{SelfID: "agent-a", SharedDir: shared})
	recipientBus := bus.New(bus.Config{SelfID: "agent-b", SharedDir: shared})

	_, err := sender.Send(context.Background(), "agent-b", bus.TypeMessage, "ping", nil)
	require.NoError(t, err)

	ia := NewInterAgent("agent-b", t.TempDir(), recipientBus, nil, nil)

	out, err := ia.ReadInbox([]byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, out, "ping")

	out, err = ia.ReadInbox([]byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, out, "ping", "unread messages stay pending across reads")

	_, err = ia.ReadInbox([]byte(`{"mark_read":true}`))
	require.NoError(t, err)

	out, err = ia.ReadInbox([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "(inbox empty)", out)
}

func TestReportToSupervisorAppendsLogAndPublishesEvent(t *testing.T) {
	b, dir := newTestBusForInterAgent(t, "agent-a")
	sink := &recordingSink{}
	ia := NewInterAgent("agent-a", dir, b, nil, sink)

	out, err := ia.ReportToSupervisor([]byte(`{"status":"in_progress","summary":"halfway done","completion_percentage":50}`))
	require.NoError(t, err)
	assert.Equal(t, "reported", out)
	require.Len(t, sink.events, 1)
	assert.Equal(t, event.KindAgentReport, sink.events[0].Kind)

	data, err := os.ReadFile(filepath.Join(dir, "DESIRED_STATE.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "halfway done")
}

func TestTruncateLeavesShortStringsAlone(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
}

func TestTruncateCutsLongStrings(t *testing.T) {
	out := truncate("abcdefghij", 5)
	assert.Equal(t, "abcde...[truncated]", out)
}
