package worker

import (
	"sync"

	"github.com/chrysochos/society-agent-sub001/event"
)

// terminalSink forwards every event to inner, additionally watching for
// the tool_execution event that tells us the worker called complete_task
// or fail_task, so Spawn can schedule self-deletion the moment that
// happens rather than waiting for the worker's whole turn to end.
type terminalSink struct {
	inner      event.Sink
	onTerminal func()
	once       sync.Once
}

func (s *terminalSink) Publish(e event.Event) {
	s.inner.Publish(e)
	if e.Kind != event.KindToolExecution {
		return
	}
	tool, _ := e.Data["tool"].(string)
	if tool == "complete_task" || tool == "fail_task" {
		s.once.Do(s.onTerminal)
	}
}
