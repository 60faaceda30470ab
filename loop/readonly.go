package loop

import "github.com/chrysochos/society-agent-sub001/types"

// readOnlyTools names every catalog tool that only observes state. Any
// tool absent from this set is treated as side-effecting for the
// read-only auto-continue rule (spec section 4.7, rule 6) and the
// progress watchdog's "meaningful action" check.
var readOnlyTools = map[string]bool{
	"read_file":             true,
	"list_files":            true,
	"find_files":            true,
	"search_in_files":       true,
	"get_file_info":         true,
	"compare_files":         true,
	"read_project_file":     true,
	"list_project_files":    true,
	"list_team":             true,
	"list_agents":           true,
	"list_agent_files":      true,
	"read_agent_file":       true,
	"list_tasks":            true,
	"get_my_task":           true,
	"read_inbox":            true,
	"list_global_skills":    true,
	"read_global_skill":     true,
	"list_mcps":             true,
	"list_mcp_tools":        true,
}

// allReadOnly reports whether every call in calls targets a read-only
// tool. An empty slice is not considered read-only (there is nothing to
// continue from).
func allReadOnly(calls []types.ToolCall) bool {
	if len(calls) == 0 {
		return false
	}
	for _, c := range calls {
		if !readOnlyTools[c.Name] {
			return false
		}
	}
	return true
}

// hasMeaningfulAction reports whether calls contains at least one
// side-effecting tool invocation, for the progress watchdog's stall
// detection.
func hasMeaningfulAction(calls []types.ToolCall) bool {
	for _, c := range calls {
		if !readOnlyTools[c.Name] {
			return true
		}
	}
	return false
}
