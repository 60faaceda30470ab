package tooling

import (
	"context"
	"encoding/json"
)

// schemaOf is a convenience wrapper around a literal JSON Schema object
// used as a tool's InputSchema.
func schemaOf(raw string) json.RawMessage {
	return json.RawMessage(raw)
}

func noArg(fn func(json.RawMessage) (string, error)) Func {
	return func(_ context.Context, args json.RawMessage) (string, error) {
		return fn(args)
	}
}

func withCtx(fn func(context.Context, json.RawMessage) (string, error)) Func {
	return fn
}

// BuildCatalog assembles the full tool catalog for a single agent turn
// from its constituent tool groups (spec section 4.6). Any group may be
// nil when that surface is not available to the calling agent (e.g. a
// worker's catalog omits supervisor-only tools at the registration
// layer, not here; callers wanting a restricted list should build a
// second Catalog from a subset of these tools instead).
func BuildCatalog(fs *Filesystem, pv *ProjectView, sh *Shell, tm *Team, tp *TaskPoolTools, ia *InterAgent, sk *Skills, mc *MCP, agentID string, resolveHomeFolder func(agentID string) (string, error)) *Catalog {
	var tools []Tool

	if fs != nil {
		tools = append(tools,
			Tool{Schema{"read_file", "Read a file relative to the sandbox root.", schemaOf(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)}, noArg(fs.ReadFile)},
			Tool{Schema{"write_file", "Create or overwrite a file relative to the sandbox root.", schemaOf(`{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`)}, noArg(fs.WriteFile)},
			Tool{Schema{"patch_file", "Replace one unique occurrence of old_text with new_text in a file.", schemaOf(`{"type":"object","properties":{"path":{"type":"string"},"old_text":{"type":"string"},"new_text":{"type":"string"}},"required":["path","old_text","new_text"]}`)}, noArg(fs.PatchFile)},
			Tool{Schema{"list_files", "List the contents of a directory relative to the sandbox root.", schemaOf(`{"type":"object","properties":{"path":{"type":"string"}}}`)}, noArg(fs.ListFiles)},
			Tool{Schema{"delete_file", "Delete a file or empty directory relative to the sandbox root.", schemaOf(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)}, noArg(fs.DeleteFile)},
			Tool{Schema{"move_file", "Move or rename a file relative to the sandbox root.", schemaOf(`{"type":"object","properties":{"from":{"type":"string"},"to":{"type":"string"}},"required":["from","to"]}`)}, noArg(fs.MoveFile)},
			Tool{Schema{"create_directory", "Create a directory (and parents) relative to the sandbox root.", schemaOf(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)}, noArg(fs.CreateDirectory)},
			Tool{Schema{"find_files", "Find files whose relative path contains a substring pattern.", schemaOf(`{"type":"object","properties":{"pattern":{"type":"string"}},"required":["pattern"]}`)}, noArg(fs.FindFiles)},
			Tool{Schema{"search_in_files", "Search file contents for a substring, returning path:line:text hits.", schemaOf(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`)}, noArg(fs.SearchInFiles)},
			Tool{Schema{"get_file_info", "Report size, mode, modification time, and type for a path.", schemaOf(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)}, noArg(fs.GetFileInfo)},
			Tool{Schema{"compare_files", "Compare two files and report the first differing line.", schemaOf(`{"type":"object","properties":{"a":{"type":"string"},"b":{"type":"string"}},"required":["a","b"]}`)}, noArg(fs.CompareFiles)},
		)
	}

	if pv != nil {
		tools = append(tools,
			Tool{Schema{"read_project_file", "Read a file from a sibling project by ID, with fuzzy ID correction.", schemaOf(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)}, noArg(pv.ReadProjectFile)},
			Tool{Schema{"list_project_files", "List a directory inside a sibling project by ID.", schemaOf(`{"type":"object","properties":{"path":{"type":"string"}}}`)}, noArg(pv.ListProjectFiles)},
		)
	}

	if sh != nil {
		tools = append(tools,
			Tool{Schema{"run_command", "Run a shell command. Long-running server commands are auto-backgrounded.", schemaOf(`{"type":"object","properties":{"command":{"type":"string"},"background":{"type":"boolean"},"timeout_ms":{"type":"integer"}},"required":["command"]}`)}, withCtx(sh.RunCommand)},
			Tool{Schema{"kill_process", "Kill a backgrounded process previously started by run_command.", schemaOf(`{"type":"object","properties":{"log_path":{"type":"string"},"pid":{"type":"integer"}}}`)}, noArg(sh.KillProcess)},
		)
	}

	if tm != nil {
		tools = append(tools,
			Tool{Schema{"list_team", "List online teammates.", schemaOf(`{"type":"object","properties":{}}`)}, noArg(tm.ListTeam)},
			Tool{Schema{"list_agents", "List every registered agent, online or not.", schemaOf(`{"type":"object","properties":{}}`)}, noArg(tm.ListAgents)},
			Tool{Schema{"list_agent_files", "List files in another agent's home folder.", schemaOf(`{"type":"object","properties":{"agent_id":{"type":"string"},"path":{"type":"string"}},"required":["agent_id"]}`)}, noArg(tm.ListAgentFiles)},
			Tool{Schema{"read_agent_file", "Read a file from another agent's home folder.", schemaOf(`{"type":"object","properties":{"agent_id":{"type":"string"},"path":{"type":"string"}},"required":["agent_id","path"]}`)}, noArg(tm.ReadAgentFile)},
		)
	}

	if tp != nil {
		tools = append(tools,
			Tool{Schema{"create_task", "Add a new task to the shared pool.", schemaOf(`{"type":"object","properties":{"title":{"type":"string"},"description":{"type":"string"},"priority":{"type":"integer"},"context":{"type":"object"}},"required":["title","description"]}`)}, noArg(tp.CreateTask)},
			Tool{Schema{"claim_task", "Claim the highest-priority available task.", schemaOf(`{"type":"object","properties":{}}`)}, noArg(tp.ClaimTask)},
			Tool{Schema{"get_my_task", "Return the task currently claimed by this agent, if any.", schemaOf(`{"type":"object","properties":{}}`)}, noArg(tp.GetMyTask)},
			Tool{Schema{"complete_task", "Mark a claimed task complete with a result.", schemaOf(`{"type":"object","properties":{"task_id":{"type":"string"},"result":{"type":"object"}},"required":["task_id"]}`)}, noArg(tp.CompleteTask)},
			Tool{Schema{"fail_task", "Return a claimed task to the pool with a failure reason.", schemaOf(`{"type":"object","properties":{"task_id":{"type":"string"},"reason":{"type":"string"}},"required":["task_id","reason"]}`)}, noArg(tp.FailTask)},
			Tool{Schema{"list_tasks", "List every task in the pool.", schemaOf(`{"type":"object","properties":{}}`)}, noArg(tp.ListTasks)},
			Tool{Schema{"spawn_worker", "Spawn up to count ephemeral workers to drain the task pool.", schemaOf(`{"type":"object","properties":{"count":{"type":"integer"}},"required":["count"]}`)}, noArg(tp.SpawnWorker)},
			Tool{Schema{"reset_tasks", "Reclaim stale claimed tasks and optionally remove ephemeral workers this agent spawned.", schemaOf(`{"type":"object","properties":{"max_age_minutes":{"type":"integer"},"cleanup_workers":{"type":"boolean"}}}`)}, noArg(tp.ResetTasks)},
			Tool{Schema{"propose_new_agent", "Propose a new permanent agent for a human or supervisor to create.", schemaOf(`{"type":"object","properties":{"name":{"type":"string"},"role":{"type":"string"},"purpose":{"type":"string"},"reports_to":{"type":"string"}},"required":["name","role","purpose"]}`)}, noArg(tp.ProposeNewAgent)},
		)
	}

	if ia != nil {
		tools = append(tools,
			Tool{Schema{"ask_agent", "Ask another agent a question in a fresh context and get a one-shot answer.", schemaOf(`{"type":"object","properties":{"agent_id":{"type":"string"},"question":{"type":"string"}},"required":["agent_id","question"]}`)}, withCtx(ia.AskAgent)},
			Tool{Schema{"send_message", "Send a message to another agent, optionally waiting for its response.", schemaOf(`{"type":"object","properties":{"agent_id":{"type":"string"},"message":{"type":"string"},"priority":{"type":"integer"},"wait_for_response":{"type":"boolean"}},"required":["agent_id","message"]}`)}, withCtx(ia.SendMessage)},
			Tool{Schema{"read_inbox", "Inspect pending messages addressed to this agent.", schemaOf(`{"type":"object","properties":{"mark_read":{"type":"boolean"}}}`)}, noArg(ia.ReadInbox)},
			Tool{Schema{"report_to_supervisor", "Report status and progress to this agent's supervisor.", schemaOf(`{"type":"object","properties":{"status":{"type":"string"},"summary":{"type":"string"},"details":{"type":"string"},"completion_percentage":{"type":"integer"},"blockers":{"type":"array","items":{"type":"string"}},"questions":{"type":"array","items":{"type":"string"}}},"required":["status","summary"]}`)}, noArg(ia.ReportToSupervisor)},
		)
	}

	if sk != nil {
		tools = append(tools,
			Tool{Schema{"list_global_skills", "List the names of globally available skills.", schemaOf(`{"type":"object","properties":{}}`)}, noArg(sk.ListGlobalSkills)},
			Tool{Schema{"read_global_skill", "Read a global skill's SKILL.md by name.", schemaOf(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`)}, noArg(sk.ReadGlobalSkill)},
		)
	}

	if mc != nil {
		tools = append(tools,
			Tool{Schema{"list_mcps", "List the names of configured MCP servers.", schemaOf(`{"type":"object","properties":{}}`)}, noArg(mc.ListMCPs)},
			Tool{Schema{"list_mcp_tools", "List the tools exposed by an MCP server.", schemaOf(`{"type":"object","properties":{"server":{"type":"string"}},"required":["server"]}`)}, withCtx(mc.ListMCPTools)},
			Tool{Schema{"use_mcp", "Call a tool on an MCP server. Rate-limited per agent and server.", schemaOf(`{"type":"object","properties":{"server":{"type":"string"},"tool":{"type":"string"},"params":{"type":"object"}},"required":["server","tool"]}`)}, func(ctx context.Context, args json.RawMessage) (string, error) {
				return mc.UseMCP(ctx, agentID, args)
			}},
		)
	}

	if ia != nil && resolveHomeFolder != nil {
		tools = append(tools, delegateTaskTool(ia, resolveHomeFolder))
	}

	return NewCatalog(tools...)
}

// delegateTaskTool wraps InterAgent.DelegateTask, whose signature needs
// the target's home folder rather than taking it through argsJSON;
// resolveHomeFolder looks that path up from the registry.
func delegateTaskTool(ia *InterAgent, resolveHomeFolder func(agentID string) (string, error)) Tool {
	schema := Schema{
		Name:        "delegate_task",
		Description: "Delegate a task to another agent by writing its desired state and invoking its loop.",
		InputSchema: schemaOf(`{"type":"object","properties":{"agent_id":{"type":"string"},"task":{"type":"string"},"desired_state":{"type":"string"},"acceptance_criteria":{"type":"string"},"constraints":{"type":"string"},"context":{"type":"string"},"priority":{"type":"integer"}},"required":["agent_id","task","desired_state","acceptance_criteria"]}`),
	}
	return Tool{schema, func(ctx context.Context, args json.RawMessage) (string, error) {
		var parsed delegateTaskArgs
		if err := json.Unmarshal(args, &parsed); err != nil {
			return "", err
		}
		homeFolder, err := resolveHomeFolder(parsed.AgentID)
		if err != nil {
			return "", err
		}
		return ia.DelegateTask(ctx, homeFolder, args)
	}}
}
