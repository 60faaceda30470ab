package tooling

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chrysochos/society-agent-sub001/apperr"
	"github.com/chrysochos/society-agent-sub001/registry"
)

// Team exposes the team/discovery tools: list_team, list_agents,
// list_agent_files, read_agent_file (spec section 4.6).
type Team struct {
	reg          *registry.Registry
	projectsRoot string // {projectsDir}/{project.folder}
}

// NewTeam builds the team/discovery tools over reg, with agent home
// folders resolved under projectsRoot.
func NewTeam(reg *registry.Registry, projectsRoot string) *Team {
	return &Team{reg: reg, projectsRoot: projectsRoot}
}

// ListTeam implements list_team: every currently online agent.
func (t *Team) ListTeam(json.RawMessage) (string, error) {
	online, err := t.reg.Online()
	if err != nil {
		return "", err
	}
	return formatRegistrations(online), nil
}

// ListAgents implements list_agents: every known agent regardless of
// liveness.
func (t *Team) ListAgents(json.RawMessage) (string, error) {
	all, err := t.reg.List()
	if err != nil {
		return "", err
	}
	return formatRegistrations(all), nil
}

func formatRegistrations(regs []registry.Registration) string {
	if len(regs) == 0 {
		return "(no agents)"
	}
	var b strings.Builder
	for _, r := range regs {
		fmt.Fprintf(&b, "%s\trole=%s\tstatus=%s\tlastHeartbeat=%s\n", r.ID, r.Role, r.Status, r.LastHeartbeat.Format("15:04:05"))
	}
	return strings.TrimRight(b.String(), "\n")
}

type agentFileArgs struct {
	AgentID string `json:"agent_id"`
	Path    string `json:"path,omitempty"`
}

func (t *Team) homeFolder(agentID string) (string, error) {
	reg, err := t.reg.Get(agentID)
	if err != nil {
		return "", err
	}
	if reg == nil {
		return "", apperr.New(apperr.KindNotFound, "unknown agent: "+agentID)
	}
	return reg.WorkspacePath, nil
}

// ListAgentFiles implements list_agent_files: a read-only directory
// listing rooted at another agent's home folder.
func (t *Team) ListAgentFiles(argsJSON json.RawMessage) (string, error) {
	var args agentFileArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "list_agent_files arguments", err)
	}
	home, err := t.homeFolder(args.AgentID)
	if err != nil {
		return "", err
	}
	path, err := resolveSandboxed(home, args.Path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, "list files for "+args.AgentID, err)
	}
	var names []string
	for _, e := range entries {
		if isExcludedDir(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return strings.Join(names, "\n"), nil
}

// ReadAgentFile implements read_agent_file: a read-only file read
// rooted at another agent's home folder.
func (t *Team) ReadAgentFile(argsJSON json.RawMessage) (string, error) {
	var args agentFileArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "read_agent_file arguments", err)
	}
	home, err := t.homeFolder(args.AgentID)
	if err != nil {
		return "", err
	}
	path, err := resolveSandboxed(home, args.Path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperr.Wrap(apperr.KindNotFound, "file not found: "+args.Path, err)
		}
		return "", apperr.Wrap(apperr.KindIO, "read agent file", err)
	}
	return string(data), nil
}

// projectPath joins a relative path onto the shared project root.
func (t *Team) projectPath(rel string) string {
	return filepath.Join(t.projectsRoot, rel)
}
