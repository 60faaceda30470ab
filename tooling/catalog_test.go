package tooling

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysochos/society-agent-sub001/bus"
	"github.com/chrysochos/society-agent-sub001/taskpool"
)

func TestBuildCatalogIncludesEveryWiredGroup(t *testing.T) {
	dir := t.TempDir()
	fs := NewFilesystem(dir)
	sh := NewShell(dir, nil, nil, "agent-a", nil)
	pool := taskpool.New(filepath.Join(dir, "shared"), "proj-1")
	tp := NewTaskPoolTools(pool, "agent-a", nil, nil)
	b := bus.New(bus.Config{SelfID: "agent-a", SharedDir: filepath.Join(dir, "shared")})
	ia := NewInterAgent("agent-a", dir, b, nil, nil)

	cat := BuildCatalog(fs, nil, sh, nil, tp, ia, nil, nil, "agent-a", nil)

	for _, name := range []string{"read_file", "run_command", "create_task", "claim_task", "ask_agent", "read_inbox"} {
		_, ok := cat.Lookup(name)
		assert.True(t, ok, "expected catalog to include %s", name)
	}

	// delegate_task is omitted without a home-folder resolver.
	_, ok := cat.Lookup("delegate_task")
	assert.False(t, ok)
}

func TestEphemeralCatalogExcludesSupervisorOnlyTools(t *testing.T) {
	dir := t.TempDir()
	fs := NewFilesystem(dir)
	pool := taskpool.New(filepath.Join(dir, "shared"), "proj-1")
	tp := NewTaskPoolTools(pool, "worker-1", nil, nil)
	b := bus.New(bus.Config{SelfID: "worker-1", SharedDir: filepath.Join(dir, "shared")})
	ia := NewInterAgent("worker-1", dir, b, nil, nil)
	resolver := func(agentID string) (string, error) { return dir, nil }

	full := BuildCatalog(fs, nil, nil, nil, tp, ia, nil, nil, "worker-1", resolver)
	_, ok := full.Lookup("delegate_task")
	require.True(t, ok)

	ephemeral := full.Ephemeral()
	_, ok = ephemeral.Lookup("delegate_task")
	assert.False(t, ok)
	_, ok = ephemeral.Lookup("spawn_worker")
	assert.False(t, ok)
	_, ok = ephemeral.Lookup("create_task")
	assert.False(t, ok)
	_, ok = ephemeral.Lookup("read_file")
	assert.True(t, ok)
}
