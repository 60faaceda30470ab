package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/chrysochos/society-agent-sub001/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "registry.json"), "", nil)
}

func TestRegisterAndGet(t *testing.T) {
	r := newTestRegistry(t)

	reg := Registration{ID: "backend-abc12345", Role: RoleBackend, Status: StatusOnline}
	require.NoError(t, r.Register(reg))

	got, err := r.Get("backend-abc12345")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, RoleBackend, got.Role)
	assert.False(t, got.RegisteredAt.IsZero())
}

func TestRegisterPreservesRegisteredAtOnReRegister(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(Registration{ID: "a1", Role: RoleCustom}))

	first, err := r.Get("a1")
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, r.Register(Registration{ID: "a1", Role: RoleCustom, Status: StatusBusy}))

	second, err := r.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, first.RegisteredAt, second.RegisteredAt)
	assert.Equal(t, StatusBusy, second.Status)
}

func TestHeartbeatIsMonotonic(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(Registration{ID: "a1", Role: RoleCustom}))
	require.NoError(t, r.Heartbeat("a1", StatusBusy))

	reg, err := r.Get("a1")
	require.NoError(t, err)
	lastSeen := reg.LastHeartbeat

	// Forge a stale heartbeat by resetting the in-process guard to the
	// future, then asserting a heartbeat call with "now" is rejected.
	r.mu.Lock()
	r.lastByAgent["a1"] = time.Now().Add(time.Hour)
	r.mu.Unlock()

	err = r.Heartbeat("a1", StatusIdle)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	reg2, err := r.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, lastSeen, reg2.LastHeartbeat)
}

func TestHeartbeatUnknownAgent(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Heartbeat("ghost", StatusOnline)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestOnlineFiltersStaleHeartbeats(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(Registration{ID: "fresh", Role: RoleCustom, LastHeartbeat: time.Now()}))
	require.NoError(t, r.Register(Registration{ID: "stale", Role: RoleCustom, LastHeartbeat: time.Now().Add(-3 * time.Minute)}))

	online, err := r.Online()
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, "fresh", online[0].ID)
}

func TestDisposeMarksOffline(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(Registration{ID: "a1", Role: RoleCustom, Status: StatusOnline}))
	require.NoError(t, r.Dispose("a1"))

	reg, err := r.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, reg.Status)
}
