// Package registry tracks agent identity and liveness across the shared
// directory: registration, heartbeats, and listing with a stale-heartbeat
// cutoff for "online" queries.
package registry

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chrysochos/society-agent-sub001/apperr"
	"github.com/chrysochos/society-agent-sub001/store"
	"go.uber.org/zap"
)

// Role is an agent's declared function within a project.
type Role string

const (
	RoleSupervisor Role = "supervisor"
	RoleBackend    Role = "backend"
	RoleFrontend   Role = "frontend"
	RoleTester     Role = "tester"
	RoleDevOps     Role = "devops"
	RoleSecurity   Role = "security"
	RoleCustom     Role = "custom"
	RoleWorker     Role = "worker"
)

// Status is an agent's last-reported liveness state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// onlineWindow is how long a heartbeat is trusted before a peer is
// considered offline (spec section 3).
const onlineWindow = 2 * time.Minute

// HeartbeatInterval is the cadence at which owning processes refresh
// their own registration (spec section 2).
const HeartbeatInterval = 30 * time.Second

// Registration is one agent's entry in the shared registry.
type Registration struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	Capabilities  []string  `json:"capabilities"`
	WorkspacePath string    `json:"workspacePath"`
	PID           int       `json:"pid"`
	URL           string    `json:"url,omitempty"`
	Status        Status    `json:"status"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	RegisteredAt  time.Time `json:"registeredAt"`

	// Ephemeral, ReportsTo, and HomeFolder describe a spawned worker
	// (spec section 4.8): Ephemeral agents are not counted as regular
	// team members, ReportsTo names the spawning agent's id, and
	// HomeFolder is inherited verbatim from the spawner rather than
	// nested under it.
	Ephemeral  bool   `json:"ephemeral,omitempty"`
	ReportsTo  string `json:"reportsTo,omitempty"`
	HomeFolder string `json:"homeFolder,omitempty"`
}

// Online reports whether the registration's heartbeat is still fresh.
func (r Registration) Online() bool {
	return time.Since(r.LastHeartbeat) <= onlineWindow
}

// Registry is the atomic-snapshot-backed agent registry. Register and
// Heartbeat write only the snapshot; List additionally folds in a legacy
// append-only log for backward compatibility (spec section 9, Open
// Question 1), last-write-wins per id.
type Registry struct {
	snapshot *store.Snapshot
	legacy   *store.AppendLog // optional; nil if no legacy log configured
	logger   *zap.Logger

	mu          sync.Mutex
	lastByAgent map[string]time.Time // owning-process monotonic heartbeat guard
}

// New builds a Registry backed by a snapshot at snapshotPath. legacyLogPath
// may be empty if there is no legacy append-only registry log to read.
func New(snapshotPath, legacyLogPath string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		snapshot:    store.NewSnapshot(snapshotPath),
		logger:      logger.With(zap.String("component", "registry")),
		lastByAgent: make(map[string]time.Time),
	}
	if legacyLogPath != "" {
		r.legacy = store.NewAppendLog(legacyLogPath)
	}
	return r
}

// GenerateID builds an id of the form "{role}-{random8}" for agents that
// don't configure their own identity.
func GenerateID(role Role) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 8)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return fmt.Sprintf("%s-%s", role, string(b))
}

// Register inserts or replaces reg in the snapshot, keyed by reg.ID.
// RegisteredAt is stamped only on first insert; Status and LastHeartbeat
// are always refreshed to the given values.
func (r *Registry) Register(reg Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.getLocked(reg.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		reg.RegisteredAt = existing.RegisteredAt
	} else {
		reg.RegisteredAt = time.Now()
	}
	if reg.LastHeartbeat.IsZero() {
		reg.LastHeartbeat = time.Now()
	}
	r.lastByAgent[reg.ID] = reg.LastHeartbeat

	data, err := json.Marshal(reg)
	if err != nil {
		return apperr.Wrap(apperr.KindIO, "encode registration", err)
	}
	if err := r.snapshot.Update(reg.ID, data); err != nil {
		return err
	}
	r.logger.Info("agent registered", zap.String("agent_id", reg.ID), zap.String("role", string(reg.Role)))
	return nil
}

// Heartbeat partial-merges {id, status, lastHeartbeat: now}. The caller's
// own heartbeat stream must be monotonic: a heartbeat older than the last
// one this process recorded for id is rejected rather than silently
// regressing lastHeartbeat (spec section 8, universal invariants).
func (r *Registry) Heartbeat(id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if last, ok := r.lastByAgent[id]; ok && now.Before(last) {
		return apperr.New(apperr.KindInvalidState, "heartbeat clock went backwards")
	}

	reg, err := r.getLocked(id)
	if err != nil {
		return err
	}
	if reg == nil {
		return apperr.New(apperr.KindNotFound, "agent not registered: "+id)
	}
	reg.Status = status
	reg.LastHeartbeat = now
	r.lastByAgent[id] = now

	data, err := json.Marshal(*reg)
	if err != nil {
		return apperr.Wrap(apperr.KindIO, "encode heartbeat", err)
	}
	return r.snapshot.Update(id, data)
}

// Dispose marks id offline. Callers should invoke this on graceful
// shutdown before releasing their HTTP port.
func (r *Registry) Dispose(id string) error {
	return r.Heartbeat(id, StatusOffline)
}

// Remove deletes id from the snapshot outright, for ephemeral agents
// that should disappear from the project entirely rather than linger
// offline (spec section 4.8).
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lastByAgent, id)
	return r.snapshot.Delete(id)
}

// Get returns the registration for id, or nil if not found.
func (r *Registry) Get(id string) (*Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(id)
}

func (r *Registry) getLocked(id string) (*Registration, error) {
	records := make(map[string]json.RawMessage)
	if err := r.snapshot.Read(records); err != nil {
		return nil, err
	}
	raw, ok := records[id]
	if !ok {
		return nil, nil
	}
	var reg Registration
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, apperr.Wrap(apperr.KindParseError, "decode registration", err)
	}
	return &reg, nil
}

// List returns every known registration: the snapshot's records, with
// any legacy-log-only entries folded in (last-write-wins per id) when a
// legacy log is configured.
func (r *Registry) List() ([]Registration, error) {
	records := make(map[string]json.RawMessage)
	if err := r.snapshot.Read(records); err != nil {
		return nil, err
	}

	byID := make(map[string]Registration, len(records))
	for id, raw := range records {
		var reg Registration
		if err := json.Unmarshal(raw, &reg); err != nil {
			r.logger.Warn("skipping malformed registration", zap.String("agent_id", id), zap.Error(err))
			continue
		}
		byID[id] = reg
	}

	if r.legacy != nil {
		legacyRecords, err := r.legacy.ReadAll()
		if err != nil {
			return nil, err
		}
		for _, raw := range legacyRecords {
			var reg Registration
			if err := json.Unmarshal(raw, &reg); err != nil {
				continue
			}
			if existing, ok := byID[reg.ID]; !ok || reg.LastHeartbeat.After(existing.LastHeartbeat) {
				byID[reg.ID] = reg
			}
		}
	}

	out := make([]Registration, 0, len(byID))
	for _, reg := range byID {
		out = append(out, reg)
	}
	return out, nil
}

// Online returns every registration whose heartbeat is still fresh.
func (r *Registry) Online() ([]Registration, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, reg := range all {
		if reg.Online() {
			out = append(out, reg)
		}
	}
	return out, nil
}
