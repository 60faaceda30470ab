package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/chrysochos/society-agent-sub001/event"
	"github.com/chrysochos/society-agent-sub001/internal/pool"
	"github.com/chrysochos/society-agent-sub001/llm"
	"github.com/chrysochos/society-agent-sub001/loop"
	"github.com/chrysochos/society-agent-sub001/registry"
	"github.com/chrysochos/society-agent-sub001/tooling"
	"github.com/chrysochos/society-agent-sub001/types"
	"github.com/chrysochos/society-agent-sub001/usage"
)

// CatalogFactory builds the full tool catalog a newly spawned worker
// should run with; Spawn restricts it to the ephemeral subset itself.
// The factory is supplied by the process wiring everything together, so
// this package stays decoupled from how a catalog's tool groups are
// constructed (filesystem root, shared task pool, bus, …).
type CatalogFactory func(workerID string) (*tooling.Catalog, error)

// Spawner creates and runs ephemeral workers (spec section 4.8). It
// implements the `func(count int) ([]string, error)` shape tooling's
// TaskPoolTools expects for spawn_worker.
type Spawner struct {
	reg        *registry.Registry
	provider   llm.Provider
	tracker    *usage.Tracker
	sink       event.Sink
	model      string
	newCatalog CatalogFactory
	cfg        Config
	pool       *pool.GoroutinePool
}

// NewSpawner builds a Spawner. sink and tracker may be nil. Worker turns
// run through a bounded goroutine pool rather than raw `go` statements so
// a panicking worker can't take the whole process down with it.
func NewSpawner(reg *registry.Registry, provider llm.Provider, tracker *usage.Tracker, sink event.Sink, model string, newCatalog CatalogFactory, cfg Config) *Spawner {
	if sink == nil {
		sink = event.NopSink{}
	}
	cfg = cfg.normalize()
	s := &Spawner{reg: reg, provider: provider, tracker: tracker, sink: sink, model: model, newCatalog: newCatalog, cfg: cfg}
	s.pool = pool.NewGoroutinePool(pool.GoroutinePoolConfig{
		MaxWorkers:  cfg.MaxConcurrent,
		QueueSize:   cfg.MaxConcurrent,
		IdleTimeout: time.Minute,
		PanicHandler: func(r any) {
			sink.Publish(event.New(event.KindSystemEvent, "", map[string]any{"workerPoolPanic": fmt.Sprint(r)}))
		},
	})
	return s
}

// Spawn creates up to min(count, MaxConcurrent-active) ephemeral workers
// reporting to spawnerID and launches each one's agentic-loop turn in
// the background, returning the ids actually created.
func (s *Spawner) Spawn(spawnerID string, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}

	spawner, err := s.reg.Get(spawnerID)
	if err != nil {
		return nil, err
	}
	if spawner == nil {
		return nil, fmt.Errorf("worker: unknown spawner %q", spawnerID)
	}

	active, err := s.activeCount(spawnerID)
	if err != nil {
		return nil, err
	}
	budget := s.cfg.MaxConcurrent - active
	if budget <= 0 {
		return nil, nil
	}
	n := count
	if n > budget {
		n = budget
	}

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := newID(time.Now())
		reg := registry.Registration{
			ID:            id,
			Role:          registry.RoleWorker,
			WorkspacePath: spawner.HomeFolder,
			Status:        registry.StatusOnline,
			Ephemeral:     true,
			ReportsTo:     spawnerID,
			HomeFolder:    spawner.HomeFolder,
		}
		if err := s.reg.Register(reg); err != nil {
			return ids, err
		}

		workerID := id
		if err := s.pool.Submit(context.Background(), func(context.Context) error {
			s.run(workerID)
			return nil
		}); err != nil {
			s.sink.Publish(event.New(event.KindSystemEvent, workerID, map[string]any{"workerPoolSubmitError": err.Error()}))
			_ = s.reg.Remove(workerID)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// activeCount counts online ephemeral workers currently reporting to
// spawnerID.
func (s *Spawner) activeCount(spawnerID string) (int, error) {
	online, err := s.reg.Online()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range online {
		if r.Ephemeral && r.ReportsTo == spawnerID {
			n++
		}
	}
	return n, nil
}

// run drives one worker's bootstrap turn and retires it from the
// registry once it resolves (or fails to resolve) a task.
func (s *Spawner) run(id string) {
	catalog, err := s.newCatalog(id)
	if err != nil {
		s.sink.Publish(event.New(event.KindSystemEvent, id, map[string]any{"workerSpawnError": err.Error()}))
		_ = s.reg.Remove(id)
		return
	}

	retire := func() { time.AfterFunc(s.cfg.SelfDeleteDelay, func() { s.retire(id) }) }
	wrapped := &terminalSink{inner: s.sink, onTerminal: retire}
	runner := loop.NewRunner(s.provider, wrapped, s.tracker, nil, loop.Config{MaxIterations: s.cfg.MaxIterations})

	_, err = runner.Run(context.Background(), id, s.model, catalog.Ephemeral(), defaultSystemPrompt, nil, types.NewUserMessage(s.cfg.BootstrapMessage))
	if err != nil {
		s.sink.Publish(event.New(event.KindSystemEvent, id, map[string]any{"workerRunError": err.Error()}))
	}

	// The turn ended without ever calling complete_task or fail_task
	// (iteration cap, stream abort, …): retire the worker anyway so it
	// doesn't linger in the registry forever.
	wrapped.once.Do(retire)
}

func (s *Spawner) retire(id string) {
	_ = s.reg.Remove(id)
	s.sink.Publish(event.New(event.KindWorkerFinished, id, nil))
}
