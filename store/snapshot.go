package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/chrysochos/society-agent-sub001/apperr"
)

// Snapshot is an atomically-written JSON document holding a set of
// records keyed by id. Reads return the current on-disk value; Update
// performs a read-modify-write merge (insert-or-replace by key) and
// writes the result via write-to-temp-then-rename so readers never
// observe a half-written file.
type Snapshot struct {
	path string
	mu   sync.Mutex
}

// NewSnapshot opens (without yet creating) a snapshot file at path.
func NewSnapshot(path string) *Snapshot {
	return &Snapshot{path: path}
}

// Read decodes the current snapshot into records, keyed by id. A
// snapshot that does not yet exist on disk reads as an empty map.
func (s *Snapshot) Read(records map[string]json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(records)
}

func (s *Snapshot) readLocked(records map[string]json.RawMessage) error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apperr.Wrap(apperr.KindIO, "read snapshot", err)
	}
	if len(data) == 0 {
		return nil
	}
	var onDisk map[string]json.RawMessage
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return apperr.Wrap(apperr.KindParseError, "decode snapshot", err)
	}
	for k, v := range onDisk {
		records[k] = v
	}
	return nil
}

// Update merges record under key into the snapshot and persists the
// result atomically. The caller supplies record already JSON-encoded so
// Update stays type-agnostic across registry/project/task snapshots.
func (s *Snapshot) Update(key string, record json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]json.RawMessage)
	if err := s.readLocked(current); err != nil {
		return err
	}
	current[key] = record
	return s.writeLocked(current)
}

// Delete removes key from the snapshot, if present.
func (s *Snapshot) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]json.RawMessage)
	if err := s.readLocked(current); err != nil {
		return err
	}
	if _, ok := current[key]; !ok {
		return nil
	}
	delete(current, key)
	return s.writeLocked(current)
}

func (s *Snapshot) writeLocked(records map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindIO, "encode snapshot", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return apperr.Wrap(apperr.KindIO, "create snapshot dir", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.Wrap(apperr.KindIO, "write snapshot temp file", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		// Retry once: per spec section 7, atomic snapshots retry the
		// write once before surfacing.
		if err2 := os.Rename(tmp, s.path); err2 != nil {
			return apperr.Wrap(apperr.KindIO, "rename snapshot temp file", err2)
		}
	}
	return nil
}
