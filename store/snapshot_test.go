package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestSnapshotUpdateAndRead(t *testing.T) {
	snap := NewSnapshot(filepath.Join(t.TempDir(), "registry.json"))

	if err := snap.Update("agent-1", json.RawMessage(`{"status":"online"}`)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := snap.Update("agent-2", json.RawMessage(`{"status":"idle"}`)); err != nil {
		t.Fatalf("Update: %v", err)
	}

	records := make(map[string]json.RawMessage)
	if err := snap.Read(records); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if string(records["agent-1"]) != `{"status":"online"}` {
		t.Fatalf("unexpected record: %s", records["agent-1"])
	}
}

func TestSnapshotUpdateMergesLastWriteWins(t *testing.T) {
	snap := NewSnapshot(filepath.Join(t.TempDir(), "registry.json"))

	if err := snap.Update("agent-1", json.RawMessage(`{"status":"online"}`)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := snap.Update("agent-1", json.RawMessage(`{"status":"busy"}`)); err != nil {
		t.Fatalf("Update: %v", err)
	}

	records := make(map[string]json.RawMessage)
	if err := snap.Read(records); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(records["agent-1"]) != `{"status":"busy"}` {
		t.Fatalf("expected last write to win, got %s", records["agent-1"])
	}
}

func TestSnapshotReadOfMissingFileIsEmpty(t *testing.T) {
	snap := NewSnapshot(filepath.Join(t.TempDir(), "does-not-exist.json"))

	records := make(map[string]json.RawMessage)
	if err := snap.Read(records); err != nil {
		t.Fatalf("Read of missing snapshot should not error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty map, got %d records", len(records))
	}
}

func TestSnapshotDelete(t *testing.T) {
	snap := NewSnapshot(filepath.Join(t.TempDir(), "registry.json"))
	if err := snap.Update("agent-1", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := snap.Delete("agent-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	records := make(map[string]json.RawMessage)
	if err := snap.Read(records); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, ok := records["agent-1"]; ok {
		t.Fatal("expected agent-1 to be removed")
	}
}
