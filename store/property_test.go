package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: append then full readAll yields a prefix ending in every
// appended record, in order (spec section 8, round-trip properties).
func TestProperty_AppendReadAllPrefix(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("readAll returns every appended record in order", prop.ForAll(
		func(seqs []int) bool {
			log := NewAppendLog(filepath.Join(t.TempDir(), "prop.jsonl"))
			for _, s := range seqs {
				rec, _ := json.Marshal(map[string]int{"seq": s})
				if err := log.Append(rec); err != nil {
					t.Logf("append failed: %v", err)
					return false
				}
			}
			records, err := log.ReadAll()
			if err != nil {
				t.Logf("readAll failed: %v", err)
				return false
			}
			if len(records) != len(seqs) {
				return false
			}
			for i, rec := range records {
				var v map[string]int
				if err := json.Unmarshal(rec, &v); err != nil {
					return false
				}
				if v["seq"] != seqs[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}

// Property: update(snapshot, record) then read(snapshot) reflects the
// merge, last write per key wins.
func TestProperty_SnapshotLastWriteWins(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("last update per key is what read returns", prop.ForAll(
		func(values []int) bool {
			if len(values) == 0 {
				return true
			}
			snap := NewSnapshot(filepath.Join(t.TempDir(), "prop-snap.json"))
			for _, v := range values {
				rec, _ := json.Marshal(map[string]int{"v": v})
				if err := snap.Update("k", rec); err != nil {
					t.Logf("update failed: %v", err)
					return false
				}
			}
			records := make(map[string]json.RawMessage)
			if err := snap.Read(records); err != nil {
				t.Logf("read failed: %v", err)
				return false
			}
			var got map[string]int
			if err := json.Unmarshal(records["k"], &got); err != nil {
				return false
			}
			return got["v"] == values[len(values)-1]
		},
		gen.SliceOfN(5, gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}
