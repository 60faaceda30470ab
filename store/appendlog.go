package store

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/chrysochos/society-agent-sub001/apperr"
)

// AppendLog is an append-only JSONL file: one JSON value per line,
// trailing newline. Multiple processes may append to the same log
// concurrently (the OS guarantees O_APPEND writes below a few KiB are
// atomic); within this process, appends are additionally serialized so
// readers of readFrom never see a torn line written by this process.
type AppendLog struct {
	path string
	mu   sync.Mutex
}

// NewAppendLog opens (without yet creating) a log file at path.
func NewAppendLog(path string) *AppendLog {
	return &AppendLog{path: path}
}

// Append writes record as one line and fsyncs before returning, so the
// record is durable by the time Append returns (spec section 4.1).
func (l *AppendLog) Append(record json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return apperr.Wrap(apperr.KindIO, "create log dir", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.KindIO, "open log", err)
	}
	defer f.Close()

	line := append(append([]byte{}, record...), '\n')
	if _, err := f.Write(line); err != nil {
		return apperr.Wrap(apperr.KindIO, "append log line", err)
	}
	return f.Sync()
}

// ReadAll returns every well-formed record in the log, in file order.
// Malformed lines are skipped rather than aborting the read, matching
// spec section 4.1's catch-up guarantee.
func (l *AppendLog) ReadAll() ([]json.RawMessage, error) {
	records, _, err := l.ReadFrom(0)
	return records, err
}

// ReadFrom reads records starting at byte offset from, returning the
// decoded records and the new offset (the length of the file at the
// time of the read). Passing the returned offset back into the next
// ReadFrom call avoids rereading already-seen records.
func (l *AppendLog) ReadFrom(from int64) ([]json.RawMessage, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, from, apperr.Wrap(apperr.KindIO, "open log for read", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, from, apperr.Wrap(apperr.KindIO, "stat log", err)
	}
	size := info.Size()
	if from > size {
		from = 0
	}
	if from > 0 {
		if _, err := f.Seek(from, 0); err != nil {
			return nil, from, apperr.Wrap(apperr.KindIO, "seek log", err)
		}
	}

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytesTrimSpace(line)) == 0 {
			continue
		}
		var v json.RawMessage
		if err := json.Unmarshal(line, &v); err != nil {
			// Malformed line: skip, never abort catch-up.
			continue
		}
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		records = append(records, cp)
	}
	return records, size, nil
}

func bytesTrimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpaceByte(b[start]) {
		start++
	}
	for end > start && isSpaceByte(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
