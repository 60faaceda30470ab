package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/chrysochos/society-agent-sub001/apperr"
	"github.com/chrysochos/society-agent-sub001/event"
)

// outputStreamInterval is the minimum gap between tool-execution events
// streaming a foreground command's partial output (spec section 4.6).
const outputStreamInterval = 500 * time.Millisecond

// DefaultCommandTimeout is applied to foreground commands when the
// caller doesn't specify one.
const DefaultCommandTimeout = 5 * time.Minute

// backgroundProbeDelay is how long to wait before checking a
// newly-spawned background process is still alive and tailing its log.
const backgroundProbeDelay = 3 * time.Second

const backgroundLogTailLimit = 3 * 1024  // 3 KiB
const foregroundHeadLimit = 4000
const foregroundTailLimit = 2000
const foregroundCompressThreshold = 6 * 1024 // ~6 KiB

// serverPatterns auto-promote a command to background execution: these
// are long-running dev servers that would otherwise hang run_command
// forever in the foreground.
var serverPatterns = []string{
	"npm run dev", "npm run start", "npm run serve", "npm run server",
	"nodemon", "ts-node server", "python -m http.server", "uvicorn",
}

// Shell executes commands rooted at an agent's working folder, guarding
// the host process against commands that would kill it.
type Shell struct {
	self            string
	workDir         string
	forbiddenPorts  []int
	forbiddenNames  []string
	logDir          string
	sink            event.Sink
	mu              sync.Mutex
	backgroundProcs map[string]*os.Process
}

// NewShell creates a shell tool rooted at workDir. forbiddenPorts and
// forbiddenNames name the host server's own port(s) and process
// name(s), so run_command can refuse to kill its own host (spec
// section 4.6 / REDESIGN FLAGS example). self identifies the owning
// agent in streamed tool-execution events; sink may be nil.
func NewShell(workDir string, forbiddenPorts []int, forbiddenNames []string, self string, sink event.Sink) *Shell {
	if sink == nil {
		sink = event.NopSink{}
	}
	return &Shell{
		self:            self,
		workDir:         workDir,
		forbiddenPorts:  forbiddenPorts,
		forbiddenNames:  forbiddenNames,
		logDir:          filepath.Join(workDir, ".agent-logs"),
		sink:            sink,
		backgroundProcs: make(map[string]*os.Process),
	}
}

type runCommandArgs struct {
	Command    string `json:"command"`
	Background bool   `json:"background,omitempty"`
	TimeoutMs  int    `json:"timeout_ms,omitempty"`
}

// isForbidden reports whether command matches a pattern that would
// disrupt the agent's own host process: a forbidden port number or
// process name appearing in the command text.
func (s *Shell) isForbidden(command string) (string, bool) {
	for _, port := range s.forbiddenPorts {
		if strings.Contains(command, strconv.Itoa(port)) {
			return fmt.Sprintf("command references forbidden port %d", port), true
		}
	}
	for _, name := range s.forbiddenNames {
		if name != "" && strings.Contains(command, name) {
			return fmt.Sprintf("command references forbidden process name %q", name), true
		}
	}
	return "", false
}

func looksLikeServerCommand(command string) bool {
	for _, p := range serverPatterns {
		if strings.Contains(command, p) {
			return true
		}
	}
	return false
}

// RunCommand implements run_command.
func (s *Shell) RunCommand(ctx context.Context, argsJSON json.RawMessage) (string, error) {
	var args runCommandArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "run_command arguments", err)
	}
	if reason, blocked := s.isForbidden(args.Command); blocked {
		return "", apperr.New(apperr.KindBlocked, reason)
	}

	background := args.Background || looksLikeServerCommand(args.Command)
	if background {
		return s.runBackground(args.Command)
	}
	return s.runForeground(ctx, args.Command, args.TimeoutMs)
}

func (s *Shell) runForeground(ctx context.Context, command string, timeoutMs int) (string, error) {
	timeout := DefaultCommandTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = s.workDir
	// Ask the process to exit cleanly on timeout/cancellation before
	// resorting to a kill; exec.CommandContext's default Cancel sends
	// SIGKILL immediately, which gives the command no chance to flush
	// output or clean up.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 2 * time.Second

	var out bytes.Buffer
	stream := &throttledWriter{shell: s, buf: &out}
	cmd.Stdout = stream
	cmd.Stderr = stream

	err := cmd.Run()
	stream.flush()
	output := compressOutput(out.String())

	exitCode := 0
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", apperr.New(apperr.KindTimeout, "command timed out after "+timeout.String()+"\n"+output)
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", apperr.Wrap(apperr.KindIO, "run command", err)
		}
	}

	result := fmt.Sprintf("exit_code=%d\n%s", exitCode, output)
	if exitCode != 0 {
		return result, apperr.New(apperr.KindInvalidState, "command exited non-zero: "+result)
	}
	return result, nil
}

// throttledWriter fans a foreground command's combined stdout/stderr into
// buf while publishing a KindToolExecution event with the output
// accumulated so far at most once per outputStreamInterval, so a
// subscriber watching a long-running command sees progress without being
// flooded by every individual write.
type throttledWriter struct {
	shell      *Shell
	buf        *bytes.Buffer
	mu         sync.Mutex
	lastPublic time.Time
	lastLen    int
}

func (w *throttledWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	if err != nil {
		return n, err
	}

	w.mu.Lock()
	due := time.Since(w.lastPublic) >= outputStreamInterval
	if due {
		w.lastPublic = time.Now()
	}
	w.mu.Unlock()

	if due {
		w.publish()
	}
	return n, nil
}

func (w *throttledWriter) publish() {
	w.mu.Lock()
	full := w.buf.Bytes()
	if len(full) == w.lastLen {
		w.mu.Unlock()
		return
	}
	w.lastLen = len(full)
	snapshot := string(full)
	w.mu.Unlock()

	w.shell.sink.Publish(event.New(event.KindToolExecution, w.shell.self, map[string]any{
		"tool":   "run_command",
		"output": compressOutput(snapshot),
	}))
}

// flush publishes one last event with whatever output accumulated since
// the last throttled publish, so a command that finishes within the
// throttle window still reports its tail.
func (w *throttledWriter) flush() {
	w.publish()
}

// compressOutput applies head(4000) + "...omitted..." + tail(2000)
// compression once output exceeds ~6 KiB so a trailing test summary
// stays visible.
func compressOutput(output string) string {
	if len(output) <= foregroundCompressThreshold {
		return output
	}
	head := output[:foregroundHeadLimit]
	tail := output[len(output)-foregroundTailLimit:]
	return head + "\n...omitted...\n" + tail
}

func (s *Shell) runBackground(command string) (string, error) {
	if err := os.MkdirAll(s.logDir, 0755); err != nil {
		return "", apperr.Wrap(apperr.KindIO, "create log dir", err)
	}
	logPath := filepath.Join(s.logDir, fmt.Sprintf("bg-%d.log", time.Now().UnixNano()))
	logFile, err := os.Create(logPath)
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, "create background log", err)
	}
	defer logFile.Close()

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = s.workDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		return "", apperr.Wrap(apperr.KindIO, "start background command", err)
	}

	s.mu.Lock()
	s.backgroundProcs[logPath] = cmd.Process
	s.mu.Unlock()

	go cmd.Wait() // reap so the process doesn't linger as a zombie

	time.Sleep(backgroundProbeDelay)

	alive := processAlive(cmd.Process)
	tail := tailFile(logPath, backgroundLogTailLimit)
	status := "started"
	if !alive {
		status = "exited early"
	}
	return fmt.Sprintf("background command %s (pid=%d)\nlog=%s\n%s", status, cmd.Process.Pid, logPath, tail), nil
}

func processAlive(p *os.Process) bool {
	if p == nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

func tailFile(path string, limit int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if len(data) <= limit {
		return string(data)
	}
	return string(data[len(data)-limit:])
}

type killProcessArgs struct {
	LogPath string `json:"log_path"`
	PID     int    `json:"pid,omitempty"`
}

// KillProcess implements kill_process, used to stop a background command
// started via run_command. Agent cancellation does not touch these
// processes, so an explicit kill is the only way to stop one; it still
// refuses to target the host's own process.
func (s *Shell) KillProcess(argsJSON json.RawMessage) (string, error) {
	var args killProcessArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "kill_process arguments", err)
	}

	s.mu.Lock()
	proc, ok := s.backgroundProcs[args.LogPath]
	s.mu.Unlock()
	if !ok {
		return "", apperr.New(apperr.KindNotFound, "no tracked background process for "+args.LogPath)
	}
	if proc.Pid == os.Getpid() {
		return "", apperr.New(apperr.KindBlocked, "refusing to kill own host process")
	}

	if err := proc.Kill(); err != nil {
		return "", apperr.Wrap(apperr.KindIO, "kill process", err)
	}
	s.mu.Lock()
	delete(s.backgroundProcs, args.LogPath)
	s.mu.Unlock()
	return fmt.Sprintf("killed pid %d", proc.Pid), nil
}
