// Package peerserver implements the per-agent HTTP endpoint used for the
// fast delivery path described in section 4.4: status probing and direct
// message/task push, with the file-backed bus as the fallback of record.
package peerserver

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chrysochos/society-agent-sub001/bus"
)

// PortRangeStart and PortRangeEnd bound the default scan window.
const (
	PortRangeStart = 3000
	PortRangeEnd   = 4000
)

// Handler is invoked for every message accepted over HTTP, including ones
// synthesized from /api/task. It mirrors bus.Handler so the same local
// dispatch function can back both paths.
type Handler func(bus.Message) error

// InvokeHandler runs this agent's full agentic loop with message as the
// new turn and returns its final textual response. It backs /api/invoke,
// the synchronous counterpart to the fire-and-forget message/task routes:
// ask_agent, send_message(wait_for_response=true), and delegate_task all
// need a reply from the target agent, which the inbox/log delivery path
// cannot provide.
type InvokeHandler func(ctx context.Context, from, message string) (string, error)

// Server is the per-agent HTTP peer endpoint.
type Server struct {
	selfID   string
	handler  Handler
	invoke   InvokeHandler
	logger   *zap.Logger
	listener net.Listener
	http     *http.Server
}

// New constructs a peer server for selfID. Call Start to bind and serve.
func New(selfID string, handler Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		selfID:  selfID,
		handler: handler,
		logger:  logger.With(zap.String("component", "peerserver"), zap.String("agent", selfID)),
	}
}

// SetInvokeHandler wires the synchronous /api/invoke route. Call before
// Start; invoking without this set returns 501 Not Implemented.
func (s *Server) SetInvokeHandler(h InvokeHandler) {
	s.invoke = h
}

// Start scans [rangeStart, rangeEnd] in order, binds the first free port,
// and serves in the background. It returns the bound URL.
func (s *Server) Start(rangeStart, rangeEnd int) (string, error) {
	if rangeStart <= 0 {
		rangeStart = PortRangeStart
	}
	if rangeEnd <= 0 {
		rangeEnd = PortRangeEnd
	}

	var listener net.Listener
	var boundPort int
	for port := rangeStart; port <= rangeEnd; port++ {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		listener = l
		boundPort = port
		break
	}
	if listener == nil {
		return "", fmt.Errorf("peerserver: no free port in range %d-%d", rangeStart, rangeEnd)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/message", s.handleMessage)
	mux.HandleFunc("/api/message-multi", s.handleMessageMulti)
	mux.HandleFunc("/api/task", s.handleTask)
	mux.HandleFunc("/api/invoke", s.handleInvoke)

	s.listener = listener
	s.http = &http.Server{Handler: mux}

	go func() {
		if err := s.http.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("peer server stopped unexpectedly", zap.Error(err))
		}
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d", boundPort)
	s.logger.Info("peer server listening", zap.String("url", url))
	return url, nil
}

// Shutdown releases the bound port.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

type statusResponse struct {
	OK         bool   `json:"ok"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
}

func writeStatus(w http.ResponseWriter, code int, text string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(statusResponse{OK: code < 300, Status: code, StatusText: text})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "ok")
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeStatus(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var m bus.Message
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeStatus(w, http.StatusBadRequest, "malformed envelope")
		return
	}
	s.dispatch(w, m)
}

func (s *Server) handleMessageMulti(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeStatus(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeStatus(w, http.StatusBadRequest, "malformed multipart body")
		return
	}

	m := bus.Message{
		ID:      uuid.NewString(),
		From:    r.FormValue("from"),
		To:      r.FormValue("to"),
		Type:    bus.Type(r.FormValue("type")),
		Content: r.FormValue("content"),
	}
	if ts := r.FormValue("timestamp"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			m.Timestamp = parsed
		}
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	if r.MultipartForm != nil {
		for _, headers := range r.MultipartForm.File {
			for _, fh := range headers {
				att, err := readAttachment(fh)
				if err != nil {
					s.logger.Warn("dropping unreadable attachment", zap.String("filename", fh.Filename), zap.Error(err))
					continue
				}
				m.Attachments = append(m.Attachments, att)
			}
		}
	}

	s.dispatch(w, m)
}

func readAttachment(fh *multipart.FileHeader) (bus.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return bus.Attachment{}, err
	}
	defer f.Close()

	buf := make([]byte, fh.Size)
	if _, err := f.Read(buf); err != nil && fh.Size > 0 {
		return bus.Attachment{}, err
	}
	return bus.Attachment{
		Filename: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Bytes:    buf,
	}, nil
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeStatus(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var m bus.Message
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeStatus(w, http.StatusBadRequest, "malformed envelope")
		return
	}
	m.Type = bus.TypeTaskAssign
	s.dispatch(w, m)
}

type invokeRequest struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

type invokeResponse struct {
	Response string `json:"response"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeStatus(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.invoke == nil {
		writeStatus(w, http.StatusNotImplemented, "invoke not wired")
		return
	}

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, "malformed request")
		return
	}

	response, err := s.invoke(r.Context(), req.From, req.Message)
	if err != nil {
		s.logger.Warn("invoke handler failed", zap.String("from", req.From), zap.Error(err))
		writeStatus(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(invokeResponse{Response: response})
}

func (s *Server) dispatch(w http.ResponseWriter, m bus.Message) {
	if s.handler == nil {
		writeStatus(w, http.StatusAccepted, "accepted")
		return
	}
	if err := s.handler(m); err != nil {
		s.logger.Warn("handler rejected message", zap.Error(err))
		writeStatus(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeStatus(w, http.StatusAccepted, "accepted")
}

// Probe reports whether a GET of baseURL's /api/status succeeds within
// timeout. The bus's HTTP fast path runs its own inline probe and does
// not call Probe.
func Probe(ctx context.Context, baseURL string, timeout time.Duration) bool {
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/status", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ParsePort extracts the numeric port peerserver bound to from a URL of
// the form returned by Start, or -1 if it cannot be parsed.
func ParsePort(url string) int {
	var port int
	if _, err := fmt.Sscanf(url, "http://127.0.0.1:%d", &port); err != nil {
		return -1
	}
	return port
}
