package bus

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/chrysochos/society-agent-sub001/apperr"
	"github.com/chrysochos/society-agent-sub001/registry"
	"github.com/chrysochos/society-agent-sub001/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SignaturePolicy controls how the bus treats unsigned messages from
// agents that do have a configured signing key (spec section 9, Open
// Question 2).
type SignaturePolicy int

const (
	// AcceptUnsignedIfNoKeysConfigured is the default: unsigned messages
	// are accepted from any sender as long as no authorized-keys map has
	// been configured at all. Once keys are configured, an unsigned
	// message from a sender that DOES have a configured key is rejected;
	// unsigned messages from senders outside the configured set are
	// still accepted.
	AcceptUnsignedIfNoKeysConfigured SignaturePolicy = iota
)

const (
	statusProbeTimeout  = 2 * time.Second
	messageSendTimeout  = 5 * time.Second
	multipartTimeout    = 30 * time.Second
	inboxPollInterval   = 3 * time.Second
	logWatchInterval    = 3 * time.Second
)

// Handler processes a delivered message. It is invoked by the inbox
// poller, the log watcher, and catch-up alike.
type Handler func(Message) error

// Bus wires together the guaranteed inbox-file path, the best-effort
// HTTP fast path, and the poll loops that deliver messages at most once
// per (message, recipient) pair.
type Bus struct {
	selfID   string
	sharedDir string

	reg *registry.Registry

	globalLog   *store.AppendLog
	deliveries  *store.AppendLog
	inboxLog    func(agentID string) *store.AppendLog

	httpClient *http.Client

	authorizedKeys map[string][]byte
	signingKey     []byte
	policy         SignaturePolicy

	logger *zap.Logger

	mu        sync.Mutex
	handler   Handler
	delivered map[string]bool // messageId -> delivered to self, in-memory mirror of deliveries log
	inboxOff  int64
	globalOff int64

	inboxPollInterval time.Duration
	logWatchInterval  time.Duration
}

// Config configures a new Bus.
type Config struct {
	SelfID         string
	SharedDir      string
	Registry       *registry.Registry
	AuthorizedKeys map[string][]byte // agentID -> HMAC key, for verifying inbound signatures
	SigningKey     []byte            // this agent's own key, for signing outbound messages; nil disables signing
	Logger         *zap.Logger

	// InboxPollInterval and LogWatchInterval override the poll cadence
	// of Run's two tickers. Zero keeps the package defaults.
	InboxPollInterval time.Duration
	LogWatchInterval  time.Duration
}

// New builds a Bus rooted at cfg.SharedDir.
func New(cfg Config) *Bus {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		selfID:         cfg.SelfID,
		sharedDir:      cfg.SharedDir,
		reg:            cfg.Registry,
		globalLog:      store.NewAppendLog(filepath.Join(cfg.SharedDir, "messages.jsonl")),
		deliveries:     store.NewAppendLog(filepath.Join(cfg.SharedDir, "deliveries.jsonl")),
		httpClient:     &http.Client{},
		authorizedKeys: cfg.AuthorizedKeys,
		signingKey:     cfg.SigningKey,
		logger:         logger.With(zap.String("component", "bus")),
		delivered:      make(map[string]bool),
	}
	b.inboxLog = func(agentID string) *store.AppendLog {
		return store.NewAppendLog(filepath.Join(cfg.SharedDir, "inboxes", agentID+".jsonl"))
	}
	b.inboxPollInterval = cfg.InboxPollInterval
	if b.inboxPollInterval <= 0 {
		b.inboxPollInterval = inboxPollInterval
	}
	b.logWatchInterval = cfg.LogWatchInterval
	if b.logWatchInterval <= 0 {
		b.logWatchInterval = logWatchInterval
	}
	return b
}

// SetHandler registers the function invoked for every message addressed
// to this agent. Typically the agentic loop's entry point.
func (b *Bus) SetHandler(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// Send delivers a message to "to" (or Broadcast), inbox-first, with a
// best-effort HTTP fast path (spec section 4.3).
func (b *Bus) Send(ctx context.Context, to string, typ Type, content string, attachments []Attachment) (Message, error) {
	msg := Message{
		ID:          uuid.New().String(),
		From:        b.selfID,
		To:          to,
		Type:        typ,
		Content:     content,
		Attachments: attachments,
		Timestamp:   time.Now(),
	}
	if b.signingKey != nil {
		nonce, err := randomNonce()
		if err != nil {
			return msg, apperr.Wrap(apperr.KindIO, "generate nonce", err)
		}
		sig, err := sign(msg, nonce, b.signingKey)
		if err != nil {
			return msg, apperr.Wrap(apperr.KindIO, "sign message", err)
		}
		msg.Signature = sig
	}

	raw, err := marshalMessage(msg)
	if err != nil {
		return msg, apperr.Wrap(apperr.KindIO, "encode message", err)
	}

	// Guaranteed path: a broadcast has no single inbox to land in, so it
	// always goes to the global log, which every agent's poll loop and
	// CatchUp already watch; a directed message appends to the
	// recipient's inbox file, falling back to the global log on failure
	// so the message is never lost.
	if to == Broadcast {
		if err := b.globalLog.Append(raw); err != nil {
			return msg, err
		}
	} else if err := b.inboxLog(to).Append(raw); err != nil {
		b.logger.Warn("inbox write failed, falling back to global log", zap.String("to", to), zap.Error(err))
		if err := b.globalLog.Append(raw); err != nil {
			return msg, err
		}
	}

	// Fast path: best effort, failures are logged and ignored.
	b.tryFastPath(ctx, msg)

	return msg, nil
}

func (b *Bus) tryFastPath(ctx context.Context, msg Message) {
	if b.reg == nil || msg.To == Broadcast {
		return
	}
	reg, err := b.reg.Get(msg.To)
	if err != nil || reg == nil || reg.URL == "" {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, reg.URL+"/api/status", nil)
	if err != nil {
		return
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.logger.Debug("fast path status probe failed", zap.String("to", msg.To), zap.Error(err))
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	timeout := messageSendTimeout
	path := "/api/message"
	if len(msg.Attachments) > 0 {
		timeout = multipartTimeout
		path = "/api/message-multi"
	}
	sendCtx, cancel2 := context.WithTimeout(ctx, timeout)
	defer cancel2()

	body, err := json.Marshal(msg)
	if err != nil {
		return
	}
	req2, err := http.NewRequestWithContext(sendCtx, http.MethodPost, reg.URL+path, bytes.NewReader(body))
	if err != nil {
		return
	}
	req2.Header.Set("Content-Type", "application/json")
	resp2, err := b.httpClient.Do(req2)
	if err != nil {
		b.logger.Debug("fast path send failed", zap.String("to", msg.To), zap.Error(err))
		return
	}
	resp2.Body.Close()
}

func randomNonce() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// verifyInbound applies the configured signature policy to an inbound
// message, returning an error if it must be rejected.
func (b *Bus) verifyInbound(m Message) error {
	if len(b.authorizedKeys) == 0 {
		return nil
	}
	key, known := b.authorizedKeys[m.From]
	if !known {
		return nil
	}
	if m.Signature == "" {
		return apperr.New(apperr.KindUnauthorized, "unsigned message from known sender "+m.From)
	}
	if err := verify(m, key); err != nil {
		return apperr.Wrap(apperr.KindUnauthorized, "signature verification failed", err)
	}
	return nil
}

// loadDeliveredCache seeds the in-memory delivered set from the shared
// deliveries log, restricted to records delivered to this agent, so a
// restarted process does not redeliver messages it already handled.
func (b *Bus) loadDeliveredCache() error {
	records, err := b.deliveries.ReadAll()
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, raw := range records {
		var d Delivery
		if err := json.Unmarshal(raw, &d); err != nil {
			continue
		}
		if d.DeliveredTo == b.selfID {
			b.delivered[d.MessageID] = true
		}
	}
	return nil
}

// handle applies the at-most-once delivery gate and invokes the
// registered handler, appending a delivery record on success.
func (b *Bus) handle(m Message) error {
	if !m.For(b.selfID) {
		return nil
	}
	if err := b.verifyInbound(m); err != nil {
		b.logger.Warn("rejecting message", zap.String("from", m.From), zap.Error(err))
		return err
	}

	b.mu.Lock()
	if b.delivered[m.ID] {
		b.mu.Unlock()
		return nil
	}
	handler := b.handler
	b.mu.Unlock()

	if handler == nil {
		return nil
	}
	if err := handler(m); err != nil {
		return err
	}

	now := time.Now()
	d := Delivery{MessageID: m.ID, DeliveredTo: b.selfID, DeliveredAt: now}
	raw, err := json.Marshal(d)
	if err != nil {
		return apperr.Wrap(apperr.KindIO, "encode delivery record", err)
	}
	if err := b.deliveries.Append(raw); err != nil {
		return err
	}

	b.mu.Lock()
	b.delivered[m.ID] = true
	b.mu.Unlock()
	return nil
}

// CatchUp processes every undelivered message addressed to this agent
// from both the global log and this agent's own inbox file, in
// timestamp order, then leaves both readers positioned at end-of-file so
// subsequent polls only see new records.
func (b *Bus) CatchUp() error {
	if err := b.loadDeliveredCache(); err != nil {
		return err
	}

	var pending []Message

	globalRecords, globalOff, err := b.globalLog.ReadFrom(0)
	if err != nil {
		return err
	}
	b.globalOff = globalOff
	for _, raw := range globalRecords {
		m, err := unmarshalMessage(raw)
		if err != nil {
			continue
		}
		pending = append(pending, m)
	}

	inboxRecords, inboxOff, err := b.inboxLog(b.selfID).ReadFrom(0)
	if err != nil {
		return err
	}
	b.inboxOff = inboxOff
	for _, raw := range inboxRecords {
		m, err := unmarshalMessage(raw)
		if err != nil {
			continue
		}
		pending = append(pending, m)
	}

	sortByTimestamp(pending)

	for _, m := range pending {
		if err := b.handle(m); err != nil {
			b.logger.Warn("catch-up handling failed", zap.String("message_id", m.ID), zap.Error(err))
		}
	}
	return nil
}

// PeekInbox returns every message addressed to this agent that has not
// yet been marked delivered, without invoking the handler or advancing
// the poll offsets used by Run/CatchUp. It backs the read_inbox tool,
// which inspects pending messages without triggering loop re-entry.
func (b *Bus) PeekInbox() ([]Message, error) {
	if err := b.loadDeliveredCache(); err != nil {
		return nil, err
	}

	var pending []Message
	globalRecords, _, err := b.globalLog.ReadFrom(0)
	if err != nil {
		return nil, err
	}
	for _, raw := range globalRecords {
		m, err := unmarshalMessage(raw)
		if err != nil {
			continue
		}
		if m.For(b.selfID) {
			pending = append(pending, m)
		}
	}
	inboxRecords, _, err := b.inboxLog(b.selfID).ReadFrom(0)
	if err != nil {
		return nil, err
	}
	for _, raw := range inboxRecords {
		m, err := unmarshalMessage(raw)
		if err != nil {
			continue
		}
		pending = append(pending, m)
	}
	sortByTimestamp(pending)

	b.mu.Lock()
	defer b.mu.Unlock()
	out := pending[:0]
	for _, m := range pending {
		if !b.delivered[m.ID] {
			out = append(out, m)
		}
	}
	return out, nil
}

// MarkDelivered records messageIDs as delivered to this agent without
// invoking the handler, used by read_inbox(mark_read=true).
func (b *Bus) MarkDelivered(messageIDs []string) error {
	now := time.Now()
	for _, id := range messageIDs {
		d := Delivery{MessageID: id, DeliveredTo: b.selfID, DeliveredAt: now}
		raw, err := json.Marshal(d)
		if err != nil {
			return apperr.Wrap(apperr.KindIO, "encode delivery record", err)
		}
		if err := b.deliveries.Append(raw); err != nil {
			return err
		}
		b.mu.Lock()
		b.delivered[id] = true
		b.mu.Unlock()
	}
	return nil
}

func sortByTimestamp(msgs []Message) {
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && msgs[j].Timestamp.Before(msgs[j-1].Timestamp); j-- {
			msgs[j], msgs[j-1] = msgs[j-1], msgs[j]
		}
	}
}

// Run starts the inbox poller and the global-log watcher, blocking until
// ctx is cancelled. Both loops invoke the same handler (spec section 4.3).
func (b *Bus) Run(ctx context.Context) error {
	inboxTicker := time.NewTicker(b.inboxPollInterval)
	defer inboxTicker.Stop()
	watchTicker := time.NewTicker(b.logWatchInterval)
	defer watchTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-inboxTicker.C:
			b.pollInbox()
		case <-watchTicker.C:
			b.pollGlobalLog()
		}
	}
}

func (b *Bus) pollInbox() {
	records, off, err := b.inboxLog(b.selfID).ReadFrom(b.inboxOff)
	if err != nil {
		b.logger.Warn("inbox poll failed", zap.Error(err))
		return
	}
	b.inboxOff = off
	for _, raw := range records {
		m, err := unmarshalMessage(raw)
		if err != nil {
			continue
		}
		if err := b.handle(m); err != nil {
			b.logger.Warn("inbox handling failed", zap.String("message_id", m.ID), zap.Error(err))
		}
	}
}

func (b *Bus) pollGlobalLog() {
	records, off, err := b.globalLog.ReadFrom(b.globalOff)
	if err != nil {
		b.logger.Warn("log watch failed", zap.Error(err))
		return
	}
	b.globalOff = off
	for _, raw := range records {
		m, err := unmarshalMessage(raw)
		if err != nil {
			continue
		}
		if err := b.handle(m); err != nil {
			b.logger.Warn("log watch handling failed", zap.String("message_id", m.ID), zap.Error(err))
		}
	}
}
