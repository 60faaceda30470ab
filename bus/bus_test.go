package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chrysochos/society-agent-sub001/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T, selfID string, keys map[string][]byte, signingKey []byte) *Bus {
	t.Helper()
	dir := t.TempDir()
	reg := registry.New(dir+"/registry.json", "", nil)
	return New(Config{
		SelfID:         selfID,
		SharedDir:      dir,
		Registry:       reg,
		AuthorizedKeys: keys,
		SigningKey:     signingKey,
	})
}

// sharedBus builds two Bus instances over the same shared directory, the
// way two agent processes would.
func sharedBus(t *testing.T, dir, selfID string, keys map[string][]byte, signingKey []byte) *Bus {
	t.Helper()
	reg := registry.New(dir+"/registry.json", "", nil)
	return New(Config{
		SelfID:         selfID,
		SharedDir:      dir,
		Registry:       reg,
		AuthorizedKeys: keys,
		SigningKey:     signingKey,
	})
}

func TestSendWritesRecipientInbox(t *testing.T) {
	dir := t.TempDir()
	sender := sharedBus(t, dir, "supervisor", nil, nil)

	_, err := sender.Send(context.Background(), "backend", TypeTaskAssign, "Implement auth", nil)
	require.NoError(t, err)

	recipient := sharedBus(t, dir, "backend", nil, nil)
	var received []Message
	var mu sync.Mutex
	recipient.SetHandler(func(m Message) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, m)
		return nil
	})

	require.NoError(t, recipient.CatchUp())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "Implement auth", received[0].Content)
}

func TestAtMostOnceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	sender := sharedBus(t, dir, "supervisor", nil, nil)
	_, err := sender.Send(context.Background(), "backend", TypeMessage, "hello", nil)
	require.NoError(t, err)

	var count int
	var mu sync.Mutex
	handler := func(m Message) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		return nil
	}

	first := sharedBus(t, dir, "backend", nil, nil)
	first.SetHandler(handler)
	require.NoError(t, first.CatchUp())

	// Simulate a restart: a fresh Bus instance over the same shared dir.
	second := sharedBus(t, dir, "backend", nil, nil)
	second.SetHandler(handler)
	require.NoError(t, second.CatchUp())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "message must not be redelivered after restart")
}

func TestBroadcastDeliveredToEachRecipientOnce(t *testing.T) {
	dir := t.TempDir()
	sender := sharedBus(t, dir, "supervisor", nil, nil)
	_, err := sender.Send(context.Background(), Broadcast, TypeStatusUpdate, "pause", nil)
	require.NoError(t, err)

	for _, id := range []string{"backend", "frontend"} {
		var count int
		recipient := sharedBus(t, dir, id, nil, nil)
		recipient.SetHandler(func(m Message) error {
			count++
			return nil
		})
		require.NoError(t, recipient.CatchUp())
		assert.Equal(t, 1, count, "agent %s should see broadcast exactly once", id)
	}
}

func TestSignedMessageRejectedOnBadSignature(t *testing.T) {
	dir := t.TempDir()
	key := []byte("shared-secret")
	keys := map[string][]byte{"supervisor": key}

	sender := sharedBus(t, dir, "supervisor", nil, []byte("wrong-key"))
	_, err := sender.Send(context.Background(), "backend", TypeMessage, "hi", nil)
	require.NoError(t, err)

	var handled bool
	recipient := sharedBus(t, dir, "backend", keys, nil)
	recipient.SetHandler(func(m Message) error {
		handled = true
		return nil
	})
	require.NoError(t, recipient.CatchUp())
	assert.False(t, handled, "message with invalid signature from a known sender must be rejected")
}

func TestUnsignedAcceptedWhenSenderNotInAuthorizedKeys(t *testing.T) {
	dir := t.TempDir()
	keys := map[string][]byte{"supervisor": []byte("key")}

	sender := sharedBus(t, dir, "other-agent", nil, nil)
	_, err := sender.Send(context.Background(), "backend", TypeMessage, "hi", nil)
	require.NoError(t, err)

	var handled bool
	recipient := sharedBus(t, dir, "backend", keys, nil)
	recipient.SetHandler(func(m Message) error {
		handled = true
		return nil
	})
	require.NoError(t, recipient.CatchUp())
	assert.True(t, handled, "unsigned message from a sender outside the authorized-keys set must be accepted")
}

func TestRunPollsAndDelivers(t *testing.T) {
	dir := t.TempDir()
	sender := sharedBus(t, dir, "supervisor", nil, nil)
	recipient := sharedBus(t, dir, "backend", nil, nil)

	done := make(chan struct{})
	recipient.SetHandler(func(m Message) error {
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recipient.Run(ctx)

	_, err := sender.Send(context.Background(), "backend", TypeMessage, "polled", nil)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("message was not delivered via polling")
	}
}
