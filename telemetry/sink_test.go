package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysochos/society-agent-sub001/event"
)

func TestEventSinkFansOutToAllSubscribers(t *testing.T) {
	s := NewEventSink()
	ch1, unsub1 := s.Subscribe()
	ch2, unsub2 := s.Subscribe()
	defer unsub1()
	defer unsub2()

	assert.Equal(t, 2, s.SubscriberCount())

	s.Publish(event.New(event.KindAgentMessage, "backend-1", nil))

	select {
	case e := <-ch1:
		assert.Equal(t, event.KindAgentMessage, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("subscriber 1 did not receive event")
	}

	select {
	case e := <-ch2:
		assert.Equal(t, event.KindAgentMessage, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("subscriber 2 did not receive event")
	}
}

func TestEventSinkUnsubscribeClosesChannel(t *testing.T) {
	s := NewEventSink()
	ch, unsubscribe := s.Subscribe()
	unsubscribe()

	assert.Equal(t, 0, s.SubscriberCount())
	_, ok := <-ch
	assert.False(t, ok)
}

func TestEventSinkDropsWhenSubscriberFull(t *testing.T) {
	s := NewEventSink()
	_, unsubscribe := s.Subscribe()
	defer unsubscribe()

	require.NotPanics(t, func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			s.Publish(event.New(event.KindSystemEvent, "", nil))
		}
	})
}
