package telemetry

import (
	"sync"

	"github.com/chrysochos/society-agent-sub001/event"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind has events dropped rather than stalling Publish,
// matching event.Sink's documented contract.
const subscriberBuffer = 256

// EventSink is a pub/sub broadcaster: every Publish call fans the event
// out to all current subscribers over buffered channels, grounded on
// MessageHub's per-agent channel map in the multi-agent collaboration
// package it was adapted from.
type EventSink struct {
	mu          sync.RWMutex
	subscribers map[int]chan event.Event
	next        int
}

// NewEventSink builds an empty EventSink.
func NewEventSink() *EventSink {
	return &EventSink{subscribers: make(map[int]chan event.Event)}
}

// Publish implements event.Sink, forwarding e to every live subscriber.
// A full subscriber channel drops the event instead of blocking.
func (s *EventSink) Publish(e event.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a new subscriber and returns its event channel plus
// an unsubscribe function. The channel is closed once unsubscribe runs.
func (s *EventSink) Subscribe() (<-chan event.Event, func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	ch := make(chan event.Event, subscriberBuffer)
	s.subscribers[id] = ch
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, unsubscribe
}

// SubscriberCount reports how many subscribers are currently registered.
func (s *EventSink) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
