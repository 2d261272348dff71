package app

import (
	"sync"
	"sync/atomic"

	"ship/internal/logging"
	"ship/internal/ship/ports"
	"ship/internal/utils"
)

const defaultSubscriberBuffer = 64

// EventBroadcaster is the session event bus: it keeps a bounded replay
// buffer per session and fans live events out to subscribers.
//
// Ordering guarantee: the per-session mutex is held across both publish and
// subscribe, so a subscriber first receives the full replay and then every
// later event exactly once, in publish order.
type EventBroadcaster struct {
	mu         sync.Mutex
	sessions   map[string]*sessionStream
	replaySize int
	logger     logging.Logger

	eventsSent    atomic.Int64
	droppedEvents atomic.Int64
}

type sessionStream struct {
	mu          sync.Mutex
	replay      []ports.Event
	subscribers []chan ports.Event
	done        bool // a done event was published; the stream is closed to new events
}

// NewEventBroadcaster creates a broadcaster keeping up to replaySize events
// per session for replay.
func NewEventBroadcaster(replaySize int) *EventBroadcaster {
	if replaySize <= 0 {
		replaySize = 256
	}
	return &EventBroadcaster{
		sessions:   make(map[string]*sessionStream),
		replaySize: replaySize,
		logger:     utils.NewComponentLogger("EventBroadcaster"),
	}
}

func (b *EventBroadcaster) stream(sessionID string) *sessionStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	if !ok {
		s = &sessionStream{}
		b.sessions[sessionID] = s
	}
	return s
}

// OnEvent implements ports.EventListener.
func (b *EventBroadcaster) OnEvent(event ports.Event) {
	b.Publish(event)
}

// Publish appends the event to the session's replay buffer and delivers it
// to all live subscribers. Events published after a done event are dropped.
func (b *EventBroadcaster) Publish(event ports.Event) {
	if event == nil {
		return
	}
	sessionID := event.GetSessionID()
	if sessionID == "" {
		b.logger.Warn("Dropping event %s without session ID", event.EventType())
		return
	}
	s := b.stream(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		b.logger.Warn("Dropping event %s published after done for session %s", event.EventType(), sessionID)
		return
	}
	if event.EventType() == "done" {
		s.done = true
	}

	s.replay = append(s.replay, event)
	if len(s.replay) > b.replaySize {
		s.replay = s.replay[len(s.replay)-b.replaySize:]
	}

	for i, ch := range s.subscribers {
		select {
		case ch <- event:
			b.eventsSent.Add(1)
		default:
			if b.deliverCritical(sessionID, ch, event) {
				continue
			}
			b.logger.Warn("Subscriber buffer full for session %s, dropping event %s (subscriber %d/%d)",
				sessionID, event.EventType(), i+1, len(s.subscribers))
			b.droppedEvents.Add(1)
		}
	}
}

// deliverCritical frees a slot for terminal events by dropping the oldest
// buffered event. A stream must never end without its done event.
func (b *EventBroadcaster) deliverCritical(sessionID string, ch chan ports.Event, event ports.Event) bool {
	switch event.EventType() {
	case "done", "error":
	default:
		return false
	}
	select {
	case <-ch:
		b.droppedEvents.Add(1)
	default:
	}
	select {
	case ch <- event:
		b.eventsSent.Add(1)
		return true
	default:
		b.logger.Warn("Failed to deliver critical event %s for session %s", event.EventType(), sessionID)
		return false
	}
}

// Subscribe returns a channel that first yields the session's replay buffer
// and then live events. The returned cancel function unregisters and closes
// the channel; it is safe to call more than once.
func (b *EventBroadcaster) Subscribe(sessionID string) (<-chan ports.Event, func()) {
	s := b.stream(sessionID)

	s.mu.Lock()
	ch := make(chan ports.Event, len(s.replay)+defaultSubscriberBuffer)
	for _, event := range s.replay {
		ch <- event
	}
	s.subscribers = append(s.subscribers, ch)
	b.logger.Info("Subscriber registered for session %s (replayed %d events, total subscribers %d)",
		sessionID, len(ch), len(s.subscribers))
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subscribers {
				if sub == ch {
					s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
	return ch, cancel
}

// History returns a copy of the replay buffer for a session.
func (b *EventBroadcaster) History(sessionID string) []ports.Event {
	b.mu.Lock()
	s, ok := b.sessions[sessionID]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replay) == 0 {
		return nil
	}
	out := make([]ports.Event, len(s.replay))
	copy(out, s.replay)
	return out
}

// SubscriberCount returns the number of live subscribers for a session.
func (b *EventBroadcaster) SubscriberCount(sessionID string) int {
	b.mu.Lock()
	s, ok := b.sessions[sessionID]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Remove drops a session's stream and replay buffer entirely.
func (b *EventBroadcaster) Remove(sessionID string) {
	b.mu.Lock()
	s, ok := b.sessions[sessionID]
	delete(b.sessions, sessionID)
	b.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
}

// DroppedEvents returns how many events were dropped on full buffers.
func (b *EventBroadcaster) DroppedEvents() int64 { return b.droppedEvents.Load() }

var _ ports.EventListener = (*EventBroadcaster)(nil)
