package ports

import "time"

// Event is a progress event emitted during orchestration. Concrete event
// types live in the domain package; this contract is what the broadcaster
// and streaming layers depend on.
type Event interface {
	EventType() string
	Timestamp() time.Time
	GetSessionID() string
}

// EventListener consumes orchestration events (streaming layers, tests).
type EventListener interface {
	OnEvent(event Event)
}
