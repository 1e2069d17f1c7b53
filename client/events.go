package client

import "sync"

// Event is a session lifecycle signal broadcast to independently mounted UI
// islands so they can react without direct coupling to the auth module.
type Event string

const (
	EventSessionExpired   Event = "session-expired"
	EventSessionRefreshed Event = "session-refreshed"
)

// Bus is a typed publish/subscribe channel with an explicit subscriber list.
// Publish delivers synchronously to every handler subscribed at that moment
// (at-least-once for mounted listeners).
type Bus struct {
	lock    sync.Mutex
	nextID  int
	subs    map[Event]map[int]func(Event)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Event]map[int]func(Event))}
}

// Subscribe registers a handler and returns its unsubscribe function.
func (b *Bus) Subscribe(event Event, handler func(Event)) (unsubscribe func()) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.subs[event] == nil {
		b.subs[event] = make(map[int]func(Event))
	}
	id := b.nextID
	b.nextID++
	b.subs[event][id] = handler

	return func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		delete(b.subs[event], id)
	}
}

// Publish delivers the event to all current subscribers. Handlers run
// outside the bus lock so they may subscribe or unsubscribe freely.
func (b *Bus) Publish(event Event) {
	b.lock.Lock()
	handlers := make([]func(Event), 0, len(b.subs[event]))
	for _, h := range b.subs[event] {
		handlers = append(handlers, h)
	}
	b.lock.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// SubscriberCount returns the number of handlers for an event.
func (b *Bus) SubscriberCount(event Event) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.subs[event])
}
