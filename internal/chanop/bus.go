package chanop

import (
	"sort"
	"time"
)

// EventKind enumerates the decoded protocol events the core consumes.
type EventKind int

const (
	EventJoin EventKind = iota
	EventPart
	EventQuit
	EventNick
	EventMode
	EventListEntry
	EventListEnd
	EventISupport
)

// Event is a pre-decoded protocol event. Only the fields relevant to the
// kind are populated; wire framing never reaches this layer.
type Event struct {
	Kind    EventKind
	Server  string
	Channel string

	// Actor or affected user.
	Nick     string
	Hostmask string

	// EventNick
	NewNick string

	// EventMode: raw mode string ("+b-o") plus its arguments.
	Modes string
	Args  []string

	// EventListEntry
	Mask     string
	Operator string
	Date     time.Time

	// EventISupport
	Tokens map[string]string
}

// Handler consumes one decoded event.
type Handler func(Event)

// Subscription identifies one registered handler so it can be removed.
type Subscription struct {
	kind EventKind
	id   int
}

// Bus is an explicit handler table mapping event kinds to handlers. It is
// not safe for concurrent use; the owning Service serializes all access.
type Bus struct {
	nextID   int
	handlers map[EventKind]map[int]Handler
}

// NewBus returns an empty handler table.
func NewBus() *Bus {
	return &Bus{handlers: make(map[EventKind]map[int]Handler)}
}

// Subscribe registers a handler for an event kind.
func (b *Bus) Subscribe(kind EventKind, h Handler) Subscription {
	b.nextID++
	id := b.nextID
	if b.handlers[kind] == nil {
		b.handlers[kind] = make(map[int]Handler)
	}
	b.handlers[kind][id] = h
	return Subscription{kind: kind, id: id}
}

// Unsubscribe removes a previously registered handler. Removing a
// subscription twice is harmless.
func (b *Bus) Unsubscribe(sub Subscription) {
	if m := b.handlers[sub.kind]; m != nil {
		delete(m, sub.id)
	}
}

// Publish invokes every handler registered for the event's kind, in
// registration order. Handlers may unsubscribe themselves (or others)
// during delivery; removed handlers are skipped.
func (b *Bus) Publish(ev Event) {
	m := b.handlers[ev.Kind]
	if len(m) == 0 {
		return
	}
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if h, ok := m[id]; ok {
			h(ev)
		}
	}
}
