package events

import "sync"

// Subscriber reacts to published events. Unlike a request-persistence hook,
// a subscriber here is purely an observer: its errors and panics are
// swallowed by the Bus rather than propagated, so a misbehaving sink (e.g. a
// slow NDJSON writer) can never abort the call or agent step that produced
// the event.
type Subscriber interface {
	HandleEvent(Event)
}

// SubscriberFunc adapts a plain function to Subscriber.
type SubscriberFunc func(Event)

// HandleEvent implements Subscriber.
func (f SubscriberFunc) HandleEvent(e Event) { f(e) }

// Subscription represents an active registration. Close is idempotent.
type Subscription interface {
	Close()
}

// Bus fans a published Event out to every registered Subscriber, in
// registration order, swallowing subscriber errors and panics.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*subscription]Subscriber
	order       []*subscription
}

type subscription struct {
	bus    *Bus
	once   sync.Once
}

// NewBus constructs an empty, ready-to-use Bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[*subscription]Subscriber)}
}

// Register adds sub to the bus and returns a Subscription that removes it
// on Close.
func (b *Bus) Register(sub Subscriber) Subscription {
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.order = append(b.order, s)
	b.mu.Unlock()
	return s
}

func (s *subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		for i, o := range s.bus.order {
			if o == s {
				s.bus.order = append(s.bus.order[:i], s.bus.order[i+1:]...)
				break
			}
		}
		s.bus.mu.Unlock()
	})
}

// Publish delivers event to every currently registered subscriber. A
// subscriber that panics or would otherwise disrupt delivery is isolated by
// recover; remaining subscribers still run.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.order))
	for _, s := range b.order {
		subs = append(subs, b.subscribers[s])
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		dispatch(sub, event)
	}
}

func dispatch(sub Subscriber, event Event) {
	defer func() { _ = recover() }()
	sub.HandleEvent(event)
}
