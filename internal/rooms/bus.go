package rooms

import "sync"

// busCapacity bounds each subscriber's buffer. Publishers never block; when
// a slow subscriber's buffer is full, its oldest undelivered event is dropped.
const busCapacity = 256

// Bus is a per-room multi-producer, multi-subscriber broadcast channel.
type Bus struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Subscription is one subscriber's buffered view of a room's events.
type Subscription struct {
	bus *Bus
	ch  chan RoomEvent
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber. Subscriptions are cheap; drop them
// with Close when the session ends.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{bus: b, ch: make(chan RoomEvent, busCapacity)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers an event to every subscriber without blocking. Publishes
// are serialized, so each subscriber observes them in publish order.
func (b *Bus) Publish(ev RoomEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// Buffer full: drop the oldest event, then retry once.
			select {
			case <-sub.ch:
				busEventsDropped.Inc()
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}

// Events yields the subscriber's event stream.
func (s *Subscription) Events() <-chan RoomEvent {
	return s.ch
}

// Close unregisters the subscription. The event channel is left open so a
// concurrent Publish never sends on a closed channel.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
}
