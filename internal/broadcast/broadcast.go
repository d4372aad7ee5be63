// Package broadcast is the fire-and-forget notification bus between the
// assembly engine and whatever front end is listening. Publishers never
// block on slow consumers and never learn whether anyone is subscribed;
// events published on a channel before its first subscriber arrives are
// held and replayed to that subscriber.
package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// subscriberBuffer bounds each subscriber's queue. Events beyond it are
// dropped, keeping Publish non-blocking.
const subscriberBuffer = 64

// Event is one published notification.
type Event struct {
	ID      string
	Channel string
	Message any
	At      time.Time
}

// Subscriber receives events for a single channel until unsubscribed.
type Subscriber struct {
	Channel string
	ch      chan Event
}

// Events returns the receive side of the subscriber's queue. The channel is
// closed on Unsubscribe and on Bus.Close.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Bus fans events out to per-channel subscriber sets. Channels come into
// existence with their first subscriber and are torn down when the last one
// unsubscribes.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string]map[*Subscriber]struct{}
	missed      map[string][]Event
	events      chan Event
	done        chan struct{}
	wg          sync.WaitGroup
	closed      bool
}

// New starts a bus and its dispatch loop. Callers own the bus lifecycle and
// must Close it.
func New() *Bus {
	b := &Bus{
		subscribers: make(map[string]map[*Subscriber]struct{}),
		missed:      make(map[string][]Event),
		events:      make(chan Event, 256),
		done:        make(chan struct{}),
	}
	b.wg.Add(1)
	go b.dispatch()
	return b
}

func (b *Bus) dispatch() {
	defer b.wg.Done()
	for {
		select {
		case ev := <-b.events:
			b.deliver(ev)
		case <-b.done:
			// Drain anything already queued so Close does not lose
			// events published before it.
			for {
				select {
				case ev := <-b.events:
					b.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[ev.Channel]
	if !ok || len(subs) == 0 {
		b.missed[ev.Channel] = append(b.missed[ev.Channel], ev)
		return
	}
	for sub := range subs {
		select {
		case sub.ch <- ev:
		default:
			// Subscriber is not keeping up; drop rather than block.
		}
	}
}

// Publish queues an event for delivery and returns it. Publishing on a
// closed bus is a no-op.
func (b *Bus) Publish(channel string, message any) Event {
	ev := Event{
		ID:      uuid.NewString(),
		Channel: channel,
		Message: message,
		At:      time.Now(),
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ev
	}

	select {
	case b.events <- ev:
	case <-b.done:
	}
	return ev
}

// Subscribe registers a new subscriber on the channel. Events published
// before the channel had any subscriber are replayed into its queue.
func (b *Bus) Subscribe(channel string) *Subscriber {
	sub := &Subscriber{
		Channel: channel,
		ch:      make(chan Event, subscriberBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub
	}
	set, ok := b.subscribers[channel]
	if !ok {
		set = make(map[*Subscriber]struct{})
		b.subscribers[channel] = set
	}
	set[sub] = struct{}{}

	for _, ev := range b.missed[channel] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	delete(b.missed, channel)

	return sub
}

// Unsubscribe removes the subscriber and closes its queue. The channel's
// subscriber set is torn down when the last subscriber leaves.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subscribers[sub.Channel]
	if !ok {
		return
	}
	if _, member := set[sub]; !member {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(b.subscribers, sub.Channel)
	}
}

// Close stops the dispatch loop and closes every subscriber queue.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	for channel, set := range b.subscribers {
		for sub := range set {
			close(sub.ch)
		}
		delete(b.subscribers, channel)
	}
}

// subscriberCount reports the live subscriber count for a channel.
func (b *Bus) subscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[channel])
}
