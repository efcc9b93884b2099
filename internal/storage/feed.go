package storage

import (
	"context"
	"errors"
	"sync"
)

var errFeedClosed = errors.New("change feed closed")

// Subscription is a handle on the change feed owned by a single consumer.
// Events for one message arrive in commit order. Close is idempotent.
type Subscription struct {
	C <-chan ChangeEvent

	receiver string
	out      chan ChangeEvent
	wake     chan struct{}
	done     chan struct{}
	once     sync.Once
	detach   func()

	mu    sync.Mutex
	queue []ChangeEvent
}

// Close stops delivery and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.detach()
	})
}

func (s *Subscription) enqueue(ev ChangeEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump drains the queue into C so a slow consumer never blocks publishers.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = ChangeEvent{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

// Broadcaster fans change events out to subscriptions.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a subscription that is closed when ctx is done.
func (b *Broadcaster) Subscribe(ctx context.Context, receiver string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errFeedClosed
	}

	id := b.nextID
	b.nextID++

	out := make(chan ChangeEvent)
	sub := &Subscription{
		C:        out,
		receiver: receiver,
		out:      out,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	sub.detach = func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
	b.subs[id] = sub

	go sub.pump()
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Publish queues ev on every subscription whose partition matches.
func (b *Broadcaster) Publish(ev ChangeEvent) {
	if ev.Message == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if sub.receiver != "" && sub.receiver != ev.Message.ReceiverNumber {
			continue
		}
		sub.enqueue(ChangeEvent{Type: ev.Type, Message: ev.Message.Clone()})
	}
}

// Resync tells every subscription, whatever its partition, that events may
// have been lost.
func (b *Broadcaster) Resync() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		sub.enqueue(ChangeEvent{Type: EventResync})
	}
}

// Close closes every subscription and rejects new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
