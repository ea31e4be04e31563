package feed

import (
	"sync"
)

type lagPolicy uint8

const (
	skipOnLag lagPolicy = iota
	keepLastOnLag
	closeOnLag
)

type Feed[T any] struct {
	mu     sync.Mutex // protects subs and nextID.
	subs   map[uint64]*Subscription[T]
	nextID uint64
}

type Subscription[T any] struct {
	c         chan T
	f         *Feed[T]
	unsubOnce sync.Once
	id        uint64
	policy    lagPolicy
	lagged    bool
}

func (s *Subscription[T]) Recv() <-chan T {
	return s.c
}

func (s *Subscription[T]) Unsubscribe() {
	s.unsubOnce.Do(func() {
		s.f.mu.Lock()
		defer s.f.mu.Unlock()
		close(s.c)
		delete(s.f.subs, s.id)
	})
}

// Lagged reports whether the feed closed the subscription because its consumer fell
// behind. It is only meaningful once Recv is closed.
func (s *Subscription[T]) Lagged() bool {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	return s.lagged
}

func New[T any]() *Feed[T] {
	return &Feed[T]{
		subs: make(map[uint64]*Subscription[T], 0),
	}
}

func (f *Feed[T]) subscribe(policy lagPolicy, buffer int) *Subscription[T] {
	ch := make(chan T, max(buffer, 1))
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &Subscription[T]{
		c:      ch,
		f:      f,
		id:     f.nextID,
		policy: policy,
	}
	f.nextID++
	f.subs[s.id] = s
	return s
}

// Subscribe returns a new subscription that skip emitting an event if the buffer is full.
func (f *Feed[T]) Subscribe() *Subscription[T] {
	return f.subscribe(skipOnLag, 1)
}

// SubscribeBuffered is Subscribe with room for buffer pending events.
func (f *Feed[T]) SubscribeBuffered(buffer int) *Subscription[T] {
	return f.subscribe(skipOnLag, buffer)
}

// SubscribeKeepLast returns a new subscription that drop the oldest event when the buffer is full
// to ensure that the last event is always available.
func (f *Feed[T]) SubscribeKeepLast() *Subscription[T] {
	return f.subscribe(keepLastOnLag, 1)
}

// SubscribeCloseOnLag returns a subscription that never misses an event silently: when its
// buffer is full the feed closes it, and the consumer has to subscribe again.
func (f *Feed[T]) SubscribeCloseOnLag(buffer int) *Subscription[T] {
	return f.subscribe(closeOnLag, buffer)
}

// Len returns the number of live subscriptions.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Send broadcasts v to all subscribers. Send will skip subscribers that block.
// Subscribers risk reading stale data if they wait a long time before calling Recv.
func (f *Feed[T]) Send(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, sub := range f.subs {
		// Attempt to send v to sub in a non-blocking manner.
		select {
		case sub.c <- v:
			continue
		default:
		}

		switch sub.policy {
		case keepLastOnLag:
			select {
			case <-sub.c:
			// The default case happens when the subscriber receives it concurrently.
			default:
			}
			// Try to send v to sub again. This is guaranteed to succeed, so select is not required.
			sub.c <- v
		case closeOnLag:
			sub.unsubOnce.Do(func() {
				sub.lagged = true
				close(sub.c)
				delete(f.subs, id)
			})
		case skipOnLag:
		}
	}
}

// Tee forwards all values received from sub to f.
// It stops tee-ing values when sub is unsubscribed.
func Tee[T any](sub *Subscription[T], f *Feed[T]) {
	go func() {
		for v := range sub.Recv() {
			f.Send(v)
		}
	}()
}
