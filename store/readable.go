package store

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

type subscription struct {
	run    Subscriber
	active atomic.Bool
}

func (sub *subscription) call(v Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSubscriberPanic, r)
		}
	}()
	sub.run(v)
	return nil
}

type delivery struct {
	targets []*subscription
	value   Value
}

// Readable is a store observers can subscribe to but not write. Values are
// pushed into it by the start hook's set function.
type Readable struct {
	sys   *System
	id    uint64
	start StartFunc

	// lifecycle serializes activation and deactivation.
	lifecycle sync.Mutex

	mu       sync.Mutex
	value    Value
	subs     []*subscription
	stop     func()
	running  bool
	closed   bool
	queue    []delivery
	draining bool
}

// NewReadable creates a store holding initial. start is invoked whenever the
// store goes from zero to one subscriber.
func NewReadable(sys *System, initial Value, start StartFunc) *Readable {
	if sys == nil {
		panic(ErrNoSystem)
	}
	return &Readable{
		sys:   sys,
		id:    sys.newID(),
		start: start,
		value: initial,
	}
}

func (s *Readable) ID() uint64 {
	return s.id
}

func (s *Readable) Handle() Handle {
	return Handle{s: s}
}

// Subscribe registers run and replays the current value to it. The replay
// goes through the delivery queue, so it is ordered against concurrent sets;
// a panic in run is recovered and logged like any other delivery.
func (s *Readable) Subscribe(run Subscriber) Unsubscriber {
	if run == nil {
		panic("nil subscriber")
	}

	s.lifecycle.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.lifecycle.Unlock()
		return func() {}
	}
	sub := &subscription{run: run}
	sub.active.Store(true)
	s.subs = append(s.subs, sub)

	var drain bool
	if s.running {
		drain = s.push(delivery{targets: []*subscription{sub}, value: s.value})
		s.mu.Unlock()
	} else {
		s.mu.Unlock()
		drain = s.activate(sub)
	}
	s.lifecycle.Unlock()

	if drain {
		if err := s.drain(); err != nil {
			s.sys.logger.Error().Err(err).Uint64("store", s.id).Msg("replay failed")
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(sub) })
	}
}

// activate runs the start hook and queues the replay for first. Sets made by
// the hook only update the value.
func (s *Readable) activate(first *subscription) (drain bool) {
	var stop func()
	if s.start != nil {
		stop = s.start(s.set)
	}

	s.mu.Lock()
	s.stop = stop
	s.running = true
	drain = s.push(delivery{targets: []*subscription{first}, value: s.value})
	s.mu.Unlock()
	s.sys.logger.Debug().Uint64("store", s.id).Msg("store started")
	return drain
}

func (s *Readable) unsubscribe(sub *subscription) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	sub.active.Store(false)

	s.mu.Lock()
	for i, other := range s.subs {
		if other == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			break
		}
	}
	if len(s.subs) != 0 || !s.running {
		s.mu.Unlock()
		return
	}
	stop := s.stop
	s.stop = nil
	s.running = false
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.sys.logger.Debug().Uint64("store", s.id).Msg("store stopped")
}

// Close drops every subscriber and makes the store inert. Later sets fail
// with ErrClosed.
func (s *Readable) Close() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, sub := range s.subs {
		sub.active.Store(false)
	}
	s.subs = nil
	s.queue = nil
	stop := s.stop
	s.stop = nil
	s.running = false
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.sys.logger.Debug().Uint64("store", s.id).Msg("store closed")
}

func (s *Readable) set(v Value) error {
	drain, err := s.commit(v)
	if err != nil || !drain {
		return err
	}
	return s.flush()
}

// commit stores v and queues its delivery. It reports whether the caller has
// to drain the queue.
func (s *Readable) commit(v Value) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}
	s.value = v
	if !s.running || len(s.subs) == 0 {
		return false, nil
	}
	targets := make([]*subscription, len(s.subs))
	copy(targets, s.subs)
	return s.push(delivery{targets: targets, value: v}), nil
}

func (s *Readable) load() Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *Readable) flush() error {
	err := s.drain()
	if err != nil {
		s.sys.logger.Error().Err(err).Uint64("store", s.id).Msg("publish failed")
	}
	return err
}

// push queues d and reports whether the caller has to drain the queue. The
// caller must hold s.mu.
func (s *Readable) push(d delivery) bool {
	s.queue = append(s.queue, d)
	if s.draining {
		return false
	}
	s.draining = true
	return true
}

func (s *Readable) drain() error {
	var errs []error
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return errors.Join(errs...)
		}
		d := s.queue[0]
		s.queue[0] = delivery{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		for _, sub := range d.targets {
			if !sub.active.Load() {
				continue
			}
			if err := sub.call(d.value); err != nil {
				errs = append(errs, err)
			}
		}
	}
}

// Handle is the observer side of a store: it can subscribe, nothing else.
type Handle struct {
	s *Readable
}

func (h Handle) Subscribe(run Subscriber) Unsubscriber {
	if h.s == nil {
		panic(ErrNoSystem)
	}
	return h.s.Subscribe(run)
}

func (h Handle) ID() uint64 {
	if h.s == nil {
		panic(ErrNoSystem)
	}
	return h.s.id
}

func (h Handle) Valid() bool {
	return h.s != nil
}

func (h Handle) load() Value {
	return h.s.load()
}

type loader interface {
	Subscribable
	load() Value
}

// Get returns the current value of s by subscribing and immediately
// unsubscribing.
func Get(s Subscribable) Value {
	if l, ok := s.(loader); ok {
		unsubscribe := l.Subscribe(func(Value) {})
		defer unsubscribe()
		return l.load()
	}

	var v Value
	unsubscribe := s.Subscribe(func(value Value) {
		v = value
	})
	unsubscribe()
	return v
}
