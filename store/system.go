package store

import (
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var (
	ErrClosed          = errors.New("store is closed")
	ErrNoSystem        = errors.New("no store system available")
	ErrSubscriberPanic = errors.New("subscriber panicked")
)

// Value is the representation handed to subscribers.
type Value = any

// Valuer is implemented by types that know how to convert themselves into the
// representation published to subscribers.
type Valuer interface {
	StoreValue() Value
}

type SetFunc func(Value) error
type StartFunc func(set SetFunc) (stop func())
type Subscriber func(Value)
type Unsubscriber func()

type Subscribable interface {
	Subscribe(run Subscriber) Unsubscriber
}

// System is the environment stores live in. Stores created without one cannot
// hand out handles.
type System struct {
	logger zerolog.Logger
	nextID atomic.Uint64
}

type Option func(*System)

func WithLogger(logger zerolog.Logger) Option {
	return func(sys *System) {
		sys.logger = logger
	}
}

func NewSystem(opts ...Option) *System {
	sys := &System{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(sys)
	}
	return sys
}

func (sys *System) Logger() *zerolog.Logger {
	return &sys.logger
}

func (sys *System) newID() uint64 {
	return sys.nextID.Add(1)
}
