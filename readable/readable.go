// Package readable provides Readable, a value cell with a single owner that
// publishes every change to observers through a store.
//
// The owner mutates the cell with Set, Update or SetWith. Observers only ever
// see the store handle returned by Store, which can subscribe but not write.
// Nothing is published until the first observer subscribes; that observer
// receives the value current at subscription time.
package readable

import (
	"errors"
	"fmt"
	"sync"

	"github.com/delaneyj/readable/store"
)

var ErrClosed = errors.New("readable is closed")

// Projection maps the cell's value to the representation observers receive.
// It is only ever called by one goroutine at a time.
type Projection[T any] func(T) store.Value

// Cloner is implemented by values that need a deep copy before being handed
// to observers.
type Cloner[T any] interface {
	Clone() T
}

// Readable owns a value of type T. It must not be copied after construction.
type Readable[T any] struct {
	sys *store.System

	// wmu serializes mutations together with their publish.
	wmu sync.Mutex

	// mu guards value, project and publish. It is never held while
	// subscribers run, so they can call Value.
	mu      sync.RWMutex
	value   T
	project Projection[T]
	publish store.SetFunc
	closed  bool

	store *store.Readable
}

// New creates a cell whose observers receive a copy of the value, converted
// through store.Valuer when T implements it.
//
// A nil sys gives a cell that works locally but never publishes.
func New[T any](sys *store.System, initial T) *Readable[T] {
	return NewMapped(sys, initial, cloneAndConvert[T])
}

// NewMapped creates a cell that calls project on every publish.
func NewMapped[T any](sys *store.System, initial T, project Projection[T]) *Readable[T] {
	if project == nil {
		panic("nil projection")
	}

	r := &Readable[T]{
		sys:     sys,
		value:   initial,
		project: project,
	}
	if sys != nil {
		r.store = store.NewReadable(sys, project(initial), r.start)
	}
	return r
}

// Default is New with T's zero value.
func Default[T any](sys *store.System) *Readable[T] {
	var zero T
	return New(sys, zero)
}

func cloneAndConvert[T any](v T) store.Value {
	if c, ok := any(&v).(Cloner[T]); ok {
		v = c.Clone()
	}
	if valuer, ok := any(&v).(store.Valuer); ok {
		return valuer.StoreValue()
	}
	return v
}

// start runs when the store gets its first subscriber. The value may have
// changed since construction, so the store is refreshed before the
// subscriber sees it.
//
// The store is not delivering yet, so set only records the value and mu can
// be held across it; a mutation committed after this point publishes after
// the refresh. start does not take wmu: the store may restart from inside a
// notification while a mutation is still publishing.
func (r *Readable[T]) start(set store.SetFunc) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.publish == nil {
		r.publish = set
	}
	if err := set(r.project(r.value)); err != nil {
		r.sys.Logger().Warn().Err(err).Uint64("store", r.store.ID()).Msg("failed to refresh readable store")
	}
	return nil
}

// Value returns the current value.
func (r *Readable[T]) Value() T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value
}

// Set replaces the value and publishes it. It panics if the publish fails.
func (r *Readable[T]) Set(v T) {
	if err := r.TrySet(v); err != nil {
		panic(err)
	}
}

// TrySet is Set, returning the publish error instead of panicking. The value
// is replaced either way.
func (r *Readable[T]) TrySet(v T) error {
	return r.mutate(func(value *T) {
		*value = v
	})
}

// Update mutates the value in place and publishes it.
func (r *Readable[T]) Update(fn func(*T)) {
	if err := r.mutate(fn); err != nil {
		panic(err)
	}
}

// SetWith calls fn with the cell's value, publishes the result of the
// mutation and returns what fn returned. fn must not use r.
func SetWith[T, O any](r *Readable[T], fn func(*T) O) O {
	o, err := TrySetWith(r, fn)
	if err != nil {
		panic(err)
	}
	return o
}

// TrySetWith is SetWith, returning the publish error instead of panicking.
func TrySetWith[T, O any](r *Readable[T], fn func(*T) O) (O, error) {
	var o O
	err := r.mutate(func(value *T) {
		o = fn(value)
	})
	return o, err
}

func (r *Readable[T]) mutate(fn func(*T)) error {
	r.wmu.Lock()
	defer r.wmu.Unlock()

	current, publish := r.apply(fn)
	if publish == nil {
		return nil
	}
	if err := publish(current); err != nil {
		return fmt.Errorf("failed to set readable store: %w", err)
	}
	return nil
}

// apply runs fn under the write lock and projects the result if anyone is
// listening.
func (r *Readable[T]) apply(fn func(*T)) (store.Value, store.SetFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		panic(ErrClosed)
	}
	fn(&r.value)
	if r.publish == nil {
		return nil, nil
	}
	return r.project(r.value), r.publish
}

// Store returns the handle observers subscribe to. It panics if the cell was
// created without a store system.
//
// Subscribing from inside a notification is allowed, including re-subscribing
// after the last observer left; the new observer's first value is delivered
// once the current notification round is done.
func (r *Readable[T]) Store() store.Handle {
	if r.store == nil {
		panic(fmt.Errorf("readable has no store: %w", store.ErrNoSystem))
	}
	return r.store.Handle()
}

// Close makes the store inert: subscribers are dropped and receive nothing
// further. Mutating a closed cell panics.
func (r *Readable[T]) Close() {
	r.wmu.Lock()
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wmu.Unlock()

	if r.store != nil {
		r.store.Close()
	}
}

func (r *Readable[T]) String() string {
	return fmt.Sprint(r.Value())
}

func (r *Readable[T]) GoString() string {
	return fmt.Sprintf("Readable(%#v)", r.Value())
}
