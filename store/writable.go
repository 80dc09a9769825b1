package store

import "sync"

// Writable is a store anyone holding it can set.
type Writable struct {
	*Readable

	// wmu makes Update's read, compute and store one step. Delivery happens
	// after it is released, so subscribers may set the store again.
	wmu sync.Mutex
}

func NewWritable(sys *System, initial Value, start StartFunc) *Writable {
	return &Writable{Readable: NewReadable(sys, initial, start)}
}

// Set stores v and notifies every subscriber.
func (w *Writable) Set(v Value) error {
	return w.write(func() Value { return v })
}

// Update sets the store to fn applied to its current value. fn must not use
// w.
func (w *Writable) Update(fn func(Value) Value) error {
	return w.write(func() Value { return fn(w.load()) })
}

func (w *Writable) write(next func() Value) error {
	drain, err := func() (bool, error) {
		w.wmu.Lock()
		defer w.wmu.Unlock()
		return w.commit(next())
	}()
	if err != nil || !drain {
		return err
	}
	return w.flush()
}
