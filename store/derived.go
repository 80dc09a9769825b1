package store

import (
	"slices"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

type DeriveFunc func(values []Value) Value

// Derived creates a store whose value is fn applied to the latest values of
// deps. It only subscribes to deps while it has subscribers of its own, and
// only computes once every dep has delivered a value.
func Derived(sys *System, deps []Subscribable, fn DeriveFunc) *Readable {
	if len(deps) == 0 {
		panic("derived store needs at least one dependency")
	}

	return NewReadable(sys, nil, func(set SetFunc) func() {
		var (
			mu      sync.Mutex
			started bool
			values  = make([]Value, len(deps))
			pending = mapset.NewThreadUnsafeSet[int]()
		)
		for i := range deps {
			pending.Add(i)
		}

		publish := func(snapshot []Value) {
			if err := set(fn(snapshot)); err != nil {
				sys.logger.Error().Err(err).Msg("derived publish failed")
			}
		}

		unsubscribers := make([]Unsubscriber, len(deps))
		for i, dep := range deps {
			i := i
			unsubscribers[i] = dep.Subscribe(func(v Value) {
				mu.Lock()
				values[i] = v
				pending.Remove(i)
				ready := started && pending.Cardinality() == 0
				snapshot := slices.Clone(values)
				mu.Unlock()

				if ready {
					publish(snapshot)
				}
			})
		}

		mu.Lock()
		started = true
		ready := pending.Cardinality() == 0
		snapshot := slices.Clone(values)
		mu.Unlock()
		if ready {
			publish(snapshot)
		}

		return func() {
			for _, unsubscribe := range unsubscribers {
				unsubscribe()
			}
		}
	})
}
