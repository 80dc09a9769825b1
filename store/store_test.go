package store_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/delaneyj/readable/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	values []store.Value
}

func (r *recorder) run(v store.Value) {
	r.values = append(r.values, v)
}

// should replay the current value to a new subscriber
func TestSubscribeReplaysCurrentValue(t *testing.T) {
	sys := store.NewSystem()
	w := store.NewWritable(sys, 1, nil)

	a := &recorder{}
	unsubscribe := w.Subscribe(a.run)
	defer unsubscribe()

	assert.Equal(t, []store.Value{1}, a.values)
}

// should deliver every set, in subscription order, without deduplication
func TestSetFansOutToAllSubscribers(t *testing.T) {
	sys := store.NewSystem()
	w := store.NewWritable(sys, 0, nil)

	var order []string
	w.Subscribe(func(v store.Value) { order = append(order, "a") })
	w.Subscribe(func(v store.Value) { order = append(order, "b") })
	order = nil

	require.NoError(t, w.Set(1))
	require.NoError(t, w.Set(1))
	assert.Equal(t, []string{"a", "b", "a", "b"}, order)
}

// should only start on the first subscriber and stop on the last unsubscribe
func TestStartStopLifecycle(t *testing.T) {
	sys := store.NewSystem()
	starts, stops := 0, 0
	r := store.NewReadable(sys, 0, func(set store.SetFunc) func() {
		starts++
		return func() { stops++ }
	})
	assert.Equal(t, 0, starts)

	unsubA := r.Subscribe(func(store.Value) {})
	unsubB := r.Subscribe(func(store.Value) {})
	assert.Equal(t, 1, starts)

	unsubA()
	unsubA()
	assert.Equal(t, 0, stops)
	unsubB()
	assert.Equal(t, 1, stops)

	unsubC := r.Subscribe(func(store.Value) {})
	assert.Equal(t, 2, starts)
	unsubC()
	assert.Equal(t, 2, stops)
}

// should not notify while starting, but replay what start set
func TestSetDuringStartIsReplayedOnce(t *testing.T) {
	sys := store.NewSystem()
	r := store.NewReadable(sys, "initial", func(set store.SetFunc) func() {
		require.NoError(t, set("fresh"))
		return nil
	})

	a := &recorder{}
	r.Subscribe(a.run)
	assert.Equal(t, []store.Value{"fresh"}, a.values)
}

// should capture a publish function that keeps working after start returns
func TestCapturedSetPublishes(t *testing.T) {
	sys := store.NewSystem()
	var publish store.SetFunc
	r := store.NewReadable(sys, 0, func(set store.SetFunc) func() {
		publish = set
		return nil
	})

	a := &recorder{}
	r.Subscribe(a.run)
	require.NotNil(t, publish)
	require.NoError(t, publish(7))
	assert.Equal(t, []store.Value{0, 7}, a.values)
}

// should keep notifying other subscribers when one panics
func TestSubscriberPanicIsReported(t *testing.T) {
	sys := store.NewSystem()
	w := store.NewWritable(sys, 0, nil)

	w.Subscribe(func(v store.Value) {
		if v == 1 {
			panic("boom")
		}
	})
	b := &recorder{}
	w.Subscribe(b.run)

	err := w.Set(1)
	require.ErrorIs(t, err, store.ErrSubscriberPanic)
	assert.Equal(t, []store.Value{0, 1}, b.values)
}

// should deliver sets made from inside a subscriber after the current one
func TestNestedSetKeepsOrder(t *testing.T) {
	sys := store.NewSystem()
	w := store.NewWritable(sys, 0, nil)

	a := &recorder{}
	w.Subscribe(func(v store.Value) {
		a.run(v)
		if v == 1 {
			require.NoError(t, w.Set(2))
		}
	})
	b := &recorder{}
	w.Subscribe(b.run)

	require.NoError(t, w.Set(1))
	assert.Equal(t, []store.Value{0, 1, 2}, a.values)
	assert.Equal(t, []store.Value{0, 1, 2}, b.values)
}

// should apply update to the current value
func TestUpdate(t *testing.T) {
	sys := store.NewSystem()
	w := store.NewWritable(sys, 2, nil)
	a := &recorder{}
	w.Subscribe(a.run)

	require.NoError(t, w.Update(func(v store.Value) store.Value {
		return v.(int) * 10
	}))
	assert.Equal(t, []store.Value{2, 20}, a.values)
	assert.Equal(t, 20, store.Get(w))
}

// should go inert once closed
func TestClose(t *testing.T) {
	sys := store.NewSystem()
	stopped := false
	w := store.NewWritable(sys, 0, func(set store.SetFunc) func() {
		return func() { stopped = true }
	})
	a := &recorder{}
	w.Subscribe(a.run)

	w.Close()
	assert.True(t, stopped)
	assert.ErrorIs(t, w.Set(1), store.ErrClosed)

	b := &recorder{}
	w.Subscribe(b.run)()
	assert.Empty(t, b.values)
	assert.Equal(t, []store.Value{0}, a.values)
}

// should refuse to build or use stores without a system
func TestNoSystem(t *testing.T) {
	assert.PanicsWithValue(t, store.ErrNoSystem, func() {
		store.NewReadable(nil, 0, nil)
	})

	var h store.Handle
	assert.False(t, h.Valid())
	assert.PanicsWithValue(t, store.ErrNoSystem, func() {
		h.Subscribe(func(store.Value) {})
	})
}

// should expose only subscription through a handle
func TestHandle(t *testing.T) {
	sys := store.NewSystem()
	w := store.NewWritable(sys, "a", nil)
	h := w.Handle()
	require.True(t, h.Valid())
	assert.Equal(t, w.ID(), h.ID())

	a := &recorder{}
	unsubscribe := h.Subscribe(a.run)
	require.NoError(t, w.Set("b"))
	unsubscribe()
	require.NoError(t, w.Set("c"))
	assert.Equal(t, []store.Value{"a", "b"}, a.values)
}

// should hand out distinct ids per system
func TestIDs(t *testing.T) {
	sys := store.NewSystem()
	a := store.NewWritable(sys, 0, nil)
	b := store.NewWritable(sys, 0, nil)
	assert.NotEqual(t, a.ID(), b.ID())
}

// should recover a subscriber that panics on its replay
func TestSubscriberPanicOnReplay(t *testing.T) {
	sys := store.NewSystem()
	w := store.NewWritable(sys, 0, nil)

	var unsubscribe store.Unsubscriber
	assert.NotPanics(t, func() {
		unsubscribe = w.Subscribe(func(v store.Value) {
			if v == 0 {
				panic("boom")
			}
		})
	})
	b := &recorder{}
	w.Subscribe(b.run)

	require.NoError(t, w.Set(1))
	unsubscribe()
	assert.Equal(t, []store.Value{0, 1}, b.values)
}

// should not lose concurrent updates
func TestConcurrentUpdate(t *testing.T) {
	sys := store.NewSystem()
	w := store.NewWritable(sys, 0, nil)
	t.Cleanup(w.Subscribe(func(store.Value) {}))

	const writers, perWriter = 8, 2000
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				assert.NoError(t, w.Update(func(v store.Value) store.Value {
					return v.(int) + 1
				}))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, store.Get(w))
}

// should never replay a value older than one already delivered
func TestSubscribeDuringSets(t *testing.T) {
	for round := 0; round < 50; round++ {
		sys := store.NewSystem()
		w := store.NewWritable(sys, 0, nil)
		t.Cleanup(w.Subscribe(func(store.Value) {}))

		var (
			mu     sync.Mutex
			events []store.Value
			unsub  store.Unsubscriber
			wg     sync.WaitGroup
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 1; i <= 50; i++ {
				assert.NoError(t, w.Set(i))
			}
		}()
		go func() {
			defer wg.Done()
			unsub = w.Subscribe(func(v store.Value) {
				mu.Lock()
				events = append(events, v)
				mu.Unlock()
			})
		}()
		wg.Wait()
		unsub()

		mu.Lock()
		require.NotEmpty(t, events)
		assert.Equal(t, 50, events[len(events)-1], "round %d: %v", round, events)
		mu.Unlock()
	}
}

// should replay to a subscriber added from inside a notification after the
// current round
func TestSubscribeFromNotification(t *testing.T) {
	sys := store.NewSystem()
	w := store.NewWritable(sys, 0, nil)

	late := &recorder{}
	var order []string
	w.Subscribe(func(v store.Value) {
		order = append(order, fmt.Sprint("a", v))
		if v == 1 {
			w.Subscribe(func(v store.Value) {
				order = append(order, fmt.Sprint("late", v))
				late.run(v)
			})
		}
	})
	w.Subscribe(func(v store.Value) {
		order = append(order, fmt.Sprint("b", v))
	})

	require.NoError(t, w.Set(1))
	assert.Equal(t, []string{"a0", "b0", "a1", "b1", "late1"}, order)
	assert.Equal(t, []store.Value{1}, late.values)
}
