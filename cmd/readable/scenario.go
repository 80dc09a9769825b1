package main

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/delaneyj/readable/readable"
	"github.com/delaneyj/readable/store"
)

type Step struct {
	Op       string `toml:"op"`
	Value    int    `toml:"value,omitempty"`
	Observer string `toml:"observer,omitempty"`
}

type Scenario struct {
	Initial   int      `toml:"initial"`
	Observers []string `toml:"observers"`
	Steps     []Step   `toml:"steps"`
}

// defaultScenario subscribes one observer, replaces the value and then bumps
// it in place.
func defaultScenario() *Scenario {
	return &Scenario{
		Initial:   0,
		Observers: []string{"a"},
		Steps: []Step{
			{Op: "set", Value: 5},
			{Op: "add", Value: 1},
		},
	}
}

func loadScenario(path string) (*Scenario, error) {
	sc := &Scenario{}
	if _, err := toml.DecodeFile(path, sc); err != nil {
		return nil, fmt.Errorf("failed to load scenario %s: %w", path, err)
	}
	return sc, nil
}

// addObservers appends n generated observers named o1..oN.
func (sc *Scenario) addObservers(n int) error {
	if n < 0 {
		return fmt.Errorf("observer count must not be negative, got %d", n)
	}
	for i := 1; i <= n; i++ {
		sc.Observers = append(sc.Observers, fmt.Sprintf("o%d", i))
	}
	return nil
}

func (sc *Scenario) encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(sc)
}

type event struct {
	Observer string
	Seq      int
	Value    int
}

type runner struct {
	cell    *readable.Readable[int]
	seq     int
	closed  bool
	unsubs  map[string]store.Unsubscriber
	onEvent func(event)
}

// run plays sc against a fresh cell, calling onEvent for every value an
// observer receives.
func (sc *Scenario) run(sys *store.System, onEvent func(event)) (int, error) {
	r := &runner{
		cell:    readable.New(sys, sc.Initial),
		unsubs:  map[string]store.Unsubscriber{},
		onEvent: onEvent,
	}
	defer r.cell.Close()

	for _, name := range sc.Observers {
		if err := r.subscribe(name); err != nil {
			return 0, err
		}
	}

	for i, step := range sc.Steps {
		if err := r.apply(step); err != nil {
			return 0, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}
	return r.cell.Value(), nil
}

func (r *runner) subscribe(name string) error {
	if name == "" {
		return fmt.Errorf("observer needs a name")
	}
	if _, ok := r.unsubs[name]; ok {
		return fmt.Errorf("observer %q already subscribed", name)
	}
	r.unsubs[name] = r.cell.Store().Subscribe(func(v store.Value) {
		r.onEvent(event{Observer: name, Seq: r.seq, Value: v.(int)})
		r.seq++
	})
	return nil
}

func (r *runner) apply(step Step) error {
	if r.closed && (step.Op == "set" || step.Op == "add") {
		return readable.ErrClosed
	}

	switch step.Op {
	case "set":
		return r.cell.TrySet(step.Value)
	case "add":
		_, err := readable.TrySetWith(r.cell, func(v *int) int {
			*v += step.Value
			return *v
		})
		return err
	case "subscribe":
		return r.subscribe(step.Observer)
	case "unsubscribe":
		unsubscribe, ok := r.unsubs[step.Observer]
		if !ok {
			return fmt.Errorf("observer %q is not subscribed", step.Observer)
		}
		unsubscribe()
		delete(r.unsubs, step.Observer)
		return nil
	case "close":
		r.cell.Close()
		r.closed = true
		return nil
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}
