package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/delaneyj/readable/readable"
	"github.com/delaneyj/readable/store"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

func main() {
	log.Print("Starting derived store benchmark, please wait...")
	defer log.Print("Finished derived store benchmark")

	perfTestCfgs := []benchmarkTestConfig{
		{name: "single observer", width: 1, depth: 1, iterations: 200000},
		{name: "wide", width: 1000, depth: 1, iterations: 2000},
		{name: "deep", width: 1, depth: 500, iterations: 2000},
		{name: "wide deep", width: 100, depth: 50, iterations: 500},
		{name: "fan in", width: 50, depth: 5, fanIn: true, iterations: 2000},
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"test", "size", "nTimes", "time", "deliveries", "updateRate", "last",
	})

	testRepeats := 5
	for _, cfg := range perfTestCfgs {
		log.Printf("Running '%s' config", cfg.name)

		best := &benchmarkResult{duration: time.Hour}
		for i := 0; i < testRepeats; i++ {
			res := benchmarkRun(&cfg)
			if res.duration < best.duration {
				best = res
			}
		}

		updateRate := float64(best.deliveries) / (float64(best.duration) / float64(time.Millisecond))

		table.Append([]string{
			cfg.name,
			fmt.Sprintf("%dx%d", cfg.width, cfg.depth),
			humanize.Comma(cfg.iterations),
			fmt.Sprint(best.duration),
			humanize.Comma(best.deliveries),
			humanize.Comma(int64(updateRate)),
			fmt.Sprint(best.last),
		})
	}
	table.Render()
}

type benchmarkTestConfig struct {
	name       string
	width      int   // independent chains hanging off the source
	depth      int   // derived stores per chain
	fanIn      bool  // join every chain into one derived store at the end
	iterations int64 // number of source updates
}

type benchmarkResult struct {
	duration   time.Duration
	deliveries int64
	last       int
}

func benchmarkRun(cfg *benchmarkTestConfig) *benchmarkResult {
	sys := store.NewSystem()
	src := readable.New(sys, 0)

	addOne := func(values []store.Value) store.Value {
		return values[0].(int) + 1
	}

	leaves := make([]store.Subscribable, cfg.width)
	for i := range leaves {
		var last store.Subscribable = src.Store()
		for j := 0; j < cfg.depth; j++ {
			last = store.Derived(sys, []store.Subscribable{last}, addOne)
		}
		leaves[i] = last
	}
	if cfg.fanIn {
		leaves = []store.Subscribable{
			store.Derived(sys, leaves, func(values []store.Value) store.Value {
				total := 0
				for _, v := range values {
					total += v.(int)
				}
				return total
			}),
		}
	}

	res := &benchmarkResult{}
	unsubscribers := make([]store.Unsubscriber, len(leaves))
	for i, leaf := range leaves {
		unsubscribers[i] = leaf.Subscribe(func(v store.Value) {
			res.deliveries++
			res.last = v.(int)
		})
	}

	start := time.Now()
	for i := int64(0); i < cfg.iterations; i++ {
		src.Update(func(v *int) { *v++ })
	}
	res.duration = time.Since(start)

	for _, unsubscribe := range unsubscribers {
		unsubscribe()
	}
	src.Close()
	return res
}
