package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/delaneyj/readable/readable"
	"github.com/delaneyj/readable/store"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	profile = flag.String("cpuprofile", "", "write a cpu profile to this file")

	subscriberCounts = []int{0, 1, 10, 100, 1_000}
	iters            = 1_000
)

func main() {
	flag.Parse()

	if *profile != "" {
		f, err := os.Create(*profile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	log.Printf("warming up")
	benchmarkReadable("default projection", false, func(sys *store.System) *readable.Readable[int] {
		return readable.New(sys, 0)
	})

	benchmarkReadable("default projection", true, func(sys *store.System) *readable.Readable[int] {
		return readable.New(sys, 0)
	})
	benchmarkReadable("mapped projection", true, func(sys *store.System) *readable.Readable[int] {
		return readable.NewMapped(sys, 0, func(v int) store.Value {
			return strconv.Itoa(v)
		})
	})
}

func benchmarkReadable(title string, shouldRender bool, build func(*store.System) *readable.Readable[int]) {
	tbl := table.NewWriter()
	tbl.SetTitle("Readable: " + title)
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})

	for _, subs := range subscriberCounts {
		tach := tachymeter.New(&tachymeter.Config{Size: iters})

		sys := store.NewSystem()
		r := build(sys)
		h := r.Store()
		for i := 0; i < subs; i++ {
			h.Subscribe(func(store.Value) {})
		}

		for i := 0; i < iters; i++ {
			start := time.Now()
			r.Update(func(v *int) { *v++ })
			tach.AddTime(time.Since(start))
		}
		r.Close()

		calc := tach.Calc()
		tbl.AppendRows([]table.Row{
			{
				fmt.Sprintf("set: %d subscribers", subs),
				calc.Time.Avg,
				calc.Time.Min,
				calc.Time.P75,
				calc.Time.P99,
				calc.Time.Max,
			},
		})
	}

	if shouldRender {
		tbl.Render()
	}
}
