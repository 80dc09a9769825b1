package main

import (
	"io"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/valyala/quicktemplate"
)

// eventWriter writes one JSON object per observer event.
type eventWriter struct {
	qw          *quicktemplate.Writer
	fingerprint bool
}

func newEventWriter(w io.Writer, fingerprint bool) *eventWriter {
	return &eventWriter{
		qw:          quicktemplate.AcquireWriter(w),
		fingerprint: fingerprint,
	}
}

func (ew *eventWriter) write(ev event) {
	w := ew.qw.N()
	w.S(`{"observer":`)
	w.Q(ev.Observer)
	w.S(`,"seq":`)
	w.D(ev.Seq)
	w.S(`,"value":`)
	w.D(ev.Value)
	if ew.fingerprint {
		w.S(`,"fingerprint":`)
		w.Q(fingerprint(ev.Value))
	}
	w.S("}\n")
}

func (ew *eventWriter) release() {
	quicktemplate.ReleaseWriter(ew.qw)
	ew.qw = nil
}

// fingerprint identifies a published value so runs can be diffed without
// comparing payloads.
func fingerprint(v int) string {
	return strconv.FormatUint(xxhash.Sum64String(strconv.Itoa(v)), 16)
}
