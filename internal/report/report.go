// Package report formats the per-function loop depth report.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// Emitter writes function sections to w. A section is buffered from Begin
// until Commit writes it or Discard drops it, so a function that fails
// midway leaves no partial lines behind.
type Emitter struct {
	w   io.Writer
	buf bytes.Buffer
	err error
}

// New returns an Emitter writing to w.
func New(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Begin starts a function section with its header line.
func (e *Emitter) Begin(addr uint64, name string) {
	e.buf.Reset()
	fmt.Fprintf(&e.buf, "0x%x: %s\n", addr, name)
}

// Loop adds a loop entry at depth.
func (e *Emitter) Loop(depth int, name string) {
	fmt.Fprintf(&e.buf, "\t%d: %s\n", depth, name)
}

// Access adds a memory-reading instruction under the current loop.
func (e *Emitter) Access(addr uint64, text string) {
	fmt.Fprintf(&e.buf, "\t\t0x%x: %s\n", addr, strconv.Quote(text))
}

// Commit writes the section followed by a blank separator line.
func (e *Emitter) Commit() error {
	if e.err != nil {
		return e.err
	}
	e.buf.WriteByte('\n')
	if _, err := e.w.Write(e.buf.Bytes()); err != nil {
		e.err = fmt.Errorf("report: write: %w", err)
	}
	e.buf.Reset()
	return e.err
}

// Discard drops the current section.
func (e *Emitter) Discard() {
	e.buf.Reset()
}

// Err returns the first write error.
func (e *Emitter) Err() error { return e.err }
