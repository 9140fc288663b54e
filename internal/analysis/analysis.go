// Package analysis drives the per-function loop depth report: level the loop
// forest, scan each loop's own blocks for memory reads, emit the section.
package analysis

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"loopdepth/internal/disasm"
	"loopdepth/internal/logging"
	"loopdepth/internal/loops"
	"loopdepth/internal/memscan"
	"loopdepth/internal/report"
)

// ErrNoFunctions is returned by Run when the binary lists no functions.
var ErrNoFunctions = errors.New("analysis: no functions in binary")

// Function is one function of the analyzed binary.
type Function interface {
	Addr() uint64
	Name() string
	// Loops returns the top-level loops of the function's nesting forest.
	Loops() ([]*loops.Node, error)
	// Decoder returns the decode configuration for this function's code.
	Decoder() disasm.Decoder
	memscan.Memory
}

// Binary lists the functions of a loaded image in report order.
type Binary interface {
	Functions() []Function
}

// Options controls which functions are reported and where diagnostics go.
type Options struct {
	Match  string      // report only functions whose name contains Match
	Logger *log.Logger // nil discards diagnostics
}

// Stats summarizes a run.
type Stats struct {
	Functions int // sections written
	Skipped   int // filtered out by Match
	Failed    int // dropped after an error
	Loops     int
	Accesses  int
}

// Run writes the report for every function of bin to w. A binary without
// functions is an error; a function that fails is logged, left out of the
// report, and counted in Stats.Failed.
func Run(bin Binary, w io.Writer, opts Options) (Stats, error) {
	lg := opts.Logger
	if lg == nil {
		lg = logging.Discard()
	}

	funcs := bin.Functions()
	if len(funcs) == 0 {
		return Stats{}, ErrNoFunctions
	}

	em := report.New(w)
	var st Stats
	for _, fn := range funcs {
		if opts.Match != "" && !strings.Contains(fn.Name(), opts.Match) {
			st.Skipped++
			continue
		}

		nloops, naccess, err := reportFunction(em, fn)
		if err != nil {
			em.Discard()
			st.Failed++
			lg.Warn("function dropped from report",
				"func", fn.Name(),
				"addr", fmt.Sprintf("0x%x", fn.Addr()),
				"err", err)
			continue
		}
		if err := em.Commit(); err != nil {
			return st, err
		}
		st.Functions++
		st.Loops += nloops
		st.Accesses += naccess
		lg.Debug("function", "name", fn.Name(), "loops", nloops, "reads", naccess)
	}

	lg.Debug("done",
		"functions", st.Functions,
		"skipped", st.Skipped,
		"failed", st.Failed,
		"loops", st.Loops,
		"reads", st.Accesses)
	return st, nil
}

// reportFunction fills em with fn's section. Loops are scanned in the order
// they are leveled; each loop's line precedes its instruction lines.
func reportFunction(em *report.Emitter, fn Function) (nloops, naccess int, err error) {
	roots, err := fn.Loops()
	if err != nil {
		return 0, 0, fmt.Errorf("loop forest: %w", err)
	}

	sc := &memscan.Scanner{Mem: fn, Dec: fn.Decoder()}
	em.Begin(fn.Addr(), fn.Name())
	err = loops.Walk(roots, func(nd *loops.Node, depth int) error {
		em.Loop(depth, nd.Name)
		nloops++
		if nd.Loop == nil {
			return nil
		}
		acc, err := sc.ScanBlocks(nd.Loop.ExclusiveBlocks())
		if err != nil {
			return fmt.Errorf("%s: %w", nd.Name, err)
		}
		for _, a := range acc {
			em.Access(a.Addr, a.Text)
		}
		naccess += len(acc)
		return nil
	})
	return nloops, naccess, err
}
