// Package program loads an ELF binary as a list of analyzable functions.
package program

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ianlancetaylor/demangle"
	"loopdepth/internal/analysis"
	"loopdepth/internal/cfg"
	"loopdepth/internal/disasm"
	"loopdepth/internal/elfx"
	"loopdepth/internal/loops"
)

var (
	// ErrLoad wraps every failure to open or parse the binary.
	ErrLoad = errors.New("program: cannot load binary")
	// ErrOutOfRange is returned by Function.ReadAt outside the function's bytes.
	ErrOutOfRange = errors.New("program: address outside function")
)

// Options controls how functions are named.
type Options struct {
	Demangle bool // C++ and Rust symbol demangling
}

// Binary is an opened image and its functions in address order.
type Binary struct {
	file  *elfx.File
	dec   disasm.Decoder
	funcs []*Function
}

// Open loads path. Every failure wraps ErrLoad.
func Open(path string, opts Options) (*Binary, error) {
	ef, err := elfx.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	b := &Binary{file: ef, dec: disasm.NewDecoder(ef.Arch())}
	for _, s := range discover(ef, b.dec) {
		name := s.Name
		if opts.Demangle {
			name = demangle.Filter(name, demangle.NoClones)
		}
		b.funcs = append(b.funcs, &Function{bin: b, sym: s, name: name})
	}
	return b, nil
}

// Close releases the underlying file.
func (b *Binary) Close() error { return b.file.Close() }

// Arch returns the instruction set of the binary.
func (b *Binary) Arch() disasm.Arch { return b.dec.Arch }

// Functions returns the functions for analysis.Run.
func (b *Binary) Functions() []analysis.Function {
	out := make([]analysis.Function, len(b.funcs))
	for i, fn := range b.funcs {
		out[i] = fn
	}
	return out
}

// Function is one function symbol. Its bytes, CFG and loop forest are built
// on first use.
type Function struct {
	bin  *Binary
	sym  elfx.Symbol
	name string

	once   sync.Once
	code   []byte
	forest *loops.Forest
	err    error
}

func (fn *Function) Addr() uint64 { return fn.sym.Addr }
func (fn *Function) Name() string { return fn.name }

func (fn *Function) Decoder() disasm.Decoder { return fn.bin.dec }

func (fn *Function) load() {
	fn.once.Do(func() {
		code, err := fn.bin.file.ReadBytesAtVA(fn.sym.Addr, int(fn.sym.Size))
		if err != nil {
			fn.err = err
			return
		}
		fn.code = code
		insts := disasm.Disassemble(code, disasm.Options{BaseAddr: fn.sym.Addr, Decoder: fn.bin.dec})
		fn.forest = loops.Find(cfg.Build(fn.name, insts))
	})
}

// Loops returns the top-level loops.
func (fn *Function) Loops() ([]*loops.Node, error) {
	fn.load()
	if fn.err != nil {
		return nil, fn.err
	}
	return fn.forest.Roots, nil
}

// ReadAt returns up to n bytes at va, cut at the end of the function.
func (fn *Function) ReadAt(va uint64, n int) ([]byte, error) {
	fn.load()
	if fn.err != nil {
		return nil, fn.err
	}
	start := fn.sym.Addr
	if va < start || va >= start+uint64(len(fn.code)) {
		return nil, fmt.Errorf("%w: 0x%x", ErrOutOfRange, va)
	}
	off := va - start
	end := off + uint64(n)
	if end > uint64(len(fn.code)) {
		end = uint64(len(fn.code))
	}
	return fn.code[off:end], nil
}
