package program

import (
	"fmt"
	"slices"
	"sort"

	"loopdepth/internal/disasm"
	"loopdepth/internal/elfx"
)

// image is the part of elfx.File that discovery reads.
type image interface {
	Functions() []elfx.Symbol
	Entry() (uint64, bool)
	CodeEnd(va uint64) (uint64, bool)
	ReadBytesAtVA(va uint64, n int) ([]byte, error)
}

// discover lists the functions of im in address order: its function
// symbols, the entry point, and every direct call target reachable from
// them. A start without a symbol is named sub_<addr> and runs to the next
// function start or the end of its section. Call targets inside a symbol's
// range are not function starts.
func discover(im image, dec disasm.Decoder) []elfx.Symbol {
	named := im.Functions()
	d := &discovery{im: im, dec: dec, named: named, seen: make(map[uint64]bool)}

	for _, s := range named {
		d.add(s.Addr)
	}
	if entry, ok := im.Entry(); ok && !d.insideNamed(entry) {
		d.add(entry)
	}

	for len(d.work) > 0 {
		addr := d.work[len(d.work)-1]
		d.work = d.work[:len(d.work)-1]
		d.scan(addr)
	}

	out := make([]elfx.Symbol, 0, len(d.starts))
	for _, addr := range d.starts {
		out = append(out, d.symbol(addr))
	}
	return out
}

type discovery struct {
	im     image
	dec    disasm.Decoder
	named  []elfx.Symbol // sorted by address
	starts []uint64      // sorted
	seen   map[uint64]bool
	work   []uint64
}

func (d *discovery) add(addr uint64) {
	if d.seen[addr] {
		return
	}
	d.seen[addr] = true
	i, _ := slices.BinarySearch(d.starts, addr)
	d.starts = slices.Insert(d.starts, i, addr)
	d.work = append(d.work, addr)
}

// lookupNamed returns the symbol starting at or before va.
func (d *discovery) lookupNamed(va uint64) (elfx.Symbol, bool) {
	i := sort.Search(len(d.named), func(i int) bool { return d.named[i].Addr > va })
	if i == 0 {
		return elfx.Symbol{}, false
	}
	return d.named[i-1], true
}

func (d *discovery) insideNamed(va uint64) bool {
	s, ok := d.lookupNamed(va)
	return ok && va < s.Addr+s.Size
}

func (d *discovery) symbol(addr uint64) elfx.Symbol {
	if s, ok := d.lookupNamed(addr); ok && s.Addr == addr {
		return s
	}
	end, ok := d.im.CodeEnd(addr)
	if !ok {
		return elfx.Symbol{Addr: addr}
	}
	i, _ := slices.BinarySearch(d.starts, addr)
	if i+1 < len(d.starts) && d.starts[i+1] < end {
		end = d.starts[i+1]
	}
	return elfx.Symbol{Name: fmt.Sprintf("sub_%x", addr), Addr: addr, Size: end - addr}
}

func (d *discovery) scan(addr uint64) {
	fn := d.symbol(addr)
	if fn.Size == 0 {
		return
	}
	code, err := d.im.ReadBytesAtVA(fn.Addr, int(fn.Size))
	if err != nil {
		return
	}
	for _, inst := range disasm.Disassemble(code, disasm.Options{BaseAddr: fn.Addr, Decoder: d.dec}) {
		t := inst.CallTarget
		if t == 0 || d.seen[t] || d.insideNamed(t) {
			continue
		}
		if _, ok := d.im.CodeEnd(t); !ok {
			continue
		}
		d.add(t)
	}
}
