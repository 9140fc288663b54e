// Package elfx provides ELF loading helpers: architecture detection, function
// symbols, and virtual address reads through PT_LOAD segments.
package elfx

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"loopdepth/internal/disasm"
)

var (
	ErrNotELF          = errors.New("elfx: not an ELF file")
	ErrUnsupportedArch = errors.New("elfx: unsupported machine")
	ErrUnsupportedType = errors.New("elfx: not an executable or shared object")
	ErrNoSegment       = errors.New("elfx: no PT_LOAD segment covers address")
)

// File wraps a debug/elf.File.
type File struct {
	ELF  *elf.File
	raw  io.ReaderAt
	c    io.Closer
	size int64
	arch disasm.Arch
}

// Symbol is a function in an executable section.
type Symbol struct {
	Name string
	Addr uint64
	Size uint64
}

// Open opens an ELF executable or shared object for x86-64, i386 or ARM64.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfx: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("elfx: stat: %w", err)
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}

	var arch disasm.Arch
	switch ef.Machine {
	case elf.EM_X86_64:
		arch = disasm.ArchAMD64
	case elf.EM_386:
		arch = disasm.ArchI386
	case elf.EM_AARCH64:
		arch = disasm.ArchARM64
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedArch, ef.Machine)
	}
	if ef.Type != elf.ET_EXEC && ef.Type != elf.ET_DYN {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, ef.Type)
	}

	return &File{ELF: ef, raw: f, c: f, size: info.Size(), arch: arch}, nil
}

// Close releases resources.
func (f *File) Close() error {
	f.ELF.Close()
	return f.c.Close()
}

// Arch returns the decoder architecture for the file's machine.
func (f *File) Arch() disasm.Arch { return f.arch }

func (f *File) execSection(va uint64) *elf.Section {
	for _, s := range f.ELF.Sections {
		if s.Flags&elf.SHF_EXECINSTR == 0 || s.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		if va >= s.Addr && va < s.Addr+s.Size {
			return s
		}
	}
	return nil
}

// Entry returns the entry point if it lies in an executable section.
func (f *File) Entry() (uint64, bool) {
	if f.execSection(f.ELF.Entry) == nil {
		return 0, false
	}
	return f.ELF.Entry, true
}

// CodeEnd returns the end of the executable section containing va.
func (f *File) CodeEnd(va uint64) (uint64, bool) {
	s := f.execSection(va)
	if s == nil {
		return 0, false
	}
	return s.Addr + s.Size, true
}

// Functions returns the function symbols of executable sections in address
// order. .symtab is preferred over .dynsym. Sizes are clamped to the end of
// the containing section and one symbol is kept per address.
func (f *File) Functions() []Symbol {
	syms, err := f.ELF.Symbols()
	if err != nil || !hasFunc(syms) {
		syms, _ = f.ELF.DynamicSymbols()
	}

	var out []Symbol
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Section == elf.SHN_UNDEF || s.Size == 0 {
			continue
		}
		sec := f.execSection(s.Value)
		if sec == nil {
			continue
		}
		size := s.Size
		if end := sec.Addr + sec.Size; s.Value+size > end {
			size = end - s.Value
		}
		out = append(out, Symbol{Name: s.Name, Addr: s.Value, Size: size})
	}

	if len(out) == 0 {
		return nil
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	dedup := out[:1]
	for _, s := range out[1:] {
		if s.Addr != dedup[len(dedup)-1].Addr {
			dedup = append(dedup, s)
		}
	}
	return dedup
}

func hasFunc(syms []elf.Symbol) bool {
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) == elf.STT_FUNC {
			return true
		}
	}
	return false
}

// VAToFileOffset converts a virtual address to a file offset using PT_LOAD
// segments. Only the file-backed part of a segment maps.
func (f *File) VAToFileOffset(va uint64) (offset, avail uint64, err error) {
	for _, p := range f.ELF.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if va >= p.Vaddr && va < p.Vaddr+p.Filesz {
			offset = va - p.Vaddr + p.Off
			if offset >= uint64(f.size) {
				return 0, 0, fmt.Errorf("elfx: VA 0x%x maps to offset 0x%x beyond file size 0x%x", va, offset, f.size)
			}
			return offset, p.Vaddr + p.Filesz - va, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: VA 0x%x", ErrNoSegment, va)
}

// ReadBytesAtVA reads up to n bytes starting at va. The result is clamped to
// the segment's file extent and to the file size.
func (f *File) ReadBytesAtVA(va uint64, n int) ([]byte, error) {
	off, avail, err := f.VAToFileOffset(va)
	if err != nil {
		return nil, err
	}
	if uint64(n) > avail {
		n = int(avail)
	}
	if rest := f.size - int64(off); int64(n) > rest {
		n = int(rest)
	}
	buf := make([]byte, n)
	got, err := f.raw.ReadAt(buf, int64(off))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("elfx: read at 0x%x: %w", off, err)
	}
	return buf[:got], nil
}
