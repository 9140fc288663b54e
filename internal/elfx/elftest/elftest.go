// Package elftest builds small ELF64 images for tests: one executable PT_LOAD
// holding .text, plus an optional .symtab.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

const textOff = 0x100

// Sym is a symbol placed relative to the start of .text.
type Sym struct {
	Name   string
	Off    uint64
	Size   uint64
	Object bool // STT_OBJECT instead of STT_FUNC
}

// Image describes the file to build. Zero fields take x86-64 ET_EXEC
// defaults with .text at 0x401000.
type Image struct {
	Machine elf.Machine
	Type    elf.Type
	Base    uint64 // VA of .text
	Entry   uint64 // offset of the entry point inside .text
	Text    []byte
	Syms    []Sym // no symbols means no .symtab
}

func (im Image) defaults() Image {
	if im.Machine == 0 {
		im.Machine = elf.EM_X86_64
	}
	if im.Type == 0 {
		im.Type = elf.ET_EXEC
	}
	if im.Base == 0 {
		im.Base = 0x401000
	}
	return im
}

type strtab struct{ bytes.Buffer }

func newStrtab() *strtab {
	s := &strtab{}
	s.WriteByte(0)
	return s
}

func (s *strtab) add(name string) uint32 {
	off := uint32(s.Len())
	s.WriteString(name)
	s.WriteByte(0)
	return off
}

func align8(b *bytes.Buffer) {
	for b.Len()%8 != 0 {
		b.WriteByte(0)
	}
}

// Bytes returns the encoded little-endian ELF64 file.
func (im Image) Bytes() []byte {
	im = im.defaults()
	le := binary.LittleEndian
	shstr := newStrtab()

	var body bytes.Buffer
	body.Write(make([]byte, textOff))
	body.Write(im.Text)

	sections := []elf.Section64{{}}
	sections = append(sections, elf.Section64{
		Name:      shstr.add(".text"),
		Type:      uint32(elf.SHT_PROGBITS),
		Flags:     uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
		Addr:      im.Base,
		Off:       textOff,
		Size:      uint64(len(im.Text)),
		Addralign: 1,
	})

	if len(im.Syms) > 0 {
		str := newStrtab()
		var syms bytes.Buffer
		binary.Write(&syms, le, elf.Sym64{})
		for _, s := range im.Syms {
			typ := elf.STT_FUNC
			if s.Object {
				typ = elf.STT_OBJECT
			}
			binary.Write(&syms, le, elf.Sym64{
				Name:  str.add(s.Name),
				Info:  elf.ST_INFO(elf.STB_GLOBAL, typ),
				Shndx: 1,
				Value: im.Base + s.Off,
				Size:  s.Size,
			})
		}

		align8(&body)
		symOff := uint64(body.Len())
		body.Write(syms.Bytes())
		strOff := uint64(body.Len())
		body.Write(str.Bytes())

		symIdx := uint32(len(sections))
		sections = append(sections,
			elf.Section64{
				Name:      shstr.add(".symtab"),
				Type:      uint32(elf.SHT_SYMTAB),
				Off:       symOff,
				Size:      uint64(syms.Len()),
				Link:      symIdx + 1,
				Info:      1,
				Addralign: 8,
				Entsize:   elf.Sym64Size,
			},
			elf.Section64{
				Name:      shstr.add(".strtab"),
				Type:      uint32(elf.SHT_STRTAB),
				Off:       strOff,
				Size:      uint64(str.Len()),
				Addralign: 1,
			})
	}

	shstrIdx := len(sections)
	shstrName := shstr.add(".shstrtab")
	shstrOff := uint64(body.Len())
	body.Write(shstr.Bytes())
	sections = append(sections, elf.Section64{
		Name:      shstrName,
		Type:      uint32(elf.SHT_STRTAB),
		Off:       shstrOff,
		Size:      uint64(shstr.Len()),
		Addralign: 1,
	})

	align8(&body)
	shoff := uint64(body.Len())
	for _, sh := range sections {
		binary.Write(&body, le, sh)
	}

	out := body.Bytes()
	var hdr bytes.Buffer
	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	binary.Write(&hdr, le, elf.Header64{
		Ident:     ident,
		Type:      uint16(im.Type),
		Machine:   uint16(im.Machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     im.Base + im.Entry,
		Phoff:     64,
		Shoff:     shoff,
		Ehsize:    64,
		Phentsize: 56,
		Phnum:     1,
		Shentsize: 64,
		Shnum:     uint16(len(sections)),
		Shstrndx:  uint16(shstrIdx),
	})
	binary.Write(&hdr, le, elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_X),
		Off:    0,
		Vaddr:  im.Base - textOff,
		Paddr:  im.Base - textOff,
		Filesz: textOff + uint64(len(im.Text)),
		Memsz:  textOff + uint64(len(im.Text)),
		Align:  1,
	})
	copy(out, hdr.Bytes())
	return out
}

// Write stores the image in a temp file and returns its path.
func Write(t testing.TB, im Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.elf")
	if err := os.WriteFile(path, im.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
