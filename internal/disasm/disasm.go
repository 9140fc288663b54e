// Package disasm decodes machine code for the ISAs loopdepth understands.
package disasm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrTruncated   = errors.New("disasm: truncated instruction")
	ErrUnknownArch = errors.New("disasm: unknown architecture")
)

// Arch identifies an instruction set.
type Arch int

const (
	ArchUnknown Arch = iota
	ArchARM64
	ArchAMD64
	ArchI386
)

func (a Arch) String() string {
	switch a {
	case ArchARM64:
		return "arm64"
	case ArchAMD64:
		return "amd64"
	case ArchI386:
		return "386"
	}
	return "unknown"
}

// MaxInstLen returns the longest encoding the architecture allows.
func (a Arch) MaxInstLen() int {
	switch a {
	case ArchARM64:
		return 4
	case ArchAMD64, ArchI386:
		return 15
	}
	return 0
}

// Inst is a decoded instruction.
type Inst struct {
	Addr       uint64
	Size       int
	Text       string // full disassembly line
	ReadsMem   bool   // at least one data-memory read
	Branch     *BranchInfo
	CallTarget uint64 // direct call target, 0 if none
}

// Decoder is an immutable decode configuration, created once per function.
type Decoder struct {
	Arch   Arch
	MaxLen int // bytes handed to the ISA decoder; 0 = Arch.MaxInstLen()
}

// NewDecoder returns a decoder bounded by the architecture's longest encoding.
func NewDecoder(arch Arch) Decoder {
	return Decoder{Arch: arch, MaxLen: arch.MaxInstLen()}
}

func (d Decoder) maxLen() int {
	if d.MaxLen > 0 {
		return d.MaxLen
	}
	return d.Arch.MaxInstLen()
}

// Decode decodes the single instruction at the start of code, located at pc.
func (d Decoder) Decode(code []byte, pc uint64) (Inst, error) {
	if n := d.maxLen(); len(code) > n {
		code = code[:n]
	}
	switch d.Arch {
	case ArchARM64:
		return decodeARM64(code, pc)
	case ArchAMD64:
		return decodeX86(code, pc, 64)
	case ArchI386:
		return decodeX86(code, pc, 32)
	}
	return Inst{}, fmt.Errorf("%w: %d", ErrUnknownArch, int(d.Arch))
}

// Options controls disassembly behavior.
type Options struct {
	BaseAddr uint64 // VA of the first byte in Data
	MaxSteps int    // maximum instructions to decode; 0 = 10M
	Decoder  Decoder
}

const defaultMaxSteps = 10_000_000

func (o Options) effectiveMax() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return defaultMaxSteps
}

// Disassemble linearly decodes a byte region.
// Undecodable bytes become placeholder instructions so the sweep always advances.
// Returns decoded instructions up to MaxSteps or end of data.
func Disassemble(data []byte, opts Options) []Inst {
	maxSteps := opts.effectiveMax()
	var result []Inst
	for off := 0; off < len(data) && len(result) < maxSteps; {
		addr := opts.BaseAddr + uint64(off)
		inst, err := opts.Decoder.Decode(data[off:], addr)
		if err != nil {
			if errors.Is(err, ErrUnknownArch) {
				break
			}
			inst = badInst(opts.Decoder.Arch, data[off:], addr)
			if inst.Size == 0 {
				break
			}
		}
		result = append(result, inst)
		off += inst.Size
	}
	return result
}

// badInst covers bytes the decoder rejected: one word on ARM64, one byte on x86.
func badInst(arch Arch, data []byte, addr uint64) Inst {
	if arch == ArchARM64 {
		if len(data) < 4 {
			return Inst{}
		}
		raw := binary.LittleEndian.Uint32(data)
		return Inst{Addr: addr, Size: 4, Text: fmt.Sprintf(".word 0x%08x", raw)}
	}
	return Inst{Addr: addr, Size: 1, Text: "(bad)"}
}
