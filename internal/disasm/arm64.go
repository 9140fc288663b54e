package disasm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

func decodeARM64(code []byte, pc uint64) (Inst, error) {
	if len(code) < 4 {
		return Inst{}, fmt.Errorf("%w at 0x%x: %d of 4 bytes", ErrTruncated, pc, len(code))
	}
	raw := binary.LittleEndian.Uint32(code)
	inst, err := arm64asm.Decode(code[:4])
	if err != nil {
		return Inst{}, fmt.Errorf("disasm: arm64 decode at 0x%x (0x%08x): %w", pc, raw, err)
	}

	out := Inst{
		Addr:     pc,
		Size:     4,
		Text:     inst.String(),
		ReadsMem: arm64ReadsMem(inst.Op),
		Branch:   DecodeBranch(raw, pc),
	}
	if target, ok := decodeBL(raw, pc); ok {
		out.CallTarget = target
	}
	return out, nil
}

// arm64ReadsMem reports whether op loads from data memory: plain, pair,
// exclusive and acquire loads, vector structure loads, and the atomics that
// return the old value.
func arm64ReadsMem(op arm64asm.Op) bool {
	name := op.String()
	switch {
	case strings.HasPrefix(name, "LD"):
		return true
	case strings.HasPrefix(name, "CAS"), strings.HasPrefix(name, "SWP"):
		return true
	}
	return false
}
