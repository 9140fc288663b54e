package disasm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

func decodeX86(code []byte, pc uint64, mode int) (Inst, error) {
	if len(code) == 0 {
		return Inst{}, fmt.Errorf("%w at 0x%x: no bytes", ErrTruncated, pc)
	}
	inst, err := x86asm.Decode(code, mode)
	if err != nil {
		return Inst{}, fmt.Errorf("disasm: x86 decode at 0x%x: %w", pc, err)
	}
	if inst.Len <= 0 || inst.Len > len(code) {
		return Inst{}, fmt.Errorf("%w at 0x%x: length %d", ErrTruncated, pc, inst.Len)
	}

	out := Inst{
		Addr:     pc,
		Size:     inst.Len,
		Text:     x86asm.GNUSyntax(inst, pc, nil),
		ReadsMem: x86ReadsMem(inst),
		Branch:   x86Branch(inst, pc),
	}
	if inst.Op == x86asm.CALL {
		if rel, ok := inst.Args[0].(x86asm.Rel); ok {
			out.CallTarget = relTarget(inst, pc, rel)
		}
	}
	return out, nil
}

// x86NoRead lists ops whose memory operand only forms an address, and the
// INS family, which reads a port and writes memory.
var x86NoRead = map[x86asm.Op]bool{
	x86asm.LEA:         true,
	x86asm.NOP:         true,
	x86asm.PREFETCHNTA: true,
	x86asm.PREFETCHT0:  true,
	x86asm.PREFETCHT1:  true,
	x86asm.PREFETCHT2:  true,
	x86asm.CLFLUSH:     true,
	x86asm.INSB:        true,
	x86asm.INSW:        true,
	x86asm.INSD:        true,
}

// x86ImplicitRead lists ops that read memory through the stack or string
// registers without necessarily naming it as an operand.
var x86ImplicitRead = map[x86asm.Op]bool{
	x86asm.POP:   true,
	x86asm.POPF:  true,
	x86asm.POPFD: true,
	x86asm.POPFQ: true,
	x86asm.RET:   true,
	x86asm.LRET:  true,
	x86asm.IRET:  true,
	x86asm.IRETD: true,
	x86asm.IRETQ: true,
	x86asm.LEAVE: true,
	x86asm.LODSB: true,
	x86asm.LODSW: true,
	x86asm.LODSD: true,
	x86asm.LODSQ: true,
	x86asm.MOVSB: true,
	x86asm.MOVSW: true,
	x86asm.MOVSD: true,
	x86asm.MOVSQ: true,
	x86asm.CMPSB: true,
	x86asm.CMPSW: true,
	x86asm.CMPSD: true,
	x86asm.CMPSQ: true,
	x86asm.SCASB: true,
	x86asm.SCASW: true,
	x86asm.SCASD: true,
	x86asm.SCASQ: true,
	x86asm.XLATB: true,
	x86asm.OUTSB: true,
	x86asm.OUTSW: true,
	x86asm.OUTSD: true,
}

// x86StoreOnly lists ops that overwrite a memory destination without reading it.
var x86StoreOnly = map[x86asm.Op]bool{
	x86asm.MOV:       true,
	x86asm.MOVAPS:    true,
	x86asm.MOVAPD:    true,
	x86asm.MOVUPS:    true,
	x86asm.MOVUPD:    true,
	x86asm.MOVDQA:    true,
	x86asm.MOVDQU:    true,
	x86asm.MOVQ:      true,
	x86asm.MOVD:      true,
	x86asm.MOVSS:     true,
	x86asm.MOVSD_XMM: true,
	x86asm.MOVNTI:    true,
	x86asm.MOVNTQ:    true,
	x86asm.MOVNTDQ:   true,
	x86asm.MOVNTPS:   true,
	x86asm.MOVNTPD:   true,
	x86asm.MOVHPS:    true,
	x86asm.MOVLPS:    true,
	x86asm.MOVHPD:    true,
	x86asm.MOVLPD:    true,
	x86asm.MOVBE:     true,
	x86asm.EXTRACTPS: true,
	x86asm.PEXTRB:    true,
	x86asm.PEXTRW:    true,
	x86asm.PEXTRD:    true,
	x86asm.PEXTRQ:    true,
	x86asm.STOSB:     true,
	x86asm.STOSW:     true,
	x86asm.STOSD:     true,
	x86asm.STOSQ:     true,
	x86asm.SETA:      true,
	x86asm.SETAE:     true,
	x86asm.SETB:      true,
	x86asm.SETBE:     true,
	x86asm.SETE:      true,
	x86asm.SETG:      true,
	x86asm.SETGE:     true,
	x86asm.SETL:      true,
	x86asm.SETLE:     true,
	x86asm.SETNE:     true,
	x86asm.SETNO:     true,
	x86asm.SETNP:     true,
	x86asm.SETNS:     true,
	x86asm.SETO:      true,
	x86asm.SETP:      true,
	x86asm.SETS:      true,
	x86asm.FST:       true,
	x86asm.FSTP:      true,
	x86asm.FIST:      true,
	x86asm.FISTP:     true,
	x86asm.FISTTP:    true,
	x86asm.FBSTP:     true,
	x86asm.FNSTCW:    true,
	x86asm.FNSTSW:    true,
	x86asm.FNSTENV:   true,
	x86asm.FNSAVE:    true,
	x86asm.STMXCSR:   true,
	x86asm.FXSAVE:    true,
	x86asm.SGDT:      true,
	x86asm.SIDT:      true,
	x86asm.SLDT:      true,
	x86asm.STR:       true,
	x86asm.SMSW:      true,
}

// x86ReadsMem reports whether inst reads data memory. Intel operand order:
// Args[0] is the destination, so a memory Args[0] is read unless the op is a
// pure store.
func x86ReadsMem(inst x86asm.Inst) bool {
	if x86NoRead[inst.Op] {
		return false
	}
	if x86ImplicitRead[inst.Op] {
		return true
	}
	for i, a := range inst.Args {
		if a == nil {
			break
		}
		if _, ok := a.(x86asm.Mem); !ok {
			continue
		}
		if i > 0 || !x86StoreOnly[inst.Op] {
			return true
		}
	}
	return false
}

var x86CondJumps = map[x86asm.Op]bool{
	x86asm.JA:     true,
	x86asm.JAE:    true,
	x86asm.JB:     true,
	x86asm.JBE:    true,
	x86asm.JCXZ:   true,
	x86asm.JE:     true,
	x86asm.JECXZ:  true,
	x86asm.JG:     true,
	x86asm.JGE:    true,
	x86asm.JL:     true,
	x86asm.JLE:    true,
	x86asm.JNE:    true,
	x86asm.JNO:    true,
	x86asm.JNP:    true,
	x86asm.JNS:    true,
	x86asm.JO:     true,
	x86asm.JP:     true,
	x86asm.JRCXZ:  true,
	x86asm.JS:     true,
	x86asm.LOOP:   true,
	x86asm.LOOPE:  true,
	x86asm.LOOPNE: true,
}

// x86Branch classifies block terminators. CALL is not one.
func x86Branch(inst x86asm.Inst, pc uint64) *BranchInfo {
	switch {
	case inst.Op == x86asm.RET, inst.Op == x86asm.LRET,
		inst.Op == x86asm.IRET, inst.Op == x86asm.IRETD, inst.Op == x86asm.IRETQ,
		inst.Op == x86asm.HLT, inst.Op == x86asm.UD2:
		return &BranchInfo{IsRet: true}
	case inst.Op == x86asm.JMP:
		if rel, ok := inst.Args[0].(x86asm.Rel); ok {
			return &BranchInfo{Target: relTarget(inst, pc, rel)}
		}
		return &BranchInfo{Indirect: true}
	case x86CondJumps[inst.Op]:
		if rel, ok := inst.Args[0].(x86asm.Rel); ok {
			return &BranchInfo{Target: relTarget(inst, pc, rel), Cond: true}
		}
		return &BranchInfo{Indirect: true, Cond: true}
	}
	return nil
}

func relTarget(inst x86asm.Inst, pc uint64, rel x86asm.Rel) uint64 {
	return uint64(int64(pc) + int64(inst.Len) + int64(rel))
}
