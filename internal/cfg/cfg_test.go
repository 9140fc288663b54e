package cfg

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"loopdepth/internal/disasm"
)

func arm64Code(words ...uint32) []byte {
	data := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(data[i*4:], w)
	}
	return data
}

func TestBuild_Branches(t *testing.T) {
	// entry (B0):
	//   0x1000: MOV X0, #0
	//   0x1004: BL  0x1104       ; call, not a terminator
	//   0x1008: CBZ X0, 0x1018   ; conditional → B2
	//
	// true path (B1):
	//   0x100C: MOV X1, #1
	//   0x1010: BL  0x1210
	//   0x1014: B   0x1020       ; jump → B3
	//
	// false path (B2):
	//   0x1018: BL  0x1318
	//   0x101C: RET
	//
	// join (B3):
	//   0x1020: RET
	code := arm64Code(
		0xD2800000,
		0x94000040,
		0xB4000080,
		0xD2800021,
		0x94000080,
		0x14000003,
		0x940000C0,
		0xD65F03C0,
		0xD65F03C0,
	)
	insts := disasm.Disassemble(code, disasm.Options{
		BaseAddr: 0x1000,
		Decoder:  disasm.NewDecoder(disasm.ArchARM64),
	})
	g := Build("MyClass.myMethod", insts)

	if g.Func.Name != "MyClass.myMethod" {
		t.Errorf("func name = %q", g.Func.Name)
	}
	// Expect 4 blocks: entry, true-path, false-path, join
	if g.Len() != 4 {
		t.Fatalf("expected 4 blocks, got %d", g.Len())
	}

	wantBlocks := []Block{
		{ID: 0, Start: 0x1000, End: 0x100C},
		{ID: 1, Start: 0x100C, End: 0x1018},
		{ID: 2, Start: 0x1018, End: 0x1020},
		{ID: 3, Start: 0x1020, End: 0x1024},
	}
	if diff := cmp.Diff(wantBlocks, g.Blocks); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]int{2, 1}, g.Succs(0)); diff != "" {
		t.Errorf("B0 succs mismatch (-want +got):\n%s", diff)
	}

	if !g.Func.Blocks[2].Term {
		t.Error("B2 should be terminal")
	}
	if !g.Func.Blocks[3].Term {
		t.Error("B3 should be terminal")
	}

	wantPreds := [][]int{nil, {0}, {0}, {1}}
	if diff := cmp.Diff(wantPreds, g.Preds()); diff != "" {
		t.Errorf("preds mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_Empty(t *testing.T) {
	g := Build("empty", nil)
	if g.Len() != 0 || len(g.Blocks) != 0 {
		t.Errorf("blocks = %d/%d, want 0", g.Len(), len(g.Blocks))
	}
}

func TestBlockEmpty(t *testing.T) {
	if !(Block{Start: 0x10, End: 0x10}).Empty() {
		t.Error("start == end should be empty")
	}
	if (Block{Start: 0x10, End: 0x14}).Empty() {
		t.Error("4-byte block should not be empty")
	}
}
