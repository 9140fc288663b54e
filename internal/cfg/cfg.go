// Package cfg maps disassembled functions onto lattice control flow graphs
// whose blocks carry address ranges.
package cfg

import (
	"github.com/zboralski/lattice"
	"loopdepth/internal/disasm"
)

// Block is the address range of one basic block.
type Block struct {
	ID    int
	Start uint64 // address of the first instruction
	End   uint64 // address just past the last instruction
}

// Empty reports whether the block holds no instruction bytes.
func (b Block) Empty() bool { return b.Start == b.End }

// Graph is a lattice CFG plus the address range of every block.
// Blocks[i] describes Func.Blocks[i]; IDs ascend with address.
type Graph struct {
	Func   *lattice.FuncCFG
	Blocks []Block
}

// Build constructs a Graph from a function's instruction stream.
func Build(name string, insts []disasm.Inst) *Graph {
	dcfg := disasm.BuildCFG(name, insts)
	return FromDisasm(&dcfg)
}

// FromDisasm maps a disasm.FuncCFG to a Graph.
func FromDisasm(dcfg *disasm.FuncCFG) *Graph {
	g := &Graph{Func: convertFuncCFG(dcfg)}
	for _, db := range dcfg.Blocks {
		g.Blocks = append(g.Blocks, Block{
			ID:    db.ID,
			Start: dcfg.StartAddr(db),
			End:   dcfg.EndAddr(db),
		})
	}
	return g
}

// Len returns the number of blocks.
func (g *Graph) Len() int { return len(g.Func.Blocks) }

// Succs returns the successor block IDs of block id, in edge order.
func (g *Graph) Succs(id int) []int {
	blk := g.Func.Blocks[id]
	out := make([]int, 0, len(blk.Succs))
	for _, s := range blk.Succs {
		out = append(out, s.BlockID)
	}
	return out
}

// Preds returns predecessor block IDs for every block.
func (g *Graph) Preds() [][]int {
	preds := make([][]int, g.Len())
	for _, blk := range g.Func.Blocks {
		for _, s := range blk.Succs {
			if s.BlockID < 0 || s.BlockID >= len(preds) {
				continue
			}
			preds[s.BlockID] = append(preds[s.BlockID], blk.ID)
		}
	}
	return preds
}

// convertFuncCFG maps a disasm.FuncCFG to a lattice.FuncCFG.
func convertFuncCFG(dcfg *disasm.FuncCFG) *lattice.FuncCFG {
	lcfg := &lattice.FuncCFG{Name: dcfg.Name}
	for _, db := range dcfg.Blocks {
		lb := &lattice.BasicBlock{
			ID:    db.ID,
			Start: db.Start,
			End:   db.End,
			Term:  db.IsTerm,
		}
		for _, ds := range db.Succs {
			lb.Succs = append(lb.Succs, lattice.Successor{
				BlockID: ds.BlockID,
				Cond:    ds.Cond,
			})
		}
		lcfg.Blocks = append(lcfg.Blocks, lb)
	}
	return lcfg
}
