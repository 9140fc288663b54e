// Package loops finds the natural loops of a function's CFG, arranges them
// into a nesting forest, and levels that forest by depth.
package loops

import (
	"fmt"
	"sort"

	"loopdepth/internal/cfg"
)

// Loop is a natural loop: a header plus every block that reaches one of its
// back edges without passing through the header.
type Loop struct {
	Header  int   // header block ID
	Latches []int // sources of back edges into Header, ascending
	Body    []int // block IDs, ascending; includes nested loops' blocks

	exclusive []cfg.Block
}

// Contains reports whether block id belongs to the loop body.
func (l *Loop) Contains(id int) bool {
	i := sort.SearchInts(l.Body, id)
	return i < len(l.Body) && l.Body[i] == id
}

// ExclusiveBlocks returns the blocks of the body not claimed by any nested
// loop, in address order. Empty when nested loops cover the whole body.
func (l *Loop) ExclusiveBlocks() []cfg.Block {
	return l.exclusive
}

// Node is one entry of the loop nesting forest.
type Node struct {
	Name     string
	Loop     *Loop
	Children []*Node // loops nested one level deeper, by header address
}

// Forest holds a function's top-level loops.
type Forest struct {
	Roots []*Node
}

// Find builds the loop nesting forest of g. A back edge b → h exists when h
// dominates b; all back edges into one header form a single loop. Cycles with
// no dominating header (irreducible regions) are not loops here.
func Find(g *cfg.Graph) *Forest {
	if g.Len() == 0 {
		return &Forest{}
	}
	preds := g.Preds()
	idom := dominators(g, preds)

	latches := make(map[int][]int)
	var headers []int
	for b := 0; b < g.Len(); b++ {
		if idom[b] < 0 {
			continue
		}
		for _, h := range g.Succs(b) {
			if !dominates(idom, h, b) {
				continue
			}
			if _, seen := latches[h]; !seen {
				headers = append(headers, h)
			}
			latches[h] = append(latches[h], b)
		}
	}
	sort.Ints(headers)

	nodes := make([]*Node, 0, len(headers))
	for _, h := range headers {
		ls := latches[h]
		sort.Ints(ls)
		ls = dedupInts(ls)
		nodes = append(nodes, &Node{Loop: &Loop{
			Header:  h,
			Latches: ls,
			Body:    loopBody(h, ls, preds, idom),
		}})
	}

	// A loop's parent is the smallest other loop whose body holds its header.
	forest := &Forest{}
	for _, child := range nodes {
		var parent *Node
		for _, cand := range nodes {
			if cand == child || !cand.Loop.Contains(child.Loop.Header) {
				continue
			}
			if parent == nil || len(cand.Loop.Body) < len(parent.Loop.Body) {
				parent = cand
			}
		}
		if parent == nil {
			forest.Roots = append(forest.Roots, child)
		} else {
			parent.Children = append(parent.Children, child)
		}
	}

	assignNames(forest.Roots, "loop_")
	for _, nd := range nodes {
		nd.Loop.exclusive = exclusiveBlocks(g, nd)
	}
	return forest
}

// loopBody walks predecessors backwards from the latches until the header.
func loopBody(header int, latches []int, preds [][]int, idom []int) []int {
	in := map[int]bool{header: true}
	var work []int
	for _, l := range latches {
		if !in[l] {
			in[l] = true
			work = append(work, l)
		}
	}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		for _, p := range preds[cur] {
			if in[p] || idom[p] < 0 {
				continue
			}
			in[p] = true
			work = append(work, p)
		}
	}

	body := make([]int, 0, len(in))
	for id := range in {
		body = append(body, id)
	}
	sort.Ints(body)
	return body
}

// assignNames gives hierarchical names: loop_1, loop_2, loop_1.1, ...
// Nodes are visited in header order so names follow addresses.
func assignNames(nodes []*Node, prefix string) {
	for i, nd := range nodes {
		nd.Name = fmt.Sprintf("%s%d", prefix, i+1)
		assignNames(nd.Children, nd.Name+".")
	}
}

func exclusiveBlocks(g *cfg.Graph, nd *Node) []cfg.Block {
	var out []cfg.Block
	for _, id := range nd.Loop.Body {
		claimed := false
		for _, c := range nd.Children {
			if c.Loop.Contains(id) {
				claimed = true
				break
			}
		}
		if !claimed && id < len(g.Blocks) {
			out = append(out, g.Blocks[id])
		}
	}
	return out
}

func dedupInts(sorted []int) []int {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
