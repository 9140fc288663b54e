package loops

import "loopdepth/internal/cfg"

// reversePostorder returns the blocks reachable from the entry (block 0) in
// reverse post-order, plus each block's position in that order (-1 if
// unreachable).
func reversePostorder(g *cfg.Graph) (order []int, pos []int) {
	n := g.Len()
	pos = make([]int, n)
	for i := range pos {
		pos[i] = -1
	}
	if n == 0 {
		return nil, pos
	}

	type frame struct {
		id    int
		succs []int
		next  int
	}
	visited := make([]bool, n)
	post := make([]int, 0, n)
	stack := []frame{{id: 0, succs: g.Succs(0)}}
	visited[0] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.succs) {
			s := top.succs[top.next]
			top.next++
			if s >= 0 && s < n && !visited[s] {
				visited[s] = true
				stack = append(stack, frame{id: s, succs: g.Succs(s)})
			}
			continue
		}
		post = append(post, top.id)
		stack = stack[:len(stack)-1]
	}

	order = make([]int, len(post))
	for i, id := range post {
		order[len(post)-1-i] = id
	}
	for i, id := range order {
		pos[id] = i
	}
	return order, pos
}

// dominators computes immediate dominators with the iterative algorithm of
// Cooper, Harvey and Kennedy. idom[0] == 0; unreachable blocks get -1.
func dominators(g *cfg.Graph, preds [][]int) []int {
	order, pos := reversePostorder(g)
	idom := make([]int, g.Len())
	for i := range idom {
		idom[i] = -1
	}
	if len(order) == 0 {
		return idom
	}
	idom[0] = 0

	intersect := func(a, b int) int {
		for a != b {
			for pos[a] > pos[b] {
				a = idom[a]
			}
			for pos[b] > pos[a] {
				b = idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for _, b := range order[1:] {
			newIdom := -1
			for _, p := range preds[b] {
				if idom[p] < 0 {
					continue
				}
				if newIdom < 0 {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}
			if newIdom >= 0 && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	return idom
}

// dominates reports whether a dominates b.
func dominates(idom []int, a, b int) bool {
	if idom[a] < 0 || idom[b] < 0 {
		return false
	}
	for {
		if b == a {
			return true
		}
		if b == 0 {
			return false
		}
		b = idom[b]
	}
}
