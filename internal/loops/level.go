package loops

// Leveled pairs a forest node with its depth, 1 for top-level loops.
type Leveled struct {
	Node  *Node
	Depth int
}

// Walk visits every node of the forest breadth-first, calling fn with the
// node's depth. Nodes of one depth are visited before any deeper node, and
// siblings keep their parent's child order. A non-nil error from fn stops the
// walk and is returned.
func Walk(roots []*Node, fn func(n *Node, depth int) error) error {
	queue := append([]*Node(nil), roots...)
	depth := 1
	remaining := len(roots) // still to visit at depth
	queued := 0             // enqueued for depth+1

	for len(queue) > 0 {
		n := queue[0]
		queue[0] = nil
		queue = queue[1:]

		if err := fn(n, depth); err != nil {
			return err
		}

		queue = append(queue, n.Children...)
		queued += len(n.Children)
		remaining--

		// The queue running dry ends the walk; no empty level is opened.
		if remaining == 0 && len(queue) > 0 {
			remaining = queued
			queued = 0
			depth++
		}
	}
	return nil
}

// Level returns every node of the forest with its depth, in Walk order.
func Level(roots []*Node) []Leveled {
	var out []Leveled
	_ = Walk(roots, func(n *Node, depth int) error {
		out = append(out, Leveled{Node: n, Depth: depth})
		return nil
	})
	return out
}
