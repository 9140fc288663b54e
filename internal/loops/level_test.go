package loops

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func n(name string, children ...*Node) *Node {
	return &Node{Name: name, Children: children}
}

type visit struct {
	Name  string
	Depth int
}

func levelNames(roots []*Node) []visit {
	var out []visit
	for _, lv := range Level(roots) {
		out = append(out, visit{lv.Node.Name, lv.Depth})
	}
	return out
}

func TestLevel(t *testing.T) {
	tests := []struct {
		name  string
		roots []*Node
		want  []visit
	}{
		{
			name:  "empty",
			roots: nil,
			want:  nil,
		},
		{
			name:  "single",
			roots: []*Node{n("a")},
			want:  []visit{{"a", 1}},
		},
		{
			name:  "chain",
			roots: []*Node{n("a", n("b", n("c", n("d"))))},
			want:  []visit{{"a", 1}, {"b", 2}, {"c", 3}, {"d", 4}},
		},
		{
			name:  "wide and shallow",
			roots: []*Node{n("a"), n("b"), n("c"), n("d")},
			want:  []visit{{"a", 1}, {"b", 1}, {"c", 1}, {"d", 1}},
		},
		{
			name: "balanced",
			roots: []*Node{
				n("a", n("a1", n("a11")), n("a2")),
				n("b", n("b1"), n("b2", n("b21"))),
			},
			want: []visit{
				{"a", 1}, {"b", 1},
				{"a1", 2}, {"a2", 2}, {"b1", 2}, {"b2", 2},
				{"a11", 3}, {"b21", 3},
			},
		},
		{
			name: "skewed",
			roots: []*Node{
				n("a"),
				n("b", n("b1", n("b11", n("b111")))),
			},
			want: []visit{
				{"a", 1}, {"b", 1}, {"b1", 2}, {"b11", 3}, {"b111", 4},
			},
		},
		{
			name: "siblings each with one child",
			roots: []*Node{
				n("loop_1", n("loop_1.1")),
				n("loop_2", n("loop_2.1")),
			},
			want: []visit{
				{"loop_1", 1}, {"loop_2", 1}, {"loop_1.1", 2}, {"loop_2.1", 2},
			},
		},
		{
			name: "leaf ends its branch early",
			roots: []*Node{
				n("a"),
				n("b", n("b1")),
				n("c"),
			},
			want: []visit{{"a", 1}, {"b", 1}, {"c", 1}, {"b1", 2}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, levelNames(tt.roots)); diff != "" {
				t.Errorf("Level mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWalkStopsOnError(t *testing.T) {
	roots := []*Node{n("a", n("a1")), n("b")}
	stop := errors.New("stop")
	var seen []string
	err := Walk(roots, func(nd *Node, depth int) error {
		seen = append(seen, nd.Name)
		if nd.Name == "b" {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v, want stop", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, seen); diff != "" {
		t.Errorf("visited mismatch (-want +got):\n%s", diff)
	}
}

// randomForest builds a forest of size nodes where each node picks a random
// earlier node (or none) as parent. It returns the roots, every node's
// parent, and the expected depth of each node.
func randomForest(r *rand.Rand, size int) ([]*Node, map[*Node]*Node, map[*Node]int) {
	parent := make(map[*Node]*Node)
	depth := make(map[*Node]int)
	var all, roots []*Node
	for i := 0; i < size; i++ {
		nd := &Node{Name: fmt.Sprintf("n%d", i)}
		if len(all) == 0 || r.IntN(4) == 0 {
			roots = append(roots, nd)
			depth[nd] = 1
		} else {
			p := all[r.IntN(len(all))]
			p.Children = append(p.Children, nd)
			parent[nd] = p
			depth[nd] = depth[p] + 1
		}
		all = append(all, nd)
	}
	return roots, parent, depth
}

func TestLevelProperties(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for iter := 0; iter < 200; iter++ {
		size := r.IntN(40)
		roots, parent, wantDepth := randomForest(r, size)
		got := Level(roots)

		if len(got) != size {
			t.Fatalf("iter %d: visited %d nodes, want %d", iter, len(got), size)
		}

		pos := make(map[*Node]int, len(got))
		maxDepth := 0
		for i, lv := range got {
			if lv.Depth != wantDepth[lv.Node] {
				t.Fatalf("iter %d: %s depth = %d, want %d", iter, lv.Node.Name, lv.Depth, wantDepth[lv.Node])
			}
			if p, ok := parent[lv.Node]; ok {
				if lv.Depth != wantDepth[p]+1 {
					t.Fatalf("iter %d: %s depth %d, parent depth %d", iter, lv.Node.Name, lv.Depth, wantDepth[p])
				}
			} else if lv.Depth != 1 {
				t.Fatalf("iter %d: root %s depth = %d, want 1", iter, lv.Node.Name, lv.Depth)
			}
			if i > 0 && lv.Depth < got[i-1].Depth {
				t.Fatalf("iter %d: depth decreased at %d", iter, i)
			}
			pos[lv.Node] = i
			maxDepth = max(maxDepth, lv.Depth)
		}

		// Siblings keep their parent's order; parents' order carries over
		// to their children at the next depth.
		for _, lv := range got {
			kids := lv.Node.Children
			for i := 1; i < len(kids); i++ {
				if pos[kids[i-1]] > pos[kids[i]] {
					t.Fatalf("iter %d: children of %s out of order", iter, lv.Node.Name)
				}
			}
		}
		for i := 1; i < len(got); i++ {
			a, b := got[i-1].Node, got[i].Node
			pa, oka := parent[a]
			pb, okb := parent[b]
			if oka && okb && got[i-1].Depth == got[i].Depth && pos[pa] > pos[pb] {
				t.Fatalf("iter %d: %s emitted before %s despite parent order", iter, a.Name, b.Name)
			}
		}

		// No empty level is opened past the deepest node.
		height := 0
		for _, d := range wantDepth {
			height = max(height, d)
		}
		if maxDepth != height {
			t.Fatalf("iter %d: max depth = %d, want %d", iter, maxDepth, height)
		}
	}
}
