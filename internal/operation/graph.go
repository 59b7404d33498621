package operation

import (
	"container/heap"

	"github.com/Iron-Ham/phasebuild/internal/errors"
)

// Graph is the validated, index-addressed form of an operation set. Node i is
// the i-th operation in set order; deps and consumers hold indices sorted
// ascending so every traversal is deterministic.
type Graph struct {
	nodes     []*Operation
	index     map[*Operation]int
	deps      [][]int
	consumers [][]int
}

// NewGraph validates ops and builds the graph. It fails with a
// ConfigurationError when an operation depends on something outside ops,
// when two operations share a name, or when the dependencies form a cycle.
func NewGraph(ops []*Operation) (*Graph, error) {
	g := &Graph{
		nodes:     append([]*Operation(nil), ops...),
		index:     make(map[*Operation]int, len(ops)),
		deps:      make([][]int, len(ops)),
		consumers: make([][]int, len(ops)),
	}

	names := make(map[string]bool, len(ops))
	for i, op := range g.nodes {
		if names[op.Name] {
			return nil, errors.NewConfigurationError("operation name is not unique", errors.ErrDuplicateName).
				WithIdentifiers(op.Name)
		}
		names[op.Name] = true
		g.index[op] = i
	}

	for i, op := range g.nodes {
		for _, dep := range op.deps {
			j, ok := g.index[dep]
			if !ok {
				return nil, errors.NewConfigurationError("operation depends on an operation outside the set", errors.ErrUnresolvedReference).
					WithIdentifiers(op.Name, dep.Name)
			}
			g.deps[i] = insertSorted(g.deps[i], j)
			g.consumers[j] = insertSorted(g.consumers[j], i)
		}
	}

	if order := g.TopologicalOrder(); len(order) != len(g.nodes) {
		return nil, errors.NewConfigurationError("operation dependency cycle", errors.ErrDependencyCycle).
			WithIdentifiers(g.findCycle()...)
	}
	return g, nil
}

func insertSorted(s []int, v int) []int {
	i := 0
	for i < len(s) && s[i] < v {
		i++
	}
	if i < len(s) && s[i] == v {
		return s
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// Len returns the number of operations.
func (g *Graph) Len() int { return len(g.nodes) }

// Operation returns the operation at index i.
func (g *Graph) Operation(i int) *Operation { return g.nodes[i] }

// Operations returns every operation in graph order.
func (g *Graph) Operations() []*Operation {
	return append([]*Operation(nil), g.nodes...)
}

// IndexOf returns op's index.
func (g *Graph) IndexOf(op *Operation) (int, bool) {
	i, ok := g.index[op]
	return i, ok
}

// Dependencies returns the indices node i depends on.
func (g *Graph) Dependencies(i int) []int {
	return append([]int(nil), g.deps[i]...)
}

// Consumers returns the indices of nodes that depend on node i.
func (g *Graph) Consumers(i int) []int {
	return append([]int(nil), g.consumers[i]...)
}

// IndexHeap is a min-heap of graph indices, used wherever ready nodes must be
// taken in graph order.
type IndexHeap []int

func (h IndexHeap) Len() int           { return len(h) }
func (h IndexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h IndexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *IndexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *IndexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopologicalOrder returns node indices so that every node follows its
// dependencies, preferring the lowest index among ready nodes. Nodes on a
// cycle are missing from the result.
func (g *Graph) TopologicalOrder() []int {
	indeg := make([]int, len(g.nodes))
	for i := range g.nodes {
		indeg[i] = len(g.deps[i])
	}

	ready := &IndexHeap{}
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(g.nodes))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, c := range g.consumers[n] {
			indeg[c]--
			if indeg[c] == 0 {
				heap.Push(ready, c)
			}
		}
	}
	return out
}

// findCycle returns one cycle as operation names in dependency direction,
// closed by repeating the first name. The DFS visits nodes in index order so
// the witness is stable.
func (g *Graph) findCycle() []string {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]int, len(g.nodes))
	var stack []int
	var cycle []int

	var visit func(u int) bool
	visit = func(u int) bool {
		state[u] = onStack
		stack = append(stack, u)
		for _, v := range g.deps[u] {
			switch state[v] {
			case unvisited:
				if visit(v) {
					return true
				}
			case onStack:
				for k := len(stack) - 1; k >= 0; k-- {
					if stack[k] == v {
						cycle = append(append(cycle, stack[k:]...), v)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[u] = done
		return false
	}

	for i := range g.nodes {
		if state[i] == unvisited && visit(i) {
			break
		}
	}

	out := make([]string, 0, len(cycle))
	for _, i := range cycle {
		out = append(out, g.nodes[i].Name)
	}
	return out
}
