// Package callgraph derives a static call graph from a decoded module and
// computes which defined functions are reachable from the module's entry
// points.
package callgraph

import (
	"fmt"
	"sort"

	"github.com/willf/bitset"

	"github.com/jeffasante/wasm-inspector/wasm"
)

// Node is a function in the call graph.
type Node struct {
	Index      uint32 // index in the function index space
	Name       string // best-effort; empty if unknown
	IsImported bool
	IsExported bool
	CallCount  int // number of call instructions targeting this function
}

// DisplayName returns the node's name, or a placeholder built from its index.
func (n *Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return fmt.Sprintf("func[%d]", n.Index)
}

// Edge connects a caller to a callee. CallSites counts the distinct call
// instructions in From that target To.
type Edge struct {
	From      uint32
	To        uint32
	CallSites int
}

// Graph is the call graph of a module. It is never modified after Build
// returns.
type Graph struct {
	Nodes       []Node   // sorted by index
	Edges       []Edge   // sorted by caller, then callee
	EntryPoints []uint32 // sorted
	Unreachable []uint32 // sorted indices of defined functions that are never reached

	positions map[uint32]int   // node index -> position in Nodes
	callees   map[uint32][]int // node index -> positions in Edges
	callers   map[uint32][]int
	reachable *bitset.BitSet // over node positions
}

// Build constructs the call graph of m. Build accepts any module produced by
// a successful decode; call targets that refer to unknown functions get nodes
// of their own.
func Build(m *wasm.Module) *Graph {
	imported := m.ImportCount(wasm.ExternalFunction)

	// Inbound call sites per callee.
	tallies := make(map[uint32]int)
	for _, c := range m.Calls {
		tallies[c.Callee]++
	}

	b := builder{nodes: make(map[uint32]*Node), imported: imported}
	for _, f := range m.Functions {
		n := b.upsert(f.Index)
		n.Name = f.Name
		n.IsImported = false
		n.IsExported = f.IsExported
	}
	for i, imp := range m.FunctionImports() {
		n := b.upsert(uint32(i))
		n.Name = imp.QualifiedName()
		n.IsImported = true
	}
	for _, c := range m.Calls {
		b.upsert(c.Caller)
		b.upsert(c.Callee)
	}
	for _, e := range m.Exports {
		if e.Kind != wasm.ExternalFunction {
			continue
		}
		n := b.upsert(e.Index)
		n.IsExported = true
		if n.Name == "" {
			n.Name = e.Name
		}
	}
	if m.Start != nil {
		b.upsert(*m.Start)
	}

	g := &Graph{
		Nodes:     make([]Node, 0, len(b.nodes)),
		positions: make(map[uint32]int, len(b.nodes)),
		callees:   make(map[uint32][]int),
		callers:   make(map[uint32][]int),
	}
	for _, n := range b.nodes {
		n.CallCount = tallies[n.Index]
		g.Nodes = append(g.Nodes, *n)
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].Index < g.Nodes[j].Index })
	for i, n := range g.Nodes {
		g.positions[n.Index] = i
	}

	g.buildEdges(m.Calls)
	g.EntryPoints = entryPoints(m)
	g.markReachable()

	for i, n := range g.Nodes {
		if !n.IsImported && !g.reachable.Test(uint(i)) {
			g.Unreachable = append(g.Unreachable, n.Index)
		}
	}
	return g
}

type builder struct {
	nodes    map[uint32]*Node
	imported uint32
}

// upsert returns the node for index, creating it if necessary. A node created
// here is classified as imported by comparing its index with the number of
// function imports.
func (b *builder) upsert(index uint32) *Node {
	if n, ok := b.nodes[index]; ok {
		return n
	}
	n := &Node{Index: index, IsImported: index < b.imported}
	b.nodes[index] = n
	return n
}

func (g *Graph) buildEdges(calls []wasm.CallFact) {
	type pair struct{ from, to uint32 }
	sites := make(map[pair]int)
	for _, c := range calls {
		sites[pair{c.Caller, c.Callee}]++
	}

	g.Edges = make([]Edge, 0, len(sites))
	for p, n := range sites {
		g.Edges = append(g.Edges, Edge{From: p.from, To: p.to, CallSites: n})
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})
	for i, e := range g.Edges {
		g.callees[e.From] = append(g.callees[e.From], i)
		g.callers[e.To] = append(g.callers[e.To], i)
	}
}

// entryPoints returns the exported functions and the start function. A module
// with neither falls back to its first defined function.
func entryPoints(m *wasm.Module) []uint32 {
	set := make(map[uint32]bool)
	for _, e := range m.Exports {
		if e.Kind == wasm.ExternalFunction {
			set[e.Index] = true
		}
	}
	if m.Start != nil {
		set[*m.Start] = true
	}
	if len(set) == 0 && len(m.Functions) != 0 {
		set[m.Functions[0].Index] = true
	}

	entries := make([]uint32, 0, len(set))
	for i := range set {
		entries = append(entries, i)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i] < entries[j] })
	return entries
}

// markReachable treats every imported function as reachable, then walks call
// edges out of the entry points.
func (g *Graph) markReachable() {
	g.reachable = bitset.New(uint(len(g.Nodes)))
	for i, n := range g.Nodes {
		if n.IsImported {
			g.reachable.Set(uint(i))
		}
	}

	worklist := make([]uint32, 0, len(g.EntryPoints))
	for _, e := range g.EntryPoints {
		g.reachable.Set(uint(g.positions[e]))
		worklist = append(worklist, e)
	}
	for len(worklist) != 0 {
		from := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		for _, ei := range g.callees[from] {
			to := g.Edges[ei].To
			if pos := uint(g.positions[to]); !g.reachable.Test(pos) {
				g.reachable.Set(pos)
				worklist = append(worklist, to)
			}
		}
	}
}

// Node returns the node with the given index.
func (g *Graph) Node(index uint32) (*Node, bool) {
	pos, ok := g.positions[index]
	if !ok {
		return nil, false
	}
	return &g.Nodes[pos], true
}

// Callees returns the edges leaving index, sorted by callee.
func (g *Graph) Callees(index uint32) []Edge {
	return g.edges(g.callees[index])
}

// Callers returns the edges entering index, sorted by caller.
func (g *Graph) Callers(index uint32) []Edge {
	return g.edges(g.callers[index])
}

func (g *Graph) edges(positions []int) []Edge {
	if len(positions) == 0 {
		return nil
	}
	edges := make([]Edge, len(positions))
	for i, p := range positions {
		edges[i] = g.Edges[p]
	}
	return edges
}

// IsReachable reports whether index is an imported function or can be reached
// from an entry point. Unknown indices are not reachable.
func (g *Graph) IsReachable(index uint32) bool {
	pos, ok := g.positions[index]
	return ok && g.reachable.Test(uint(pos))
}

// ReachableCount returns the number of reachable nodes, including imports.
func (g *Graph) ReachableCount() int {
	return int(g.reachable.Count())
}
