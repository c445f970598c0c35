// Package regalloc computes register liveness, builds the resulting
// interference graph as a gonum.org/v1/gonum/graph/simple
// UndirectedGraph, and colors it with a bounded number of physical
// registers via exact backtracking.
package regalloc

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/ThomasDebrunner/scampfilter/metaprog"
)

// ErrRegisterBudget is returned by Alloc when fewer physical registers
// are requested than the meta-program's peak liveness requires.
var ErrRegisterBudget = errors.New("regalloc: register budget too small")

// ErrInfeasibleColoring is returned by Alloc when the interference
// graph has no valid coloring with the requested number of registers.
var ErrInfeasibleColoring = errors.New("regalloc: no feasible coloring")

// Liveness returns, for every instruction index i, the set of virtual
// register numbers live just after instruction i executes: registers
// whose defining instruction is at or before i and whose last use is
// strictly after i.
func Liveness(mp []metaprog.Instruction) []map[int]bool {
	minTable := map[int]int{0: 0}
	maxTable := map[int]int{}

	for i, instr := range mp {
		target := instr.Target()
		if _, ok := minTable[target]; !ok {
			minTable[target] = i
			maxTable[target] = i
		}
		maxTable[instr.Source()] = i
		if add, ok := instr.(*metaprog.Add); ok {
			maxTable[add.Src2] = i
		}
	}

	live := make([]map[int]bool, len(mp))
	for i := range live {
		live[i] = make(map[int]bool)
	}
	for reg, low := range minTable {
		high := maxTable[reg]
		for i := low; i < high; i++ {
			live[i][reg] = true
		}
	}
	return live
}

// InterferenceGraph builds the register interference graph from a
// liveness table: two registers are joined by an edge whenever they are
// simultaneously live.
func InterferenceGraph(liveness []map[int]bool) *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	ensureNode := func(id int64) {
		if g.Node(id) == nil {
			g.AddNode(simple.Node(id))
		}
	}
	for _, regs := range liveness {
		for a := range regs {
			ensureNode(int64(a))
			for b := range regs {
				if a == b {
					continue
				}
				ensureNode(int64(b))
				if !g.HasEdgeBetween(int64(a), int64(b)) {
					g.SetEdge(simple.Edge{F: simple.Node(a), T: simple.Node(b)})
				}
			}
		}
	}
	return g
}

// Coloring maps a virtual register to the physical register (color) it
// was assigned.
type Coloring map[int]int

// Color finds a coloring of g using at most nColors colors via exact
// backtracking: try each color at a node, recurse into its
// not-yet-colored neighbors, and backtrack on failure. It returns
// (nil, false) if no such coloring exists; an infeasible coloring is an
// expected, user-facing failure, not a panic.
func Color(g graph.Graph, nColors int) (Coloring, bool) {
	colors := make(Coloring)
	colored := make(map[int64]bool)

	nodes := g.Nodes()
	var all []int64
	for nodes.Next() {
		all = append(all, nodes.Node().ID())
	}

	for _, start := range all {
		if colored[start] {
			continue
		}
		if !colorFrom(g, start, colors, colored, nColors) {
			return nil, false
		}
	}
	return colors, true
}

func colorFrom(g graph.Graph, node int64, colors Coloring, colored map[int64]bool, nColors int) bool {
	neighbors := neighborsOf(g, node)

	for c := 0; c < nColors; c++ {
		conflict := false
		for _, n := range neighbors {
			if colored[n] && colors[int(n)] == c {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}

		colors[int(node)] = c
		colored[node] = true

		ok := true
		for _, n := range neighbors {
			if colored[n] {
				continue
			}
			if !colorFrom(g, n, colors, colored, nColors) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}

	delete(colors, int(node))
	delete(colored, node)
	return false
}

func neighborsOf(g graph.Graph, node int64) []int64 {
	it := g.From(node)
	var out []int64
	for it.Next() {
		out = append(out, it.Node().ID())
	}
	return out
}

// Alloc performs the full register allocation pass over mp: compute
// liveness, build the interference graph, color it with nReg physical
// registers, and rewrite every instruction's register numbers in
// place. Unconstrained registers (isolated nodes absent from the
// coloring) are assigned register 0.
func Alloc(mp []metaprog.Instruction, nReg int) error {
	liveness := Liveness(mp)
	maxLive := 0
	for _, l := range liveness {
		if len(l) > maxLive {
			maxLive = len(l)
		}
	}
	if nReg < maxLive {
		return fmt.Errorf("%w: %d registers requested but at most %d are simultaneously live", ErrRegisterBudget, nReg, maxLive)
	}

	g := InterferenceGraph(liveness)
	coloring, ok := Color(g, nReg)
	if !ok {
		return fmt.Errorf("%w: no coloring exists with %d registers", ErrInfeasibleColoring, nReg)
	}

	for _, instr := range mp {
		instr.SetSource(colorOrZero(coloring, instr.Source()))
		instr.SetTarget(colorOrZero(coloring, instr.Target()))
		if add, ok := instr.(*metaprog.Add); ok {
			add.Src2 = colorOrZero(coloring, add.Src2)
		}
	}
	return nil
}

func colorOrZero(c Coloring, reg int) int {
	if v, ok := c[reg]; ok {
		return v
	}
	return 0
}
