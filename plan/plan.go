// Package plan implements the depth-first, cost-bounded, time-bounded
// search over pair decompositions that reduces a multi-goal to a single
// end-state goal, collecting the cheapest plan(s) found before an
// absolute deadline (anytime search).
package plan

import (
	"time"

	"github.com/ThomasDebrunner/scampfilter/atom"
	"github.com/ThomasDebrunner/scampfilter/pairgen"
)

// Step is one step of a Plan: the multi-goal it was taken from, and the
// pair decomposition (Up, Down) applied to reach the next multi-goal.
type Step struct {
	Goals []atom.Set
	Up    atom.Set
	Down  atom.Set
}

// Plan is an ordered, execution-order sequence of Steps reducing the
// original goal to a single-position end state.
type Plan []Step

// Stats records the anytime (elapsed, cost) trajectory of a search: one
// entry per improving solution, or every solution when LogAll is set.
type Stats struct {
	start time.Time
	Sols  []Sample
}

// Sample is one point on the solution-cost trajectory.
type Sample struct {
	Elapsed time.Duration
	Cost    float64
}

func newStats() *Stats {
	return &Stats{start: time.Now()}
}

func (s *Stats) log(cost float64) {
	s.Sols = append(s.Sols, Sample{Elapsed: time.Since(s.start), Cost: cost})
}

// Result is one complete plan found by Search, annotated with its total
// cost.
type Result struct {
	Cost float64
	Plan Plan
}

// Search runs the recursive depth-first search over pair
// decompositions. It returns, in discovery order, every plan found
// within searchTime whose cost matched or beat the best cost known at
// the time it was found (so earlier, costlier plans are kept too), plus
// the (elapsed, cost) trajectory.
//
// goal is the final atom goal (translated from the pre-goal at the
// global scale g); nReg is the register budget (available_regs - 1).
func Search(goal atom.Set, nReg int, searchTime time.Duration, g int, props pairgen.Props, costs pairgen.Costs) ([]Result, *Stats) {
	endTime := time.Now().Add(searchTime)
	stats := newStats()

	var results []Result
	s := &search{
		nReg:   nReg,
		end:    endTime,
		g:      g,
		props:  props,
		costs:  costs,
		stats:  stats,
		result: &results,
	}
	s.recurse([]atom.Set{goal}, nil, 0, mathInf())

	// recurse already builds each plan in execution order: every step is
	// prepended (append(Plan{step}, plan...)) as the recursion descends,
	// so the initial step ends up first without any further reversal.
	return results, stats
}

func mathInf() float64 {
	return 1e18
}

type search struct {
	nReg   int
	end    time.Time
	g      int
	props  pairgen.Props
	costs  pairgen.Costs
	stats  *Stats
	result *[]Result
}

// recurse is one level of the search: goals is the current multi-goal,
// plan the partial plan accumulated so far (latest step first), costAcc
// the cost spent to reach goals, and minCost the best total cost found
// anywhere in the search so far. It returns the (possibly updated)
// minCost.
func (s *search) recurse(goals []atom.Set, plan Plan, costAcc, minCost float64) float64 {
	// A single-position goal terminates the search only when its
	// cardinality is a power of two: the initial step realizes it from the
	// 2^g-atom initial state with one uniform move, which cannot produce
	// any other count. Non-power-of-two position groups keep searching and
	// are split by within-position pairs instead.
	if len(goals) == 1 && goals[0].EndState() && isPowerOfTwo(goals[0].Len()) {
		lastCost := endCost(goals[0], s.g, s.costs)
		total := costAcc + lastCost
		if s.props.LogAll {
			s.stats.log(total)
		}
		if total <= minCost {
			if !s.props.LogAll {
				s.stats.log(total)
			}
			initial := generateInitialState(s.g, goals)
			full := append(Plan{{Goals: goals, Up: goals[0], Down: initial}}, plan...)
			*s.result = append(*s.result, Result{Cost: total, Plan: full})
			return total
		}
		return minCost
	}

	var pairs []pairgen.Pair
	if s.props.GenerateAll {
		pairs = pairgen.Generate(goals, s.props, s.costs)
	} else {
		for p := range pairgen.GenerateSeq(goals, s.props, s.costs) {
			pairs = append(pairs, p)
		}
	}

	for _, p := range pairs {
		eliminator := p.Up.Union(p.Down)
		newGoals := make([]atom.Set, 0, len(goals)+1)
		for _, goal := range goals {
			rest := goal.Difference(eliminator)
			if rest.Len() > 0 {
				newGoals = append(newGoals, rest)
			}
		}
		newGoals = append(newGoals, p.Down)
		stepCost := p.Cost
		if len(newGoals) > len(goals) {
			stepCost += float64(s.costs.Add)
		}

		if len(newGoals) > s.nReg {
			continue
		}
		if costAcc+stepCost >= minCost {
			continue
		}
		if goalsEqual(goals, newGoals) {
			continue
		}

		step := Step{Goals: goals, Up: p.Up, Down: p.Down}
		minCost = s.recurse(newGoals, append(Plan{step}, plan...), costAcc+stepCost, minCost)
		if time.Now().After(s.end) {
			return minCost
		}
	}
	return minCost
}

// endCost computes the shift/scale/negation cost of realizing the given
// end-state goal as a single register value.
func endCost(goal atom.Set, g int, costs pairgen.Costs) float64 {
	items := atom.TranslateBackSet(goal, g)
	var cost float64
	for _, it := range items {
		cost += float64(absInt(it.X)+absInt(it.Y)) * float64(costs.Shift)
		if it.Scale > 0 {
			cost += float64(it.Scale) * float64(costs.Div)
		} else {
			cost += float64(absInt(it.Scale)) * float64(costs.Double)
		}
		if it.Neg && len(items) == 1 {
			cost++
		}
	}
	return cost
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// generateInitialState builds the initial-step Down set: 2^g atoms all
// at (0,0,false), preferring real atoms already present at that
// position in the end-state goal before minting fresh placeholder ids.
func generateInitialState(g int, goals []atom.Set) atom.Set {
	if len(goals) != 1 {
		panic("plan: initial step must have exactly one goal")
	}
	goal := goals[0]
	n := 1 << uint(g)
	out := atom.NewSet()
	taken := 0
	for _, a := range goal {
		if taken >= n {
			break
		}
		if a.X == 0 && a.Y == 0 && !a.Neg {
			out.Add(a)
			taken++
		}
	}
	genID := 1000000
	for taken < n {
		out.Add(atom.Atom{Nr: genID, X: 0, Y: 0})
		genID++
		taken++
	}
	return out
}

func goalsEqual(a, b []atom.Set) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, ga := range a {
		found := false
		for j, gb := range b {
			if used[j] {
				continue
			}
			if ga.Equal(gb) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
