// Package pairgen enumerates candidate "pair decompositions" of the
// current multi-goal: two atom sets related by a single uniform
// shift/scale/negation, ordered by a heuristic cost. The planner
// repeatedly consumes these pairs to reduce a goal toward a single
// position.
package pairgen

import (
	"iter"
	"math"
	"math/bits"
	"math/rand"
	"sort"

	"github.com/ThomasDebrunner/scampfilter/atom"
)

// Costs is the tunable positive-integer weight table for pair costs.
// It is passed in by the caller rather than held globally.
type Costs struct {
	Add, Shift, Double, Div, Neg int
}

// DefaultCosts returns the conventional weight mix: addition dominant,
// shifting cheap.
func DefaultCosts() Costs {
	return Costs{Add: 10, Shift: 1, Double: 2, Div: 2, Neg: 1}
}

// Props configures how candidate pairs are enumerated, allocated and
// ordered.
type Props struct {
	SortDistinctPos    bool
	ShortDistanceFirst bool
	LowScaleFirst      bool
	Exhaustive         bool
	Line               bool
	GenerateAll        bool
	MaxSets            bool
	Randomize          bool
	LogAll             bool
}

// DefaultProps returns the configuration scamp.Generate uses absent an
// explicit override.
func DefaultProps() Props {
	return Props{
		SortDistinctPos:    true,
		ShortDistanceFirst: true,
		LowScaleFirst:      true,
		Exhaustive:         false,
		Line:               true,
		GenerateAll:        true,
		MaxSets:            true,
		Randomize:          false,
		LogAll:             false,
	}
}

// Pair is one candidate pair decomposition: Down is produced from Up by
// a single uniform shift/scale/negation, with an associated heuristic
// Cost.
type Pair struct {
	Cost     float64
	Up, Down atom.Set
}

type distance struct {
	dx, dy int
	neg    bool
}

func l1(d distance) int {
	return absInt(d.dx) + absInt(d.dy)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

type atomPair struct {
	a, b atom.Atom
}

func distanceOf(a, b atom.Atom) distance {
	return distance{a.X - b.X, a.Y - b.Y, a.Neg != b.Neg}
}

// groupByDistance groups every (a, b) pair with a in goal1, b in goal2
// by their distance.
func groupByDistance(goal1, goal2 atom.Set) map[distance][]atomPair {
	groups := make(map[distance][]atomPair)
	for _, a := range goal1 {
		for _, b := range goal2 {
			d := distanceOf(a, b)
			groups[d] = append(groups[d], atomPair{a, b})
		}
	}
	return groups
}

type elemMove struct {
	sources, targets   map[int]struct{}
	nSources, nTargets int
	upKey, downKey     atom.Key
}

func idSetEqual(a, b map[int]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys(s map[int]struct{}) []int {
	out := make([]int, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// floorLog2Exp returns floor(log2(n)) for n >= 1.
func floorLog2Exp(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n)) - 1
}

// generateElementaryMoves forms clusters of a group by (a.Val(),
// b.Val()) and, for every power-of-two take-count pair, emits an
// elemMove, skipping the trivial self-identity move.
func generateElementaryMoves(group []atomPair) []elemMove {
	type clusterKey struct {
		up, down atom.Key
	}
	clusters := make(map[clusterKey][]atomPair)
	var order []clusterKey
	for _, p := range group {
		key := clusterKey{p.a.Val(), p.b.Val()}
		if _, ok := clusters[key]; !ok {
			order = append(order, key)
		}
		clusters[key] = append(clusters[key], p)
	}

	var emoves []elemMove
	for _, key := range order {
		cluster := clusters[key]
		sources := make(map[int]struct{})
		targets := make(map[int]struct{})
		for _, p := range cluster {
			sources[p.a.Nr] = struct{}{}
			targets[p.b.Nr] = struct{}{}
		}
		maxS := floorLog2Exp(len(sources))
		maxT := floorLog2Exp(len(targets))
		for ns := 0; ns <= maxS; ns++ {
			for nt := 0; nt <= maxT; nt++ {
				if ns == nt && idSetEqual(sources, targets) {
					continue
				}
				emoves = append(emoves, elemMove{
					sources:  sources,
					targets:  targets,
					nSources: 1 << uint(ns),
					nTargets: 1 << uint(nt),
					upKey:    key.up,
					downKey:  key.down,
				})
			}
		}
	}
	return emoves
}

type allocEntry struct {
	move             elemMove
	sources, targets []int
}

// allocateLine sorts ElemMoves by position (rows first if the movement
// is purely vertical, else columns first) then by descending source
// count, and greedily consumes disjoint source/target slices. It always
// yields exactly one allocation (possibly empty).
func allocateLine(emoves []elemMove) []allocEntry {
	if len(emoves) == 0 {
		return nil
	}
	xMov := emoves[0].upKey.X - emoves[0].downKey.X
	sorted := append([]elemMove(nil), emoves...)
	if xMov == 0 {
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].upKey.Y != sorted[j].upKey.Y {
				return sorted[i].upKey.Y < sorted[j].upKey.Y
			}
			if sorted[i].upKey.X != sorted[j].upKey.X {
				return sorted[i].upKey.X < sorted[j].upKey.X
			}
			return sorted[i].nSources > sorted[j].nSources
		})
	} else {
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].upKey.X != sorted[j].upKey.X {
				return sorted[i].upKey.X < sorted[j].upKey.X
			}
			if sorted[i].upKey.Y != sorted[j].upKey.Y {
				return sorted[i].upKey.Y < sorted[j].upKey.Y
			}
			return sorted[i].nSources > sorted[j].nSources
		})
	}

	used := make(map[int]struct{})
	var plan []allocEntry
	for _, mv := range sorted {
		srcCand := unusedSorted(mv.sources, used)
		tgtCand := unusedSorted(mv.targets, used)
		if len(srcCand) >= mv.nSources && len(tgtCand) >= mv.nTargets {
			sources := srcCand[:mv.nSources]
			targets := tgtCand[:mv.nTargets]
			for _, s := range sources {
				used[s] = struct{}{}
			}
			for _, t := range targets {
				used[t] = struct{}{}
			}
			plan = append(plan, allocEntry{mv, sources, targets})
		}
	}
	return plan
}

func unusedSorted(s map[int]struct{}, used map[int]struct{}) []int {
	out := make([]int, 0, len(s))
	for k := range s {
		if _, ok := used[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

// allocateExhaustive recursively enumerates every way to take-or-skip
// each ElemMove, subject to maxSets ("take all slots or skip"). The
// base case returns no allocations at all, not the empty allocation,
// so a ratio group never yields an empty pair.
func allocateExhaustive(emoves []elemMove, maxSets bool) [][]allocEntry {
	var rec func(pos int, used map[int]struct{}) [][]allocEntry
	rec = func(pos int, used map[int]struct{}) [][]allocEntry {
		if pos >= len(emoves) {
			return nil
		}
		mv := emoves[pos]
		srcCand := unusedSorted(mv.sources, used)
		tgtCand := unusedSorted(mv.targets, used)

		var out [][]allocEntry
		out = append(out, rec(pos+1, used)...)

		if len(srcCand) >= mv.nSources && len(tgtCand) >= mv.nTargets {
			sources := append([]int(nil), srcCand[:mv.nSources]...)
			targets := append([]int(nil), tgtCand[:mv.nTargets]...)
			nextUsed := make(map[int]struct{}, len(used)+len(sources)+len(targets))
			for k := range used {
				nextUsed[k] = struct{}{}
			}
			for _, s := range sources {
				nextUsed[s] = struct{}{}
			}
			for _, t := range targets {
				nextUsed[t] = struct{}{}
			}
			entry := allocEntry{mv, sources, targets}
			for _, plan := range rec(pos+1, nextUsed) {
				out = append(out, append([]allocEntry{entry}, plan...))
			}
			if (len(sources) == len(srcCand) && len(targets) == len(tgtCand)) || !maxSets {
				out = append(out, []allocEntry{entry})
			}
		}
		return out
	}
	return rec(0, make(map[int]struct{}))
}

func materialize(plan []allocEntry) (up, down atom.Set) {
	up, down = atom.NewSet(), atom.NewSet()
	for _, e := range plan {
		for _, nr := range e.sources {
			up.Add(atom.Atom{Nr: nr, X: e.move.upKey.X, Y: e.move.upKey.Y, Neg: e.move.upKey.Neg})
		}
		for _, nr := range e.targets {
			down.Add(atom.Atom{Nr: nr, X: e.move.downKey.X, Y: e.move.downKey.Y, Neg: e.move.downKey.Neg})
		}
	}
	return up, down
}

// groupEmovesRatios groups emoves by their source/target count ratio,
// in ascending-ratio first-seen order, optionally reordered so ratios
// closest to 1 come first.
func groupEmovesRatios(emoves []elemMove, lowScaleFirst bool) ([]float64, map[float64][]elemMove) {
	sorted := append([]elemMove(nil), emoves...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri := float64(sorted[i].nSources) / float64(sorted[i].nTargets)
		rj := float64(sorted[j].nSources) / float64(sorted[j].nTargets)
		return ri < rj
	})
	emovemap := make(map[float64][]elemMove)
	var order []float64
	for _, mv := range sorted {
		ratio := float64(mv.nSources) / float64(mv.nTargets)
		if _, ok := emovemap[ratio]; !ok {
			order = append(order, ratio)
		}
		emovemap[ratio] = append(emovemap[ratio], mv)
	}
	if lowScaleFirst {
		sort.SliceStable(order, func(i, j int) bool {
			return math.Abs(math.Log2(order[i])) < math.Abs(math.Log2(order[j]))
		})
	}
	return order, emovemap
}

// groupEmoves yields every (up, down) pair decomposition obtainable
// from group by allocating its ElemMoves via the configured strategies.
func groupEmoves(group []atomPair, props Props, yield func(up, down atom.Set) bool) bool {
	emoves := generateElementaryMoves(group)
	ratios, emovemap := groupEmovesRatios(emoves, props.LowScaleFirst)

	for _, ratio := range ratios {
		if ratio < 1 {
			continue
		}
		ratioEmoves := emovemap[ratio]

		var allocs [][]allocEntry
		switch {
		case props.Exhaustive && props.Line:
			allocs = append(allocs, allocateLine(ratioEmoves))
			allocs = append(allocs, allocateExhaustive(ratioEmoves, props.MaxSets)...)
		case props.Exhaustive:
			allocs = allocateExhaustive(ratioEmoves, props.MaxSets)
		default:
			allocs = append(allocs, allocateLine(ratioEmoves))
		}

		for _, alloc := range allocs {
			if alloc == nil {
				continue
			}
			up, down := materialize(alloc)
			if !yield(up, down) {
				return false
			}
		}
	}
	return true
}

// formPairs looks for sets of atoms with the same distance between
// goal1 and goal2, and yields a cost-annotated Pair for each
// decomposition a distance group's ElemMove allocation produces.
func formPairs(goal1, goal2 atom.Set, props Props, costs Costs, yield func(Pair) bool) bool {
	groups := groupByDistance(goal1, goal2)

	dists := make([]distance, 0, len(groups))
	for d := range groups {
		dists = append(dists, d)
	}
	if props.ShortDistanceFirst {
		sort.Slice(dists, func(i, j int) bool { return l1(dists[i]) < l1(dists[j]) })
	} else {
		// deterministic default order
		sort.Slice(dists, func(i, j int) bool {
			if dists[i].dx != dists[j].dx {
				return dists[i].dx < dists[j].dx
			}
			if dists[i].dy != dists[j].dy {
				return dists[i].dy < dists[j].dy
			}
			return !dists[i].neg && dists[j].neg
		})
	}

	for _, d := range dists {
		group := groups[d]
		baseCost := float64(costs.Add) + float64(l1(d))*float64(costs.Shift)
		if d.dx == 0 && d.dy == 0 && d.neg {
			baseCost += float64(costs.Neg)
		}

		cont := groupEmoves(group, props, func(up, down atom.Set) bool {
			var scaleCost float64
			if up.Len() > down.Len() {
				scaleCost = math.Log2(float64(up.Len())/float64(down.Len())) * float64(costs.Double)
			} else {
				scaleCost = math.Log2(float64(down.Len())/float64(up.Len())) * float64(costs.Div)
			}
			return yield(Pair{Cost: baseCost + scaleCost, Up: up, Down: down})
		})
		if !cont {
			return false
		}
	}
	return true
}

// generate forms all pairs applicable to the current multi-goal,
// streaming them through yield in distance-group order; returning false
// from yield stops generation early. This is the shared core both the
// eager (Generate) and lazy (GenerateSeq) entry points build on.
func generate(goals []atom.Set, props Props, costs Costs, yield func(Pair) bool) {
	for i := 0; i < len(goals); i++ {
		for j := i; j < len(goals); j++ {
			if !formPairs(goals[i], goals[j], props, costs, yield) {
				return
			}
		}
	}
}

// Generate eagerly materializes every candidate pair for the multi-goal
// goals, suitable for sorting and (optionally) reshuffling. This is the
// GenerateAll=true discipline.
func Generate(goals []atom.Set, props Props, costs Costs) []Pair {
	var pairs []Pair
	generate(goals, props, costs, func(p Pair) bool {
		pairs = append(pairs, p)
		return true
	})

	if props.SortDistinctPos {
		union := atom.NewSet()
		for _, g := range goals {
			union = union.Union(g)
		}
		sort.SliceStable(pairs, func(i, j int) bool {
			return distinctPositionsAfter(union, pairs[i]) < distinctPositionsAfter(union, pairs[j])
		})
	}
	if props.Randomize {
		rand.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })
	}
	return pairs
}

func distinctPositionsAfter(union atom.Set, p Pair) int {
	return union.Difference(p.Up).Union(p.Down).DistinctPositions()
}

// GenerateSeq streams candidate pairs lazily in natural generation
// order, the GenerateAll=false discipline. Consumers (typically the
// planner) can stop iterating early without paying for the pairs that
// were never produced.
func GenerateSeq(goals []atom.Set, props Props, costs Costs) iter.Seq[Pair] {
	return func(yield func(Pair) bool) {
		generate(goals, props, costs, yield)
	}
}
