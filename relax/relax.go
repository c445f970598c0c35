// Package relax implements the meta-program relaxation passes that run
// between meta-programming and register allocation: factoring a common
// shift out of several moves sharing a source register, rebalancing a
// move/add chain to shrink its shifts, and eliminating moves left empty
// by either pass. The same-shift subset search is backed by
// gonum.org/v1/gonum/stat/combin.
package relax

import (
	"sort"

	"gonum.org/v1/gonum/stat/combin"

	"github.com/ThomasDebrunner/scampfilter/metaprog"
	"github.com/ThomasDebrunner/scampfilter/regalloc"
)

// EliminateEmptyShifts removes every Move that is a no-op (zero scale,
// zero shift, no negation), rewriting downstream references to its
// target so they read from its source instead. It returns a new slice;
// the input is not mutated.
func EliminateEmptyShifts(mp []metaprog.Instruction) []metaprog.Instruction {
	collapse := make(map[int]int)
	resolve := func(reg int) int {
		for {
			if to, ok := collapse[reg]; ok {
				reg = to
				continue
			}
			return reg
		}
	}

	out := make([]metaprog.Instruction, 0, len(mp))
	for _, instr := range mp {
		switch v := instr.(type) {
		case *metaprog.Move:
			m := *v
			m.Src = resolve(m.Src)
			if m.IsEmpty() {
				collapse[m.Tgt] = m.Src
				continue
			}
			out = append(out, &m)
		case *metaprog.Add:
			a := *v
			a.Src1 = resolve(a.Src1)
			a.Src2 = resolve(a.Src2)
			out = append(out, &a)
		}
	}
	return out
}

func highestRegister(mp []metaprog.Instruction) int {
	reg := 0
	for _, instr := range mp {
		if instr.Source() > reg {
			reg = instr.Source()
		}
		if instr.Target() > reg {
			reg = instr.Target()
		}
		if add, ok := instr.(*metaprog.Add); ok {
			if add.Src2 > reg {
				reg = add.Src2
			}
		}
	}
	return reg
}

// edges is the instruction-index bookkeeping shared by both relaxation
// passes: for every register, the indices of Moves reading it and the
// indices of Adds reading it, plus the defining instruction index of
// every register.
type edges struct {
	shiftOut map[int][]int
	addOut   map[int][]int
	defAt    map[int]int
}

func buildEdges(mp []metaprog.Instruction) edges {
	e := edges{shiftOut: map[int][]int{}, addOut: map[int][]int{}, defAt: map[int]int{}}
	for i, instr := range mp {
		e.defAt[instr.Target()] = i
		switch v := instr.(type) {
		case *metaprog.Move:
			e.shiftOut[v.Src] = append(e.shiftOut[v.Src], i)
		case *metaprog.Add:
			e.addOut[v.Src1] = append(e.addOut[v.Src1], i)
			e.addOut[v.Src2] = append(e.addOut[v.Src2], i)
		}
	}
	return e
}

type sameShiftCandidate struct {
	source int
	shiftX int
	shiftY int
	scale  int
	instrs []int
}

func (c sameShiftCandidate) weight() int {
	return len(c.instrs) * (absInt(c.shiftX) + absInt(c.shiftY) + absInt(c.scale))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// getSameShiftCandidates finds, for every register with at least two
// Moves reading it, every subset (of size >= 2) of those Moves sharing
// a non-trivial common shift/scale component, as long as doing so would
// not push liveness above nReg. Subsets are enumerated by size via
// combin.Combinations.
func getSameShiftCandidates(mp []metaprog.Instruction, e edges, nReg int) []sameShiftCandidate {
	liveness := regalloc.Liveness(mp)

	var out []sameShiftCandidate
	for source, addrs := range e.shiftOut {
		if len(addrs) < 2 {
			continue
		}
		if len(addrs) > 20 {
			continue
		}
		sorted := append([]int(nil), addrs...)
		sort.Ints(sorted)

		for size := 2; size <= len(sorted); size++ {
			for _, combo := range combin.Combinations(len(sorted), size) {
				subset := make([]int, len(combo))
				for i, idx := range combo {
					subset[i] = sorted[idx]
				}
				if !liveBudgetOK(subset, liveness, nReg) {
					continue
				}

				xp, xn, yp, yn, sp, sn := bigPos, bigPos, bigPos, bigPos, bigPos, bigPos
				for _, i := range subset {
					mv := mp[i].(*metaprog.Move)
					xp = maxOf(minOf(xp, mv.Dx), 0)
					xn = maxOf(minOf(xn, -mv.Dx), 0)
					yp = maxOf(minOf(yp, mv.Dy), 0)
					yn = maxOf(minOf(yn, -mv.Dy), 0)
					sp = maxOf(minOf(sp, mv.Scale), 0)
					sn = maxOf(minOf(sn, -mv.Scale), 0)
				}
				if xp > 0 || xn > 0 || yp > 0 || yn > 0 || sp > 0 || sn > 0 {
					out = append(out, sameShiftCandidate{
						source: source,
						shiftX: xp - xn,
						shiftY: yp - yn,
						scale:  sp - sn,
						instrs: subset,
					})
				}
			}
		}
	}
	return out
}

const bigPos = 1 << 30

func minOf(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxOf(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func liveBudgetOK(subset []int, liveness []map[int]bool, nReg int) bool {
	lo, hi := subset[0], subset[0]
	for _, i := range subset {
		lo = minOf(lo, i)
		hi = maxOf(hi, i)
	}
	for i := lo; i <= hi; i++ {
		if i < len(liveness) && len(liveness[i]) >= nReg {
			return false
		}
	}
	return true
}

// RelaxSameShift factors a shared (shift, scale) component out of
// clusters of Moves reading the same source register, replacing it
// with one common Move plus per-instruction residual Moves, repeating
// until no further factoring is beneficial.
func RelaxSameShift(mp []metaprog.Instruction, nReg int) []metaprog.Instruction {
	mp = EliminateEmptyShifts(mp)
	for {
		e := buildEdges(mp)
		candidates := getSameShiftCandidates(mp, e, nReg)
		if len(candidates) == 0 {
			break
		}
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.weight() > best.weight() {
				best = c
			}
		}

		tempReg := highestRegister(mp) + 1
		instrs := append([]int(nil), best.instrs...)
		sort.Ints(instrs)

		newMp := make([]metaprog.Instruction, 0, len(mp)+1)
		newMp = append(newMp, mp[:instrs[0]]...)
		newMp = append(newMp, &metaprog.Move{Src: best.source, Tgt: tempReg, Scale: best.scale, Dx: best.shiftX, Dy: best.shiftY})
		relaxed := make(map[int]bool, len(instrs))
		for _, i := range instrs {
			relaxed[i] = true
		}
		for i := instrs[0]; i < len(mp); i++ {
			if relaxed[i] {
				orig := mp[i].(*metaprog.Move)
				newMp = append(newMp, &metaprog.Move{
					Src:   tempReg,
					Tgt:   orig.Tgt,
					Scale: orig.Scale - best.scale,
					Dx:    orig.Dx - best.shiftX,
					Dy:    orig.Dy - best.shiftY,
					Neg:   orig.Neg,
				})
			} else {
				newMp = append(newMp, mp[i])
			}
		}
		mp = newMp
	}
	return EliminateEmptyShifts(mp)
}

type rebalanceCandidate struct {
	benefit    int
	inInstr    int
	outReg     int
	shiftDx    int
	shiftDy    int
	scaleDiff  int
	addInstrs  []int
	moveInstrs []int
}

// RelaxRebalance redistributes shift/scale between a Move and its
// downstream children (further Moves and Adds consuming its target) to
// minimize the total shift magnitude, using a median-based weight
// diff.
func RelaxRebalance(mp []metaprog.Instruction, nReg int) []metaprog.Instruction {
	mp = EliminateEmptyShifts(mp)
	for {
		e := buildEdges(mp)
		liveness := regalloc.Liveness(mp)
		candidates := rebalanceCandidates(mp, e, liveness, nReg)
		if len(candidates) == 0 {
			break
		}
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.benefit > best.benefit {
				best = c
			}
		}

		in := mp[best.inInstr].(*metaprog.Move)
		in.Dx += best.shiftDx
		in.Dy += best.shiftDy
		in.Scale += best.scaleDiff
		for _, i := range best.moveInstrs {
			m := mp[i].(*metaprog.Move)
			m.Dx -= best.shiftDx
			m.Dy -= best.shiftDy
			m.Scale -= best.scaleDiff
		}

		if len(best.addInstrs) > 0 {
			tempReg := highestRegister(mp) + 1
			outReg := best.outReg
			for _, i := range best.addInstrs {
				a := mp[i].(*metaprog.Add)
				if a.Src1 == outReg {
					a.Src1 = tempReg
				}
				if a.Src2 == outReg {
					a.Src2 = tempReg
				}
			}
			insertAt := minOfSlice(best.addInstrs)
			correction := &metaprog.Move{Src: outReg, Tgt: tempReg, Scale: -best.scaleDiff, Dx: -best.shiftDx, Dy: -best.shiftDy}
			newMp := make([]metaprog.Instruction, 0, len(mp)+1)
			newMp = append(newMp, mp[:insertAt]...)
			newMp = append(newMp, correction)
			newMp = append(newMp, mp[insertAt:]...)
			mp = newMp
		}
	}
	return EliminateEmptyShifts(mp)
}

func minOfSlice(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		m = minOf(m, x)
	}
	return m
}

func rebalanceCandidates(mp []metaprog.Instruction, e edges, liveness []map[int]bool, nReg int) []rebalanceCandidate {
	var out []rebalanceCandidate
	pairs := rebalancePairs(mp, e, liveness)

	for _, pr := range pairs {
		ri, ro := pr[0], pr[1]
		inIdx, hasIn := e.defAt[ri]
		if !hasIn {
			continue
		}
		inMove, isMove := mp[inIdx].(*metaprog.Move)
		if !isMove {
			continue
		}
		shiftChildren, hasShifts := e.shiftOut[ro]
		if !hasShifts {
			continue
		}

		addChildren := e.addOut[ro]
		if len(addChildren) > 0 {
			maxShift, minAdd := maxOfSlice(shiftChildren), minOfSlice(addChildren)
			if maxShift >= minAdd {
				ok := true
				for i := minOfSlice(addChildren) - 1; i < maxOfSlice(addChildren); i++ {
					if i >= 0 && i < len(liveness) && len(liveness[i]) >= nReg {
						ok = false
						break
					}
				}
				if !ok {
					continue
				}
			}
		}

		xWeights, yWeights, sWeights := []int{}, []int{}, []int{}
		for _, i := range shiftChildren {
			m := mp[i].(*metaprog.Move)
			xWeights = append(xWeights, m.Dx)
			yWeights = append(yWeights, m.Dy)
			sWeights = append(sWeights, m.Scale)
		}
		for range addChildren {
			xWeights = append(xWeights, 0)
			yWeights = append(yWeights, 0)
			sWeights = append(sWeights, 0)
		}
		xWeights = append(xWeights, -inMove.Dx)
		yWeights = append(yWeights, -inMove.Dy)
		sWeights = append(sWeights, -inMove.Scale)

		xDiff := floorMedian(xWeights)
		yDiff := floorMedian(yWeights)
		sDiff := floorMedian(sWeights)

		benefit := sumAbsDiff(xWeights, 0) - sumAbsDiff(xWeights, xDiff)
		benefit += sumAbsDiff(yWeights, 0) - sumAbsDiff(yWeights, yDiff)
		benefit += sumAbsDiff(sWeights, 0) - sumAbsDiff(sWeights, sDiff)

		if (xDiff != 0 || yDiff != 0 || sDiff != 0) && benefit > 0 {
			out = append(out, rebalanceCandidate{
				benefit:    benefit,
				inInstr:    inIdx,
				outReg:     ro,
				shiftDx:    xDiff,
				shiftDy:    yDiff,
				scaleDiff:  sDiff,
				addInstrs:  append([]int(nil), addChildren...),
				moveInstrs: append([]int(nil), shiftChildren...),
			})
		}
	}
	return out
}

// rebalancePairs enumerates (ri, ro) candidates: every register paired
// with itself, plus every liveness-1 Move-defined register paired with
// every liveness-1 non-Move-defined register.
func rebalancePairs(mp []metaprog.Instruction, e edges, liveness []map[int]bool) [][2]int {
	var pairs [][2]int
	for r := range e.defAt {
		pairs = append(pairs, [2]int{r, r})
	}
	var l1in, l1out []int
	for r, idx := range e.defAt {
		if idx < len(liveness) && len(liveness[idx]) == 1 {
			if _, ok := mp[idx].(*metaprog.Move); ok {
				l1in = append(l1in, r)
			} else {
				l1out = append(l1out, r)
			}
		}
	}
	for _, ri := range l1in {
		for _, ro := range l1out {
			pairs = append(pairs, [2]int{ri, ro})
		}
	}
	return pairs
}

func maxOfSlice(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		m = maxOf(m, x)
	}
	return m
}

func floorMedian(xs []int) int {
	sorted := append([]int(nil), xs...)
	sort.Ints(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	a, b := sorted[n/2-1], sorted[n/2]
	return floorDiv(a+b, 2)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func sumAbsDiff(xs []int, diff int) int {
	total := 0
	for _, x := range xs {
		total += absInt(x - diff)
	}
	return total
}
