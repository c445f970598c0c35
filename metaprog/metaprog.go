// Package metaprog lowers a Plan into a meta-program: a sequence of
// abstract Move/Add instructions over virtual registers, tracking a
// per-step virtual-register state.
package metaprog

import (
	"fmt"
	"math"
	"sort"

	"github.com/ThomasDebrunner/scampfilter/atom"
	"github.com/ThomasDebrunner/scampfilter/plan"
)

// Instruction is the two-variant meta-instruction sum: a Move or an
// Add.
type Instruction interface {
	Source() int
	SetSource(int)
	Target() int
	SetTarget(int)
	Cost() int
}

// Move copies the Source register, applying scale (positive doubles,
// negative halves), a (Dx, Dy) shift, and an optional final negation,
// into Target.
type Move struct {
	Src, Tgt int
	Scale    int
	Dx, Dy   int
	Neg      bool
}

func (m *Move) Source() int     { return m.Src }
func (m *Move) SetSource(v int) { m.Src = v }
func (m *Move) Target() int     { return m.Tgt }
func (m *Move) SetTarget(v int) { m.Tgt = v }
func (m *Move) Cost() int       { return absInt(m.Scale) + absInt(m.Dx) + absInt(m.Dy) + boolToInt(m.Neg) }

// IsEmpty reports whether m has no effect: zero scale, zero shift, no
// negation.
func (m *Move) IsEmpty() bool {
	return m.Scale == 0 && m.Dx == 0 && m.Dy == 0 && !m.Neg
}

// Add adds (or subtracts, via Neg1/Neg2) Source1 and Source2 into
// Target.
type Add struct {
	Src1, Src2 int
	Neg1, Neg2 bool
	Tgt        int
}

func (a *Add) Source() int     { return a.Src1 }
func (a *Add) SetSource(v int) { a.Src1 = v }
func (a *Add) Target() int     { return a.Tgt }
func (a *Add) SetTarget(v int) { a.Tgt = v }
func (a *Add) Cost() int       { return 1 }

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetShift determines (scale, dx, dy, negFlip) relating down to up: the
// transform that, applied to a register holding down's content, yields
// up's content. It takes any position-key from down and searches for a
// matching key in up whose cardinality is the down key's cardinality
// times an integer power-of-two ratio (positive when up is the larger
// side, matching the "double on positive scale" convention in
// emit.Emit), verifying that every down key translates into an up key
// under that same distance. It panics if no such transform exists: an
// invalid pair decomposition is a programmer error, not caller input.
func GetShift(up, down atom.Set) (scale, dx, dy int, negFlip bool) {
	downCounts := countByKey(down)
	upCounts := countByKey(up)
	if len(downCounts) != len(upCounts) {
		panic(fmt.Sprintf("metaprog: invalid pair, no shift possible (%d down keys, %d up keys)", len(downCounts), len(upCounts)))
	}

	for lowerKey, lowerCount := range downCounts {
		for upperKey, upperCount := range upCounts {
			ratio, sign, ok := integerPow2Ratio(lowerCount, upperCount)
			if !ok {
				continue
			}
			ddx := upperKey.X - lowerKey.X
			ddy := upperKey.Y - lowerKey.Y
			negf := upperKey.Neg != lowerKey.Neg

			valid := true
			for dk, dc := range downCounts {
				uk := atom.Key{X: dk.X + ddx, Y: dk.Y + ddy, Neg: dk.Neg != negf}
				want := dc * ratio
				if sign < 0 {
					if dc%ratio != 0 {
						valid = false
						break
					}
					want = dc / ratio
				}
				uc, exists := upCounts[uk]
				if !exists || uc != want {
					valid = false
					break
				}
			}
			if valid {
				s := int(math.Round(math.Log2(float64(ratio))))
				return sign * s, ddx, ddy, negf
			}
		}
	}
	panic(fmt.Sprintf("metaprog: invalid pair, no shift possible (up=%d atoms, down=%d atoms)", up.Len(), down.Len()))
}

// integerPow2Ratio reports whether upperCount and lowerCount are
// related by an integer power-of-two ratio, and the sign that ratio
// should carry under the "positive scale doubles" convention: +1 when
// upperCount is the larger (multiple) side, -1 when lowerCount is.
func integerPow2Ratio(lowerCount, upperCount int) (ratio, sign int, ok bool) {
	if lowerCount <= 0 || upperCount <= 0 {
		return 0, 0, false
	}
	if upperCount >= lowerCount {
		if upperCount%lowerCount != 0 {
			return 0, 0, false
		}
		r := upperCount / lowerCount
		if !isPowerOfTwo(r) {
			return 0, 0, false
		}
		return r, 1, true
	}
	if lowerCount%upperCount != 0 {
		return 0, 0, false
	}
	r := lowerCount / upperCount
	if !isPowerOfTwo(r) {
		return 0, 0, false
	}
	return r, -1, true
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func countByKey(s atom.Set) map[atom.Key]int {
	out := make(map[atom.Key]int)
	for _, a := range s {
		out[a.Val()]++
	}
	return out
}

func findGoalInReg(regState map[int]atom.Set, needle atom.Set) (int, bool) {
	for reg, goal := range regState {
		if goal.Equal(needle) {
			return reg, true
		}
	}
	return 0, false
}

// Generate walks plan in execution order and builds the meta-program.
func Generate(p plan.Plan) []Instruction {
	if len(p) == 0 {
		return nil
	}
	prevRegState := map[int]atom.Set{0: p[0].Down}
	nextReg := 1
	var program []Instruction

	for _, step := range p {
		trivial := make(map[int]bool)
		newRegState := make(map[int]atom.Set)
		var nonTrivialGoals []atom.Set

		for _, goal := range step.Goals {
			if reg, ok := findGoalInReg(prevRegState, goal); ok {
				newRegState[reg] = goal
				trivial[reg] = true
			} else {
				nonTrivialGoals = append(nonTrivialGoals, goal)
			}
		}
		if len(nonTrivialGoals) == 0 {
			prevRegState = newRegState
			continue
		}
		if len(nonTrivialGoals) > 2 {
			panic("metaprog: wrong number of non-trivial goals per step")
		}

		shiftSource, ok := findGoalInReg(prevRegState, step.Down)
		if !ok {
			panic("metaprog: could not construct new register state from previous state (no shift source)")
		}

		type goalProp struct {
			needsShift bool
			subset     []int
			goal       atom.Set
		}
		props := make([]goalProp, 0, len(nonTrivialGoals))
		for _, goal := range nonTrivialGoals {
			var subsetSources []int
			shiftPortion := goal
			for reg, prevGoal := range prevRegState {
				if prevGoal.IsSubsetOf(goal) {
					subsetSources = append(subsetSources, reg)
					shiftPortion = shiftPortion.Difference(prevGoal)
				}
			}
			sort.Ints(subsetSources)
			props = append(props, goalProp{needsShift: shiftPortion.Len() > 0, subset: subsetSources, goal: goal})
		}
		sort.SliceStable(props, func(i, j int) bool { return !props[i].needsShift && props[j].needsShift })

		if len(props) > 1 {
			nonShift := props[0]
			if len(nonShift.subset) < 2 {
				panic("metaprog: non-shift goal needs two subset sources")
			}
			s1, s2 := nonShift.subset[0], nonShift.subset[1]
			t := nextReg
			nextReg++
			program = append(program, &Add{Src1: s1, Src2: s2, Tgt: t})
			newRegState[t] = nonShift.goal
		}

		shiftProp := props[len(props)-1]
		scale, dx, dy, negFlip := GetShift(step.Up, step.Down)

		shiftSubsetSources := append([]int(nil), shiftProp.subset...)
		if !negFlip && dx == 0 && dy == 0 {
			shiftSubsetSources = removeValue(shiftSubsetSources, shiftSource)
		}

		var target int
		if len(shiftSubsetSources) < 2 || subsetOf(shiftSubsetSources, trivial) {
			target = nextReg
			nextReg++
			moveNeg := len(shiftSubsetSources) == 0 && negFlip
			program = append(program, &Move{Src: shiftSource, Tgt: target, Scale: scale, Dx: dx, Dy: dy, Neg: moveNeg})
			prevPolarity := negFlip
			for _, src := range shiftSubsetSources {
				prevTarget := target
				target = nextReg
				nextReg++
				program = append(program, &Add{Src1: src, Src2: prevTarget, Neg2: prevPolarity, Tgt: target})
				prevPolarity = false
			}
		} else {
			s1, s2 := shiftSubsetSources[0], shiftSubsetSources[1]
			subTarget := nextReg
			nextReg++
			program = append(program, &Add{Src1: s1, Src2: s2, Tgt: subTarget})
			shiftTarget := nextReg
			nextReg++
			program = append(program, &Move{Src: shiftSource, Tgt: shiftTarget, Scale: scale, Dx: dx, Dy: dy})
			target = nextReg
			nextReg++
			program = append(program, &Add{Src1: subTarget, Src2: shiftTarget, Neg2: negFlip, Tgt: target})
		}

		newRegState[target] = shiftProp.goal
		prevRegState = newRegState
	}
	return program
}

func removeValue(s []int, v int) []int {
	out := s[:0:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func subsetOf(regs []int, set map[int]bool) bool {
	for _, r := range regs {
		if !set[r] {
			return false
		}
	}
	return true
}

// TotalCost sums the cost of every instruction in the meta-program.
func TotalCost(program []Instruction) int {
	total := 0
	for _, ins := range program {
		total += ins.Cost()
	}
	return total
}
