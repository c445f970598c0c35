// Package simulate symbolically re-interprets a meta-program (after
// relaxation and register allocation) and checks that the register
// holding the final result carries exactly the expected set of Items.
// The interpreter walks the structured metaprog.Instruction list
// directly; the emitted text is a straight rendering of that list, so
// re-parsing it would only add a fragile extra step.
package simulate

import (
	"errors"
	"fmt"

	"github.com/ThomasDebrunner/scampfilter/atom"
	"github.com/ThomasDebrunner/scampfilter/metaprog"
)

// ErrValidationFailed is returned (wrapped) by Report.Error when the
// simulated target register does not hold exactly the expected items.
var ErrValidationFailed = errors.New("simulate: validation failed")

// ItemSet is a canonicalizing set of Items: adding two Items that are
// otherwise identical merges them into one Item at the next coarser
// scale, mirroring binary-addition carry propagation.
type ItemSet map[atom.Item]struct{}

func newItemSet(items ...atom.Item) ItemSet {
	s := make(ItemSet, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func move(s ItemSet, scale, dx, dy int, neg bool) ItemSet {
	out := make(ItemSet, len(s))
	for it := range s {
		out[atom.Item{Scale: it.Scale + scale, X: it.X + dx, Y: it.Y + dy, Neg: it.Neg != neg}] = struct{}{}
	}
	return out
}

func negate(s ItemSet) ItemSet {
	out := make(ItemSet, len(s))
	for it := range s {
		out[it.Negate()] = struct{}{}
	}
	return out
}

func union(s1, s2 ItemSet) ItemSet {
	out := make(ItemSet, len(s1)+len(s2))
	for it := range s1 {
		out[it] = struct{}{}
	}
	for it := range s2 {
		out[it] = struct{}{}
	}
	return out
}

func intersect(s1, s2 ItemSet) ItemSet {
	out := make(ItemSet)
	for it := range s1 {
		if _, ok := s2[it]; ok {
			out[it] = struct{}{}
		}
	}
	return out
}

func difference(s1, s2 ItemSet) ItemSet {
	out := make(ItemSet)
	for it := range s1 {
		if _, ok := s2[it]; !ok {
			out[it] = struct{}{}
		}
	}
	return out
}

// add combines s1 and s2, carrying any Items that collide (same
// scale/x/y/neg key) into a single Item one scale coarser, repeating
// until no collisions remain.
func add(s1, s2 ItemSet) ItemSet {
	for {
		inter := intersect(s1, s2)
		if len(inter) == 0 {
			return union(s1, s2)
		}
		s1 = difference(union(s1, s2), inter)
		s2 = move(inter, -1, 0, 0, false)
	}
}

// Interpret runs mp starting from a register state where startReg holds
// a single Item{0,0,0,false}, and returns the full final register
// state.
func Interpret(mp []metaprog.Instruction, startReg int) map[int]ItemSet {
	regState := map[int]ItemSet{startReg: newItemSet(atom.Item{})}
	for _, instr := range mp {
		switch v := instr.(type) {
		case *metaprog.Move:
			// A Move's Scale counts doublings when positive, halvings when
			// negative; Item scales grow toward finer fractions, so the sign
			// flips when applied to item scale.
			regState[v.Tgt] = move(regState[v.Src], -v.Scale, v.Dx, v.Dy, v.Neg)
		case *metaprog.Add:
			s1, s2 := regState[v.Src1], regState[v.Src2]
			if v.Neg1 {
				s1 = negate(s1)
			}
			if v.Neg2 {
				s2 = negate(s2)
			}
			regState[v.Tgt] = add(s1, s2)
		}
	}
	return regState
}

// Report describes the outcome of Validate.
type Report struct {
	OK      bool
	Actual  []atom.Item
	Missing []atom.Item
	Extra   []atom.Item
}

func sortedItems(s ItemSet) []atom.Item {
	out := make([]atom.Item, 0, len(s))
	for it := range s {
		out = append(out, it)
	}
	atom.SortItems(out)
	return out
}

// Validate simulates mp and checks that targetReg ends up holding
// exactly the Items in expected (as a set; order and duplicates in
// expected are ignored).
func Validate(mp []metaprog.Instruction, startReg, targetReg int, expected []atom.Item) Report {
	regState := Interpret(mp, startReg)
	actual := regState[targetReg]
	want := newItemSet(expected...)

	missing := difference(want, actual)
	extra := difference(actual, want)

	return Report{
		OK:      len(missing) == 0 && len(extra) == 0,
		Actual:  sortedItems(actual),
		Missing: sortedItems(missing),
		Extra:   sortedItems(extra),
	}
}

// Error returns a descriptive error if r is not OK, or nil otherwise.
func (r Report) Error() error {
	if r.OK {
		return nil
	}
	return fmt.Errorf("%w: missing=%v extra=%v actual=%v", ErrValidationFailed, r.Missing, r.Extra, r.Actual)
}
