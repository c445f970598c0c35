package atom

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestItemNegate(t *testing.T) {
	it := Item{Scale: 1, X: 2, Y: -3, Neg: false}
	got := it.Negate()
	want := Item{Scale: 1, X: 2, Y: -3, Neg: true}
	if got != want {
		t.Errorf("Negate() = %+v, want %+v", got, want)
	}
	if got.Negate() != it {
		t.Errorf("double negate did not round trip")
	}
}

func TestItemLen(t *testing.T) {
	cases := []struct {
		it   Item
		want int
	}{
		{Item{Scale: 0, X: 0, Y: 0, Neg: false}, 0},
		{Item{Scale: 2, X: -1, Y: 3, Neg: true}, 7},
	}
	for _, c := range cases {
		if got := c.it.Len(); got != c.want {
			t.Errorf("Item(%+v).Len() = %d, want %d", c.it, got, c.want)
		}
	}
}

func TestAtomIdentityIgnoresPolarity(t *testing.T) {
	a := Atom{Nr: 1, X: 0, Y: 0, Neg: false}
	b := Atom{Nr: 1, X: 0, Y: 0, Neg: true}
	s := NewSet(a)
	if !s.Has(b) {
		t.Errorf("Has should ignore polarity for identity lookup")
	}
}

func TestSetOps(t *testing.T) {
	a := NewSet(Atom{Nr: 1, X: 0, Y: 0}, Atom{Nr: 2, X: 0, Y: 0})
	b := NewSet(Atom{Nr: 2, X: 0, Y: 0}, Atom{Nr: 3, X: 1, Y: 0})

	union := a.Union(b)
	if union.Len() != 3 {
		t.Errorf("Union len = %d, want 3", union.Len())
	}
	diff := a.Difference(b)
	if diff.Len() != 1 {
		t.Errorf("Difference len = %d, want 1", diff.Len())
	}
	inter := a.Intersect(b)
	if inter.Len() != 1 {
		t.Errorf("Intersect len = %d, want 1", inter.Len())
	}
	if !inter.IsSubsetOf(a) || !inter.IsSubsetOf(b) {
		t.Errorf("intersection should be a subset of both operands")
	}
}

func TestEndState(t *testing.T) {
	same := NewSet(Atom{Nr: 1, X: 0, Y: 0}, Atom{Nr: 2, X: 0, Y: 0})
	if !same.EndState() {
		t.Errorf("expected end state")
	}
	diff := NewSet(Atom{Nr: 1, X: 0, Y: 0}, Atom{Nr: 2, X: 1, Y: 0})
	if diff.EndState() {
		t.Errorf("expected non-end state")
	}
	if NewSet().EndState() {
		t.Errorf("empty set is not an end state")
	}
}

func TestGetScales(t *testing.T) {
	got := GetScales(5, 3) // 5 = 0b101 -> bits 0 and 2 set -> scales 3, 1
	want := []int{3, 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetScales mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslateGoalItemCount(t *testing.T) {
	items := []Item{{Scale: 1, X: 0, Y: 0}, {Scale: 2, X: 1, Y: 0}}
	g := GlobalScale(items)
	s, next := TranslateGoal(items, g, 0)
	want := (1 << uint(g-1)) + (1 << uint(g-2))
	if s.Len() != want {
		t.Errorf("TranslateGoal produced %d atoms, want %d", s.Len(), want)
	}
	if next != want {
		t.Errorf("next id = %d, want %d", next, want)
	}
}

func TestTranslateRoundTrip(t *testing.T) {
	items := []Item{
		{Scale: 0, X: 0, Y: 0, Neg: false},
		{Scale: 1, X: -1, Y: 1, Neg: true},
		{Scale: 2, X: 1, Y: -1, Neg: false},
	}
	g := GlobalScale(items)
	s, _ := TranslateGoal(items, g, 0)
	back := TranslateBackSet(s, g)

	SortItems(back)
	want := append([]Item(nil), items...)
	SortItems(want)

	opt := cmpopts.SortSlices(func(a, b Item) bool { return a.Less(b) })
	if diff := cmp.Diff(want, back, opt); diff != "" {
		t.Errorf("translate round trip mismatch (-want +got):\n%s", diff)
	}
}
