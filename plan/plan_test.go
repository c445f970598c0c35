package plan

import (
	"testing"
	"time"

	"github.com/ThomasDebrunner/scampfilter/atom"
	"github.com/ThomasDebrunner/scampfilter/pairgen"
)

func TestSearchTrivialSingleAtomGoal(t *testing.T) {
	goal := atom.NewSet(atom.Atom{Nr: 0, X: 0, Y: 0})
	results, stats := Search(goal, 4, 50*time.Millisecond, 0, pairgen.DefaultProps(), pairgen.DefaultCosts())
	if len(results) == 0 {
		t.Fatalf("expected at least one result for a trivial single-atom goal")
	}
	if len(stats.Sols) == 0 {
		t.Fatalf("expected at least one logged trajectory sample")
	}
	for _, r := range results {
		if len(r.Plan) == 0 {
			t.Errorf("result plan is empty")
		}
		first := r.Plan[0]
		if !first.Down.Equal(goal) {
			t.Errorf("first executed step should produce the original goal, got %v", first.Down)
		}
	}
}

func TestSearchMonotonicMinCost(t *testing.T) {
	goal := atom.NewSet(
		atom.Atom{Nr: 0, X: 0, Y: 0},
		atom.Atom{Nr: 1, X: 0, Y: 0},
		atom.Atom{Nr: 2, X: 1, Y: 0},
		atom.Atom{Nr: 3, X: 1, Y: 0},
	)
	props := pairgen.DefaultProps()
	props.LogAll = true
	results, stats := Search(goal, 4, 100*time.Millisecond, 1, props, pairgen.DefaultCosts())
	if len(results) == 0 {
		t.Fatalf("expected at least one plan")
	}
	minCost := results[0].Cost
	for _, r := range results {
		if r.Cost > minCost {
			t.Errorf("result cost %v exceeds first-recorded cost %v", r.Cost, minCost)
		}
	}
	for i := 1; i < len(stats.Sols); i++ {
		if stats.Sols[i].Elapsed < stats.Sols[i-1].Elapsed {
			t.Errorf("trajectory elapsed times are not monotonic at index %d", i)
		}
	}
}

func TestSearchRespectsRegisterBudget(t *testing.T) {
	goal := atom.NewSet(
		atom.Atom{Nr: 0, X: 0, Y: 0},
		atom.Atom{Nr: 1, X: 1, Y: 0},
		atom.Atom{Nr: 2, X: 2, Y: 0},
	)
	results, _ := Search(goal, 1, 30*time.Millisecond, 0, pairgen.DefaultProps(), pairgen.DefaultCosts())
	for _, r := range results {
		for _, step := range r.Plan {
			if len(step.Goals) > 1 {
				t.Errorf("step exceeds register budget of 1: %d goals", len(step.Goals))
			}
		}
	}
}

func TestEndCostPenalizesSingleNegation(t *testing.T) {
	costs := pairgen.DefaultCosts()
	pos := atom.NewSet(atom.Atom{Nr: 0, X: 0, Y: 0})
	neg := atom.NewSet(atom.Atom{Nr: 0, X: 0, Y: 0, Neg: true})
	if endCost(neg, 0, costs) <= endCost(pos, 0, costs) {
		t.Errorf("a single negated end-state atom should cost more than a non-negated one")
	}
}
