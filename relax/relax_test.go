package relax

import (
	"testing"

	"github.com/ThomasDebrunner/scampfilter/atom"
	"github.com/ThomasDebrunner/scampfilter/metaprog"
	"github.com/ThomasDebrunner/scampfilter/simulate"
)

func TestEliminateEmptyShiftsRemovesNoOpMove(t *testing.T) {
	mp := []metaprog.Instruction{
		&metaprog.Move{Src: 0, Tgt: 1, Scale: 0, Dx: 0, Dy: 0},
		&metaprog.Add{Src1: 1, Src2: 1, Tgt: 2},
	}
	out := EliminateEmptyShifts(mp)
	if len(out) != 1 {
		t.Fatalf("expected the empty move to be removed, got %d instructions", len(out))
	}
	add := out[0].(*metaprog.Add)
	if add.Src1 != 0 || add.Src2 != 0 {
		t.Errorf("downstream references should resolve through the collapsed move, got Src1=%d Src2=%d", add.Src1, add.Src2)
	}
}

func TestEliminateEmptyShiftsKeepsNonTrivialMove(t *testing.T) {
	mp := []metaprog.Instruction{
		&metaprog.Move{Src: 0, Tgt: 1, Scale: 1, Dx: 0, Dy: 0},
	}
	out := EliminateEmptyShifts(mp)
	if len(out) != 1 {
		t.Fatalf("expected the move to be kept, got %d instructions", len(out))
	}
}

func TestRelaxSameShiftFactorsCommonShift(t *testing.T) {
	mp := []metaprog.Instruction{
		&metaprog.Move{Src: 0, Tgt: 1, Dx: 2, Dy: 0},
		&metaprog.Move{Src: 0, Tgt: 2, Dx: 2, Dy: 1},
		&metaprog.Add{Src1: 1, Src2: 2, Tgt: 3},
	}
	out := RelaxSameShift(mp, 8)
	totalCost := metaprog.TotalCost(out)
	if totalCost >= metaprog.TotalCost(mp) {
		t.Errorf("relaxation should reduce total instruction cost: before=%d after=%d", metaprog.TotalCost(mp), totalCost)
	}
}

func TestRelaxationPreservesSemantics(t *testing.T) {
	mp := []metaprog.Instruction{
		&metaprog.Move{Src: 0, Tgt: 1, Dx: 3, Dy: 1},
		&metaprog.Move{Src: 0, Tgt: 2, Dx: 3, Dy: -1, Scale: 1},
		&metaprog.Add{Src1: 1, Src2: 2, Tgt: 3},
		&metaprog.Move{Src: 3, Tgt: 4, Dx: -1},
		&metaprog.Add{Src1: 3, Src2: 4, Tgt: 5},
	}
	before := simulate.Interpret(mp, 0)
	var want []atom.Item
	for it := range before[5] {
		want = append(want, it)
	}

	out := RelaxSameShift(mp, 8)
	out = RelaxRebalance(out, 8)
	if len(out) == 0 {
		t.Fatalf("relaxation removed the whole program")
	}
	target := out[len(out)-1].Target()
	if r := simulate.Validate(out, 0, target, want); !r.OK {
		t.Errorf("relaxed program computes a different result: %+v", r)
	}
}

func TestRelaxRebalanceReducesWeight(t *testing.T) {
	mp := []metaprog.Instruction{
		&metaprog.Move{Src: 0, Tgt: 1, Dx: 4, Dy: 0},
		&metaprog.Move{Src: 1, Tgt: 2, Dx: -1, Dy: 0},
		&metaprog.Move{Src: 1, Tgt: 3, Dx: -1, Dy: 1},
		&metaprog.Add{Src1: 2, Src2: 3, Tgt: 4},
	}
	out := RelaxRebalance(mp, 8)
	if metaprog.TotalCost(out) >= metaprog.TotalCost(mp) {
		t.Errorf("rebalance should reduce total cost: before=%d after=%d", metaprog.TotalCost(mp), metaprog.TotalCost(out))
	}
}
