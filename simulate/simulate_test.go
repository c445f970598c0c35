package simulate

import (
	"testing"

	"github.com/ThomasDebrunner/scampfilter/atom"
	"github.com/ThomasDebrunner/scampfilter/metaprog"
)

func TestValidateIdentityCopy(t *testing.T) {
	mp := []metaprog.Instruction{
		&metaprog.Move{Src: 0, Tgt: 1},
	}
	r := Validate(mp, 0, 1, []atom.Item{{}})
	if !r.OK {
		t.Fatalf("expected identity copy to validate, got %+v", r)
	}
}

func TestValidateShiftAndDouble(t *testing.T) {
	mp := []metaprog.Instruction{
		&metaprog.Move{Src: 0, Tgt: 1, Dx: 1, Dy: 0, Scale: 1},
	}
	r := Validate(mp, 0, 1, []atom.Item{{Scale: -1, X: 1, Y: 0}})
	if !r.OK {
		t.Fatalf("expected shift+scale to validate, got %+v", r)
	}
}

func TestValidateCarryOnAdd(t *testing.T) {
	// Two copies of the same item at a register collapse into one item
	// one scale coarser when added together.
	mp := []metaprog.Instruction{
		&metaprog.Move{Src: 0, Tgt: 1},
		&metaprog.Add{Src1: 0, Src2: 1, Tgt: 2},
	}
	r := Validate(mp, 0, 2, []atom.Item{{Scale: -1}})
	if !r.OK {
		t.Fatalf("expected doubling via add to carry into scale -1, got %+v", r)
	}
}

func TestValidateDetectsMismatch(t *testing.T) {
	mp := []metaprog.Instruction{
		&metaprog.Move{Src: 0, Tgt: 1, Dx: 5},
	}
	r := Validate(mp, 0, 1, []atom.Item{{}})
	if r.OK {
		t.Fatalf("expected mismatch to be detected")
	}
	if len(r.Missing) == 0 || len(r.Extra) == 0 {
		t.Errorf("expected both missing and extra items to be reported, got %+v", r)
	}
	if r.Error() == nil {
		t.Errorf("expected a non-nil error for a failed validation")
	}
}

func TestValidateNegatedSub(t *testing.T) {
	mp := []metaprog.Instruction{
		&metaprog.Move{Src: 0, Tgt: 1, Dx: 1},
		&metaprog.Add{Src1: 0, Src2: 1, Neg2: true, Tgt: 2},
	}
	r := Validate(mp, 0, 2, []atom.Item{{}, {X: 1, Neg: true}})
	if !r.OK {
		t.Fatalf("expected subtraction to validate, got %+v", r)
	}
}
