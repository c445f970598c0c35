package regalloc

import (
	"testing"

	"github.com/ThomasDebrunner/scampfilter/metaprog"
)

func TestLivenessSimpleChain(t *testing.T) {
	mp := []metaprog.Instruction{
		&metaprog.Move{Src: 0, Tgt: 1},
		&metaprog.Move{Src: 0, Tgt: 2},
		&metaprog.Add{Src1: 1, Src2: 2, Tgt: 3},
	}
	live := Liveness(mp)
	if len(live) != 3 {
		t.Fatalf("expected 3 liveness entries, got %d", len(live))
	}
	if !live[0][0] {
		t.Errorf("register 0 should stay live across the first move, since the second move still reads it")
	}
}

func TestColorTwoInterferingRegistersNeedTwoColors(t *testing.T) {
	mp := []metaprog.Instruction{
		&metaprog.Move{Src: 0, Tgt: 1},
		&metaprog.Move{Src: 0, Tgt: 2},
		&metaprog.Add{Src1: 1, Src2: 2, Tgt: 3},
	}
	liveness := Liveness(mp)
	g := InterferenceGraph(liveness)
	if _, ok := Color(g, 1); ok {
		t.Errorf("expected coloring with 1 register to fail: registers 1 and 2 interfere")
	}
	if _, ok := Color(g, 2); !ok {
		t.Errorf("expected coloring with 2 registers to succeed")
	}
}

func TestAllocRewritesRegisterNumbers(t *testing.T) {
	mp := []metaprog.Instruction{
		&metaprog.Move{Src: 0, Tgt: 1},
		&metaprog.Move{Src: 0, Tgt: 2},
		&metaprog.Add{Src1: 1, Src2: 2, Tgt: 3},
	}
	if err := Alloc(mp, 3); err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	add := mp[2].(*metaprog.Add)
	if add.Src1 == add.Src2 {
		t.Errorf("interfering registers 1 and 2 were assigned the same physical register")
	}
}

func TestAllocFailsWhenRegisterBudgetTooSmall(t *testing.T) {
	mp := []metaprog.Instruction{
		&metaprog.Move{Src: 0, Tgt: 1},
		&metaprog.Move{Src: 0, Tgt: 2},
		&metaprog.Add{Src1: 1, Src2: 2, Tgt: 3},
	}
	if err := Alloc(mp, 1); err == nil {
		t.Errorf("expected Alloc to fail with only 1 register available")
	}
}

func TestFourMutuallyInterferingRegistersNeedFourColors(t *testing.T) {
	// Four registers all simultaneously live (e.g. defined, then all
	// read by one final instruction) form a clique: coloring must fail
	// below 4 colors and succeed at exactly 4.
	mp := []metaprog.Instruction{
		&metaprog.Move{Src: 0, Tgt: 1},
		&metaprog.Move{Src: 0, Tgt: 2},
		&metaprog.Move{Src: 0, Tgt: 3},
		&metaprog.Move{Src: 0, Tgt: 4},
		&metaprog.Add{Src1: 1, Src2: 2, Tgt: 5},
		&metaprog.Add{Src1: 5, Src2: 3, Tgt: 6},
		&metaprog.Add{Src1: 6, Src2: 4, Tgt: 7},
	}
	liveness := Liveness(mp)
	g := InterferenceGraph(liveness)
	if _, ok := Color(g, 3); ok {
		t.Errorf("expected coloring with 3 registers to fail for a 4-clique")
	}
	if _, ok := Color(g, 4); !ok {
		t.Errorf("expected coloring with 4 registers to succeed for a 4-clique")
	}
}
