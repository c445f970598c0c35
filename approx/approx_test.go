package approx

import (
	"math"
	"testing"

	"github.com/ThomasDebrunner/scampfilter/atom"
)

func TestApproxRoundTrip(t *testing.T) {
	targets := []float64{0, 1, -1, 0.5, 0.342, 0.125, -0.634, 2.75}
	for _, target := range targets {
		for depth := 0; depth <= 6; depth++ {
			total, coeffs := Approx(target, depth, -1)
			if !roundTripTolerance(target, total, depth) {
				t.Errorf("Approx(%v, depth=%d) = %v, error %v exceeds tolerance", target, depth, total, math.Abs(total-target))
			}
			sum := 0.0
			for c, weight := range coeffs {
				sum += c * float64(weight)
			}
			if math.Abs(sum-total) > 1e-9 {
				t.Errorf("coeffs do not sum to total: got %v want %v", sum, total)
			}
		}
	}
}

func TestApproxMaxCoeff(t *testing.T) {
	_, coeffs := Approx(0.333, 10, 3)
	if len(coeffs) > 3 {
		t.Errorf("max_coeff exceeded: got %d coefficients", len(coeffs))
	}
}

func TestApproxZeroWithMaxCoeffOne(t *testing.T) {
	_, coeffs := Approx(0, 5, 1)
	if len(coeffs) != 0 {
		t.Errorf("expected no coefficients for target 0 with max_coeff=1, got %v", coeffs)
	}
}

func TestApproxFilterSobelX(t *testing.T) {
	sobel := [][]float64{
		{1, 0, -1},
		{2, 0, -2},
		{1, 0, -1},
	}
	preGoal, approximated := ApproxFilter(sobel, 4, -1)
	if len(preGoal) == 0 {
		t.Fatalf("expected a non-empty pre-goal")
	}
	for y := range sobel {
		for x := range sobel[y] {
			if math.Abs(approximated[y][x]-sobel[y][x]) > 0.1 {
				t.Errorf("approximated[%d][%d] = %v, want close to %v", y, x, approximated[y][x], sobel[y][x])
			}
		}
	}
}

func TestApproxFilterZeroCellProducesNoItems(t *testing.T) {
	filter := [][]float64{{0, 1}}
	preGoal, _ := ApproxFilter(filter, 4, 1)
	for _, it := range preGoal {
		if it.X == -1 { // the zero cell's offset (w=2 => w/2=1, x=0 => -1)
			t.Errorf("expected no items for the zero cell, found %+v", it)
		}
	}
}

func TestFilterFromPreGoalInverse(t *testing.T) {
	box := [][]float64{
		{1, 1, 1},
		{1, 1, 1},
		{1, 1, 1},
	}
	preGoal, _ := ApproxFilter(box, 4, -1)
	rebuilt := FilterFromPreGoal(preGoal)
	if len(rebuilt) != len(box) || len(rebuilt[0]) != len(box[0]) {
		t.Fatalf("rebuilt filter has wrong shape: %dx%d", len(rebuilt), len(rebuilt[0]))
	}
	for y := range box {
		for x := range box[y] {
			if math.Abs(rebuilt[y][x]-box[y][x]) > 0.1 {
				t.Errorf("rebuilt[%d][%d] = %v, want close to %v", y, x, rebuilt[y][x], box[y][x])
			}
		}
	}
}

func TestItemLenUsedAsCostProxy(t *testing.T) {
	it := atom.Item{Scale: 1, X: 1, Y: 0, Neg: true}
	if it.Len() != 3 {
		t.Errorf("Len() = %d, want 3", it.Len())
	}
}
