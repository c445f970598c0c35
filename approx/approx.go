// Package approx expresses real-valued filter coefficients as small
// signed sums of dyadic fractions (powers of two), so that each
// coefficient can later be realized on hardware that only doubles,
// halves, and adds.
package approx

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ThomasDebrunner/scampfilter/atom"
	"gonum.org/v1/gonum/floats/scalar"
)

// Coeffs maps a dyadic constant (a power of two, possibly fractional)
// to its sign: +1 or -1.
type Coeffs map[float64]int

// Approx greedily expands target into a signed sum of dyadic constants.
// It starts a running total at 0 and a coefficient c at 256 (2^8), and
// for depth+8 iterations: if the running error exceeds 3/4*c, picks the
// sign that brings total closer to target, records c with that sign, and
// updates total; c is halved every iteration regardless. The loop stops
// early once total equals target, or once maxCoeff coefficients have
// been emitted (maxCoeff<=0 means unbounded).
//
// The 3/4*c threshold (rather than 1/2*c) avoids committing a correction
// when the next, finer term could close the gap on its own.
func Approx(target float64, depth, maxCoeff int) (float64, Coeffs) {
	coeffs := make(Coeffs)
	total := 0.0
	c := 256.0

	for i := -8; i < depth; i++ {
		if total == target {
			break
		}
		if math.Abs(total-target) > 0.75*c {
			if math.Abs((total-c)-target) > math.Abs(total+c-target) {
				coeffs[c] = 1
				total += c
			} else {
				coeffs[c] = -1
				total -= c
			}
		}
		c /= 2
		if maxCoeff > 0 && len(coeffs) >= maxCoeff {
			break
		}
	}
	return total, coeffs
}

// roundTripTolerance reports whether got is within the error bound the
// greedy expansion guarantees for the given depth:
// |total-target| <= 2^(-depth+1).
func roundTripTolerance(target, got float64, depth int) bool {
	bound := math.Exp2(float64(-depth + 1))
	return scalar.EqualWithinAbs(got, target, bound) || math.Abs(got-target) <= bound
}

// RoundTripTolerance is exported for use by tests outside this package
// that want to check the approximation round-trip invariant without
// duplicating the tolerance formula.
func RoundTripTolerance(target, got float64, depth int) bool {
	return roundTripTolerance(target, got, depth)
}

// ApproxFilter approximates every coefficient of a H x W filter matrix
// and assembles the pre-goal: one Item per emitted dyadic coefficient,
// placed at the offset of its cell relative to the filter center.
// matrix[y] is row y, matrix[y][x] is column x.
//
// A coefficient c with weight -1 yields a negated Item; a cell that
// rounds to nothing under the given depth/maxCoeff budget (e.g.
// maxCoeff=1 with a target of exactly zero) contributes no Item.
func ApproxFilter(matrix [][]float64, depth, maxCoeff int) ([]atom.Item, [][]float64) {
	h := len(matrix)
	w := 0
	if h > 0 {
		w = len(matrix[0])
	}
	approximated := make([][]float64, h)
	var preGoal []atom.Item

	for y := 0; y < h; y++ {
		approximated[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			total, coeffs := Approx(matrix[y][x], depth, maxCoeff)
			approximated[y][x] = total

			ix := x - w/2
			iy := h/2 - y
			for c, weight := range coeffs {
				scale := int(-math.Log2(c))
				it := atom.Item{Scale: scale, X: ix, Y: iy}
				if weight != 1 {
					it = it.Negate()
				}
				preGoal = append(preGoal, it)
			}
		}
	}
	return preGoal, approximated
}

// FilterFromPreGoal reconstructs an approximate numeric filter matrix
// from a pre-goal item list, the inverse direction of ApproxFilter.
func FilterFromPreGoal(preGoal []atom.Item) [][]float64 {
	if len(preGoal) == 0 {
		return nil
	}
	minX, maxX := preGoal[0].X, preGoal[0].X
	minY, maxY := preGoal[0].Y, preGoal[0].Y
	for _, it := range preGoal {
		if it.X < minX {
			minX = it.X
		}
		if it.X > maxX {
			maxX = it.X
		}
		if it.Y < minY {
			minY = it.Y
		}
		if it.Y > maxY {
			maxY = it.Y
		}
	}
	width := maxX - minX + 1
	height := maxY - minY + 1

	filter := make([][]float64, height)
	for i := range filter {
		filter[i] = make([]float64, width)
	}
	for _, it := range preGoal {
		sign := 1.0
		if it.Neg {
			sign = -1.0
		}
		row := height - 1 - (it.Y - minY)
		col := it.X - minX
		filter[row][col] += sign * math.Exp2(float64(-it.Scale))
	}
	return filter
}

// SprintFilter renders a filter matrix as an aligned text grid.
func SprintFilter(matrix [][]float64) string {
	var b strings.Builder
	b.WriteString("----------------------\n")
	for _, row := range matrix {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%5.2f", v)
		}
		b.WriteString(strings.Join(cells, "  "))
		b.WriteString("\n")
	}
	b.WriteString("----------------------\n")
	return b.String()
}

// SortedCoeffs returns the coefficients of c sorted by descending
// magnitude, for deterministic printing and testing.
func SortedCoeffs(c Coeffs) []float64 {
	out := make([]float64, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out
}
