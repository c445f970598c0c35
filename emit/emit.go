// Package emit lowers a relaxed, register-allocated meta-program into
// textual SCAMP kernel code, in one of two dialects.
package emit

import (
	"fmt"
	"strings"

	"github.com/ThomasDebrunner/scampfilter/metaprog"
)

// Dialect selects the textual output format.
type Dialect int

const (
	// Apron emits assignment-style statements, e.g. "r2 = north(r1)".
	Apron Dialect = iota
	// Csim emits call-style statements, e.g. "north(r2, r1);", commented
	// out in favor of an explicit _transform() call.
	Csim
)

var patternsApron = map[string]string{
	"copy":   "{0} = copy({1})",
	"south":  "{0} = south({1})",
	"north":  "{0} = north({1})",
	"west":   "{0} = west({1})",
	"east":   "{0} = east({1})",
	"double": "{0} = add({1}, {2})",
	"div2":   "{0} = div2({1})",
	"sneg":   "{0} = sneg({1})",
	"neg":    "{0} = neg({1})",
	"add":    "{0} = add({1}, {2})",
	"sub":    "{0} = sub({1}, {2})",
	"addneg": "{0} = addneg({1}, {2})",
}

var patternsCsim = map[string]string{
	"copy":   "mov({0}, {1});",
	"south":  "// south({0}, {1});",
	"north":  "// north({0}, {1});",
	"west":   "// west({0}, {1});",
	"east":   "// east({0}, {1});",
	"double": "// add({0}, {1}, {2});",
	"div2":   "// div2({0}, {1});",
	"sneg":   "neg({0}, {1});",
	"neg":    "neg({0}, {1});",
	"add":    "add({0}, {1}, {2});",
	"sub":    "sub({0}, {1}, {2});",
	"addneg": "addneg({0}, {1}, {2});",
}

func pat(name string, d Dialect, args ...string) string {
	var template string
	if d == Csim {
		template = patternsCsim[name]
	} else {
		template = patternsApron[name]
	}
	out := template
	for i, a := range args {
		out = strings.ReplaceAll(out, fmt.Sprintf("{%d}", i), a)
	}
	return out
}

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

// generateShift expands a single Move into primitive steps: one
// north/south per |dy|, one east/west per |dx|, one double per positive
// scale, one div2 per negative scale, then an optional
// negation, each primitive applying to the previous primitive's output
// once the first has copied from source into target.
func generateShift(src, tgt int, scale, dx, dy int, neg bool, regNames []string, d Dialect) ([]string, int) {
	var program []string
	s, t := regNames[src], regNames[tgt]
	program = append(program, fmt.Sprintf("// [%s] -> [%s] || x:%d y:%d s:%d neg:%d", t, s, dx, dy, scale, boolToInt(neg)))
	if d == Csim {
		program = append(program, fmt.Sprintf("_transform(%s, %s, %d, %d, %d, %d);", t, s, dx, dy, scale, boolToInt(neg)))
	}

	if scale == 0 && dx == 0 && dy == 0 && !neg {
		program = append(program, pat("copy", d, t, s))
		return program, 0
	}

	copied := false
	srcOf := func() string {
		if !copied {
			return s
		}
		return t
	}

	for i := 0; i < dy; i++ {
		program = append(program, pat("north", d, t, srcOf()))
		copied = true
	}
	for i := 0; i < -dy; i++ {
		program = append(program, pat("south", d, t, srcOf()))
		copied = true
	}
	for i := 0; i < dx; i++ {
		program = append(program, pat("east", d, t, srcOf()))
		copied = true
	}
	for i := 0; i < -dx; i++ {
		program = append(program, pat("west", d, t, srcOf()))
		copied = true
	}
	for i := 0; i < scale; i++ {
		program = append(program, pat("double", d, t, srcOf(), srcOf()))
		copied = true
	}
	for i := 0; i < -scale; i++ {
		program = append(program, pat("div2", d, t, srcOf()))
		copied = true
	}
	if neg {
		ss := srcOf()
		if ss == t {
			program = append(program, pat("sneg", d, t, ss))
		} else {
			program = append(program, pat("neg", d, t, ss))
		}
	}

	length := absInt(scale) + absInt(dx) + absInt(dy) + boolToInt(neg)
	return program, length
}

func generateAdd(src1, src2 int, neg1, neg2 bool, tgt int, regNames []string, d Dialect) ([]string, int) {
	s1, s2, t := regNames[src1], regNames[src2], regNames[tgt]
	switch {
	case !neg1 && !neg2:
		return []string{pat("add", d, t, s1, s2)}, 1
	case !neg1 && neg2:
		return []string{pat("sub", d, t, s1, s2)}, 1
	case neg1 && !neg2:
		return []string{pat("sub", d, t, s2, s1)}, 1
	default:
		return []string{pat("addneg", d, t, s1, s2)}, 1
	}
}

// cloneInstruction copies a Move or Add by value so callers mutating the
// clone (e.g. renaming the final target register) never affect the
// caller's original meta-program.
func cloneInstruction(instr metaprog.Instruction) metaprog.Instruction {
	switch v := instr.(type) {
	case *metaprog.Move:
		c := *v
		return &c
	case *metaprog.Add:
		c := *v
		return &c
	}
	return instr
}

func indexOf(names []string, v string) int {
	for i, n := range names {
		if n == v {
			return i
		}
	}
	return -1
}

func removeAt(names []string, i int) []string {
	out := append([]string(nil), names[:i]...)
	return append(out, names[i+1:]...)
}

func insertAt(names []string, i int, v string) []string {
	out := make([]string, 0, len(names)+1)
	out = append(out, names[:i]...)
	out = append(out, v)
	return append(out, names[i:]...)
}

// Emit lowers mp into textual code for the given dialect. availableRegs
// names the physical registers mp's Move/Add instructions index into by
// position; startReg and targetReg name the hardware registers holding
// the convolution's input and output. mp is not mutated; Emit may
// prepend a copy-in instruction and always renames the final
// instruction's target to targetReg.
func Emit(mp []metaprog.Instruction, availableRegs []string, startReg, targetReg string, d Dialect) ([]string, int) {
	if len(mp) == 0 {
		return nil, 0
	}
	regNames := append([]string(nil), availableRegs...)
	working := append([]metaprog.Instruction(nil), mp...)

	expPos := working[0].Source()
	if idx := indexOf(regNames, startReg); idx >= 0 {
		regNames = insertAt(removeAt(regNames, idx), expPos, startReg)
	} else {
		regNames = append(regNames, startReg)
		prelude := &metaprog.Move{Src: len(regNames) - 1, Tgt: expPos}
		working = append([]metaprog.Instruction{prelude}, working...)
	}

	regNames = append(regNames, targetReg)
	lastTargetID := len(regNames) - 1
	last := cloneInstruction(working[len(working)-1])
	last.SetTarget(lastTargetID)
	working[len(working)-1] = last

	var program []string
	program = append(program, "// ----------------------------------------------------")
	program = append(program, "// DO NOT MODIFY! (Automatically generated kernel code)")
	length := 0
	for _, step := range working {
		switch v := step.(type) {
		case *metaprog.Move:
			lines, l := generateShift(v.Src, v.Tgt, v.Scale, v.Dx, v.Dy, v.Neg, regNames, d)
			program = append(program, lines...)
			length += l
		case *metaprog.Add:
			lines, l := generateAdd(v.Src1, v.Src2, v.Neg1, v.Neg2, v.Tgt, regNames, d)
			program = append(program, lines...)
			length += l
		}
	}
	program = append(program, "// ----------------------------------------------------")
	return program, length
}
