// Package scamp wires the filter approximator, plan search, meta
// programmer, relaxation passes, register allocator, emitter and
// simulator into the single entry point Generate.
package scamp

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ThomasDebrunner/scampfilter/approx"
	"github.com/ThomasDebrunner/scampfilter/atom"
	"github.com/ThomasDebrunner/scampfilter/emit"
	"github.com/ThomasDebrunner/scampfilter/metaprog"
	"github.com/ThomasDebrunner/scampfilter/pairgen"
	"github.com/ThomasDebrunner/scampfilter/plan"
	"github.com/ThomasDebrunner/scampfilter/regalloc"
	"github.com/ThomasDebrunner/scampfilter/relax"
	"github.com/ThomasDebrunner/scampfilter/simulate"
)

// ErrNoPlanFound is returned (wrapped, with the elapsed search budget)
// by Generate when the planner exhausts its search time without
// reducing the goal to a single end state.
var ErrNoPlanFound = errors.New("scamp: no plan found")

// Config bundles every input Generate needs. AvailableRegs is the pool
// of physical register names the hardware offers; one of them is
// reserved as scratch space during the search and meta-programming
// stages, mirroring n_reg = len(available_regs) - 1.
type Config struct {
	Filter          [][]float64
	SearchTime      time.Duration
	AvailableRegs   []string
	StartReg        string
	TargetReg       string
	Verbose         int
	Log             io.Writer
	Props           pairgen.Props
	Costs           pairgen.Costs
	ApproxDepth     int
	MaxApproxCoeffs int
	Dialect         emit.Dialect
}

// DefaultConfig returns the conventional configuration scamp_filter.py
// falls back to when its caller omits one.
func DefaultConfig() Config {
	return Config{
		SearchTime:      5 * time.Second,
		AvailableRegs:   []string{"A", "B", "C"},
		StartReg:        "A",
		TargetReg:       "B",
		Verbose:         1,
		Props:           pairgen.DefaultProps(),
		Costs:           pairgen.DefaultCosts(),
		ApproxDepth:     5,
		MaxApproxCoeffs: -1,
		Dialect:         emit.Apron,
	}
}

// Result is everything Generate produces: the textual SCAMP program,
// its instruction length, its meta-program cost, the approximated
// filter it actually realizes, the search trajectory, and the
// validation report that confirms the program is correct.
type Result struct {
	Program      []string
	Length       int
	Cost         int
	ApproxFilter [][]float64
	PreGoal      []atom.Item
	Stats        *plan.Stats
	Report       simulate.Report
}

func (cfg Config) logf(level int, format string, args ...interface{}) {
	if cfg.Verbose >= level && cfg.Log != nil {
		fmt.Fprintf(cfg.Log, format, args...)
	}
}

// Generate compiles filter into a SCAMP program: approximate, search
// for a realization plan, lower it to a meta-program, relax it,
// allocate registers, emit text, and validate the result by
// simulation. It returns an error rather than panicking for the
// expected failure modes: no plan found within searchTime, register
// allocation infeasible, and a validation mismatch.
func Generate(cfg Config) (*Result, error) {
	if len(cfg.AvailableRegs) < 2 {
		return nil, fmt.Errorf("scamp: need at least 2 available registers, got %d", len(cfg.AvailableRegs))
	}
	nReg := len(cfg.AvailableRegs) - 1

	preGoal, approxFilter := approx.ApproxFilter(cfg.Filter, cfg.ApproxDepth, cfg.MaxApproxCoeffs)
	g := atom.GlobalScale(preGoal)
	finalGoal, _ := atom.TranslateGoal(preGoal, g, 0)

	cfg.logf(1, ">> Pre goal\n%v\n", preGoal)
	cfg.logf(1, ">> Goal with %d atoms..\n", finalGoal.Len())

	cfg.logf(1, ">> Searching for plans...\n")
	results, stats := plan.Search(finalGoal, nReg, cfg.SearchTime, g, cfg.Props, cfg.Costs)
	cfg.logf(1, "...Done\n")
	if len(results) == 0 {
		return nil, fmt.Errorf("%w within %s", ErrNoPlanFound, cfg.SearchTime)
	}

	cheapest := results[0].Cost
	for _, r := range results[1:] {
		if r.Cost < cheapest {
			cheapest = r.Cost
		}
	}
	var bestPlan plan.Plan
	for _, r := range results {
		if r.Cost == cheapest {
			bestPlan = r.Plan
			break
		}
	}
	cfg.logf(1, "... found plan(s) with approx. cost %d\n", int(cheapest))

	mp := metaprog.Generate(bestPlan)
	trivial := len(mp) == 0
	if trivial {
		// A fully trivial goal (e.g. the [[1]] identity filter) needs no
		// computation, but the result still has to land in a distinct
		// target register, so emit an explicit copy. This Move is a
		// semantic no-op by construction (it literally is the identity),
		// so relax.EliminateEmptyShifts would strip it down to an empty
		// program; skip relaxation entirely for this case instead.
		mp = []metaprog.Instruction{&metaprog.Move{Src: 0, Tgt: 1}}
	}
	cost := metaprog.TotalCost(mp)
	cfg.logf(1, "| ... Meta program with %d steps generated. Cost: %d\n", len(mp), cost)

	if !trivial {
		mp = relax.EliminateEmptyShifts(mp)

		cfg.logf(1, "| >> Relaxing meta program\n")
		for {
			mp = relax.RelaxSameShift(mp, nReg)
			mp = relax.RelaxRebalance(mp, nReg)
			newCost := metaprog.TotalCost(mp)
			if newCost >= cost {
				break
			}
			cost = newCost
		}
		cfg.logf(1, "| ... Done. New cost: %d\n", cost)
	}

	cfg.logf(1, ">> Performing register allocation\n")
	if err := regalloc.Alloc(mp, nReg+1); err != nil {
		return nil, fmt.Errorf("scamp: register allocation failed: %w", err)
	}
	cfg.logf(1, "... Done\n")

	cfg.logf(1, ">> Validating SCAMP code\n")
	startID := mp[0].Source()
	targetID := mp[len(mp)-1].Target()
	report := simulate.Validate(mp, startID, targetID, preGoal)
	if !report.OK {
		cfg.logf(1, "validation failed\n")
		return nil, fmt.Errorf("scamp: %w", report.Error())
	}
	cfg.logf(1, "validation succeeded\n")

	cfg.logf(1, ">> Generating SCAMP code\n")
	program, length := emit.Emit(mp, cfg.AvailableRegs, cfg.StartReg, cfg.TargetReg, cfg.Dialect)
	cfg.logf(1, "... SCAMP code with %d instructions generated\n", length)

	return &Result{
		Program:      program,
		Length:       length,
		Cost:         cost,
		ApproxFilter: approxFilter,
		PreGoal:      preGoal,
		Stats:        stats,
		Report:       report,
	}, nil
}

