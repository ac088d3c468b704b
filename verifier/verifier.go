// Package verifier orchestrates one query's evaluation end to end: compile
// the network and routing tables into a pushdown system under each
// approximation mode the query needs, reduce it, saturate it, and resolve
// the per-mode verdicts into the single answer spec.md §4.6 describes for
// OVER/UNDER/DUAL/EXACT.
package verifier

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"netverify/network"
	"netverify/pda"
	"netverify/query"
	"netverify/reducer"
	"netverify/rtable"
	"netverify/solver"
	"netverify/trace"
)

// Verdict is the three-valued answer a single query resolves to.
type Verdict int

const (
	// Unknown means OVER found a candidate path but UNDER wasn't run or
	// found none, or the query ran in a mode that can't settle the
	// question on its own (an OVER-only YES, an UNDER-only NO).
	Unknown Verdict = iota
	Yes
	No
)

func (v Verdict) String() string {
	switch v {
	case Yes:
		return "YES"
	case No:
		return "NO"
	default:
		return "UNKNOWN"
	}
}

// ModeResult is one concrete mode's saturation outcome.
type ModeResult struct {
	Mode      query.Mode
	Engine    solver.Engine
	Reachable bool
	Weight    uint64
	Weighted  bool
	Trace     trace.Trace
	Reduction reducer.Stats
	Elapsed   time.Duration
}

// Report is the full result of evaluating one query, shaped for spec.md §6's
// JSON output record.
type Report struct {
	Query   string
	Verdict Verdict
	Modes   []ModeResult
	Elapsed time.Duration
	Err     string
}

// Options configures one Run call.
type Options struct {
	ReductionLevel reducer.Level
	Engine         solver.Engine // the zero value is EngineNone (no verification); the CLI's -e flag defaults to solver.EnginePost
	Weight         pda.WeightFunc
}

// Run evaluates q against net/tables under every mode q.Modes() names,
// combining them per spec.md §4.6: OVER is sound for NO (a path OVER can't
// find truly doesn't exist), UNDER is sound for YES (a path UNDER finds
// truly exists); DUAL runs OVER first and only falls through to UNDER when
// OVER itself found a candidate, since then the question is genuinely open.
func Run(net *network.Network, tables map[network.RouterID]*rtable.Table, q *query.Query, opt Options) *Report {
	start := time.Now()
	rep := &Report{Query: q.Text}

	for _, mode := range q.Modes() {
		mr, err := runMode(net, tables, q, mode, opt)
		if err != nil {
			rep.Err = err.Error()
			rep.Verdict = Unknown
			rep.Elapsed = time.Since(start)
			return rep
		}
		rep.Modes = append(rep.Modes, mr)
		log.WithFields(log.Fields{
			"query": q.Text, "mode": mode, "reachable": mr.Reachable,
		}).Debug("verifier: mode evaluated")

		switch mode {
		case query.Over:
			if !mr.Reachable {
				rep.Verdict = No
				rep.Elapsed = time.Since(start)
				return rep
			}
		case query.Under, query.Exact:
			if mr.Reachable {
				rep.Verdict = Yes
			} else if rep.Verdict == Unknown && mode == query.Exact {
				rep.Verdict = No
			}
			rep.Elapsed = time.Since(start)
			return rep
		}
	}
	rep.Elapsed = time.Since(start)
	return rep
}

func runMode(net *network.Network, tables map[network.RouterID]*rtable.Table, q *query.Query, mode query.Mode, opt Options) (ModeResult, error) {
	modeStart := time.Now()

	p, err := pda.Build(net, tables, q, mode, opt.Weight)
	if err != nil {
		return ModeResult{}, fmt.Errorf("verifier: building PDA for mode %v: %w", mode, err)
	}

	stats := reducer.Reduce(p, opt.ReductionLevel)

	res, err := solver.Solve(p, opt.Engine)
	if err != nil {
		return ModeResult{}, fmt.Errorf("verifier: solving mode %v: %w", mode, err)
	}

	var tr trace.Trace
	if res.NonEmpty {
		tr = trace.Extract(net, tables, res.Automaton, res.Witness)
		tr.Weight = res.Weight
	}

	return ModeResult{
		Mode:      mode,
		Engine:    res.Engine,
		Reachable: res.NonEmpty,
		Weight:    res.Weight,
		Weighted:  res.Weighted,
		Trace:     tr,
		Reduction: stats,
		Elapsed:   time.Since(modeStart),
	}, nil
}
