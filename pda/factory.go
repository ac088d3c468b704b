package pda

import (
	"fmt"

	"netverify/label"
	"netverify/network"
	"netverify/query"
	"netverify/rtable"
)

// WeightFunc is an external cost callback (spec.md §4.2 "Weights"):
// given the router the rule departs from and the interface it exits on, it
// returns the rule's weight in the chosen semiring. When nil, Build
// produces an unweighted PDA (every rule gets weight 1, the unit semiring).
type WeightFunc func(from network.RouterID, via network.InterfaceID) uint32

// Build translates a network and its routing tables into a weighted
// pushdown system for query q under approximation mode, per spec.md §4.2.
// mode must be a concrete mode (Over, Under or Exact) -- Dual is expanded
// by the verifier into two Build calls, one per concrete mode.
func Build(net *network.Network, tables map[network.RouterID]*rtable.Table, q *query.Query, mode query.Mode, wf WeightFunc) (*PDA, error) {
	if mode == query.Dual {
		return nil, fmt.Errorf("pda: Build requires a concrete mode, got DUAL")
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := net.ValidatePairing(); err != nil {
		return nil, err
	}

	p := &PDA{
		Net:       net,
		Tables:    tables,
		Query:     q,
		Mode:      mode,
		K:         q.K,
		Weighted:  wf != nil,
		appModes:  newAppModeTable(),
		Synthetic: make(map[State]SyntheticInfo),
	}

	for _, pstate := range q.Path.EpsilonClosure(q.Path.Start) {
		for _, r := range net.Routers() {
			if net.IsNull(r.ID) {
				continue
			}
			p.Init = append(p.Init, State{Router: r.ID, PathState: pstate, AppMode: zeroAppMode, OpID: -1})
		}
	}

	for _, r := range net.Routers() {
		if net.IsNull(r.ID) {
			continue
		}
		table := tables[r.ID]
		if table == nil {
			continue // spec.md §8 boundary: empty routing table, no outgoing rules
		}
		if err := p.emitRouter(r.ID, table, wf); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *PDA) emitRouter(r network.RouterID, table *rtable.Table, wf WeightFunc) error {
	for entryIdx, entry := range table.Entries() {
		// Every PathState the control state might currently hold needs its
		// own copy of this entry's rules, since the path-NFA advances on
		// the (interface, router) symbol consumed at the final op.
		for _, pstate := range allPathStates(p.Query.Path) {
			for appIdx := range p.enumerateReachableAppModes() {
				from := State{Router: r, PathState: pstate, AppMode: appIdx, OpID: -1}
				if err := p.emitEntry(entryIdx, entry, from, wf); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// allPathStates returns every state index of the path NFA; the factory
// over-generates rules for path states that turn out unreachable from
// Init, which the reducer (spec.md §4.3) prunes away.
func allPathStates(a *query.PathNFA) []int {
	out := make([]int, a.NumStates)
	for i := range out {
		out[i] = i
	}
	return out
}

// enumerateReachableAppModes returns the appMode indices interned so far,
// plus index 0 (always present). The factory interns new appModes as it
// discovers failure choices, so this set grows monotonically during
// emitRouter's router-by-router pass; a second pass over newly discovered
// indices is unnecessary because Under/Exact approximation only ever adds
// failed links going forward (monotone), so fixpoint is reached once all
// routers have been visited at the indices known at visit time. Dense
// networks may need BuildPDA called twice to fully saturate; this mirrors
// the reducer's own fixpoint design rather than hiding it.
func (p *PDA) enumerateReachableAppModes() map[int]struct{} {
	out := make(map[int]struct{}, len(p.appModes.modes))
	for i := range p.appModes.modes {
		out[i] = struct{}{}
	}
	return out
}

func (p *PDA) emitEntry(entryIdx int, entry rtable.Entry, from State, wf WeightFunc) error {
	for ruleIdx, ru := range entry.Rules {
		failedVias := viasBelow(entry, ru.Weight)
		to, appIdx, ok, err := p.resolveTarget(from, entry, ru, failedVias)
		if err != nil {
			return err
		}
		if !ok {
			continue // rule pruned: exceeds failure bound, its own via already failed, or DISCARD
		}
		from2 := from
		from2.AppMode = appIdx
		p.emitRule(entryIdx, ruleIdx, from2, entry.Key.Top, ru, to, wf)
	}
	return nil
}

// viasBelow returns the via interfaces of every rule in entry strictly
// preferred over weight w: for w to be chosen, the adversary must have
// failed all of them (spec.md scenario S3).
func viasBelow(entry rtable.Entry, w uint32) []network.InterfaceID {
	var out []network.InterfaceID
	for _, r := range entry.Rules {
		if r.Weight < w && r.Via != nil {
			out = append(out, *r.Via)
		}
	}
	return out
}

// resolveTarget computes the post-rule control state, applying the
// approximation policy selected by p.Mode (spec.md "Approximation as
// control-state encoding"): for OVER it bumps a bounded counter, for
// UNDER/EXACT it grows a concrete failed-link set that must stay consistent
// across the whole trace.
func (p *PDA) resolveTarget(from State, entry rtable.Entry, ru rtable.Rule, failedVias []network.InterfaceID) (afterRouter network.RouterID, appIdx int, ok bool, err error) {
	cur := p.appModes.get(from.AppMode)

	if ru.Via != nil && cur.contains(*ru.Via) {
		return 0, 0, false, nil // this link is already known failed; can't use it
	}

	switch p.Mode {
	case query.Over:
		count := cur.Count
		if len(failedVias) > 0 {
			count++
		}
		if count > p.K {
			return 0, 0, false, nil
		}
		appIdx = p.appModes.intern(appMode{Count: count})
	case query.Under, query.Exact:
		next := cur
		for _, v := range failedVias {
			n, added := next.withFailed(v, p.K)
			if !added {
				return 0, 0, false, nil
			}
			next = n
		}
		appIdx = p.appModes.intern(next)
	default:
		return 0, 0, false, fmt.Errorf("pda: unsupported mode %v", p.Mode)
	}

	switch ru.Kind {
	case rtable.RuleReceive:
		afterRouter = network.NullRouterID
	case rtable.RuleDiscard:
		return 0, 0, false, nil // dead end: no successor state
	case rtable.RuleMPLS, rtable.RuleIP:
		if ru.Via == nil {
			return 0, 0, false, fmt.Errorf("pda: rule of kind %v missing via interface", ru.Kind)
		}
		adjacent := p.Net.Interface(*ru.Via).Match
		afterRouter = p.Net.RouterOf(adjacent)
	default:
		return 0, 0, false, fmt.Errorf("pda: unknown rule kind %v", ru.Kind)
	}
	return afterRouter, appIdx, true, nil
}

// emitRule lowers one routing rule into a chain of elementary PDA rules,
// one per stack op, threading intermediate states through OpID/EntryIdx/
// RuleIdx/StepIdx so concurrent rule expansions never interleave (spec.md
// §4.2 "Rule synthesis").
func (p *PDA) emitRule(entryIdx, ruleIdx int, from State, topPattern label.Label, ru rtable.Rule, afterRouter network.RouterID, wf WeightFunc) {
	weight := uint32(1)
	if wf != nil && ru.Via != nil {
		weight = wf(from.Router, *ru.Via)
	}

	ops := ru.Ops
	if len(ops) == 0 {
		// No stack mutation: model as a Swap-to-self via a wildcard op so
		// the rule still advances the control state.
		ops = []label.Op{{Kind: label.Swap, Label: label.Wildcard()}}
	}

	cur := from
	finalPathStates := p.nextPathStates(from.PathState, ru)
	for i, op := range ops {
		sym := label.Wildcard()
		if i == 0 {
			sym = topPattern
		}
		meta := SyntheticInfo{Router: from.Router, EntryIdx: entryIdx, RuleIdx: ruleIdx, OpOffset: i}
		last := i == len(ops)-1
		if !last {
			to := State{
				Router: from.Router, PathState: from.PathState, AppMode: from.AppMode,
				OpID: syntheticID(entryIdx, ruleIdx), EntryIdx: entryIdx, RuleIdx: ruleIdx, StepIdx: i + 1,
			}
			p.Synthetic[to] = SyntheticInfo{Router: from.Router, EntryIdx: entryIdx, RuleIdx: ruleIdx, OpOffset: i + 1}
			appliedOp := op
			if appliedOp.Kind == label.Swap && label.Equal(appliedOp.Label, label.Wildcard()) {
				appliedOp.Label = sym
			}
			p.Rules = append(p.Rules, Rule{From: cur, Sym: sym, Op: appliedOp, To: to, Weight: weight, Meta: meta})
			cur = to
			continue
		}
		// Last op: branch into one rule per path-NFA successor state.
		for _, pstate := range finalPathStates {
			to := State{Router: afterRouter, PathState: pstate, AppMode: from.AppMode, OpID: -1}
			appliedOp := op
			if appliedOp.Kind == label.Swap && label.Equal(appliedOp.Label, label.Wildcard()) {
				appliedOp.Label = sym
			}
			p.Rules = append(p.Rules, Rule{From: cur, Sym: sym, Op: appliedOp, To: to, Weight: weight, Meta: meta})
		}
	}
}

// syntheticID derives a deterministic identity for an intermediate state
// from the (entry, rule) it expands, so repeated construction of the same
// expansion reuses the same OpID instead of proliferating identities
// (mirrors the solver's rule-id based auxiliary state reuse, spec.md §4.4).
func syntheticID(entryIdx, ruleIdx int) int {
	return entryIdx*1_000_003 + ruleIdx + 1
}

// nextPathStates advances the path-NFA on the (interface, router) symbol
// this rule consumes once it completes, branching into every NFA successor.
// DISCARD/RECEIVE rules have no via and consume a wildcard symbol, and stay
// at the current PathState when the NFA has no matching transition out of
// it -- they're not a hop the path regex tracks. A real hop (ru.Via != nil)
// that matches no outgoing transition is a dead end: emitRule must emit no
// successor rule for it rather than silently leaving PathState unchanged,
// or the PDA would accept paths the regex doesn't actually match.
func (p *PDA) nextPathStates(from int, ru rtable.Rule) []int {
	if ru.Via == nil {
		sym := query.PathSymbol{Interface: "*", Router: "*"}
		next := p.Query.Path.Step(from, sym)
		if len(next) == 0 {
			return []int{from}
		}
		return next
	}
	iface := p.Net.Interface(*ru.Via)
	sym := query.PathSymbol{Interface: iface.Name, Router: p.Net.Router(p.Net.RouterOf(iface.Match)).Name}
	return p.Query.Path.Step(from, sym)
}
