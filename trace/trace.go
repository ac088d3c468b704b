// Package trace reconstructs a human-readable witness path from a solver
// result: the sequence of (router, outgoing interface, stack op) hops that
// realizes a reachable-or-not verdict, per spec.md §4.5.
package trace

import (
	"sort"

	"netverify/label"
	"netverify/network"
	"netverify/pda"
	"netverify/rtable"
	"netverify/solver"
)

// Hop is one router's contribution to a witness: every elementary stack op
// its routing rule synthesized into, in order, plus the interface and rule
// kind the rule ultimately resolves to (RECEIVE/DISCARD hops have no
// Interface).
type Hop struct {
	Router    string
	Interface string
	Kind      rtable.RuleKind
	Ops       []label.Op
}

// Trace is the full witness: the ordered hops and the cumulative weight of
// the rules that produced them (0 for an unweighted PDA).
type Trace struct {
	Hops   []Hop
	Weight uint64
}

// Extract walks a solver.Witness back through automaton a's justification
// records to the elementary PDA rules that produced it, groups consecutive
// rules synthesized from the same routing entry/rule into one Hop, and
// resolves each Hop's interface/kind against tables.
func Extract(net *network.Network, tables map[network.RouterID]*rtable.Table, a *solver.Automaton, w solver.Witness) Trace {
	rules := collectRules(a, w.Edges)
	return Trace{Hops: groupHops(net, tables, rules)}
}

// collectRules walks every Justification.Pred chain reachable from edges,
// depth-first with predecessors visited before the edge they justify, and
// returns the pda.Rule of each justified edge in that (causal) order.
func collectRules(a *solver.Automaton, edges []solver.Edge) []*pda.Rule {
	seen := make(map[solver.Edge]bool)
	var out []*pda.Rule
	var walk func(e solver.Edge)
	walk = func(e solver.Edge) {
		if seen[e] {
			return
		}
		seen[e] = true
		j, ok := a.Justification(e)
		if !ok {
			return
		}
		for _, pe := range j.Pred {
			walk(pe)
		}
		if j.Rule != nil {
			out = append(out, j.Rule)
		}
	}
	for _, e := range edges {
		walk(e)
	}
	return out
}

type groupKey struct {
	router   network.RouterID
	entryIdx int
	ruleIdx  int
}

func groupHops(net *network.Network, tables map[network.RouterID]*rtable.Table, rules []*pda.Rule) []Hop {
	order := make([]groupKey, 0, len(rules))
	members := make(map[groupKey][]*pda.Rule)
	for _, r := range rules {
		k := groupKey{r.Meta.Router, r.Meta.EntryIdx, r.Meta.RuleIdx}
		if _, ok := members[k]; !ok {
			order = append(order, k)
		}
		members[k] = append(members[k], r)
	}

	hops := make([]Hop, 0, len(order))
	for _, k := range order {
		group := members[k]
		sort.Slice(group, func(i, j int) bool { return group[i].Meta.OpOffset < group[j].Meta.OpOffset })

		hop := Hop{Router: net.Router(k.router).Name}
		for _, r := range group {
			hop.Ops = append(hop.Ops, r.Op)
		}
		if table := tables[k.router]; table != nil {
			entries := table.Entries()
			if k.entryIdx >= 0 && k.entryIdx < len(entries) {
				entry := entries[k.entryIdx]
				if k.ruleIdx >= 0 && k.ruleIdx < len(entry.Rules) {
					ru := entry.Rules[k.ruleIdx]
					hop.Kind = ru.Kind
					if ru.Via != nil {
						hop.Interface = net.Interface(*ru.Via).Name
					}
				}
			}
		}
		hops = append(hops, hop)
	}
	return hops
}
