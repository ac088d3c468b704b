package solver

import (
	"fmt"

	"netverify/pda"
	"netverify/query"
)

// seedProductKey identifies one (PDA state, header-NFA state) pair of the
// product construction used to seed/terminate the P-automaton against a
// header regex.
//
// Reading convention: the header NFAs are read top-of-stack first, so an
// accepting header-NFA state corresponds to "the whole stack, read from the
// top down, has been consumed" -- i.e. the bottom of the stack.
func seedProductKey(q pda.State, h int) string {
	return fmt.Sprintf("%v|%d", q, h)
}

// buildProduct grows automaton a with one product chain per (root, header
// NFA) pair: roots is the set of PDA control states the product is rooted
// at, and header is the LabelNFA read top-down from each root. Shared by
// buildSeed (post*, rooted at Init, against InitialHeader) and buildTerminal
// (pre*, rooted at the accepting states, against FinalHeader).
func buildProduct(a *Automaton, roots []pda.State, header *query.LabelNFA) {
	product := func(q pda.State, h int) PState {
		return a.auxForRuleKey(seedProductKey(q, h))
	}

	type frontierItem struct {
		q pda.State
		h int
	}
	var frontier []frontierItem
	seen := make(map[string]bool)

	visit := func(q pda.State, h int) {
		key := seedProductKey(q, h)
		if seen[key] {
			return
		}
		seen[key] = true
		a.Accept[product(q, h)] = header.Accept[h]
		frontier = append(frontier, frontierItem{q, h})
	}

	for _, q := range roots {
		root := ctrl(q)
		for _, h0 := range header.EpsilonClosure(header.Start) {
			a.addEpsilon(root, product(q, h0), Justification{})
			visit(q, h0)
		}
	}

	for len(frontier) > 0 {
		cur := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		from := product(cur.q, cur.h)
		for _, trans := range header.TransitionsFrom(cur.h) {
			to := product(cur.q, trans.To)
			a.addEdge(Edge{From: from, Sym: trans.Label, To: to}, Justification{})
			visit(cur.q, trans.To)
		}
	}
}

// buildSeed constructs A0 for post* (spec.md §4.4's seed automaton
// recognising the initial configurations): one product chain per Init
// state, against the query's initial-header NFA.
func buildSeed(p *pda.PDA) *Automaton {
	a := newAutomaton(p)
	buildProduct(a, p.Init, p.Query.InitialHeader)
	return a
}

// buildTerminal constructs the seed automaton for pre*: one product chain
// per accepting PDA control state, against the query's final-header NFA,
// read the same top-down way as the initial header so pre* and post* share
// one convention.
func buildTerminal(p *pda.PDA) *Automaton {
	a := newAutomaton(p)
	buildProduct(a, acceptingStates(p), p.Query.FinalHeader)
	return a
}

// acceptingStates collects every control state the factory actually
// produced (across Init and every rule's endpoints) that PDA.Accepting
// reports as accepting. The factory never materializes a roster of all
// control states up front, so post*'s intersection search (Solve) and
// pre*'s terminal seed both derive it this way instead.
func acceptingStates(p *pda.PDA) []pda.State {
	seen := make(map[pda.State]bool)
	var out []pda.State
	add := func(s pda.State) {
		if seen[s] || !p.Accepting(s) {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, s := range p.Init {
		add(s)
	}
	for _, r := range p.Rules {
		add(r.From)
		add(r.To)
	}
	return out
}
