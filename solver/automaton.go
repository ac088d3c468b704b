// Package solver implements the saturation algorithms of spec.md §4.4:
// pre* and post* over a P-automaton representing a regular set of PDA
// configurations, plus a weighted variant that tracks shortest-trace
// weight instead of mere reachability.
package solver

import (
	"netverify/label"
	"netverify/pda"
)

// PState is one state of the P-automaton: either a genuine PDA control
// state, or one of the auxiliary states the saturation algorithm allocates
// (for push rules and for the product construction used to seed/terminate
// against the header-regex NFAs). Keeping it a flat comparable struct lets
// it serve directly as a map key, per the same rationale as pda.State.
type PState struct {
	Ctrl pda.State
	Aux  int // 0 for a genuine control state; otherwise an interned aux id
}

// Edge is one transition of the P-automaton: from Ctrl/Aux state, reading
// Sym, to state To.
type Edge struct {
	From PState
	Sym  label.Label
	To   PState
}

// Justification records, for one saturation-added edge, the rule and the
// predecessor edge(s) that produced it -- the basis for trace extraction
// (spec.md §4.5).
type Justification struct {
	Rule  *pda.Rule // nil for a seed edge
	Pred  []Edge
	Extra PState // the fresh push-auxiliary state, when Rule is a push
}

// Automaton is the P-automaton built and grown by saturation.
type Automaton struct {
	PDA *pda.PDA

	edges  map[PState][]Edge
	epsIn  map[PState][]PState // p' such that there is an epsilon edge p' -> key
	epsOut map[PState][]PState

	Accept map[PState]bool // fixed at seed time, never mutated by saturation

	justify map[Edge]Justification

	// Weight holds the best known cumulative rule weight that produced an
	// edge, populated only by the weighted saturation entry points
	// (PostWeighted/PreWeighted); nil otherwise.
	Weight map[Edge]uint64

	auxByRule map[int]int    // rule index -> interned aux id, for push-state reuse
	auxByKey  map[string]int // arbitrary key -> interned aux id, for seed/terminal product states
	nextAux   int
}

func newAutomaton(p *pda.PDA) *Automaton {
	return &Automaton{
		PDA:       p,
		edges:     make(map[PState][]Edge),
		epsIn:     make(map[PState][]PState),
		epsOut:    make(map[PState][]PState),
		Accept:    make(map[PState]bool),
		justify:   make(map[Edge]Justification),
		auxByRule: make(map[int]int),
		auxByKey:  make(map[string]int),
		nextAux:   1,
	}
}

func ctrl(s pda.State) PState { return PState{Ctrl: s} }

func (a *Automaton) hasEdge(e Edge) bool {
	for _, x := range a.edges[e.From] {
		if x == e {
			return true
		}
	}
	return false
}

// addEdge adds e if new, records its justification, and returns whether it
// was newly added (callers use this to decide whether to re-enqueue it).
func (a *Automaton) addEdge(e Edge, j Justification) bool {
	if a.hasEdge(e) {
		return false
	}
	a.edges[e.From] = append(a.edges[e.From], e)
	a.justify[e] = j
	return true
}

func (a *Automaton) addEpsilon(from, to PState, j Justification) []Edge {
	var propagated []Edge
	alreadyKnown := false
	for _, t := range a.epsOut[from] {
		if t == to {
			alreadyKnown = true
			break
		}
	}
	if !alreadyKnown {
		a.epsOut[from] = append(a.epsOut[from], to)
		a.epsIn[to] = append(a.epsIn[to], from)
		a.justify[Edge{From: from, Sym: label.Wildcard(), To: to}] = j
		// Propagate: every edge already leaving `to` is now also directly
		// reachable from `from` (spec.md §4.4 "POP closes an edge").
		for _, e := range a.edges[to] {
			propagated = append(propagated, Edge{From: from, Sym: e.Sym, To: e.To})
		}
	}
	return propagated
}

// auxForRule interns the fresh push-auxiliary state for rule ruleIdx, so
// repeated saturation of the same push rule reuses one state identity
// instead of proliferating states (spec.md §4.4 "Fresh auxiliary state
// identity is by rule-id").
func (a *Automaton) auxForRule(ruleIdx int) PState {
	if id, ok := a.auxByRule[ruleIdx]; ok {
		return PState{Aux: id}
	}
	id := a.nextAux
	a.nextAux++
	a.auxByRule[ruleIdx] = id
	return PState{Aux: id}
}

// auxForRuleKey interns the fresh auxiliary state for an arbitrary string
// key, so repeated calls for the same key (e.g. a seed/terminal product
// state) reuse one state identity instead of proliferating states.
func (a *Automaton) auxForRuleKey(key string) PState {
	if id, ok := a.auxByKey[key]; ok {
		return PState{Aux: id}
	}
	id := a.nextAux
	a.nextAux++
	a.auxByKey[key] = id
	return PState{Aux: id}
}

// EdgesFrom returns the real (non-epsilon) outgoing edges of s.
func (a *Automaton) EdgesFrom(s PState) []Edge { return a.edges[s] }

// Justification looks up why e was added, if it was.
func (a *Automaton) Justification(e Edge) (Justification, bool) {
	j, ok := a.justify[e]
	return j, ok
}
