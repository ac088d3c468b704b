// Package query holds the parsed query automaton the core consumes: the
// path-NFA constraining the sequence of hops a witness may take, the
// initial/final header-regex NFAs constraining the label stack, the
// tolerated-failure bound k, and the approximation mode. Concrete surface
// syntax is parsed elsewhere (out of scope per spec.md §1); this package
// only represents the already-built automata.
package query

import "netverify/label"

// LabelNFA is a nondeterministic finite automaton over label.Label symbols,
// used for the initial-header and final-header regex constraints (spec.md
// §3). States are dense integers 0..N-1; epsilon transitions are supported
// so that regex-to-NFA translators (out of core scope) don't need to avoid
// them, but per spec.md §3's invariant, epsilon cycles through
// non-consuming states are not permitted in a well-formed NFA.
type LabelNFA struct {
	NumStates int
	Start     []int
	Accept    map[int]bool
	trans     map[int][]labelEdge
	eps       map[int][]int
}

type labelEdge struct {
	Label label.Label
	To    int
}

// NewLabelNFA creates an empty automaton with n states.
func NewLabelNFA(n int) *LabelNFA {
	return &LabelNFA{
		NumStates: n,
		Accept:    make(map[int]bool),
		trans:     make(map[int][]labelEdge),
		eps:       make(map[int][]int),
	}
}

// AddTransition adds a consuming transition from -> to on lbl.
func (a *LabelNFA) AddTransition(from int, lbl label.Label, to int) {
	a.trans[from] = append(a.trans[from], labelEdge{Label: lbl, To: to})
}

// AddEpsilon adds a non-consuming transition from -> to.
func (a *LabelNFA) AddEpsilon(from, to int) {
	a.eps[from] = append(a.eps[from], to)
}

// EpsilonClosure returns the set of states reachable from states via zero
// or more epsilon transitions.
func (a *LabelNFA) EpsilonClosure(states []int) []int {
	seen := make(map[int]bool, len(states))
	var stack []int
	for _, s := range states {
		if !seen[s] {
			seen[s] = true
			stack = append(stack, s)
		}
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, t := range a.eps[s] {
			if !seen[t] {
				seen[t] = true
				stack = append(stack, t)
			}
		}
	}
	out := make([]int, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	return out
}

// Step returns all states reachable from `from` by consuming lbl, including
// the epsilon-closure before and after the consuming transition.
func (a *LabelNFA) Step(from int, lbl label.Label) []int {
	var out []int
	for _, s := range a.EpsilonClosure([]int{from}) {
		for _, e := range a.trans[s] {
			if label.Matches(e.Label, lbl) {
				out = append(out, e.To)
			}
		}
	}
	return a.EpsilonClosure(out)
}

// Transition is one consuming edge of a LabelNFA, exposed for callers (such
// as the solver's seed/terminal product construction) that need to walk the
// automaton's structure directly instead of only querying Step.
type Transition struct {
	Label label.Label
	To    int
}

// TransitionsFrom returns the consuming transitions reachable from the
// epsilon-closure of from (not further epsilon-closed at the destination).
func (a *LabelNFA) TransitionsFrom(from int) []Transition {
	var out []Transition
	for _, s := range a.EpsilonClosure([]int{from}) {
		for _, e := range a.trans[s] {
			out = append(out, Transition{Label: e.Label, To: e.To})
		}
	}
	return out
}

// AcceptsEmpty reports whether the automaton accepts the empty stack, i.e.
// whether any state in the epsilon-closure of Start is accepting.
func (a *LabelNFA) AcceptsEmpty() bool {
	for _, s := range a.EpsilonClosure(a.Start) {
		if a.Accept[s] {
			return true
		}
	}
	return false
}

// AcceptsStack reports whether the automaton accepts the full label stack
// (bottom to top, stack[0] is the bottom).
func (a *LabelNFA) AcceptsStack(stack []label.Label) bool {
	current := a.EpsilonClosure(a.Start)
	for _, l := range stack {
		var next []int
		for _, s := range current {
			next = append(next, a.Step(s, l)...)
		}
		current = a.EpsilonClosure(dedupe(next))
		if len(current) == 0 {
			return false
		}
	}
	for _, s := range current {
		if a.Accept[s] {
			return true
		}
	}
	return false
}

func dedupe(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
