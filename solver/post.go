package solver

import (
	"netverify/label"
	"netverify/pda"
)

// IsFinal reports whether s is a state at which the remaining stack may be
// empty: every genuine control state accepts an empty remainder (the
// standard P-automaton convention), auxiliary states never do, since they
// only ever stand for "there is more stack below".
func IsFinal(s PState) bool { return s.Aux == 0 }

// saturate grows automaton a to a fixpoint by repeatedly applying idx's
// rules against a's edges, following the Schwoon-style mapping: Swap
// produces a direct edge, Pop closes an epsilon edge
// (propagated to every existing predecessor), Push threads through one
// interned auxiliary state per rule. It is used for both post* (forward,
// idx keyed by rule.From) and pre* (reversed, idx keyed by rule.To with
// From/To swapped -- see reversedIndex in pre.go).
func saturate(a *Automaton, idx map[pda.State][]pda.Rule, ruleID map[pda.Rule]int) {
	var queue []Edge
	for _, es := range a.edges {
		queue = append(queue, es...)
	}

	enqueue := func(e Edge, added bool) {
		if added {
			queue = append(queue, e)
		}
	}

	for len(queue) > 0 {
		e := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if e.From.Aux != 0 {
			continue // only genuine control states have outgoing PDA rules
		}
		for _, r := range idx[e.From.Ctrl] {
			if !label.Matches(r.Sym, e.Sym) {
				continue
			}
			j := Justification{Rule: &r, Pred: []Edge{e}}
			switch r.Op.Kind {
			case label.Swap:
				ne := Edge{From: ctrl(r.To), Sym: r.Op.Label, To: e.To}
				added := a.addEdge(ne, j)
				enqueue(ne, added)
				if added {
					a.propagate(ne, &queue)
				}
			case label.Pop:
				for _, pe := range a.addEpsilon(ctrl(r.To), e.To, j) {
					added := a.addEdge(pe, j)
					enqueue(pe, added)
					if added {
						a.propagate(pe, &queue)
					}
				}
				a.propagateEpsilon(ctrl(r.To), e.To, j, &queue)
			case label.Push:
				aux := a.auxForRule(ruleID[r])
				j.Extra = aux
				e1 := Edge{From: ctrl(r.To), Sym: r.Op.Label, To: aux}
				e2 := Edge{From: aux, Sym: e.Sym, To: e.To}
				if added := a.addEdge(e1, j); added {
					enqueue(e1, true)
					a.propagate(e1, &queue)
				}
				if added := a.addEdge(e2, j); added {
					enqueue(e2, true)
					a.propagate(e2, &queue)
				}
			}
		}
	}
}

// propagate re-roots every edge currently leaving newEdge.From at each
// predecessor reachable via an epsilon edge into newEdge.From (the
// "epsilon edges mean shared continuation" half of POP's semantics),
// pushing any newly discovered edge onto queue.
func (a *Automaton) propagate(newEdge Edge, queue *[]Edge) {
	var stack []PState
	stack = append(stack, newEdge.From)
	visited := map[PState]bool{newEdge.From: true}
	for len(stack) > 0 {
		y := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range a.epsIn[y] {
			ne := Edge{From: p, Sym: newEdge.Sym, To: newEdge.To}
			if a.addEdge(ne, Justification{Pred: []Edge{newEdge}}) {
				*queue = append(*queue, ne)
			}
			if !visited[p] {
				visited[p] = true
				stack = append(stack, p)
			}
		}
	}
}

// propagateEpsilon handles the symmetric case: a fresh epsilon edge
// from->to means every predecessor of from also now reaches every edge
// already leaving to, and every edge already leaving to must be re-rooted
// at from's predecessors too.
func (a *Automaton) propagateEpsilon(from, to PState, j Justification, queue *[]Edge) {
	for _, e := range a.edges[to] {
		ne := Edge{From: from, Sym: e.Sym, To: e.To}
		if a.addEdge(ne, j) {
			*queue = append(*queue, ne)
			a.propagate(ne, queue)
		}
	}
}

// Post runs post* for p: the P-automaton recognizing every configuration
// reachable from Init (spec.md §4.4).
func Post(p *pda.PDA) *Automaton {
	a := buildSeed(p)
	idx := p.Index()
	saturate(a, idx, ruleIDs(p))
	return a
}

func ruleIDs(p *pda.PDA) map[pda.Rule]int {
	ids := make(map[pda.Rule]int, len(p.Rules))
	for i, r := range p.Rules {
		if _, ok := ids[r]; !ok {
			ids[r] = i
		}
	}
	return ids
}
