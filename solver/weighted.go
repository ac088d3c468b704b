package solver

import (
	"netverify/label"
	"netverify/pda"
)

// saturateWeighted grows a exactly as saturate does, but orders the
// worklist by cumulative weight (a min-heap, see heap.go) instead of a
// plain stack, and only relaxes an edge when a strictly cheaper witness is
// found -- the Dijkstra-style discipline spec.md §4.4's weighted variant
// needs to report a shortest trace rather than merely "some trace exists".
// Valid because rule weights are non-negative, so cumulative weight never
// decreases along a path.
func saturateWeighted(a *Automaton, idx map[pda.State][]pda.Rule, ruleID map[pda.Rule]int) {
	a.Weight = make(map[Edge]uint64)
	var pq edgeHeap
	for _, es := range a.edges {
		for _, e := range es {
			if _, ok := a.Weight[e]; !ok {
				a.Weight[e] = 0
				pq.insert(weightedEdge{weight: 0, edge: e})
			}
		}
	}

	relax := func(e Edge, w uint64, j Justification) bool {
		cur, seen := a.Weight[e]
		if seen && cur <= w {
			return false
		}
		a.Weight[e] = w
		a.addEdge(e, j) // addEdge is a no-op on structure if already present; justification still refreshed below
		a.justify[e] = j
		return true
	}

	for !pq.empty() {
		we := pq.pop()
		e := we.edge
		if w, ok := a.Weight[e]; ok && w < we.weight {
			continue // stale heap entry, a cheaper path already settled this edge
		}
		if e.From.Aux != 0 {
			continue
		}
		for _, r := range idx[e.From.Ctrl] {
			if !label.Matches(r.Sym, e.Sym) {
				continue
			}
			j := Justification{Rule: &r, Pred: []Edge{e}}
			step := we.weight + uint64(r.Weight)
			switch r.Op.Kind {
			case label.Swap:
				ne := Edge{From: ctrl(r.To), Sym: r.Op.Label, To: e.To}
				if relax(ne, step, j) {
					pq.insert(weightedEdge{weight: step, edge: ne})
					a.propagateWeighted(ne, step, &pq)
				}
			case label.Pop:
				for _, pe := range a.addEpsilon(ctrl(r.To), e.To, j) {
					if relax(pe, step, j) {
						pq.insert(weightedEdge{weight: step, edge: pe})
						a.propagateWeighted(pe, step, &pq)
					}
				}
			case label.Push:
				aux := a.auxForRule(ruleID[r])
				j.Extra = aux
				e1 := Edge{From: ctrl(r.To), Sym: r.Op.Label, To: aux}
				e2 := Edge{From: aux, Sym: e.Sym, To: e.To}
				if relax(e1, step, j) {
					pq.insert(weightedEdge{weight: step, edge: e1})
					a.propagateWeighted(e1, step, &pq)
				}
				if relax(e2, step, j) {
					pq.insert(weightedEdge{weight: step, edge: e2})
					a.propagateWeighted(e2, step, &pq)
				}
			}
		}
	}
}

func (a *Automaton) propagateWeighted(newEdge Edge, w uint64, pq *edgeHeap) {
	for _, p := range a.epsIn[newEdge.From] {
		ne := Edge{From: p, Sym: newEdge.Sym, To: newEdge.To}
		cur, seen := a.Weight[ne]
		if seen && cur <= w {
			continue
		}
		a.Weight[ne] = w
		a.addEdge(ne, Justification{Pred: []Edge{newEdge}})
		pq.insert(weightedEdge{weight: w, edge: ne})
		a.propagateWeighted(ne, w, pq)
	}
}

// PostWeighted is Post's weighted counterpart: the returned automaton's
// Weight map gives the cheapest cumulative rule weight known to produce
// each edge.
func PostWeighted(p *pda.PDA) *Automaton {
	a := buildSeed(p)
	saturateWeighted(a, p.Index(), ruleIDs(p))
	return a
}

// PreWeighted is Pre's weighted counterpart.
func PreWeighted(p *pda.PDA) *Automaton {
	a := buildTerminal(p)
	idx, ids := reversedIndex(p)
	saturateWeighted(a, idx, ids)
	return a
}
