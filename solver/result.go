package solver

import (
	"fmt"

	"netverify/label"
	"netverify/pda"
	"netverify/query"
)

// Engine selects which saturation direction Solve runs: spec.md §6's CLI
// surface exposes this as `-e|--engine {0,1,2}`.
type Engine int

const (
	// EngineNone skips saturation entirely; Solve reports no verdict.
	EngineNone Engine = iota
	// EnginePost runs post* (the default): sound for OVER's NO and the only
	// engine shortest-trace weighting is defined for.
	EnginePost
	// EnginePre runs pre*, via the rule-reversal approximation documented
	// on reverseRule.
	EnginePre
)

// ParseEngine validates a CLI/config engine selector; anything outside
// {0,1,2} is a usage error per spec.md §7.
func ParseEngine(n int) (Engine, error) {
	if n < int(EngineNone) || n > int(EnginePre) {
		return 0, fmt.Errorf("solver: invalid engine %d, want 0..2", n)
	}
	return Engine(n), nil
}

func (e Engine) String() string {
	switch e {
	case EnginePost:
		return "Post*"
	case EnginePre:
		return "Pre*"
	default:
		return ""
	}
}

// Witness records enough of a successful intersection search to drive trace
// extraction (spec.md §4.5): the root control state it started from (an
// accepting state for post*, an Init state for pre*) and the chain of
// automaton edges consumed on the way to an accepting product state.
// Each edge's Justification (stored on the Automaton it came from) expands
// back to the PDA rule(s) that produced it.
type Witness struct {
	Root  pda.State
	Edges []Edge
}

// Result is the outcome of one saturation-based query evaluation.
type Result struct {
	Engine    Engine
	NonEmpty  bool
	Weighted  bool
	Weight    uint64 // cumulative rule weight of the reported witness, if Weighted
	Automaton *Automaton
	Witness   Witness
}

// Solve runs the given engine over p and checks for a reachable accepting
// configuration -- the complete decision procedure of spec.md §4.4 for one
// (network, query, mode) instance. EngineNone skips saturation and reports
// no verdict, matching spec.md §4.6's "engine 0 (no verification)".
// Shortest-trace weighting (p.Weighted) is only defined for EnginePost,
// per spec.md §4.6 ("shortest-trace requires engine 1").
func Solve(p *pda.PDA, engine Engine) (*Result, error) {
	if err := p.Query.Validate(); err != nil {
		return nil, err
	}
	if engine == EngineNone {
		return &Result{Engine: EngineNone}, nil
	}
	if p.Weighted && engine != EnginePost {
		return nil, fmt.Errorf("solver: shortest-trace weighting requires engine=1 (post*), got %v", engine)
	}

	if p.Weighted {
		a := PostWeighted(p)
		found, w, wit := intersectWeighted(a, acceptingStates(p), p.Query.FinalHeader)
		return &Result{Engine: engine, NonEmpty: found, Weighted: true, Weight: w, Automaton: a, Witness: wit}, nil
	}

	if engine == EnginePre {
		a := Pre(p)
		found, wit := intersect(a, p.Init, p.Query.InitialHeader)
		return &Result{Engine: engine, NonEmpty: found, Automaton: a, Witness: wit}, nil
	}

	a := Post(p)
	found, wit := intersect(a, acceptingStates(p), p.Query.FinalHeader)
	return &Result{Engine: engine, NonEmpty: found, Automaton: a, Witness: wit}, nil
}

// headerAccepts reports whether h, or any state in its epsilon-closure, is
// an accepting header-NFA state -- acceptance must be checked post-closure
// since a transition lands on a raw state, not its closure.
func headerAccepts(header *query.LabelNFA, h int) bool {
	for _, s := range header.EpsilonClosure([]int{h}) {
		if header.Accept[s] {
			return true
		}
	}
	return false
}

// intersect runs a synchronized BFS over automaton a and header, starting
// at every root's control state, and reports whether an accepting
// (control-state, header-accept-state) pair is reachable.
func intersect(a *Automaton, roots []pda.State, header *query.LabelNFA) (bool, Witness) {
	type pair struct {
		s PState
		h int
	}
	type parent struct {
		p    pair
		via  Edge
		root pda.State
	}
	seen := make(map[pair]bool)
	back := make(map[pair]parent)
	var queue []pair
	var rootOf = make(map[pair]pda.State)

	push := func(pr pair, from pair, via Edge, root pda.State) {
		if seen[pr] {
			return
		}
		seen[pr] = true
		back[pr] = parent{p: from, via: via, root: root}
		rootOf[pr] = root
		queue = append(queue, pr)
	}

	for _, r := range roots {
		for _, h0 := range header.EpsilonClosure(header.Start) {
			pr := pair{ctrl(r), h0}
			if !seen[pr] {
				seen[pr] = true
				rootOf[pr] = r
				queue = append(queue, pr)
			}
		}
	}

	var found *pair
	for i := 0; i < len(queue) && found == nil; i++ {
		cur := queue[i]
		if IsFinal(cur.s) && headerAccepts(header, cur.h) {
			found = &cur
			break
		}
		for _, e := range a.EdgesFrom(cur.s) {
			for _, t := range header.TransitionsFrom(cur.h) {
				if label.PatternsCompatible(e.Sym, t.Label) {
					push(pair{e.To, t.To}, cur, e, rootOf[cur])
				}
			}
		}
		for _, to := range a.epsOut[cur.s] {
			push(pair{to, cur.h}, cur, Edge{}, rootOf[cur])
		}
	}
	if found == nil {
		return false, Witness{}
	}

	var edges []Edge
	cur := *found
	for {
		p, ok := back[cur]
		if !ok {
			break
		}
		if p.via != (Edge{}) {
			edges = append([]Edge{p.via}, edges...)
		}
		cur = p.p
	}
	return true, Witness{Root: rootOf[*found], Edges: edges}
}

// intersectWeighted is intersect's weighted counterpart: it explores in
// order of cumulative edge weight (via a's Weight map, populated by
// PostWeighted/PreWeighted) rather than plain BFS order, so the first
// accepting pair it settles is a cheapest witness.
func intersectWeighted(a *Automaton, roots []pda.State, header *query.LabelNFA) (bool, uint64, Witness) {
	type pair = hpair
	type parent struct {
		p   pair
		via Edge
	}
	best := make(map[pair]uint64)
	back := make(map[pair]parent)
	rootOf := make(map[pair]pda.State)

	var pq itemHeap
	push := func(pr pair, w uint64, via Edge, fr pair, root pda.State) {
		if cur, ok := best[pr]; ok && cur <= w {
			return
		}
		best[pr] = w
		back[pr] = parent{p: fr, via: via}
		if _, ok := rootOf[pr]; !ok {
			rootOf[pr] = root
		}
		pq.insert(hitem{w: w, pr: pr})
	}

	for _, r := range roots {
		for _, h0 := range header.EpsilonClosure(header.Start) {
			push(pair{ctrl(r), h0}, 0, Edge{}, pair{}, r)
		}
	}

	var foundPair pair
	var foundWeight uint64
	found := false
	for !pq.empty() {
		cur := pq.pop()
		if w, ok := best[cur.pr]; ok && w < cur.w {
			continue // stale: a cheaper path already settled this pair
		}
		if IsFinal(cur.pr.s) && headerAccepts(header, cur.pr.h) {
			foundPair, foundWeight, found = cur.pr, cur.w, true
			break
		}
		for _, e := range a.EdgesFrom(cur.pr.s) {
			ew, ok := a.Weight[e]
			if !ok {
				ew = 0
			}
			for _, t := range header.TransitionsFrom(cur.pr.h) {
				if label.PatternsCompatible(e.Sym, t.Label) {
					push(pair{e.To, t.To}, cur.w+ew, e, cur.pr, rootOf[cur.pr])
				}
			}
		}
		for _, to := range a.epsOut[cur.pr.s] {
			push(pair{to, cur.pr.h}, cur.w, Edge{}, cur.pr, rootOf[cur.pr])
		}
	}
	if !found {
		return false, 0, Witness{}
	}

	var edges []Edge
	cur := foundPair
	for {
		p, ok := back[cur]
		if !ok {
			break
		}
		if p.via != (Edge{}) {
			edges = append([]Edge{p.via}, edges...)
		}
		cur = p.p
	}
	return true, foundWeight, Witness{Root: rootOf[foundPair], Edges: edges}
}
