package pda

import (
	"testing"

	"netverify/label"
	"netverify/network"
	"netverify/query"
	"netverify/rtable"
)

// buildLinearNetwork constructs A -> B -> NULL, with A popping MPLS label 5
// and forwarding to B, and B receiving any packet whose top label is an IP
// destination.
func buildLinearNetwork(t *testing.T) (*network.Network, map[network.RouterID]*rtable.Table) {
	t.Helper()
	net := network.New()
	a, err := net.AddRouter("A")
	if err != nil {
		t.Fatalf("AddRouter(A): %v", err)
	}
	b, err := net.AddRouter("B")
	if err != nil {
		t.Fatalf("AddRouter(B): %v", err)
	}
	aOut, err := net.AddInterface(a, "a-out")
	if err != nil {
		t.Fatalf("AddInterface: %v", err)
	}
	bIn, err := net.AddInterface(b, "b-in")
	if err != nil {
		t.Fatalf("AddInterface: %v", err)
	}
	if err := net.Pair(aOut, bIn); err != nil {
		t.Fatalf("Pair: %v", err)
	}

	tables := make(map[network.RouterID]*rtable.Table)
	aTable := rtable.NewTable("A")
	if err := aTable.AddEntry(rtable.Entry{
		Key:   rtable.Key{Top: label.MPLSLabel(5)},
		Rules: []rtable.Rule{{Via: &aOut, Kind: rtable.RuleMPLS, Ops: []label.Op{{Kind: label.Pop}}}},
	}); err != nil {
		t.Fatalf("AddEntry A: %v", err)
	}
	tables[a] = aTable

	bTable := rtable.NewTable("B")
	if err := bTable.AddEntry(rtable.Entry{
		Key:   rtable.Key{Top: label.Label{Kind: label.AnyIP}},
		Rules: []rtable.Rule{{Kind: rtable.RuleReceive}},
	}); err != nil {
		t.Fatalf("AddEntry B: %v", err)
	}
	tables[b] = bTable

	return net, tables
}

func buildReachabilityQuery() *query.Query {
	path := query.NewPathNFA(2)
	path.Start = []int{0}
	path.Accept[1] = true
	path.AddTransition(0, query.PathSymbol{Interface: "*", Router: "*"}, 1)

	init := query.NewLabelNFA(1)
	init.Start = []int{0}
	init.Accept[0] = true

	final := query.NewLabelNFA(1)
	final.Start = []int{0}
	final.Accept[0] = true

	return &query.Query{Text: "A to B", InitialHeader: init, Path: path, FinalHeader: final, K: 1, Mode: query.Over}
}

func TestBuildRejectsDualMode(t *testing.T) {
	net, tables := buildLinearNetwork(t)
	q := buildReachabilityQuery()
	q.Mode = query.Dual
	if _, err := Build(net, tables, q, query.Dual, nil); err == nil {
		t.Errorf("expected Build to reject Dual mode")
	}
}

func TestBuildProducesRulesForEachRouter(t *testing.T) {
	net, tables := buildLinearNetwork(t)
	q := buildReachabilityQuery()
	p, err := Build(net, tables, q, query.Over, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.Rules) == 0 {
		t.Fatalf("expected at least one rule")
	}
	if len(p.Init) == 0 {
		t.Fatalf("expected at least one initial state")
	}
}

func TestAccepting(t *testing.T) {
	net, tables := buildLinearNetwork(t)
	q := buildReachabilityQuery()
	p, err := Build(net, tables, q, query.Over, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	bID, _ := net.RouterByName("B")
	accept := State{Router: network.NullRouterID, PathState: 1, OpID: -1}
	if !p.Accepting(accept) {
		t.Errorf("expected null-router state with accepting path state to be accepting")
	}

	notNull := State{Router: bID, PathState: 1, OpID: -1}
	if p.Accepting(notNull) {
		t.Errorf("non-null router state should never be accepting")
	}

	pending := State{Router: network.NullRouterID, PathState: 1, OpID: 5}
	if p.Accepting(pending) {
		t.Errorf("a mid-expansion state should never be accepting")
	}
}

// TestNextPathStatesRealHopDeadEndsWhenNoTransitionMatches covers the
// counterexample from the nextPathStates review: a path-NFA whose only
// transition requires landing at a named router ("B" or "C") must reject a
// real hop that lands somewhere else, not silently hold the PathState.
func TestNextPathStatesRealHopDeadEndsWhenNoTransitionMatches(t *testing.T) {
	net, tables := buildLinearNetwork(t)

	var aOut network.InterfaceID
	for _, iface := range net.Interfaces() {
		if iface.Name == "a-out" {
			aOut = iface.ID
		}
	}
	ru := rtable.Rule{Via: &aOut, Kind: rtable.RuleMPLS, Ops: []label.Op{{Kind: label.Pop}}}

	matching := query.NewPathNFA(2)
	matching.Start = []int{0}
	matching.Accept[1] = true
	matching.AddTransition(0, query.PathSymbol{Interface: "*", Router: "B"}, 1)

	q := buildReachabilityQuery()
	q.Path = matching
	p, err := Build(net, tables, q, query.Over, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := p.nextPathStates(0, ru); len(got) != 1 || got[0] != 1 {
		t.Errorf("nextPathStates(real hop into B, transition to B) = %v, want [1]", got)
	}

	nonMatching := query.NewPathNFA(2)
	nonMatching.Start = []int{0}
	nonMatching.Accept[1] = true
	nonMatching.AddTransition(0, query.PathSymbol{Interface: "*", Router: "C"}, 1)

	q2 := buildReachabilityQuery()
	q2.Path = nonMatching
	p2, err := Build(net, tables, q2, query.Over, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := p2.nextPathStates(0, ru); len(got) != 0 {
		t.Errorf("nextPathStates(real hop into B, transition requires C) = %v, want empty (dead end)", got)
	}
}

// TestBuildOmitsRuleWhenHopDeadEnds is the end-to-end counterpart: when a
// real hop dead-ends against the path-NFA, Build must not synthesize any
// rule crossing it, because emitRule's final-op loop (factory.go) ranges
// over nextPathStates' result.
func TestBuildOmitsRuleWhenHopDeadEnds(t *testing.T) {
	net, tables := buildLinearNetwork(t)
	aID, _ := net.RouterByName("A")

	nonMatching := query.NewPathNFA(2)
	nonMatching.Start = []int{0}
	nonMatching.Accept[1] = true
	nonMatching.AddTransition(0, query.PathSymbol{Interface: "*", Router: "C"}, 1)

	q := buildReachabilityQuery()
	q.Path = nonMatching
	p, err := Build(net, tables, q, query.Over, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, r := range p.Rules {
		if r.From.Router == aID {
			t.Errorf("expected no rule leaving A once its only hop dead-ends against the path-NFA, got %+v", r)
		}
	}
}

func TestIndexGroupsRulesByFrom(t *testing.T) {
	net, tables := buildLinearNetwork(t)
	q := buildReachabilityQuery()
	p, err := Build(net, tables, q, query.Over, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	idx := p.Index()
	total := 0
	for from, rules := range idx {
		total += len(rules)
		for _, r := range rules {
			if r.From != from {
				t.Errorf("rule grouped under wrong From state")
			}
		}
	}
	if total != len(p.Rules) {
		t.Errorf("Index lost rules: got %d, want %d", total, len(p.Rules))
	}
}
