package trace

import (
	"testing"

	"netverify/label"
	"netverify/network"
	"netverify/pda"
	"netverify/query"
	"netverify/rtable"
	"netverify/solver"
)

func buildChainPDA(t *testing.T) (*network.Network, map[network.RouterID]*rtable.Table, *pda.PDA) {
	t.Helper()
	net := network.New()
	a, _ := net.AddRouter("A")
	b, _ := net.AddRouter("B")
	aOut, _ := net.AddInterface(a, "out")
	bIn, _ := net.AddInterface(b, "in")
	if err := net.Pair(aOut, bIn); err != nil {
		t.Fatalf("Pair: %v", err)
	}

	tables := make(map[network.RouterID]*rtable.Table)
	aTable := rtable.NewTable("A")
	aTable.AddEntry(rtable.Entry{
		Key:   rtable.Key{Top: label.MPLSLabel(5)},
		Rules: []rtable.Rule{{Via: &aOut, Kind: rtable.RuleMPLS, Ops: []label.Op{{Kind: label.Pop}}}},
	})
	tables[a] = aTable
	bTable := rtable.NewTable("B")
	bTable.AddEntry(rtable.Entry{Key: rtable.Key{Top: label.Label{Kind: label.AnyIP}}, Rules: []rtable.Rule{{Kind: rtable.RuleReceive}}})
	tables[b] = bTable

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

	q := &query.Query{Text: "q", InitialHeader: init, Path: path, FinalHeader: final, K: 1, Mode: query.Over}
	p, err := pda.Build(net, tables, q, query.Over, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return net, tables, p
}

func TestExtractProducesHopsForReachableWitness(t *testing.T) {
	net, tables, p := buildChainPDA(t)
	res, err := solver.Solve(p, solver.EnginePost)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !res.NonEmpty {
		t.Fatalf("expected the chain network to be reachable")
	}

	tr := Extract(net, tables, res.Automaton, res.Witness)
	if len(tr.Hops) == 0 {
		t.Fatalf("expected at least one hop in the extracted trace")
	}
	first := tr.Hops[0]
	if first.Router != "A" {
		t.Errorf("first hop router = %q, want A", first.Router)
	}
	if len(first.Ops) == 0 {
		t.Errorf("expected router A's hop to carry its Pop op")
	}
}

func TestExtractProducesHopsForPreEngineWitness(t *testing.T) {
	net, tables, p := buildChainPDA(t)
	res, err := solver.Solve(p, solver.EnginePre)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !res.NonEmpty {
		t.Fatalf("expected the chain network to be reachable under pre* too")
	}

	tr := Extract(net, tables, res.Automaton, res.Witness)
	if len(tr.Hops) == 0 {
		t.Fatalf("expected at least one hop in the pre*-derived trace")
	}
	if tr.Hops[0].Router != "A" {
		t.Errorf("first hop router = %q, want A (reverseRule must preserve Meta for this to resolve)", tr.Hops[0].Router)
	}
}

func TestExtractOnEmptyWitnessYieldsNoHops(t *testing.T) {
	net, tables, _ := buildChainPDA(t)
	tr := Extract(net, tables, &solver.Automaton{}, solver.Witness{})
	if len(tr.Hops) != 0 {
		t.Errorf("expected no hops for an empty witness, got %v", tr.Hops)
	}
}
