package verifier

import (
	"fmt"
	"testing"

	"netverify/query"
	"netverify/reducer"
	"netverify/solver"
)

func TestBatchRunnerPreservesOrder(t *testing.T) {
	net, tables := buildChainNetwork(t)
	runner, err := NewBatchRunner(net, tables, Options{ReductionLevel: reducer.None, Engine: solver.EnginePost}, 4)
	if err != nil {
		t.Fatalf("NewBatchRunner: %v", err)
	}
	defer runner.Close()

	var queries []*query.Query
	for i := 0; i < 10; i++ {
		queries = append(queries, buildQuery(fmt.Sprintf("q%d", i), query.Over))
	}

	reports := runner.RunAll(queries)
	if len(reports) != len(queries) {
		t.Fatalf("got %d reports, want %d", len(reports), len(queries))
	}
	for i, rep := range reports {
		want := fmt.Sprintf("q%d", i)
		if rep.Query != want {
			t.Errorf("report %d: Query = %q, want %q (order not preserved)", i, rep.Query, want)
		}
		if !rep.Modes[0].Reachable {
			t.Errorf("report %d: expected reachable", i)
		}
	}
}
