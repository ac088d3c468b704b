package query

import "testing"

func buildMinimalQuery(t *testing.T) *Query {
	t.Helper()
	path := NewPathNFA(1)
	path.Start = []int{0}
	path.Accept[0] = true
	init := NewLabelNFA(1)
	init.Start = []int{0}
	init.Accept[0] = true
	final := NewLabelNFA(1)
	final.Start = []int{0}
	final.Accept[0] = true
	return &Query{Text: "q1", InitialHeader: init, Path: path, FinalHeader: final, K: 1, Mode: Dual}
}

func TestValidateRejectsMissingAutomata(t *testing.T) {
	q := &Query{K: 0, Mode: Over}
	if err := q.Validate(); err == nil {
		t.Errorf("expected error for missing automata")
	}
}

func TestValidateRejectsNegativeK(t *testing.T) {
	q := buildMinimalQuery(t)
	q.K = -1
	if err := q.Validate(); err == nil {
		t.Errorf("expected error for negative k")
	}
}

func TestValidateRejectsEpsilonSelfLoop(t *testing.T) {
	q := buildMinimalQuery(t)
	q.Path.AddEpsilon(0, 0)
	if err := q.Validate(); err == nil {
		t.Errorf("expected error for epsilon self-loop")
	}
}

func TestModesExpandsDual(t *testing.T) {
	q := buildMinimalQuery(t)
	q.Mode = Dual
	modes := q.Modes()
	if len(modes) != 2 || modes[0] != Over || modes[1] != Under {
		t.Errorf("Modes() for Dual = %v, want [Over Under]", modes)
	}
}

func TestModesSingletonForExact(t *testing.T) {
	q := buildMinimalQuery(t)
	q.Mode = Exact
	modes := q.Modes()
	if len(modes) != 1 || modes[0] != Exact {
		t.Errorf("Modes() for Exact = %v, want [Exact]", modes)
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"OVER": Over, "under": Under, "DUAL": Dual, "exact": Exact}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil {
			t.Errorf("ParseMode(%q): unexpected error %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseMode(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseMode("bogus"); err == nil {
		t.Errorf("expected error for unknown mode name")
	}
}
