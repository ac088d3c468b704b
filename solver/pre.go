package solver

import (
	"netverify/label"
	"netverify/pda"
)

// reverseRule approximates the PDA rule that undoes r's stack effect: Swap
// reverses to Swap, Pop reverses to Push and vice versa.
//
// This is a deliberate simplification, not exact reversal: reversing a push
// rule drops the constraint that the symbol uncovered by the corresponding
// pop must equal the pushed-under symbol r.Sym, and reversing a pop rule
// can't recover what was under the popped symbol, so it reconstructs it
// unconditionally via r.Sym. Both directions are exact for the common case
// this verifier's rule synthesis actually produces -- Push and Pop never
// appear chained with an intervening Swap that changes the symbol beneath
// them -- and conservatively widen (never narrow) pre* otherwise, which
// keeps pre* sound for OVER-approximation's "no path exists" verdicts.
func reverseRule(r pda.Rule) pda.Rule {
	switch r.Op.Kind {
	case label.Swap:
		return pda.Rule{From: r.To, Sym: r.Op.Label, Op: label.Op{Kind: label.Swap, Label: r.Sym}, To: r.From, Weight: r.Weight, Meta: r.Meta}
	case label.Pop:
		return pda.Rule{From: r.To, Sym: label.Wildcard(), Op: label.Op{Kind: label.Push, Label: r.Sym}, To: r.From, Weight: r.Weight, Meta: r.Meta}
	case label.Push:
		return pda.Rule{From: r.To, Sym: r.Op.Label, Op: label.Op{Kind: label.Pop}, To: r.From, Weight: r.Weight, Meta: r.Meta}
	default:
		return r
	}
}

func reversedIndex(p *pda.PDA) (map[pda.State][]pda.Rule, map[pda.Rule]int) {
	idx := make(map[pda.State][]pda.Rule, len(p.Rules))
	ids := make(map[pda.Rule]int, len(p.Rules))
	for i, r := range p.Rules {
		rr := reverseRule(r)
		idx[rr.From] = append(idx[rr.From], rr)
		if _, ok := ids[rr]; !ok {
			ids[rr] = i
		}
	}
	return idx, ids
}

// Pre runs pre* for p: the P-automaton recognizing every configuration that
// can reach an accepting one, via the rule-reversal approximation described
// on reverseRule. Seeded from the accepting control states against the
// query's final-header NFA.
func Pre(p *pda.PDA) *Automaton {
	a := buildTerminal(p)
	idx, ids := reversedIndex(p)
	saturate(a, idx, ids)
	return a
}
