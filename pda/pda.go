package pda

import (
	"netverify/label"
	"netverify/network"
	"netverify/query"
	"netverify/rtable"
)

// Rule is one weighted pushdown rule: from state From, if the stack top
// matches Sym, apply Op and transition to To.
type Rule struct {
	From   State
	Sym    label.Label
	Op     label.Op
	To     State
	Weight uint32

	// Meta identifies the routing entry/rule this elementary rule expands,
	// regardless of how many ops that rule synthesized into -- trace
	// extraction needs this even for a single-op rule, where To carries no
	// OpID of its own to look up in Synthetic.
	Meta SyntheticInfo
}

// PDA is the weighted pushdown system produced by the factory, plus enough
// of the originating network/query context for the solver and trace
// extraction to interpret it (spec.md §3 "PDA configuration").
type PDA struct {
	Net      *network.Network
	Tables   map[network.RouterID]*rtable.Table
	Query    *query.Query
	Mode     query.Mode
	K        int
	Weighted bool

	Rules []Rule
	Init  []State

	appModes *appModeTable

	// Back-mapping from a synthetic intermediate state to the routing
	// entry/rule/op it is expanding, for trace collapsing (spec.md §4.5,
	// §9 "Trace reconstruction across multi-op rules").
	Synthetic map[State]SyntheticInfo
}

// SyntheticInfo records which entry/rule/op-offset an intermediate state
// belongs to.
type SyntheticInfo struct {
	Router   network.RouterID
	EntryIdx int
	RuleIdx  int
	OpOffset int
}

// Accepting reports whether s is an accepting PDA control state: the
// path-NFA state is accepting and the router is the null router and the
// state is not mid-expansion (spec.md §4.2 "Accepting states"). The final
// header-regex check against the remaining stack is applied separately by
// the solver/verifier against the terminal P-automaton.
func (p *PDA) Accepting(s State) bool {
	if s.pending() {
		return false
	}
	if !p.Net.IsNull(s.Router) {
		return false
	}
	return p.Query.Path.IsAccepting(s.PathState)
}

// RulesFrom returns every rule whose From state equals s. It scans Rules
// linearly on every call; callers that need many lookups should build an
// index once via Index().
func (p *PDA) RulesFrom(s State) []Rule {
	var out []Rule
	for _, r := range p.Rules {
		if r.From == s {
			out = append(out, r)
		}
	}
	return out
}

// Index groups Rules by From state for O(1) lookup during saturation.
func (p *PDA) Index() map[State][]Rule {
	idx := make(map[State][]Rule, len(p.Rules))
	for _, r := range p.Rules {
		idx[r.From] = append(idx[r.From], r)
	}
	return idx
}
