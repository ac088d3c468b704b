// Package pda implements the Network->PDA Factory (spec.md §4.2): the
// translation of a network, a set of per-router routing tables and a query
// into a weighted pushdown system whose stack is the MPLS label stack and
// whose control states encode (router, path-NFA state, approximation
// counters, multi-op expansion pointers).
package pda

import "netverify/network"

// State is one PDA control state. It stays a flat, comparable struct (no
// pointers) so it can be used directly as a map key by the solver's
// P-automaton, mirroring how the reference topology manager keys maps by
// plain ints rather than pointer identity.
type State struct {
	Router    network.RouterID
	PathState int
	AppMode   int // index into PDA.appModes; see appmode.go
	OpID      int // -1 when not mid multi-op expansion
	EntryIdx  int // meaningful when OpID >= 0
	RuleIdx   int
	StepIdx   int
}

// pending reports whether s is an intermediate state of a multi-op rule
// expansion.
func (s State) pending() bool { return s.OpID >= 0 }
