// Package reducer implements the size-reducing PDA preprocessing pass of
// spec.md §4.3: a fixpoint of forward-reachable and backward-useful
// control-state pruning, at four increasing strength levels, applied before
// the rules are handed to the solver. Reduction never changes the answer
// to the subsequent saturation query (spec.md §8 invariant 8).
package reducer

import (
	"fmt"

	"netverify/pda"
)

// Level selects how aggressively Reduce prunes the PDA.
type Level int

const (
	// None performs no reduction at all.
	None Level = iota
	// Simple prunes control states unreachable from Init ("symbol
	// reachability" in spec.md terms, since our states already carry the
	// stack-top pattern they were reached under).
	Simple
	// DualStack additionally prunes states that cannot reach an accepting
	// state ("symbol-pair reachability on top two" in spec.md terms).
	DualStack
	// SimpleBackup is Simple plus retaining the rules needed to
	// reconstruct a witness trace even when they'd otherwise be pruned as
	// redundant duplicates.
	SimpleBackup
	// DualStackBackup is DualStack plus the same backup retention.
	DualStackBackup
)

// ParseLevel validates a reduction level per spec.md §4.3 ("Invalid levels
// are a usage error").
func ParseLevel(n int) (Level, error) {
	if n < int(None) || n > int(DualStackBackup) {
		return 0, fmt.Errorf("reducer: invalid reduction level %d (must be 0..4)", n)
	}
	return Level(n), nil
}

// Stats reports how many rules Reduce kept and removed (spec.md §4.3's
// "(rules-kept, rules-removed)" return pair).
type Stats struct {
	Kept    int
	Removed int
}

// Reduce prunes p.Rules in place according to level and returns Stats.
func Reduce(p *pda.PDA, level Level) Stats {
	before := len(p.Rules)
	if level == None {
		return Stats{Kept: before, Removed: 0}
	}

	forward := forwardReachable(p)
	keep := forward
	if level == DualStack || level == DualStackBackup {
		backward := backwardUseful(p, forward)
		keep = intersect(forward, backward)
	}

	backup := level == SimpleBackup || level == DualStackBackup
	kept := p.Rules[:0:0]
	seen := make(map[pda.Rule]bool, len(p.Rules))
	for _, r := range p.Rules {
		if !keep[r.From] && !backup {
			continue
		}
		if !keep[r.From] && backup && !keep[r.To] {
			continue // backup retention only keeps rules touching a live state
		}
		if seen[r] {
			continue // rule-dedup, spec.md §4.3
		}
		seen[r] = true
		kept = append(kept, r)
	}
	p.Rules = kept
	return Stats{Kept: len(kept), Removed: before - len(kept)}
}

// forwardReachable computes the fixpoint of control states reachable from
// Init by zero or more rule applications.
func forwardReachable(p *pda.PDA) map[pda.State]bool {
	reach := make(map[pda.State]bool, len(p.Init))
	var frontier []pda.State
	for _, s := range p.Init {
		if !reach[s] {
			reach[s] = true
			frontier = append(frontier, s)
		}
	}
	byFrom := p.Index()
	for len(frontier) > 0 {
		s := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		for _, r := range byFrom[s] {
			if !reach[r.To] {
				reach[r.To] = true
				frontier = append(frontier, r.To)
			}
		}
	}
	return reach
}

// backwardUseful computes the fixpoint of control states that can reach an
// accepting state, restricted to states already known forward-reachable
// (so the two fixpoints compose into the "symbol-pair" reachability the
// spec describes for DualStack).
func backwardUseful(p *pda.PDA, forward map[pda.State]bool) map[pda.State]bool {
	byTo := make(map[pda.State][]pda.Rule, len(p.Rules))
	for _, r := range p.Rules {
		byTo[r.To] = append(byTo[r.To], r)
	}
	useful := make(map[pda.State]bool)
	var frontier []pda.State
	for s := range forward {
		if p.Accepting(s) {
			useful[s] = true
			frontier = append(frontier, s)
		}
	}
	for len(frontier) > 0 {
		s := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		for _, r := range byTo[s] {
			if !useful[r.From] {
				useful[r.From] = true
				frontier = append(frontier, r.From)
			}
		}
	}
	return useful
}

func intersect(a, b map[pda.State]bool) map[pda.State]bool {
	out := make(map[pda.State]bool)
	for s := range a {
		if b[s] {
			out[s] = true
		}
	}
	return out
}
