// Package rtable implements the per-router, per-ingress routing table: the
// ordered entry list, rule kinds and stack-operation sequences, op-string
// parsing, and the merge/overlap semantics of spec.md §4.1.
package rtable

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"netverify/label"
	"netverify/network"
)

// RuleKind discriminates what a matched rule does with the packet.
type RuleKind int

const (
	// RuleMPLS forwards out an interface after applying Ops to the stack.
	RuleMPLS RuleKind = iota
	// RuleIP forwards by an IP/table lookup (route lookup outside the MPLS
	// label space; still carries a via interface and possibly ops).
	RuleIP
	// RuleReceive terminates the packet at this router.
	RuleReceive
	// RuleDiscard drops the packet; it never reaches a next hop.
	RuleDiscard
)

func (k RuleKind) String() string {
	switch k {
	case RuleMPLS:
		return "MPLS"
	case RuleIP:
		return "IP"
	case RuleReceive:
		return "RECEIVE"
	case RuleDiscard:
		return "DISCARD"
	default:
		return "?"
	}
}

// Rule is one weighted forwarding choice within an Entry.
type Rule struct {
	Via    *network.InterfaceID // nil for RECEIVE/DISCARD
	Kind   RuleKind
	Weight uint32 // compacted to a dense 0..n rank within the owning Entry
	Ops    []label.Op
}

// Key identifies an Entry: the optional ingress interface, the top-label
// pattern it matches against, and the decreasing ("(S=0)", bottom-of-stack)
// flag, which is a property of the key and ranks strictly more specific
// than the non-decreasing variant of the same label.
type Key struct {
	Ingress    *network.InterfaceID
	Top        label.Label
	Decreasing bool
}

func ingressLess(a, b *network.InterfaceID) (less, equal bool) {
	if a == nil && b == nil {
		return false, true
	}
	if a == nil {
		return true, false
	}
	if b == nil {
		return false, false
	}
	if *a == *b {
		return false, true
	}
	return *a < *b, false
}

// Less orders keys: by ingress interface, then by label specificity
// (label.Less), then decreasing-before-non-decreasing for equal labels.
func (k Key) Less(o Key) bool {
	if lt, eq := ingressLess(k.Ingress, o.Ingress); !eq {
		return lt
	}
	if !label.Equal(k.Top, o.Top) {
		return label.Less(k.Top, o.Top)
	}
	if k.Decreasing != o.Decreasing {
		return k.Decreasing // decreasing sorts first: more specific
	}
	return false
}

// Equal reports whether two keys are identical in all three fields.
func (k Key) Equal(o Key) bool {
	_, eq := ingressLess(k.Ingress, o.Ingress)
	return eq && label.Equal(k.Top, o.Top) && k.Decreasing == o.Decreasing
}

// Entry pairs a lookup Key with its ordered, weight-compacted Rule list.
type Entry struct {
	Key   Key
	Rules []Rule
}

// compactWeights re-ranks Rules' weights to a dense 0..n-1 range, preserving
// relative order. Grounded on original_source/src/model/RoutingTable.cpp's
// weight compaction pass (spec.md §3).
func (e *Entry) compactWeights() {
	sort.SliceStable(e.Rules, func(i, j int) bool { return e.Rules[i].Weight < e.Rules[j].Weight })
	for i := range e.Rules {
		e.Rules[i].Weight = uint32(i)
	}
}

// Warning is a non-fatal semantic issue collected during Merge, per
// spec.md §7 (semantic-warning error kind).
type Warning struct {
	Router  string
	Key     Key
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("routing overlap at %s: %s", w.Router, w.Message)
}

// Table is one router's routing table: entries kept sorted and unique under
// the (ingress, decreasing, top_label) key, per spec.md §8 invariant 2.
type Table struct {
	Router  string
	entries []Entry
}

// NewTable creates an empty table for the named router.
func NewTable(router string) *Table {
	return &Table{Router: router}
}

// AddEntry inserts e in sorted position. It is an error to add a duplicate
// key unless the colliding entries' rules are exactly the rules Merge would
// silently deduplicate (both single-rule, one identical non-MPLS rule), in
// which case the new entry is dropped; callers that need merge semantics
// should use Merge instead.
func (t *Table) AddEntry(e Entry) error {
	e.compactWeights()
	idx, found := t.find(e.Key)
	if found {
		if _, warn := mergeEntries(t.Router, t.entries[idx], e); warn == nil {
			return nil
		}
		return fmt.Errorf("rtable: duplicate entry key at router %s", t.Router)
	}
	t.entries = append(t.entries, Entry{})
	copy(t.entries[idx+1:], t.entries[idx:])
	t.entries[idx] = e
	return nil
}

func (t *Table) find(k Key) (idx int, found bool) {
	idx = sort.Search(len(t.entries), func(i int) bool {
		return !t.entries[i].Key.Less(k)
	})
	if idx < len(t.entries) && t.entries[idx].Key.Equal(k) {
		return idx, true
	}
	return idx, false
}

// Entries returns the sorted entry list.
func (t *Table) Entries() []Entry { return t.entries }

// Lookup returns matching entries for ingress/top, most-specific first, per
// the match order in spec.md §4.1: exact MPLS label before any-MPLS before
// any-IP before IPv4/IPv6 (longest-prefix first), decreasing variants of a
// label ranked ahead of the non-decreasing variant.
func (t *Table) Lookup(ingress *network.InterfaceID, top label.Label) []Entry {
	var out []Entry
	for _, e := range t.entries {
		if !ingressMatches(e.Key.Ingress, ingress) {
			continue
		}
		if !label.Matches(e.Key.Top, top) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

func ingressMatches(pattern, actual *network.InterfaceID) bool {
	if pattern == nil {
		return true // no ingress restriction
	}
	if actual == nil {
		return false
	}
	return *pattern == *actual
}

// Merge merges other into t in place, traversing both sorted entry lists in
// lockstep (spec.md §4.1). On an equal-key collision: if both sides hold
// exactly one rule and the two rules are identical apart from weight (same
// non-MPLS kind, via and ops), the duplicate is silently dropped; otherwise
// the rule lists are concatenated and a Warning
// is emitted. Merge is commutative up to rule order within an entry.
func (t *Table) Merge(other *Table) []Warning {
	var warnings []Warning
	merged := make([]Entry, 0, len(t.entries)+len(other.entries))

	i, j := 0, 0
	for i < len(t.entries) && j < len(other.entries) {
		a, b := t.entries[i], other.entries[j]
		switch {
		case a.Key.Less(b.Key):
			merged = append(merged, a)
			i++
		case b.Key.Less(a.Key):
			merged = append(merged, b)
			j++
		default:
			combined, warn := mergeEntries(t.Router, a, b)
			merged = append(merged, combined)
			if warn != nil {
				warnings = append(warnings, *warn)
			}
			i++
			j++
		}
	}
	merged = append(merged, t.entries[i:]...)
	merged = append(merged, other.entries[j:]...)
	for k := range merged {
		merged[k].compactWeights()
	}
	t.entries = merged
	return warnings
}

func mergeEntries(router string, a, b Entry) (Entry, *Warning) {
	if len(a.Rules) == 1 && len(b.Rules) == 1 &&
		a.Rules[0].Kind != RuleMPLS && a.Rules[0].Kind == b.Rules[0].Kind &&
		rulesEqualIgnoringWeight(a.Rules[0], b.Rules[0]) {
		return a, nil
	}
	combined := Entry{Key: a.Key, Rules: append(append([]Rule{}, a.Rules...), b.Rules...)}
	w := &Warning{Router: router, Key: a.Key, Message: "concatenated conflicting rule sets"}
	return combined, w
}

func rulesEqualIgnoringWeight(a, b Rule) bool {
	if a.Kind != b.Kind || len(a.Ops) != len(b.Ops) {
		return false
	}
	av, bv := viaEqual(a.Via, b.Via)
	if !av {
		return false
	}
	_ = bv
	for i := range a.Ops {
		if a.Ops[i] != b.Ops[i] {
			return false
		}
	}
	return true
}

func viaEqual(a, b *network.InterfaceID) (bool, bool) {
	if a == nil && b == nil {
		return true, true
	}
	if a == nil || b == nil {
		return false, false
	}
	return *a == *b, true
}

// ParseOps parses an op-string like "Swap 17, Push 3, Pop, Swap 9 (top)"
// into an ordered []label.Op. The trailing "(top)" qualifier, when present,
// is stripped before tokenizing. Malformed tokens return a parse error.
func ParseOps(s string) ([]label.Op, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimSpace(s), "(top)")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ops := make([]label.Op, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Fields(part)
		if len(fields) == 0 {
			return nil, fmt.Errorf("rtable: empty op token")
		}
		switch strings.ToLower(fields[0]) {
		case "pop":
			if len(fields) != 1 {
				return nil, fmt.Errorf("rtable: malformed Pop token %q", part)
			}
			ops = append(ops, label.Op{Kind: label.Pop})
		case "push", "swap":
			if len(fields) != 2 {
				return nil, fmt.Errorf("rtable: malformed op token %q", part)
			}
			v, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("rtable: malformed label in token %q: %w", part, err)
			}
			kind := label.Push
			if strings.ToLower(fields[0]) == "swap" {
				kind = label.Swap
			}
			ops = append(ops, label.Op{Kind: kind, Label: label.MPLSLabel(v)})
		default:
			return nil, fmt.Errorf("rtable: unknown op keyword %q", fields[0])
		}
	}
	return ops, nil
}
