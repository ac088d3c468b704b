package pda

import (
	"fmt"
	"sort"

	"netverify/network"
)

// appMode is the approximation-counter payload referenced by State.AppMode.
// Over-approximation only needs a bounded count of approximating steps
// taken so far; under/exact approximation needs to remember *which* links
// were assumed failed, so that the same link stays failed for the rest of
// the trace (spec.md §4.2, Design Notes "Approximation as control-state
// encoding").
type appMode struct {
	Count  int
	Failed []network.InterfaceID // sorted, deduplicated, len <= K
}

func (a appMode) key() string {
	return fmt.Sprintf("%d|%v", a.Count, a.Failed)
}

func (a appMode) contains(via network.InterfaceID) bool {
	for _, f := range a.Failed {
		if f == via {
			return true
		}
	}
	return false
}

// withFailed returns a new appMode with via added to Failed (kept sorted),
// or the same appMode unchanged if via is already present. ok is false if
// adding via would exceed the failure bound k.
func (a appMode) withFailed(via network.InterfaceID, k int) (appMode, bool) {
	if a.contains(via) {
		return a, true
	}
	if len(a.Failed) >= k {
		return a, false
	}
	failed := make([]network.InterfaceID, len(a.Failed)+1)
	copy(failed, a.Failed)
	failed[len(a.Failed)] = via
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
	return appMode{Failed: failed}, true
}

// appModeTable interns appMode values so that repeated construction of the
// same approximation state reuses one index (mirrors the solver's rule-id
// based auxiliary-state dedup, spec.md §4.4).
type appModeTable struct {
	modes []appMode
	index map[string]int
}

func newAppModeTable() *appModeTable {
	t := &appModeTable{index: make(map[string]int)}
	t.intern(appMode{})
	return t
}

func (t *appModeTable) intern(a appMode) int {
	k := a.key()
	if idx, ok := t.index[k]; ok {
		return idx
	}
	idx := len(t.modes)
	t.modes = append(t.modes, a)
	t.index[k] = idx
	return idx
}

func (t *appModeTable) get(idx int) appMode { return t.modes[idx] }

// zeroAppMode is the always-present "no failures yet" approximation state.
const zeroAppMode = 0
