package solver

// weightedEdge pairs an automaton edge with the cumulative weight of the
// shortest path discovered so far that produces it.
type weightedEdge struct {
	weight uint64
	edge   Edge
}

// edgeHeap is an array-based binary min-heap ordered by weight, in the same
// shiftDown/shiftUp/insert/pop style as the k-shortest-paths worklist this
// package's weighted saturation is grounded on, rather than container/heap.
type edgeHeap []weightedEdge

func less(a, b weightedEdge) bool { return a.weight < b.weight }

func (h edgeHeap) shiftDown(start, end int) {
	dad := start
	son := dad*2 + 1
	for son <= end {
		if son+1 <= end && less(h[son+1], h[son]) {
			son++
		}
		if !less(h[son], h[dad]) {
			break
		}
		h[dad], h[son] = h[son], h[dad]
		dad = son
		son = dad*2 + 1
	}
}

func (h edgeHeap) shiftUp(start int) {
	son := start
	dad := (son - 1) / 2
	for son > 0 {
		if !less(h[son], h[dad]) {
			break
		}
		h[dad], h[son] = h[son], h[dad]
		son = dad
		dad = (son - 1) / 2
	}
}

func (h *edgeHeap) insert(w weightedEdge) {
	*h = append(*h, w)
	h.shiftUp(len(*h) - 1)
}

func (h *edgeHeap) pop() weightedEdge {
	old := *h
	top := old[0]
	n := len(old)
	old[0] = old[n-1]
	*h = old[:n-1]
	if len(*h) > 0 {
		h.shiftDown(0, len(*h)-1)
	}
	return top
}

func (h edgeHeap) empty() bool { return len(h) == 0 }

// hpair is a (P-automaton state, header-NFA state) product pair, used by
// the weighted header-intersection search in result.go.
type hpair struct {
	s PState
	h int
}

type hitem struct {
	w  uint64
	pr hpair
}

// itemHeap is the same array-heap shape as edgeHeap, specialized to hitem
// so the weighted intersection search can pop pairs in increasing
// cumulative-weight order without re-deriving the heap mechanics.
type itemHeap []hitem

func lessItem(a, b hitem) bool { return a.w < b.w }

func (h itemHeap) shiftDown(start, end int) {
	dad := start
	son := dad*2 + 1
	for son <= end {
		if son+1 <= end && lessItem(h[son+1], h[son]) {
			son++
		}
		if !lessItem(h[son], h[dad]) {
			break
		}
		h[dad], h[son] = h[son], h[dad]
		dad = son
		son = dad*2 + 1
	}
}

func (h itemHeap) shiftUp(start int) {
	son := start
	dad := (son - 1) / 2
	for son > 0 {
		if !lessItem(h[son], h[dad]) {
			break
		}
		h[dad], h[son] = h[son], h[dad]
		son = dad
		dad = (son - 1) / 2
	}
}

func (h *itemHeap) insert(it hitem) {
	*h = append(*h, it)
	h.shiftUp(len(*h) - 1)
}

func (h *itemHeap) pop() hitem {
	old := *h
	top := old[0]
	n := len(old)
	old[0] = old[n-1]
	*h = old[:n-1]
	if len(*h) > 0 {
		h.shiftDown(0, len(*h)-1)
	}
	return top
}

func (h itemHeap) empty() bool { return len(h) == 0 }
