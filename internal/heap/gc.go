package heap

// Collect runs a full mark-and-sweep cycle: mark every object reachable
// from the five singletons, the heap's own working set, and whatever the
// scheduler reports as task roots, then free every unmarked, non-free
// node.
func (h *Heap) collect() {
	h.gcCount++
	h.logf("gc #%d starting (%d nodes)", h.gcCount, h.NumNodes())

	for _, a := range singletonAddrs(h) {
		h.mark(a)
	}
	for _, a := range h.working {
		h.mark(a)
	}
	if h.MarkRoots != nil {
		h.MarkRoots(h.mark)
	}

	freed := h.sweep()
	h.logf("gc #%d done: freed %d nodes", h.gcCount, freed)
}

// Collect is the public entry point, exposed for callers (such as tests)
// that want to force a cycle outside of an allocation miss. The VM
// itself only ever triggers collect() from inside Allocate, keeping every
// collection synchronous with the single thread of execution that could
// observe it.
func (h *Heap) Collect() { h.collect() }

func singletonAddrs(h *Heap) []Addr {
	return []Addr{h.unallocatedAddr, h.falseAddr, h.trueAddr, h.nullAddr, h.undefinedAddr}
}

// mark recursively marks addr and everything reachable from it. Already
// marked and FREE nodes terminate the recursion.
func (h *Heap) mark(addr Addr) {
	hd := h.header(addr)
	if hd.tag == FREE || hd.mark == markMarked {
		return
	}
	hd.mark = markMarked
	h.setHeader(addr, hd)

	switch hd.tag {
	case NUMBER, STRING:
		// slot 0 holds raw payload bits (a float, a string hash), not an address
	default:
		for i := 0; i < NumChildSlots; i++ {
			if hd.tag == CALLFRAME && i == callFrameRetSlot {
				continue // an encoded return PC, not an address
			}
			h.mark(h.rawChild(addr, i))
		}
	}
	ext := h.extension(addr)
	if ext != addr { // singletons self-reference; avoid re-entering forever
		h.mark(ext)
	}
}

// sweep frees every unmarked, non-free node and unmarks every survivor. It
// returns the number of nodes freed.
func (h *Heap) sweep() int {
	freed := 0
	nodes := h.NumNodes()
	for n := 0; n < nodes; n++ {
		addr := Addr(n * NodeSize)
		hd := h.header(addr)
		switch {
		case hd.tag == FREE:
			continue
		case hd.mark == markUnmarked:
			if hd.tag == STRING {
				h.strings.remove(addr)
			}
			h.setHeader(addr, header{tag: FREE})
			h.setFreeNext(addr, h.freeHead)
			h.freeHead = addr
			freed++
		default:
			hd.mark = markUnmarked
			h.setHeader(addr, hd)
		}
	}
	return freed
}
