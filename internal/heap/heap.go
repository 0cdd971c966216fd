package heap

import (
	"fmt"
	"log"
	"os"
)

// MinWords is the smallest backing buffer New will accept: exactly one
// node's worth of words.
const MinWords = NodeSize

// Heap is the fixed-node, word-addressed managed heap. It is
// single-threaded and not reentrant: no accessor call may begin until the
// previous one returns, and collect() only ever runs from inside Allocate.
type Heap struct {
	words []uint64

	freeHead Addr

	unallocatedAddr Addr
	falseAddr       Addr
	trueAddr        Addr
	nullAddr        Addr
	undefinedAddr   Addr

	strings *stringPool

	// working is the heap's own temporary root set, protecting addresses
	// produced partway through a multi-node allocation (e.g. an
	// environment-extension chain) from being swept by a GC triggered by a
	// later node in the same chain.
	working []Addr

	// MarkRoots lets the scheduler register every task's roots with the
	// collector without the heap importing the scheduler package. It is nil
	// until internal/vm wires a scheduler to this heap, which is fine: a
	// VM with no tasks yet has no extra roots to contribute.
	MarkRoots func(mark func(Addr))

	// MaxWords caps how large the backing buffer may grow, in words. Zero
	// means uncapped: grow doubles forever rather than ever reporting
	// exhaustion. A nonzero cap turns a runaway allocation loop into
	// ErrOutOfMemory instead of an unbounded Go heap grab.
	MaxWords int

	debug  bool
	logger *log.Logger

	gcCount    int
	growCount  int
	allocCount int
}

// New creates a heap backed by a buffer of initialWords words (rounded down
// to a whole number of nodes) and allocates the five literal singletons.
func New(initialWords int, debug bool) (*Heap, error) {
	if initialWords < MinWords {
		return nil, ErrHeapTooSmall
	}
	nodeCount := initialWords / NodeSize
	h := &Heap{
		words:   make([]uint64, nodeCount*NodeSize),
		strings: newStringPool(),
		debug:   debug,
	}
	if debug {
		h.logger = log.New(os.Stderr, "heap: ", log.Lshortfile)
	}
	h.initFreeList(0, nodeCount)
	if err := h.allocateSingletons(); err != nil {
		return nil, err
	}
	return h, nil
}

// initFreeList threads every node in [fromNode, toNode) onto the free list,
// in address order, terminated by freeListEnd.
func (h *Heap) initFreeList(fromNode, toNode int) {
	prev := freeListEnd
	for n := toNode - 1; n >= fromNode; n-- {
		addr := Addr(n * NodeSize)
		h.setHeader(addr, header{tag: FREE, mark: markUnmarked, childLen: 0, meta: 0})
		h.setFreeNext(addr, prev)
		prev = addr
	}
	h.freeHead = prev
}

func (h *Heap) allocateSingletons() error {
	// UNALLOCATED must be first: every other node's unwritten child slots
	// and every allocation's default extension-chain terminator point at
	// its address, so it must exist before anything else is allocated.
	addr, err := h.allocOneNode(UNALLOCATED, 0)
	if err != nil {
		return err
	}
	h.unallocatedAddr = addr
	h.setExtension(addr, addr) // self-terminated; never walked (0 children)

	for _, t := range []struct {
		tag  Tag
		dest *Addr
	}{
		{FALSE, &h.falseAddr},
		{TRUE, &h.trueAddr},
		{NULL, &h.nullAddr},
		{UNDEFINED, &h.undefinedAddr},
	} {
		a, err := h.allocOneNode(t.tag, 0)
		if err != nil {
			return err
		}
		*t.dest = a
		h.setExtension(a, h.unallocatedAddr)
	}
	return nil
}

// NumNodes returns the total node capacity of the current backing buffer.
func (h *Heap) NumNodes() int { return len(h.words) / NodeSize }

// Stats are the debug-observable counters exercised by cmd/govm's -debug
// output.
type Stats struct {
	Nodes   int
	GCs     int
	Grows   int
	Allocs  int
}

func (h *Heap) Stats() Stats {
	return Stats{Nodes: h.NumNodes(), GCs: h.gcCount, Grows: h.growCount, Allocs: h.allocCount}
}

// --- header/child/extension word access -----------------------------------

func (h *Heap) header(addr Addr) header {
	return unpackHeader(h.words[addr+idxHeader])
}

func (h *Heap) setHeader(addr Addr, hd header) {
	h.words[addr+idxHeader] = packHeader(hd)
}

func (h *Heap) Tag(addr Addr) Tag { return h.header(addr).tag }

func (h *Heap) extension(addr Addr) Addr {
	return Addr(h.words[addr+idxExtension])
}

func (h *Heap) setExtension(addr, ext Addr) {
	h.words[addr+idxExtension] = uint64(ext)
}

func (h *Heap) slotWord(addr Addr, slot int) uint64 {
	return h.words[addr+idxChildBase+Addr(slot)]
}

func (h *Heap) setSlotWord(addr Addr, slot int, w uint64) {
	h.words[addr+idxChildBase+Addr(slot)] = w
}

func (h *Heap) rawChild(addr Addr, slot int) Addr {
	return Addr(h.slotWord(addr, slot))
}

func (h *Heap) setRawChild(addr Addr, slot int, v Addr) {
	h.setSlotWord(addr, slot, uint64(v))
}

func (h *Heap) setFreeNext(addr, next Addr) {
	meta := uint32(0xFFFFFFFF)
	if next != freeListEnd {
		meta = uint32(next)
	}
	hd := h.header(addr)
	hd.meta = meta
	h.setHeader(addr, hd)
}

func (h *Heap) freeNext(addr Addr) Addr {
	meta := h.header(addr).meta
	if meta == 0xFFFFFFFF {
		return freeListEnd
	}
	return Addr(meta)
}

// --- allocation --------------------------------------------------------

// allocOneNode pops (or manufactures, via GC/growth) a single free node and
// reinitializes its header. It never builds extension chains; Allocate does
// that by calling allocOneNode repeatedly.
func (h *Heap) allocOneNode(tag Tag, childLen uint16) (Addr, error) {
	if h.freeHead == freeListEnd {
		h.collect()
		if h.freeHead == freeListEnd {
			if err := h.grow(); err != nil {
				return 0, err
			}
		}
	}
	addr := h.freeHead
	h.freeHead = h.freeNext(addr)
	h.setHeader(addr, header{tag: tag, mark: markUnmarked, childLen: childLen, meta: 0})
	h.setExtension(addr, h.unallocatedAddr)
	for i := 0; i < NumChildSlots; i++ {
		h.setRawChild(addr, i, h.unallocatedAddr)
	}
	h.allocCount++
	return addr, nil
}

// Allocate creates an object of the given tag with room for childCount
// logical children, building an extension chain when childCount exceeds
// NumChildSlots. All child slots start out UNALLOCATED. The head node's
// header records the full logical child count so indexed access never
// needs tag-specific special casing.
func (h *Heap) Allocate(tag Tag, childCount int) (Addr, error) {
	if childCount < 0 {
		childCount = 0
	}
	nodesNeeded := 1
	if childCount > NumChildSlots {
		nodesNeeded = (childCount + NumChildSlots - 1) / NumChildSlots
	}

	head, err := h.allocOneNode(tag, uint16(childCount))
	if err != nil {
		return 0, err
	}
	h.pushWorking(head)
	defer h.popWorking()

	prev := head
	for i := 1; i < nodesNeeded; i++ {
		ext, err := h.allocOneNode(EXTENSION, 0)
		if err != nil {
			return 0, err
		}
		h.setExtension(prev, ext)
		h.pushWorking(ext)
		prev = ext
	}
	h.setExtension(prev, h.unallocatedAddr)
	if nodesNeeded > 1 {
		// pop every extension node we pushed except head, which the
		// caller's own defer will pop.
		for i := 1; i < nodesNeeded; i++ {
			h.popWorking()
		}
	}
	return head, nil
}

func (h *Heap) pushWorking(a Addr) { h.working = append(h.working, a) }
func (h *Heap) popWorking()        { h.working = h.working[:len(h.working)-1] }

// WithRoot runs fn with addr registered as a temporary GC root, guaranteeing
// release on every exit path. Callers building multi-step structures (e.g.
// internal/task's call-frame setup) use this instead of reaching into the
// heap's internals.
func (h *Heap) WithRoot(addr Addr, fn func() error) error {
	h.pushWorking(addr)
	defer h.popWorking()
	return fn()
}

// grow doubles the backing buffer, copies existing words, and threads the
// new trailing nodes onto the free list. If MaxWords is set and doubling
// would cross it, grow reports ErrOutOfMemory instead of growing.
func (h *Heap) grow() error {
	oldNodes := h.NumNodes()
	newNodes := oldNodes * 2
	if newNodes == 0 {
		newNodes = 1
	}
	if h.MaxWords > 0 && newNodes*NodeSize > h.MaxWords {
		h.logf("heap exhausted: %d nodes would exceed cap of %d words", newNodes, h.MaxWords)
		return ErrOutOfMemory
	}
	newWords := make([]uint64, newNodes*NodeSize)
	copy(newWords, h.words)
	h.words = newWords
	h.initFreeList(oldNodes, newNodes)
	h.growCount++
	h.logf("grew heap from %d to %d nodes", oldNodes, newNodes)
	return nil
}

func (h *Heap) logf(format string, args ...any) {
	if h.debug && h.logger != nil {
		h.logger.Output(2, fmt.Sprintf(format, args...))
	}
}
