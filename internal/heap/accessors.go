package heap

import "math"

func (h *Heap) expectTag(addr Addr, want Tag) error {
	if got := h.Tag(addr); got != want {
		return &TagMismatchError{Addr: addr, Want: want, Got: got}
	}
	return nil
}

// --- singletons ----------------------------------------------------------

func (h *Heap) Unallocated() Addr { return h.unallocatedAddr }
func (h *Heap) False() Addr       { return h.falseAddr }
func (h *Heap) True() Addr        { return h.trueAddr }
func (h *Heap) Null() Addr        { return h.nullAddr }
func (h *Heap) Undefined() Addr   { return h.undefinedAddr }

// BoolAddr returns the FALSE or TRUE singleton for a Go bool.
func (h *Heap) BoolAddr(b bool) Addr {
	if b {
		return h.trueAddr
	}
	return h.falseAddr
}

// IsFalse implements the JOF boolean test: a conditional jump is taken iff
// the popped address equals the FALSE singleton exactly, not merely a
// falsy value.
func (h *Heap) IsFalse(addr Addr) bool { return addr == h.falseAddr }

// --- generic indexed child access ------------------------------------------

func (h *Heap) nodeChain(addr Addr, steps int) Addr {
	for s := 0; s < steps; s++ {
		addr = h.extension(addr)
	}
	return addr
}

// ChildAt reads logical child i of an object, following extension links as
// needed. i must be less than the object's recorded length; out of range
// is a fatal error, not a panic, since it always traces back to a
// miscompiled or corrupt instruction stream.
func (h *Heap) ChildAt(addr Addr, i int) (Addr, error) {
	length := int(h.header(addr).childLen)
	if i < 0 || i >= length {
		return 0, ErrIndexOutOfRange
	}
	node := h.nodeChain(addr, i/NumChildSlots)
	return h.rawChild(node, i%NumChildSlots), nil
}

// SetChildAt writes logical child i of an object.
func (h *Heap) SetChildAt(addr Addr, i int, v Addr) error {
	length := int(h.header(addr).childLen)
	if i < 0 || i >= length {
		return ErrIndexOutOfRange
	}
	node := h.nodeChain(addr, i/NumChildSlots)
	h.setRawChild(node, i%NumChildSlots, v)
	return nil
}

// Len returns the recorded logical child count of any object.
func (h *Heap) Len(addr Addr) int { return int(h.header(addr).childLen) }

// --- NUMBER ----------------------------------------------------------------

// AllocateNumber boxes a float64.
func (h *Heap) AllocateNumber(n float64) (Addr, error) {
	addr, err := h.Allocate(NUMBER, 1)
	if err != nil {
		return 0, err
	}
	h.setSlotWord(addr, 0, math.Float64bits(n))
	return addr, nil
}

// Number unboxes a NUMBER node.
func (h *Heap) Number(addr Addr) (float64, error) {
	if err := h.expectTag(addr, NUMBER); err != nil {
		return 0, err
	}
	return math.Float64frombits(h.slotWord(addr, 0)), nil
}

// --- STRING (interning) ------------------------------------------------

// AllocateString interns text, returning the existing address if an
// identical string was already interned.
func (h *Heap) AllocateString(text string) (Addr, error) {
	if addr, ok := h.strings.lookup(text); ok {
		return addr, nil
	}
	addr, err := h.Allocate(STRING, 1)
	if err != nil {
		return 0, err
	}
	h.setSlotWord(addr, 0, uint64(djb2(text)))
	h.strings.insert(text, addr)
	return addr, nil
}

// --- CHAN ------------------------------------------------------------------

const (
	chanHasItem = 0
	chanItem    = 1
)

// AllocateChannel creates an empty unbuffered channel.
func (h *Heap) AllocateChannel() (Addr, error) {
	addr, err := h.Allocate(CHAN, 2)
	if err != nil {
		return 0, err
	}
	h.setRawChild(addr, chanHasItem, h.falseAddr)
	h.setRawChild(addr, chanItem, h.unallocatedAddr)
	return addr, nil
}

func (h *Heap) ChannelIsEmpty(addr Addr) (bool, error) {
	if err := h.expectTag(addr, CHAN); err != nil {
		return false, err
	}
	return h.rawChild(addr, chanItem) == h.unallocatedAddr, nil
}

func (h *Heap) ChannelIsFull(addr Addr) (bool, error) {
	empty, err := h.ChannelIsEmpty(addr)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

// ChannelPushItem completes a send: the channel must be empty.
func (h *Heap) ChannelPushItem(addr, item Addr) error {
	if err := h.expectTag(addr, CHAN); err != nil {
		return err
	}
	h.setRawChild(addr, chanHasItem, h.trueAddr)
	h.setRawChild(addr, chanItem, item)
	return nil
}

// ChannelPopItem completes a receive: the channel must be full.
func (h *Heap) ChannelPopItem(addr Addr) (Addr, error) {
	if err := h.expectTag(addr, CHAN); err != nil {
		return 0, err
	}
	item := h.rawChild(addr, chanItem)
	h.setRawChild(addr, chanHasItem, h.falseAddr)
	h.setRawChild(addr, chanItem, h.unallocatedAddr)
	return item, nil
}

// --- ARRAY -------------------------------------------------------------

// AllocateArray creates a fixed-length array of n elements, all
// UNALLOCATED.
func (h *Heap) AllocateArray(n int) (Addr, error) {
	addr, err := h.Allocate(ARRAY, n)
	if err != nil {
		return 0, err
	}
	hd := h.header(addr)
	hd.meta = uint32(n)
	h.setHeader(addr, hd)
	return addr, nil
}

// ArrayLength returns the fixed length recorded in an ARRAY's metadata
// word.
func (h *Heap) ArrayLength(addr Addr) (int, error) {
	if err := h.expectTag(addr, ARRAY); err != nil {
		return 0, err
	}
	return int(h.header(addr).meta), nil
}

// --- CLOSURE -------------------------------------------------------------

const closureEnvSlot = 0

// AllocateClosure materializes a closure over env with the given arity and
// entry point.
func (h *Heap) AllocateClosure(arity, entryPC int, env Addr) (Addr, error) {
	addr, err := h.Allocate(CLOSURE, 1)
	if err != nil {
		return 0, err
	}
	hd := h.header(addr)
	hd.meta = packArity(arity, entryPC)
	h.setHeader(addr, hd)
	h.setRawChild(addr, closureEnvSlot, env)
	return addr, nil
}

func packArity(arity, entryPC int) uint32 {
	return uint32(uint16(arity))<<16 | uint32(uint16(entryPC))
}

// ClosureArity and ClosureEntry unpack a CLOSURE's metadata word.
func (h *Heap) ClosureArity(addr Addr) (int, error) {
	if err := h.expectTag(addr, CLOSURE); err != nil {
		return 0, err
	}
	return int(int16(h.header(addr).meta >> 16)), nil
}

func (h *Heap) ClosureEntry(addr Addr) (int, error) {
	if err := h.expectTag(addr, CLOSURE); err != nil {
		return 0, err
	}
	return int(int16(h.header(addr).meta)), nil
}

func (h *Heap) ClosureEnv(addr Addr) (Addr, error) {
	if err := h.expectTag(addr, CLOSURE); err != nil {
		return 0, err
	}
	return h.rawChild(addr, closureEnvSlot), nil
}

// --- BUILTIN -------------------------------------------------------------

// AllocateBuiltin registers a host function id (an index into the VM's
// built-in table).
func (h *Heap) AllocateBuiltin(id uint32) (Addr, error) {
	addr, err := h.Allocate(BUILTIN, 0)
	if err != nil {
		return 0, err
	}
	hd := h.header(addr)
	hd.meta = id
	h.setHeader(addr, hd)
	return addr, nil
}

func (h *Heap) BuiltinID(addr Addr) (uint32, error) {
	if err := h.expectTag(addr, BUILTIN); err != nil {
		return 0, err
	}
	return h.header(addr).meta, nil
}

// --- FRAME / ENVIRONMENT ---------------------------------------------------

// AllocateFrame creates an n-slot frame, all bindings UNALLOCATED.
func (h *Heap) AllocateFrame(n int) (Addr, error) {
	return h.Allocate(FRAME, n)
}

// AllocateEnvironment creates an environment with room for nFrames frame
// pointers (all UNALLOCATED until filled in).
func (h *Heap) AllocateEnvironment(nFrames int) (Addr, error) {
	addr, err := h.Allocate(ENVIRONMENT, nFrames)
	if err != nil {
		return 0, err
	}
	hd := h.header(addr)
	hd.meta = uint32(nFrames)
	h.setHeader(addr, hd)
	return addr, nil
}

// EnvironmentLength returns the number of frames in env.
func (h *Heap) EnvironmentLength(env Addr) (int, error) {
	if err := h.expectTag(env, ENVIRONMENT); err != nil {
		return 0, err
	}
	return int(h.header(env).meta), nil
}

// FrameAt returns the frame address f positions back from env's innermost
// frame — i.e. ChildAt(env, len(env)-1-f), matching the lexical-address
// convention where frame 0 is the current (innermost) frame.
func (h *Heap) FrameAt(env Addr, f int) (Addr, error) {
	length, err := h.EnvironmentLength(env)
	if err != nil {
		return 0, err
	}
	idx := length - 1 - f
	return h.ChildAt(env, idx)
}

// ExtendEnvironment creates a new environment of size len(env)+1, copying
// every existing frame pointer and appending frame at the new slot. The
// original environment is left unchanged, so a closure that captured it
// keeps seeing exactly the frames it closed over.
func (h *Heap) ExtendEnvironment(env, frame Addr) (Addr, error) {
	oldLen, err := h.EnvironmentLength(env)
	if err != nil {
		return 0, err
	}
	return h.WithRootAddr(env, func() (Addr, error) {
		return h.WithRootAddr(frame, func() (Addr, error) {
			newEnv, err := h.AllocateEnvironment(oldLen + 1)
			if err != nil {
				return 0, err
			}
			return newEnv, h.WithRoot(newEnv, func() error {
				for i := 0; i < oldLen; i++ {
					child, err := h.ChildAt(env, i)
					if err != nil {
						return err
					}
					if err := h.SetChildAt(newEnv, i, child); err != nil {
						return err
					}
				}
				return h.SetChildAt(newEnv, oldLen, frame)
			})
		})
	})
}

// WithRootAddr is WithRoot for the common case of a function that both
// needs addr protected and wants to return an Addr result.
func (h *Heap) WithRootAddr(addr Addr, fn func() (Addr, error)) (Addr, error) {
	var result Addr
	err := h.WithRoot(addr, func() error {
		r, err := fn()
		result = r
		return err
	})
	return result, err
}

// --- BLOCKFRAME / CALLFRAME ------------------------------------------------

const blockFrameEnvSlot = 0

func (h *Heap) AllocateBlockFrame(env Addr) (Addr, error) {
	addr, err := h.Allocate(BLOCKFRAME, 1)
	if err != nil {
		return 0, err
	}
	h.setRawChild(addr, blockFrameEnvSlot, env)
	return addr, nil
}

func (h *Heap) BlockFrameEnv(addr Addr) (Addr, error) {
	if err := h.expectTag(addr, BLOCKFRAME); err != nil {
		return 0, err
	}
	return h.rawChild(addr, blockFrameEnvSlot), nil
}

const (
	callFrameEnvSlot = 0
	callFrameRetSlot = 1
)

// AllocateCallFrame captures env and an encoded return PC. The return PC
// is encoded as a word-address via PCToAddr/AddrToPC so it can live in a
// child slot alongside real addresses.
func (h *Heap) AllocateCallFrame(env Addr, returnPC int) (Addr, error) {
	addr, err := h.Allocate(CALLFRAME, 2)
	if err != nil {
		return 0, err
	}
	h.setRawChild(addr, callFrameEnvSlot, env)
	h.setRawChild(addr, callFrameRetSlot, PCToAddr(returnPC))
	return addr, nil
}

func (h *Heap) CallFrameEnv(addr Addr) (Addr, error) {
	if err := h.expectTag(addr, CALLFRAME); err != nil {
		return 0, err
	}
	return h.rawChild(addr, callFrameEnvSlot), nil
}

func (h *Heap) CallFrameReturnPC(addr Addr) (int, error) {
	if err := h.expectTag(addr, CALLFRAME); err != nil {
		return 0, err
	}
	return AddrToPC(h.rawChild(addr, callFrameRetSlot)), nil
}

// PCToAddr/AddrToPC encode a plain instruction index as the word-address
// shape a child slot expects. The encoding is the identity function on
// the integer value; the indirection exists so call sites read as intent
// rather than a bare int/Addr cast.
func PCToAddr(pc int) Addr { return Addr(pc) }
func AddrToPC(a Addr) int  { return int(a) }

// --- WAIT_SEND / WAIT_RECEIVE -----------------------------------------

const waitChanSlot = 0

func (h *Heap) AllocateWaitSend(ch Addr) (Addr, error) {
	addr, err := h.Allocate(WAIT_SEND, 1)
	if err != nil {
		return 0, err
	}
	h.setRawChild(addr, waitChanSlot, ch)
	return addr, nil
}

func (h *Heap) AllocateWaitReceive(ch Addr) (Addr, error) {
	addr, err := h.Allocate(WAIT_RECEIVE, 1)
	if err != nil {
		return 0, err
	}
	h.setRawChild(addr, waitChanSlot, ch)
	return addr, nil
}

func (h *Heap) WaitChannel(addr Addr) (Addr, error) {
	tag := h.Tag(addr)
	if tag != WAIT_SEND && tag != WAIT_RECEIVE {
		return 0, &TagMismatchError{Addr: addr, Want: WAIT_SEND, Got: tag}
	}
	return h.rawChild(addr, waitChanSlot), nil
}
