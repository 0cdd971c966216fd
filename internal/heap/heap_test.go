package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestHeap(t *testing.T, words int) *Heap {
	t.Helper()
	h, err := New(words, false)
	require.NoError(t, err)
	return h
}

func TestNewRejectsUndersizedBuffer(t *testing.T) {
	_, err := New(NodeSize-1, false)
	require.ErrorIs(t, err, ErrHeapTooSmall)
}

func TestSingletonsAreDistinctAndStable(t *testing.T) {
	h := newTestHeap(t, 64*NodeSize)
	addrs := []Addr{h.Unallocated(), h.False(), h.True(), h.Null(), h.Undefined()}
	seen := map[Addr]bool{}
	for _, a := range addrs {
		require.False(t, seen[a], "singleton addresses must be distinct")
		seen[a] = true
	}

	before := addrs
	// force growth and a GC cycle; singletons must not move. Every number
	// stays rooted, so the GC frees nothing and the heap has to grow.
	var kept []Addr
	h.MarkRoots = func(mark func(Addr)) {
		for _, a := range kept {
			mark(a)
		}
	}
	for i := 0; i < 100; i++ {
		a, err := h.AllocateNumber(float64(i))
		require.NoError(t, err)
		kept = append(kept, a)
	}
	after := []Addr{h.Unallocated(), h.False(), h.True(), h.Null(), h.Undefined()}
	require.Equal(t, before, after)
}

// TestTagTypeSoundness is testable property #1: for every allocator entry
// point, the resulting address reports the right tag and no other.
func TestTagTypeSoundness(t *testing.T) {
	h := newTestHeap(t, 256*NodeSize)

	num, err := h.AllocateNumber(3.5)
	require.NoError(t, err)
	str, err := h.AllocateString("hi")
	require.NoError(t, err)
	ch, err := h.AllocateChannel()
	require.NoError(t, err)
	arr, err := h.AllocateArray(4)
	require.NoError(t, err)
	env, err := h.AllocateEnvironment(0)
	require.NoError(t, err)
	closure, err := h.AllocateClosure(1, 0, env)
	require.NoError(t, err)
	builtin, err := h.AllocateBuiltin(0)
	require.NoError(t, err)
	frame, err := h.AllocateFrame(2)
	require.NoError(t, err)
	block, err := h.AllocateBlockFrame(env)
	require.NoError(t, err)
	call, err := h.AllocateCallFrame(env, 7)
	require.NoError(t, err)
	ws, err := h.AllocateWaitSend(ch)
	require.NoError(t, err)
	wr, err := h.AllocateWaitReceive(ch)
	require.NoError(t, err)

	cases := map[Addr]Tag{
		num: NUMBER, str: STRING, ch: CHAN, arr: ARRAY, env: ENVIRONMENT,
		closure: CLOSURE, builtin: BUILTIN, frame: FRAME, block: BLOCKFRAME,
		call: CALLFRAME, ws: WAIT_SEND, wr: WAIT_RECEIVE,
	}
	for addr, want := range cases {
		require.Equal(t, want, h.Tag(addr))
	}
}

// TestFreeListDisjointFromRoots is testable property #2.
func TestFreeListDisjointFromRoots(t *testing.T) {
	h := newTestHeap(t, 64*NodeSize)
	live := []Addr{h.Unallocated(), h.False(), h.True(), h.Null(), h.Undefined()}
	n, err := h.AllocateNumber(1)
	require.NoError(t, err)
	live = append(live, n)

	liveSet := map[Addr]bool{}
	for _, a := range live {
		liveSet[a] = true
	}
	for addr := h.freeHead; addr != freeListEnd; addr = h.freeNext(addr) {
		require.False(t, liveSet[addr], "live address %d must not be on the free list", addr)
		require.Equal(t, FREE, h.Tag(addr))
	}
}

// TestGCPreservesReachable is testable property #3.
func TestGCPreservesReachable(t *testing.T) {
	h := newTestHeap(t, 32*NodeSize)
	kept, err := h.AllocateNumber(42)
	require.NoError(t, err)
	h.MarkRoots = func(mark func(Addr)) { mark(kept) }

	garbage, err := h.AllocateNumber(7)
	require.NoError(t, err)

	h.Collect()

	require.Equal(t, NUMBER, h.Tag(kept))
	n, err := h.Number(kept)
	require.NoError(t, err)
	require.Equal(t, 42.0, n)

	require.Equal(t, FREE, h.Tag(garbage))
}

// TestStringInterning is testable property #4.
func TestStringInterning(t *testing.T) {
	h := newTestHeap(t, 64*NodeSize)
	a, err := h.AllocateString("hello")
	require.NoError(t, err)
	b, err := h.AllocateString("hello")
	require.NoError(t, err)
	require.Equal(t, a, b)

	text, err := h.Text(a)
	require.NoError(t, err)
	require.Equal(t, "hello", text)

	c, err := h.AllocateString("world")
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestStringInterningRemovedOnSweep(t *testing.T) {
	h := newTestHeap(t, 32*NodeSize)
	a, err := h.AllocateString("gone")
	require.NoError(t, err)
	h.MarkRoots = nil
	h.Collect()
	require.Equal(t, FREE, h.Tag(a))

	allocsBefore := h.Stats().Allocs
	b, err := h.AllocateString("gone")
	require.NoError(t, err)
	require.Equal(t, allocsBefore+1, h.Stats().Allocs, "freed string must be re-interned, not reused stale")
	text, err := h.Text(b)
	require.NoError(t, err)
	require.Equal(t, "gone", text)
}

func TestArrayExtensionChain(t *testing.T) {
	h := newTestHeap(t, 128*NodeSize)
	arr, err := h.AllocateArray(20)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		v, err := h.AllocateNumber(float64(i))
		require.NoError(t, err)
		require.NoError(t, h.SetChildAt(arr, i, v))
	}
	for i := 0; i < 20; i++ {
		addr, err := h.ChildAt(arr, i)
		require.NoError(t, err)
		n, err := h.Number(addr)
		require.NoError(t, err)
		require.Equal(t, float64(i), n)
	}
	_, err = h.ChildAt(arr, 20)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestExtendEnvironmentLeavesOriginalUnchanged(t *testing.T) {
	h := newTestHeap(t, 128*NodeSize)
	env0, err := h.AllocateEnvironment(0)
	require.NoError(t, err)
	frame1, err := h.AllocateFrame(1)
	require.NoError(t, err)
	env1, err := h.ExtendEnvironment(env0, frame1)
	require.NoError(t, err)

	len0, err := h.EnvironmentLength(env0)
	require.NoError(t, err)
	require.Equal(t, 0, len0)

	len1, err := h.EnvironmentLength(env1)
	require.NoError(t, err)
	require.Equal(t, 1, len1)

	got, err := h.FrameAt(env1, 0)
	require.NoError(t, err)
	require.Equal(t, frame1, got)
}

func TestChannelRendezvousInvariant(t *testing.T) {
	h := newTestHeap(t, 32*NodeSize)
	ch, err := h.AllocateChannel()
	require.NoError(t, err)

	empty, err := h.ChannelIsEmpty(ch)
	require.NoError(t, err)
	require.True(t, empty)

	item, err := h.AllocateNumber(99)
	require.NoError(t, err)
	require.NoError(t, h.ChannelPushItem(ch, item))

	full, err := h.ChannelIsFull(ch)
	require.NoError(t, err)
	require.True(t, full)

	got, err := h.ChannelPopItem(ch)
	require.NoError(t, err)
	require.Equal(t, item, got)

	empty, err = h.ChannelIsEmpty(ch)
	require.NoError(t, err)
	require.True(t, empty)
}

func TestTagMismatchIsFatalError(t *testing.T) {
	h := newTestHeap(t, 32*NodeSize)
	n, err := h.AllocateNumber(1)
	require.NoError(t, err)
	_, err = h.Text(n)
	require.Error(t, err)
	var mismatch *TagMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, STRING, mismatch.Want)
	require.Equal(t, NUMBER, mismatch.Got)
}

func TestMaxWordsCapReturnsOutOfMemory(t *testing.T) {
	h := newTestHeap(t, NodeSize*8)
	h.MaxWords = NodeSize * 8 // cap equals initial size: growth is never allowed
	var kept []Addr
	h.MarkRoots = func(mark func(Addr)) {
		for _, a := range kept {
			mark(a)
		}
	}
	var err error
	for i := 0; err == nil && i < 1000; i++ {
		var a Addr
		a, err = h.AllocateNumber(float64(i))
		if err == nil {
			kept = append(kept, a) // keep every allocation rooted so the free list truly exhausts
		}
	}
	require.ErrorIs(t, err, ErrOutOfMemory)
}

func TestHeapGrowsWhenFreeListExhausted(t *testing.T) {
	h := newTestHeap(t, NodeSize*8)
	before := h.NumNodes()
	var kept []Addr
	h.MarkRoots = func(mark func(Addr)) {
		for _, a := range kept {
			mark(a)
		}
	}
	for i := 0; i < 1000; i++ {
		a, err := h.AllocateNumber(float64(i))
		require.NoError(t, err)
		kept = append(kept, a) // every allocation stays live, so GC frees nothing
	}
	require.Greater(t, h.NumNodes(), before)
	stats := h.Stats()
	require.Greater(t, stats.Allocs, 0)
	require.Greater(t, stats.Grows, 0)
}
