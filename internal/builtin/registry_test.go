package builtin

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"govm/internal/heap"
)

var errEmptyStack = errors.New("builtin test: empty stack")

func TestRegistryNamesMatchEntryOrder(t *testing.T) {
	r := NewRegistry()
	names := r.Names()
	require.Equal(t, len(r.Entries()), len(names))
	idx, ok := r.IndexOf("display")
	require.True(t, ok)
	require.Equal(t, 0, idx)
}

func TestBuildGlobalFrameBindsFunctionsAndConstants(t *testing.T) {
	h, err := heap.New(4096, false)
	require.NoError(t, err)
	r := NewRegistry()

	frame, err := r.BuildGlobalFrame(h)
	require.NoError(t, err)

	piIdx, ok := r.IndexOf("PI")
	require.True(t, ok)
	piAddr, err := h.ChildAt(frame, piIdx)
	require.NoError(t, err)
	pi, err := h.Number(piAddr)
	require.NoError(t, err)
	require.InDelta(t, 3.14159265, pi, 1e-6)

	dispIdx, ok := r.IndexOf("display")
	require.True(t, ok)
	dispAddr, err := h.ChildAt(frame, dispIdx)
	require.NoError(t, err)
	require.Equal(t, heap.BUILTIN, h.Tag(dispAddr))
}

func TestDisplayPrintsAndReturnsArgument(t *testing.T) {
	h, err := heap.New(4096, false)
	require.NoError(t, err)
	r := NewRegistry()
	var buf bytes.Buffer
	r.SetOutput(&buf)

	n, err := h.AllocateNumber(7)
	require.NoError(t, err)
	s := &stack{}
	s.Push(n)

	id, ok := r.IndexOf("display")
	require.True(t, ok)
	result, err := r.Call(uint32(id), s, h)
	require.NoError(t, err)
	require.Equal(t, n, result)
	require.Equal(t, "7\n", buf.String())
}

func TestMathSqrt(t *testing.T) {
	h, err := heap.New(4096, false)
	require.NoError(t, err)
	r := NewRegistry()

	n, err := h.AllocateNumber(9)
	require.NoError(t, err)
	s := &stack{}
	s.Push(n)

	id, ok := r.IndexOf("math_sqrt")
	require.True(t, ok)
	result, err := r.Call(uint32(id), s, h)
	require.NoError(t, err)
	v, err := h.Number(result)
	require.NoError(t, err)
	require.Equal(t, 3.0, v)
}

func TestIsPredicates(t *testing.T) {
	h, err := heap.New(4096, false)
	require.NoError(t, err)
	r := NewRegistry()

	str, err := h.AllocateString("x")
	require.NoError(t, err)

	call := func(name string, arg heap.Addr) bool {
		id, ok := r.IndexOf(name)
		require.True(t, ok)
		s := &stack{}
		s.Push(arg)
		result, err := r.Call(uint32(id), s, h)
		require.NoError(t, err)
		return result == h.True()
	}

	require.True(t, call("is_string", str))
	require.False(t, call("is_number", str))
	require.True(t, call("is_undefined", h.Undefined()))
	require.True(t, call("is_boolean", h.True()))
}

// stack is a minimal Stack implementation for tests.
type stack struct {
	items []heap.Addr
}

func (s *stack) Push(a heap.Addr) { s.items = append(s.items, a) }

func (s *stack) Pop() (heap.Addr, error) {
	n := len(s.items)
	if n == 0 {
		return 0, errEmptyStack
	}
	v := s.items[n-1]
	s.items = s.items[:n-1]
	return v, nil
}
